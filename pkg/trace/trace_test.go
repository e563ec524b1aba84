package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

func stubConstructors(t *testing.T) {
	t.Helper()
	origRes, origHTTP, origGRPC := newResource, newOTLPTraceHTTP, newOTLPTraceGRPC
	t.Cleanup(func() {
		newResource, newOTLPTraceHTTP, newOTLPTraceGRPC = origRes, origHTTP, origGRPC
	})
	newResource = func(ctx context.Context, options ...resource.Option) (*resource.Resource, error) {
		return resource.Default(), nil
	}
	newOTLPTraceHTTP = func(ctx context.Context, options ...otlptracehttp.Option) (*otlptrace.Exporter, error) {
		return nil, nil
	}
	newOTLPTraceGRPC = func(ctx context.Context, options ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return nil, nil
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), &Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = InitTracing(context.Background(), nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, shutdown)
}

func TestInitTracing_Protocols(t *testing.T) {
	stubConstructors(t)

	for _, protocol := range []string{"http", "grpc", ""} {
		shutdown, err := InitTracing(context.Background(), &Config{
			Enabled:     true,
			ServiceName: "tether-test",
			Protocol:    protocol,
			Insecure:    true,
			SamplerRate: 0.5,
			Headers:     map[string]string{"Authorization": "Bearer token"},
		}, zap.NewNop())
		require.NoError(t, err, protocol)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestInitTracing_ResourceError(t *testing.T) {
	stubConstructors(t)
	newResource = func(ctx context.Context, options ...resource.Option) (*resource.Resource, error) {
		return nil, errors.New("resource boom")
	}

	_, err := InitTracing(context.Background(), &Config{Enabled: true}, zap.NewNop())
	assert.ErrorContains(t, err, "create resource")
}

func TestInitTracing_ExporterError(t *testing.T) {
	stubConstructors(t)
	newOTLPTraceHTTP = func(ctx context.Context, options ...otlptracehttp.Option) (*otlptrace.Exporter, error) {
		return nil, errors.New("exporter boom")
	}

	_, err := InitTracing(context.Background(), &Config{Enabled: true, Protocol: "http"}, zap.NewNop())
	assert.ErrorContains(t, err, "create exporter")
}

func TestClampRate(t *testing.T) {
	assert.Equal(t, 0.0, clampRate(-1))
	assert.Equal(t, 1.0, clampRate(2))
	assert.Equal(t, 0.3, clampRate(0.3))
}

func TestTransport_ForwardsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: Transport(nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSpanScope(t *testing.T) {
	scope := Tracer("test-tracer").Start(context.Background(), "test-span")
	require.NotNil(t, scope)
	assert.NotNil(t, scope.Ctx)

	result := scope.WithAttrs(attribute.String("k1", "v1")).Fail(errors.New("boom")).WithAttrs(attribute.String("k2", "v2"))
	assert.Equal(t, scope, result)
	scope.End()

	var nilScope *SpanScope
	assert.Nil(t, nilScope.WithAttrs(attribute.String("key", "value")))
	assert.Nil(t, nilScope.Fail(errors.New("x")))
	nilScope.End()
}
