package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amoylab/tether/internal/common/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestDone("GET", "200", time.Now())
		m.RefreshDone("success", time.Now())
		m.PendingAdd(1)
		m.HeaderRenewal()
		m.Dial("ok")
		m.ReconnectScheduled()
		m.HeartbeatSent()
		m.ConnectionState("connected", "connected", "disconnected")
		m.InboundMessage("chat")
	})
}

func TestMetricsRecordAndExpose(t *testing.T) {
	m := New(config.MetricsConfig{Namespace: "tether"})

	m.RefreshDone("success", time.Now())
	m.RefreshDone("failure", time.Now())
	m.RefreshDone("failure", time.Now())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.refreshCnt.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.refreshCnt.WithLabelValues("failure")))

	m.PendingAdd(3)
	m.PendingAdd(-1)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.pendingReqs))

	m.ConnectionState("connecting", "disconnected", "connecting", "connected")
	m.ConnectionState("connected", "disconnected", "connecting", "connected")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.connState.WithLabelValues("connecting")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connState.WithLabelValues("connected")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tether_token_refresh_total"))
}
