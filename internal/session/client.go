package session

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/amoylab/tether/internal/auth/credential"
	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/internal/eventbus"
	"github.com/amoylab/tether/pkg/metrics"
	"github.com/amoylab/tether/pkg/trace"
	"github.com/amoylab/tether/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-Id"

// Client issues authenticated requests and owns the single refresh flight.
//
// While a refresh is in flight every request that fails authentication is
// queued. The goroutine that started the refresh replays the queue in FIFO
// order with the refreshed token, then its own request, and only clears the
// in-flight flag once the queue is empty.
type Client struct {
	logger  *zap.Logger
	cfg     *config.APIConfig
	store   credential.Store
	bus     eventbus.Bus
	http    *http.Client
	metrics *metrics.Metrics
	tracer  *trace.Builder

	mu         sync.Mutex
	refreshing bool
	queue      []*pending
}

// pending is a request parked until the current refresh settles
type pending struct {
	ctx    context.Context
	spec   *RequestSpec
	result chan outcome
}

type outcome struct {
	resp *Response
	err  error
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMetrics records request and refresh metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new authenticated request client
func NewClient(logger *zap.Logger, cfg *config.APIConfig, store credential.Store, bus eventbus.Bus, opts ...Option) *Client {
	c := &Client{
		logger: logger.Named("session.client"),
		cfg:    cfg,
		store:  store,
		bus:    bus,
		tracer: trace.Tracer(cnst.TraceSession),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: trace.Transport(nil),
		}
	}
	return c
}

// Request performs the call with the current access token. Authentication expiry is
// never returned as an error: the caller gets either the real response or the
// synthetic expired one. Transport errors are returned as is.
func (c *Client) Request(ctx context.Context, spec *RequestSpec) (*Response, error) {
	scope := c.tracer.Start(ctx, cnst.SpanRequest).
		WithAttrs(attribute.String("http.method", spec.Method), attribute.String("path", spec.Path))
	defer scope.End()
	ctx = scope.Ctx

	token, err := c.store.Get(ctx, cnst.KeyAccessToken)
	if err != nil {
		scope.Fail(err)
		return nil, err
	}

	resp, err := c.do(ctx, spec, token)
	if err != nil {
		scope.Fail(err)
		return nil, err
	}
	if !isAuthFailure(resp) {
		return resp, nil
	}

	c.logger.Debug("authentication failed, recovering session",
		zap.String("method", spec.Method),
		zap.String("path", spec.Path),
		zap.Int("status", resp.StatusCode))
	resp, err = c.recover(ctx, spec, token)
	if err != nil {
		scope.Fail(err)
	}
	return resp, err
}

// recover handles a request whose call failed authentication with token
func (c *Client) recover(ctx context.Context, spec *RequestSpec, token string) (*Response, error) {
	c.mu.Lock()

	if c.refreshing {
		p := &pending{ctx: ctx, spec: spec, result: make(chan outcome, 1)}
		c.queue = append(c.queue, p)
		c.metrics.PendingAdd(1)
		c.mu.Unlock()

		select {
		case o := <-p.result:
			return o.resp, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	current, err := c.store.Get(ctx, cnst.KeyAccessToken)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if current != "" && current != token {
		// a refresh already replaced the token this call was made with
		c.mu.Unlock()
		return c.replay(ctx, spec, current)
	}
	if current == "" && token != "" {
		// the session this call belonged to has already ended
		c.mu.Unlock()
		return expiredResponse(), nil
	}

	c.refreshing = true
	c.mu.Unlock()

	return c.lead(ctx, spec, token)
}

// lead runs the refresh and settles every request that queued behind it
func (c *Client) lead(ctx context.Context, spec *RequestSpec, token string) (*Response, error) {
	// The refresh outlives the caller that happened to trigger it
	newToken, err := c.refresh(context.WithoutCancel(ctx), token)

	var settle func(ctx context.Context, spec *RequestSpec) (*Response, error)
	switch {
	case err == nil:
		settle = func(ctx context.Context, spec *RequestSpec) (*Response, error) {
			return c.replay(ctx, spec, newToken)
		}
	case isStoreFailure(err):
		settle = func(context.Context, *RequestSpec) (*Response, error) {
			return nil, err
		}
	default:
		settle = func(context.Context, *RequestSpec) (*Response, error) {
			return expiredResponse(), nil
		}
	}

	c.drain(settle, false)
	resp, rerr := settle(ctx, spec)
	c.drain(settle, true)
	return resp, rerr
}

// drain settles queued requests in order until the queue is empty. With
// release set the in-flight flag is cleared under the same lock that observed
// the empty queue.
func (c *Client) drain(settle func(context.Context, *RequestSpec) (*Response, error), release bool) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			if release {
				c.refreshing = false
			}
			c.mu.Unlock()
			return
		}
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, p := range batch {
			c.metrics.PendingAdd(-1)
			if err := p.ctx.Err(); err != nil {
				p.result <- outcome{err: err}
				continue
			}
			resp, err := settle(p.ctx, p.spec)
			p.result <- outcome{resp: resp, err: err}
		}
	}
}

// replay re-issues the call once with token. A second authentication failure is
// handed back to the caller.
func (c *Client) replay(ctx context.Context, spec *RequestSpec, token string) (*Response, error) {
	scope := c.tracer.Start(ctx, cnst.SpanReplay).
		WithAttrs(attribute.String("http.method", spec.Method), attribute.String("path", spec.Path))
	defer scope.End()

	resp, err := c.do(scope.Ctx, spec, token)
	if err != nil {
		scope.Fail(err)
	}
	return resp, err
}

// do performs one HTTP round trip
func (c *Client) do(ctx context.Context, spec *RequestSpec, token string) (*Response, error) {
	target, err := utils.ResolveURL(c.cfg.BaseURL, spec.Path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target, bytes.NewReader(spec.Body))
	if err != nil {
		return nil, err
	}
	if spec.Header != nil {
		utils.CopyHeaders(req.Header, spec.Header)
	}
	if len(spec.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.NewString())
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RequestDone(spec.Method, "error", start)
		return nil, err
	}
	raw, err := utils.ReadAndClose(httpResp)
	if err != nil {
		c.metrics.RequestDone(spec.Method, "error", start)
		return nil, err
	}
	c.metrics.RequestDone(spec.Method, strconv.Itoa(httpResp.StatusCode), start)

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       normalizeBody(raw),
	}
	c.renew(ctx, resp, token)
	return resp, nil
}

// renew persists a token handed out through the renewal header. It never
// runs while a refresh is in flight and never overwrites a token other than
// the one the call was made with.
func (c *Client) renew(ctx context.Context, resp *Response, token string) {
	if c.cfg.RenewalHeader == "" {
		return
	}
	renewed := resp.Header.Get(c.cfg.RenewalHeader)
	if renewed == "" || renewed == token {
		return
	}

	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	current, err := c.store.Get(ctx, cnst.KeyAccessToken)
	if err != nil || current != token || current == "" {
		c.mu.Unlock()
		return
	}
	err = credential.SaveSession(ctx, c.store, credential.Session{AccessToken: renewed})
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("failed to persist renewed token", zap.Error(err))
		return
	}

	c.metrics.HeaderRenewal()
	c.logger.Info("access token renewed by header", zap.String("token", utils.Redact(renewed)))
	c.publish(ctx, eventbus.TokenRefreshed(renewed))
}

func (c *Client) publish(ctx context.Context, e *eventbus.Event) {
	if err := c.bus.Publish(context.WithoutCancel(ctx), e); err != nil {
		c.logger.Error("failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
