package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amoylab/tether/internal/auth/credential"
	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/internal/eventbus"
	"github.com/amoylab/tether/pkg/metrics"
	"github.com/amoylab/tether/pkg/trace"
	"github.com/amoylab/tether/pkg/utils"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Envelope is the wire message exchanged on the persistent connection
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var pingEnvelope = []byte(`{"event":"ping"}`)

// Prober provokes the request layer into refreshing a stale token
type Prober interface {
	Probe(ctx context.Context) error
}

// Manager owns the single persistent connection of a session. It reads the
// access token from the credential store but never writes it.
type Manager struct {
	logger  *zap.Logger
	cfg     *config.ConnectionConfig
	store   credential.Store
	bus     eventbus.Bus
	dialer  Dialer
	prober  Prober
	metrics *metrics.Metrics
	tracer  *trace.Builder

	mu           sync.Mutex
	state        State
	manualClose  bool
	gen          uint64
	channel      Channel
	stop         context.CancelFunc
	reconnect    *time.Timer
	reconnectSeq uint64
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer replaces the default WebSocket dialer
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithProber sets the component asked to refresh a rejected token
func WithProber(p Prober) Option {
	return func(m *Manager) {
		m.prober = p
	}
}

// WithMetrics records connection metrics
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a new connection manager in the Disconnected state
func NewManager(logger *zap.Logger, cfg *config.ConnectionConfig, store credential.Store, bus eventbus.Bus, opts ...Option) *Manager {
	m := &Manager{
		logger: logger.Named("connection.manager"),
		cfg:    cfg,
		store:  store,
		bus:    bus,
		tracer: trace.Tracer(cnst.TraceConnection),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &WebSocketDialer{ReadLimit: cfg.ReadLimit}
	}
	return m
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the connection with the stored access token. It does nothing
// when a connection is open or being opened, and abstains when there is no
// token. Only a credential store failure is returned.
func (m *Manager) Connect(ctx context.Context) error {
	token, err := m.store.Get(ctx, cnst.KeyAccessToken)
	if err != nil {
		return err
	}
	if token == "" {
		m.logger.Info("no access token, not connecting")
		return nil
	}
	m.apply(connectInput{token: token})
	return nil
}

// Reset drops the current connection and any pending reconnect without
// giving up on the session
func (m *Manager) Reset() {
	m.apply(resetInput{})
}

// Close drops the current connection and disables automatic reconnects until
// Connect is called again
func (m *Manager) Close() {
	m.apply(closeInput{})
}

// Send writes env when connected. Outside the Connected state the envelope is
// dropped and nil is returned.
func (m *Manager) Send(ctx context.Context, env *Envelope) error {
	m.mu.Lock()
	ch := m.channel
	connected := m.state == Connected
	m.mu.Unlock()

	if !connected || ch == nil {
		m.logger.Debug("not connected, dropping envelope", zap.String("event", env.Event))
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return ch.Write(ctx, data)
}

// Run connects and then follows session events until ctx is done: a
// refreshed token resets and reconnects at once, a forced or user logout
// closes the connection for good.
func (m *Manager) Run(ctx context.Context) error {
	events, err := m.bus.Watch(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Connect(ctx); err != nil {
		m.logger.Error("failed to read access token", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			m.handleEvent(ctx, e)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, e *eventbus.Event) {
	switch e.Type {
	case eventbus.TypeTokenRefreshed:
		m.logger.Info("token refreshed, reconnecting", zap.String("token", utils.Redact(e.Token)))
		m.Reset()
		if err := m.Connect(ctx); err != nil {
			m.logger.Error("failed to read access token", zap.Error(err))
		}
	case eventbus.TypeForcedLogout, eventbus.TypeLoggedOut:
		m.logger.Info("session ended, closing connection", zap.String("event", string(e.Type)))
		m.Close()
	}
}

// dial opens a channel for generation gen and reports back
func (m *Manager) dial(gen uint64, token string) {
	scope := m.tracer.Start(context.Background(), cnst.SpanDial).
		WithAttrs(attribute.String("url", m.cfg.URL))
	defer scope.End()

	ctx, cancel := context.WithTimeout(scope.Ctx, m.cfg.DialTimeout)
	defer cancel()

	ch, err := m.dialer.Dial(ctx, m.cfg.URL, token)
	if err != nil {
		scope.Fail(err)
	}
	m.apply(dialedInput{gen: gen, ch: ch, err: err})
}

// openEffect starts the heartbeat and read loop of a freshly opened channel.
// Called with m.mu held.
func (m *Manager) openEffect(gen uint64, ch Channel) effect {
	ctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	return func() {
		go m.heartbeat(ctx, gen, ch)
		go m.readLoop(ctx, gen, ch)
	}
}

func (m *Manager) heartbeat(ctx context.Context, gen uint64, ch Channel) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ch.Write(ctx, pingEnvelope); err != nil {
				if ctx.Err() == nil {
					m.apply(droppedInput{gen: gen, err: err})
				}
				return
			}
			m.metrics.HeartbeatSent()
			m.logger.Debug("heartbeat sent")
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, ch Channel) {
	for {
		data, err := ch.Read(ctx)
		if err != nil {
			m.apply(droppedInput{gen: gen, err: err})
			return
		}
		m.dispatch(ctx, data)
	}
}

// dispatch forwards an inbound envelope to the bus. Heartbeat envelopes are
// consumed here.
func (m *Manager) dispatch(ctx context.Context, data []byte) {
	if !gjson.ValidBytes(data) {
		m.logger.Warn("dropping malformed envelope", zap.Int("size", len(data)))
		return
	}
	topic := gjson.GetBytes(data, "event").String()
	if topic == "" {
		topic = gjson.GetBytes(data, "type").String()
	}
	if topic == "ping" || topic == "pong" {
		return
	}

	m.metrics.InboundMessage(topic)
	if err := m.bus.Publish(ctx, eventbus.Message(topic, data)); err != nil {
		m.logger.Error("failed to publish inbound message", zap.String("topic", topic), zap.Error(err))
	}
}

func (m *Manager) publishConnected() {
	m.logger.Info("connection established", zap.String("url", m.cfg.URL))
	if err := m.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.TypeConnected)); err != nil {
		m.logger.Error("failed to publish connected event", zap.Error(err))
	}
}

func (m *Manager) connectEffect() {
	if err := m.Connect(context.Background()); err != nil {
		m.logger.Error("failed to read access token", zap.Error(err))
	}
}

// probeEffect asks the prober to refresh the token. A successful refresh
// comes back as token-refreshed and reconnects from there.
func (m *Manager) probeEffect() effect {
	return func() {
		if m.prober == nil {
			m.logger.Warn("no prober configured, waiting for a new token")
			return
		}
		go func() {
			if err := m.prober.Probe(context.Background()); err != nil {
				m.logger.Warn("probe did not recover the session", zap.Error(err))
			}
		}()
	}
}
