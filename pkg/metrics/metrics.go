package metrics

import (
	"net/http"
	"time"

	"github.com/amoylab/tether/internal/common/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session layer collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	namespace     string
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	refreshCnt    *prometheus.CounterVec
	refreshDur    prometheus.Histogram
	pendingReqs   prometheus.Gauge
	renewalCnt    prometheus.Counter
	dialCnt       *prometheus.CounterVec
	reconnectCnt  prometheus.Counter
	heartbeatCnt  prometheus.Counter
	connState     *prometheus.GaugeVec
	inboundMsgCnt *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "client_requests_total"}, []string{"method", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "client_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method"})
	r.MustRegister(httpReqCnt, httpDur)

	refreshCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "token_refresh_total"}, []string{"result"})
	refreshDur := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "token_refresh_duration_seconds", Buckets: cfg.Buckets})
	pendingReqs := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "refresh_pending_requests"})
	renewalCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "token_header_renewal_total"})
	r.MustRegister(refreshCnt, refreshDur, pendingReqs, renewalCnt)

	dialCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "connection_dial_total"}, []string{"result"})
	reconnectCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "connection_reconnect_scheduled_total"})
	heartbeatCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "connection_heartbeat_sent_total"})
	connState := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "connection_state"}, []string{"state"})
	inboundMsgCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "connection_inbound_messages_total"}, []string{"event"})
	r.MustRegister(dialCnt, reconnectCnt, heartbeatCnt, connState, inboundMsgCnt)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		refreshCnt:    refreshCnt,
		refreshDur:    refreshDur,
		pendingReqs:   pendingReqs,
		renewalCnt:    renewalCnt,
		dialCnt:       dialCnt,
		reconnectCnt:  reconnectCnt,
		heartbeatCnt:  heartbeatCnt,
		connState:     connState,
		inboundMsgCnt: inboundMsgCnt,
	}
}

func (m *Metrics) RequestDone(method, status string, since time.Time) {
	if m == nil {
		return
	}
	m.httpReqCnt.WithLabelValues(method, status).Inc()
	m.httpDur.WithLabelValues(method).Observe(time.Since(since).Seconds())
}

func (m *Metrics) RefreshDone(result string, since time.Time) {
	if m == nil {
		return
	}
	m.refreshCnt.WithLabelValues(result).Inc()
	m.refreshDur.Observe(time.Since(since).Seconds())
}

func (m *Metrics) PendingAdd(delta float64) {
	if m == nil {
		return
	}
	m.pendingReqs.Add(delta)
}

func (m *Metrics) HeaderRenewal() {
	if m == nil {
		return
	}
	m.renewalCnt.Inc()
}

func (m *Metrics) Dial(result string) {
	if m == nil {
		return
	}
	m.dialCnt.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectCnt.Inc()
}

func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeatCnt.Inc()
}

// ConnectionState marks current as the only active state
func (m *Metrics) ConnectionState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.connState.WithLabelValues(s).Set(0)
	}
	m.connState.WithLabelValues(current).Set(1)
}

func (m *Metrics) InboundMessage(event string) {
	if m == nil {
		return
	}
	m.inboundMsgCnt.WithLabelValues(event).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
