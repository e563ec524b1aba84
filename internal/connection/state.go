package connection

import (
	"time"

	"github.com/amoylab/tether/internal/common/errorx"
	"go.uber.org/zap"
)

// State of the persistent connection
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

var stateNames = []string{"disconnected", "connecting", "connected"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// input is anything that can move the state machine
type input interface {
	name() string
}

type (
	// connectInput asks for a channel opened with token
	connectInput struct{ token string }
	// dialedInput reports the outcome of the dial started for gen
	dialedInput struct {
		gen uint64
		ch  Channel
		err error
	}
	// droppedInput reports that the channel of gen stopped working
	droppedInput struct {
		gen uint64
		err error
	}
	// reconnectInput fires when the reconnect timer numbered seq expires
	reconnectInput struct{ seq uint64 }
	// resetInput tears down without giving up on the session
	resetInput struct{}
	// closeInput tears down and stops reconnecting
	closeInput struct{}
)

func (connectInput) name() string   { return "connect" }
func (dialedInput) name() string    { return "dialed" }
func (droppedInput) name() string   { return "dropped" }
func (reconnectInput) name() string { return "reconnect" }
func (resetInput) name() string     { return "reset" }
func (closeInput) name() string     { return "close" }

// effect is work decided under the lock and carried out after releasing it
type effect func()

// apply feeds in to the state machine and runs the resulting effects
func (m *Manager) apply(in input) {
	m.mu.Lock()
	effects := m.transition(in)
	state := m.state
	m.mu.Unlock()

	m.logger.Debug("input applied", zap.String("input", in.name()), zap.Stringer("state", state))

	for _, e := range effects {
		e()
	}
}

// transition is the only place where the manager state changes. It must be
// called with m.mu held.
func (m *Manager) transition(in input) []effect {
	var effects []effect

	switch in := in.(type) {
	case connectInput:
		if m.state != Disconnected {
			return nil
		}
		m.manualClose = false
		m.stopReconnect()
		m.gen++
		m.setState(Connecting)
		gen, token := m.gen, in.token
		effects = append(effects, func() { go m.dial(gen, token) })

	case dialedInput:
		if in.gen != m.gen || m.state != Connecting {
			// superseded while dialling
			if in.ch != nil {
				m.metrics.Dial("stale")
				effects = append(effects, closeEffect(in.ch))
			}
			return effects
		}
		if in.err != nil {
			m.setState(Disconnected)
			if errorx.IsAuthShaped(in.err) {
				m.metrics.Dial("auth")
				m.logger.Warn("connection rejected, provoking token refresh", zap.Error(in.err))
				effects = append(effects, m.probeEffect())
				return effects
			}
			m.metrics.Dial("error")
			m.logger.Warn("failed to open connection", zap.Error(in.err))
			m.scheduleReconnect()
			return effects
		}
		m.metrics.Dial("success")
		m.stopReconnect()
		m.channel = in.ch
		m.setState(Connected)
		effects = append(effects, m.openEffect(in.gen, in.ch), m.publishConnected)

	case droppedInput:
		if in.gen != m.gen {
			return nil
		}
		if m.channel != nil {
			m.logger.Info("connection closed", zap.Error(in.err))
			effects = append(effects, closeEffect(m.channel))
		}
		m.stopHeartbeat()
		m.channel = nil
		m.setState(Disconnected)
		if !m.manualClose {
			m.scheduleReconnect()
		}

	case reconnectInput:
		if m.reconnect == nil || in.seq != m.reconnectSeq {
			return nil
		}
		m.reconnect = nil
		if m.manualClose {
			return nil
		}
		effects = append(effects, m.connectEffect)

	case resetInput:
		effects = append(effects, m.teardown()...)

	case closeInput:
		m.manualClose = true
		effects = append(effects, m.teardown()...)
	}

	return effects
}

// teardown stops the heartbeat, cancels the reconnect timer and closes the
// current channel. Bumping the generation discards callbacks still in flight
// from the old channel or an unfinished dial.
func (m *Manager) teardown() []effect {
	var effects []effect
	m.gen++
	m.stopHeartbeat()
	m.stopReconnect()
	if m.channel != nil {
		effects = append(effects, closeEffect(m.channel))
		m.channel = nil
	}
	m.setState(Disconnected)
	return effects
}

// scheduleReconnect arms the reconnect timer unless one is already pending
func (m *Manager) scheduleReconnect() {
	if m.reconnect != nil {
		return
	}
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnect = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.apply(reconnectInput{seq: seq})
	})
	m.metrics.ReconnectScheduled()
	m.logger.Info("reconnect scheduled", zap.Duration("delay", m.cfg.ReconnectDelay))
}

func (m *Manager) stopReconnect() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) stopHeartbeat() {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state changed", zap.Stringer("from", m.state), zap.Stringer("to", s))
	m.state = s
	m.metrics.ConnectionState(s.String(), stateNames...)
}

func closeEffect(ch Channel) effect {
	return func() {
		go func() { _ = ch.Close() }()
	}
}
