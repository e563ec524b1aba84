package eventbus

import (
	"encoding/json"
	"time"
)

// Type identifies what happened to the session or the connection
type Type string

const (
	// TypeTokenRefreshed is published after a new access token was persisted
	TypeTokenRefreshed Type = "token-refreshed"
	// TypeForcedLogout is published once when the session ended because a refresh failed
	TypeForcedLogout Type = "forced-logout"
	// TypeLoggedOut is published when the user ended the session
	TypeLoggedOut Type = "logged-out"
	// TypeConnected is published when the persistent connection opened
	TypeConnected Type = "connected"
	// TypeMessage carries an inbound business envelope from the persistent connection
	TypeMessage Type = "message"
)

// Lossy reports whether events of type t may be dropped for a watcher that
// falls behind. Only inbound messages are; session lifecycle events are
// always delivered.
func (t Type) Lossy() bool {
	return t == TypeMessage
}

// Event is a single notification on the bus
type Event struct {
	Type Type `json:"type"`
	// Token is set on token-refreshed
	Token string `json:"token,omitempty"`
	// Topic is the envelope discriminator on message events
	Topic    string          `json:"topic,omitempty"`
	Envelope json.RawMessage `json:"envelope,omitempty"`
	At       time.Time       `json:"at"`
}

// NewEvent creates an event of the given type stamped with the current time
func NewEvent(t Type) *Event {
	return &Event{Type: t, At: time.Now()}
}

// TokenRefreshed creates a token-refreshed event for token
func TokenRefreshed(token string) *Event {
	e := NewEvent(TypeTokenRefreshed)
	e.Token = token
	return e
}

// Message creates a message event for an inbound envelope
func Message(topic string, envelope []byte) *Event {
	e := NewEvent(TypeMessage)
	e.Topic = topic
	e.Envelope = append(json.RawMessage(nil), envelope...)
	return e
}
