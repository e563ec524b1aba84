package errorx

import (
	"errors"
	"fmt"
	"net/http"
)

// RefreshReason classifies why a token refresh failed
type RefreshReason string

const (
	ReasonNetwork             RefreshReason = "network"               // transport error reaching the refresh endpoint
	ReasonStatus              RefreshReason = "status"                // non-2xx transport status
	ReasonCode                RefreshReason = "code"                  // 2xx with a non-200 body code
	ReasonContract            RefreshReason = "contract"              // 200 without data.access_token
	ReasonMissingRefreshToken RefreshReason = "missing_refresh_token" // nothing to exchange
	ReasonStore               RefreshReason = "store"                 // credential store unavailable
)

// RefreshError describes a failed refresh round-trip. Every RefreshError ends
// the session.
type RefreshError struct {
	Reason RefreshReason
	Status int
	Code   int64
	Err    error
}

func (e *RefreshError) Error() string {
	msg := fmt.Sprintf("token refresh failed (%s)", e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" code=%d", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() error { return e.Err }

// HandshakeError is returned by a dialer when the remote end rejected the
// connection during the opening handshake
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake rejected with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("handshake rejected with status %d", e.Status)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// IsAuthShaped reports whether err is a handshake rejected with 401 or 403
func IsAuthShaped(err error) bool {
	var he *HandshakeError
	if !errors.As(err, &he) {
		return false
	}
	return he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden
}

// ErrSessionExpired marks a response synthesised after a forced logout
var ErrSessionExpired = errors.New("session expired")

// ErrLoginRejected is returned when the login endpoint did not issue a token
var ErrLoginRejected = errors.New("login rejected")
