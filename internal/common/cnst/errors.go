package cnst

import "errors"

var (
	// ErrBusClosed is returned when using a closed event bus
	ErrBusClosed = errors.New("event bus is closed")
	// ErrEmptyKey is returned when a credential key is empty
	ErrEmptyKey = errors.New("credential key cannot be empty")
	// ErrNilEvent is returned when a nil event is published
	ErrNilEvent = errors.New("event cannot be nil")
)
