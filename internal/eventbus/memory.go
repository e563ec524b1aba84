package eventbus

import (
	"context"

	"github.com/amoylab/tether/internal/common/cnst"
	"go.uber.org/zap"
)

// MemoryBus implements Bus within a single process
type MemoryBus struct {
	hub *hub
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates a new in-process bus with the given per-watcher buffer
func NewMemoryBus(logger *zap.Logger, bufferSize int) *MemoryBus {
	return &MemoryBus{
		hub: newHub(logger.Named("eventbus.memory"), bufferSize),
	}
}

// Watch implements Bus.Watch
func (b *MemoryBus) Watch(ctx context.Context) (<-chan *Event, error) {
	ch, ok := b.hub.watch(ctx)
	if !ok {
		return nil, cnst.ErrBusClosed
	}
	return ch, nil
}

// Publish implements Bus.Publish
func (b *MemoryBus) Publish(ctx context.Context, e *Event) error {
	if e == nil {
		return cnst.ErrNilEvent
	}
	if b.hub.isClosed() {
		return cnst.ErrBusClosed
	}
	b.hub.broadcast(ctx, e)
	return nil
}

// Close implements Bus.Close
func (b *MemoryBus) Close() error {
	b.hub.close()
	return nil
}
