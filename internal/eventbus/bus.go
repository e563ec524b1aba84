package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Bus fans session events out to every watcher. Delivery to a single watcher
// preserves publish order. A watcher that falls behind loses message events;
// lifecycle events wait for room until the watcher goes away, the publish
// context ends or the bus closes.
type Bus interface {
	// Watch returns a channel of events published after the call. The channel
	// is closed when ctx is done or the bus is closed.
	Watch(ctx context.Context) (<-chan *Event, error)
	// Publish delivers e to all current watchers
	Publish(ctx context.Context, e *Event) error
	// Close stops delivery and closes every watcher channel
	Close() error
}

// hub holds the local watchers of a bus
type hub struct {
	logger   *zap.Logger
	size     int
	mu       sync.RWMutex
	watchers map[chan *Event]context.Context
	closed   bool
	done     chan struct{}
	stopOnce sync.Once
}

func newHub(logger *zap.Logger, size int) *hub {
	if size <= 0 {
		size = 1
	}
	return &hub{
		logger:   logger,
		size:     size,
		watchers: make(map[chan *Event]context.Context),
		done:     make(chan struct{}),
	}
}

func (h *hub) watch(ctx context.Context) (chan *Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}

	ch := make(chan *Event, h.size)
	h.watchers[ch] = ctx

	// Start a goroutine to handle context cancellation and cleanup
	go func() {
		<-ctx.Done()
		h.remove(ch)
	}()

	return ch, true
}

func (h *hub) remove(ch chan *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[ch]; ok {
		delete(h.watchers, ch)
		close(ch)
	}
}

func (h *hub) broadcast(ctx context.Context, e *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, watcher := range h.watchers {
		select {
		case ch <- e:
			continue
		default:
		}

		if e.Type.Lossy() {
			h.logger.Warn("watcher channel is full, dropping event",
				zap.String("type", string(e.Type)))
			continue
		}

		h.logger.Debug("watcher channel is full, waiting to deliver",
			zap.String("type", string(e.Type)))
		select {
		case ch <- e:
		case <-watcher.Done():
		case <-h.done:
		case <-ctx.Done():
			h.logger.Warn("publish ended before event was delivered",
				zap.String("type", string(e.Type)), zap.Error(ctx.Err()))
		}
	}
}

func (h *hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *hub) close() {
	// release publishers blocked on a full watcher before taking the lock
	h.stopOnce.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.watchers {
		delete(h.watchers, ch)
		close(ch)
	}
}
