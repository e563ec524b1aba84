package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus implements Bus over Redis pub/sub so that every process sharing a
// credential store sees the same session events. Events published here come
// back through the subscription like any other.
type RedisBus struct {
	logger *zap.Logger
	client redis.UniversalClient
	pubsub *redis.PubSub
	topic  string
	hub    *hub
	done   chan struct{}
	once   sync.Once
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus creates a new Redis-backed bus
func NewRedisBus(logger *zap.Logger, cfg config.RedisConfig, bufferSize int) (*RedisBus, error) {
	opts := &redis.UniversalOptions{
		Addrs:    utils.SplitByMultipleDelimiters(cfg.Addr, ";", ","),
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = cfg.DB
	}
	client := redis.NewUniversalClient(opts)

	ctx := context.Background()
	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = config.DefaultBusTopic
	}

	pubsub := client.Subscribe(ctx, topic)
	// Wait for the subscription to be confirmed so no early publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	b := &RedisBus{
		logger: logger.Named("eventbus.redis"),
		client: client,
		pubsub: pubsub,
		topic:  topic,
		done:   make(chan struct{}),
	}
	b.hub = newHub(b.logger, bufferSize)
	go b.handleMessages()

	return b, nil
}

func (b *RedisBus) handleMessages() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			b.logger.Error("failed to unmarshal event",
				zap.Error(err),
				zap.String("payload", msg.Payload))
			continue
		}
		b.hub.broadcast(context.Background(), &e)
	}
}

// Watch implements Bus.Watch
func (b *RedisBus) Watch(ctx context.Context) (<-chan *Event, error) {
	ch, ok := b.hub.watch(ctx)
	if !ok {
		return nil, cnst.ErrBusClosed
	}
	return ch, nil
}

// Publish implements Bus.Publish
func (b *RedisBus) Publish(ctx context.Context, e *Event) error {
	if e == nil {
		return cnst.ErrNilEvent
	}
	if b.hub.isClosed() {
		return cnst.ErrBusClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close implements Bus.Close
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		b.hub.close()
		err = b.pubsub.Close()
		<-b.done
		if cerr := b.client.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
