package eventbus

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisBus_CrossInstance(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := config.RedisConfig{Addr: mr.Addr(), Topic: "test:events"}
	pub, err := NewRedisBus(zap.NewNop(), cfg, 8)
	require.NoError(t, err)
	defer pub.Close()
	sub, err := NewRedisBus(zap.NewNop(), cfg, 8)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := pub.Watch(ctx)
	require.NoError(t, err)
	remote, err := sub.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, Message("order", json.RawMessage(`{"event":"order","id":7}`))))

	for _, w := range []<-chan *Event{local, remote} {
		e := recv(t, w)
		assert.Equal(t, TypeMessage, e.Type)
		assert.Equal(t, "order", e.Topic)
		assert.JSONEq(t, `{"event":"order","id":7}`, string(e.Envelope))
	}
}

func TestRedisBus_IgnoresGarbage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b, err := NewRedisBus(zap.NewNop(), config.RedisConfig{Addr: mr.Addr()}, 8)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := b.Watch(ctx)
	require.NoError(t, err)

	mr.Publish(config.DefaultBusTopic, "not json")
	require.NoError(t, b.Publish(ctx, NewEvent(TypeLoggedOut)))

	assert.Equal(t, TypeLoggedOut, recv(t, w).Type)
}

func TestRedisBus_Close(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b, err := NewRedisBus(zap.NewNop(), config.RedisConfig{Addr: mr.Addr()}, 8)
	require.NoError(t, err)

	w, err := b.Watch(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())

	_, ok := <-w
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(context.Background(), NewEvent(TypeConnected)), cnst.ErrBusClosed)
}
