package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the Store interface using Redis, letting several
// processes of the same user share one session
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(cfg config.RedisConfig) (*RedisStorage, error) {
	client := newRedisClient(cfg)

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = config.DefaultCredentialPrefix
	}
	return &RedisStorage{
		client: client,
		prefix: prefix + ":",
	}, nil
}

func newRedisClient(cfg config.RedisConfig) redis.UniversalClient {
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
	return redis.NewUniversalClient(opts)
}

// Get retrieves a value by key
func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Set stores a value without expiry; token lifetime is owned by the server
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

// Clear deletes a value
func (s *RedisStorage) Clear(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Close releases the underlying connection pool
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
