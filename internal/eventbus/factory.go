package eventbus

import (
	"fmt"

	"github.com/amoylab/tether/internal/common/config"
	"go.uber.org/zap"
)

// NewBus creates a new event bus based on configuration
func NewBus(logger *zap.Logger, cfg *config.EventBusConfig) (Bus, error) {
	logger.Info("Initializing event bus", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "memory":
		return NewMemoryBus(logger, cfg.BufferSize), nil
	case "redis":
		return NewRedisBus(logger, cfg.Redis, cfg.BufferSize)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
