package credential

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/amoylab/tether/internal/common/config"
	"github.com/amoylab/tether/pkg/helper"
)

// Type represents the type of credential store
type Type string

const (
	// TypeMemory keeps credentials for the lifetime of the process
	TypeMemory Type = "memory"
	// TypeRedis shares credentials through Redis
	TypeRedis Type = "redis"
	// TypeDB persists credentials in SQLite, PostgreSQL or MySQL
	TypeDB Type = "db"
)

// NewStore creates a new credential store based on configuration
func NewStore(logger *zap.Logger, cfg *config.CredentialConfig) (Store, error) {
	logger.Info("Initializing credential store", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeMemory:
		return NewMemoryStorage(), nil
	case TypeRedis:
		return NewRedisStorage(cfg.Redis)
	case TypeDB:
		if cfg.Database.IsSQLite() {
			return NewDBStorage(helper.GetDataPath(cfg.Database.Path))
		}
		return OpenDBStorage(DatabaseType(cfg.Database.Type), cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported credential store type: %s", cfg.Type)
	}
}
