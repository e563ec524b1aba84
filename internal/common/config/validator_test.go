package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Format(t *testing.T) {
	e := &ValidationError{Field: "api.base_url", Message: "is required"}
	assert.Equal(t, "api.base_url: is required", e.Error())
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := &TetherConfig{API: APIConfig{BaseURL: "http://localhost:5236"}}
		cfg.SetDefaults()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := &TetherConfig{
			API:        APIConfig{BaseURL: "localhost"},
			Connection: ConnectionConfig{URL: "http://localhost/ws"},
			Credential: CredentialConfig{Type: "db"},
			EventBus:   EventBusConfig{Type: "kafka"},
		}
		err := cfg.Validate()
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "api.base_url")
			assert.Contains(t, err.Error(), "connection.url")
			assert.Contains(t, err.Error(), "credential.database.path")
			assert.Contains(t, err.Error(), "event_bus.type")
		}
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		cfg := &TetherConfig{
			API:        APIConfig{BaseURL: "https://api"},
			Credential: CredentialConfig{Type: "db", Database: CredentialDatabaseConfig{Type: "postgres"}},
		}
		cfg.SetDefaults()
		err := cfg.Validate()
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "credential.database.dsn")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := &TetherConfig{
			API:        APIConfig{BaseURL: "https://api"},
			Credential: CredentialConfig{Type: "db", Database: CredentialDatabaseConfig{Type: "oracle", DSN: "x"}},
		}
		err := cfg.Validate()
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "credential.database.type")
		}
	})

	t.Run("redis requires addr", func(t *testing.T) {
		cfg := &TetherConfig{
			API:        APIConfig{BaseURL: "https://api"},
			Credential: CredentialConfig{Type: "redis"},
		}
		cfg.SetDefaults()
		err := cfg.Validate()
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "credential.redis.addr")
		}
	})
}
