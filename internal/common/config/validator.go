package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for values that would make the session layer unusable
func (c *TetherConfig) Validate() error {
	var errs []*ValidationError

	if c.API.BaseURL == "" {
		errs = append(errs, &ValidationError{Field: "api.base_url", Message: "is required"})
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, &ValidationError{Field: "api.base_url", Message: "must be an absolute http(s) URL"})
	}

	if c.Connection.URL != "" {
		u, err := url.Parse(c.Connection.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, &ValidationError{Field: "connection.url", Message: "must be an absolute ws(s) URL"})
		}
	}

	switch c.Credential.Type {
	case "memory":
	case "redis":
		if c.Credential.Redis.Addr == "" {
			errs = append(errs, &ValidationError{Field: "credential.redis.addr", Message: "is required for redis credential store"})
		}
	case "db":
		db := c.Credential.Database
		switch {
		case db.IsSQLite():
			if db.Path == "" {
				errs = append(errs, &ValidationError{Field: "credential.database.path", Message: "is required for sqlite credential store"})
			}
		case db.Type == "postgres" || db.Type == "mysql":
			if db.DSN == "" {
				errs = append(errs, &ValidationError{Field: "credential.database.dsn", Message: fmt.Sprintf("is required for %s credential store", db.Type)})
			}
		default:
			errs = append(errs, &ValidationError{Field: "credential.database.type", Message: fmt.Sprintf("unsupported type %q", db.Type)})
		}
	default:
		errs = append(errs, &ValidationError{Field: "credential.type", Message: fmt.Sprintf("unsupported type %q", c.Credential.Type)})
	}

	switch c.EventBus.Type {
	case "memory":
	case "redis":
		if c.EventBus.Redis.Addr == "" {
			errs = append(errs, &ValidationError{Field: "event_bus.redis.addr", Message: "is required for redis event bus"})
		}
	default:
		errs = append(errs, &ValidationError{Field: "event_bus.type", Message: fmt.Sprintf("unsupported type %q", c.EventBus.Type)})
	}

	if len(errs) > 0 {
		var sb strings.Builder
		for i, err := range errs {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(err.Error())
		}
		return fmt.Errorf("%s", sb.String())
	}
	return nil
}
