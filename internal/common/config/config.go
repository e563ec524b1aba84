package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/tether/pkg/helper"
	"github.com/amoylab/tether/pkg/trace"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// TetherConfig represents the session client configuration
	TetherConfig struct {
		Logger     LoggerConfig     `yaml:"logger"`
		API        APIConfig        `yaml:"api"`
		Connection ConnectionConfig `yaml:"connection"`
		Credential CredentialConfig `yaml:"credential"`
		EventBus   EventBusConfig   `yaml:"event_bus"`
		Metrics    MetricsConfig    `yaml:"metrics"`
		Tracing    trace.Config     `yaml:"tracing"`
	}

	// APIConfig represents the authenticated request client configuration
	APIConfig struct {
		BaseURL       string        `yaml:"base_url"`
		RefreshPath   string        `yaml:"refresh_path"`
		LoginPath     string        `yaml:"login_path"`
		LogoutPath    string        `yaml:"logout_path"`
		ProbePath     string        `yaml:"probe_path"`     // endpoint hit to provoke a refresh
		RenewalHeader string        `yaml:"renewal_header"` // response header carrying a replacement access token
		Timeout       time.Duration `yaml:"timeout"`
	}

	// ConnectionConfig represents the persistent connection configuration
	ConnectionConfig struct {
		URL               string        `yaml:"url"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
		DialTimeout       time.Duration `yaml:"dial_timeout"`
		ReadLimit         int64         `yaml:"read_limit"`
	}

	// MetricsConfig represents the prometheus metrics configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Addr      string    `yaml:"addr"`
		Path      string    `yaml:"path"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}

	// MockServerConfig represents the mock auth service configuration
	MockServerConfig struct {
		Port            int               `yaml:"port"`
		SecretKey       string            `yaml:"secret_key"`
		AccessDuration  time.Duration     `yaml:"access_duration"`
		RefreshDuration time.Duration     `yaml:"refresh_duration"`
		RenewalWindow   time.Duration     `yaml:"renewal_window"` // emit the renewal header when the token expires within this window
		RenewalHeader   string            `yaml:"renewal_header"`
		Users           map[string]string `yaml:"users"` // username to password
		Logger          LoggerConfig      `yaml:"logger"`
	}
)

type Type interface {
	TetherConfig | MockServerConfig
}

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig[T Type](filename string) (*T, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	switch c := any(&cfg).(type) {
	case *TetherConfig:
		c.SetDefaults()
	case *MockServerConfig:
		c.SetDefaults()
	}

	return &cfg, cfgPath, nil
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
