package config

import "time"

const (
	DefaultRefreshPath       = "/auth/refresh"
	DefaultLoginPath         = "/auth/login"
	DefaultLogoutPath        = "/auth/logout"
	DefaultProbePath         = "/api/profile"
	DefaultRenewalHeader     = "X-Renewed-Token"
	DefaultRequestTimeout    = 15 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultReadLimit         = 1 << 20
	DefaultBusBufferSize     = 64
	DefaultBusTopic          = "tether:session:events"
	DefaultCredentialPrefix  = "tether:credential"
)

// SetDefaults fills in zero values with the built-in defaults
func (c *TetherConfig) SetDefaults() {
	c.API.SetDefaults()
	c.Connection.SetDefaults()
	c.Credential.SetDefaults()
	c.EventBus.SetDefaults()

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9464"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "tether"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "tether"
	}
}

// SetDefaults fills in zero values with the built-in defaults
func (c *APIConfig) SetDefaults() {
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.LogoutPath == "" {
		c.LogoutPath = DefaultLogoutPath
	}
	if c.ProbePath == "" {
		c.ProbePath = DefaultProbePath
	}
	if c.RenewalHeader == "" {
		c.RenewalHeader = DefaultRenewalHeader
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRequestTimeout
	}
}

// SetDefaults fills in zero values with the built-in defaults
func (c *ConnectionConfig) SetDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
}

// SetDefaults fills in zero values with the built-in defaults
func (c *CredentialConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "memory"
	}
	if c.Redis.ClusterType == "" {
		c.Redis.ClusterType = "single"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultCredentialPrefix
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
}

// SetDefaults fills in zero values with the built-in defaults
func (c *EventBusConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "memory"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBusBufferSize
	}
	if c.Redis.ClusterType == "" {
		c.Redis.ClusterType = "single"
	}
	if c.Redis.Topic == "" {
		c.Redis.Topic = DefaultBusTopic
	}
}

// SetDefaults fills in zero values with the built-in defaults
func (c *MockServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 5236
	}
	if c.AccessDuration <= 0 {
		c.AccessDuration = 15 * time.Minute
	}
	if c.RefreshDuration <= 0 {
		c.RefreshDuration = 7 * 24 * time.Hour
	}
	if c.RenewalHeader == "" {
		c.RenewalHeader = DefaultRenewalHeader
	}
	if len(c.Users) == 0 {
		c.Users = map[string]string{"alice": "secret"}
	}
}
