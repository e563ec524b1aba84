package config

type (
	// EventBusConfig represents the configuration for the session event bus
	EventBusConfig struct {
		Type       string      `yaml:"type"`        // memory or redis
		BufferSize int         `yaml:"buffer_size"` // per-watcher channel capacity
		Redis      RedisConfig `yaml:"redis"`
	}

	// RedisConfig represents a redis connection shared by the redis backed components
	RedisConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel or cluster
		Addr        string `yaml:"addr"`         // multiple addresses separated by ';' or ','
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Topic       string `yaml:"topic"`
		Prefix      string `yaml:"prefix"`
	}
)
