package config

type (
	// CredentialConfig represents the credential store configuration
	CredentialConfig struct {
		Type     string                   `yaml:"type"` // memory, redis or db
		Redis    RedisConfig              `yaml:"redis"`
		Database CredentialDatabaseConfig `yaml:"database"`
	}

	// CredentialDatabaseConfig represents the database used by the db credential store
	CredentialDatabaseConfig struct {
		Type string `yaml:"type"` // sqlite, postgres or mysql
		Path string `yaml:"path"` // sqlite file path
		DSN  string `yaml:"dsn"`  // connection string for postgres and mysql
	}
)

// IsSQLite reports whether the database is an on-device SQLite file
func (c *CredentialDatabaseConfig) IsSQLite() bool {
	return c.Type == "" || c.Type == "sqlite"
}
