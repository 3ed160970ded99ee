package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"intake"`
	Password string `env:"PASSWORD" envDefault:"intake"`
	Name     string `env:"NAME"     envDefault:"intake"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// Sanitize keeps pool sizes consistent. Each worker's LISTEN holds a connection, so
// the pool must leave room for intake requests.
func (d *DBConfig) Sanitize() {
	if d.MaxOpenConns < 4 {
		d.MaxOpenConns = 4
	}
	if d.MaxIdleConns < 0 {
		d.MaxIdleConns = 0
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if d.ConnMaxLifetime < 0 {
		d.ConnMaxLifetime = 0
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:""`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// StatusCacheConfig controls the Redis cache of terminal status views.
type StatusCacheConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"TTL"     envDefault:"10m"`
}

// Sanitize disables the cache when its TTL is not positive.
func (s *StatusCacheConfig) Sanitize() {
	if s.TTL <= 0 {
		s.Enabled = false
	}
}
