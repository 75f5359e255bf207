package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"dashboard"`
	Password string `env:"PASSWORD" envDefault:"dashboard"`
	Name     string `env:"NAME"     envDefault:"dashboard"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // 'require' or stricter in production

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT"   envDefault:"5s"`

	// RunMigrationsOnStart applies the embedded migrations before the API starts serving.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize clamps pool settings to usable values.
func (c *DBConfig) Sanitize() {
	if c.Port <= 0 {
		c.Port = 5432
	}
	if strings.TrimSpace(c.SSLMode) == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns < 0 {
		c.MaxIdleConns = 0
	}
	c.MaxIdleConns = min(c.MaxIdleConns, c.MaxOpenConns)
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Redis deployment modes.
const (
	RedisModeDirect   = "direct"
	RedisModeSentinel = "sentinel"
	RedisModeCluster  = "cluster"
)

// RedisConfig describes the Redis deployment holding sessions, rate-limit windows and
// the invalidation channel.
type RedisConfig struct {
	// URI is host:port or a redis:// / rediss:// URL. In cluster mode it seeds Nodes when
	// no node list is given.
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"       envDefault:"0"`

	Mode             string   `env:"MODE"              envDefault:"direct"`
	Nodes            []string `env:"NODES"`
	MasterName       string   `env:"SENTINEL_MASTER"   envDefault:"mymaster"`
	SentinelPassword string   `env:"SENTINEL_PASSWORD"`

	PoolSize    int           `env:"POOL_SIZE"    envDefault:"0"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`

	// KeyPrefix namespaces every key and channel this service uses.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"dashboard:"`
}

// Sanitize normalises the mode and node list.
func (c *RedisConfig) Sanitize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case RedisModeSentinel, RedisModeCluster:
	default:
		c.Mode = RedisModeDirect
	}

	nodes := c.Nodes[:0]
	for _, n := range c.Nodes {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	c.Nodes = nodes

	c.URI = strings.TrimSpace(c.URI)
	if c.DB < 0 {
		c.DB = 0
	}
	if c.PoolSize < 0 {
		c.PoolSize = 0
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		c.KeyPrefix = "dashboard:"
	}
}
