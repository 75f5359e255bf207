package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"
	"github.com/tensrai/dashboard-api/config"
	"github.com/tensrai/dashboard-api/internal/migrate"
)

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// postgresDSN builds a pgx URL; url.URL escapes credentials.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	q.Set("application_name", "dashboard-api")
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB opens the pool holding accounts and audit logs and verifies it with a ping.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	pg := cfg.DBConfig
	pg.Sanitize()

	db, err := sql.Open("pgx", postgresDSN(pg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(pg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pg.ConnectTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "database connected",
			"host", pg.Host,
			"port", pg.Port,
			"database", pg.Name,
			"max_open_conns", pg.MaxOpenConns,
		)
	}
	return db, nil
}

// ConnectRedis connects to the Redis deployment backing sessions, rate limits and
// session invalidations.
//
//nolint:ireturn // the concrete client depends on the configured mode.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	rc := cfg.RedisConfig
	rc.Sanitize()

	opts, err := redisOptions(rc)
	if err != nil {
		return nil, err
	}
	client := newRedisClient(rc.Mode, opts)

	pingCtx, cancel := context.WithTimeout(ctx, rc.DialTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "redis connected",
			"mode", rc.Mode,
			"addrs", strings.Join(opts.Addrs, ","),
			"key_prefix", rc.KeyPrefix,
		)
	}
	return client, nil
}

// redisOptions translates the config into go-redis universal options. A redis:// URI
// contributes address, credentials, database and TLS settings.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		ClientName:       "dashboard-api",
		Username:         cfg.Username,
		Password:         cfg.Password,
		DB:               cfg.DB,
		PoolSize:         cfg.PoolSize,
		DialTimeout:      cfg.DialTimeout,
		SentinelPassword: cfg.SentinelPassword,
	}

	var uriAddr string
	if cfg.URI != "" {
		if isRedisURL(cfg.URI) {
			parsed, err := redis.ParseURL(cfg.URI)
			if err != nil {
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			uriAddr = parsed.Addr
			opts.DB = parsed.DB
			opts.TLSConfig = parsed.TLSConfig
			if parsed.Username != "" {
				opts.Username = parsed.Username
			}
			if parsed.Password != "" {
				opts.Password = parsed.Password
			}
		} else {
			uriAddr = cfg.URI
		}
	}

	switch cfg.Mode {
	case config.RedisModeSentinel:
		if len(cfg.Nodes) == 0 {
			return nil, errors.New("redis sentinel mode requires REDIS_NODES")
		}
		if strings.TrimSpace(cfg.MasterName) == "" {
			return nil, errors.New("redis sentinel mode requires a master name")
		}
		opts.Addrs = cfg.Nodes
		opts.MasterName = cfg.MasterName
	case config.RedisModeCluster:
		opts.Addrs = cfg.Nodes
		if len(opts.Addrs) == 0 && uriAddr != "" {
			opts.Addrs = []string{uriAddr}
		}
		if len(opts.Addrs) == 0 {
			return nil, errors.New("redis cluster mode requires at least one address")
		}
		// Cluster deployments only expose database 0.
		opts.DB = 0
	default:
		if uriAddr == "" {
			return nil, errors.New("redis direct mode requires REDIS_URI")
		}
		opts.Addrs = []string{uriAddr}
	}
	return opts, nil
}

//nolint:ireturn // the concrete client depends on the configured mode.
func newRedisClient(mode string, opts *redis.UniversalOptions) redis.UniversalClient {
	switch mode {
	case config.RedisModeSentinel:
		return redis.NewFailoverClient(opts.Failover())
	case config.RedisModeCluster:
		return redis.NewClusterClient(opts.Cluster())
	default:
		return redis.NewClient(opts.Simple())
	}
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
