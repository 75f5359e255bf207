package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tensrai/dashboard-api/config"
	"github.com/tensrai/dashboard-api/internal/bootstrap"
)

func loadConfig() (config.AppConfig, error) {
	return bootstrap.LoadConfig()
}

// connectInfra connects Postgres and Redis, closing the database again if Redis fails.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectInfra(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, redis.UniversalClient, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := bootstrap.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	redisClient, err := bootstrap.ConnectRedis(ctx, dbCfg)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return db, redisClient, nil
}

func closeInfra(db *sql.DB, redisClient redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

// openAdminDeps builds the same identity stack the API runs, so revocations reach
// live sessions and every change lands in the audit log.
func openAdminDeps(ctx context.Context, a *app) (*adminDeps, error) {
	db, redisClient, err := connectInfra(ctx, a.logger, &a.cfg)
	if err != nil {
		return nil, err
	}

	identity, err := bootstrap.BuildIdentity(ctx, bootstrap.IdentityDeps{
		Config: &a.cfg,
		DB:     db,
		Redis:  redisClient,
		Logger: a.logger,
	})
	if err != nil {
		return nil, errors.Join(err, closeInfra(db, redisClient))
	}

	return &adminDeps{
		Users: identity.Service,
		Audit: identity.AuditLog,
		close: func() error { return closeInfra(db, redisClient) },
	}, nil
}

func runMigrations(ctx context.Context, a *app, timeout time.Duration) error {
	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: a.cfg.Postgres, Logger: a.logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			a.logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()

	migrateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return bootstrap.RunMigrations(migrateCtx, db, a.logger)
}
