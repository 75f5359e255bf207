package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tensrai/dashboard-api/config"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/ports"
	"github.com/tensrai/dashboard-api/internal/service"
)

// userAdmin is the slice of the identity service the CLI drives.
type userAdmin interface {
	ListUsers(ctx context.Context, opts ports.UserListOptions) ([]*domainauth.User, error)
	CreateUser(ctx context.Context, actor service.Actor, in service.CreateUserInput) (*service.CreateUserResult, error)
	IssueTempPassword(ctx context.Context, actor service.Actor, userID string) (*service.CreateUserResult, error)
	SetRole(ctx context.Context, actor service.Actor, userID, role string) (*domainauth.User, error)
	SetActive(ctx context.Context, actor service.Actor, userID string, active bool) (*domainauth.User, error)
}

// adminDeps holds the services a command runs against and releases their connections.
type adminDeps struct {
	Users userAdmin
	Audit ports.AuditReader
	close func() error
}

func (d *adminDeps) Close() error {
	if d == nil || d.close == nil {
		return nil
	}
	return d.close()
}

// app carries shared state between the root command and its subcommands.
// The function fields are swapped out in tests.
type app struct {
	logger *slog.Logger
	cfg    config.AppConfig

	loadConfig func() (config.AppConfig, error)
	open       func(ctx context.Context, a *app) (*adminDeps, error)
	migrate    func(ctx context.Context, a *app, timeout time.Duration) error
}

func newApp(logger *slog.Logger) *app {
	return &app{
		logger:     logger,
		loadConfig: loadConfig,
		open:       openAdminDeps,
		migrate:    runMigrations,
	}
}

// withDeps opens the identity stack, runs fn and closes the connections.
func (a *app) withDeps(cmd *cobra.Command, fn func(ctx context.Context, deps *adminDeps) error) (err error) {
	ctx := cmd.Context()
	deps, err := a.open(ctx, a)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close connections: %w", cerr))
		}
	}()
	return fn(ctx, deps)
}
