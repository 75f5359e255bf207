package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tensrai/dashboard-api/internal/ports"
	"github.com/tensrai/dashboard-api/internal/service"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard accounts",
		Long:  `Commands for creating accounts, changing roles and revoking access. Changes are audited as the CLI system actor.`,
	}
	cmd.AddCommand(
		newUsersCreateCmd(a),
		newUsersListCmd(a),
		newUsersSetRoleCmd(a),
		newUsersSetActiveCmd(a, "deactivate", "Block an account and revoke its sessions", false),
		newUsersSetActiveCmd(a, "activate", "Re-enable a blocked account", true),
		newUsersTempPasswordCmd(a),
	)
	return cmd
}

func newUsersCreateCmd(a *app) *cobra.Command {
	var in service.CreateUserInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with a temporary password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Email == "" {
				return errors.New("--email flag is required")
			}
			return a.withDeps(cmd, func(ctx context.Context, deps *adminDeps) error {
				res, err := deps.Users.CreateUser(ctx, service.SystemActor, in)
				if err != nil {
					return err
				}
				return printCreatedUser(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address of the user")
	cmd.Flags().StringVar(&in.DisplayName, "name", "", "Display name of the user")
	cmd.Flags().StringVar(&in.Role, "role", "USER", "Role to assign (USER or ADMIN)")
	return cmd
}

func newUsersListCmd(a *app) *cobra.Command {
	var opts ports.UserListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts ordered by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Limit <= 0 || opts.Offset < 0 {
				return errors.New("--limit must be positive and --offset non-negative")
			}
			return a.withDeps(cmd, func(ctx context.Context, deps *adminDeps) error {
				users, err := deps.Users.ListUsers(ctx, opts)
				if err != nil {
					return err
				}
				return printUsers(cmd.OutOrStdout(), users)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of accounts to show")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of accounts to skip")
	return cmd
}

func newUsersSetRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, deps *adminDeps) error {
				u, err := deps.Users.SetRole(ctx, service.SystemActor, args[0], args[1])
				if err != nil {
					return err
				}
				return writef(cmd.OutOrStdout(), "Updated %s: role=%s\n", u.Email, u.Role)
			})
		},
	}
}

func newUsersSetActiveCmd(a *app, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, deps *adminDeps) error {
				u, err := deps.Users.SetActive(ctx, service.SystemActor, args[0], active)
				if err != nil {
					return err
				}
				verb := "Deactivated"
				if active {
					verb = "Activated"
				}
				return writef(cmd.OutOrStdout(), "%s %s\n", verb, u.Email)
			})
		},
	}
}

func newUsersTempPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "temp-password <user-id>",
		Short: "Issue a new temporary password and sign the user out everywhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDeps(cmd, func(ctx context.Context, deps *adminDeps) error {
				res, err := deps.Users.IssueTempPassword(ctx, service.SystemActor, args[0])
				if err != nil {
					return err
				}
				return writef(cmd.OutOrStdout(), "Temporary password for %s: %s\n", res.User.Email, res.TempPassword)
			})
		},
	}
}
