package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

const defaultMigrationTimeout = 5 * time.Minute

func newMigrateCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Applies all pending schema migrations under an advisory lock so concurrent runs are serialized.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				return errors.New("--timeout must be positive")
			}
			if err := a.migrate(cmd.Context(), a, timeout); err != nil {
				return err
			}
			return writeln(cmd.OutOrStdout(), "Migrations applied")
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")
	return cmd
}
