package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dashboard-admin",
		Short: "Administrative commands for the dashboard API",
		Long: `dashboard-admin manages dashboard accounts and inspects the audit trail
directly against the configured Postgres and Redis deployments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(a), newUsersCmd(a), newAuditCmd(a))
	return root
}
