package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCmd(a))
	return cmd
}

func newAuditListCmd(a *app) *cobra.Command {
	var (
		f      domainaudit.Filter
		action string
		since  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.Limit <= 0 {
				return errors.New("--limit must be positive")
			}
			f.Action = domainaudit.Action(action)
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				f.Since = &t
			}
			return a.withDeps(cmd, func(ctx context.Context, deps *adminDeps) error {
				events, err := deps.Audit.List(ctx, f)
				if err != nil {
					return err
				}
				return printAuditEvents(cmd.OutOrStdout(), events)
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "Only events performed by this user ID")
	cmd.Flags().StringVar(&action, "action", "", "Only events with this action (e.g. user.created)")
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 timestamp or a duration such as 24h")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum number of events to show")
	return cmd
}

// parseSince accepts an RFC3339 timestamp or a look-back duration relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 or a positive duration", s)
	}
	return now.Add(-d), nil
}
