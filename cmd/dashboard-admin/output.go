package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/service"
)

func printCreatedUser(w io.Writer, res *service.CreateUserResult) error {
	if err := writef(w, "Created %s (%s) with role %s\n", res.User.Email, res.User.ID, res.User.Role); err != nil {
		return err
	}
	if err := writef(w, "Temporary password: %s\n", res.TempPassword); err != nil {
		return err
	}
	return writeln(w, "The user must choose a new password at first sign-in.")
}

func printUsers(w io.Writer, users []*domainauth.User) error {
	if len(users) == 0 {
		return writeln(w, "No users found.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tEMAIL\tROLE\tACTIVE\tMUST RESET\tCREATED"); err != nil {
		return err
	}
	for _, u := range users {
		if err := writef(tw, "%s\t%s\t%s\t%t\t%t\t%s\n",
			u.ID, u.Email, u.Role, u.IsActive, u.MustResetPassword, formatTimestamp(u.CreatedAt)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printAuditEvents(w io.Writer, events []domainaudit.Event) error {
	if len(events) == 0 {
		return writeln(w, "No audit events found.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "TIMESTAMP\tACTION\tUSER\tROLE\tTARGET"); err != nil {
		return err
	}
	for _, ev := range events {
		target := ev.TargetUserID
		if target == "" {
			target = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			formatTimestamp(ev.Timestamp), ev.Action, ev.UserID, ev.Role, target); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
