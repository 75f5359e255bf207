package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tensrai/dashboard-api/internal/data/database"
	"github.com/tensrai/dashboard-api/internal/data/pgxutil"
	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// AuditLogRepo appends and lists audit records. It never updates or deletes rows.
type AuditLogRepo struct {
	DB *sql.DB
}

// NewAuditLogRepo creates a new AuditLogRepo.
func NewAuditLogRepo(db *sql.DB) *AuditLogRepo {
	return &AuditLogRepo{DB: db}
}

var (
	_ ports.AuditSink   = (*AuditLogRepo)(nil)
	_ ports.AuditReader = (*AuditLogRepo)(nil)
)

// Append inserts one audit record.
func (r *AuditLogRepo) Append(ctx context.Context, ev domainaudit.Event) error {
	if ev.ID == "" {
		return errors.New("audit event ID is required")
	}
	if ev.Action == "" {
		return errors.New("audit event action is required")
	}

	var metadata []byte
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = b
	}

	var target *string
	if ev.TargetUserID != "" {
		target = &ev.TargetUserID
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO audit_logs (id, user_id, role, action, target_user_id, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.ID, ev.UserID, ev.Role, string(ev.Action), target, metadata, ev.Timestamp.UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("append audit event: %w", apperrors.MapDBError(err))
	}
	return nil
}

const auditColumns = `id::text AS id, user_id, role, action, target_user_id, metadata, created_at`

type auditRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Role         string    `db:"role"`
	Action       string    `db:"action"`
	TargetUserID *string   `db:"target_user_id"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
}

// List returns audit records newest first.
func (r *AuditLogRepo) List(ctx context.Context, f domainaudit.Filter) ([]domainaudit.Event, error) {
	query, args := buildAuditListQuery(f)

	var rows []auditRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(res, pgx.RowToStructByName[auditRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", apperrors.MapDBError(err))
	}

	out := make([]domainaudit.Event, 0, len(rows))
	for _, row := range rows {
		ev := domainaudit.Event{
			ID:        row.ID,
			UserID:    row.UserID,
			Role:      row.Role,
			Action:    domainaudit.Action(row.Action),
			Timestamp: row.CreatedAt,
		}
		if row.TargetUserID != nil {
			ev.TargetUserID = *row.TargetUserID
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata %s: %w", row.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func buildAuditListQuery(f domainaudit.Filter) (string, []any) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := database.NewListQuery("audit_logs", auditColumns,
		database.WithOrderBy("created_at", true),
		database.WithOrderBy("id", true),
		database.WithLimit(limit),
	)
	if f.UserID != "" {
		q.Where(database.Where("user_id", database.Equal, f.UserID))
	}
	if f.Action != "" {
		q.Where(database.Where("action", database.Equal, string(f.Action)))
	}
	if f.Since != nil {
		q.Where(database.Where("created_at", database.GreaterThanOrEqual, f.Since.UTC()))
	}
	return q.Build()
}
