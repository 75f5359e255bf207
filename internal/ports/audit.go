package ports

import (
	"context"
	"time"

	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
)

// AuditSink durably appends audit events.
type AuditSink interface {
	Append(ctx context.Context, ev domainaudit.Event) error
}

// AuditReader lists recorded audit events, newest first.
type AuditReader interface {
	List(ctx context.Context, filter domainaudit.Filter) ([]domainaudit.Event, error)
}

// RateDecision is the outcome of a rate-limit check.
type RateDecision struct {
	Allowed   bool
	Count     int64
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}
