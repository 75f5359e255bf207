package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

const defaultAuditWriteTimeout = 5 * time.Second

// Auditor records security-relevant actions. Implementations never fail the caller.
type Auditor interface {
	Audit(ctx context.Context, ev domainaudit.Event)
}

// AuditServiceOptions groups dependencies for AuditService.
type AuditServiceOptions struct {
	Sink    ports.AuditSink
	Logger  *slog.Logger
	Metrics metrics.AuditMetrics
	// Now overrides the emission clock; defaults to time.Now.
	Now func() time.Time
	// WriteTimeout bounds the sink write; defaults to 5s.
	WriteTimeout time.Duration
}

// AuditService appends audit events to the durable sink and mirrors them to the structured log.
type AuditService struct {
	sink    ports.AuditSink
	logger  *slog.Logger
	metrics metrics.AuditMetrics
	now     func() time.Time
	timeout time.Duration
}

var _ Auditor = (*AuditService)(nil)

// NewAuditService constructs a new AuditService.
func NewAuditService(opts AuditServiceOptions) *AuditService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultAuditWriteTimeout
	}
	return &AuditService{
		sink:    opts.Sink,
		logger:  logger.With("component", "audit"),
		metrics: m,
		now:     now,
		timeout: timeout,
	}
}

// Audit persists ev with a fresh ID and an emission timestamp.
// Sink failures are logged and counted; they never reach the caller.
func (s *AuditService) Audit(ctx context.Context, ev domainaudit.Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = s.now().UTC()

	if s.sink == nil {
		s.logger.WarnContext(ctx, "audit sink not configured", "action", ev.Action)
		s.metrics.IncAuditFailed(string(ev.Action), nil)
		return
	}

	// The record must survive a client that hangs up mid-request.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.sink.Append(writeCtx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to log audit event",
			"error", err,
			"action", ev.Action,
			"user_id", ev.UserID,
			"target_user_id", ev.TargetUserID,
		)
		s.metrics.IncAuditFailed(string(ev.Action), err)
		return
	}

	s.logger.InfoContext(ctx, "Audit event logged",
		"audit_id", ev.ID,
		"user_id", ev.UserID,
		"role", ev.Role,
		"action", ev.Action,
		"target_user_id", ev.TargetUserID,
	)
	s.metrics.IncAuditWritten(string(ev.Action))
}
