package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tensrai/dashboard-api/internal/ports"
)

var _ ports.SessionInvalidator = (*Invalidations)(nil)

// Invalidations broadcasts user-level session revocations over Redis pub/sub.
type Invalidations struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewInvalidations creates a broadcaster on prefix+"session_invalidations".
func NewInvalidations(client redis.UniversalClient, prefix string, logger *slog.Logger) *Invalidations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidations{
		client:  client,
		channel: prefix + "session_invalidations",
		logger:  logger,
	}
}

// Publish announces that every cached session of userID must be dropped.
func (i *Invalidations) Publish(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if err := i.client.Publish(ctx, i.channel, userID).Err(); err != nil {
		return fmt.Errorf("redis publish invalidation: %w", err)
	}
	return nil
}

// Listen calls purge for each announced user ID until ctx is done.
// ready, when non-nil, is closed once the subscription is confirmed.
func (i *Invalidations) Listen(ctx context.Context, purge func(userID string), ready chan<- struct{}) error {
	sub := i.client.Subscribe(ctx, i.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe invalidations: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == "" {
				continue
			}
			i.logger.DebugContext(ctx, "session invalidation received", "user_id", msg.Payload)
			purge(msg.Payload)
		}
	}
}
