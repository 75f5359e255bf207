package redis

// Package redis provides Redis-based adapters for the dashboard API.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// SessionStore is a Redis-based session store for production use.
// It handles TTL semantics automatically based on session ExpiresAt and keeps a
// per-user index so every session of a user can be revoked at once.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, "")
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *SessionStore) sessionKey(key string) string { return s.prefix + "session:" + key }

func (s *SessionStore) userIndexKey(userID string) string {
	return s.prefix + "user_sessions:" + userID
}

func (s *SessionStore) Save(ctx context.Context, key string, sess domainauth.Session) error {
	if key == "" {
		return errors.New("session key cannot be empty")
	}
	if sess.UserID == "" {
		return errors.New("session user ID cannot be empty")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	idx := s.userIndexKey(sess.UserID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(key), data, ttl)
	pipe.SAdd(ctx, idx, key)
	// Sessions share one lifetime, so the latest save always outlives the rest.
	pipe.Expire(ctx, idx, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, key string) (domainauth.Session, error) {
	if key == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.sessionKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	if sess.IsExpired(time.Now()) {
		if deleteErr := s.Delete(ctx, key); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil // Nothing to delete
	}

	sk := s.sessionKey(key)
	data, err := s.client.Get(ctx, sk).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis delete: %w", err)
	}
	if err := s.client.Del(ctx, sk).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	var sess domainauth.Session
	if json.Unmarshal([]byte(data), &sess) == nil && sess.UserID != "" {
		if err := s.client.SRem(ctx, s.userIndexKey(sess.UserID), key).Err(); err != nil {
			return fmt.Errorf("redis unindex session: %w", err)
		}
	}
	return nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	idx := s.userIndexKey(userID)
	keys, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	// One DEL per key keeps the pipeline valid on cluster deployments.
	pipe := s.client.Pipeline()
	dels := make([]*redis.IntCmd, 0, len(keys))
	for _, k := range keys {
		dels = append(dels, pipe.Del(ctx, s.sessionKey(k)))
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis revoke user sessions: %w", err)
	}

	removed := 0
	for _, d := range dels {
		removed += int(d.Val())
	}
	return removed, nil
}

// ErrNotFound is returned when a session is not found.
var ErrNotFound = ports.ErrSessionNotFound
