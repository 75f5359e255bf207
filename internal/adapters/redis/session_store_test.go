package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/testutil"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	return testutil.SetupMiniRedis(t)
}

func testSession(userID string, ttl time.Duration) domainauth.Session {
	now := time.Now()
	return domainauth.Session{
		ID:        "sess-" + userID,
		UserID:    userID,
		Role:      domainauth.RoleUser,
		IssuedAt:  now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "test:")
	ctx := context.Background()

	session := testSession("user-123", 15*time.Minute)
	require.NoError(t, store.Save(ctx, "digest-1", session))

	retrieved, err := store.Get(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	assert.Equal(t, session.UserID, retrieved.UserID)
	assert.Equal(t, session.Role, retrieved.Role)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)

	assert.True(t, mr.Exists("test:session:digest-1"))
	ttl := mr.TTL("test:session:digest-1")
	assert.InDelta(t, (15 * time.Minute).Seconds(), ttl.Seconds(), 2)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "non-existent")
	assert.Equal(t, ErrNotFound, err)

	_, err = store.Get(context.Background(), "")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_SaveRejectsInvalid(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "", testSession("u", time.Minute)))
	assert.Error(t, store.Save(ctx, "k", testSession("", time.Minute)))
	assert.Error(t, store.Save(ctx, "k", testSession("u", -time.Minute)))
}

func TestSessionStore_Delete(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "digest-delete", testSession("user-123", time.Hour)))
	require.NoError(t, store.Delete(ctx, "digest-delete"))

	_, err := store.Get(ctx, "digest-delete")
	assert.Equal(t, ErrNotFound, err)

	members, err := mr.Members("user_sessions:user-123")
	if err == nil {
		assert.NotContains(t, members, "digest-delete")
	}

	// Deleting twice is a no-op.
	assert.NoError(t, store.Delete(ctx, "digest-delete"))
	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_Expiration(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "digest-exp", testSession("user-1", time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "digest-exp")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_DeleteByUser(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", testSession("user-1", time.Hour)))
	require.NoError(t, store.Save(ctx, "b", testSession("user-1", time.Hour)))
	require.NoError(t, store.Save(ctx, "c", testSession("user-2", time.Hour)))

	n, err := store.DeleteByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Get(ctx, "a")
	assert.Equal(t, ErrNotFound, err)
	_, err = store.Get(ctx, "b")
	assert.Equal(t, ErrNotFound, err)

	other, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "user-2", other.UserID)

	n, err = store.DeleteByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}
