package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
)

// BeginInput carries inputs for initiating an SSO flow.
type BeginInput struct {
	RedirectURL string
}

// SSOProvider initiates and completes a single sign-on flow against an IdP.
type SSOProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
	// RedirectURL must match the URL passed to Begin when one was given.
	RedirectURL string
}

// ErrSessionNotFound is returned by a SessionStore when no live session matches the key.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions keyed by a digest of the bearer token.
// Implementations must expire records at Session.ExpiresAt.
type SessionStore interface {
	Save(ctx context.Context, key string, sess domainauth.Session) error
	Get(ctx context.Context, key string) (domainauth.Session, error)
	Delete(ctx context.Context, key string) error
	// DeleteByUser removes every session belonging to userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// SessionInvalidator fans out user-level revocations so every instance drops cached sessions.
type SessionInvalidator interface {
	Publish(ctx context.Context, userID string) error
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// CreateUserParams groups the fields required to create an account.
type CreateUserParams struct {
	Email              string
	DisplayName        string
	Role               domainauth.Role
	PasswordHash       string
	TempPasswordHash   string
	TempPasswordExpiry *time.Time
	MustResetPassword  bool
}

// UserListOptions paginates user listings.
type UserListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists dashboard accounts.
type UserRepository interface {
	Create(ctx context.Context, params CreateUserParams) (*domainauth.User, error)
	GetByID(ctx context.Context, id string) (*domainauth.User, error)
	GetByEmail(ctx context.Context, email string) (*domainauth.User, error)
	List(ctx context.Context, opts UserListOptions) ([]*domainauth.User, error)
	// UpdatePassword sets the permanent password and clears any temporary password state.
	UpdatePassword(ctx context.Context, id, passwordHash, displayName string) (*domainauth.User, error)
	SetTempPassword(ctx context.Context, id, tempHash string, expiry time.Time) (*domainauth.User, error)
	SetRole(ctx context.Context, id string, role domainauth.Role) (*domainauth.User, error)
	SetActive(ctx context.Context, id string, active bool) (*domainauth.User, error)
	// UpsertSSO links an IdP subject to the account with the same email, creating it when absent.
	UpsertSSO(ctx context.Context, subject, email, displayName string, role domainauth.Role) (*domainauth.User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hash.
	Compare(hash, password string) error
}
