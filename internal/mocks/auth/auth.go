package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tensrai/dashboard-api/internal/data"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SSOProvider    = (*MockSSOProvider)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.UserRepository = (*MemoryUserRepo)(nil)
)

// MockSSOProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockSSOProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
	// LastRedirect records the redirect URL passed to the most recent Begin.
	LastRedirect string
}

// NewMockSSOProvider creates a MockSSOProvider with sensible defaults.
func NewMockSSOProvider() *MockSSOProvider {
	return &MockSSOProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			Subject:     "mock-subject-1",
			Email:       "mock.user@example.com",
			DisplayName: "Mock User",
			Groups:      []string{"users"},
		},
	}
}

func (m *MockSSOProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.LastRedirect = in.RedirectURL

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	return authURL, fmt.Sprintf("state-%d", m.callCount), fmt.Sprintf("nonce-%d", m.callCount), nil
}

func (m *MockSSOProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}

	id := m.DefaultUser
	id.ExpiresAt = time.Now().Add(time.Hour)
	return id, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemorySessionStore) Save(_ context.Context, key string, sess domainauth.Session) error {
	if key == "" {
		return errors.New("session key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, key string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	if sess.IsExpired(m.now()) {
		delete(m.sessions, key)
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemorySessionStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many sessions are stored, expired or not.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MemoryUserRepo is an in-memory UserRepository for unit tests.
// Emails are matched case-insensitively like the Postgres repository.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*domainauth.User
}

// NewMemoryUserRepo creates an empty repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users: make(map[string]*domainauth.User),
	}
}

func clone(u *domainauth.User) *domainauth.User {
	c := *u
	if u.TempPasswordExpiry != nil {
		exp := *u.TempPasswordExpiry
		c.TempPasswordExpiry = &exp
	}
	return &c
}

func (m *MemoryUserRepo) byEmail(email string) *domainauth.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (m *MemoryUserRepo) Create(_ context.Context, p ports.CreateUserParams) (*domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byEmail(p.Email) != nil {
		return nil, data.ErrEmailExists
	}
	role := p.Role
	if role == "" {
		role = domainauth.RoleUser
	}
	now := time.Now().UTC()
	u := &domainauth.User{
		ID:                 uuid.NewString(),
		Email:              strings.ToLower(strings.TrimSpace(p.Email)),
		DisplayName:        p.DisplayName,
		Role:               role,
		IsActive:           true,
		MustResetPassword:  p.MustResetPassword,
		PasswordHash:       p.PasswordHash,
		TempPasswordHash:   p.TempPasswordHash,
		TempPasswordExpiry: p.TempPasswordExpiry,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.users[u.ID] = u
	return clone(u), nil
}

func (m *MemoryUserRepo) GetByID(_ context.Context, id string) (*domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	return clone(u), nil
}

func (m *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byEmail(email)
	if u == nil {
		return nil, data.ErrUserNotFound
	}
	return clone(u), nil
}

func (m *MemoryUserRepo) List(_ context.Context, opts ports.UserListOptions) ([]*domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domainauth.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryUserRepo) update(id string, fn func(u *domainauth.User)) (*domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

func (m *MemoryUserRepo) UpdatePassword(_ context.Context, id, passwordHash, displayName string) (*domainauth.User, error) {
	return m.update(id, func(u *domainauth.User) {
		u.PasswordHash = passwordHash
		u.TempPasswordHash = ""
		u.TempPasswordExpiry = nil
		u.MustResetPassword = false
		if displayName != "" {
			u.DisplayName = displayName
		}
	})
}

func (m *MemoryUserRepo) SetTempPassword(_ context.Context, id, tempHash string, expiry time.Time) (*domainauth.User, error) {
	return m.update(id, func(u *domainauth.User) {
		u.TempPasswordHash = tempHash
		u.TempPasswordExpiry = &expiry
		u.MustResetPassword = true
	})
}

func (m *MemoryUserRepo) SetRole(_ context.Context, id string, role domainauth.Role) (*domainauth.User, error) {
	return m.update(id, func(u *domainauth.User) { u.Role = role })
}

func (m *MemoryUserRepo) SetActive(_ context.Context, id string, active bool) (*domainauth.User, error) {
	return m.update(id, func(u *domainauth.User) { u.IsActive = active })
}

func (m *MemoryUserRepo) UpsertSSO(ctx context.Context, _, email, displayName string, role domainauth.Role) (*domainauth.User, error) {
	m.mu.Lock()
	existing := m.byEmail(email)
	m.mu.Unlock()
	if existing == nil {
		return m.Create(ctx, ports.CreateUserParams{Email: email, DisplayName: displayName, Role: role})
	}
	return m.update(existing.ID, func(u *domainauth.User) {
		u.Role = role
		if u.DisplayName == "" {
			u.DisplayName = displayName
		}
	})
}

// Put stores u verbatim, replacing any account with the same ID.
func (m *MemoryUserRepo) Put(u *domainauth.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = clone(u)
}
