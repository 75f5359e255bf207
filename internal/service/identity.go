package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tensrai/dashboard-api/internal/data"
	"github.com/tensrai/dashboard-api/internal/data/cryptoutil"
	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

const (
	sessionTokenBytes = 32
	// sharedLoadTimeout bounds a session lookup shared by concurrent resolvers.
	sharedLoadTimeout = 10 * time.Second
)

// Identity errors surfaced to handlers. Each carries the status-bearing AppError code.
var (
	ErrInvalidCredentials  = apperrors.Unauthorized("Invalid email or password")
	ErrTempPasswordExpired = apperrors.Unauthorized("Temporary password has expired")
	ErrAccountDisabled     = apperrors.Forbidden("Account is deactivated")
	ErrSignUpDisabled      = apperrors.Forbidden("Sign up is disabled")
	ErrNoSession           = apperrors.Unauthorized("Authentication required")
	ErrSSODisabled         = apperrors.NotFound("Single sign-on is not configured")
	ErrSelfModification    = apperrors.Forbidden("Administrators cannot change their own role or status")
)

// TokenDigester derives the storage key for a bearer token.
type TokenDigester interface {
	Digest(token string) string
}

// IdentityConfig tunes session lifetime and password policy.
type IdentityConfig struct {
	CookieName        string
	SessionExpiresIn  time.Duration
	SessionUpdateAge  time.Duration
	CacheMaxAge       time.Duration
	CacheSize         int
	MinPasswordLength int
	MaxPasswordLength int
	TempPasswordTTL   time.Duration
	SignUpEnabled     bool
}

func (c *IdentityConfig) sanitize() {
	if c.CookieName == "" {
		c.CookieName = "dashboard.session_token"
	}
	if c.SessionExpiresIn <= 0 {
		c.SessionExpiresIn = 15 * time.Minute
	}
	if c.SessionUpdateAge <= 0 || c.SessionUpdateAge > c.SessionExpiresIn {
		c.SessionUpdateAge = c.SessionExpiresIn
	}
	if c.CacheMaxAge <= 0 || c.CacheMaxAge > c.SessionExpiresIn {
		c.CacheMaxAge = c.SessionExpiresIn
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 4096
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = 8
	}
	if c.MaxPasswordLength < c.MinPasswordLength {
		c.MaxPasswordLength = max(128, c.MinPasswordLength)
	}
	if c.TempPasswordTTL <= 0 {
		c.TempPasswordTTL = 72 * time.Hour
	}
}

// IdentityServiceOptions groups dependencies for IdentityService.
type IdentityServiceOptions struct {
	Users    ports.UserRepository
	Sessions ports.SessionStore
	Hasher   ports.PasswordHasher
	Digester TokenDigester
	// SSO and Roles are optional; without SSO the sso endpoints report ErrSSODisabled.
	SSO   ports.SSOProvider
	Roles ports.RoleMapper
	// Invalidations is optional; when set, user-level revocations reach other instances.
	Invalidations ports.SessionInvalidator
	Audit         Auditor
	Metrics       metrics.AuthMetrics
	Logger        *slog.Logger
	Config        IdentityConfig
	Now           func() time.Time
}

// IdentityService owns accounts and sessions: sign-in/up/out, session resolution and admin user management.
type IdentityService struct {
	users         ports.UserRepository
	sessions      ports.SessionStore
	hasher        ports.PasswordHasher
	digester      TokenDigester
	sso           ports.SSOProvider
	roles         ports.RoleMapper
	invalidations ports.SessionInvalidator
	audit         Auditor
	metrics       metrics.AuthMetrics
	logger        *slog.Logger
	cfg           IdentityConfig
	now           func() time.Time

	cache *expirable.LRU[string, *domainauth.Principal]
	group singleflight.Group

	dummyOnce sync.Once
	dummyHash string
}

// NewIdentityService constructs a new IdentityService.
func NewIdentityService(opts IdentityServiceOptions) (*IdentityService, error) {
	if opts.Users == nil {
		return nil, errors.New("user repository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if opts.Digester == nil {
		return nil, errors.New("token digester is required")
	}

	cfg := opts.Config
	cfg.sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	auditor := opts.Audit
	if auditor == nil {
		auditor = NewAuditService(AuditServiceOptions{Logger: logger})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &IdentityService{
		users:         opts.Users,
		sessions:      opts.Sessions,
		hasher:        opts.Hasher,
		digester:      opts.Digester,
		sso:           opts.SSO,
		roles:         opts.Roles,
		invalidations: opts.Invalidations,
		audit:         auditor,
		metrics:       m,
		logger:        logger.With("component", "identity"),
		cfg:           cfg,
		now:           now,
		cache:         expirable.NewLRU[string, *domainauth.Principal](cfg.CacheSize, nil, cfg.CacheMaxAge),
	}, nil
}

// CookieName is the name of the session cookie.
func (s *IdentityService) CookieName() string { return s.cfg.CookieName }

// SessionLifetime is how long a new or refreshed session stays valid.
func (s *IdentityService) SessionLifetime() time.Duration { return s.cfg.SessionExpiresIn }

// ClientMeta describes the client a session is issued to.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// SessionResult carries a freshly issued bearer token and the principal it resolves to.
type SessionResult struct {
	Token     string
	Principal *domainauth.Principal
}

// TokenFromHeader returns the session token from the named cookie, falling back to an
// Authorization bearer credential.
func TokenFromHeader(h http.Header, cookieName string) string {
	for _, line := range h.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == cookieName && c.Value != "" {
				return c.Value
			}
		}
	}

	authz := strings.TrimSpace(h.Get("Authorization"))
	if len(authz) > len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}

// ResolveSession resolves the request credentials in h to a principal.
// It returns (nil, nil) when no live session exists for an active user.
func (s *IdentityService) ResolveSession(ctx context.Context, h http.Header) (*domainauth.Principal, error) {
	token := TokenFromHeader(h, s.cfg.CookieName)
	if token == "" {
		return nil, nil
	}
	return s.ResolveToken(ctx, token)
}

// ResolveToken resolves a bearer token to a principal, sliding the session expiry when due.
func (s *IdentityService) ResolveToken(ctx context.Context, token string) (*domainauth.Principal, error) {
	if token == "" {
		return nil, nil
	}
	key := s.digester.Digest(token)
	now := s.now()

	if p, ok := s.cache.Get(key); ok {
		if !p.Session.IsExpired(now) && !p.Session.NeedsRefresh(now, s.cfg.SessionUpdateAge) {
			s.metrics.IncSessionCache(metrics.ResultHit)
			return clonePrincipal(p), nil
		}
		s.cache.Remove(key)
	}
	s.metrics.IncSessionCache(metrics.ResultMiss)

	// The shared load must not inherit one caller's cancellation: every waiter on the
	// same key would fail with it.
	ch := s.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return s.load(loadCtx, key, false)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	p, _ := res.Val.(*domainauth.Principal)
	if p == nil {
		return nil, nil
	}
	return clonePrincipal(p), nil
}

// Refresh forces the sliding expiry forward for token and returns the refreshed principal.
func (s *IdentityService) Refresh(ctx context.Context, token string) (*domainauth.Principal, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	key := s.digester.Digest(token)
	s.cache.Remove(key)

	p, err := s.load(ctx, key, true)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoSession
	}
	return clonePrincipal(p), nil
}

func (s *IdentityService) load(ctx context.Context, key string, force bool) (*domainauth.Principal, error) {
	sess, err := s.sessions.Get(ctx, key)
	if errors.Is(err, ports.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := s.now()
	if sess.IsExpired(now) {
		s.dropSession(ctx, key)
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if errors.Is(err, data.ErrUserNotFound) {
		s.dropSession(ctx, key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	if !user.CanSignIn() {
		s.dropSession(ctx, key)
		return nil, nil
	}

	sess.Role = user.Role
	if force || sess.NeedsRefresh(now, s.cfg.SessionUpdateAge) {
		sess.UpdatedAt = now
		sess.ExpiresAt = now.Add(s.cfg.SessionExpiresIn)
		if err := s.sessions.Save(ctx, key, sess); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
	}

	p := &domainauth.Principal{Session: sess, User: *user}
	s.cache.Add(key, p)
	return p, nil
}

func (s *IdentityService) dropSession(ctx context.Context, key string) {
	s.cache.Remove(key)
	if err := s.sessions.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete stale session", "error", err)
	}
}

func (s *IdentityService) issueSession(ctx context.Context, user *domainauth.User, meta ClientMeta) (*SessionResult, error) {
	token, err := cryptoutil.RandomToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	key := s.digester.Digest(token)
	now := s.now()

	sess := domainauth.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Role:      user.Role,
		IssuedAt:  now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionExpiresIn),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if err := s.sessions.Save(ctx, key, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	p := &domainauth.Principal{Session: sess, User: *user}
	s.cache.Add(key, p)
	return &SessionResult{Token: token, Principal: clonePrincipal(p)}, nil
}

// PurgeUser drops every cached session belonging to userID on this instance.
func (s *IdentityService) PurgeUser(userID string) int {
	purged := 0
	for _, key := range s.cache.Keys() {
		if p, ok := s.cache.Peek(key); ok && p.User.ID == userID {
			s.cache.Remove(key)
			purged++
		}
	}
	return purged
}

// revokeUser deletes every stored session of userID and tells other instances to drop their cache.
func (s *IdentityService) revokeUser(ctx context.Context, userID string) error {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	s.invalidate(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "revoked user sessions", "user_id", userID, "count", n)
	return nil
}

// invalidate purges local cache entries for userID and broadcasts the purge.
func (s *IdentityService) invalidate(ctx context.Context, userID string) {
	s.PurgeUser(userID)
	if s.invalidations == nil {
		return
	}
	if err := s.invalidations.Publish(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to publish session invalidation", "error", err, "user_id", userID)
	}
}

func (s *IdentityService) emit(ctx context.Context, ev domainaudit.Event) {
	s.audit.Audit(ctx, ev)
}

func clonePrincipal(p *domainauth.Principal) *domainauth.Principal {
	if p == nil {
		return nil
	}
	c := *p
	if p.User.TempPasswordExpiry != nil {
		exp := *p.User.TempPasswordExpiry
		c.User.TempPasswordExpiry = &exp
	}
	return &c
}
