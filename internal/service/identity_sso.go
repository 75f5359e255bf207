package service

import (
	"context"
	"fmt"

	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// SSOEnabled reports whether single sign-on is configured.
func (s *IdentityService) SSOEnabled() bool { return s.sso != nil }

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginSSO initiates an SSO flow and returns the provider auth URL with state and nonce.
func (s *IdentityService) BeginSSO(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.sso == nil {
		return nil, ErrSSODisabled
	}

	authURL, state, nonce, err := s.sso.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CompleteSSOInput groups parameters for completing an SSO flow.
type CompleteSSOInput struct {
	Code        string
	State       string
	Nonce       string
	RedirectURL string
	Meta        ClientMeta
}

// CompleteSSO exchanges the code for an identity, links it to an account, and issues a session.
// The account role follows the IdP groups on every sign-in.
func (s *IdentityService) CompleteSSO(ctx context.Context, in CompleteSSOInput) (*SessionResult, error) {
	if s.sso == nil {
		return nil, ErrSSODisabled
	}
	if in.Code == "" {
		return nil, apperrors.Validation("authorization code is required")
	}
	if in.State == "" {
		return nil, apperrors.Validation("state parameter is required")
	}
	if in.Nonce == "" {
		return nil, apperrors.Validation("nonce parameter is required")
	}

	identity, err := s.sso.Exchange(ctx, ports.ExchangeInput{
		Code:        in.Code,
		State:       in.State,
		Nonce:       in.Nonce,
		RedirectURL: in.RedirectURL,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "sso exchange failed", "error", err)
		return nil, s.failSignIn(ctx, "", "", "sso_exchange", in.Meta,
			apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "Single sign-on failed"))
	}

	role := domainauth.RoleUser
	if s.roles != nil {
		role = s.roles.Map(identity.Groups)
	}

	user, err := s.users.UpsertSSO(ctx, identity.Subject, identity.Email, identity.DisplayName, role)
	if err != nil {
		return nil, fmt.Errorf("link sso identity: %w", err)
	}
	if !user.CanSignIn() {
		return nil, s.failSignIn(ctx, user.Email, user.ID, "inactive", in.Meta, ErrAccountDisabled)
	}
	// A role change from the IdP must reach sessions already cached for this user.
	s.invalidate(ctx, user.ID)

	res, err := s.issueSession(ctx, user, in.Meta)
	if err != nil {
		return nil, fmt.Errorf("complete sso: %w", err)
	}

	s.metrics.IncAuthEvent(string(domainaudit.ActionSignIn), metrics.ResultSuccess)
	s.emit(ctx, domainaudit.Event{
		UserID: user.ID,
		Role:   string(user.Role),
		Action: domainaudit.ActionSignIn,
		Metadata: map[string]any{
			"method":    "sso",
			"subject":   identity.Subject,
			"ipAddress": in.Meta.IPAddress,
		},
	})
	return res, nil
}
