package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/tensrai/dashboard-api/internal/data"
	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// SignInInput groups parameters for an email/password sign-in.
type SignInInput struct {
	Email    string
	Password string
	Meta     ClientMeta
}

// SignIn verifies credentials and issues a session. A valid temporary password
// signs the user in with MustResetPassword still set.
func (s *IdentityService) SignIn(ctx context.Context, in SignInInput) (*SessionResult, error) {
	email := data.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" || len(in.Password) > s.cfg.MaxPasswordLength {
		return nil, s.failSignIn(ctx, email, "", "invalid_input", in.Meta, ErrInvalidCredentials)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, data.ErrUserNotFound) {
		// Spend the same bcrypt work as a real comparison.
		_ = s.hasher.Compare(s.dummy(), in.Password)
		return nil, s.failSignIn(ctx, email, "", "unknown_user", in.Meta, ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	usedTemp := false
	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if user.TempPasswordHash == "" || s.hasher.Compare(user.TempPasswordHash, in.Password) != nil {
			return nil, s.failSignIn(ctx, email, user.ID, "bad_password", in.Meta, ErrInvalidCredentials)
		}
		if !user.TempPasswordUsable(s.now()) {
			return nil, s.failSignIn(ctx, email, user.ID, "temp_password_expired", in.Meta, ErrTempPasswordExpired)
		}
		usedTemp = true
	}
	if !user.CanSignIn() {
		return nil, s.failSignIn(ctx, email, user.ID, "inactive", in.Meta, ErrAccountDisabled)
	}

	res, err := s.issueSession(ctx, user, in.Meta)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	s.metrics.IncAuthEvent(string(domainaudit.ActionSignIn), metrics.ResultSuccess)
	s.emit(ctx, domainaudit.Event{
		UserID: user.ID,
		Role:   string(user.Role),
		Action: domainaudit.ActionSignIn,
		Metadata: map[string]any{
			"method":            "password",
			"temporaryPassword": usedTemp,
			"ipAddress":         in.Meta.IPAddress,
		},
	})
	return res, nil
}

func (s *IdentityService) failSignIn(ctx context.Context, email, userID, reason string, meta ClientMeta, err error) error {
	s.metrics.IncAuthEvent(string(domainaudit.ActionSignIn), metrics.ResultFailure)
	s.emit(ctx, domainaudit.Event{
		UserID: userID,
		Action: domainaudit.ActionSignInFailed,
		Metadata: map[string]any{
			"email":     email,
			"reason":    reason,
			"ipAddress": meta.IPAddress,
		},
	})
	return err
}

// dummy returns a hash used to equalize timing for unknown accounts.
func (s *IdentityService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dashboard-timing-equalizer")
		if err != nil {
			s.logger.Warn("failed to prepare timing hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// SignUpInput groups parameters for self-service registration.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
	Meta        ClientMeta
}

// SignUp registers a USER account and signs it in.
func (s *IdentityService) SignUp(ctx context.Context, in SignUpInput) (*SessionResult, error) {
	if !s.cfg.SignUpEnabled {
		return nil, ErrSignUpDisabled
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := s.validatePassword("password", in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, ports.CreateUserParams{
		Email:        email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         domainauth.RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, mapCreateErr(err)
	}

	res, err := s.issueSession(ctx, user, in.Meta)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	s.metrics.IncAuthEvent(string(domainaudit.ActionSignUp), metrics.ResultSuccess)
	s.emit(ctx, domainaudit.Event{
		UserID: user.ID,
		Role:   string(user.Role),
		Action: domainaudit.ActionSignUp,
		Metadata: map[string]any{
			"email":     user.Email,
			"ipAddress": in.Meta.IPAddress,
		},
	})
	return res, nil
}

// SignOut revokes the session behind token. Unknown tokens are not an error.
func (s *IdentityService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	key := s.digester.Digest(token)
	s.cache.Remove(key)

	sess, err := s.sessions.Get(ctx, key)
	if err != nil && !errors.Is(err, ports.ErrSessionNotFound) {
		return fmt.Errorf("sign out: %w", err)
	}
	if err := s.sessions.Delete(ctx, key); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if sess.UserID == "" {
		return nil
	}

	s.metrics.IncAuthEvent(string(domainaudit.ActionSignOut), metrics.ResultSuccess)
	s.emit(ctx, domainaudit.Event{
		UserID: sess.UserID,
		Role:   string(sess.Role),
		Action: domainaudit.ActionSignOut,
	})
	return nil
}

// ResetPasswordInput groups parameters for replacing a password.
// CurrentPassword is the temporary password while a reset is pending, otherwise the current password.
type ResetPasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
	DisplayName     string
	Meta            ClientMeta
}

// ResetPassword replaces the caller's password, revokes every other session and issues a fresh one.
func (s *IdentityService) ResetPassword(ctx context.Context, token string, in ResetPasswordInput) (*SessionResult, error) {
	p, err := s.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoSession
	}

	user, err := s.users.GetByID(ctx, p.User.ID)
	if err != nil {
		return nil, mapUserErr(err)
	}

	if in.NewPassword != in.ConfirmPassword {
		return nil, apperrors.ValidationField("confirmPassword", "Passwords do not match")
	}
	if err := s.validatePassword("newPassword", in.NewPassword); err != nil {
		return nil, err
	}

	if user.MustResetPassword {
		if !user.TempPasswordUsable(s.now()) {
			return nil, ErrTempPasswordExpired
		}
		if s.hasher.Compare(user.TempPasswordHash, in.CurrentPassword) != nil {
			return nil, apperrors.ValidationField("tempPassword", "Temporary password is incorrect")
		}
	} else if s.hasher.Compare(user.PasswordHash, in.CurrentPassword) != nil {
		return nil, apperrors.ValidationField("tempPassword", "Current password is incorrect")
	}
	if in.NewPassword == in.CurrentPassword {
		return nil, apperrors.ValidationField("newPassword", "New password must differ from the current password")
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	updated, err := s.users.UpdatePassword(ctx, user.ID, hash, strings.TrimSpace(in.DisplayName))
	if err != nil {
		return nil, mapUserErr(err)
	}

	if err := s.revokeUser(ctx, user.ID); err != nil {
		return nil, err
	}
	res, err := s.issueSession(ctx, updated, in.Meta)
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}

	s.metrics.IncAuthEvent(string(domainaudit.ActionPasswordReset), metrics.ResultSuccess)
	s.emit(ctx, domainaudit.Event{
		UserID:       updated.ID,
		Role:         string(updated.Role),
		Action:       domainaudit.ActionPasswordReset,
		TargetUserID: updated.ID,
		Metadata:     map[string]any{"firstReset": user.MustResetPassword},
	})
	return res, nil
}

func (s *IdentityService) validatePassword(field, password string) error {
	switch {
	case len(password) < s.cfg.MinPasswordLength:
		return apperrors.ValidationField(field, fmt.Sprintf("Password must be at least %d characters", s.cfg.MinPasswordLength))
	case len(password) > s.cfg.MaxPasswordLength:
		return apperrors.ValidationField(field, fmt.Sprintf("Password must be at most %d characters", s.cfg.MaxPasswordLength))
	}
	return nil
}

func validateEmail(raw string) (string, error) {
	email := data.NormalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if email == "" || err != nil || addr.Address != email {
		return "", apperrors.ValidationField("email", "A valid email address is required")
	}
	return email, nil
}

func mapCreateErr(err error) error {
	if errors.Is(err, data.ErrEmailExists) {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeConflict,
			Message: "An account with this email already exists",
			Field:   "email",
			Cause:   err,
		}
	}
	return fmt.Errorf("create user: %w", err)
}

func mapUserErr(err error) error {
	if errors.Is(err, data.ErrUserNotFound) {
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "User not found")
	}
	return err
}
