package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tensrai/dashboard-api/internal/data/cryptoutil"
	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/ports"
)

const tempPasswordLength = 16

// Actor identifies who performs an administrative change.
type Actor struct {
	UserID string
	Role   domainauth.Role
}

// SystemActor is used for changes made from the admin CLI.
var SystemActor = Actor{UserID: "system:cli", Role: domainauth.RoleAdmin}

// ActorFrom returns the actor for a resolved principal.
func ActorFrom(p *domainauth.Principal) Actor {
	if p == nil {
		return Actor{}
	}
	return Actor{UserID: p.User.ID, Role: p.User.Role}
}

// CreateUserInput groups parameters for an admin-created account.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Role        string
}

// CreateUserResult returns the account with its one-time temporary password.
type CreateUserResult struct {
	User         *domainauth.User `json:"user"`
	TempPassword string           `json:"tempPassword"`
}

// ListUsers returns accounts ordered by email.
func (s *IdentityService) ListUsers(ctx context.Context, opts ports.UserListOptions) ([]*domainauth.User, error) {
	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns one account by ID.
func (s *IdentityService) GetUser(ctx context.Context, id string) (*domainauth.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return u, nil
}

// CreateUser creates an account that must set its own password on first sign-in.
func (s *IdentityService) CreateUser(ctx context.Context, actor Actor, in CreateUserInput) (*CreateUserResult, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role := domainauth.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		r, ok := domainauth.ParseRole(strings.TrimSpace(in.Role))
		if !ok {
			return nil, apperrors.ValidationField("role", "Role must be USER or ADMIN")
		}
		role = r
	}

	temp, hash, err := s.newTempPassword()
	if err != nil {
		return nil, err
	}
	expiry := s.now().Add(s.cfg.TempPasswordTTL).UTC()

	user, err := s.users.Create(ctx, ports.CreateUserParams{
		Email:              email,
		DisplayName:        strings.TrimSpace(in.DisplayName),
		Role:               role,
		TempPasswordHash:   hash,
		TempPasswordExpiry: &expiry,
		MustResetPassword:  true,
	})
	if err != nil {
		return nil, mapCreateErr(err)
	}

	s.emit(ctx, domainaudit.Event{
		UserID:       actor.UserID,
		Role:         string(actor.Role),
		Action:       domainaudit.ActionUserCreated,
		TargetUserID: user.ID,
		Metadata:     map[string]any{"email": user.Email, "role": string(user.Role)},
	})
	return &CreateUserResult{User: user, TempPassword: temp}, nil
}

// IssueTempPassword replaces any pending temporary password and signs the user out everywhere.
func (s *IdentityService) IssueTempPassword(ctx context.Context, actor Actor, userID string) (*CreateUserResult, error) {
	temp, hash, err := s.newTempPassword()
	if err != nil {
		return nil, err
	}
	user, err := s.users.SetTempPassword(ctx, userID, hash, s.now().Add(s.cfg.TempPasswordTTL).UTC())
	if err != nil {
		return nil, mapUserErr(err)
	}
	if err := s.revokeUser(ctx, userID); err != nil {
		return nil, err
	}

	s.emit(ctx, domainaudit.Event{
		UserID:       actor.UserID,
		Role:         string(actor.Role),
		Action:       domainaudit.ActionTempPassword,
		TargetUserID: user.ID,
	})
	return &CreateUserResult{User: user, TempPassword: temp}, nil
}

// SetRole changes a user's role. Cached sessions pick up the new role on their next resolution.
func (s *IdentityService) SetRole(ctx context.Context, actor Actor, userID, role string) (*domainauth.User, error) {
	r, ok := domainauth.ParseRole(strings.TrimSpace(role))
	if !ok {
		return nil, apperrors.ValidationField("role", "Role must be USER or ADMIN")
	}
	if actor.UserID == userID {
		return nil, ErrSelfModification
	}

	before, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	updated, err := s.users.SetRole(ctx, userID, r)
	if err != nil {
		return nil, mapUserErr(err)
	}
	s.invalidate(ctx, userID)

	s.emit(ctx, domainaudit.Event{
		UserID:       actor.UserID,
		Role:         string(actor.Role),
		Action:       domainaudit.ActionUserRoleChanged,
		TargetUserID: userID,
		Metadata:     map[string]any{"from": string(before.Role), "to": string(r)},
	})
	return updated, nil
}

// SetActive activates or deactivates a user. Deactivation revokes every session at once.
func (s *IdentityService) SetActive(ctx context.Context, actor Actor, userID string, active bool) (*domainauth.User, error) {
	if actor.UserID == userID {
		return nil, ErrSelfModification
	}

	updated, err := s.users.SetActive(ctx, userID, active)
	if err != nil {
		return nil, mapUserErr(err)
	}

	action := domainaudit.ActionUserActivated
	if !active {
		action = domainaudit.ActionUserDeactivated
		if err := s.revokeUser(ctx, userID); err != nil {
			return nil, err
		}
	}

	s.emit(ctx, domainaudit.Event{
		UserID:       actor.UserID,
		Role:         string(actor.Role),
		Action:       action,
		TargetUserID: userID,
	})
	return updated, nil
}

func (s *IdentityService) newTempPassword() (plain, hash string, err error) {
	plain, err = cryptoutil.TempPassword(tempPasswordLength)
	if err != nil {
		return "", "", fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err = s.hasher.Hash(plain)
	if err != nil {
		return "", "", fmt.Errorf("hash temporary password: %w", err)
	}
	return plain, hash, nil
}
