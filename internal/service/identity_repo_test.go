package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tensrai/dashboard-api/internal/data"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/mocks"
	"github.com/tensrai/dashboard-api/internal/ports"
)

func newMockedIdentity(t *testing.T) (*identityFixture, *mocks.MockUserRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockUserRepository(ctrl)
	f := newIdentityFixture(t, func(o *IdentityServiceOptions) { o.Users = repo })
	return f, repo
}

func TestIdentityService_SignInRepositoryFailure(t *testing.T) {
	f, repo := newMockedIdentity(t)
	repo.EXPECT().GetByEmail(gomock.Any(), "ops@example.com").Return(nil, errors.New("connection reset"))

	res, err := f.svc.SignIn(context.Background(), SignInInput{Email: "Ops@Example.com", Password: "password123"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, f.audit.actions(), "infrastructure failures are not sign-in attempts")
}

func TestIdentityService_ListUsersPassesOptions(t *testing.T) {
	f, repo := newMockedIdentity(t)
	opts := ports.UserListOptions{Limit: 10, Offset: 20}
	want := []*domainauth.User{{ID: "u1", Email: "a@example.com", Role: domainauth.RoleAdmin}}
	repo.EXPECT().List(gomock.Any(), opts).Return(want, nil)

	got, err := f.svc.ListUsers(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIdentityService_GetUserNotFound(t *testing.T) {
	f, repo := newMockedIdentity(t)
	repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrUserNotFound)

	u, err := f.svc.GetUser(context.Background(), "missing")
	assert.Nil(t, u)
	assert.True(t, apperrors.IsNotFound(err))
}
