package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
)

func TestGetPrincipalFromContext(t *testing.T) {
	// No principal
	if p, ok := GetPrincipalFromContext(context.Background()); assert.False(t, ok) {
		assert.Nil(t, p)
	}
	assert.Nil(t, UserFromContext(context.Background()))

	// Nil principal leaves the context alone
	ctx := SetPrincipalInContext(context.Background(), nil)
	_, ok := GetPrincipalFromContext(ctx)
	assert.False(t, ok)

	// With principal
	p := principal(domainauth.RoleAdmin)
	ctx = SetPrincipalInContext(context.Background(), p)
	got, ok := GetPrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, "user-1", UserFromContext(ctx).ID)
}
