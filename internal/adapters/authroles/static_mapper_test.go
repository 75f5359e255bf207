package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
)

func TestStaticRoleMapper_Map(t *testing.T) {
	m := StaticRoleMapper{AdminGroup: "dashboard-admins"}

	assert.Equal(t, domainauth.RoleAdmin, m.Map([]string{"eng", "dashboard-admins"}))
	assert.Equal(t, domainauth.RoleAdmin, m.Map([]string{" Dashboard-Admins "}))
	assert.Equal(t, domainauth.RoleUser, m.Map([]string{"eng"}))
	assert.Equal(t, domainauth.RoleUser, m.Map([]string{"dashboard-admins-readonly"}))
	assert.Equal(t, domainauth.RoleUser, m.Map(nil))
	assert.Equal(t, domainauth.RoleUser, StaticRoleMapper{}.Map([]string{""}))
}
