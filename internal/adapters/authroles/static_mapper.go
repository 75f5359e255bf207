package authroles

import (
	"strings"

	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
)

// StaticRoleMapper grants ADMIN to members of AdminGroup and USER to everyone else.
// Group names from the identity provider are compared case-insensitively after trimming,
// and an SSO user never receives a role the dashboard does not define.
type StaticRoleMapper struct {
	AdminGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	admin := strings.TrimSpace(m.AdminGroup)
	if admin == "" {
		return domainauth.RoleUser
	}
	for _, g := range groups {
		if strings.EqualFold(strings.TrimSpace(g), admin) {
			return domainauth.RoleAdmin
		}
	}
	return domainauth.RoleUser
}
