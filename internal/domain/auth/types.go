package auth

// Package auth contains domain-level types for users, sessions and roles.
// It is pure and free of framework/adapter concerns.

import "time"

// Role represents an application's authorization role.
// Roles are compared exactly; "admin" is not ADMIN.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole returns the Role for s when s names a known role exactly.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// User is a dashboard account.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"displayName,omitempty"`
	Role               Role       `json:"role"`
	IsActive           bool       `json:"isActive"`
	MustResetPassword  bool       `json:"mustResetPassword"`
	PasswordHash       string     `json:"-"`
	TempPasswordHash   string     `json:"-"`
	TempPasswordExpiry *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// CanSignIn reports whether the account may obtain or keep a session.
func (u *User) CanSignIn() bool { return u != nil && u.IsActive }

// TempPasswordUsable reports whether a temporary password is set and unexpired at now.
func (u *User) TempPasswordUsable(now time.Time) bool {
	if u == nil || u.TempPasswordHash == "" {
		return false
	}
	return u.TempPasswordExpiry == nil || now.Before(*u.TempPasswordExpiry)
}

// Identity represents the authenticated principal returned by an SSO IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
	Groups      []string
	ExpiresAt   time.Time
}

// Session is the server-side record persisted for a signed-in user.
// ID is an opaque identifier safe to expose; the bearer token itself is never stored.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// IsExpired reports whether the session has lapsed at now.
func (s Session) IsExpired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// NeedsRefresh reports whether the sliding expiry is due to move forward.
func (s Session) NeedsRefresh(now time.Time, updateAge time.Duration) bool {
	return now.Sub(s.UpdatedAt) >= updateAge
}

// Principal is a resolved session together with the active user it belongs to.
type Principal struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

// HasRole reports whether p is signed in with exactly role.
func HasRole(p *Principal, role Role) bool {
	return p != nil && p.User.Role == role
}
