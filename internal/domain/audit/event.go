// Package audit defines the append-only audit record for security-relevant actions.
package audit

import "time"

// Action names a recorded security-relevant action.
type Action string

const (
	ActionSignIn          Action = "auth.sign_in"
	ActionSignInFailed    Action = "auth.sign_in_failed"
	ActionSignOut         Action = "auth.sign_out"
	ActionSignUp          Action = "auth.sign_up"
	ActionPasswordReset   Action = "auth.password_reset"
	ActionUserCreated     Action = "user.created"
	ActionUserRoleChanged Action = "user.role_changed"
	ActionUserDeactivated Action = "user.deactivated"
	ActionUserActivated   Action = "user.activated"
	ActionTempPassword    Action = "user.temp_password_issued"
)

// Event is one audit record. Records are never updated after they are written.
// Timestamp is assigned by the emitter, not the caller.
type Event struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	Role         string         `json:"role"`
	Action       Action         `json:"action"`
	TargetUserID string         `json:"targetUserId,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Filter narrows an audit listing.
type Filter struct {
	UserID string
	Action Action
	Since  *time.Time
	Limit  int
}
