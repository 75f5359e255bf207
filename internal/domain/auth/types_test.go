package auth

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"USER", RoleUser, true},
		{"ADMIN", RoleAdmin, true},
		{"admin", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHasRole_ExactMatch(t *testing.T) {
	p := &Principal{User: User{Role: RoleAdmin}}
	if !HasRole(p, RoleAdmin) {
		t.Fatalf("expected admin")
	}
	if HasRole(p, Role("admin")) {
		t.Fatalf("role comparison must be case-sensitive")
	}
	if HasRole(p, RoleUser) {
		t.Fatalf("admin is not USER")
	}
	if HasRole(nil, RoleUser) {
		t.Fatalf("nil principal has no role")
	}
}

func TestSession_Timing(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{UpdatedAt: now.Add(-6 * time.Minute), ExpiresAt: now.Add(9 * time.Minute)}

	if s.IsExpired(now) {
		t.Fatalf("did not expect expiry")
	}
	if !s.IsExpired(now.Add(9 * time.Minute)) {
		t.Fatalf("expected expiry at the boundary")
	}
	if !s.NeedsRefresh(now, 5*time.Minute) {
		t.Fatalf("expected refresh after update age")
	}
	if s.NeedsRefresh(now, 10*time.Minute) {
		t.Fatalf("did not expect refresh before update age")
	}
}

func TestUser_TempPasswordUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	if (&User{}).TempPasswordUsable(now) {
		t.Fatalf("no temp password set")
	}
	if (&User{TempPasswordHash: "h", TempPasswordExpiry: &past}).TempPasswordUsable(now) {
		t.Fatalf("expired temp password")
	}
	if !(&User{TempPasswordHash: "h", TempPasswordExpiry: &future}).TempPasswordUsable(now) {
		t.Fatalf("expected usable temp password")
	}
}

func TestUser_CanSignIn(t *testing.T) {
	var nilUser *User
	if nilUser.CanSignIn() {
		t.Fatalf("nil user cannot sign in")
	}
	if (&User{IsActive: false}).CanSignIn() {
		t.Fatalf("inactive user cannot sign in")
	}
	if !(&User{IsActive: true}).CanSignIn() {
		t.Fatalf("active user can sign in")
	}
}
