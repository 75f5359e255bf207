package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is returned when creating an account with an email that is already registered.
	ErrEmailExists = errors.New("email already registered")
)
