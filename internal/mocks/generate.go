// Package mocks provides gomock implementations of the dashboard ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	sink := mocks.NewMockAuditSink(ctrl)
//	sink.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
package mocks

// Generate mock for UserRepository interface from internal/ports package.
// This creates MockUserRepository with methods for all UserRepository interface methods:
// Create, GetByID, GetByEmail, List, UpdatePassword, SetTempPassword, SetRole, SetActive, UpsertSSO
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/tensrai/dashboard-api/internal/ports UserRepository

// Generate mock for AuditSink interface from internal/ports package.
// This creates MockAuditSink with methods for all AuditSink interface methods:
// Append
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_sink_mock.go github.com/tensrai/dashboard-api/internal/ports AuditSink

// Generate mock for RateLimiter interface from internal/ports package.
// This creates MockRateLimiter with methods for all RateLimiter interface methods:
// Allow
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rate_limiter_mock.go github.com/tensrai/dashboard-api/internal/ports RateLimiter
