package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
)

// SessionResolver turns request credentials into a principal.
type SessionResolver interface {
	ResolveSession(ctx context.Context, h http.Header) (*domainauth.Principal, error)
}

// Gate binds session resolution and role checks to incoming requests.
type Gate struct {
	resolver SessionResolver
	logger   *slog.Logger
}

// NewGate constructs a Gate over resolver.
func NewGate(resolver SessionResolver, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{resolver: resolver, logger: logger}
}

// ResolveSession returns the principal for r, or nil. Lookup failures are logged and
// treated as anonymous; they are never returned to the caller.
func (g *Gate) ResolveSession(r *http.Request) (p *domainauth.Principal) {
	if p, ok := GetPrincipalFromContext(r.Context()); ok {
		return p
	}
	if g == nil || g.resolver == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			g.logger.ErrorContext(r.Context(), "session lookup panicked", "error", fmt.Sprint(rec))
			p = nil
		}
	}()

	p, err := g.resolver.ResolveSession(r.Context(), r.Header)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.WarnContext(r.Context(), "session lookup failed", "error", err)
		}
		return nil
	}
	return p
}

// CurrentUser returns the signed-in user, or nil.
func (g *Gate) CurrentUser(r *http.Request) *domainauth.User {
	if p := g.ResolveSession(r); p != nil {
		return &p.User
	}
	return nil
}

// IsAuthenticated reports whether r carries a live session.
func (g *Gate) IsAuthenticated(r *http.Request) bool {
	return g.CurrentUser(r) != nil
}

// HasRole reports whether the signed-in user has exactly role.
func (g *Gate) HasRole(r *http.Request, role domainauth.Role) bool {
	return domainauth.HasRole(g.ResolveSession(r), role)
}

// RequireAuth returns a middleware that requires authentication.
// If the user is not authenticated, it returns a 401 Unauthorized response.
func (g *Gate) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := g.ResolveSession(r)
			if p == nil {
				writeAuthRequired(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetPrincipalInContext(r.Context(), p)))
		})
	}
}

// RequireRole returns a middleware that requires a specific role.
// Roles are not hierarchical; an ADMIN-only route rejects USER and vice versa.
func (g *Gate) RequireRole(role domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := g.ResolveSession(r)
			if p == nil {
				writeAuthRequired(w)
				return
			}
			if !domainauth.HasRole(p, role) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetPrincipalInContext(r.Context(), p)))
		})
	}
}

func writeAuthRequired(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("authentication required"),
	})
}
