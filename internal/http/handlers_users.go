package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/ports"
	"github.com/tensrai/dashboard-api/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserAdminService defines the account management operations exposed to administrators.
type UserAdminService interface {
	ListUsers(ctx context.Context, opts ports.UserListOptions) ([]*domainauth.User, error)
	GetUser(ctx context.Context, id string) (*domainauth.User, error)
	CreateUser(ctx context.Context, actor service.Actor, in service.CreateUserInput) (*service.CreateUserResult, error)
	IssueTempPassword(ctx context.Context, actor service.Actor, userID string) (*service.CreateUserResult, error)
	SetRole(ctx context.Context, actor service.Actor, userID, role string) (*domainauth.User, error)
	SetActive(ctx context.Context, actor service.Actor, userID string, active bool) (*domainauth.User, error)
}

// UserHandlers provides HTTP handlers for the signed-in user and account administration.
type UserHandlers struct {
	Svc   UserAdminService
	Audit ports.AuditReader
}

// Me returns the signed-in user and session.
// GET /api/me.
func (h *UserHandlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		writeAuthRequired(w)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// List returns a page of accounts.
// GET /api/users?limit=&offset=.
func (h *UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	users, err := h.Svc.ListUsers(r.Context(), ports.UserListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users, "limit": limit, "offset": offset})
}

// Get returns one account.
// GET /api/users/{id}.
func (h *UserHandlers) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.Svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// Create provisions an account with a temporary password.
// POST /api/users.
func (h *UserHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.CreateUser(r.Context(), actorFrom(r), service.CreateUserInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, res)
}

// TempPassword issues a fresh temporary password and signs the user out everywhere.
// POST /api/users/{id}/temp-password.
func (h *UserHandlers) TempPassword(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.IssueTempPassword(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole changes an account's role.
// PATCH /api/users/{id}/role.
func (h *UserHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.Svc.SetRole(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// Deactivate blocks an account and revokes its sessions.
// POST /api/users/{id}/deactivate.
func (h *UserHandlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Activate re-enables an account.
// POST /api/users/{id}/activate.
func (h *UserHandlers) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *UserHandlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	u, err := h.Svc.SetActive(r.Context(), actorFrom(r), chi.URLParam(r, "id"), active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// AuditLog lists recorded audit events, newest first.
// GET /api/audit?userId=&action=&since=&limit=.
func (h *UserHandlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"events": []domainaudit.Event{}})
		return
	}
	q := r.URL.Query()
	limit, _ := pageParams(r)
	f := domainaudit.Filter{
		UserID: q.Get("userId"),
		Action: domainaudit.Action(q.Get("action")),
		Limit:  limit,
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_since", Err: err, Field: "since"})
			return
		}
		f.Since = &since
	}
	events, err := h.Audit.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []domainaudit.Event{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func actorFrom(r *http.Request) service.Actor {
	p, _ := GetPrincipalFromContext(r.Context())
	return service.ActorFrom(p)
}

func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
