package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/service"
)

// IdentityService defines the identity operations served under the auth prefix.
type IdentityService interface {
	CookieName() string
	SessionLifetime() time.Duration
	ResolveSession(ctx context.Context, h http.Header) (*domainauth.Principal, error)
	SignIn(ctx context.Context, in service.SignInInput) (*service.SessionResult, error)
	SignUp(ctx context.Context, in service.SignUpInput) (*service.SessionResult, error)
	SignOut(ctx context.Context, token string) error
	Refresh(ctx context.Context, token string) (*domainauth.Principal, error)
	ResetPassword(ctx context.Context, token string, in service.ResetPasswordInput) (*service.SessionResult, error)
	SSOEnabled() bool
	BeginSSO(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteSSO(ctx context.Context, in service.CompleteSSOInput) (*service.SessionResult, error)
}

const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookie     = "post_login_redirect"
	oauthCookieLifetime = 600 // 10 minutes
)

// IdentityHandlerOptions configures IdentityHandler.
type IdentityHandlerOptions struct {
	Svc  IdentityService
	CORS *CORSPolicy
	// FrontendURL receives the browser after an SSO callback.
	FrontendURL  string
	CookieDomain string
	// SecureCookies forces the Secure attribute regardless of the request scheme.
	SecureCookies bool
	Logger        *slog.Logger
}

type identityRoute func(w http.ResponseWriter, r *http.Request) error

// IdentityHandler is the embedded identity endpoint set. It expects absolute URLs
// without the public prefix, as produced by AuthProxy.
type IdentityHandler struct {
	svc           IdentityService
	cors          *CORSPolicy
	frontendURL   string
	cookieDomain  string
	secureCookies bool
	logger        *slog.Logger
	routes        map[string]map[string]identityRoute
}

// NewIdentityHandler constructs an IdentityHandler.
func NewIdentityHandler(opts IdentityHandlerOptions) *IdentityHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.CORS
	if policy == nil {
		policy = NewCORSPolicy(CORSOptions{Logger: logger})
	}
	h := &IdentityHandler{
		svc:           opts.Svc,
		cors:          policy,
		frontendURL:   strings.TrimRight(opts.FrontendURL, "/"),
		cookieDomain:  opts.CookieDomain,
		secureCookies: opts.SecureCookies,
		logger:        logger,
	}
	h.routes = map[string]map[string]identityRoute{
		"/ok":             {http.MethodGet: h.ok},
		"/sign-in":        {http.MethodPost: h.signIn},
		"/sign-in/email":  {http.MethodPost: h.signIn},
		"/sign-up":        {http.MethodPost: h.signUp},
		"/sign-up/email":  {http.MethodPost: h.signUp},
		"/sign-out":       {http.MethodPost: h.signOut},
		"/session":        {http.MethodGet: h.session},
		"/get-session":    {http.MethodGet: h.session},
		"/refresh":        {http.MethodPost: h.refresh},
		"/reset-password": {http.MethodPost: h.resetPassword},
		"/sso/login":      {http.MethodGet: h.ssoLogin},
		"/sso/callback":   {http.MethodGet: h.ssoCallback},
	}
	return h
}

var _ AuthHandler = (*IdentityHandler)(nil)

// ServeAuth dispatches an identity request. r.URL must be absolute.
func (h *IdentityHandler) ServeAuth(w http.ResponseWriter, r *http.Request) error {
	if !r.URL.IsAbs() || r.URL.Host == "" {
		return errors.New("identity handler requires an absolute request URL")
	}
	if h.svc == nil {
		return errors.New("identity service is not configured")
	}

	methods, ok := h.routes[strings.TrimRight(r.URL.Path, "/")]
	if !ok {
		WriteJSON(w, http.StatusNotFound, authEnvelope{Error: "Not found", Code: "NOT_FOUND"})
		return nil
	}
	route, ok := methods[r.Method]
	if !ok {
		WriteJSON(w, http.StatusMethodNotAllowed, authEnvelope{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
		return nil
	}

	if isMutating(r.Method) && !h.trustedOrigin(r) {
		WriteJSON(w, http.StatusForbidden, authEnvelope{Error: "Invalid origin", Code: "INVALID_ORIGIN"})
		return nil
	}
	return route(w, r)
}

// trustedOrigin rejects browser-originated writes from origins outside the allow-list.
func (h *IdentityHandler) trustedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == baseURL(r) {
		return true
	}
	return h.cors.Allowed(origin)
}

// baseURL is the per-request origin of the identity handler.
func baseURL(r *http.Request) string {
	return r.URL.Scheme + "://" + r.URL.Host
}

func (h *IdentityHandler) ok(w http.ResponseWriter, _ *http.Request) error {
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionPayload struct {
	Token             string             `json:"token,omitempty"`
	User              domainauth.User    `json:"user"`
	Session           domainauth.Session `json:"session"`
	MustResetPassword bool               `json:"mustResetPassword"`
}

func payloadFor(token string, p *domainauth.Principal) sessionPayload {
	return sessionPayload{
		Token:             token,
		User:              p.User,
		Session:           p.Session,
		MustResetPassword: p.User.MustResetPassword,
	}
}

func (h *IdentityHandler) signIn(w http.ResponseWriter, r *http.Request) error {
	var req signInRequest
	if !decodeAuthBody(w, r, &req) {
		return nil
	}
	res, err := h.svc.SignIn(r.Context(), service.SignInInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     clientMeta(r),
	})
	if err != nil {
		return h.fail(w, err)
	}
	h.setSessionCookie(w, r, res.Token)
	writeAuthOK(w, payloadFor(res.Token, res.Principal))
	return nil
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *IdentityHandler) signUp(w http.ResponseWriter, r *http.Request) error {
	var req signUpRequest
	if !decodeAuthBody(w, r, &req) {
		return nil
	}
	res, err := h.svc.SignUp(r.Context(), service.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Name,
		Meta:        clientMeta(r),
	})
	if err != nil {
		return h.fail(w, err)
	}
	h.setSessionCookie(w, r, res.Token)
	writeAuthOK(w, payloadFor(res.Token, res.Principal))
	return nil
}

func (h *IdentityHandler) signOut(w http.ResponseWriter, r *http.Request) error {
	token := service.TokenFromHeader(r.Header, h.svc.CookieName())
	if err := h.svc.SignOut(r.Context(), token); err != nil {
		return err
	}
	h.clearCookie(w, r, h.svc.CookieName())
	writeAuthOK(w, nil)
	return nil
}

func (h *IdentityHandler) session(w http.ResponseWriter, r *http.Request) error {
	p, err := h.svc.ResolveSession(r.Context(), r.Header)
	if err != nil {
		return err
	}
	if p == nil {
		if service.TokenFromHeader(r.Header, h.svc.CookieName()) != "" {
			h.clearCookie(w, r, h.svc.CookieName())
		}
		WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": nil})
		return nil
	}
	writeAuthOK(w, payloadFor("", p))
	return nil
}

func (h *IdentityHandler) refresh(w http.ResponseWriter, r *http.Request) error {
	token := service.TokenFromHeader(r.Header, h.svc.CookieName())
	p, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		return h.fail(w, err)
	}
	h.setSessionCookie(w, r, token)
	writeAuthOK(w, payloadFor("", p))
	return nil
}

type resetPasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	TempPassword    string `json:"tempPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
	Name            string `json:"name"`
}

func (h *IdentityHandler) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var req resetPasswordRequest
	if !decodeAuthBody(w, r, &req) {
		return nil
	}
	current := req.CurrentPassword
	if current == "" {
		current = req.TempPassword
	}
	token := service.TokenFromHeader(r.Header, h.svc.CookieName())
	res, err := h.svc.ResetPassword(r.Context(), token, service.ResetPasswordInput{
		CurrentPassword: current,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
		DisplayName:     req.Name,
		Meta:            clientMeta(r),
	})
	if err != nil {
		return h.fail(w, err)
	}
	h.setSessionCookie(w, r, res.Token)
	writeAuthOK(w, payloadFor(res.Token, res.Principal))
	return nil
}

// ssoLogin handles the SSO initiation endpoint.
// GET /sso/login?redirect_uri=<optional_redirect>.
func (h *IdentityHandler) ssoLogin(w http.ResponseWriter, r *http.Request) error {
	if !h.svc.SSOEnabled() {
		return h.fail(w, service.ErrSSODisabled)
	}
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.svc.BeginSSO(r.Context(), "")
	if err != nil {
		return err
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
	return nil
}

// ssoCallback handles the IdP callback endpoint.
// GET /sso/callback?code=<code>&state=<state>.
func (h *IdentityHandler) ssoCallback(w http.ResponseWriter, r *http.Request) error {
	if !h.svc.SSOEnabled() {
		return h.fail(w, service.ErrSSODisabled)
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	stateCookie, err := r.Cookie(oauthStateCookie)
	if state == "" || err != nil || stateCookie.Value != state {
		WriteJSON(w, http.StatusBadRequest, authEnvelope{Error: "Invalid or missing state parameter", Code: "INVALID_STATE"})
		return nil
	}
	nonce := ""
	if c, err := r.Cookie(oauthNonceCookie); err == nil {
		nonce = c.Value
	}

	res, err := h.svc.CompleteSSO(r.Context(), service.CompleteSSOInput{
		Code:  code,
		State: state,
		Nonce: nonce,
		Meta:  clientMeta(r),
	})
	if err != nil {
		return h.fail(w, err)
	}

	h.setSessionCookie(w, r, res.Token)
	h.clearCookie(w, r, oauthStateCookie)
	h.clearCookie(w, r, oauthNonceCookie)
	http.Redirect(w, r, h.frontendURL+h.postLoginRedirect(w, r), http.StatusFound)
	return nil
}

// fail writes client-facing errors and hands everything else back to the proxy.
func (h *IdentityHandler) fail(w http.ResponseWriter, err error) error {
	if writeAuthError(w, err) {
		return nil
	}
	return err
}

func decodeAuthBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		WriteJSON(w, http.StatusBadRequest, authEnvelope{Error: "Invalid request body", Code: "VALIDATION_ERROR"})
		return false
	}
	return true
}

func clientMeta(r *http.Request) service.ClientMeta {
	return service.ClientMeta{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
}

func (h *IdentityHandler) isSecure(r *http.Request) bool {
	return h.secureCookies || r.TLS != nil || strings.EqualFold(r.URL.Scheme, "https")
}

// setSessionCookie writes the session cookie for the configured session lifetime.
func (h *IdentityHandler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.svc.CookieName(),
		Value:    token,
		Path:     "/",
		Domain:   h.cookieDomain,
		HttpOnly: true,
		Secure:   h.isSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.svc.SessionLifetime().Seconds()),
	})
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies.
func (h *IdentityHandler) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookieDomain,
		HttpOnly: true,
		Secure:   h.isSecure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// oauthCookieParams groups values needed to set OAuth cookies.
type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores OAuth state, nonce, and the post-login redirect in short-lived cookies.
func (h *IdentityHandler) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	for name, value := range map[string]string{
		oauthStateCookie: p.State,
		oauthNonceCookie: p.Nonce,
		postLoginCookie:  p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.cookieDomain,
			HttpOnly: true,
			Secure:   h.isSecure(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   oauthCookieLifetime,
		})
	}
}

// postLoginRedirect returns the stored post-login path and clears the cookie.
func (h *IdentityHandler) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectURI := "/"
	if c, err := r.Cookie(postLoginCookie); err == nil {
		redirectURI = safeRedirectPath(c.Value)
		h.clearCookie(w, r, postLoginCookie)
	}
	return redirectURI
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
