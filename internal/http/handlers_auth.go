package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	"github.com/target/waypoint/internal/service"
)

const (
	oauthStateCookie   = "oauth_state"
	oauthNonceCookie   = "oauth_nonce"
	postLoginCookie    = "post_login_redirect"
	loginCookieMaxAge  = 600 // 10 minutes
	organizationParam  = "organization_id"
	defaultBeginTarget = "/"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// DestinationResolver decides post-auth destinations and sign-in redirects.
type DestinationResolver interface {
	GetPostAuthDestination(ctx context.Context, req service.DestinationRequest) model.AuthDestination
	SignInRedirector
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc    AuthServiceInterface
	Router DestinationResolver
	// Cookies signs the post-login state cookie; see NewLoginCookieCodec.
	Cookies      *securecookie.SecureCookie
	CookieDomain string
	// SecureCookies forces the Secure flag regardless of the request scheme.
	SecureCookies bool
	// LogoutURL is the identity provider's end-session URL, if any.
	LogoutURL string
	Logger    *slog.Logger
}

// postLoginState is what a sign-in remembers until the callback.
type postLoginState struct {
	RedirectURL    string `json:"redirect_url,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// NewLoginCookieCodec returns a codec that signs post-login state with hashKey.
// An empty key gets a random one, which invalidates in-flight logins on restart.
func NewLoginCookieCodec(hashKey []byte) *securecookie.SecureCookie {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(hashKey, nil)
	sc.MaxAge(loginCookieMaxAge)
	sc.SetSerializer(securecookie.JSONEncoder{})
	return sc
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login starts a sign-in.
// GET /sign-in?redirect_url=<path>&organization_id=<id>&<preserved params>.
// The candidate redirect is stored as-is; it is validated after the callback.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st := postLoginState{
		RedirectURL:    composeRedirectCandidate(q),
		OrganizationID: strings.TrimSpace(q.Get(organizationParam)),
	}

	beginTarget := st.RedirectURL
	if beginTarget == "" {
		beginTarget = defaultBeginTarget
	}
	result, err := h.Svc.BeginLogin(r.Context(), beginTarget)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	if err := h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, PostLogin: st}); err != nil {
		h.logger().ErrorContext(r.Context(), "encode post-login cookie", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("could not start sign-in"),
		})
		return
	}

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// composeRedirectCandidate rebuilds the redirect a protected-route visit asked
// for: redirect_url plus any other query parameters that travelled with it.
func composeRedirectCandidate(q url.Values) string {
	raw := strings.TrimSpace(q.Get(service.RedirectURLParam))
	if raw == "" {
		return ""
	}

	extra := url.Values{}
	for k, vs := range q {
		if k == service.RedirectURLParam || k == organizationParam {
			continue
		}
		extra[k] = vs
	}
	if len(extra) == 0 {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		// Left for the redirect validator to reject.
		return raw
	}
	merged := u.Query()
	for k, vs := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = vs
		}
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

// Callback completes the sign-in, starts the session and sends the user to
// their resolved destination.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		if apperrors.IsForbidden(err) {
			WriteAppError(w, err)
			return
		}
		h.logger().ErrorContext(r.Context(), "login completion failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_completion_failed",
			Err:     errors.New("sign-in could not be completed"),
		})
		return
	}

	h.setSessionCookie(w, r, result.Session)
	h.clearCookie(w, r, oauthStateCookie)
	h.clearCookie(w, r, oauthNonceCookie)
	st := h.readPostLoginState(w, r)

	dest := h.Router.GetPostAuthDestination(r.Context(), service.DestinationRequest{
		User:            result.User,
		RedirectURL:     st.RedirectURL,
		OrganizationID:  st.OrganizationID,
		SessionMetadata: result.Session.Metadata,
	})
	http.Redirect(w, r, dest.URL, http.StatusFound)
}

// Logout ends the session.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionCookie, err := r.Cookie(sessionCookieName); err == nil {
		if logoutErr := h.Svc.Logout(r.Context(), sessionCookie.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}
	h.clearCookie(w, r, sessionCookieName)

	redirectTo := h.LogoutURL
	if redirectTo == "" {
		redirectTo = h.Router.HandleProtectedRoute("/", nil)
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": redirectTo,
		})
		return
	}
	http.Redirect(w, r, redirectTo, http.StatusFound)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	session, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		if _, err := r.Cookie(sessionCookieName); err == nil {
			// Stale cookie; the session is gone or expired.
			h.clearCookie(w, r, sessionCookieName)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":          session.UserID,
			"external_id": session.ExternalID,
			"first_name":  session.FirstName,
			"last_name":   session.LastName,
			"email":       session.Email,
			"role":        session.Role,
		},
		"expires_at": session.ExpiresAt,
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func (h *AuthHandlers) secure(r *http.Request) bool {
	return h.SecureCookies || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *AuthHandlers) cookie(r *http.Request, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// clearCookie expires a cookie with the same attributes it was set with.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	c := h.cookie(r, name, "", -1)
	c.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, c)
}

type oauthCookieParams struct {
	State     string
	Nonce     string
	PostLogin postLoginState
}

// setOAuthCookies stores OAuth state, nonce, and the signed post-login state.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) error {
	encoded, err := h.Cookies.Encode(postLoginCookie, p.PostLogin)
	if err != nil {
		return err
	}
	http.SetCookie(w, h.cookie(r, oauthStateCookie, p.State, loginCookieMaxAge))
	http.SetCookie(w, h.cookie(r, oauthNonceCookie, p.Nonce, loginCookieMaxAge))
	http.SetCookie(w, h.cookie(r, postLoginCookie, encoded, loginCookieMaxAge))
	return nil
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	http.SetCookie(w, h.cookie(r, sessionCookieName, s.ID, int(time.Until(s.ExpiresAt).Seconds())))
}

// readPostLoginState decodes and clears the post-login cookie. A missing or
// tampered cookie yields the zero state, which resolves without a redirect.
func (h *AuthHandlers) readPostLoginState(w http.ResponseWriter, r *http.Request) postLoginState {
	var st postLoginState
	c, err := r.Cookie(postLoginCookie)
	if err != nil {
		return st
	}
	h.clearCookie(w, r, postLoginCookie)
	if decodeErr := h.Cookies.Decode(postLoginCookie, c.Value, &st); decodeErr != nil {
		h.logger().WarnContext(r.Context(), "discarding post-login cookie", "error", decodeErr)
		return postLoginState{}
	}
	return st
}
