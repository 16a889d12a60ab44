package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	"github.com/target/waypoint/internal/service"
)

func newTestAuthHandlers(svc AuthServiceInterface, router DestinationResolver) *AuthHandlers {
	return &AuthHandlers{
		Svc:     svc,
		Router:  router,
		Cookies: NewLoginCookieCodec([]byte("0123456789abcdef0123456789abcdef")),
	}
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodePostLogin(t *testing.T, h *AuthHandlers, c *http.Cookie) postLoginState {
	t.Helper()
	require.NotNil(t, c)
	var st postLoginState
	require.NoError(t, h.Cookies.Decode(postLoginCookie, c.Value, &st))
	return st
}

func TestAuthHandlers_Login_Success(t *testing.T) {
	var gotTarget string
	svc := &mockAuthService{
		beginLoginFunc: func(_ context.Context, redirectURL string) (*service.BeginLoginResult, error) {
			gotTarget = redirectURL
			return &service.BeginLoginResult{AuthURL: "https://idp.example.com/auth", State: "s", Nonce: "n"}, nil
		},
	}
	h := newTestAuthHandlers(svc, &fakeResolver{})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/sign-in", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://idp.example.com/auth", w.Header().Get("Location"))
	assert.Equal(t, "/", gotTarget)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Len(t, resp.Cookies(), 3)
	assert.Equal(t, "s", cookieByName(resp, oauthStateCookie).Value)
	assert.Equal(t, "n", cookieByName(resp, oauthNonceCookie).Value)
	assert.Equal(t, postLoginState{}, decodePostLogin(t, h, cookieByName(resp, postLoginCookie)))
}

func TestAuthHandlers_Login_StoresRedirectAndOrganization(t *testing.T) {
	h := newTestAuthHandlers(&mockAuthService{}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet,
		"/sign-in?redirect_url=%2Fdashboard%2Fsettings&tab=security&organization_id=org-9", nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	resp := w.Result()
	defer resp.Body.Close()
	st := decodePostLogin(t, h, cookieByName(resp, postLoginCookie))
	assert.Equal(t, "/dashboard/settings?tab=security", st.RedirectURL)
	assert.Equal(t, "org-9", st.OrganizationID)
}

func TestAuthHandlers_Login_BeginError(t *testing.T) {
	svc := &mockAuthService{
		beginLoginFunc: func(context.Context, string) (*service.BeginLoginResult, error) {
			return nil, errors.New("provider down")
		},
	}
	h := newTestAuthHandlers(svc, &fakeResolver{})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "login_failed")
}

func TestComposeRedirectCandidate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "no redirect", query: "tab=1", want: ""},
		{name: "bare redirect", query: "redirect_url=%2Fdashboard", want: "/dashboard"},
		{name: "extra params merged", query: "redirect_url=%2Freports&range=7d", want: "/reports?range=7d"},
		{
			name:  "existing keys win",
			query: "redirect_url=%2Freports%3Frange%3D30d&range=7d",
			want:  "/reports?range=30d",
		},
		{name: "organization not merged", query: "redirect_url=%2Freports&organization_id=o1", want: "/reports"},
		{name: "whitespace trimmed", query: "redirect_url=%20%2Fdashboard%20", want: "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, composeRedirectCandidate(q))
		})
	}
}

func callbackRequest(t *testing.T, h *AuthHandlers, st postLoginState) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	req.AddCookie(&http.Cookie{Name: oauthNonceCookie, Value: "test-nonce"})
	encoded, err := h.Cookies.Encode(postLoginCookie, st)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: postLoginCookie, Value: encoded})
	return req
}

func TestAuthHandlers_Callback_RedirectsToResolvedDestination(t *testing.T) {
	var gotInput service.CompleteLoginInput
	svc := &mockAuthService{
		completeLoginFunc: func(_ context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
			gotInput = in
			return &service.CompleteLoginResult{
				Session: domainauth.Session{
					ID:        "test-session-id",
					UserID:    "user-1",
					Role:      domainauth.RoleUser,
					Metadata:  map[string]any{"org_id": "org-hint"},
					ExpiresAt: time.Now().Add(time.Hour),
				},
				User: &model.User{ID: "user-1"},
			}, nil
		},
	}
	resolver := &fakeResolver{dest: model.AuthDestination{URL: "/org/org-9/dashboard", Reason: model.ReasonOrgContext}}
	h := newTestAuthHandlers(svc, resolver)

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, h, postLoginState{RedirectURL: "/reports", OrganizationID: "org-9"}))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/org/org-9/dashboard", w.Header().Get("Location"))
	assert.Equal(t, service.CompleteLoginInput{Code: "abc", State: "test-state", Nonce: "test-nonce"}, gotInput)

	req := resolver.last()
	require.NotNil(t, req.User)
	assert.Equal(t, "user-1", req.User.ID)
	assert.Equal(t, "/reports", req.RedirectURL)
	assert.Equal(t, "org-9", req.OrganizationID)
	assert.Equal(t, "org-hint", req.SessionMetadata["org_id"])

	resp := w.Result()
	defer resp.Body.Close()
	sess := cookieByName(resp, sessionCookieName)
	require.NotNil(t, sess)
	assert.Equal(t, "test-session-id", sess.Value)
	assert.True(t, sess.HttpOnly)
	for _, name := range []string{oauthStateCookie, oauthNonceCookie, postLoginCookie} {
		c := cookieByName(resp, name)
		require.NotNil(t, c, name)
		assert.Negative(t, c.MaxAge, name)
	}
}

func TestAuthHandlers_Callback_TamperedPostLoginCookie(t *testing.T) {
	resolver := &fakeResolver{}
	h := newTestAuthHandlers(&mockAuthService{}, resolver)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	req.AddCookie(&http.Cookie{Name: oauthNonceCookie, Value: "test-nonce"})
	req.AddCookie(&http.Cookie{Name: postLoginCookie, Value: "forged"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, model.DefaultDashboardPath, w.Header().Get("Location"))
	assert.Empty(t, resolver.last().RedirectURL)
	assert.Empty(t, resolver.last().OrganizationID)
}

func TestAuthHandlers_Callback_CookieFromOtherKeyIsIgnored(t *testing.T) {
	resolver := &fakeResolver{}
	h := newTestAuthHandlers(&mockAuthService{}, resolver)
	other := &AuthHandlers{Cookies: securecookie.New([]byte("another-key-another-key-another!!"), nil)}

	req := callbackRequest(t, other, postLoginState{RedirectURL: "/admin"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, resolver.last().RedirectURL)
}

func TestAuthHandlers_Callback_Validation(t *testing.T) {
	h := newTestAuthHandlers(&mockAuthService{}, &fakeResolver{})

	tests := []struct {
		name    string
		target  string
		cookies []*http.Cookie
		errCode string
	}{
		{name: "missing code", target: "/auth/callback?state=s", errCode: "missing_code"},
		{name: "missing state", target: "/auth/callback?code=c", errCode: "missing_state"},
		{
			name:    "state mismatch",
			target:  "/auth/callback?code=c&state=s",
			cookies: []*http.Cookie{{Name: oauthStateCookie, Value: "other"}},
			errCode: "invalid_state",
		},
		{
			name:    "missing nonce",
			target:  "/auth/callback?code=c&state=s",
			cookies: []*http.Cookie{{Name: oauthStateCookie, Value: "s"}},
			errCode: "missing_nonce",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			w := httptest.NewRecorder()
			h.Callback(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.errCode)
		})
	}
}

func TestAuthHandlers_Callback_SuspendedUser(t *testing.T) {
	svc := &mockAuthService{
		completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
			return nil, apperrors.Forbidden("account suspended")
		},
	}
	resolver := &fakeResolver{}
	h := newTestAuthHandlers(svc, resolver)

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, h, postLoginState{}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "account suspended")
	assert.Empty(t, resolver.requests)
}

func TestAuthHandlers_Callback_CompletionError(t *testing.T) {
	svc := &mockAuthService{
		completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
			return nil, errors.New("token exchange failed: secret detail")
		},
	}
	h := newTestAuthHandlers(svc, &fakeResolver{})

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, h, postLoginState{}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "login_completion_failed")
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestAuthHandlers_Logout(t *testing.T) {
	t.Run("json response", func(t *testing.T) {
		var loggedOut string
		svc := &mockAuthService{logoutFunc: func(_ context.Context, id string) error {
			loggedOut = id
			return nil
		}}
		h := newTestAuthHandlers(svc, &fakeResolver{})

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Accept", "application/json")
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-1"})
		w := httptest.NewRecorder()
		h.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "valid-1", loggedOut)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "/sign-in", body["redirect_to"])
	})

	t.Run("browser redirect to identity provider", func(t *testing.T) {
		svc := &mockAuthService{logoutFunc: func(context.Context, string) error { return errors.New("gone") }}
		h := newTestAuthHandlers(svc, &fakeResolver{})
		h.LogoutURL = "https://idp.example.com/logout"

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-1"})
		w := httptest.NewRecorder()
		h.Logout(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://idp.example.com/logout", w.Header().Get("Location"))
		resp := w.Result()
		defer resp.Body.Close()
		c := cookieByName(resp, sessionCookieName)
		require.NotNil(t, c)
		assert.Negative(t, c.MaxAge)
	})
}

func TestAuthHandlers_Status(t *testing.T) {
	h := newTestAuthHandlers(&mockAuthService{}, &fakeResolver{})

	t.Run("authenticated", func(t *testing.T) {
		sess := &domainauth.Session{
			ID:        "valid-1",
			UserID:    "user-1",
			Email:     "a@example.com",
			Role:      domainauth.RoleAdmin,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
		req = req.WithContext(SetSessionInContext(req.Context(), sess))
		w := httptest.NewRecorder()
		h.Status(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Authenticated bool           `json:"authenticated"`
			User          map[string]any `json:"user"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Authenticated)
		assert.Equal(t, "user-1", body.User["id"])
		assert.Equal(t, "admin", body.User["role"])
	})

	t.Run("stale cookie is cleared", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "expired"})
		w := httptest.NewRecorder()
		h.Status(w, req)

		assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())
		resp := w.Result()
		defer resp.Body.Close()
		c := cookieByName(resp, sessionCookieName)
		require.NotNil(t, c)
		assert.Negative(t, c.MaxAge)
	})
}

func TestAuthHandlers_SecureCookies(t *testing.T) {
	h := newTestAuthHandlers(&mockAuthService{}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	assert.False(t, h.secure(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, h.secure(req))

	h.SecureCookies = true
	assert.True(t, h.secure(httptest.NewRequest(http.MethodGet, "/auth/login", nil)))
}
