package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/observability/metrics"
)

func okHandler(t *testing.T, wantUser string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := GetUserSessionFromContext(r.Context())
		if assert.True(t, ok) {
			assert.Equal(t, wantUser, s.UserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_Success(t *testing.T) {
	handler := RequireAuth(&mockAuthService{}, &fakeResolver{})(okHandler(t, "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/onboarding/status", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_Unauthenticated(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler must not run")
	})
	handler := RequireAuth(&mockAuthService{}, &fakeResolver{})(next)

	tests := []struct {
		name     string
		target   string
		accept   string
		xhr      bool
		cookie   string
		wantCode int
		wantLoc  string
	}{
		{
			name:     "browser redirected with path and query",
			target:   "/reports?range=7d",
			accept:   "text/html,application/xhtml+xml",
			wantCode: http.StatusSeeOther,
			wantLoc:  "/sign-in?range=7d&redirect_url=%2Freports",
		},
		{
			name:     "browser at root gets bare sign-in",
			target:   "/",
			wantCode: http.StatusSeeOther,
			wantLoc:  "/sign-in",
		},
		{
			name:     "expired cookie treated as missing",
			target:   "/reports",
			accept:   "text/html",
			cookie:   "expired",
			wantCode: http.StatusSeeOther,
			wantLoc:  "/sign-in?redirect_url=%2Freports",
		},
		{name: "api path gets 401", target: "/api/onboarding/status", accept: "text/html", wantCode: http.StatusUnauthorized},
		{name: "xhr gets 401", target: "/reports", xhr: true, wantCode: http.StatusUnauthorized},
		{name: "json client gets 401", target: "/reports", accept: "application/json", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.xhr {
				req.Header.Set("X-Requested-With", "XMLHttpRequest")
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantLoc != "" {
				loc, err := url.Parse(w.Header().Get("Location"))
				require.NoError(t, err)
				want, err := url.Parse(tt.wantLoc)
				require.NoError(t, err)
				assert.Equal(t, want.Path, loc.Path)
				assert.Equal(t, want.Query(), loc.Query())
			} else {
				assert.Contains(t, w.Body.String(), "authentication_required")
			}
		})
	}
}

func TestRequireAuth_NilRedirectorAlwaysReturns401(t *testing.T) {
	handler := RequireAuth(&mockAuthService{}, nil)(http.NotFoundHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	admin := &domainauth.Session{ID: "a", UserID: "admin-1", Role: domainauth.RoleAdmin}
	user := &domainauth.Session{ID: "u", UserID: "user-1", Role: domainauth.RoleUser}

	tests := []struct {
		name     string
		session  *domainauth.Session
		cookie   string
		wantCode int
	}{
		{name: "admin from context", session: admin, wantCode: http.StatusOK},
		{name: "user from context", session: user, wantCode: http.StatusForbidden},
		{name: "user from cookie", cookie: "valid-1", wantCode: http.StatusForbidden},
		{name: "no session", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
			handler := RequireRole(&mockAuthService{}, domainauth.RoleAdmin)(next)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/users/x/onboarding/reset", nil)
			if tt.session != nil {
				req = req.WithContext(SetSessionInContext(req.Context(), tt.session))
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	var seen *domainauth.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := OptionalAuth(&mockAuthService{})(next)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-2"})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.NotNil(t, seen)
	assert.Equal(t, "valid-2", seen.ID)
}

func TestHasRequiredRole(t *testing.T) {
	assert.True(t, hasRequiredRole(domainauth.RoleAdmin, domainauth.RoleUser))
	assert.True(t, hasRequiredRole(domainauth.RoleUser, domainauth.RoleUser))
	assert.True(t, hasRequiredRole(domainauth.RoleGuest, domainauth.RoleGuest))
	assert.False(t, hasRequiredRole(domainauth.RoleGuest, domainauth.RoleUser))
	assert.False(t, hasRequiredRole(domainauth.RoleUser, domainauth.RoleAdmin))
	assert.False(t, hasRequiredRole(domainauth.Role("superuser"), domainauth.RoleUser))
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"internal"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	handler := Recover(slog.Default())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogging_ObservesRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	handler := Logging(logger, m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, buf.String(), `"status":418`)
	n, err := testutil.GatherAndCount(reg, "waypoint_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLogging_NilMetrics(t *testing.T) {
	handler := Logging(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIsBrowserRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	assert.True(t, isBrowserRequest(req))

	req.Header.Set("Accept", "application/json")
	assert.False(t, isBrowserRequest(req))

	req.Header.Set("Accept", "text/html")
	assert.True(t, isBrowserRequest(req))

	assert.False(t, isBrowserRequest(httptest.NewRequest(http.MethodGet, "/api/auth/destination", nil)))
}
