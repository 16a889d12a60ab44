package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/observability/metrics"
)

// RouterServices holds everything the HTTP router serves.
type RouterServices struct {
	Auth         AuthServiceInterface // Required
	Destinations DestinationResolver  // Required
	Onboarding   OnboardingAPI        // Required

	// LoginCookies signs post-login state. Nil uses a random key.
	LoginCookies  *securecookie.SecureCookie
	CookieDomain  string
	SecureCookies bool
	LogoutURL     string
	// SignInPath is served as an alias of /auth/login.
	SignInPath string

	Health         map[string]HealthCheck
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // nil disables the scrape endpoint
	MetricsPath    string       // defaults to /metrics

	CompressionEnabled bool
	CompressionLevel   int

	Logger *slog.Logger
}

// NewRouter wires the routes and the middleware chain.
func NewRouter(s RouterServices) http.Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookies := s.LoginCookies
	if cookies == nil {
		cookies = NewLoginCookieCodec(nil)
	}

	authHandlers := &AuthHandlers{
		Svc:           s.Auth,
		Router:        s.Destinations,
		Cookies:       cookies,
		CookieDomain:  s.CookieDomain,
		SecureCookies: s.SecureCookies,
		LogoutURL:     s.LogoutURL,
		Logger:        logger,
	}
	onboarding := &OnboardingHandlers{Svc: s.Onboarding}
	destinations := &DestinationHandlers{Router: s.Destinations}
	health := &HealthHandler{Checks: s.Health}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logging(logger, s.Metrics))
	r.Use(Recover(logger))
	if s.CompressionEnabled {
		r.Use(Compression(s.CompressionLevel))
	}

	r.Method(http.MethodGet, "/healthz", health)
	r.Method(http.MethodHead, "/healthz", health)
	if s.MetricsHandler != nil {
		path := s.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.MetricsHandler)
	}

	registerAuthRoutes(r, authHandlers, s.SignInPath)

	r.With(RequireAuth(s.Auth, s.Destinations)).Get("/", destinations.Redirect)

	r.Route("/api", func(api chi.Router) {
		api.Use(RequireAuth(s.Auth, s.Destinations))
		api.Get("/auth/destination", destinations.Get)
		api.Get("/onboarding/status", onboarding.Status)
		api.Put("/onboarding/steps/{step}", onboarding.UpdateStep)
		api.Post("/onboarding/complete", onboarding.Complete)
		api.Post("/navigation/visits", onboarding.RecordVisit)
		api.With(RequireRole(s.Auth, domainauth.RoleAdmin)).
			Post("/admin/users/{id}/onboarding/reset", onboarding.Reset)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusMethodNotAllowed, ErrCode: "method_not_allowed"})
	})
	return r
}

func registerAuthRoutes(r chi.Router, h *AuthHandlers, signInPath string) {
	r.Get("/auth/login", h.Login)
	if signInPath != "" && signInPath != "/auth/login" {
		r.Get(signInPath, h.Login)
	}
	r.Get("/auth/callback", h.Callback)
	r.Post("/auth/logout", h.Logout)
	r.With(OptionalAuth(h.Svc)).Get("/auth/status", h.Status)
}
