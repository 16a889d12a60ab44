package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/target/waypoint/config"
	httpx "github.com/target/waypoint/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives the listener error if the server stops unexpectedly.
	ErrCh chan<- error
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := BuildHTTPHandler(appCfg, cfg.Services, logger)
	if err != nil {
		return nil, err
	}

	// Bind synchronously so a taken port fails startup instead of a goroutine.
	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := newServer(handler, addr)
	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", serveErr)
			if cfg.ErrCh != nil {
				select {
				case cfg.ErrCh <- fmt.Errorf("http server: %w", serveErr):
				default:
				}
			}
		}
	}()

	return server, nil
}

// BuildHTTPHandler wires the router from the service container.
func BuildHTTPHandler(appCfg *config.AppConfig, svcs ServiceContainer, logger *slog.Logger) (http.Handler, error) {
	if svcs.Auth == nil {
		return nil, errors.New("http server requires a configured auth service")
	}
	if svcs.Router == nil || svcs.Onboarding == nil {
		return nil, errors.New("http server requires routing and onboarding services")
	}

	var metricsHandler http.Handler
	obs := svcs.Observability
	if obs.MetricsConfig.IsEnabled() && obs.Registry != nil {
		metricsHandler = promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})
	}
	if appCfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", appCfg.HTTP.CompressionLevel)
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:               svcs.Auth,
		Destinations:       svcs.Router,
		Onboarding:         svcs.Onboarding,
		LoginCookies:       httpx.NewLoginCookieCodec([]byte(appCfg.HTTP.CookieHashKey)),
		CookieDomain:       appCfg.HTTP.CookieDomain,
		SecureCookies:      appCfg.HTTP.SecureCookies(),
		LogoutURL:          svcs.LogoutURL,
		SignInPath:         appCfg.Routing.SignInPath,
		Health:             svcs.Health,
		Metrics:            obs.Metrics,
		MetricsHandler:     metricsHandler,
		MetricsPath:        obs.MetricsConfig.Path,
		CompressionEnabled: appCfg.HTTP.CompressionEnabled,
		CompressionLevel:   appCfg.HTTP.CompressionLevel,
		Logger:             logger,
	}), nil
}

func newServer(handler http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(ctx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
