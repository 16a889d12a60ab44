package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
	httpx "github.com/target/waypoint/internal/http"
	"github.com/target/waypoint/internal/observability/metrics"
	"github.com/target/waypoint/internal/ports"
	"github.com/target/waypoint/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth        *service.AuthService
	Router      *service.AuthRouterService
	Onboarding  *service.OnboardingService
	Audit       *service.AuditRecorder
	// AuditStore is nil without a database.
	AuditStore  ports.AuditStore
	// Memberships writes go through the membership cache when Redis is configured.
	Memberships ports.MembershipWriter
	LogoutURL   string

	Health        map[string]httpx.HealthCheck
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Users         *data.UserRepo
	Organizations ports.OrganizationDirectory
	Memberships   ports.MembershipWriter
	Audit         *data.AuditRepo
	Cache         *data.RedisCacheRepo
}

// buildObservability registers collectors on a private registry so /metrics
// only exposes what this process owns.
func buildObservability(cfg config.ObservabilityConfig) ObservabilityContainer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return ObservabilityContainer{
		Registry:      reg,
		Metrics:       metrics.New(reg),
		MetricsConfig: cfg.Metrics,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(cfg *config.AppConfig, db *sql.DB, rdb redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	orgRepo := data.NewOrganizationRepo(db)
	repos := &serviceRepositories{
		Users:         data.NewUserRepo(db),
		Organizations: orgRepo,
		Memberships:   orgRepo,
		Audit:         data.NewAuditRepo(db),
	}
	if rdb != nil {
		repos.Cache = data.NewRedisCacheRepo(rdb, cfg.Cache.KeyPrefix)
		repos.Organizations = data.NewMembershipCache(data.MembershipCacheOptions{
			Next:   orgRepo,
			Writer: orgRepo,
			Cache:  repos.Cache,
			TTL:    cfg.Cache.MembershipTTL,
			Logger: logger,
		})
		if w, ok := repos.Organizations.(ports.MembershipWriter); ok {
			repos.Memberships = w
		}
	}
	return repos
}

func newAuditRecorder(repos *serviceRepositories, cfg config.AuditConfig, logger *slog.Logger) *service.AuditRecorder {
	var sink ports.AuditSink
	if repos.Audit != nil {
		sink = repos.Audit
	}
	return service.NewAuditRecorder(service.AuditRecorderOptions{
		Sink:   sink,
		Config: cfg,
		Logger: logger,
	})
}

// DomainServicesOptions groups inputs for wiring the routing and onboarding services.
type DomainServicesOptions struct {
	Config        *config.AppConfig
	Repos         *serviceRepositories
	Audit         *service.AuditRecorder
	Observability ObservabilityContainer
	Logger        *slog.Logger
}

type domainServices struct {
	Router     *service.AuthRouterService
	Onboarding *service.OnboardingService
}

// buildDomainServices wires business services using repositories and observability adapters.
func buildDomainServices(opts *DomainServicesOptions) (domainServices, error) {
	cfg := opts.Config
	validator := service.NewRedirectValidator(service.RedirectValidatorOptions{
		Organizations: opts.Repos.Organizations,
		Config: service.RedirectValidatorConfig{
			BaseURL:        cfg.HTTP.BaseURL,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		},
		Logger: opts.Logger,
	})
	status := service.NewOnboardingStatusResolver(service.OnboardingStatusResolverOptions{
		Organizations: opts.Repos.Organizations,
	})

	router, err := service.NewAuthRouterService(service.AuthRouterServiceOptions{
		Deps: service.AuthRouterDeps{
			Users:         opts.Repos.Users,
			Organizations: opts.Repos.Organizations,
			Validator:     validator,
			Onboarding:    status,
			Audit:         opts.Audit,
			Metrics:       opts.Observability.Metrics,
		},
		Config: cfg.Routing,
		Logger: opts.Logger,
	})
	if err != nil {
		return domainServices{}, fmt.Errorf("build auth router: %w", err)
	}

	onboarding := service.NewOnboardingService(service.OnboardingServiceOptions{
		Deps: service.OnboardingDeps{
			Users:     opts.Repos.Users,
			Resolver:  status,
			Validator: validator,
			Audit:     opts.Audit,
		},
		Logger: opts.Logger,
	})

	return domainServices{Router: router, Onboarding: onboarding}, nil
}

func buildHealthChecks(db *sql.DB, cache *data.RedisCacheRepo) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if cache != nil {
		checks["redis"] = cache.Health
	}
	return checks
}

// NewServices creates the service container.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(cfg.Observability)
	repos := buildRepositories(cfg, deps.DB, deps.RedisClient, logger)
	audit := newAuditRecorder(repos, cfg.Audit, logger)

	domain, err := buildDomainServices(&DomainServicesOptions{
		Config:        cfg,
		Repos:         repos,
		Audit:         audit,
		Observability: obs,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	auth := BuildAuthService(AuthConfig{
		Auth:        cfg.Auth,
		RedisClient: deps.RedisClient,
		KeyPrefix:   cfg.Cache.KeyPrefix,
		Users:       repos.Users,
		Audit:       audit,
		Logger:      logger,
	})

	return ServiceContainer{
		Auth:          auth.Service,
		Router:        domain.Router,
		Onboarding:    domain.Onboarding,
		Audit:         audit,
		AuditStore:    repos.Audit,
		Memberships:   repos.Memberships,
		LogoutURL:     auth.LogoutURL,
		Health:        buildHealthChecks(deps.DB, repos.Cache),
		Observability: obs,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newAuditRetentionBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeAuditRetention,
		name: "audit retention",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var retentionCfg config.AuditRetentionConfig
			if deps.cfg.Config != nil {
				retentionCfg = deps.cfg.Config.Audit.Retention
			}
			return RunAuditRetention(ctx, AuditRetentionConfig{
				DB:      deps.cfg.DB,
				Store:   deps.cfg.Services.AuditStore,
				Logger:  deps.logger,
				Config:  retentionCfg,
				Metrics: deps.cfg.Services.Observability.Metrics,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newAuditRetentionBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		quit:        quit,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	quit        <-chan os.Signal
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already cancelled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
