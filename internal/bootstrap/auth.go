package bootstrap

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/adapters/authroles"
	"github.com/target/waypoint/internal/adapters/devauth"
	"github.com/target/waypoint/internal/adapters/oidc"
	redisadapter "github.com/target/waypoint/internal/adapters/redis"
	"github.com/target/waypoint/internal/ports"
	"github.com/target/waypoint/internal/service"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	RedisClient redis.UniversalClient
	// KeyPrefix namespaces session keys; "session:" is appended.
	KeyPrefix string
	Users     ports.UserSyncer
	Audit     *service.AuditRecorder
	Logger    *slog.Logger
}

// AuthComponents is what the auth wiring hands to the HTTP layer.
type AuthComponents struct {
	Service *service.AuthService
	// LogoutURL is the identity provider's end-session URL, empty when unknown.
	LogoutURL string
}

// BuildAuthService creates an auth service based on the configured auth mode.
// Service is nil if auth is not configured or configuration is invalid.
func BuildAuthService(cfg AuthConfig) AuthComponents {
	if cfg.RedisClient == nil {
		warn(cfg.Logger, "auth service disabled: redis client not configured", "mode", cfg.Auth.Mode)
		return AuthComponents{}
	}
	if cfg.Users == nil {
		warn(cfg.Logger, "auth service disabled: user directory not configured", "mode", cfg.Auth.Mode)
		return AuthComponents{}
	}

	sessionStore := redisadapter.NewSessionStore(cfg.RedisClient, redisadapter.WithKeyPrefix(cfg.KeyPrefix+"session:"))

	roleMapper := authroles.StaticRoleMapper{
		AdminGroup: cfg.Auth.AdminGroup,
		UserGroup:  cfg.Auth.UserGroup,
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return buildDevAuthService(cfg, sessionStore, roleMapper)
	case config.AuthModeOAuth:
		return buildOAuthService(cfg, sessionStore, roleMapper)
	default:
		return AuthComponents{}
	}
}

func warn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func newAuthService(cfg AuthConfig, prov ports.AuthProvider, sessions ports.SessionStore, roles ports.RoleMapper) *service.AuthService {
	return service.NewAuthService(service.AuthServiceOptions{
		Provider: prov,
		Sessions: sessions,
		Roles:    roles,
		Users:    cfg.Users,
		Audit:    cfg.Audit,
	})
}

func buildDevAuthService(
	cfg AuthConfig,
	sessionStore *redisadapter.SessionStore,
	roleMapper authroles.StaticRoleMapper,
) AuthComponents {
	dev := cfg.Auth.DevAuth
	prov, err := devauth.NewProvider(devauth.Config{
		UserID: dev.UserID,
		Email:  dev.Email,
		Groups: dev.Groups,
		OrgID:  dev.OrgID,
	})
	if err != nil {
		warn(cfg.Logger, "failed to create dev auth provider, auth disabled", "error", err)
		return AuthComponents{}
	}
	warn(cfg.Logger, "dev auth enabled; every sign-in is the configured identity", "user_id", dev.UserID)

	return AuthComponents{Service: newAuthService(cfg, prov, sessionStore, roleMapper)}
}

func buildOAuthService(
	cfg AuthConfig,
	sessionStore *redisadapter.SessionStore,
	roleMapper authroles.StaticRoleMapper,
) AuthComponents {
	// Only enable when fully configured
	oauth := cfg.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		warn(cfg.Logger, "AuthModeOAuth selected but required config missing; auth disabled",
			"discovery_url_empty", oauth.DiscoveryURL == "",
			"client_id_empty", oauth.ClientID == "",
			"client_secret_empty", oauth.ClientSecret == "",
		)
		return AuthComponents{}
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		LogoutURL:    oauth.LogoutURL,
	})
	if err != nil {
		warn(cfg.Logger, "failed to create OIDC provider, auth disabled", "error", err)
		return AuthComponents{}
	}

	return AuthComponents{
		Service:   newAuthService(cfg, prov, sessionStore, roleMapper),
		LogoutURL: prov.LogoutURL(),
	}
}
