package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "all services enabled",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeAuditRetention},
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestGetEnabledServices_StableOrder(t *testing.T) {
	cfg := &config.AppConfig{Services: "audit-retention, http"}
	assert.Equal(t, []string{"http", "audit-retention"}, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "reaper"}))
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http"}))
}

func TestBuildObservability(t *testing.T) {
	obs := buildObservability(config.ObservabilityConfig{
		Metrics: config.ObservabilityMetricsConfig{Enabled: true, Path: "/metrics"},
	})
	require.NotNil(t, obs.Registry)
	require.NotNil(t, obs.Metrics)

	obs.Metrics.RecordDestination("Default dashboard")
	n, err := testutil.GatherAndCount(obs.Registry, "waypoint_auth_destinations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildHealthChecks(t *testing.T) {
	assert.Empty(t, buildHealthChecks(nil, nil))

	checks := buildHealthChecks(nil, &data.RedisCacheRepo{})
	assert.Contains(t, checks, "redis")
	assert.NotContains(t, checks, "postgres")
}

func TestBuildRepositories_MembershipWriter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })

	t.Run("without redis writes hit the repo", func(t *testing.T) {
		repos := buildRepositories(&config.AppConfig{}, nil, nil, logger)
		assert.IsType(t, &data.OrganizationRepo{}, repos.Memberships)
	})

	t.Run("with the cache writes invalidate it", func(t *testing.T) {
		cfg := &config.AppConfig{Cache: config.CacheConfig{MembershipTTL: time.Minute}}
		repos := buildRepositories(cfg, nil, rdb, logger)
		assert.IsType(t, &data.MembershipCache{}, repos.Memberships)
		assert.Same(t, repos.Organizations, repos.Memberships)
	})

	t.Run("zero ttl skips the cache", func(t *testing.T) {
		repos := buildRepositories(&config.AppConfig{}, nil, rdb, logger)
		assert.IsType(t, &data.OrganizationRepo{}, repos.Memberships)
	})
}

func TestNewServices_RequiresDeps(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{Config: &config.AppConfig{}})
	require.Error(t, err)
}

func TestBuildHTTPHandler_RequiresAuth(t *testing.T) {
	_, err := BuildHTTPHandler(&config.AppConfig{}, ServiceContainer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestWaitForShutdown_ServiceError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	boom := errors.New("retention failed")
	errCh <- boom

	done := make(chan struct{})
	close(done)

	err := waitForShutdown(shutdownConfig{
		ctx:         ctx,
		cancel:      cancel,
		quit:        make(chan os.Signal),
		errCh:       errCh,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		backgrounds: []backgroundServiceHandle{{mode: config.ServiceModeAuditRetention, name: "audit retention", done: done}},
	})
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWaitForShutdown_Signal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	quit <- syscall.SIGTERM

	err := waitForShutdown(shutdownConfig{
		ctx:    ctx,
		cancel: cancel,
		quit:   quit,
		errCh:  make(chan error),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestLaunchBackground_ReportsErrors(t *testing.T) {
	errCh := make(chan error, 1)
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeAuditRetention: true},
		errCh:           errCh,
	}

	done := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeAuditRetention,
		name:  "audit retention",
		start: func(context.Context) error { return errors.New("db gone") },
	})
	require.NotNil(t, done)

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "audit retention failed")
	case <-time.After(time.Second):
		t.Fatal("expected background error")
	}
	<-done

	disabled := launchBackground(deps.ctx, deps, backgroundService{mode: config.ServiceModeHTTP, name: "http"})
	assert.Nil(t, disabled)
}
