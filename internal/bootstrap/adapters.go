package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/adapters/retention"
	"github.com/target/waypoint/internal/observability/metrics"
	"github.com/target/waypoint/internal/ports"
)

// AuditRetentionConfig contains configuration for the audit retention runner.
type AuditRetentionConfig struct {
	DB      *sql.DB
	Store   ports.AuditStore // Optional: defaults to the database-backed store
	Logger  *slog.Logger
	Config  config.AuditRetentionConfig
	Metrics *metrics.Metrics
}

// RunAuditRetention starts the audit retention service.
func RunAuditRetention(ctx context.Context, cfg AuditRetentionConfig) error {
	runner, err := retention.NewRunner(retention.RunnerOptions{
		DB:      cfg.DB,
		Store:   cfg.Store,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create audit retention runner: %w", err)
	}

	return runner.Run(ctx)
}
