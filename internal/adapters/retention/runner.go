// Package retention runs the audit retention loop as a service mode.
package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
	"github.com/target/waypoint/internal/observability/metrics"
	"github.com/target/waypoint/internal/ports"
	"github.com/target/waypoint/internal/service"
)

// Runner wires the audit retention service and runs its loop.
type Runner struct {
	retention *service.AuditRetentionService
	logger    *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB      *sql.DB
	Config  config.AuditRetentionConfig
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Store overrides the database-backed audit store.
	Store ports.AuditStore
}

// NewRunner creates a new retention runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	svc, err := wireRetentionService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire audit retention service: %w", err)
	}

	return &Runner{
		retention: svc,
		logger:    opts.Logger,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Store == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireRetentionService(opts RunnerOptions) (*service.AuditRetentionService, error) {
	store := opts.Store
	if store == nil {
		store = data.NewAuditRepo(opts.DB)
	}
	return service.NewAuditRetentionService(service.AuditRetentionServiceOptions{
		Store:   store,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
}

// Run starts the retention loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting audit retention runner")
	return r.retention.Run(ctx)
}
