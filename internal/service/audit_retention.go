package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
	"github.com/target/waypoint/internal/observability/metrics"
	"github.com/target/waypoint/internal/ports"
)

// AuditRetentionServiceOptions groups dependencies for AuditRetentionService.
type AuditRetentionServiceOptions struct {
	Store   ports.AuditStore            // Required: audit store to prune
	Config  config.AuditRetentionConfig // Required: retention configuration
	Logger  *slog.Logger                // Optional: structured logger
	Metrics *metrics.Metrics            // Optional: Prometheus collectors
}

// AuditRetentionService deletes audit events that have outlived the retention window.
type AuditRetentionService struct {
	store   ports.AuditStore
	config  config.AuditRetentionConfig
	clock   data.TimeProvider
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAuditRetentionService constructs a new AuditRetentionService.
func NewAuditRetentionService(opts AuditRetentionServiceOptions) (*AuditRetentionService, error) {
	if opts.Store == nil {
		return nil, errors.New("AuditStore is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "audit_retention")
		logger.Debug("AuditRetentionService initialized",
			"interval", opts.Config.Interval,
			"max_age", opts.Config.MaxAge,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &AuditRetentionService{
		store:   opts.Store,
		config:  opts.Config,
		clock:   &data.RealTimeProvider{},
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run prunes at the configured interval until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *AuditRetentionService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("audit retention: interval must be positive, got %v", s.config.Interval)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting audit retention", "interval", s.config.Interval)
	}

	// Jitter keeps several replicas from pruning in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx, "initial prune")

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "audit retention stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, "prune")
		}
	}
}

func (s *AuditRetentionService) tick(ctx context.Context, label string) {
	start := s.clock.Now()
	deleted, err := s.RunOnce(ctx)
	s.metrics.RecordRetention(metrics.RetentionMetric{
		Deleted: deleted,
		Elapsed: s.clock.Now().Sub(start),
		Err:     suppressContextCancellation(err),
	})
	s.logPruneError(err, label)
}

// RunOnce deletes every event older than the retention window, one batch at a
// time, until a batch comes back short. It returns the number deleted.
func (s *AuditRetentionService) RunOnce(ctx context.Context) (int64, error) {
	return s.PruneOlderThan(ctx, s.config.MaxAge)
}

// PruneOlderThan is RunOnce with an explicit age, used by the admin CLI.
func (s *AuditRetentionService) PruneOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("prune audit events: max age must be positive, got %v", maxAge)
	}
	batch := s.config.BatchSize
	if batch < 1 {
		batch = 1
	}
	cutoff := s.clock.Now().Add(-maxAge)

	var total int64
	for {
		count, err := s.store.DeleteOlderThan(ctx, cutoff, batch)
		if err != nil {
			return total, fmt.Errorf("prune audit events: %w", err)
		}
		total += count
		if count < int64(batch) {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "pruned audit events",
			"count", total,
			"max_age", maxAge,
			"cutoff", cutoff,
		)
	}
	return total, nil
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *AuditRetentionService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *AuditRetentionService) logPruneError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
