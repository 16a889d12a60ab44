package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/ports"
)

const defaultAuditWriteTimeout = 2 * time.Second

// AuditRecorderOptions groups dependencies for AuditRecorder.
type AuditRecorderOptions struct {
	Sink   ports.AuditSink    // Optional: required for modes that write to the store
	Config config.AuditConfig // Mode and write timeout
	Logger *slog.Logger       // Optional: structured logger
}

// AuditRecorder writes audit events to the configured outputs. Recording never
// fails from the caller's point of view; store errors are logged and dropped.
type AuditRecorder struct {
	sink    ports.AuditSink
	mode    config.AuditMode
	timeout time.Duration
	clock   data.TimeProvider
	logger  *slog.Logger
}

// NewAuditRecorder constructs an AuditRecorder. Without a sink the store
// outputs are skipped.
func NewAuditRecorder(opts AuditRecorderOptions) *AuditRecorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := opts.Config.Mode
	if mode == "" {
		mode = config.AuditModeAll
	}
	timeout := opts.Config.WriteTimeout
	if timeout <= 0 {
		timeout = defaultAuditWriteTimeout
	}
	return &AuditRecorder{
		sink:    opts.Sink,
		mode:    mode,
		timeout: timeout,
		clock:   &data.RealTimeProvider{},
		logger:  logger.With("component", "audit"),
	}
}

// WithClock returns a copy of the recorder that stamps events using clock.
func (r *AuditRecorder) WithClock(clock data.TimeProvider) *AuditRecorder {
	if r == nil || clock == nil {
		return r
	}
	cp := *r
	cp.clock = clock
	return &cp
}

// Record stamps the event and writes it to every enabled output.
// A nil recorder is a no-op.
func (r *AuditRecorder) Record(ctx context.Context, event model.AuditEvent) {
	if r == nil || r.mode == config.AuditModeOff {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.clock.Now().UTC()
	}

	if r.mode.WritesLog() {
		r.logger.InfoContext(ctx, "audit event",
			"audit_id", event.ID,
			"user_id", event.UserID,
			"organization_id", event.OrganizationID,
			"action", event.Action,
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
			"metadata", event.Metadata,
		)
	}

	if r.mode.WritesDB() && r.sink != nil {
		r.append(ctx, event)
	}
}

func (r *AuditRecorder) append(ctx context.Context, event model.AuditEvent) {
	// Survives request cancellation, bounded by the write timeout.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WarnContext(ctx, "audit sink panicked", "action", event.Action, "panic", rec)
		}
	}()

	if err := r.sink.Append(writeCtx, event); err != nil {
		r.logger.WarnContext(ctx, "audit append failed",
			"action", event.Action,
			"user_id", event.UserID,
			"error", err,
		)
	}
}
