package ports

import (
	"context"
	"time"

	"github.com/target/waypoint/internal/domain/model"
)

// AuditSink appends audit events.
type AuditSink interface {
	Append(ctx context.Context, event model.AuditEvent) error
}

// AuditStore is an AuditSink that can also be queried and pruned.
type AuditStore interface {
	AuditSink
	List(ctx context.Context, opts model.AuditListOptions) ([]model.AuditEvent, error)
	// DeleteOlderThan removes up to limit events that occurred before cutoff and returns the count.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
