package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/waypoint/internal/data/database"
	"github.com/target/waypoint/internal/data/pgxutil"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
)

const (
	defaultAuditListLimit = 50
	maxAuditListLimit     = 500
)

var auditColumns = []string{
	"id::text AS id",
	"user_id",
	"organization_id",
	"action",
	"resource_type",
	"resource_id",
	"metadata",
	"occurred_at",
}

// AuditRepo is the append-only Postgres store for audit events.
type AuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAuditRepo creates a new AuditRepo with real time provider.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewAuditRepoWithTimeProvider creates a new AuditRepo with a custom time provider (useful for tests).
func NewAuditRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: tp}
}

// Append inserts one event. Missing ids and timestamps are filled in.
func (r *AuditRepo) Append(ctx context.Context, event model.AuditEvent) error {
	if event.Action == "" {
		return apperrors.ValidationField("action", "action is required")
	}
	if _, err := uuid.Parse(event.ID); err != nil {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.timeProvider.Now()
	}
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO audit_events (
				id, user_id, organization_id, action, resource_type, resource_id, metadata, occurred_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			event.ID,
			event.UserID,
			event.OrganizationID,
			event.Action,
			event.ResourceType,
			event.ResourceID,
			metadata,
			event.OccurredAt.UTC(),
		)
		return err
	}); err != nil {
		return fmt.Errorf("append audit event: %w", apperrors.MapDBError(err))
	}
	return nil
}

// List returns events newest first with optional filters.
func (r *AuditRepo) List(ctx context.Context, opts model.AuditListOptions) ([]model.AuditEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	if limit > maxAuditListLimit {
		limit = maxAuditListLimit
	}

	queryOpts := []database.ListQueryOption{
		database.WithColumns(auditColumns...),
		database.WithOrderBy("occurred_at", "DESC"),
		database.WithOrderBy("id", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(max(opts.Offset, 0)),
	}
	if opts.UserID != "" {
		queryOpts = append(queryOpts, database.WithCondition(database.WhereCond("user_id", database.Equal, opts.UserID)))
	}
	if opts.Action != "" {
		queryOpts = append(queryOpts, database.WithCondition(database.WhereCond("action", database.Equal, opts.Action)))
	}
	if opts.Since != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("occurred_at", database.GreaterThanOrEqual, opts.Since.UTC()),
		))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("audit_events", queryOpts...))

	var out []model.AuditEvent
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.AuditEvent])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list audit events: %w", apperrors.MapDBError(err))
	}
	if out == nil {
		out = []model.AuditEvent{}
	}
	return out, nil
}

// DeleteOlderThan removes up to limit events that occurred before cutoff and
// returns the count. A non-positive limit deletes every matching event.
func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if cutoff.IsZero() {
		return 0, errors.New("cutoff is required")
	}

	query := `DELETE FROM audit_events WHERE occurred_at < $1`
	args := []any{cutoff.UTC()}
	if limit > 0 {
		query = `
			DELETE FROM audit_events
			WHERE ctid IN (
				SELECT ctid FROM audit_events
				WHERE occurred_at < $1
				ORDER BY occurred_at ASC
				LIMIT $2
			)`
		args = append(args, limit)
	}

	var deleted int64
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	}); err != nil {
		return 0, fmt.Errorf("delete audit events: %w", apperrors.MapDBError(err))
	}
	return deleted, nil
}
