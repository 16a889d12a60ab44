package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/waypoint/internal/data/pgxutil"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
)

const membershipSelect = `
	SELECT
		m.user_id::text AS user_id,
		m.organization_id::text AS organization_id,
		m.role_id::text AS role_id,
		r.name AS role_name,
		m.status,
		m.joined_at,
		m.created_at,
		m.updated_at
	FROM memberships m
	JOIN roles r ON r.id = m.role_id`

const organizationColumns = `id::text AS id, name, slug, status, created_at, updated_at`

// OrganizationRepo provides read access to organizations and memberships, plus
// the writes used by the admin tooling and tests.
type OrganizationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewOrganizationRepo creates a new OrganizationRepo with real time provider.
func NewOrganizationRepo(db *sql.DB) *OrganizationRepo {
	return &OrganizationRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewOrganizationRepoWithTimeProvider creates a new OrganizationRepo with a custom time provider.
func NewOrganizationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *OrganizationRepo {
	return &OrganizationRepo{DB: db, timeProvider: tp}
}

// ListMembershipsForUser returns active memberships ordered by creation time ascending.
func (r *OrganizationRepo) ListMembershipsForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []model.Membership{}, nil
	}

	var out []model.Membership
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, membershipSelect+`
			WHERE m.user_id = $1 AND m.status = 'active'
			ORDER BY m.created_at ASC, m.organization_id ASC`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Membership])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list memberships: %w", apperrors.MapDBError(err))
	}
	if out == nil {
		out = []model.Membership{}
	}
	return out, nil
}

// GetMembership returns the user's membership in the organization, preferring
// the active one, or nil when none exists. Ids that are not UUIDs match nothing.
func (r *OrganizationRepo) GetMembership(
	ctx context.Context,
	userID, organizationID string,
) (*model.Membership, error) {
	if !validUUIDs(userID, organizationID) {
		return nil, nil
	}

	var out model.Membership
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, membershipSelect+`
			WHERE m.user_id = $1 AND m.organization_id = $2
			ORDER BY (m.status = 'active') DESC, m.updated_at DESC
			LIMIT 1`,
			userID, organizationID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Membership])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// GetOrganization returns the organization or a NotFound AppError.
func (r *OrganizationRepo) GetOrganization(ctx context.Context, organizationID string) (*model.Organization, error) {
	if !validUUIDs(organizationID) {
		return nil, apperrors.NotFound("Organization not found")
	}

	var out model.Organization
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, organizationID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Organization])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("Organization not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// CreateOrganization inserts an active organization.
func (r *OrganizationRepo) CreateOrganization(ctx context.Context, name, slug string) (*model.Organization, error) {
	name, slug = strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return nil, apperrors.ValidationField("name", "name is required")
	}
	if slug == "" {
		return nil, apperrors.ValidationField("slug", "slug is required")
	}

	now := r.timeProvider.Now().UTC()
	var out model.Organization
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO organizations (name, slug, status, created_at, updated_at)
			VALUES ($1, $2, 'active', $3, $3)
			RETURNING `+organizationColumns,
			name, slug, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Organization])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// AddMembership creates an active membership with the named role. A second
// active membership for the same pair is a Conflict.
func (r *OrganizationRepo) AddMembership(ctx context.Context, in model.MembershipGrant) (*model.Membership, error) {
	if !validUUIDs(in.UserID, in.OrganizationID) {
		return nil, apperrors.Validation("user_id and organization_id must be UUIDs")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = model.RoleMember
	}

	now := r.timeProvider.Now().UTC()
	var out model.Membership
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			WITH inserted AS (
				INSERT INTO memberships (user_id, organization_id, role_id, status, joined_at, created_at, updated_at)
				SELECT $1, $2, r.id, 'active', $4, $4, $4 FROM roles r WHERE r.name = $3
				RETURNING *
			)
			SELECT
				i.user_id::text AS user_id,
				i.organization_id::text AS organization_id,
				i.role_id::text AS role_id,
				$3::text AS role_name,
				i.status,
				i.joined_at,
				i.created_at,
				i.updated_at
			FROM inserted i`,
			in.UserID, in.OrganizationID, role, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Membership])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", role))
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// DeactivateMembership marks the user's active membership in the organization inactive.
func (r *OrganizationRepo) DeactivateMembership(ctx context.Context, userID, organizationID string) (bool, error) {
	if !validUUIDs(userID, organizationID) {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE memberships SET status = 'inactive', updated_at = $3
		WHERE user_id = $1 AND organization_id = $2 AND status = 'active'`,
		userID, organizationID, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
