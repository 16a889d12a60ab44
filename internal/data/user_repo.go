package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/waypoint/internal/data/pgxutil"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
)

const userColumns = `id::text AS id, external_id, email, first_name, last_name, preferences, created_at, updated_at`

// userRow is the scanned shape of a users row. Preferences stay raw until decoded.
type userRow struct {
	ID          string    `db:"id"`
	ExternalID  string    `db:"external_id"`
	Email       string    `db:"email"`
	FirstName   string    `db:"first_name"`
	LastName    string    `db:"last_name"`
	Preferences []byte    `db:"preferences"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r userRow) toModel() (*model.User, error) {
	prefs, err := model.DecodePreferences(r.Preferences)
	if err != nil {
		return nil, fmt.Errorf("decode preferences for user %s: %w", r.ID, err)
	}
	return &model.User{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Preferences: prefs,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// UserRepo provides database operations for users and their preference documents.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a new UserRepo with real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a new UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

// Get returns the user or a NotFound AppError.
func (r *UserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("User not found")
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByExternalID looks a user up by identity-provider subject.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if externalID == "" {
		return nil, apperrors.NotFound("User not found")
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var row userRow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
		return err
	}); err != nil {
		if apperrors.IsNotFound(apperrors.MapDBError(err)) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return row.toModel()
}

// UpdatePreferences merges patch into the stored preferences under a row lock
// and returns the updated user. Concurrent updates to different keys both survive.
func (r *UserRepo) UpdatePreferences(
	ctx context.Context,
	id string,
	patch model.PreferencesPatch,
) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("User not found")
	}

	var out *model.User
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		current, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
		if err != nil {
			return err
		}
		user, err := current.toModel()
		if err != nil {
			return err
		}

		merged := user.Preferences.Apply(patch)
		doc, err := merged.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode preferences: %w", err)
		}

		rows, err = tx.Query(ctx, `
			UPDATE users SET preferences = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+userColumns,
			id, doc, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		updated, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
		if err != nil {
			return err
		}
		out, err = updated.toModel()
		return err
	}})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, mapped
	}
	return out, nil
}

// SyncFromIdentity creates the user on first login or refreshes the name and
// email from the identity provider. Preferences are never touched.
func (r *UserRepo) SyncFromIdentity(ctx context.Context, in model.IdentitySync) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, apperrors.ValidationField("external_id", err.Error())
	}

	defaults, err := model.DefaultPreferences().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode default preferences: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	var row userRow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO users (external_id, email, first_name, last_name, preferences, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (external_id) DO UPDATE SET
				email      = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
				first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
				last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
				updated_at = EXCLUDED.updated_at
			RETURNING `+userColumns,
			in.ExternalID, in.Email, in.FirstName, in.LastName, defaults, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return row.toModel()
}
