// Package migrate applies the embedded schema migrations for users,
// organizations, memberships and the audit log.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration describes one embedded migration and whether it has been applied.
type Migration struct {
	Version   string
	File      string
	AppliedAt *time.Time
}

// Applied reports whether the migration has been recorded in schema_migrations.
func (m Migration) Applied() bool { return m.AppliedAt != nil }

// Run applies all SQL migrations embedded in this package. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) error {
	if err := ensureVersionTable(ctx, db); err != nil {
		return err
	}

	files, err := embeddedFiles()
	if err != nil {
		return err
	}

	logger := slog.Default().With("component", "migrations")
	for _, f := range files {
		if applyErr := applyMigration(ctx, db, logger, f); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Status lists every embedded migration in version order with its applied time, if any.
func Status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}

	files, err := embeddedFiles()
	if err != nil {
		return nil, err
	}

	applied := make(map[string]time.Time)
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			version string
			at      time.Time
		)
		if scanErr := rows.Scan(&version, &at); scanErr != nil {
			return nil, fmt.Errorf("scan applied migration: %w", scanErr)
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}

	out := make([]Migration, 0, len(files))
	for _, f := range files {
		m := f
		if at, ok := applied[m.Version]; ok {
			m.AppliedAt = &at
		}
		out = append(out, m)
	}
	return out, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// embeddedFiles returns the embedded migrations sorted by file name.
func embeddedFiles() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), File: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

func migrationExists(ctx context.Context, db *sql.DB, m Migration) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	if err := db.QueryRowContext(ctx, query, m.Version).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.File, err)
	}
	return exists, nil
}

func applyMigration(ctx context.Context, db *sql.DB, logger *slog.Logger, m Migration) error {
	exists, err := migrationExists(ctx, db, m)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	sqlBytes, err := migrationsFS.ReadFile("migrations/" + m.File)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.File, err)
	}

	logger.InfoContext(ctx, "applying migration", "version", m.Version)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", m.File)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", m.File, execErr)
	}
	if _, insertErr := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); insertErr != nil {
		return fmt.Errorf("record migration %s: %w", m.File, insertErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", m.File, commitErr)
	}
	return nil
}
