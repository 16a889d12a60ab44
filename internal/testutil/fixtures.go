package testutil

import (
	"context"
	"database/sql"
	"time"
)

// MembershipSeed describes a membership row for InsertMembership.
type MembershipSeed struct {
	UserID         string
	OrganizationID string
	Role           string
	Status         string
	CreatedAt      time.Time
}

// InsertUser inserts a user with the given external id and raw preference
// document and returns its id. An empty document stores "{}".
func InsertUser(t TestingTB, db *sql.DB, externalID, preferences string) string {
	t.Helper()
	if preferences == "" {
		preferences = "{}"
	}

	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO users (external_id, email, preferences)
		VALUES ($1, $1 || '@example.com', $2::jsonb)
		RETURNING id::text`,
		externalID, preferences,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user %s: %v", externalID, err)
	}
	return id
}

// InsertOrganization inserts an organization and returns its id.
// An empty status stores "active".
func InsertOrganization(t TestingTB, db *sql.DB, slug, status string) string {
	t.Helper()
	if status == "" {
		status = "active"
	}

	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO organizations (name, slug, status)
		VALUES ($1, $1, $2)
		RETURNING id::text`,
		slug, status,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert organization %s: %v", slug, err)
	}
	return id
}

// InsertMembership inserts a membership using a seeded role name.
// Empty fields default to role "member", status "active" and the current time.
func InsertMembership(t TestingTB, db *sql.DB, m MembershipSeed) {
	t.Helper()
	if m.Role == "" {
		m.Role = "member"
	}
	if m.Status == "" {
		m.Status = "active"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO memberships (user_id, organization_id, role_id, status, joined_at, created_at, updated_at)
		SELECT $1, $2, r.id, $4, $5, $5, $5 FROM roles r WHERE r.name = $3`,
		m.UserID, m.OrganizationID, m.Role, m.Status, m.CreatedAt,
	)
	if err != nil {
		t.Fatalf("insert membership %s/%s: %v", m.UserID, m.OrganizationID, err)
	}
}
