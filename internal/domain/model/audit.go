//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "time"

// Audit resource types.
const (
	AuditResourceDestination = "auth_destination"
	AuditResourceUser        = "user"
	AuditResourceSession     = "session"
)

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	ID             string         `json:"id"                        db:"id"`
	UserID         string         `json:"user_id"                   db:"user_id"`
	OrganizationID string         `json:"organization_id,omitempty" db:"organization_id"`
	Action         string         `json:"action"                    db:"action"`
	ResourceType   string         `json:"resource_type"             db:"resource_type"`
	ResourceID     string         `json:"resource_id,omitempty"     db:"resource_id"`
	Metadata       map[string]any `json:"metadata,omitempty"        db:"metadata"`
	OccurredAt     time.Time      `json:"occurred_at"               db:"occurred_at"`
}

// AuditListOptions filters and pages audit events, newest first.
type AuditListOptions struct {
	UserID string
	Action string
	Since  *time.Time
	Limit  int
	Offset int
}
