//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// OrganizationStatus is the lifecycle state of an organization.
type OrganizationStatus string

const (
	OrganizationStatusActive   OrganizationStatus = "active"
	OrganizationStatusArchived OrganizationStatus = "archived"
)

// Organization is a tenant that users belong to through memberships.
type Organization struct {
	ID        string             `json:"id"         db:"id"`
	Name      string             `json:"name"       db:"name"`
	Slug      string             `json:"slug"       db:"slug"`
	Status    OrganizationStatus `json:"status"     db:"status"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the organization can be navigated to.
func (o *Organization) IsActive() bool {
	return o != nil && o.Status == OrganizationStatusActive
}

// MembershipStatus is the state of a membership.
type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusInactive MembershipStatus = "inactive"
)

// Role names seeded in the roles table.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// Membership relates a user to an organization with a role. At most one
// active membership exists per (user, organization).
type Membership struct {
	UserID         string           `json:"user_id"         db:"user_id"`
	OrganizationID string           `json:"organization_id" db:"organization_id"`
	RoleID         string           `json:"role_id"         db:"role_id"`
	Role           string           `json:"role"            db:"role_name"`
	Status         MembershipStatus `json:"status"          db:"status"`
	JoinedAt       time.Time        `json:"joined_at"       db:"joined_at"`
	CreatedAt      time.Time        `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"      db:"updated_at"`
}

// MembershipGrant names a membership to create. An empty Role means member.
type MembershipGrant struct {
	UserID         string
	OrganizationID string
	Role           string
}

// IsActive reports whether the membership grants access.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == MembershipStatusActive
}

// NormalizedRole returns the lowercased role name.
func (m *Membership) NormalizedRole() string {
	if m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m.Role))
}
