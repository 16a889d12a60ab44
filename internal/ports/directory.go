package ports

import (
	"context"

	"github.com/target/waypoint/internal/domain/model"
)

// UserDirectory reads users and merges preference updates.
type UserDirectory interface {
	// Get returns the user or a NotFound AppError.
	Get(ctx context.Context, id string) (*model.User, error)
	// GetByExternalID looks a user up by identity-provider id.
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	// UpdatePreferences merges patch into the stored preferences and returns the updated user.
	UpdatePreferences(ctx context.Context, id string, patch model.PreferencesPatch) (*model.User, error)
}

// UserSyncer creates or refreshes a user from identity-provider data.
type UserSyncer interface {
	SyncFromIdentity(ctx context.Context, in model.IdentitySync) (*model.User, error)
}

// OrganizationDirectory reads organizations and memberships.
type OrganizationDirectory interface {
	// ListMembershipsForUser returns active memberships ordered by creation time ascending.
	ListMembershipsForUser(ctx context.Context, userID string) ([]model.Membership, error)
	// GetMembership returns the user's membership in the organization, or nil when none exists.
	GetMembership(ctx context.Context, userID, organizationID string) (*model.Membership, error)
	// GetOrganization returns the organization or a NotFound AppError.
	GetOrganization(ctx context.Context, organizationID string) (*model.Organization, error)
}

// MembershipWriter changes memberships. Implementations that cache membership
// lists drop the user's entry after a successful write.
type MembershipWriter interface {
	// AddMembership creates an active membership; a duplicate is a Conflict AppError.
	AddMembership(ctx context.Context, grant model.MembershipGrant) (*model.Membership, error)
	// DeactivateMembership reports whether an active membership was deactivated.
	DeactivateMembership(ctx context.Context, userID, organizationID string) (bool, error)
}
