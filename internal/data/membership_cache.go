package data

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/ports"
)

// MembershipCache decorates an OrganizationDirectory, caching each user's
// active membership list. Cache failures are logged and fall through to the
// wrapped directory. Membership writes go through Writer and then drop the
// user's cached list.
type MembershipCache struct {
	next   ports.OrganizationDirectory
	writer ports.MembershipWriter
	cache  ports.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// MembershipCacheOptions bundles dependencies for NewMembershipCache.
type MembershipCacheOptions struct {
	Next   ports.OrganizationDirectory
	Writer ports.MembershipWriter // Optional: enables AddMembership/DeactivateMembership
	Cache  ports.Cache
	TTL    time.Duration
	Logger *slog.Logger
}

var (
	_ ports.OrganizationDirectory = (*MembershipCache)(nil)
	_ ports.MembershipWriter      = (*MembershipCache)(nil)
)

var errNoMembershipWriter = errors.New("membership writer is not configured")

// NewMembershipCache returns opts.Next unchanged when there is no cache or the TTL is not positive.
//
//nolint:ireturn // callers only need the port; the undecorated directory is returned when caching is off.
func NewMembershipCache(opts MembershipCacheOptions) ports.OrganizationDirectory {
	if opts.Next == nil {
		panic("OrganizationDirectory is required")
	}
	if opts.Cache == nil || opts.TTL <= 0 {
		return opts.Next
	}
	return newMembershipCache(opts)
}

func newMembershipCache(opts MembershipCacheOptions) *MembershipCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipCache{
		next:   opts.Next,
		writer: opts.Writer,
		cache:  opts.Cache,
		ttl:    opts.TTL,
		logger: logger.With("component", "membership_cache"),
	}
}

// ListMembershipsForUser serves from cache when possible.
func (c *MembershipCache) ListMembershipsForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	key := membershipsKey(userID)

	if raw, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "membership cache read failed", "error", err)
	} else if raw != nil {
		var cached []model.Membership
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.WarnContext(ctx, "membership cache entry unreadable", "user_id", userID)
	}

	out, err := c.next.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "membership cache write failed", "error", err)
		}
	}
	return out, nil
}

// GetMembership passes through.
func (c *MembershipCache) GetMembership(ctx context.Context, userID, organizationID string) (*model.Membership, error) {
	return c.next.GetMembership(ctx, userID, organizationID)
}

// GetOrganization passes through.
func (c *MembershipCache) GetOrganization(ctx context.Context, organizationID string) (*model.Organization, error) {
	return c.next.GetOrganization(ctx, organizationID)
}

// AddMembership writes through and invalidates the user's cached list.
func (c *MembershipCache) AddMembership(ctx context.Context, grant model.MembershipGrant) (*model.Membership, error) {
	if c.writer == nil {
		return nil, errNoMembershipWriter
	}
	m, err := c.writer.AddMembership(ctx, grant)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, grant.UserID)
	return m, nil
}

// DeactivateMembership writes through and invalidates the user's cached list
// when a membership changed.
func (c *MembershipCache) DeactivateMembership(ctx context.Context, userID, organizationID string) (bool, error) {
	if c.writer == nil {
		return false, errNoMembershipWriter
	}
	changed, err := c.writer.DeactivateMembership(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	if changed {
		c.invalidate(ctx, userID)
	}
	return changed, nil
}

// invalidate never fails the write; a stale entry still expires after the TTL.
func (c *MembershipCache) invalidate(ctx context.Context, userID string) {
	if _, err := c.cache.Delete(ctx, membershipsKey(userID)); err != nil {
		c.logger.WarnContext(ctx, "membership cache invalidation failed", "user_id", userID, "error", err)
	}
}

func membershipsKey(userID string) string {
	return "memberships:user:" + userID
}
