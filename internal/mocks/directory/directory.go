// Package directory contains in-memory fakes for the user, organization and
// audit ports. They are safe for concurrent use and suitable for unit tests
// without codegen.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	"github.com/target/waypoint/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.UserDirectory         = (*Users)(nil)
	_ ports.UserSyncer            = (*Users)(nil)
	_ ports.OrganizationDirectory = (*Organizations)(nil)
	_ ports.AuditStore            = (*AuditLog)(nil)
)

// Users is an in-memory UserDirectory and UserSyncer.
type Users struct {
	mu         sync.Mutex
	users      map[string]model.User
	byExternal map[string]string
	nextID     int

	// Error injection. A non-nil value is returned by the matching method.
	GetErr    error
	UpdateErr error
	SyncErr   error

	// Counters for assertions.
	GetCalls    int
	UpdateCalls int
	Patches     []model.PreferencesPatch
}

// NewUsers returns a directory seeded with users.
func NewUsers(users ...model.User) *Users {
	u := &Users{users: map[string]model.User{}, byExternal: map[string]string{}}
	for _, user := range users {
		u.Put(user)
	}
	return u
}

// Put stores or replaces a user.
func (u *Users) Put(user model.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user.Preferences = user.Preferences.Clone()
	u.users[user.ID] = user
	if user.ExternalID != "" {
		u.byExternal[user.ExternalID] = user.ID
	}
}

// Snapshot returns the stored user without going through Get.
func (u *Users) Snapshot(id string) (model.User, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if ok {
		user.Preferences = user.Preferences.Clone()
	}
	return user, ok
}

// Get returns a copy of the user or a NotFound AppError.
func (u *Users) Get(_ context.Context, id string) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.GetCalls++
	if u.GetErr != nil {
		return nil, u.GetErr
	}
	return u.lookup(id)
}

// GetByExternalID returns a copy of the user with the given identity-provider id.
func (u *Users) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.GetErr != nil {
		return nil, u.GetErr
	}
	id, ok := u.byExternal[externalID]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	return u.lookup(id)
}

// UpdatePreferences merges patch into the stored preferences.
func (u *Users) UpdatePreferences(
	_ context.Context,
	id string,
	patch model.PreferencesPatch,
) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.UpdateCalls++
	u.Patches = append(u.Patches, patch)
	if u.UpdateErr != nil {
		return nil, u.UpdateErr
	}
	user, ok := u.users[id]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	user.Preferences = user.Preferences.Apply(patch)
	u.users[id] = user
	return u.lookup(id)
}

// SyncFromIdentity creates the user on first sight and refreshes names otherwise.
// Blank identity fields leave the stored value alone.
func (u *Users) SyncFromIdentity(_ context.Context, in model.IdentitySync) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid identity")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.SyncErr != nil {
		return nil, u.SyncErr
	}

	if id, ok := u.byExternal[in.ExternalID]; ok {
		user := u.users[id]
		user.Email = keepIfBlank(in.Email, user.Email)
		user.FirstName = keepIfBlank(in.FirstName, user.FirstName)
		user.LastName = keepIfBlank(in.LastName, user.LastName)
		u.users[id] = user
		return u.lookup(id)
	}

	u.nextID++
	user := model.User{
		ID:          fmt.Sprintf("user-%d", u.nextID),
		ExternalID:  in.ExternalID,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Preferences: model.DefaultPreferences(),
	}
	u.users[user.ID] = user
	u.byExternal[in.ExternalID] = user.ID
	return u.lookup(user.ID)
}

func (u *Users) lookup(id string) (*model.User, error) {
	user, ok := u.users[id]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	user.Preferences = user.Preferences.Clone()
	return &user, nil
}

// Organizations is an in-memory OrganizationDirectory.
type Organizations struct {
	mu          sync.Mutex
	orgs        map[string]model.Organization
	memberships []model.Membership

	ListErr          error
	GetMembershipErr error
	GetOrgErr        error

	ListCalls          int
	GetMembershipCalls int
	GetOrgCalls        int
}

// NewOrganizations returns an empty directory.
func NewOrganizations() *Organizations {
	return &Organizations{orgs: map[string]model.Organization{}}
}

// AddOrganization stores an organization.
func (o *Organizations) AddOrganization(org model.Organization) *Organizations {
	o.mu.Lock()
	defer o.mu.Unlock()
	if org.Status == "" {
		org.Status = model.OrganizationStatusActive
	}
	o.orgs[org.ID] = org
	return o
}

// AddMembership stores a membership. Missing status defaults to active.
func (o *Organizations) AddMembership(m model.Membership) *Organizations {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m.Status == "" {
		m.Status = model.MembershipStatusActive
	}
	o.memberships = append(o.memberships, m)
	return o
}

// ListMembershipsForUser returns active memberships ordered by creation time.
func (o *Organizations) ListMembershipsForUser(_ context.Context, userID string) ([]model.Membership, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ListCalls++
	if o.ListErr != nil {
		return nil, o.ListErr
	}
	out := []model.Membership{}
	for _, m := range o.memberships {
		if m.UserID == userID && m.IsActive() {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetMembership returns the active membership if one exists, else any
// membership, else nil.
func (o *Organizations) GetMembership(_ context.Context, userID, organizationID string) (*model.Membership, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.GetMembershipCalls++
	if o.GetMembershipErr != nil {
		return nil, o.GetMembershipErr
	}
	var found *model.Membership
	for i := range o.memberships {
		m := o.memberships[i]
		if m.UserID != userID || m.OrganizationID != organizationID {
			continue
		}
		if m.IsActive() {
			return &m, nil
		}
		if found == nil {
			found = &m
		}
	}
	return found, nil
}

// GetOrganization returns the organization or a NotFound AppError.
func (o *Organizations) GetOrganization(_ context.Context, organizationID string) (*model.Organization, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.GetOrgCalls++
	if o.GetOrgErr != nil {
		return nil, o.GetOrgErr
	}
	org, ok := o.orgs[organizationID]
	if !ok {
		return nil, apperrors.NotFound("organization not found")
	}
	return &org, nil
}

// AuditLog is an in-memory AuditStore.
type AuditLog struct {
	mu     sync.Mutex
	events []model.AuditEvent

	AppendErr error
	DeleteErr error
	// Block, when set, makes Append wait for the context to end.
	Block bool
}

// NewAuditLog returns an empty log.
func NewAuditLog() *AuditLog { return &AuditLog{} }

// Append stores the event.
func (a *AuditLog) Append(ctx context.Context, event model.AuditEvent) error {
	if a.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AppendErr != nil {
		return a.AppendErr
	}
	a.events = append(a.events, event)
	return nil
}

// List returns matching events, newest first.
func (a *AuditLog) List(_ context.Context, opts model.AuditListOptions) ([]model.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []model.AuditEvent{}
	for i := len(a.events) - 1; i >= 0; i-- {
		e := a.events[i]
		if opts.UserID != "" && e.UserID != opts.UserID {
			continue
		}
		if opts.Action != "" && e.Action != opts.Action {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []model.AuditEvent{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteOlderThan removes up to limit events that occurred before cutoff.
func (a *AuditLog) DeleteOlderThan(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.DeleteErr != nil {
		return 0, a.DeleteErr
	}
	kept := a.events[:0]
	var deleted int64
	for _, e := range a.events {
		if e.OccurredAt.Before(cutoff) && (limit <= 0 || deleted < int64(limit)) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	a.events = kept
	return deleted, nil
}

// Events returns a copy of the stored events in append order.
func (a *AuditLog) Events() []model.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.AuditEvent(nil), a.events...)
}

// Actions returns the stored actions in append order.
func (a *AuditLog) Actions() []string {
	events := a.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func keepIfBlank(v, current string) string {
	if v == "" {
		return current
	}
	return v
}
