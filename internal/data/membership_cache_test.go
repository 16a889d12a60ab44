package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/mocks"
	"github.com/target/waypoint/internal/mocks/directory"
	"go.uber.org/mock/gomock"
)

func membershipFixture() *directory.Organizations {
	orgs := directory.NewOrganizations()
	orgs.AddOrganization(model.Organization{ID: "org-1", Name: "One"})
	orgs.AddMembership(model.Membership{
		UserID:         "u1",
		OrganizationID: "org-1",
		Role:           model.RoleAdmin,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return orgs
}

func TestNewMembershipCache_DisabledReturnsNext(t *testing.T) {
	orgs := directory.NewOrganizations()
	ctrl := gomock.NewController(t)

	assert.Same(t, orgs, NewMembershipCache(MembershipCacheOptions{Next: orgs}))
	assert.Same(t, orgs, NewMembershipCache(MembershipCacheOptions{Next: orgs, Cache: mocks.NewMockCache(ctrl)}))
	assert.Panics(t, func() { NewMembershipCache(MembershipCacheOptions{}) })
}

func TestMembershipCache_MissThenStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	orgs := membershipFixture()

	var stored []byte
	cache.EXPECT().Get(gomock.Any(), "memberships:user:u1").Return(nil, nil)
	cache.EXPECT().Set(gomock.Any(), "memberships:user:u1", gomock.Any(), time.Minute).
		DoAndReturn(func(_ context.Context, _ string, v []byte, _ time.Duration) error {
			stored = v
			return nil
		})

	c := NewMembershipCache(MembershipCacheOptions{Next: orgs, Cache: cache, TTL: time.Minute})
	got, err := c.ListMembershipsForUser(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, orgs.ListCalls)

	var decoded []model.Membership
	require.NoError(t, json.Unmarshal(stored, &decoded))
	assert.Equal(t, got, decoded)
}

func TestMembershipCache_HitSkipsDirectory(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	orgs := directory.NewOrganizations()

	raw, err := json.Marshal([]model.Membership{{UserID: "u1", OrganizationID: "org-9", Status: model.MembershipStatusActive}})
	require.NoError(t, err)
	cache.EXPECT().Get(gomock.Any(), "memberships:user:u1").Return(raw, nil)

	c := NewMembershipCache(MembershipCacheOptions{Next: orgs, Cache: cache, TTL: time.Minute})
	got, err := c.ListMembershipsForUser(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "org-9", got[0].OrganizationID)
	assert.Zero(t, orgs.ListCalls)
}

func TestMembershipCache_FallsThroughOnCacheFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mocks.MockCache)
	}{
		{
			name: "read error",
			setup: func(c *mocks.MockCache) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
				c.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
			},
		},
		{
			name: "corrupt entry",
			setup: func(c *mocks.MockCache) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("{not json"), nil)
				c.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			cache := mocks.NewMockCache(ctrl)
			tt.setup(cache)
			orgs := membershipFixture()

			c := NewMembershipCache(MembershipCacheOptions{Next: orgs, Cache: cache, TTL: time.Minute})
			got, err := c.ListMembershipsForUser(context.Background(), "u1")

			require.NoError(t, err)
			assert.Len(t, got, 1)
			assert.Equal(t, 1, orgs.ListCalls)
		})
	}
}

func TestMembershipCache_DirectoryErrorIsNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	orgs := membershipFixture()
	orgs.ListErr = errors.New("db down")

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)

	c := NewMembershipCache(MembershipCacheOptions{Next: orgs, Cache: cache, TTL: time.Minute})
	_, err := c.ListMembershipsForUser(context.Background(), "u1")

	require.Error(t, err)
}

func TestMembershipCache_PassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	orgs := membershipFixture()

	c := newMembershipCache(MembershipCacheOptions{Next: orgs, Cache: mocks.NewMockCache(ctrl), TTL: time.Minute})
	ctx := context.Background()

	m, err := c.GetMembership(ctx, "u1", "org-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, orgs.GetMembershipCalls)

	org, err := c.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "One", org.Name)
}

// stubMembershipWriter records writes and returns canned results.
type stubMembershipWriter struct {
	added       []model.MembershipGrant
	deactivated []string
	changed     bool
	err         error
}

func (w *stubMembershipWriter) AddMembership(_ context.Context, g model.MembershipGrant) (*model.Membership, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.added = append(w.added, g)
	return &model.Membership{UserID: g.UserID, OrganizationID: g.OrganizationID, Status: model.MembershipStatusActive}, nil
}

func (w *stubMembershipWriter) DeactivateMembership(_ context.Context, userID, orgID string) (bool, error) {
	if w.err != nil {
		return false, w.err
	}
	w.deactivated = append(w.deactivated, userID+"/"+orgID)
	return w.changed, nil
}

func TestMembershipCache_AddMembershipDropsStaleList(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	orgs := membershipFixture()
	writer := &stubMembershipWriter{}
	ctx := context.Background()

	stale, err := json.Marshal([]model.Membership{})
	require.NoError(t, err)
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), "memberships:user:u1").Return(stale, nil),
		cache.EXPECT().Delete(gomock.Any(), "memberships:user:u1").Return(true, nil),
		cache.EXPECT().Get(gomock.Any(), "memberships:user:u1").Return(nil, nil),
		cache.EXPECT().Set(gomock.Any(), "memberships:user:u1", gomock.Any(), time.Minute).Return(nil),
	)

	c := newMembershipCache(MembershipCacheOptions{Next: orgs, Writer: writer, Cache: cache, TTL: time.Minute})

	before, err := c.ListMembershipsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, before)

	_, err = c.AddMembership(ctx, model.MembershipGrant{UserID: "u1", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, writer.added, 1)

	after, err := c.ListMembershipsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, after, 1)
	assert.Equal(t, 1, orgs.ListCalls)
}

func TestMembershipCache_DeactivateMembership(t *testing.T) {
	tests := []struct {
		name           string
		writer         *stubMembershipWriter
		wantInvalidate bool
		wantChanged    bool
		wantErr        bool
	}{
		{name: "changed invalidates", writer: &stubMembershipWriter{changed: true}, wantInvalidate: true, wantChanged: true},
		{name: "no active membership keeps cache", writer: &stubMembershipWriter{}},
		{name: "write error keeps cache", writer: &stubMembershipWriter{err: errors.New("db down")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			cache := mocks.NewMockCache(ctrl)
			if tt.wantInvalidate {
				cache.EXPECT().Delete(gomock.Any(), "memberships:user:u1").Return(true, nil)
			}

			c := newMembershipCache(MembershipCacheOptions{
				Next:   membershipFixture(),
				Writer: tt.writer,
				Cache:  cache,
				TTL:    time.Minute,
			})
			changed, err := c.DeactivateMembership(context.Background(), "u1", "org-1")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestMembershipCache_InvalidationFailureDoesNotFailWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)
	cache.EXPECT().Delete(gomock.Any(), "memberships:user:u1").Return(false, errors.New("redis down"))

	c := newMembershipCache(MembershipCacheOptions{
		Next:   membershipFixture(),
		Writer: &stubMembershipWriter{},
		Cache:  cache,
		TTL:    time.Minute,
	})
	m, err := c.AddMembership(context.Background(), model.MembershipGrant{UserID: "u1", OrganizationID: "org-2"})

	require.NoError(t, err)
	assert.Equal(t, "org-2", m.OrganizationID)
}

func TestMembershipCache_WritesNeedWriter(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := newMembershipCache(MembershipCacheOptions{Next: membershipFixture(), Cache: mocks.NewMockCache(ctrl), TTL: time.Minute})

	_, err := c.AddMembership(context.Background(), model.MembershipGrant{UserID: "u1", OrganizationID: "org-1"})
	require.ErrorIs(t, err, errNoMembershipWriter)
	_, err = c.DeactivateMembership(context.Background(), "u1", "org-1")
	require.ErrorIs(t, err, errNoMembershipWriter)
}
