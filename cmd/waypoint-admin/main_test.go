package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/migrate"
)

func TestCommandsAreSelfNamed(t *testing.T) {
	for key, cmd := range commands() {
		assert.Equal(t, key, cmd.name)
		assert.NotEmpty(t, cmd.description, key)
		assert.NotNil(t, cmd.run, key)
	}
}

func TestPrintUsageSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Contains(t, out, "Usage: waypoint-admin")
	assert.Less(t, strings.Index(out, "audit-list"), strings.Index(out, "migrate"))
	assert.Less(t, strings.Index(out, "onboarding-status"), strings.Index(out, "resolve-destination"))
	assert.Less(t, strings.Index(out, "membership-deactivate"), strings.Index(out, "migrate"))
}

func TestParseMembershipFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    membershipOptions
		wantErr string
	}{
		{
			name: "defaults to member",
			args: []string{"-user", " u-1 ", "-org", "org-1"},
			want: membershipOptions{UserID: "u-1", OrganizationID: "org-1", Role: model.RoleMember},
		},
		{
			name: "role is lowercased",
			args: []string{"-user", "u-1", "-org", "org-1", "-role", " Admin ", "-yes"},
			want: membershipOptions{UserID: "u-1", OrganizationID: "org-1", Role: model.RoleAdmin, Yes: true},
		},
		{name: "missing user", args: []string{"-org", "org-1"}, wantErr: "--user is required"},
		{name: "missing org", args: []string{"-user", "u-1"}, wantErr: "--org is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseMembershipFlags("membership-add", tt.args, io.Discard)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts)
		})
	}
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"-timeout", "30s"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"-timeout", "0s"}, io.Discard)
	require.Error(t, err)
}

func TestParseUserFlags(t *testing.T) {
	opts, err := parseUserFlags("onboarding-reset", []string{"-user", " u-1 ", "-yes"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "u-1", opts.UserID)
	assert.True(t, opts.Yes)

	_, err = parseUserFlags("onboarding-status", nil, io.Discard)
	require.ErrorContains(t, err, "--user is required")

	_, err = parseUserFlags("onboarding-status", []string{"-bogus"}, io.Discard)
	require.Error(t, err)
}

func TestParseStepFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    stepOptions
		wantErr string
	}{
		{
			name: "defaults to done",
			args: []string{"-user", "u-1", "-step", "team"},
			want: stepOptions{UserID: "u-1", Step: "team", Done: true},
		},
		{
			name: "clear a step",
			args: []string{"-user", "u-1", "-step", "Tutorial", "-done=false"},
			want: stepOptions{UserID: "u-1", Step: "Tutorial", Done: false},
		},
		{
			name:    "unknown step",
			args:    []string{"-user", "u-1", "-step", "billing"},
			wantErr: "--step must be one of",
		},
		{
			name:    "missing user",
			args:    []string{"-step", "team"},
			wantErr: "--user is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStepFlags(tt.args, io.Discard)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResolveFlags(t *testing.T) {
	opts, err := parseResolveFlags([]string{"-user", "u-1", "-redirect", "/reports", "-org", "org-9", "-json"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, resolveOptions{UserID: "u-1", RedirectURL: "/reports", OrganizationID: "org-9", RawJSON: true}, opts)

	_, err = parseResolveFlags([]string{"-redirect", "/reports"}, io.Discard)
	require.Error(t, err)
}

func TestParseAuditListFlags(t *testing.T) {
	opts, err := parseAuditListFlags([]string{"-user", "u-1", "-since", "24h"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 50, opts.Limit)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := opts.listOptions(now)
	assert.Equal(t, "u-1", list.UserID)
	require.NotNil(t, list.Since)
	assert.Equal(t, now.Add(-24*time.Hour), *list.Since)

	for _, args := range [][]string{
		{"-limit", "0"},
		{"-limit", "501"},
		{"-offset", "-1"},
		{"-since", "-1h"},
	} {
		_, err := parseAuditListFlags(args, io.Discard)
		require.Error(t, err, args)
	}
}

func TestParseAuditPruneFlags(t *testing.T) {
	opts, err := parseAuditPruneFlags(nil, io.Discard, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 90*24*time.Hour, opts.MaxAge)

	opts, err = parseAuditPruneFlags([]string{"-max-age", "48h", "-dry-run"}, io.Discard, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, opts.MaxAge)
	assert.True(t, opts.DryRun)

	_, err = parseAuditPruneFlags([]string{"-max-age", "5m"}, io.Discard, 90*24*time.Hour)
	require.Error(t, err)
}

func TestConfirmAction(t *testing.T) {
	tests := []struct {
		name    string
		yes     bool
		input   string
		wantErr bool
	}{
		{name: "yes flag skips prompt", yes: true},
		{name: "accepts y", input: "y\n"},
		{name: "accepts YES without newline", input: "YES"},
		{name: "rejects empty", input: "\n", wantErr: true},
		{name: "rejects no", input: "no\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmdCtx := &commandContext{Out: &out, In: strings.NewReader(tt.input)}
			err := confirmAction(cmdCtx, tt.yes, "Reset user.")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.yes {
				assert.Empty(t, out.String())
			} else {
				assert.Contains(t, out.String(), "Continue? [y/N]")
			}
		})
	}
}

func TestPrintOnboardingStatus(t *testing.T) {
	status := model.OnboardingStatus{
		NextStep:       model.StepTeam,
		Progress:       40,
		AvailableSteps: model.OnboardingSteps(),
		CompletedSteps: []model.OnboardingStep{model.StepProfile, model.StepOrganization},
	}

	var buf bytes.Buffer
	require.NoError(t, printOnboardingStatus(&buf, "u-1", status))

	out := buf.String()
	assert.Contains(t, out, "User u-1: onboarding in progress (40%)")
	assert.Regexp(t, `profile\s+/onboarding/profile\s+yes`, out)
	assert.Regexp(t, `team\s+/onboarding/team\s+next`, out)
}

func TestPrintDestination(t *testing.T) {
	required := true
	var buf bytes.Buffer
	require.NoError(t, printDestination(&buf, model.AuthDestination{
		URL:                 "/onboarding/profile",
		Reason:              model.ReasonOnboarding,
		RequiresOnboarding:  &required,
		OrganizationContext: "org-1",
	}))

	out := buf.String()
	assert.Contains(t, out, "URL:    /onboarding/profile")
	assert.Contains(t, out, "Reason: "+model.ReasonOnboarding)
	assert.Contains(t, out, "Org:    org-1")
	assert.Contains(t, out, "Onboarding required")
}

func TestPrintAuditEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printAuditEvents(&buf, nil))
	assert.Equal(t, "No audit events found\n", buf.String())

	buf.Reset()
	require.NoError(t, printAuditEvents(&buf, []model.AuditEvent{{
		UserID:       "u-1",
		Action:       "onboarding.reset",
		ResourceType: "user",
		ResourceID:   "u-1",
		OccurredAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}))
	assert.Regexp(t, `2026-03-01T12:00:00Z\s+u-1\s+onboarding.reset\s+user:u-1\s+-`, buf.String())
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.Migration{
		{Version: "001", File: "001_init.sql", AppliedAt: &applied},
		{Version: "002", File: "002_audit.sql"},
	}))

	out := buf.String()
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Regexp(t, `002\s+002_audit.sql\s+pending`, out)
	assert.Contains(t, out, "2 migrations, 1 pending")
}

func TestHasRedisConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.RedisConfig
		want bool
	}{
		{name: "nil", want: false},
		{name: "direct uri", cfg: &config.RedisConfig{URI: "localhost:6379"}, want: true},
		{name: "empty direct", cfg: &config.RedisConfig{}, want: false},
		{name: "cluster nodes", cfg: &config.RedisConfig{UseCluster: true, ClusterNodes: []string{"a:6379"}}, want: true},
		{name: "sentinel without nodes", cfg: &config.RedisConfig{UseSentinel: true, URI: "localhost:6379"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasRedisConfig(tt.cfg))
		})
	}
}
