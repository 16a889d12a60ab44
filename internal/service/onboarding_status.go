package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/ports"
)

// TeamSkipPredicate reports whether the team step should be skipped for a user.
type TeamSkipPredicate func(ctx context.Context, user *model.User) bool

// SkipTeamFromPreferences reads the skipTeamSetup preference.
func SkipTeamFromPreferences(_ context.Context, user *model.User) bool {
	return user != nil && user.Preferences.SkipTeamSetup
}

// OnboardingStatusResolverOptions groups dependencies for OnboardingStatusResolver.
type OnboardingStatusResolverOptions struct {
	Organizations ports.OrganizationDirectory // Required: drives the organization skip rule
	SkipTeam      TeamSkipPredicate           // Optional: defaults to SkipTeamFromPreferences
}

// OnboardingStatusResolver derives onboarding progress from a user's preferences.
type OnboardingStatusResolver struct {
	orgs     ports.OrganizationDirectory
	skipTeam TeamSkipPredicate
}

// NewOnboardingStatusResolver constructs an OnboardingStatusResolver.
func NewOnboardingStatusResolver(opts OnboardingStatusResolverOptions) *OnboardingStatusResolver {
	if opts.Organizations == nil {
		panic("OrganizationDirectory is required")
	}
	skip := opts.SkipTeam
	if skip == nil {
		skip = SkipTeamFromPreferences
	}
	return &OnboardingStatusResolver{orgs: opts.Organizations, skipTeam: skip}
}

// Resolve computes the user's onboarding status. The returned status is always
// usable: when a lookup fails it is the conservative default and err says why.
// Resolve does not log; callers decide how to report degradation.
func (r *OnboardingStatusResolver) Resolve(ctx context.Context, user *model.User) (model.OnboardingStatus, error) {
	if user == nil {
		return model.DefaultOnboardingStatus(), errors.New("resolve onboarding status: user is required")
	}
	if user.Preferences.OnboardingCompleted {
		return model.CompletedOnboardingStatus(), nil
	}

	steps := model.OnboardingSteps()
	completed := make([]model.OnboardingStep, 0, len(steps))
	var next model.OnboardingStep
	for _, step := range steps {
		if !user.Preferences.StepCompleted(step) {
			next = step
			break
		}
		completed = append(completed, step)
	}
	if next == "" {
		return model.CompletedOnboardingStatus(), nil
	}

	status := model.OnboardingStatus{
		NextStep:       next,
		Progress:       model.OnboardingProgress(len(completed), len(steps)),
		AvailableSteps: steps,
		CompletedSteps: completed,
	}
	if len(completed) > 0 {
		status.CurrentStep = completed[len(completed)-1]
	}

	// Skip rules run once each, in order, and never cascade further.
	if status.NextStep == model.StepOrganization {
		memberships, err := r.orgs.ListMembershipsForUser(ctx, user.ID)
		if err != nil {
			return model.DefaultOnboardingStatus(), fmt.Errorf("list memberships: %w", err)
		}
		if countActiveMemberships(memberships) > 0 {
			status.NextStep = model.StepTeam
		}
	}
	if status.NextStep == model.StepTeam && r.skipTeam(ctx, user) {
		status.NextStep = model.StepPreferences
	}

	return status, nil
}

func countActiveMemberships(memberships []model.Membership) int {
	n := 0
	for i := range memberships {
		if memberships[i].IsActive() {
			n++
		}
	}
	return n
}
