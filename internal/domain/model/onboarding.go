//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"math"
	"strings"
)

// OnboardingStep names one step of the onboarding flow.
type OnboardingStep string

const (
	StepProfile      OnboardingStep = "profile"
	StepOrganization OnboardingStep = "organization"
	StepTeam         OnboardingStep = "team"
	StepPreferences  OnboardingStep = "preferences"
	StepTutorial     OnboardingStep = "tutorial"
)

// canonicalSteps is the fixed onboarding order.
var canonicalSteps = [...]OnboardingStep{
	StepProfile,
	StepOrganization,
	StepTeam,
	StepPreferences,
	StepTutorial,
}

// OnboardingSteps returns the canonical step order. The slice is a fresh copy.
func OnboardingSteps() []OnboardingStep {
	out := make([]OnboardingStep, len(canonicalSteps))
	copy(out, canonicalSteps[:])
	return out
}

// Valid reports whether s is one of the canonical steps.
func (s OnboardingStep) Valid() bool {
	for _, step := range canonicalSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Path returns the onboarding route for the step. Unknown steps map to the
// profile route.
func (s OnboardingStep) Path() string {
	if !s.Valid() {
		return "/onboarding/" + string(StepProfile)
	}
	return "/onboarding/" + string(s)
}

// ParseOnboardingStep normalizes value and reports whether it names a canonical step.
func ParseOnboardingStep(value string) (OnboardingStep, bool) {
	step := OnboardingStep(strings.ToLower(strings.TrimSpace(value)))
	if step.Valid() {
		return step, true
	}
	return "", false
}

// OnboardingStatus is derived from a user's preferences and never stored.
// CurrentStep is empty when no step has been completed; NextStep is empty once
// onboarding is complete.
type OnboardingStatus struct {
	Completed      bool             `json:"completed"`
	CurrentStep    OnboardingStep   `json:"current_step,omitempty"`
	NextStep       OnboardingStep   `json:"next_step"`
	Progress       int              `json:"progress"`
	AvailableSteps []OnboardingStep `json:"available_steps"`
	CompletedSteps []OnboardingStep `json:"completed_steps"`
}

// DefaultOnboardingStatus is the conservative status used when the real one
// cannot be computed.
func DefaultOnboardingStatus() OnboardingStatus {
	return OnboardingStatus{
		Completed:      false,
		NextStep:       StepProfile,
		Progress:       0,
		AvailableSteps: OnboardingSteps(),
		CompletedSteps: []OnboardingStep{},
	}
}

// CompletedOnboardingStatus is the status of a user who finished onboarding.
func CompletedOnboardingStatus() OnboardingStatus {
	steps := OnboardingSteps()
	return OnboardingStatus{
		Completed:      true,
		CurrentStep:    steps[len(steps)-1],
		Progress:       100,
		AvailableSteps: steps,
		CompletedSteps: OnboardingSteps(),
	}
}

// OnboardingProgress returns round(100*completed/available), or 0 when no
// steps are available.
func OnboardingProgress(completed, available int) int {
	if available <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(available)))
}
