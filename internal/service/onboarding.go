package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/waypoint/internal/data"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	"github.com/target/waypoint/internal/ports"
)

// Audit actions written by OnboardingService.
const (
	AuditActionProgressUpdated = "onboarding.progress_updated"
	AuditActionCompleted       = "onboarding.completed"
	AuditActionReset           = "onboarding.reset"
	AuditActionVisitRecorded   = "navigation.visit_recorded"
)

// OnboardingDeps groups the collaborators of OnboardingService.
type OnboardingDeps struct {
	Users     ports.UserDirectory       // Required
	Resolver  *OnboardingStatusResolver // Required
	Validator *RedirectValidator        // Required: gates recorded visits
	Audit     *AuditRecorder            // Optional
}

// OnboardingServiceOptions groups dependencies for OnboardingService.
type OnboardingServiceOptions struct {
	Deps   OnboardingDeps
	Logger *slog.Logger
}

// OnboardingService reads and mutates a user's onboarding progress.
type OnboardingService struct {
	users     ports.UserDirectory
	resolver  *OnboardingStatusResolver
	validator *RedirectValidator
	audit     *AuditRecorder
	clock     data.TimeProvider
	logger    *slog.Logger
}

// NewOnboardingService constructs an OnboardingService.
func NewOnboardingService(opts OnboardingServiceOptions) *OnboardingService {
	if opts.Deps.Users == nil {
		panic("UserDirectory is required")
	}
	if opts.Deps.Resolver == nil {
		panic("OnboardingStatusResolver is required")
	}
	if opts.Deps.Validator == nil {
		panic("RedirectValidator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OnboardingService{
		users:     opts.Deps.Users,
		resolver:  opts.Deps.Resolver,
		validator: opts.Deps.Validator,
		audit:     opts.Deps.Audit,
		clock:     &data.RealTimeProvider{},
		logger:    logger.With("component", "onboarding"),
	}
}

// GetOnboardingStatus returns the user's onboarding status. A missing user is a
// NotFound error; a degraded status is logged and returned without error.
func (s *OnboardingService) GetOnboardingStatus(ctx context.Context, userID string) (model.OnboardingStatus, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return model.OnboardingStatus{}, err
	}

	status, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		s.logger.WarnContext(ctx, "onboarding status degraded to default", "user_id", userID, "error", err)
	}
	return status, nil
}

// UpdateOnboardingProgress sets one step flag and recomputes the completed
// flag. Repeating the same update is harmless.
func (s *OnboardingService) UpdateOnboardingProgress(
	ctx context.Context,
	userID, step string,
	completed bool,
) error {
	parsed, ok := model.ParseOnboardingStep(step)
	if !ok {
		return apperrors.ValidationField("step", fmt.Sprintf("unknown onboarding step %q", step))
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	merged := user.Preferences.Apply(model.PreferencesPatch{
		OnboardingSteps: map[model.OnboardingStep]bool{parsed: completed},
	})
	allDone := merged.AllStepsCompleted()

	patch := model.PreferencesPatch{
		OnboardingSteps:     map[model.OnboardingStep]bool{parsed: completed},
		OnboardingCompleted: &allDone,
	}
	switch {
	case allDone && !user.Preferences.OnboardingCompleted:
		now := s.clock.Now().UTC()
		patch.OnboardingCompletedAt = &now
	case !allDone:
		patch.ClearOnboardingCompletedAt = true
	}

	if err := s.updatePreferences(ctx, userID, patch); err != nil {
		return fmt.Errorf("update onboarding progress: %w", err)
	}

	s.record(ctx, userID, AuditActionProgressUpdated, map[string]any{
		"step":                string(parsed),
		"completed":           completed,
		"onboardingCompleted": allDone,
	})
	return nil
}

// CompleteOnboarding marks every step and the flow as completed in one update.
func (s *OnboardingService) CompleteOnboarding(ctx context.Context, userID string) error {
	now := s.clock.Now().UTC()
	done := true
	patch := model.PreferencesPatch{
		OnboardingSteps:       allStepFlags(true),
		OnboardingCompleted:   &done,
		OnboardingCompletedAt: &now,
	}
	if err := s.updatePreferences(ctx, userID, patch); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	s.record(ctx, userID, AuditActionCompleted, nil)
	return nil
}

// ResetOnboarding clears every step flag and the completed flag.
func (s *OnboardingService) ResetOnboarding(ctx context.Context, userID string) error {
	done := false
	patch := model.PreferencesPatch{
		OnboardingSteps:            allStepFlags(false),
		OnboardingCompleted:        &done,
		ClearOnboardingCompletedAt: true,
	}
	if err := s.updatePreferences(ctx, userID, patch); err != nil {
		return fmt.Errorf("reset onboarding: %w", err)
	}
	s.record(ctx, userID, AuditActionReset, nil)
	return nil
}

// RecordVisit stores path as the user's last visited location when it would
// pass redirect validation, so a later sign-in can return there.
func (s *OnboardingService) RecordVisit(ctx context.Context, userID, path string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.ValidationField("user_id", "user id is required")
	}
	res := s.validator.Validate(ctx, path, RedirectUserContext{UserID: userID})
	if !res.IsValid {
		err := apperrors.ValidationField("path", "path is not a navigable location")
		err.Cause = fmt.Errorf("security issues: %s", strings.Join(res.IssueStrings(), ","))
		return err
	}

	now := s.clock.Now().UTC()
	patch := model.PreferencesPatch{
		LastVisitedPath: &res.SanitizedURL,
		LastVisitedAt:   &now,
	}
	if err := s.updatePreferences(ctx, userID, patch); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	s.record(ctx, userID, AuditActionVisitRecorded, map[string]any{"path": res.SanitizedURL})
	return nil
}

func (s *OnboardingService) loadUser(ctx context.Context, userID string) (*model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User not found")
	}
	return user, nil
}

func (s *OnboardingService) updatePreferences(
	ctx context.Context,
	userID string,
	patch model.PreferencesPatch,
) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.ValidationField("user_id", "user id is required")
	}
	if _, err := s.users.UpdatePreferences(ctx, userID, patch); err != nil {
		return userLookupError(err)
	}
	return nil
}

func (s *OnboardingService) record(ctx context.Context, userID, action string, metadata map[string]any) {
	s.audit.Record(ctx, model.AuditEvent{
		UserID:       userID,
		Action:       action,
		ResourceType: model.AuditResourceUser,
		ResourceID:   userID,
		Metadata:     metadata,
	})
}

// userLookupError normalizes directory NotFound errors to the user-facing message.
func userLookupError(err error) error {
	if apperrors.IsNotFound(err) {
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "User not found")
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("user directory: %w", err)
}

func allStepFlags(value bool) map[model.OnboardingStep]bool {
	steps := model.OnboardingSteps()
	out := make(map[model.OnboardingStep]bool, len(steps))
	for _, step := range steps {
		out[step] = value
	}
	return out
}
