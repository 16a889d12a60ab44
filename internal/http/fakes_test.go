package httpx

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	"github.com/target/waypoint/internal/service"
)

// mockAuthService is a test double for AuthServiceInterface.
type mockAuthService struct {
	beginLoginFunc    func(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	getSessionFunc    func(ctx context.Context, sessionID string) (*domainauth.Session, error)
	logoutFunc        func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, redirectURL)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://idp.example.com/auth?state=test-state&nonce=test-nonce",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (m *mockAuthService) CompleteLogin(
	ctx context.Context,
	input service.CompleteLoginInput,
) (*service.CompleteLoginResult, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, input)
	}
	return &service.CompleteLoginResult{
		Session: domainauth.Session{
			ID:        "test-session-id",
			UserID:    "user-1",
			Email:     "test@example.com",
			Role:      domainauth.RoleUser,
			Metadata:  map[string]any{"org_id": "org-hint"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
		User: &model.User{ID: "user-1", Email: "test@example.com"},
	}, nil
}

// GetSession treats "valid-*" ids as live sessions and everything else as missing.
func (m *mockAuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if m.getSessionFunc != nil {
		return m.getSessionFunc(ctx, sessionID)
	}
	if !strings.HasPrefix(sessionID, "valid-") {
		return nil, apperrors.NotFound("session not found")
	}
	return &domainauth.Session{
		ID:        sessionID,
		UserID:    "user-1",
		Email:     "test@example.com",
		Role:      domainauth.RoleUser,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, sessionID)
	}
	return nil
}

// fakeResolver records destination requests and answers with a fixed destination.
type fakeResolver struct {
	mu       sync.Mutex
	requests []service.DestinationRequest
	dest     model.AuthDestination
}

func (f *fakeResolver) GetPostAuthDestination(_ context.Context, req service.DestinationRequest) model.AuthDestination {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.dest.URL == "" {
		return model.AuthDestination{URL: model.DefaultDashboardPath, Reason: model.ReasonDefault}
	}
	return f.dest
}

func (f *fakeResolver) HandleProtectedRoute(pathname string, params url.Values) string {
	return service.BuildSignInURL("/sign-in", pathname, params)
}

func (f *fakeResolver) last() service.DestinationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return service.DestinationRequest{}
	}
	return f.requests[len(f.requests)-1]
}

// fakeOnboarding keeps per-user step flags in memory.
type fakeOnboarding struct {
	mu        sync.Mutex
	steps     map[string]map[string]bool
	completed map[string]bool
	visits    map[string][]string
	resets    []string
	err       error
}

func newFakeOnboarding() *fakeOnboarding {
	return &fakeOnboarding{
		steps:     map[string]map[string]bool{},
		completed: map[string]bool{},
		visits:    map[string][]string{},
	}
}

func (f *fakeOnboarding) GetOnboardingStatus(_ context.Context, userID string) (model.OnboardingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.OnboardingStatus{}, f.err
	}
	var done []model.OnboardingStep
	for _, step := range model.OnboardingSteps() {
		if f.steps[userID][string(step)] {
			done = append(done, step)
		}
	}
	return model.OnboardingStatus{
		Completed:      f.completed[userID],
		CompletedSteps: done,
	}, nil
}

func (f *fakeOnboarding) UpdateOnboardingProgress(_ context.Context, userID, step string, completed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := model.ParseOnboardingStep(step); !ok {
		return apperrors.ValidationField("step", "unknown onboarding step")
	}
	if f.steps[userID] == nil {
		f.steps[userID] = map[string]bool{}
	}
	f.steps[userID][step] = completed
	return nil
}

func (f *fakeOnboarding) CompleteOnboarding(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.completed[userID] = true
	return nil
}

func (f *fakeOnboarding) ResetOnboarding(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.resets = append(f.resets, userID)
	delete(f.steps, userID)
	delete(f.completed, userID)
	return nil
}

func (f *fakeOnboarding) RecordVisit(_ context.Context, userID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.visits[userID] = append(f.visits[userID], path)
	return nil
}
