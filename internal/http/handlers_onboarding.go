package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/service"
)

// OnboardingAPI is the onboarding surface the handlers need.
type OnboardingAPI interface {
	GetOnboardingStatus(ctx context.Context, userID string) (model.OnboardingStatus, error)
	UpdateOnboardingProgress(ctx context.Context, userID, step string, completed bool) error
	CompleteOnboarding(ctx context.Context, userID string) error
	ResetOnboarding(ctx context.Context, userID string) error
	RecordVisit(ctx context.Context, userID, path string) error
}

// OnboardingHandlers serves onboarding progress and navigation tracking.
type OnboardingHandlers struct {
	Svc OnboardingAPI
}

type stepUpdateRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

type visitRequest struct {
	Path string `json:"path" validate:"required,max=2048"`
}

// Status returns the caller's onboarding status.
// GET /api/onboarding/status.
func (h *OnboardingHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	h.writeStatus(w, r, sess.UserID)
}

// UpdateStep sets one step flag and returns the recomputed status.
// PUT /api/onboarding/steps/{step}.
func (h *OnboardingHandlers) UpdateStep(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	var body stepUpdateRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	step := chi.URLParam(r, "step")
	if err := h.Svc.UpdateOnboardingProgress(r.Context(), sess.UserID, step, *body.Completed); err != nil {
		WriteAppError(w, err)
		return
	}
	h.writeStatus(w, r, sess.UserID)
}

// Complete marks the whole flow completed.
// POST /api/onboarding/complete.
func (h *OnboardingHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	if err := h.Svc.CompleteOnboarding(r.Context(), sess.UserID); err != nil {
		WriteAppError(w, err)
		return
	}
	h.writeStatus(w, r, sess.UserID)
}

// RecordVisit remembers a navigable path for the next sign-in.
// POST /api/navigation/visits.
func (h *OnboardingHandlers) RecordVisit(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	var body visitRequest
	if !DecodeJSON(w, r, &body) {
		return
	}
	if err := h.Svc.RecordVisit(r.Context(), sess.UserID, strings.TrimSpace(body.Path)); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset clears another user's onboarding progress. Admin only.
// POST /api/admin/users/{id}/onboarding/reset.
func (h *OnboardingHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := h.Svc.ResetOnboarding(r.Context(), userID); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OnboardingHandlers) writeStatus(w http.ResponseWriter, r *http.Request, userID string) {
	status, err := h.Svc.GetOnboardingStatus(r.Context(), userID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// DestinationHandlers exposes destination resolution to signed-in clients.
type DestinationHandlers struct {
	Router DestinationResolver
}

// Get resolves where the caller should land.
// GET /api/auth/destination?redirect_url=&organization_id=.
func (h *DestinationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	dest := h.resolve(r, sess)
	WriteJSON(w, http.StatusOK, dest)
}

// Redirect sends a signed-in browser to its resolved destination.
// GET /?redirect_url=&organization_id=.
func (h *DestinationHandlers) Redirect(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	dest := h.resolve(r, sess)
	http.Redirect(w, r, dest.URL, http.StatusFound)
}

func (h *DestinationHandlers) resolve(r *http.Request, sess *domainauth.Session) model.AuthDestination {
	q := r.URL.Query()
	return h.Router.GetPostAuthDestination(r.Context(), service.DestinationRequest{
		User:            &model.User{ID: sess.UserID},
		RedirectURL:     q.Get(service.RedirectURLParam),
		OrganizationID:  q.Get(organizationParam),
		SessionMetadata: sess.Metadata,
	})
}
