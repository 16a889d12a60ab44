package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/data"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	obserrors "github.com/target/waypoint/internal/observability/errors"
	"github.com/target/waypoint/internal/ports"
)

// Rule names used in audit actions and logs, in decision order.
const (
	ruleExplicitRedirect = "explicit_redirect"
	ruleOnboarding       = "onboarding"
	ruleOrgContext       = "organization_context"
	ruleOrgInferred      = "inferred_organization"
	ruleRecentPath       = "recent_activity"
	ruleDefault          = "default_dashboard"
	ruleFallback         = "fallback"
)

// Sources reported in destination metadata.
const (
	SourcePrimary     = "primary"
	SourceRecent      = "recent"
	SourceFirst       = "first"
	SourcePreferences = "preferences"
	SourceSystem      = "system"
)

const (
	auditOutcomeTaken   = "taken"
	auditOutcomeSkipped = "skipped"
)

// DestinationRequest carries the inputs of one post-auth resolution.
type DestinationRequest struct {
	// User identifies who signed in. Only the ID is trusted; the record is reloaded.
	User *model.User
	// RedirectURL is the untrusted redirect the client asked for, if any.
	RedirectURL string
	// OrganizationID is an explicit organization context, if any.
	OrganizationID string
	// SessionMetadata is the identity claim set, consulted for an organization hint.
	SessionMetadata map[string]any
}

// AuthRouterDeps groups the collaborators of AuthRouterService.
type AuthRouterDeps struct {
	Users         ports.UserDirectory         // Required
	Organizations ports.OrganizationDirectory // Required
	Validator     *RedirectValidator          // Required
	Onboarding    *OnboardingStatusResolver   // Required
	Audit         *AuditRecorder              // Optional: nil disables auditing
	Metrics       ports.DecisionRecorder      // Optional
}

// AuthRouterServiceOptions groups dependencies for AuthRouterService.
type AuthRouterServiceOptions struct {
	Deps   AuthRouterDeps
	Config config.RoutingConfig
	Logger *slog.Logger
}

// AuthRouterService decides where a user lands after signing in and builds
// sign-in redirects for protected routes.
type AuthRouterService struct {
	users      ports.UserDirectory
	orgs       ports.OrganizationDirectory
	validator  *RedirectValidator
	onboarding *OnboardingStatusResolver
	audit      *AuditRecorder
	metrics    ports.DecisionRecorder
	orgHint    OrgHintEvaluator
	config     config.RoutingConfig
	clock      data.TimeProvider
	logger     *slog.Logger
}

// NewAuthRouterService constructs an AuthRouterService.
func NewAuthRouterService(opts AuthRouterServiceOptions) (*AuthRouterService, error) {
	d := opts.Deps
	switch {
	case d.Users == nil:
		return nil, errors.New("UserDirectory is required")
	case d.Organizations == nil:
		return nil, errors.New("OrganizationDirectory is required")
	case d.Validator == nil:
		return nil, errors.New("RedirectValidator is required")
	case d.Onboarding == nil:
		return nil, errors.New("OnboardingStatusResolver is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	hint, err := NewOrgHintEvaluator(cfg.OrgHintExpression)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := d.Metrics
	if recorder == nil {
		recorder = noopDecisionRecorder{}
	}

	return &AuthRouterService{
		users:      d.Users,
		orgs:       d.Organizations,
		validator:  d.Validator,
		onboarding: d.Onboarding,
		audit:      d.Audit,
		metrics:    recorder,
		orgHint:    hint,
		config:     cfg,
		clock:      &data.RealTimeProvider{},
		logger:     logger.With("component", "auth_router"),
	}, nil
}

// MustNewAuthRouterService is NewAuthRouterService that panics on error.
func MustNewAuthRouterService(opts AuthRouterServiceOptions) *AuthRouterService {
	svc, err := NewAuthRouterService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create AuthRouterService: %v", err))
	}
	return svc
}

// GetPostAuthDestination walks the decision rules in order and returns the
// first match. It never fails: internal errors and panics produce the
// fallback destination.
func (s *AuthRouterService) GetPostAuthDestination(
	ctx context.Context,
	req DestinationRequest,
) (dest model.AuthDestination) {
	var userID string
	defer func() {
		if r := recover(); r != nil {
			dest = s.fallback(ctx, userID, apperrors.Internal(fmt.Sprintf("destination resolution panicked: %v", r)))
		}
	}()

	if req.User == nil || strings.TrimSpace(req.User.ID) == "" {
		return s.fallback(ctx, "", apperrors.Validation("resolve destination: user is required"))
	}
	userID = req.User.ID

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return s.fallback(ctx, userID, fmt.Errorf("reload user: %w", err))
	}
	if user == nil {
		return s.fallback(ctx, userID, apperrors.NotFound("reload user: directory returned no user"))
	}

	w := &decisionWalk{svc: s, user: user}
	dest = w.resolve(ctx, req)
	s.metrics.RecordDestination(dest.Reason)
	s.logger.DebugContext(ctx, "resolved post-auth destination",
		"user_id", user.ID,
		"url", dest.URL,
		"reason", dest.Reason,
	)
	return dest
}

// decisionWalk holds per-call state for one resolution.
type decisionWalk struct {
	svc  *AuthRouterService
	user *model.User
}

func (w *decisionWalk) resolve(ctx context.Context, req DestinationRequest) model.AuthDestination {
	if d, ok := w.explicitRedirect(ctx, req.RedirectURL); ok {
		return d
	}
	if d, ok := w.onboardingGate(ctx); ok {
		return d
	}
	explicitOrg := strings.TrimSpace(req.OrganizationID)
	if d, ok := w.organizationContext(ctx, explicitOrg, req.SessionMetadata); ok {
		return d
	}
	if d, ok := w.inferredOrganization(ctx, explicitOrg); ok {
		return d
	}
	if d, ok := w.recentPath(ctx); ok {
		return d
	}
	return w.defaultDashboard(ctx)
}

// Rule 1.
func (w *decisionWalk) explicitRedirect(ctx context.Context, redirectURL string) (model.AuthDestination, bool) {
	if strings.TrimSpace(redirectURL) == "" {
		w.record(ctx, ruleExplicitRedirect, auditOutcomeSkipped, "", map[string]any{"detail": "no_redirect"})
		return model.AuthDestination{}, false
	}

	res := w.svc.validator.Validate(ctx, redirectURL, RedirectUserContext{UserID: w.user.ID})
	if !res.IsValid {
		w.svc.logger.WarnContext(ctx, "rejected post-auth redirect",
			"user_id", w.user.ID,
			"reason", res.Reason,
			"security_issues", res.IssueStrings(),
		)
		w.svc.metrics.RecordRedirectRejected(res.SecurityIssues)
		w.record(ctx, ruleExplicitRedirect, auditOutcomeSkipped, "", map[string]any{
			"detail":         "rejected",
			"securityIssues": res.IssueStrings(),
		})
		return model.AuthDestination{}, false
	}

	d := model.AuthDestination{
		URL:      res.SanitizedURL,
		Reason:   model.ReasonExplicitRedirect,
		Metadata: map[string]any{"rule": 1},
	}
	w.record(ctx, ruleExplicitRedirect, auditOutcomeTaken, "", map[string]any{"url": d.URL})
	return d, true
}

// Rule 2.
func (w *decisionWalk) onboardingGate(ctx context.Context) (model.AuthDestination, bool) {
	status, err := w.svc.onboarding.Resolve(ctx, w.user)
	if err != nil {
		w.svc.logger.WarnContext(ctx, "onboarding status degraded to default",
			"user_id", w.user.ID,
			"error", err,
		)
	}
	if status.Completed {
		w.record(ctx, ruleOnboarding, auditOutcomeSkipped, "", map[string]any{"detail": "completed"})
		return model.AuthDestination{}, false
	}

	requires := true
	d := model.AuthDestination{
		URL:                status.NextStep.Path(),
		Reason:             model.ReasonOnboarding,
		RequiresOnboarding: &requires,
		Metadata: map[string]any{
			"rule":     2,
			"progress": status.Progress,
			"nextStep": string(status.NextStep),
		},
	}
	w.record(ctx, ruleOnboarding, auditOutcomeTaken, "", map[string]any{
		"url":      d.URL,
		"progress": status.Progress,
		"degraded": err != nil,
	})
	return d, true
}

// Rule 3. A request-supplied id wins; otherwise the session hint is tried.
func (w *decisionWalk) organizationContext(
	ctx context.Context,
	explicitOrg string,
	sessionMetadata map[string]any,
) (model.AuthDestination, bool) {
	orgID, hinted := explicitOrg, false
	if orgID == "" {
		orgID = w.organizationHint(ctx, sessionMetadata)
		hinted = orgID != ""
	}
	if orgID == "" {
		w.record(ctx, ruleOrgContext, auditOutcomeSkipped, "", map[string]any{"detail": "no_organization"})
		return model.AuthDestination{}, false
	}

	membership, err := w.svc.orgs.GetMembership(ctx, w.user.ID, orgID)
	if err != nil {
		w.svc.logger.WarnContext(ctx, "membership lookup failed",
			"user_id", w.user.ID,
			"organization_id", orgID,
			"error", err,
		)
		membership = nil
	}
	if !membership.IsActive() {
		w.record(ctx, ruleOrgContext, auditOutcomeSkipped, orgID, map[string]any{
			"detail": "no_active_membership",
			"hinted": hinted,
		})
		return model.AuthDestination{}, false
	}

	role := membership.NormalizedRole()
	d := model.AuthDestination{
		URL:                 organizationRolePath(orgID, role),
		Reason:              model.ReasonOrgContext,
		OrganizationContext: orgID,
		Metadata:            map[string]any{"rule": 3, "role": role, "hinted": hinted},
	}
	w.record(ctx, ruleOrgContext, auditOutcomeTaken, orgID, map[string]any{"url": d.URL, "role": role})
	return d, true
}

func (w *decisionWalk) organizationHint(ctx context.Context, metadata map[string]any) string {
	if w.svc.orgHint == nil || len(metadata) == 0 {
		return ""
	}
	id, err := w.svc.orgHint.OrganizationID(metadata)
	if err != nil {
		w.svc.logger.WarnContext(ctx, "organization hint evaluation failed", "user_id", w.user.ID, "error", err)
		return ""
	}
	return id
}

// Rule 4. Only consulted when the request named no organization.
func (w *decisionWalk) inferredOrganization(ctx context.Context, explicitOrg string) (model.AuthDestination, bool) {
	if explicitOrg != "" {
		w.record(ctx, ruleOrgInferred, auditOutcomeSkipped, "", map[string]any{"detail": "explicit_organization"})
		return model.AuthDestination{}, false
	}

	memberships, err := w.svc.orgs.ListMembershipsForUser(ctx, w.user.ID)
	if err != nil {
		w.svc.logger.WarnContext(ctx, "membership listing failed", "user_id", w.user.ID, "error", err)
		memberships = nil
	}

	orgID, source := w.pickOrganization(ctx, memberships)
	if orgID == "" {
		w.record(ctx, ruleOrgInferred, auditOutcomeSkipped, "", map[string]any{
			"detail":      "no_candidate",
			"memberships": len(memberships),
		})
		return model.AuthDestination{}, false
	}

	d := model.AuthDestination{
		URL:                 organizationRolePath(orgID, ""),
		Reason:              model.ReasonOrgInferred,
		OrganizationContext: orgID,
		Metadata:            map[string]any{"rule": 4, "source": source},
	}
	w.record(ctx, ruleOrgInferred, auditOutcomeTaken, orgID, map[string]any{"url": d.URL, "source": source})
	return d, true
}

// pickOrganization tries, in order: the earliest-created active membership, the
// most recently updated one, then the first listed. A candidate counts only if
// its organization resolves and is active.
func (w *decisionWalk) pickOrganization(ctx context.Context, memberships []model.Membership) (string, string) {
	active := make([]model.Membership, 0, len(memberships))
	for i := range memberships {
		if memberships[i].IsActive() && memberships[i].OrganizationID != "" {
			active = append(active, memberships[i])
		}
	}
	if len(active) == 0 {
		return "", ""
	}

	byCreated := append([]model.Membership(nil), active...)
	sort.SliceStable(byCreated, func(i, j int) bool {
		return byCreated[i].CreatedAt.Before(byCreated[j].CreatedAt)
	})
	byUpdated := append([]model.Membership(nil), active...)
	sort.SliceStable(byUpdated, func(i, j int) bool {
		return byUpdated[i].UpdatedAt.After(byUpdated[j].UpdatedAt)
	})

	candidates := []struct {
		orgID  string
		source string
	}{
		{byCreated[0].OrganizationID, SourcePrimary},
		{byUpdated[0].OrganizationID, SourceRecent},
		{active[0].OrganizationID, SourceFirst},
	}

	usable := map[string]bool{}
	for _, c := range candidates {
		ok, seen := usable[c.orgID]
		if !seen {
			ok = w.organizationUsable(ctx, c.orgID)
			usable[c.orgID] = ok
		}
		if ok {
			return c.orgID, c.source
		}
	}
	return "", ""
}

func (w *decisionWalk) organizationUsable(ctx context.Context, orgID string) bool {
	org, err := w.svc.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		w.svc.logger.WarnContext(ctx, "organization lookup failed", "organization_id", orgID, "error", err)
		return false
	}
	return org.IsActive()
}

// Rule 5.
func (w *decisionWalk) recentPath(ctx context.Context) (model.AuthDestination, bool) {
	prefs := w.user.Preferences
	if prefs.LastVisitedPath == "" || prefs.LastVisitedAt == nil {
		w.record(ctx, ruleRecentPath, auditOutcomeSkipped, "", map[string]any{"detail": "no_recent_path"})
		return model.AuthDestination{}, false
	}

	visitedAt := prefs.LastVisitedAt.UTC()
	if w.svc.clock.Now().Sub(visitedAt) > w.svc.config.RecentPathMaxAge {
		w.record(ctx, ruleRecentPath, auditOutcomeSkipped, "", map[string]any{"detail": "stale"})
		return model.AuthDestination{}, false
	}

	res := w.svc.validator.Validate(ctx, prefs.LastVisitedPath, RedirectUserContext{UserID: w.user.ID})
	if !res.IsValid {
		w.record(ctx, ruleRecentPath, auditOutcomeSkipped, "", map[string]any{
			"detail":         "rejected",
			"securityIssues": res.IssueStrings(),
		})
		return model.AuthDestination{}, false
	}

	d := model.AuthDestination{
		URL:    res.SanitizedURL,
		Reason: model.ReasonRecentPath,
		Metadata: map[string]any{
			"rule":          5,
			"lastVisitedAt": visitedAt.Format(time.RFC3339),
		},
	}
	w.record(ctx, ruleRecentPath, auditOutcomeTaken, "", map[string]any{"url": d.URL})
	return d, true
}

// Rule 6. Always produces a destination.
func (w *decisionWalk) defaultDashboard(ctx context.Context) model.AuthDestination {
	if preferred := w.user.Preferences.DefaultDashboard; preferred != "" {
		res := w.svc.validator.Validate(ctx, preferred, RedirectUserContext{UserID: w.user.ID})
		if res.IsValid {
			d := model.AuthDestination{
				URL:      res.SanitizedURL,
				Reason:   model.ReasonDefault,
				Metadata: map[string]any{"rule": 6, "source": SourcePreferences},
			}
			w.record(ctx, ruleDefault, auditOutcomeTaken, "", map[string]any{"url": d.URL, "source": SourcePreferences})
			return d
		}
		w.svc.logger.InfoContext(ctx, "ignoring invalid default dashboard preference",
			"user_id", w.user.ID,
			"security_issues", res.IssueStrings(),
		)
	}

	d := model.AuthDestination{
		URL:      model.DefaultDashboardPath,
		Reason:   model.ReasonDefault,
		Metadata: map[string]any{"rule": 6, "source": SourceSystem},
	}
	w.record(ctx, ruleDefault, auditOutcomeTaken, "", map[string]any{"url": d.URL, "source": SourceSystem})
	return d
}

func (w *decisionWalk) record(
	ctx context.Context,
	rule, outcome, orgID string,
	details map[string]any,
) {
	metadata := make(map[string]any, len(details)+1)
	for k, v := range details {
		metadata[k] = v
	}
	metadata["outcome"] = outcome
	w.svc.audit.Record(ctx, model.AuditEvent{
		UserID:         w.user.ID,
		OrganizationID: orgID,
		Action:         "auth_router." + rule,
		ResourceType:   model.AuditResourceDestination,
		Metadata:       metadata,
	})
}

func (s *AuthRouterService) fallback(ctx context.Context, userID string, err error) model.AuthDestination {
	class := obserrors.Classify(err)
	s.logger.ErrorContext(ctx, "post-auth destination fell back to default",
		"user_id", userID,
		"error", err,
		"error_class", class,
	)
	if userID != "" {
		s.audit.Record(ctx, model.AuditEvent{
			UserID:       userID,
			Action:       "auth_router." + ruleFallback,
			ResourceType: model.AuditResourceDestination,
			Metadata:     map[string]any{"outcome": auditOutcomeTaken, "errorClass": class},
		})
	}
	s.metrics.RecordDestination(model.ReasonFallback)
	return model.AuthDestination{
		URL:      model.DefaultDashboardPath,
		Reason:   model.ReasonFallback,
		Metadata: map[string]any{"error": true, "errorClass": class},
	}
}

type noopDecisionRecorder struct{}

func (noopDecisionRecorder) RecordDestination(string)                    {}
func (noopDecisionRecorder) RecordRedirectRejected([]model.SecurityIssue) {}

// organizationRolePath maps a role to its organization landing page.
func organizationRolePath(orgID, role string) string {
	base := "/organizations/" + url.PathEscape(orgID)
	switch role {
	case model.RoleAdmin, model.RoleOwner:
		return base + "/admin"
	case model.RoleManager:
		return base + "/manage"
	default:
		return base + "/dashboard"
	}
}

// HandleProtectedRoute returns the sign-in URL for an unauthenticated visit to
// pathname, carrying the path and its query so the user can be sent back.
func (s *AuthRouterService) HandleProtectedRoute(pathname string, params url.Values) string {
	return BuildSignInURL(s.config.SignInPath, pathname, params)
}

// BuildSignInURL is the pure form of HandleProtectedRoute. The root path yields
// the bare sign-in path. Incoming redirect_url parameters are dropped so the
// original path cannot be overridden.
func BuildSignInURL(signInPath, pathname string, params url.Values) string {
	if signInPath == "" {
		signInPath = "/sign-in"
	}
	if pathname == "" || pathname == "/" {
		return signInPath
	}

	q := url.Values{}
	for key, vals := range params {
		if key == RedirectURLParam {
			continue
		}
		q[key] = append([]string(nil), vals...)
	}
	q.Set(RedirectURLParam, pathname)
	return signInPath + "?" + q.Encode()
}

// RedirectURLParam is the query parameter carrying the post-auth redirect.
const RedirectURLParam = "redirect_url"
