package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/domain/model"
	apperrors "github.com/target/waypoint/internal/errors"
	"github.com/target/waypoint/internal/ports"
)

// Audit actions written by AuthService.
const (
	AuditActionLogin         = "session.login"
	AuditActionLoginRejected = "session.login_rejected"
	AuditActionLogout        = "session.logout"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	Roles    ports.RoleMapper
	Users    ports.UserSyncer // Required for CompleteLogin
	Audit    *AuditRecorder   // Optional
}

// AuthService orchestrates authentication flows by coordinating provider, role mapping, and session persistence.
type AuthService struct {
	provider ports.AuthProvider
	sessions ports.SessionStore
	roles    ports.RoleMapper
	users    ports.UserSyncer
	audit    *AuditRecorder
}

var errSessionExpired = errors.New("session expired")

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	return &AuthService{
		provider: opts.Provider,
		sessions: opts.Sessions,
		roles:    opts.Roles,
		users:    opts.Users,
		audit:    opts.Audit,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	input := ports.BeginInput{RedirectURL: redirectURL}
	authURL, state, nonce, err := s.provider.Begin(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
	User    *model.User
}

// CompleteLogin completes an authentication flow by exchanging the code for an identity,
// syncing the application user, mapping roles, and persisting a session.
// Suspended accounts are rejected with a Forbidden error.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if input.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if input.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}

	// Exchange authorization code for identity
	exchangeInput := ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	}
	identity, err := s.provider.Exchange(ctx, exchangeInput)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	if s.users == nil {
		return nil, errors.New("user syncer is not configured")
	}
	user, err := s.users.SyncFromIdentity(ctx, model.IdentitySync{
		ExternalID: identity.UserID,
		Email:      identity.Email,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
	})
	if err != nil {
		return nil, fmt.Errorf("sync user: %w", err)
	}
	if user.IsSuspended() {
		s.recordSession(ctx, user.ID, AuditActionLoginRejected, map[string]any{"reason": "suspended"})
		return nil, apperrors.Forbidden("account is suspended")
	}

	// Map provider groups to application role
	role := s.roles.Map(identity.Groups)

	session := domainauth.Session{
		ID:         generateSessionID(),
		UserID:     user.ID,
		ExternalID: identity.UserID,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Email:      user.Email,
		Role:       role,
		Metadata:   identity.Claims,
		ExpiresAt:  identity.ExpiresAt,
	}

	// Persist session
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}
	s.recordSession(ctx, user.ID, AuditActionLogin, map[string]any{"role": string(role)})

	return &CompleteLoginResult{
		Session: session,
		User:    user,
	}, nil
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	// Check if session is expired
	if time.Now().After(session.ExpiresAt) {
		// Clean up expired session
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &session, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil // Nothing to logout
	}

	sess, getErr := s.sessions.Get(ctx, sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if getErr == nil {
		s.recordSession(ctx, sess.UserID, AuditActionLogout, nil)
	}

	return nil
}

func (s *AuthService) recordSession(
	ctx context.Context,
	userID, action string,
	metadata map[string]any,
) {
	// Session ids are bearer credentials and stay out of the audit trail.
	s.audit.Record(ctx, model.AuditEvent{
		UserID:       userID,
		Action:       action,
		ResourceType: model.AuditResourceSession,
		Metadata:     metadata,
	})
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	// Use UUID for session ID - it's URL-safe and has good entropy
	id := uuid.New()
	return id.String()
}
