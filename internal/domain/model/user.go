//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
)

// User is an application user synced from the identity provider.
type User struct {
	ID          string      `json:"id"`
	ExternalID  string      `json:"external_id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsSuspended reports whether the account has been soft-disabled.
func (u *User) IsSuspended() bool {
	return u != nil && u.Preferences.AccountStatus == AccountStatusSuspended
}

// DisplayName returns "First Last", falling back to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IdentitySync carries the identity-provider fields used to create or refresh a user.
type IdentitySync struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// Validate normalizes the sync input and checks required fields.
func (s *IdentitySync) Validate() error {
	s.ExternalID = strings.TrimSpace(s.ExternalID)
	s.Email = strings.TrimSpace(s.Email)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	if s.ExternalID == "" {
		return errors.New("external_id is required")
	}
	return nil
}
