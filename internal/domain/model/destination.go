//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

// Reasons attached to a resolved destination. Exactly one of the six rule
// reasons is produced per resolution, or ReasonFallback on internal failure.
const (
	ReasonExplicitRedirect = "User-requested redirect (validated)"
	ReasonOnboarding       = "Onboarding incomplete"
	ReasonOrgContext       = "Organization context"
	ReasonOrgInferred      = "Inferred organization"
	ReasonRecentPath       = "Recent activity"
	ReasonDefault          = "Default dashboard"
	ReasonFallback         = "Fallback due to error"
)

// DestinationReasons lists the rule reasons in decision order.
func DestinationReasons() []string {
	return []string{
		ReasonExplicitRedirect,
		ReasonOnboarding,
		ReasonOrgContext,
		ReasonOrgInferred,
		ReasonRecentPath,
		ReasonDefault,
	}
}

// DefaultDashboardPath is the terminal destination.
const DefaultDashboardPath = "/dashboard"

// AuthDestination is where a user is sent after sign-in. It is computed per
// call and never stored.
type AuthDestination struct {
	URL                 string         `json:"url"`
	Reason              string         `json:"reason"`
	RequiresOnboarding  *bool          `json:"requires_onboarding,omitempty"`
	OrganizationContext string         `json:"organization_context,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// SecurityIssue is a machine-readable redirect validation tag.
type SecurityIssue string

const (
	IssueMalformedURL         SecurityIssue = "malformed_url"
	IssueExternalOrigin       SecurityIssue = "external_origin"
	IssueBlockedPath          SecurityIssue = "blocked_path"
	IssuePathNotAllowed       SecurityIssue = "path_not_allowed"
	IssueSuspiciousParameters SecurityIssue = "suspicious_parameters"
	IssueOrgAccessDenied      SecurityIssue = "organization_access_denied"
)

// Redirect validation reasons.
const (
	RedirectReasonPassed    = "URL validation passed"
	RedirectReasonFailed    = "Security validation failed"
	RedirectReasonMalformed = "Invalid URL format"
)

// RedirectValidationResult is the outcome of validating an untrusted redirect.
type RedirectValidationResult struct {
	IsValid        bool            `json:"is_valid"`
	SanitizedURL   string          `json:"sanitized_url,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	SecurityIssues []SecurityIssue `json:"security_issues"`
}

// HasIssue reports whether the result carries the given tag.
func (r RedirectValidationResult) HasIssue(issue SecurityIssue) bool {
	for _, i := range r.SecurityIssues {
		if i == issue {
			return true
		}
	}
	return false
}

// IssueStrings returns the security issues as plain strings for logs and audit metadata.
func (r RedirectValidationResult) IssueStrings() []string {
	out := make([]string, len(r.SecurityIssues))
	for i, issue := range r.SecurityIssues {
		out[i] = string(issue)
	}
	return out
}
