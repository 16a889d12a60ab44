package config

import (
	"strings"
	"time"
)

const (
	defaultSignInPath       = "/sign-in"
	defaultRecentPathMaxAge = 7 * 24 * time.Hour
)

// RoutingConfig controls post-authentication destination resolution.
type RoutingConfig struct {
	// SignInPath is where unauthenticated browsers are sent.
	SignInPath string `env:"ROUTING_SIGN_IN_PATH" envDefault:"/sign-in"`

	// RecentPathMaxAge bounds how old a last-visited path may be and still be reused.
	RecentPathMaxAge time.Duration `env:"ROUTING_RECENT_PATH_MAX_AGE" envDefault:"168h"`

	// OrgHintExpression is a JMESPath expression evaluated over session metadata
	// to find an organization id when the request names none. Empty disables it.
	OrgHintExpression string `env:"ROUTING_ORG_HINT_EXPRESSION" envDefault:"org_id"`
}

// Sanitize applies guardrails to routing configuration values.
func (r *RoutingConfig) Sanitize() {
	r.SignInPath = strings.TrimSpace(r.SignInPath)
	if r.SignInPath == "" || !strings.HasPrefix(r.SignInPath, "/") || strings.HasPrefix(r.SignInPath, "//") {
		r.SignInPath = defaultSignInPath
	}
	if r.RecentPathMaxAge <= 0 {
		r.RecentPathMaxAge = defaultRecentPathMaxAge
	}
	r.OrgHintExpression = strings.TrimSpace(r.OrgHintExpression)
}
