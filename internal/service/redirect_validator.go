package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/ports"
	"golang.org/x/net/idna"
)

// blockedPathPrefixes are never valid redirect targets.
var blockedPathPrefixes = []string{
	"/api",
	"/admin",
	"/_next",
	"/static",
	"/assets",
	"/auth",
	"/sign-in",
	"/sign-up",
	"/webhooks",
}

// allowedPathPrefixes are application routes a user may be sent back to.
// "/" itself is allowed separately; organization routes need an id segment.
var allowedPathPrefixes = []string{
	"/dashboard",
	"/onboarding",
	"/profile",
	"/settings",
	"/projects",
	"/teams",
}

const organizationsPrefix = "/organizations/"

var dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

// orgPathPattern is case-insensitive to agree with the lowercased allow list.
// The captured id keeps its original case.
var orgPathPattern = regexp.MustCompile(`(?i)^/organizations/([^/]+)(?:/|$)`)

// RedirectValidatorConfig configures origin handling.
type RedirectValidatorConfig struct {
	// BaseURL is the application origin that relative candidates resolve against.
	BaseURL string
	// AllowedOrigins are additional origins accepted besides BaseURL's.
	AllowedOrigins []string
}

// RedirectValidatorOptions groups dependencies for RedirectValidator.
type RedirectValidatorOptions struct {
	Organizations ports.OrganizationDirectory // Required: membership checks for org-scoped paths
	Config        RedirectValidatorConfig
	Logger        *slog.Logger
}

// RedirectUserContext identifies whose access org-scoped redirects are checked against.
type RedirectUserContext struct {
	UserID string
}

// RedirectValidator validates untrusted post-auth redirect URLs.
type RedirectValidator struct {
	orgs    ports.OrganizationDirectory
	base    *url.URL
	origins map[string]struct{}
	logger  *slog.Logger
}

// NewRedirectValidator constructs a RedirectValidator. It panics when the
// directory is missing or BaseURL is not an absolute http(s) URL.
func NewRedirectValidator(opts RedirectValidatorOptions) *RedirectValidator {
	if opts.Organizations == nil {
		panic("OrganizationDirectory is required")
	}
	base, err := url.Parse(strings.TrimSpace(opts.Config.BaseURL))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		panic(fmt.Sprintf("redirect validator: invalid base URL %q", opts.Config.BaseURL))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	origins := make(map[string]struct{}, len(opts.Config.AllowedOrigins)+1)
	if o, ok := normalizeOrigin(base); ok {
		origins[o] = struct{}{}
	}
	for _, raw := range opts.Config.AllowedOrigins {
		u, parseErr := url.Parse(strings.TrimSpace(raw))
		if parseErr != nil {
			logger.Warn("ignoring invalid allowed origin", "origin", raw, "error", parseErr)
			continue
		}
		if o, ok := normalizeOrigin(u); ok {
			origins[o] = struct{}{}
		}
	}

	return &RedirectValidator{
		orgs:    opts.Organizations,
		base:    base,
		origins: origins,
		logger:  logger.With("component", "redirect_validator"),
	}
}

// Validate checks candidate against origin, path, parameter and organization
// access rules and reports every issue found. It never panics.
func (v *RedirectValidator) Validate(
	ctx context.Context,
	candidate string,
	uc RedirectUserContext,
) (result model.RedirectValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.ErrorContext(ctx, "redirect validation panicked", "panic", r)
			result = malformedRedirect()
		}
	}()

	u, ok := v.resolve(candidate)
	if !ok {
		return malformedRedirect()
	}

	cleanPath := u.Path
	if cleanPath == "" {
		cleanPath = "/"
	}
	cleanPath = path.Clean(cleanPath)
	lowerPath := strings.ToLower(cleanPath)

	var issues []model.SecurityIssue

	if u.User != nil || !v.originAllowed(u) {
		issues = append(issues, model.IssueExternalOrigin)
	}

	blocked := matchesAnyPrefix(lowerPath, blockedPathPrefixes)
	if blocked {
		issues = append(issues, model.IssueBlockedPath)
	}
	if !blocked && !pathAllowed(lowerPath) {
		issues = append(issues, model.IssuePathNotAllowed)
	}

	if hasSuspiciousParameters(u.RawQuery) {
		issues = append(issues, model.IssueSuspiciousParameters)
	}

	if m := orgPathPattern.FindStringSubmatch(cleanPath); m != nil {
		if !v.hasActiveMembership(ctx, uc.UserID, m[1]) {
			issues = append(issues, model.IssueOrgAccessDenied)
		}
	}

	if len(issues) > 0 {
		return model.RedirectValidationResult{
			IsValid:        false,
			Reason:         model.RedirectReasonFailed,
			SecurityIssues: issues,
		}
	}

	sanitized := (&url.URL{Path: cleanPath, RawQuery: u.RawQuery}).RequestURI()
	return model.RedirectValidationResult{
		IsValid:        true,
		SanitizedURL:   sanitized,
		Reason:         model.RedirectReasonPassed,
		SecurityIssues: []model.SecurityIssue{},
	}
}

// resolve parses candidate and resolves it against the base URL.
// Backslashes before the query are read as slashes, matching browser behavior.
func (v *RedirectValidator) resolve(candidate string) (*url.URL, bool) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || strings.IndexFunc(trimmed, unicode.IsControl) >= 0 {
		return nil, false
	}
	cut := len(trimmed)
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		cut = i
	}
	trimmed = strings.ReplaceAll(trimmed[:cut], `\`, "/") + trimmed[cut:]

	ref, err := url.Parse(trimmed)
	if err != nil {
		return nil, false
	}
	return v.base.ResolveReference(ref), true
}

func (v *RedirectValidator) originAllowed(u *url.URL) bool {
	origin, ok := normalizeOrigin(u)
	if !ok {
		return false
	}
	_, allowed := v.origins[origin]
	return allowed
}

func (v *RedirectValidator) hasActiveMembership(ctx context.Context, userID, orgID string) bool {
	if userID == "" || orgID == "" {
		return false
	}
	membership, err := v.orgs.GetMembership(ctx, userID, orgID)
	if err != nil {
		v.logger.WarnContext(ctx, "membership lookup failed during redirect validation",
			"user_id", userID, "organization_id", orgID, "error", err)
		return false
	}
	return membership.IsActive()
}

func malformedRedirect() model.RedirectValidationResult {
	return model.RedirectValidationResult{
		IsValid:        false,
		Reason:         model.RedirectReasonMalformed,
		SecurityIssues: []model.SecurityIssue{model.IssueMalformedURL},
	}
}

// normalizeOrigin returns scheme://host[:port] with a lowercased scheme, an
// IDNA ASCII host and default ports dropped.
func normalizeOrigin(u *url.URL) (string, bool) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", false
	}
	asciiHost := host
	if net.ParseIP(host) == nil {
		var err error
		if asciiHost, err = idna.Lookup.ToASCII(host); err != nil {
			return "", false
		}
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		return scheme + "://" + net.JoinHostPort(asciiHost, port), true
	case strings.Contains(asciiHost, ":"):
		return scheme + "://[" + asciiHost + "]", true
	default:
		return scheme + "://" + asciiHost, true
	}
}

// hasPathPrefix reports whether p equals prefix or lies beneath it.
func hasPathPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func matchesAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func pathAllowed(p string) bool {
	if p == "/" {
		return true
	}
	if strings.HasPrefix(p, organizationsPrefix) && len(p) > len(organizationsPrefix) {
		return true
	}
	return matchesAnyPrefix(p, allowedPathPrefixes)
}

// hasSuspiciousParameters scans every query key and value for dangerous URI
// schemes. An unparseable query is suspicious.
func hasSuspiciousParameters(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}
	for key, vals := range values {
		if containsDangerousScheme(key) {
			return true
		}
		for _, val := range vals {
			if containsDangerousScheme(val) {
				return true
			}
		}
	}
	return false
}

func containsDangerousScheme(s string) bool {
	candidates := []string{s}
	if strings.Contains(s, "%") {
		if unescaped, err := url.QueryUnescape(s); err == nil {
			candidates = append(candidates, unescaped)
		}
	}
	for _, c := range candidates {
		folded := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				return -1
			}
			return unicode.ToLower(r)
		}, c)
		for _, scheme := range dangerousSchemes {
			if strings.Contains(folded, scheme) {
				return true
			}
		}
	}
	return false
}
