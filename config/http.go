package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	// Relative redirect targets are resolved against it and its origin is always allowed.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// AllowedOrigins lists extra origins that post-auth redirects may point at.
	AllowedOrigins []string `env:"APP_ALLOWED_ORIGINS" envSeparator:","`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CookieHashKey signs the post-login redirect cookie. A random key is
	// generated at startup when empty, which invalidates in-flight logins on restart.
	CookieHashKey string `env:"APP_COOKIE_HASH_KEY"`

	// CompressionEnabled enables gzip compression for JSON responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	// Default is 6 (standard gzip default).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")

	origins := h.AllowedOrigins[:0]
	for _, o := range h.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	h.AllowedOrigins = origins

	// Clamp compression level to valid gzip range (1-9)
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (h *HTTPConfig) SecureCookies() bool {
	return strings.HasPrefix(strings.ToLower(h.BaseURL), "https://")
}
