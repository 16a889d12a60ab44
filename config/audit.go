package config

import (
	"fmt"
	"strings"
	"time"
)

// AuditMode selects where audit events are written.
type AuditMode string

const (
	// AuditModeAll writes to the database and the structured log.
	AuditModeAll AuditMode = "all"
	// AuditModeDB writes to the database only.
	AuditModeDB AuditMode = "db"
	// AuditModeLog writes to the structured log only.
	AuditModeLog AuditMode = "log"
	// AuditModeOff disables audit output.
	AuditModeOff AuditMode = "off"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuditMode.
func (m *AuditMode) UnmarshalText(text []byte) error {
	v := AuditMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case AuditModeAll, AuditModeDB, AuditModeLog, AuditModeOff:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid AuditMode: %q (valid options: all, db, log, off)", string(text))
	}
}

// WritesDB reports whether events go to the audit store.
func (m AuditMode) WritesDB() bool { return m == AuditModeAll || m == AuditModeDB }

// WritesLog reports whether events go to the structured log.
func (m AuditMode) WritesLog() bool { return m == AuditModeAll || m == AuditModeLog }

// AuditConfig controls audit output and retention.
type AuditConfig struct {
	Mode AuditMode `env:"AUDIT_MODE" envDefault:"all"`

	// WriteTimeout bounds each audit store append.
	WriteTimeout time.Duration `env:"AUDIT_WRITE_TIMEOUT" envDefault:"2s"`

	Retention AuditRetentionConfig
}

// Sanitize applies guardrails to audit configuration values.
func (a *AuditConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuditModeAll
	}
	if a.WriteTimeout <= 0 {
		a.WriteTimeout = 2 * time.Second
	}
	if a.WriteTimeout > 30*time.Second {
		a.WriteTimeout = 30 * time.Second
	}
	a.Retention.Sanitize()
}

// AuditRetentionConfig contains audit retention runner configuration.
type AuditRetentionConfig struct {
	// Interval is the retention tick interval.
	Interval time.Duration `env:"AUDIT_RETENTION_INTERVAL" envDefault:"1h"`

	// MaxAge is how long audit events are kept.
	MaxAge time.Duration `env:"AUDIT_RETENTION_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows deleted per statement.
	BatchSize int `env:"AUDIT_RETENTION_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *AuditRetentionConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.MaxAge < 24*time.Hour {
		r.MaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
