package data

import "time"

// TimeProvider supplies the repositories' notion of now.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reports the wall clock in UTC.
type RealTimeProvider struct{}

// Now returns the current time in UTC.
func (RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// FixedTimeProvider always reports the same instant. Tests use it to pin
// created_at and occurred_at values.
type FixedTimeProvider struct {
	at time.Time
}

// NewFixedTimeProvider pins the clock at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{at: t}
}

// Now returns the pinned time.
func (f *FixedTimeProvider) Now() time.Time {
	return f.at
}

// Advance moves the pinned time forward by d.
func (f *FixedTimeProvider) Advance(d time.Duration) {
	f.at = f.at.Add(d)
}
