package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedTimeProvider(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := NewFixedTimeProvider(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())
}

func TestRealTimeProviderIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, RealTimeProvider{}.Now().Location())
}
