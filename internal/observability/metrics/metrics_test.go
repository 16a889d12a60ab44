package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/waypoint/internal/domain/model"
)

func TestMetrics_RecordDestination(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordDestination(model.ReasonDefault)
	m.RecordDestination(model.ReasonDefault)
	m.RecordDestination(model.ReasonFallback)

	assert.InDelta(t, 2, testutil.ToFloat64(m.destinations.WithLabelValues(model.ReasonDefault)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.destinations.WithLabelValues(model.ReasonFallback)), 0)
}

func TestMetrics_RecordRedirectRejected(t *testing.T) {
	m := New(nil)

	m.RecordRedirectRejected([]model.SecurityIssue{model.IssueExternalOrigin, model.IssueBlockedPath})
	m.RecordRedirectRejected([]model.SecurityIssue{model.IssueExternalOrigin})

	assert.InDelta(t, 2, testutil.ToFloat64(m.redirectRejections.WithLabelValues("external_origin")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.redirectRejections.WithLabelValues("blocked_path")), 0)
}

func TestMetrics_RecordRetention(t *testing.T) {
	m := New(nil)

	m.RecordRetention(RetentionMetric{Deleted: 5, Elapsed: time.Millisecond})
	m.RecordRetention(RetentionMetric{})
	m.RecordRetention(RetentionMetric{Err: errors.New("boom")})

	assert.InDelta(t, 5, testutil.ToFloat64(m.retentionDeleted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retentionRuns.WithLabelValues(ResultSuccess, "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retentionRuns.WithLabelValues(ResultNoop, "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retentionRuns.WithLabelValues(ResultError, "unknown")), 0)
}

func TestMetrics_ObserveHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveHTTP("GET", "/api/onboarding/status", 200, 10*time.Millisecond)
	m.ObserveHTTP("GET", "", 404, time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "waypoint_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDestination(model.ReasonDefault)
		m.RecordRedirectRejected([]model.SecurityIssue{model.IssueMalformedURL})
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
		m.RecordRetention(RetentionMetric{Deleted: 1})
	})
}
