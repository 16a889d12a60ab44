// Package metrics exposes Prometheus collectors for routing decisions, HTTP
// traffic and background maintenance.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/target/waypoint/internal/domain/model"
	obserrors "github.com/target/waypoint/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

const namespace = "waypoint"

// Metrics holds the application's collectors. All methods are safe on a nil receiver.
type Metrics struct {
	destinations       *prometheus.CounterVec
	redirectRejections *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	retentionRuns      *prometheus.CounterVec
	retentionDeleted   prometheus.Counter
	retentionDuration  prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps tests from colliding on the global one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		destinations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_destinations_total",
				Help:      "Post-auth destinations resolved, by decision reason.",
			},
			[]string{"reason"},
		),
		redirectRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redirect_rejections_total",
				Help:      "Rejected redirect candidates, by security issue.",
			},
			[]string{"issue"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		retentionRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_retention_runs_total",
				Help:      "Audit retention passes, by result.",
			},
			[]string{"result", "error_class"},
		),
		retentionDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_retention_deleted_total",
			Help:      "Audit events deleted by retention.",
		}),
		retentionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_retention_duration_seconds",
			Help:      "Duration of audit retention passes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// RecordDestination counts a resolved destination.
func (m *Metrics) RecordDestination(reason string) {
	if m == nil {
		return
	}
	m.destinations.WithLabelValues(reason).Inc()
}

// RecordRedirectRejected counts each issue on a rejected redirect.
func (m *Metrics) RecordRedirectRejected(issues []model.SecurityIssue) {
	if m == nil {
		return
	}
	for _, issue := range issues {
		m.redirectRejections.WithLabelValues(string(issue)).Inc()
	}
}

// ObserveHTTP records one request. route should be the matched pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RetentionMetric captures one retention pass.
type RetentionMetric struct {
	Deleted int64
	Elapsed time.Duration
	Err     error
}

// RecordRetention records a retention pass.
func (m *Metrics) RecordRetention(in RetentionMetric) {
	if m == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Deleted == 0:
		result = ResultNoop
	}
	m.retentionRuns.WithLabelValues(result, obserrors.Classify(in.Err)).Inc()
	if in.Deleted > 0 {
		m.retentionDeleted.Add(float64(in.Deleted))
	}
	if in.Elapsed > 0 {
		m.retentionDuration.Observe(in.Elapsed.Seconds())
	}
}
