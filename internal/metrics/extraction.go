// Package metrics holds prometheus instrumentation for the extraction
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExtractionMetrics records outcomes of receipt extraction calls.
// A nil receiver or an unregistered instance is a no-op, so callers never
// need to guard their observation sites.
type ExtractionMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewExtractionMetrics registers the extraction metrics on the provided
// registerer.
func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	if reg == nil {
		return &ExtractionMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_extraction_duration_seconds",
		Help:    "Duration of receipt extraction calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"parser"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_extraction_success_total",
		Help: "Successful receipt extractions.",
	}, []string{"parser"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_extraction_failure_total",
		Help: "Failed receipt extractions by failure mode.",
	}, []string{"parser", "reason"})
	reg.MustRegister(duration, success, failure)
	return &ExtractionMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration of one extraction call.
func (m *ExtractionMetrics) ObserveDuration(parser string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(parser)).Observe(d.Seconds())
}

// IncSuccess increments the success counter for the named parser.
func (m *ExtractionMetrics) IncSuccess(parser string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(parser)).Inc()
}

// IncFailure increments the failure counter for the named parser and reason.
func (m *ExtractionMetrics) IncFailure(parser, reason string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(parser), normalizeLabel(reason)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
