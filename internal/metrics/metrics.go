package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Escalation outcomes.
const (
	EscalationEnqueued  = "enqueued"
	EscalationDropped   = "dropped"
	EscalationDelivered = "delivered"
	EscalationFailed    = "failed"
)

// Monitor tick outcomes.
const (
	TickClassified  = "classified"
	TickSkipped     = "skipped"
	TickSourceError = "source_error"
	TickDiscarded   = "discarded"
)

// Metrics holds the Prometheus collectors for the triage engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ClassificationsTotal  *prometheus.CounterVec
	ExtractionErrorsTotal *prometheus.CounterVec
	EscalationsTotal      *prometheus.CounterVec
	ClassificationSeconds prometheus.Histogram
	MonitorTicksTotal     *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ClassificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Total number of classification results by category and flag",
		}, []string{"category", "flag"}),
		ExtractionErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_extraction_errors_total",
			Help: "Total number of extraction failures converted into error results",
		}, []string{"category"}),
		EscalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Escalation events by outcome",
		}, []string{"outcome"}),
		ClassificationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_classification_seconds",
			Help:    "Single-item classification latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		MonitorTicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_monitor_ticks_total",
			Help: "Monitor ticks by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveClassification records one finished classification.
func (m *Metrics) ObserveClassification(category, flag string, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(category, flag).Inc()
	m.ClassificationSeconds.Observe(d.Seconds())
}

// IncrementExtractionErrors counts an extraction failure for category.
func (m *Metrics) IncrementExtractionErrors(category string) {
	if m == nil {
		return
	}
	m.ExtractionErrorsTotal.WithLabelValues(category).Inc()
}

// IncrementEscalations counts an escalation outcome.
func (m *Metrics) IncrementEscalations(outcome string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(outcome).Inc()
}

// IncrementMonitorTicks counts a monitor tick outcome.
func (m *Metrics) IncrementMonitorTicks(outcome string) {
	if m == nil {
		return
	}
	m.MonitorTicksTotal.WithLabelValues(outcome).Inc()
}
