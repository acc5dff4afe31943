package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds every Prometheus collector the registry exports.
type Metrics struct {
	CertificatesCreated prometheus.Counter
	Transitions         *prometheus.CounterVec
	RejectedTransitions *prometheus.CounterVec
	CensusAnomalies     prometheus.Counter
	CacheLookups        *prometheus.CounterVec
	OutboxPublished     prometheus.Counter
	OutboxFailures      prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers the collectors with the default registerer. Call once per
// process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CertificatesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_certificates_created_total",
			Help: "Total number of certificates created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certregistry_transitions_total",
			Help: "Lifecycle transitions applied, by source and target status",
		}, []string{"from", "to"}),
		RejectedTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certregistry_transitions_rejected_total",
			Help: "Lifecycle transitions rejected by the transition table",
		}, []string{"from", "to"}),
		CensusAnomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_census_anomalies_total",
			Help: "Decrements attempted on an empty population bucket",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certregistry_population_cache_lookups_total",
			Help: "Population cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_outbox_published_total",
			Help: "Certificate events published from the outbox",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_outbox_failures_total",
			Help: "Outbox relay batches that failed to publish",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certregistry_operation_duration_seconds",
			Help:    "Duration of lifecycle and census operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certregistry_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementCertificatesCreated() {
	m.CertificatesCreated.Inc()
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementRejectedTransition(from, to string) {
	m.RejectedTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementCensusAnomaly() {
	m.CensusAnomalies.Inc()
}

func (m *Metrics) IncrementCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailure() {
	m.OutboxFailures.Inc()
}

// ObserveOperation records how long operation took.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, start time.Time) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
