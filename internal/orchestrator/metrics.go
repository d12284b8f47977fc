package orchestrator

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// Outcome label values.
const (
	outcomeOK         = "ok"
	outcomeValidation = "validation"
	outcomeNotFound   = "not_found"
	outcomeDependency = "dependency"
	outcomeError      = "error"
)

// serviceMetrics holds the Prometheus metrics owned by the orchestrator.
type serviceMetrics struct {
	// ingestTotal counts Ingest calls by outcome.
	ingestTotal *prometheus.CounterVec

	// ingestFragments records the number of fragments written per ingestion.
	ingestFragments prometheus.Histogram

	// queryTotal counts Query calls by outcome.
	queryTotal *prometheus.CounterVec

	// queryDurationSeconds records end-to-end Query latency by outcome.
	queryDurationSeconds *prometheus.HistogramVec

	// queryNoContextTotal counts queries answered without any relevant fragment.
	queryNoContextTotal prometheus.Counter

	// deleteFragmentsTotal counts fragments removed by DeleteDocument.
	deleteFragmentsTotal prometheus.Counter
}

// newServiceMetrics registers the orchestrator metrics against reg.
func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	factory := promauto.With(reg)

	return &serviceMetrics{
		ingestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of document ingestions, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestFragments: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragbot",
			Subsystem: "ingest",
			Name:      "fragments",
			Help:      "Number of fragments written per successful ingestion.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		queryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of queries, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragbot",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency from retrieval to stored reply.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		queryNoContextTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Queries for which no fragment passed the relevance thresholds.",
		}),

		deleteFragmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "delete",
			Name:      "fragments_total",
			Help:      "Fragments removed from the vector index by document deletions.",
		}),
	}
}

// observeQuery records a finished query.
func (m *serviceMetrics) observeQuery(err error, elapsed time.Duration) {
	o := outcome(err)
	m.queryTotal.WithLabelValues(o).Inc()
	m.queryDurationSeconds.WithLabelValues(o).Observe(elapsed.Seconds())
}

// observeIngest records a finished ingestion.
func (m *serviceMetrics) observeIngest(res *IngestResult, err error) {
	m.ingestTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil && res != nil {
		m.ingestFragments.Observe(float64(res.Fragments))
	}
}

// outcome maps err to a metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, apperr.ErrValidation):
		return outcomeValidation
	case errors.Is(err, apperr.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, apperr.ErrDependency):
		return outcomeDependency
	default:
		return outcomeError
	}
}
