package metrics

import "github.com/prometheus/client_golang/prometheus"

// Vector store, retrieval, generation and indexing metrics.
var (
	StoreInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_inserts_total",
			Help:      "Vector store insert attempts by outcome",
		},
		[]string{"status"}, // ok / dimension_mismatch / persist_error / encode_error
	)

	StoreRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_records",
			Help:      "Records currently held by the vector store",
		},
	)

	StorePersistDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_persist_duration_seconds",
			Help:      "Time to serialize and save the full vector snapshot",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	StoreSnapshotBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_snapshot_bytes",
			Help:      "Size of the last persisted snapshot",
		},
	)

	RetrievalResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of similar records returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	RetrievalEmbeddingFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_embedding_failures_total",
			Help:      "Retrievals that returned nothing because the query could not be embedded",
		},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Completion requests by model and outcome",
		},
		[]string{"model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Completion request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	GenerationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Completion attempts retried after a transient failure",
		},
	)

	GenerationBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_breaker_state",
			Help:      "Completion circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	ReplySuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_suggestions_total",
			Help:      "Reply compositions by path (grounded / fallback / none)",
		},
		[]string{"path"},
	)

	IndexedEmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_emails_total",
			Help:      "Emails processed by the indexer by outcome",
		},
		[]string{"status"}, // ok / failed / skipped
	)

	EmailSourceBadLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_source_bad_lines_total",
			Help:      "Mailbox export lines skipped because they could not be decoded",
		},
	)
)

func ragCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		StoreInsertsTotal,
		StoreRecords,
		StorePersistDuration,
		StoreSnapshotBytes,
		RetrievalResults,
		RetrievalEmbeddingFailuresTotal,
		GenerationRequestsTotal,
		GenerationRequestDuration,
		GenerationRetriesTotal,
		GenerationBreakerState,
		ReplySuggestionsTotal,
		IndexedEmailsTotal,
		EmailSourceBadLinesTotal,
	}
}
