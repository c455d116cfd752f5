package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the evidence service.
// Metrics are organized by subsystem: runs, keywords, searches, records,
// providers, the event log, artifacts, and LLM operations. All counters and
// histograms are registered via promauto for automatic registration with the
// default Prometheus registry.
type Metrics struct {
	// RunsStarted counts the total number of discovery runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts the total number of runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts the total number of runs that ended in failure.
	RunsFailed prometheus.Counter

	// RunDuration observes the end-to-end duration of discovery runs in seconds.
	RunDuration prometheus.Histogram

	// KeywordsGenerated counts the total number of search keywords generated across all runs.
	KeywordsGenerated prometheus.Counter

	// KeywordsPerRun observes the distribution of keyword counts per run.
	KeywordsPerRun prometheus.Histogram

	// SearchesStarted counts searches initiated, labeled by provider.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by provider.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by provider.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by provider.
	SearchDuration *prometheus.HistogramVec

	// RecordsPerSearch observes the distribution of records returned per search, labeled by provider.
	RecordsPerSearch *prometheus.HistogramVec

	// RecordsDiscovered counts the total number of unique records after merging.
	RecordsDiscovered prometheus.Counter

	// RecordsDuplicate counts the total number of duplicates collapsed during merging.
	RecordsDuplicate prometheus.Counter

	// RecordsByProvider counts raw records returned, labeled by provider.
	RecordsByProvider *prometheus.CounterVec

	// DOIsVerified counts DOIs confirmed against the verification provider.
	DOIsVerified prometheus.Counter

	// PDFsResolved counts open-access PDF links resolved during enrichment.
	PDFsResolved prometheus.Counter

	// ProviderRequestsTotal counts HTTP requests to provider APIs, labeled by provider and endpoint.
	ProviderRequestsTotal *prometheus.CounterVec

	// ProviderRequestsFailed counts failed HTTP requests to provider APIs, labeled by provider, endpoint, and error type.
	ProviderRequestsFailed *prometheus.CounterVec

	// ProviderRequestDuration observes HTTP request duration to provider APIs in seconds.
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRateLimited counts rate-limited responses from provider APIs, labeled by provider.
	ProviderRateLimited *prometheus.CounterVec

	// EventsAppended counts events appended to the run event log, labeled by event kind.
	EventsAppended *prometheus.CounterVec

	// EventAppendFailures counts events that could not be persisted.
	EventAppendFailures prometheus.Counter

	// EventBroadcastsDropped counts events dropped because a subscriber channel was full.
	EventBroadcastsDropped prometheus.Counter

	// ActiveSubscribers tracks the number of live event stream subscribers.
	ActiveSubscribers prometheus.Gauge

	// ArtifactsWritten counts artifact versions written, labeled by step name.
	ArtifactsWritten *prometheus.CounterVec

	// ArtifactVersionConflicts counts writes retried after a version conflict.
	ArtifactVersionConflicts prometheus.Counter

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of discovery runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of discovery runs completed successfully",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of discovery runs that failed",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of discovery runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),

		// Keywords
		KeywordsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keywords_generated_total",
			Help:      "Total number of search keywords generated",
		}),
		KeywordsPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keywords_per_run",
			Help:      "Number of search keywords generated per run",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),

		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of searches started by provider",
		}, []string{"provider"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of searches completed by provider",
		}, []string{"provider"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of searches that failed by provider",
		}, []string{"provider"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches in seconds by provider",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		RecordsPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "records_per_search",
			Help:      "Number of records returned per search by provider",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}, []string{"provider"}),

		// Records
		RecordsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_discovered_total",
			Help:      "Total number of unique records after merging",
		}),
		RecordsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Total number of duplicate records collapsed during merging",
		}),
		RecordsByProvider: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_by_provider_total",
			Help:      "Total number of raw records returned by provider",
		}, []string{"provider"}),
		DOIsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dois_verified_total",
			Help:      "Total number of DOIs verified during enrichment",
		}),
		PDFsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdfs_resolved_total",
			Help:      "Total number of open-access PDF links resolved during enrichment",
		}),

		// Providers
		ProviderRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of requests to providers",
		}, []string{"provider", "endpoint"}),
		ProviderRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_failed_total",
			Help:      "Total number of failed requests to providers",
		}, []string{"provider", "endpoint", "error_type"}),
		ProviderRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of requests to providers in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "endpoint"}),
		ProviderRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_rate_limited_total",
			Help:      "Total number of rate limit responses from providers",
		}, []string{"provider"}),

		// Event log
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Total number of events appended to the run event log by kind",
		}, []string{"kind"}),
		EventAppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_append_failures_total",
			Help:      "Total number of events that could not be persisted",
		}),
		EventBroadcastsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_broadcasts_dropped_total",
			Help:      "Total number of events dropped on full subscriber channels",
		}),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscribers",
			Help:      "Number of live event stream subscribers",
		}),

		// Artifacts
		ArtifactsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Total number of artifact versions written by step",
		}, []string{"step"}),
		ArtifactVersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_version_conflicts_total",
			Help:      "Total number of artifact writes retried after a version conflict",
		}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
	}
}

// RecordRunStarted records that a discovery run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a discovery run has completed.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a discovery run has failed.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordKeywordsGenerated records keyword generation results.
func (m *Metrics) RecordKeywordsGenerated(count int) {
	m.KeywordsGenerated.Add(float64(count))
	m.KeywordsPerRun.Observe(float64(count))
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(provider string) {
	m.SearchesStarted.WithLabelValues(provider).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(provider string, recordCount int, durationSeconds float64) {
	m.SearchesCompleted.WithLabelValues(provider).Inc()
	m.SearchDuration.WithLabelValues(provider).Observe(durationSeconds)
	m.RecordsPerSearch.WithLabelValues(provider).Observe(float64(recordCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(provider string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(provider).Inc()
	m.SearchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordRecordsMerged records the outcome of a merge pass.
func (m *Metrics) RecordRecordsMerged(unique, duplicates int) {
	m.RecordsDiscovered.Add(float64(unique))
	m.RecordsDuplicate.Add(float64(duplicates))
}

// RecordRecordsByProvider records raw records returned from a provider.
func (m *Metrics) RecordRecordsByProvider(provider string, count int) {
	m.RecordsByProvider.WithLabelValues(provider).Add(float64(count))
}

// RecordDOIsVerified records DOIs confirmed during enrichment.
func (m *Metrics) RecordDOIsVerified(count int) {
	m.DOIsVerified.Add(float64(count))
}

// RecordPDFsResolved records open-access PDF links resolved during enrichment.
func (m *Metrics) RecordPDFsResolved(count int) {
	m.PDFsResolved.Add(float64(count))
}

// RecordProviderRequest records a request to a provider.
func (m *Metrics) RecordProviderRequest(provider, endpoint string, durationSeconds float64) {
	m.ProviderRequestsTotal.WithLabelValues(provider, endpoint).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, endpoint).Observe(durationSeconds)
}

// RecordProviderRequestFailed records a failed request to a provider.
func (m *Metrics) RecordProviderRequestFailed(provider, endpoint, errorType string) {
	m.ProviderRequestsFailed.WithLabelValues(provider, endpoint, errorType).Inc()
}

// RecordProviderRateLimited records a rate limit response from a provider.
func (m *Metrics) RecordProviderRateLimited(provider string) {
	m.ProviderRateLimited.WithLabelValues(provider).Inc()
}

// RecordEventAppended records an event appended to the run event log.
func (m *Metrics) RecordEventAppended(kind string) {
	m.EventsAppended.WithLabelValues(kind).Inc()
}

// RecordEventAppendFailed records an event that could not be persisted.
func (m *Metrics) RecordEventAppendFailed() {
	m.EventAppendFailures.Inc()
}

// RecordBroadcastDropped records an event dropped on a full subscriber channel.
func (m *Metrics) RecordBroadcastDropped() {
	m.EventBroadcastsDropped.Inc()
}

// SubscriberAdded records a new event stream subscriber.
func (m *Metrics) SubscriberAdded() {
	m.ActiveSubscribers.Inc()
}

// SubscriberRemoved records a departed event stream subscriber.
func (m *Metrics) SubscriberRemoved() {
	m.ActiveSubscribers.Dec()
}

// RecordArtifactWritten records an artifact version written for a step.
func (m *Metrics) RecordArtifactWritten(step string) {
	m.ArtifactsWritten.WithLabelValues(step).Inc()
}

// RecordArtifactVersionConflict records an artifact write retried after a conflict.
func (m *Metrics) RecordArtifactVersionConflict() {
	m.ArtifactVersionConflicts.Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}
