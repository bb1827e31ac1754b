package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the reference service.
// Metrics are organized by subsystem: source requests, OA resolution, downloads,
// acquisition runs and citation verification. All collectors are registered via
// promauto with the default Prometheus registry.
//
// Metrics satisfies the observer interfaces of papersources.HTTPClient, oa.Resolver,
// pdf.Downloader, acquisition.Pipeline and citation.Engine, so one instance can be
// handed to every component.
type Metrics struct {
	// SourceRequests counts HTTP requests to external APIs, labeled by source and outcome.
	SourceRequests *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to external APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// OAResolutions counts OA strategy outcomes (hit, miss, invalid), labeled by strategy.
	OAResolutions *prometheus.CounterVec

	// Downloads counts download attempts, labeled by outcome (ok or a failure reason).
	Downloads *prometheus.CounterVec

	// DownloadBytes observes the size of validated PDFs.
	DownloadBytes prometheus.Histogram

	// AcquisitionRuns counts completed acquisition pipeline runs.
	AcquisitionRuns prometheus.Counter

	// PapersAcquired counts papers that reached a local PDF, labeled by pipeline stage.
	PapersAcquired *prometheus.CounterVec

	// CitationsVerified counts verification results, labeled by status.
	CitationsVerified *prometheus.CounterVec

	// VerificationCacheHits counts citation lookups served from the cache.
	VerificationCacheHits prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SourceRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to external APIs",
		}, []string{"source", "outcome"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to external APIs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),

		OAResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oa_resolutions_total",
			Help:      "Open access strategy outcomes",
		}, []string{"strategy", "outcome"}),

		Downloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "PDF download attempts by outcome",
		}, []string{"outcome"}),
		DownloadBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_bytes",
			Help:      "Size of validated PDF downloads in bytes",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		}),

		AcquisitionRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_runs_total",
			Help:      "Total number of acquisition pipeline runs",
		}),
		PapersAcquired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_acquired_total",
			Help:      "Papers acquired as full text, by pipeline stage",
		}, []string{"stage"}),

		CitationsVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_verified_total",
			Help:      "Citation verification results by status",
		}, []string{"status"}),
		VerificationCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_cache_hits_total",
			Help:      "Citation lookups served from the cache",
		}),
	}
}

// ObserveRequest records one external API request.
func (m *Metrics) ObserveRequest(source, outcome string, duration time.Duration) {
	m.SourceRequests.WithLabelValues(source, outcome).Inc()
	m.SourceRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveResolution records one OA strategy outcome.
func (m *Metrics) ObserveResolution(strategy, outcome string) {
	m.OAResolutions.WithLabelValues(strategy, outcome).Inc()
}

// ObserveDownload records one download attempt. bytes is zero for failures.
func (m *Metrics) ObserveDownload(outcome string, bytes int64) {
	m.Downloads.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.DownloadBytes.Observe(float64(bytes))
	}
}

// ObserveRun records a finished acquisition run.
func (m *Metrics) ObserveRun() {
	m.AcquisitionRuns.Inc()
}

// ObservePaperAcquired records a paper acquired by stage (direct, oa, proxy).
func (m *Metrics) ObservePaperAcquired(stage string) {
	m.PapersAcquired.WithLabelValues(stage).Inc()
}

// ObserveVerification records one verification result.
func (m *Metrics) ObserveVerification(status string) {
	m.CitationsVerified.WithLabelValues(status).Inc()
}

// ObserveCacheHit records a verification cache hit.
func (m *Metrics) ObserveCacheHit() {
	m.VerificationCacheHits.Inc()
}
