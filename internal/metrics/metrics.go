// Package metrics exposes Prometheus collectors for a binder run. The binder
// is a batch process, so collectors live in a private registry that is dumped
// to a node-exporter textfile when the run ends.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry *prometheus.Registry

	resourcesTotal        *prometheus.CounterVec
	bytesTotal            *prometheus.CounterVec
	conversionsTotal      *prometheus.CounterVec
	jobsTotal             *prometheus.CounterVec
	jobDurationSeconds    prometheus.Histogram
	mergeDurationSeconds  prometheus.Histogram
	mergedPagesTotal      prometheus.Counter
	rateLimitDelaySeconds *prometheus.HistogramVec
	activeJobs            prometheus.Gauge
	lastRunTimestampGauge prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		factory := promauto.With(registry)

		resourcesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_resources_total",
				Help: "Candidate images seen by the fetch stage, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		bytesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_bytes_total",
				Help: "Bytes of image data downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		conversionsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_conversions_total",
				Help: "Image to page conversions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		jobsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_jobs_total",
				Help: "Jobs processed, labeled by final stage.",
			},
			[]string{"status"},
		)

		jobDurationSeconds = factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "binder_job_duration_seconds",
				Help:    "Wall time from job start to its final stage.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		)

		mergeDurationSeconds = factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "binder_merge_duration_seconds",
				Help:    "Wall time spent merging page documents per job.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		mergedPagesTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_merged_pages_total",
				Help: "Pages written into finished documents.",
			},
		)

		rateLimitDelaySeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "binder_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host limiter before a fetch.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		activeJobs = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "binder_active_jobs",
				Help: "Number of jobs currently in flight.",
			},
		)

		lastRunTimestampGauge = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "binder_last_run_timestamp_seconds",
				Help: "Unix time at which the last run finished.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveResource counts one candidate image and, when fetched, its bytes.
func ObserveResource(rawURL, outcome string, size int) {
	Init()
	site := SanitizeSite(rawURL)
	resourcesTotal.WithLabelValues(site, outcome).Inc()
	if size > 0 {
		bytesTotal.WithLabelValues(site).Add(float64(size))
	}
}

// ObserveConversion counts one conversion outcome.
func ObserveConversion(outcome string) {
	Init()
	conversionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveJob counts a job reaching status after running for d.
func ObserveJob(status string, d time.Duration) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
	jobDurationSeconds.Observe(d.Seconds())
}

// ObserveMerge records a merge of the given page count that took d.
func ObserveMerge(pages int, d time.Duration) {
	Init()
	mergeDurationSeconds.Observe(d.Seconds())
	mergedPagesTotal.Add(float64(pages))
}

// ObserveRateLimitDelay records how long a fetch to host was held back.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncActiveJobs increments the in-flight jobs gauge.
func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

// DecActiveJobs decrements the in-flight jobs gauge.
func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}

// WriteTextfile stamps the run end time and writes every collector to path
// in the Prometheus text format.
func WriteTextfile(path string, finished time.Time) error {
	Init()
	lastRunTimestampGauge.Set(float64(finished.Unix()))
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
