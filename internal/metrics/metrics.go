// Package metrics exposes Prometheus collectors for planning and capture runs.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Capture status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	cardsPlannedJobs       prometheus.Gauge
	cardsPlannedTotal      prometheus.Counter
	cardsCapturesTotal     *prometheus.CounterVec
	cardsCaptureDuration   *prometheus.HistogramVec
	cardsRunsSkippedTotal  prometheus.Counter
	cardsLastRunTimestamps *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cardsPlannedJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "socialcards_planned_jobs",
				Help: "Number of card jobs in the most recent planned batch.",
			},
		)

		cardsPlannedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "socialcards_planned_jobs_total",
				Help: "Total number of card jobs planned across runs.",
			},
		)

		cardsCapturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socialcards_captures_total",
				Help: "Total number of card captures, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		cardsCaptureDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "socialcards_capture_duration_seconds",
				Help:    "Histogram of single card capture latencies, labeled by status.",
				Buckets: []float64{1, 2, 5, 7.5, 10, 15, 30, 60},
			},
			[]string{"status"},
		)

		cardsRunsSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "socialcards_runs_skipped_total",
				Help: "Capture runs skipped because the card limit was zero.",
			},
		)

		cardsLastRunTimestamps = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "socialcards_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run, labeled by phase.",
			},
			[]string{"phase"},
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

// ObservePlan records the size of a freshly planned batch.
func ObservePlan(jobs int) {
	Init()
	cardsPlannedJobs.Set(float64(jobs))
	cardsPlannedTotal.Add(float64(jobs))
	cardsLastRunTimestamps.WithLabelValues("plan").SetToCurrentTime()
}

// ObserveCapture records one capture attempt.
func ObserveCapture(rawURL string, status string, duration time.Duration) {
	Init()
	cardsCapturesTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
	cardsCaptureDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveRunSkipped counts a capture run disabled by a zero card limit.
func ObserveRunSkipped() {
	Init()
	cardsRunsSkippedTotal.Inc()
}

// ObserveRunFinished stamps the completion time of a capture run.
func ObserveRunFinished() {
	Init()
	cardsLastRunTimestamps.WithLabelValues("capture").SetToCurrentTime()
}

// Push sends the default registry to a Prometheus Pushgateway.
// Batch CLIs exit before a scrape could happen, so runs push instead.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	Init()
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
