package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation call metrics
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strataforge_generation_duration_seconds",
			Help:    "Generation call duration in seconds by outcome",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"outcome"}, // "success" or a failure kind
	)

	inFlightGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strataforge_inflight_generations",
			Help: "Number of generation calls currently in flight",
		},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataforge_retries_total",
			Help: "Total task requeues by reason",
		},
		[]string{"reason"},
	)

	// Checkpoint metrics
	checkpointFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strataforge_checkpoint_flushes_total",
			Help: "Total checkpoint records written",
		},
	)

	checkpointFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strataforge_checkpoint_flush_duration_seconds",
			Help:    "Checkpoint flush duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	bufferedResults = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strataforge_checkpoint_buffered_results",
			Help: "Results buffered in memory awaiting flush",
		},
	)

	// Output metrics
	examplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strataforge_examples_total",
			Help: "Finalized tasks by category and status",
		},
		[]string{"category", "status"}, // status: "success" or "failed"
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// ObserveGeneration records one generation call's duration and outcome
func (c *Collector) ObserveGeneration(outcome string, duration time.Duration) {
	generationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncInFlight marks one generation call as started
func (c *Collector) IncInFlight() {
	inFlightGenerations.Inc()
}

// DecInFlight marks one generation call as finished
func (c *Collector) DecInFlight() {
	inFlightGenerations.Dec()
}

// IncRetry counts a task requeue by failure reason
func (c *Collector) IncRetry(reason string) {
	retriesTotal.WithLabelValues(reason).Inc()
}

// ObserveFlush records one checkpoint flush
func (c *Collector) ObserveFlush(duration time.Duration) {
	checkpointFlushes.Inc()
	checkpointFlushDuration.Observe(duration.Seconds())
}

// SetBufferedResults sets the current unflushed buffer size
func (c *Collector) SetBufferedResults(n int) {
	bufferedResults.Set(float64(n))
}

// IncExample counts a finalized task
func (c *Collector) IncExample(category string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	examplesTotal.WithLabelValues(category, status).Inc()
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
