package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each
// Collector owns its registry, so tests may create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Chain metrics
	ChainRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	AnswerChunks  prometheus.Counter

	// Persistence metrics
	TranscriptCommits *prometheus.CounterVec
}

// NewCollector creates a metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ChainRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_runs_total",
				Help:      "Chain runs by outcome (success, error, abandoned)",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_stage_duration_seconds",
				Help:      "Time spent in each chain stage",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		AnswerChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answer_chunks_total",
				Help:      "Total number of streamed answer chunks",
			},
		),
		TranscriptCommits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcript_commits_total",
				Help:      "Persisted transcript rows by role",
			},
			[]string{"role"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.ChainRuns,
		c.StageDuration,
		c.AnswerChunks,
		c.TranscriptCommits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveStage records the duration of one chain stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveChunk counts one streamed answer chunk.
func (c *Collector) ObserveChunk() {
	c.AnswerChunks.Inc()
}

// ObserveRun counts one finished chain run.
func (c *Collector) ObserveRun(outcome string) {
	c.ChainRuns.WithLabelValues(outcome).Inc()
}

// ObserveCommit counts one persisted transcript row.
func (c *Collector) ObserveCommit(role string) {
	c.TranscriptCommits.WithLabelValues(role).Inc()
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
