// Package metrics exposes queue, pipeline and provider activity as
// Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "ai-subtitler/internal/app/errors"
	"ai-subtitler/internal/app/model"
)

const namespace = "subtitler"

// Metrics owns a private registry so tests and multiple instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth    prometheus.Gauge
	running       prometheus.Gauge
	executions    *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	swept  prometheus.Counter
	reaped prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "depth",
			Help: "Job ids admitted and waiting for a worker.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "running",
			Help: "Jobs currently executing.",
		}),
		executions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "queue", Name: "execution_seconds",
			Help:    "Wall time of job executions.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 3, 10),
		}, []string{"stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "jobs_total",
			Help: "Finished jobs by final status and failure kind.",
		}, []string{"status", "kind"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "requests_total",
			Help: "Transcription attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "provider", Name: "latency_seconds",
			Help:    "Latency of successful transcription attempts.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"provider"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "errors_total",
			Help: "Failed transcription attempts by provider and error type.",
		}, []string{"provider", "type"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "maintenance", Name: "jobs_swept_total",
			Help: "Terminal jobs removed by the retention sweep.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "maintenance", Name: "jobs_reaped_total",
			Help: "Stale processing jobs marked failed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queueDepth, m.running, m.executions, m.stageDuration, m.outcomes,
		m.providerRequests, m.providerLatency, m.providerErrors,
		m.swept, m.reaped,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Queue

func (m *Metrics) ObserveDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) ObserveRunning(running int) {
	m.running.Set(float64(running))
}

func (m *Metrics) ObserveExecution(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.executions.WithLabelValues(outcome).Observe(d.Seconds())
}

// Pipeline

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveOutcome(status model.JobStatus, kind apperrors.Kind) {
	label := string(kind)
	if label == "" && status == model.StatusFailed {
		label = "Unknown"
	}
	m.outcomes.WithLabelValues(string(status), label).Inc()
}

// Providers

func (m *Metrics) RecordSuccess(provider string, latencyMs int64, cues int) {
	m.providerRequests.WithLabelValues(provider, "success").Inc()
	m.providerLatency.WithLabelValues(provider).Observe(float64(latencyMs) / 1000)
}

func (m *Metrics) RecordFailure(provider string, errorType string) {
	m.providerRequests.WithLabelValues(provider, "failure").Inc()
	m.providerErrors.WithLabelValues(provider, errorType).Inc()
}

// Maintenance

func (m *Metrics) ObserveSweep(deleted int64) {
	m.swept.Add(float64(deleted))
}

func (m *Metrics) ObserveReaped(n int) {
	m.reaped.Add(float64(n))
}
