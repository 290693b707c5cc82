// Package metrics exposes worker counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evently"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry     *prometheus.Registry
	tasksTotal   *prometheus.CounterVec
	eventsTotal  *prometheus.CounterVec
	taskDuration prometheus.Histogram
	queueErrors  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Finished ingestion tasks by final status",
	}, []string{"status"})
	m.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Extracted payloads by outcome",
	}, []string{"outcome"})
	m.taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time spent processing one task",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	m.queueErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_errors_total",
		Help:      "Failed dequeue attempts",
	})

	m.registry.MustRegister(
		m.tasksTotal, m.eventsTotal, m.taskDuration, m.queueErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TaskFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(status).Inc()
	m.taskDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Events(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) QueueError() {
	if m == nil {
		return
	}
	m.queueErrors.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
