// Package telemetry provides logging, run identifiers and metrics for
// reconciliation runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the reconciliation collectors on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	documents        *prometheus.CounterVec
	directives       *prometheus.CounterVec
	commands         *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	lastBatchSuccess prometheus.Gauge
	lastCommit       prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_manager_documents_total",
			Help: "Documents processed, by result.",
		}, []string{"result"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_manager_directives_total",
			Help: "Directives processed, by kind and result.",
		}, []string{"kind", "result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_manager_commands_total",
			Help: "External commands run through the privileged executor.",
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "config_manager_batch_duration_seconds",
			Help:    "Wall time of a batch run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastBatchSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "config_manager_last_batch_success",
			Help: "1 if the last batch committed, 0 otherwise.",
		}),
		lastCommit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "config_manager_last_commit_timestamp_seconds",
			Help: "Unix time of the last successful fingerprint commit.",
		}),
	}
	m.registry.MustRegister(
		m.documents,
		m.directives,
		m.commands,
		m.batchDuration,
		m.lastBatchSuccess,
		m.lastCommit,
	)
	return m
}

// RecordDocument counts a document outcome.
func (m *Metrics) RecordDocument(result string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(result).Inc()
}

// RecordDirective counts a directive outcome.
func (m *Metrics) RecordDirective(kind, result string) {
	if m == nil {
		return
	}
	m.directives.WithLabelValues(kind, result).Inc()
}

// RecordCommand counts an executor invocation. Its signature matches
// executor.Observer.
func (m *Metrics) RecordCommand(_ []string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.commands.WithLabelValues(result).Inc()
}

// RecordBatch observes a finished batch.
func (m *Metrics) RecordBatch(duration time.Duration, committed bool) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(duration.Seconds())
	if committed {
		m.lastBatchSuccess.Set(1)
		m.lastCommit.SetToCurrentTime()
	} else {
		m.lastBatchSuccess.Set(0)
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile atomically writes the metrics in the node_exporter
// textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
