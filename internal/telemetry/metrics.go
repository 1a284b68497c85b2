// Package telemetry is the observation sink long-lived components
// receive at construction: Prometheus metrics on a private registry
// and an in-process OpenTelemetry tracer. Nothing here is a package
// global; a nil *Metrics is a valid no-op sink, so tests and
// short-lived commands can skip wiring it.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	filesIndexed      prometheus.Counter
	filesFailed       prometheus.Counter
	entitiesStored    prometheus.Counter
	staleDeleted      prometheus.Counter
	runDuration       prometheus.Histogram
	outboxApplied     *prometheus.CounterVec
	outboxFailures    *prometheus.CounterVec
	outboxPending     *prometheus.GaugeVec
	embeddingCacheHit *prometheus.CounterVec
}

// NewMetrics builds a Metrics sink on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		filesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "pipeline", Name: "files_indexed_total",
			Help: "Files that completed extraction, across all runs",
		}),
		filesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "pipeline", Name: "files_failed_total",
			Help: "Files that failed extraction",
		}),
		entitiesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "pipeline", Name: "entities_stored_total",
			Help: "Entities written to the metadata store",
		}),
		staleDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "pipeline", Name: "stale_entities_deleted_total",
			Help: "Entities soft-deleted by snapshot reconciliation",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codesearch", Subsystem: "pipeline", Name: "run_duration_seconds",
			Help:    "Wall-clock duration of one indexing run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		outboxApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "outbox", Name: "entries_applied_total",
			Help: "Outbox entries successfully applied, by target store",
		}, []string{"target"}),
		outboxFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "outbox", Name: "entry_failures_total",
			Help: "Outbox entry application failures (each increments the entry's retry count)",
		}, []string{"target"}),
		outboxPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "codesearch", Subsystem: "outbox", Name: "entries_pending",
			Help: "Unprocessed outbox entries observed at the last poll, by target store",
		}, []string{"target"}),
		embeddingCacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codesearch", Subsystem: "embeddings", Name: "cache_lookups_total",
			Help: "Content-hash cache lookups, by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.filesIndexed, m.filesFailed, m.entitiesStored, m.staleDeleted, m.runDuration,
		m.outboxApplied, m.outboxFailures, m.outboxPending, m.embeddingCacheHit,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records the outcome of one pipeline run.
func (m *Metrics) ObserveRun(totalFiles, failedFiles, entities, staleDeleted int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.filesIndexed.Add(float64(totalFiles - failedFiles))
	m.filesFailed.Add(float64(failedFiles))
	m.entitiesStored.Add(float64(entities))
	m.staleDeleted.Add(float64(staleDeleted))
	m.runDuration.Observe(elapsed.Seconds())
}

// OutboxApplied counts one successfully applied entry.
func (m *Metrics) OutboxApplied(target string) {
	if m == nil {
		return
	}
	m.outboxApplied.WithLabelValues(target).Inc()
}

// OutboxFailed counts one failed apply attempt.
func (m *Metrics) OutboxFailed(target string) {
	if m == nil {
		return
	}
	m.outboxFailures.WithLabelValues(target).Inc()
}

// OutboxPending records the queue depth seen at a poll.
func (m *Metrics) OutboxPending(target string, n int) {
	if m == nil {
		return
	}
	m.outboxPending.WithLabelValues(target).Set(float64(n))
}

// EmbeddingCacheLookup counts one content-hash cache lookup.
func (m *Metrics) EmbeddingCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embeddingCacheHit.WithLabelValues(result).Inc()
}
