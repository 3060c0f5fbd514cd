// Package metrics exposes Prometheus collectors for the job subsystem.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lenscat"

// Record outcome labels.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Lease recovery actions.
const (
	RecoveryRequeued   = "requeued"
	RecoveryFailed     = "failed"
	RecoveryReenqueued = "reenqueued"
)

// JobMetrics groups the collectors recorded by services, workers and the queue.
// A nil *JobMetrics is valid and records nothing.
type JobMetrics struct {
	registry       *prometheus.Registry
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsCreated    *prometheus.CounterVec
	syncRecords    *prometheus.CounterVec
	recalcProducts *prometheus.CounterVec
	queueEnqueued  *prometheus.CounterVec
	queueAcked     prometheus.Counter
	queueReclaimed prometheus.Counter
	leaseRecovery  *prometheus.CounterVec
}

// New creates JobMetrics registered on a fresh registry together with the
// Go runtime and process collectors.
func New() *JobMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &JobMetrics{
		registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Finished job runs by type and terminal status.",
		}, []string{"job_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from claim to terminal write.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"job_type"}),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs accepted by the trigger endpoints and the scheduler.",
		}, []string{"job_type"}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "ERP product records handled by the sync orchestrator by outcome.",
		}, []string{"outcome"}),
		recalcProducts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculation_products_total",
			Help:      "Products handled by the price recalculation engine by outcome.",
		}, []string{"outcome"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Tasks appended to the job stream.",
		}, []string{"job_type"}),
		queueAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_acked_total",
			Help:      "Tasks acknowledged on the job stream.",
		}),
		queueReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_reclaimed_total",
			Help:      "Pending tasks claimed from idle consumers.",
		}),
		leaseRecovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_recoveries_total",
			Help:      "Jobs touched by the lease sweeper by action.",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobsCreated,
		m.syncRecords,
		m.recalcProducts,
		m.queueEnqueued,
		m.queueAcked,
		m.queueReclaimed,
		m.leaseRecovery,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *JobMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registerer exposes the registry so other components can add collectors.
// A nil *JobMetrics returns the global default registerer.
func (m *JobMetrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// JobCreated counts an accepted job.
func (m *JobMetrics) JobCreated(jobType string) {
	if m == nil {
		return
	}
	m.jobsCreated.WithLabelValues(jobType).Inc()
}

// JobFinished records a terminal transition.
func (m *JobMetrics) JobFinished(jobType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// SyncRecords adds n product records with the given outcome.
func (m *JobMetrics) SyncRecords(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncRecords.WithLabelValues(outcome).Add(float64(n))
}

// RecalculationProducts adds n products with the given outcome.
func (m *JobMetrics) RecalculationProducts(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recalcProducts.WithLabelValues(outcome).Add(float64(n))
}

// Enqueued counts a task appended to the stream.
func (m *JobMetrics) Enqueued(jobType string) {
	if m == nil {
		return
	}
	m.queueEnqueued.WithLabelValues(jobType).Inc()
}

// Acked counts an acknowledged task.
func (m *JobMetrics) Acked() {
	if m == nil {
		return
	}
	m.queueAcked.Inc()
}

// Reclaimed counts tasks taken over from idle consumers.
func (m *JobMetrics) Reclaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.queueReclaimed.Add(float64(n))
}

// LeaseRecovered counts a sweeper action on one job.
func (m *JobMetrics) LeaseRecovered(action string) {
	if m == nil {
		return
	}
	m.leaseRecovery.WithLabelValues(action).Inc()
}
