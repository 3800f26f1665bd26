package queue

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the Work Queue exposes, shaped on
// r3e-network-service_layer's infrastructure/metrics package (a *Metrics
// struct of pre-labeled CounterVec/Gauge fields, registered against either
// the default registry or a caller-supplied one).
type Metrics struct {
	JobsProcessedTotal *prometheus.CounterVec
	JobsRetriedTotal   *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	ActiveJobs         *prometheus.GaugeVec
}

// NewMetrics builds a Metrics and registers its collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backupvault",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total jobs that reached a terminal state, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		JobsRetriedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backupvault",
			Subsystem: "queue",
			Name:      "jobs_retried_total",
			Help:      "Total job attempts that were scheduled for a delayed retry.",
		}, []string{"channel"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backupvault",
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time a handler invocation took, by channel.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"channel"}),
		ActiveJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "backupvault",
			Subsystem: "queue",
			Name:      "active_jobs",
			Help:      "Jobs currently occupying a channel's concurrency slots.",
		}, []string{"channel"}),
	}

	registerer.MustRegister(m.JobsProcessedTotal, m.JobsRetriedTotal, m.JobDuration, m.ActiveJobs)
	return m
}
