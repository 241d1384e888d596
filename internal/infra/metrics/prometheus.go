package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_jobs_processed_total",
		Help: "Total number of jobs reaching a terminal state, by type and status",
	}, []string{"type", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_job_duration_seconds",
		Help:    "Wall-clock duration of one job attempt",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"type"})

	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_job_retries_total",
		Help: "Total number of transient-failure retries",
	}, []string{"type"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_active_workers",
		Help: "Number of workers currently executing a job",
	})

	VideosReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_videos_reconciled_total",
		Help: "Reconciliation decisions by outcome",
	}, []string{"outcome"})
)
