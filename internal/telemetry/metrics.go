package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "batch_jobs_enqueued_total", Help: "Batch jobs enqueued"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "batch_jobs_completed_total", Help: "Batch jobs completed successfully"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "batch_jobs_failed_total", Help: "Batch jobs that ended failed"})
	JobsRetried     = prometheus.NewCounter(prometheus.CounterOpts{Name: "batch_jobs_retried_total", Help: "Batch jobs requeued after a failed run"})
	JobsStopped     = prometheus.NewCounter(prometheus.CounterOpts{Name: "batch_jobs_stopped_total", Help: "Batch jobs killed by a stop request"})
	JobsTimedOut    = prometheus.NewCounter(prometheus.CounterOpts{Name: "batch_jobs_timed_out_total", Help: "Batch jobs killed by the run timeout"})
	PendingGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "batch_jobs_pending", Help: "Pending batch job backlog"})
	RunningGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "batch_jobs_running", Help: "Batch jobs currently running"})
	RunDuration     = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_job_run_seconds",
		Help:    "Wall time of one batch job run",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			JobsCompleted,
			JobsFailed,
			JobsRetried,
			JobsStopped,
			JobsTimedOut,
			PendingGauge,
			RunningGauge,
			RunDuration,
		)
	})
	return promhttp.Handler()
}
