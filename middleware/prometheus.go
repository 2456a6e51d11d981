package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromRecorder is a [MetricsRecorder] backed by Prometheus collectors.
type PromRecorder struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewPromRecorder creates and registers Prometheus collectors for job
// execution metrics under the given namespace. Pass
// prometheus.DefaultRegisterer to use the default registry.
func NewPromRecorder(namespace string, reg prometheus.Registerer) *PromRecorder {
	factory := promauto.With(reg)
	return &PromRecorder{
		started: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_started_total",
				Help:      "Total number of jobs started",
			},
			[]string{"owner"},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs completed successfully",
			},
			[]string{"owner"},
		),
		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_failed_total",
				Help:      "Total number of jobs that failed",
			},
			[]string{"owner"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Job execution duration",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~2.5m
			},
			[]string{"owner"},
		),
	}
}

// JobStarted implements [MetricsRecorder].
func (r *PromRecorder) JobStarted(owner string) {
	r.started.WithLabelValues(owner).Inc()
}

// JobCompleted implements [MetricsRecorder].
func (r *PromRecorder) JobCompleted(owner string, duration time.Duration) {
	r.completed.WithLabelValues(owner).Inc()
	r.duration.WithLabelValues(owner).Observe(duration.Seconds())
}

// JobFailed implements [MetricsRecorder].
func (r *PromRecorder) JobFailed(owner string, duration time.Duration) {
	r.failed.WithLabelValues(owner).Inc()
	r.duration.WithLabelValues(owner).Observe(duration.Seconds())
}
