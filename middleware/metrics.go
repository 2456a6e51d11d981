package middleware

import (
	"time"

	fbq "github.com/fbqueue/fbq-go-sdk"
)

// MetricsRecorder is the interface for recording job execution metrics.
// Implement this interface to connect any metrics backend; [NewPromRecorder]
// provides a Prometheus-backed implementation.
type MetricsRecorder interface {
	// JobStarted is called when a job begins execution.
	JobStarted(owner string)

	// JobCompleted is called when a job finishes successfully.
	JobCompleted(owner string, duration time.Duration)

	// JobFailed is called when a job finishes with an error.
	JobFailed(owner string, duration time.Duration)
}

// Metrics returns middleware that records job execution metrics via the
// provided [MetricsRecorder]. It tracks job starts, completions, failures,
// and execution duration.
func Metrics(recorder MetricsRecorder) fbq.MiddlewareFunc {
	return func(ctx fbq.JobContext, next fbq.HandlerFunc) error {
		recorder.JobStarted(ctx.Owner)

		start := time.Now()
		err := next(ctx)
		duration := time.Since(start)

		if err != nil {
			recorder.JobFailed(ctx.Owner, duration)
		} else {
			recorder.JobCompleted(ctx.Owner, duration)
		}

		return err
	}
}
