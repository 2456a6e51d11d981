package middleware

import (
	"log/slog"
	"time"

	fbq "github.com/fbqueue/fbq-go-sdk"
)

// Logging returns middleware that logs job execution using the provided
// [slog.Logger]. Each job execution produces two log entries: one at start
// (DEBUG level) and one at completion (INFO on success, ERROR on failure).
//
// Log attributes include job.id, job.owner, job.archive, and duration_ms
// (on completion).
func Logging(logger *slog.Logger) fbq.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx fbq.JobContext, next fbq.HandlerFunc) error {
		attrs := []slog.Attr{
			slog.Int64("job.id", ctx.ID),
			slog.String("job.owner", ctx.Owner),
			slog.String("job.archive", ctx.ArchivePath),
		}

		logger.LogAttrs(ctx.Context(), slog.LevelDebug, "job started", attrs...)

		start := time.Now()
		err := next(ctx)
		duration := time.Since(start)

		attrs = append(attrs, slog.Float64("duration_ms", float64(duration.Microseconds())/1000.0))

		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(ctx.Context(), slog.LevelError, "job failed", attrs...)
		} else {
			logger.LogAttrs(ctx.Context(), slog.LevelInfo, "job completed", attrs...)
		}

		return err
	}
}
