// Package middleware provides ready-made worker middleware for the FBQ SDK:
// structured logging, panic recovery, and metrics recording with a
// Prometheus-backed recorder included.
//
// Middleware is attached to a worker with Use or UseNamed:
//
//	worker.UseNamed("recovery", middleware.Recovery(logger))
//	worker.UseNamed("logging", middleware.Logging(logger))
//	worker.UseNamed("metrics", middleware.Metrics(
//	    middleware.NewPromRecorder("fbq", prometheus.DefaultRegisterer),
//	))
package middleware
