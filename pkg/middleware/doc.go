// Package middleware provides observability middleware for the navigation
// pipeline.
//
// Navigation middleware wraps every pass through a session's pipeline, from
// path canonicalization to the emitted patches. This package ships two
// implementations:
//
//   - Prometheus records navigation counters, durations, patch volume, and
//     per-slot visibility gauges.
//   - OpenTelemetry wraps each navigation in a span with the matched slot,
//     canonical path, and outcome.
//
// Install either on the server before accepting connections:
//
//	srv := server.New(cfg, logger)
//	srv.Use(
//	    middleware.Prometheus(),
//	    middleware.OpenTelemetry(),
//	)
//
// Then expose the metrics endpoint next to the shell:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Middleware runs on the session event loop. Implementations must not
// block; anything slow belongs in an event handler, not here.
package middleware
