// Package http serves the loader's operational endpoints.
//
// The router exposes liveness, readiness
// and version information, plus the Prometheus scrape handler produced by
// the telemetry setup.
//
//	GET /healthz   process status and the most recent load
//	GET /readyz    503 until a load has finished without error
//	GET /version   build information
//	GET /metrics   Prometheus exposition (when metrics are enabled)
//
// Handlers stay thin. Load outcomes reach them through a StatusTracker
// that the command records into after every run.
package http
