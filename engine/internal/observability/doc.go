// Package observability holds the engine's own Prometheus metrics. Every
// batch pass and ingest poll updates them; the HTTP server exports them on
// /metrics so the engine can be monitored by the same infrastructure it
// watches.
package observability
