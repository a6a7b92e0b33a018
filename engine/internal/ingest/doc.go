// Package ingest pulls raw samples into the engine. Collector adapters on
// nodes and filesystem heads expose Prometheus text exposition; the engine
// polls those endpoints, maps metric name to sample source and a configured
// label to the monitored entity, and appends the result to the store.
// Unusable series (missing entity label, histogram types) are skipped and
// counted, never fatal to a poll.
package ingest
