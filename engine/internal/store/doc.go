// Package store manages the engine's in-memory working set: metric sample
// series keyed by (source, entity) and the latest per-job metric snapshots.
// Both are TTL-evicted by a background loop so entities that stop reporting
// age out instead of accumulating forever.
package store
