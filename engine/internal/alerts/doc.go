// Package alerts evaluates configured threshold/derivative rules against
// metric estimates and owns the alert lifecycle state machine:
//
//	resolved → open → cooldown → resolved
//
// Each (rule, entity) pair carries independent state under per-key
// exclusivity (a sharded lock map), so evaluation workers can process
// entities concurrently without lost updates. Repeat violations inside a
// rule's cooldown are deduplicated; a severity increase always re-notifies,
// even inside cooldown. The engine emits events — it never delivers them;
// notification transport belongs to the caller.
package alerts
