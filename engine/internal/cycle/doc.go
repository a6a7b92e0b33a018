// Package cycle orchestrates the engine's periodic batch passes. Each pass
// snapshots the store, runs the alert pass over every live sample series and
// the analytics pass over the job population, and publishes one bundled
// result for the API and the WebSocket hub. Item-level problems are recorded
// in the result, never fatal to a pass.
package cycle
