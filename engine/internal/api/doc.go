// Package api serves the engine's REST surface under /api/v1. Handlers are
// read-only views over the most recent batch pass and the alert engine's
// live state; they never trigger computation.
package api
