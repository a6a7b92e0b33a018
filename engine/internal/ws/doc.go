// Package ws implements the engine's WebSocket hub.
//
// Hub manages a set of connected clients. It is push-driven: the cycle
// runner calls Hub.Broadcast after each batch pass, and a newly connected
// client immediately receives the most recent frame of every event.
//
// Message format sent to clients:
//
//	{
//	  "event": "alerts" | "graph",
//	  "data":  { /* event-specific payload */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The WebSocket endpoint is mounted at /ws/stream by the engine.
package ws
