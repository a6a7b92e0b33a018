// Package layout embeds the job similarity graph in 3D space with a
// Fruchterman–Reingold force simulation: every node pair repels, every edge
// attracts in proportion to its similarity, and per-iteration movement is
// clamped by a monotonically cooling temperature. The run terminates on an
// iteration budget, an optional wall-clock budget, or displacement
// convergence — exceeding a budget yields a best-effort result flagged as
// non-converged, never an error.
//
// Initial placement and coincident-point jitter are seeded from node
// identity, so a run is reproducible for the same input. Absolute
// coordinates carry no meaning; only the relative clustering structure does.
package layout
