// Package simgraph builds the undirected job similarity graph: pairwise
// cosine similarity over normalized feature vectors, thresholded into a
// sparse edge set.
//
// Pair evaluation is O(n²) in the population size. The similarity threshold
// τ is the primary lever for controlling graph density; callers that need
// sub-quadratic behavior must pre-partition the population (per time window,
// per cluster) before invoking the builder — that is an explicit limitation,
// not something solved here.
package simgraph
