// Package types defines the boundary contracts shared between the analytics
// engine and its external collaborators: collector adapters hand in
// MetricSamples and JobMetrics, prediction backends implement Scorer, and the
// rendering layer consumes NodePositions and SimilarityEdges. These are the
// canonical in-memory representations — this subsystem has no wire format.
package types
