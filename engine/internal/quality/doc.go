// Package quality scores how well the similarity graph and its layout
// separate healthy jobs from unhealthy ones: assortativity (do edges connect
// same-bucket jobs?), neighborhood purity (what fraction of each node's
// neighbors share its bucket?), and spatial separation (do same-bucket jobs
// sit closer together than to other buckets?). These are read-only
// diagnostics; with no edges to evaluate they report an explicit
// insufficient-data result instead of a numeric fault.
package quality
