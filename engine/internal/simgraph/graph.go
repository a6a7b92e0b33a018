package simgraph

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// DefaultThreshold is the similarity threshold τ used when none is configured.
const DefaultThreshold = 0.7

// normTolerance allows for floating error on the [0,1] normalization check.
const normTolerance = 1e-9

// ErrNotNormalized rejects vectors whose fields fall outside [0,1].
// Cosine similarity over raw-scale vectors is meaningless — the comparison
// population must be normalized together before building the graph.
var ErrNotNormalized = errors.New("feature vector is not normalized to [0,1]")

// Result is the thresholded similarity graph for one population.
type Result struct {
	Edges []types.SimilarityEdge

	// ZeroNorm lists jobs whose vector had zero norm. Their similarity to
	// every other job is defined as 0 (they can never edge), a degraded
	// outcome rather than a division fault.
	ZeroNorm []string
}

// Cosine is the cosine similarity of two equal-length vectors, in [-1,1].
// Either vector having zero norm yields 0.
func Cosine(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Build computes the similarity graph over the population at threshold tau.
//
// Every unordered pair is evaluated once; an edge exists iff similarity ≥ tau.
// Edge endpoints are ordered JobA < JobB and the edge list is deterministic
// for a given input order.
func Build(vectors []types.JobFeatureVector, tau float64) (Result, error) {
	if tau < -1 || tau > 1 {
		return Result{}, fmt.Errorf("simgraph: threshold %v outside [-1,1]", tau)
	}
	for _, v := range vectors {
		if len(v.Values) != types.NumFeatures {
			return Result{}, fmt.Errorf("simgraph: job %q has %d fields, want %d", v.JobID, len(v.Values), types.NumFeatures)
		}
		for i, f := range v.Values {
			if f < -normTolerance || f > 1+normTolerance {
				return Result{}, fmt.Errorf("simgraph: job %q field %s = %v: %w",
					v.JobID, types.FeatureFieldNames[i], f, ErrNotNormalized)
			}
		}
	}

	var res Result
	zero := make(map[int]bool, len(vectors))
	for i, v := range vectors {
		if floats.Norm(v.Values, 2) == 0 {
			zero[i] = true
			res.ZeroNorm = append(res.ZeroNorm, v.JobID)
		}
	}

	for i := 0; i < len(vectors); i++ {
		if zero[i] {
			continue
		}
		for j := i + 1; j < len(vectors); j++ {
			if zero[j] {
				continue
			}
			sim := Cosine(vectors[i].Values, vectors[j].Values)
			if sim < tau {
				continue
			}
			a, b := vectors[i].JobID, vectors[j].JobID
			if b < a {
				a, b = b, a
			}
			res.Edges = append(res.Edges, types.SimilarityEdge{JobA: a, JobB: b, Similarity: sim})
		}
	}
	return res, nil
}
