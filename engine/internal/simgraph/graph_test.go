package simgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// vec pads the given leading values with zeros to the fixed feature length.
func vec(id string, leading ...float64) types.JobFeatureVector {
	v := make([]float64, types.NumFeatures)
	copy(v, leading)
	return types.JobFeatureVector{JobID: id, Values: v}
}

func TestCosine_SymmetricAndBounded(t *testing.T) {
	a := []float64{0.9, 0.1, 0.4}
	b := []float64{0.2, 0.8, 0.5}

	assert.Equal(t, Cosine(a, b), Cosine(b, a))
	sim := Cosine(a, b)
	assert.GreaterOrEqual(t, sim, -1.0)
	assert.LessOrEqual(t, sim, 1.0)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-12)
}

func TestCosine_ZeroNormIsZeroNotFault(t *testing.T) {
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{0, 0}))
}

func TestBuild_NearIdenticalPairEdgesOrthogonalDoesNot(t *testing.T) {
	// A and B are near-identical, C is orthogonal to both.
	a := vec("A", 1, 1, 0, 0)
	b := vec("B", 1, 0.95, 0, 0)
	c := vec("C", 0, 0, 1, 1)

	res, err := Build([]types.JobFeatureVector{a, b, c}, DefaultThreshold)
	require.NoError(t, err)

	require.Len(t, res.Edges, 1)
	e := res.Edges[0]
	assert.Equal(t, "A", e.JobA)
	assert.Equal(t, "B", e.JobB)
	assert.Greater(t, e.Similarity, 0.99)
}

func TestBuild_IdenticalVectorsEdgeAtSimilarityOne(t *testing.T) {
	res, err := Build([]types.JobFeatureVector{vec("x", 0.5, 0.5), vec("y", 0.5, 0.5)}, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.InDelta(t, 1.0, res.Edges[0].Similarity, 1e-12)
}

func TestBuild_NoSelfEdgesAndOrderedEndpoints(t *testing.T) {
	res, err := Build([]types.JobFeatureVector{vec("zeta", 1, 0), vec("alpha", 1, 0.01)}, 0.5)
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, "alpha", res.Edges[0].JobA)
	assert.Equal(t, "zeta", res.Edges[0].JobB)
}

func TestBuild_ZeroNormVectorRecordedAndIsolated(t *testing.T) {
	res, err := Build([]types.JobFeatureVector{
		vec("dead"), // all zeros
		vec("a", 1, 1),
		vec("b", 1, 1),
	}, DefaultThreshold)
	require.NoError(t, err)

	assert.Equal(t, []string{"dead"}, res.ZeroNorm)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, "a", res.Edges[0].JobA)
}

func TestBuild_RejectsRawScaleVectors(t *testing.T) {
	raw := vec("raw", 3600, 8) // runtime seconds, cpus — not normalized
	_, err := Build([]types.JobFeatureVector{raw}, DefaultThreshold)
	assert.ErrorIs(t, err, ErrNotNormalized)
}

func TestBuild_RejectsWrongLengthAndBadThreshold(t *testing.T) {
	_, err := Build([]types.JobFeatureVector{{JobID: "short", Values: []float64{1}}}, 0.7)
	assert.Error(t, err)

	_, err = Build(nil, 1.5)
	assert.Error(t, err)
}

func TestBuild_ThresholdControlsDensity(t *testing.T) {
	pop := []types.JobFeatureVector{
		vec("a", 1, 0.2), vec("b", 1, 0.3), vec("c", 0.2, 1), vec("d", 0.3, 1),
	}

	loose, err := Build(pop, 0.0)
	require.NoError(t, err)
	tight, err := Build(pop, 0.99)
	require.NoError(t, err)

	assert.Equal(t, 6, len(loose.Edges), "τ=0 keeps every pair")
	assert.Less(t, len(tight.Edges), len(loose.Edges))
}
