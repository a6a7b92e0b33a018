package features

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

func job(id string, runtime, cpuAvg float64) types.JobMetrics {
	return types.JobMetrics{
		JobID:      id,
		Accounting: &types.AccountingMetrics{RuntimeSec: runtime, ReqCPUs: 4, ReqMemGB: 16},
		CPU:        &types.CPUMetrics{AvgUtilPct: cpuAvg, PeakUtilPct: cpuAvg + 5},
	}
}

func TestBuild_FixedLengthAndRange(t *testing.T) {
	jobs := []types.JobMetrics{
		job("j1", 100, 20),
		job("j2", 500, 80),
		{
			JobID:      "j3",
			Accounting: &types.AccountingMetrics{RuntimeSec: 300, ReqCPUs: 8, ReqMemGB: 64, ReqGPUs: 2},
			CPU:        &types.CPUMetrics{AvgUtilPct: 50, PeakUtilPct: 90, Imbalance: 0.4},
			IO:         &types.IOMetrics{WriteGB: 12, WriteRateMBps: 3, NFSRatio: 0.8},
			GPU:        &types.GPUMetrics{AvgUtilPct: 65},
		},
	}

	res, err := Builder{}.Build(jobs)
	require.NoError(t, err)
	require.Len(t, res.Vectors, 3)
	assert.Empty(t, res.Skipped)

	for _, v := range res.Vectors {
		require.Len(t, v.Values, types.NumFeatures, "vector length is fixed regardless of active collectors")
		for i, f := range v.Values {
			assert.GreaterOrEqual(t, f, 0.0, "field %s", types.FeatureFieldNames[i])
			assert.LessOrEqual(t, f, 1.0, "field %s", types.FeatureFieldNames[i])
		}
	}
}

func TestBuild_MinMaxScaling(t *testing.T) {
	jobs := []types.JobMetrics{job("lo", 100, 0), job("mid", 300, 50), job("hi", 500, 100)}

	res, err := Builder{Method: NormMinMax}.Build(jobs)
	require.NoError(t, err)

	// runtime_sec is field 0: 100→0, 300→0.5, 500→1.
	assert.InDelta(t, 0.0, res.Vectors[0].Values[0], 1e-12)
	assert.InDelta(t, 0.5, res.Vectors[1].Values[0], 1e-12)
	assert.InDelta(t, 1.0, res.Vectors[2].Values[0], 1e-12)
}

func TestBuild_ZScoreStaysInRange(t *testing.T) {
	jobs := []types.JobMetrics{job("a", 10, 5), job("b", 20, 50), job("c", 1000, 95)}

	res, err := Builder{Method: NormZScore}.Build(jobs)
	require.NoError(t, err)

	for _, v := range res.Vectors {
		for _, f := range v.Values {
			assert.GreaterOrEqual(t, f, 0.0)
			assert.LessOrEqual(t, f, 1.0)
		}
	}
	// Rescaled z-scores preserve ordering: min→0, max→1.
	assert.InDelta(t, 0.0, res.Vectors[0].Values[0], 1e-12)
	assert.InDelta(t, 1.0, res.Vectors[2].Values[0], 1e-12)
}

func TestBuild_MissingSourcesNeutralFill(t *testing.T) {
	jobs := []types.JobMetrics{
		job("nogpu", 100, 20),
		{
			JobID:      "gpu",
			Accounting: &types.AccountingMetrics{RuntimeSec: 200, ReqCPUs: 4, ReqMemGB: 16, ReqGPUs: 1},
			CPU:        &types.CPUMetrics{AvgUtilPct: 30, PeakUtilPct: 60},
			GPU:        &types.GPUMetrics{AvgUtilPct: 90},
		},
	}

	res, err := Builder{}.Build(jobs)
	require.NoError(t, err)
	require.Len(t, res.Vectors, 2)

	// gpu_util_pct is the last field: the GPU-less job fills 0 raw, which is
	// the population minimum, normalizing to 0.
	last := types.NumFeatures - 1
	assert.Equal(t, "gpu_util_pct", types.FeatureFieldNames[last])
	assert.InDelta(t, 0.0, res.Vectors[0].Values[last], 1e-12)
	assert.InDelta(t, 1.0, res.Vectors[1].Values[last], 1e-12)
}

func TestBuild_InsufficientCoverageIsSkippedNotFatal(t *testing.T) {
	jobs := []types.JobMetrics{
		job("ok", 100, 20),
		job("ok2", 400, 70),
		{JobID: "thin", Accounting: &types.AccountingMetrics{RuntimeSec: 50}},
	}

	res, err := Builder{MinSources: 2}.Build(jobs)
	require.NoError(t, err)
	assert.Len(t, res.Vectors, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "thin", res.Skipped[0].JobID)
	assert.True(t, strings.Contains(res.Skipped[0].Reason, "insufficient source coverage"))
}

func TestBuild_EmptyPopulation(t *testing.T) {
	_, err := Builder{}.Build([]types.JobMetrics{{JobID: "bare"}})
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestBuild_ConstantColumnsAreNeutral(t *testing.T) {
	// Both jobs request identical CPUs — the column is constant and must
	// normalize to 0.5 for everyone rather than dividing by a zero range.
	jobs := []types.JobMetrics{job("a", 100, 20), job("b", 200, 80)}

	res, err := Builder{}.Build(jobs)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Vectors[0].Values[1], 1e-12) // req_cpus
	assert.InDelta(t, 0.5, res.Vectors[1].Values[1], 1e-12)
}

func TestBuild_UnknownMethod(t *testing.T) {
	_, err := Builder{Method: "sigmoid"}.Build([]types.JobMetrics{job("a", 1, 1)})
	assert.Error(t, err)
}
