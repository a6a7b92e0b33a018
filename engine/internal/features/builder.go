package features

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// ErrInsufficientSources marks a job with too few active source categories
// to be comparable. The job is skipped, never fatal to the batch.
var ErrInsufficientSources = errors.New("insufficient source coverage for feature vector")

// ErrEmptyPopulation is returned when no job in the population survives the
// coverage check — there is nothing to normalize against.
var ErrEmptyPopulation = errors.New("no jobs with sufficient source coverage")

// Normalization selects how raw feature columns are scaled to [0,1] across
// the population. Both schemes are exposed as configuration; the exact choice
// is a tuning decision, not a correctness one.
type Normalization string

const (
	// NormMinMax scales each column by its population min/max.
	NormMinMax Normalization = "minmax"
	// NormZScore standardizes each column, then rescales the z-scores to
	// [0,1] so the normalized-range invariant holds either way.
	NormZScore Normalization = "zscore"
)

// DefaultMinSources is the minimum number of present source categories for a
// job to be comparable.
const DefaultMinSources = 2

// Builder constructs normalized feature vectors for a comparison population.
type Builder struct {
	Method     Normalization
	MinSources int
}

// Skipped records one job excluded from the population and why.
type Skipped struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// BuildResult holds the normalized vectors plus every job that was skipped
// with a recorded reason, so degraded input is observable, not silent.
type BuildResult struct {
	Vectors []types.JobFeatureVector
	Skipped []Skipped
}

// Build constructs one normalized vector per comparable job.
//
// Jobs with fewer than MinSources present source categories are skipped and
// recorded. Normalization statistics (min/max or mean/stddev per column) are
// computed over the surviving population only.
func (b Builder) Build(jobs []types.JobMetrics) (BuildResult, error) {
	method := b.Method
	if method == "" {
		method = NormMinMax
	}
	if method != NormMinMax && method != NormZScore {
		return BuildResult{}, fmt.Errorf("features: unknown normalization %q", method)
	}
	minSources := b.MinSources
	if minSources <= 0 {
		minSources = DefaultMinSources
	}

	var res BuildResult
	raw := make([][]float64, 0, len(jobs))
	for _, j := range jobs {
		if n := sourceCount(j); n < minSources {
			res.Skipped = append(res.Skipped, Skipped{
				JobID:  j.JobID,
				Reason: fmt.Sprintf("%v: %d of %d required source categories", ErrInsufficientSources, n, minSources),
			})
			slog.Debug("features: skipping job", "job", j.JobID, "sources", n)
			continue
		}
		raw = append(raw, rawVector(j))
		res.Vectors = append(res.Vectors, types.JobFeatureVector{JobID: j.JobID})
	}
	if len(raw) == 0 {
		return res, ErrEmptyPopulation
	}

	cols := columnStats(raw)
	for i := range raw {
		res.Vectors[i].Values = normalize(raw[i], cols, method)
	}
	return res, nil
}

// sourceCount returns how many source categories are present for the job.
func sourceCount(j types.JobMetrics) int {
	n := 0
	if j.Accounting != nil {
		n++
	}
	if j.CPU != nil {
		n++
	}
	if j.Memory != nil {
		n++
	}
	if j.Device != nil {
		n++
	}
	if j.IO != nil {
		n++
	}
	if j.GPU != nil {
		n++
	}
	return n
}

// rawVector extracts the raw (pre-normalization) values in field order,
// neutral-filling absent sources with 0.
func rawVector(j types.JobMetrics) []float64 {
	v := make([]float64, types.NumFeatures)
	if a := j.Accounting; a != nil {
		v[0] = a.RuntimeSec
		v[1] = a.ReqCPUs
		v[2] = a.ReqMemGB
		v[3] = a.ReqGPUs
	}
	if c := j.CPU; c != nil {
		v[4] = c.AvgUtilPct
		v[5] = c.PeakUtilPct
		v[6] = c.Imbalance
	}
	if m := j.Memory; m != nil {
		v[7] = m.AvgUsedGB
		v[8] = m.PeakUsedGB
		v[9] = m.PressurePct
		v[10] = m.SwapUsedGB
		v[11] = m.BlockedProcs
	}
	if d := j.Device; d != nil {
		v[12] = d.AvgIOWaitPct
		v[13] = d.UtilPct
	}
	if io := j.IO; io != nil {
		v[14] = io.WriteGB
		v[15] = io.WriteRateMBps
		v[16] = io.NFSRatio
	}
	if g := j.GPU; g != nil {
		v[17] = g.AvgUtilPct
	}
	return v
}

type stats struct {
	min, max   float64
	mean, std  float64
	zmin, zmax float64
}

// columnStats computes per-column population statistics.
func columnStats(raw [][]float64) []stats {
	n := float64(len(raw))
	cols := make([]stats, types.NumFeatures)
	for c := range cols {
		st := stats{min: raw[0][c], max: raw[0][c]}
		var sum float64
		for _, row := range raw {
			v := row[c]
			if v < st.min {
				st.min = v
			}
			if v > st.max {
				st.max = v
			}
			sum += v
		}
		st.mean = sum / n
		var sq float64
		for _, row := range raw {
			d := row[c] - st.mean
			sq += d * d
		}
		if n > 1 && sq > 0 {
			st.std = math.Sqrt(sq / (n - 1))
			st.zmin = (st.min - st.mean) / st.std
			st.zmax = (st.max - st.mean) / st.std
		}
		cols[c] = st
	}
	return cols
}

// normalize scales one raw row to [0,1] per column.
//
// Constant columns carry no comparative information; they normalize to 0.5
// regardless of method so they neither attract nor repel any pair.
func normalize(row []float64, cols []stats, method Normalization) []float64 {
	out := make([]float64, len(row))
	for c, v := range row {
		st := cols[c]
		if st.max == st.min {
			out[c] = 0.5
			continue
		}
		switch method {
		case NormZScore:
			z := (v - st.mean) / st.std
			out[c] = (z - st.zmin) / (st.zmax - st.zmin)
		default: // NormMinMax
			out[c] = (v - st.min) / (st.max - st.min)
		}
	}
	return out
}
