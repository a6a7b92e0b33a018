package health

import (
	"fmt"
	"math"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// Bucket labels derived from the overall score. The clustering quality
// evaluator uses these as node labels.
const (
	BucketHealthy = "healthy"
	BucketAtRisk  = "at-risk"
	BucketFailing = "failing"
)

// Thresholds that map an overall score to a bucket.
const (
	ThresholdHealthy = 0.70
	ThresholdAtRisk  = 0.40
)

// Weights for the composite score. They must sum to 1.
//
// When a job requested no GPUs the GPU dimension is inapplicable and the
// remaining weights are renormalized, so the composite stays in [0,1].
type Weights struct {
	CPU    float64 `yaml:"cpu" json:"cpu"`
	Memory float64 `yaml:"memory" json:"memory"`
	Time   float64 `yaml:"time" json:"time"`
	IO     float64 `yaml:"io" json:"io"`
	GPU    float64 `yaml:"gpu" json:"gpu"`
}

// DefaultWeights returns the standard dimension weighting.
func DefaultWeights() Weights {
	return Weights{CPU: 0.30, Memory: 0.25, Time: 0.20, IO: 0.15, GPU: 0.10}
}

// Validate rejects negative weights and weights that do not sum to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"cpu": w.CPU, "memory": w.Memory, "time": w.Time, "io": w.IO, "gpu": w.GPU,
	} {
		if v < 0 {
			return fmt.Errorf("health: weight %q is negative (%v)", name, v)
		}
	}
	sum := w.CPU + w.Memory + w.Time + w.IO + w.GPU
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("health: weights sum to %v, want 1", sum)
	}
	return nil
}

// Dimensions holds the per-dimension efficiencies, each in [0,1].
type Dimensions struct {
	CPU    float64 `json:"cpu_efficiency"`
	Memory float64 `json:"memory_efficiency"`
	Time   float64 `json:"time_estimation"`
	IO     float64 `json:"io_awareness"`
	GPU    float64 `json:"gpu_utilization"`

	// GPUApplicable is false for jobs that requested no GPUs; the GPU
	// dimension is then excluded rather than scored 0.
	GPUApplicable bool `json:"gpu_applicable"`
}

// Score is the full health assessment of one job.
type Score struct {
	JobID string `json:"job_id"`
	Dimensions
	Overall float64 `json:"overall"`
	Bucket  string  `json:"bucket"`

	// Failed is set when accounting recorded a nonzero exit code or a
	// scheduler-reported failure. Failed jobs bucket as failing regardless
	// of their efficiency composite.
	Failed bool `json:"failed,omitempty"`
}

// Compose computes the weighted composite of the given dimensions.
//
// The result is a plain weighted sum with non-negative weights, which makes
// it monotonic in every dimension: increasing any one input while holding
// the others fixed can never decrease the composite.
func Compose(d Dimensions, w Weights) float64 {
	total := d.CPU*w.CPU + d.Memory*w.Memory + d.Time*w.Time + d.IO*w.IO
	weight := w.CPU + w.Memory + w.Time + w.IO
	if d.GPUApplicable {
		total += d.GPU * w.GPU
		weight += w.GPU
	}
	if weight == 0 {
		return 0
	}
	return clamp01(total / weight)
}

// ScoreJob derives the per-dimension efficiencies from a job's metrics and
// composes them into an overall score. The efficiency composite measures how
// well resources were used, not whether the job succeeded — a failed job is
// forced into the failing bucket even when it ran efficiently.
func ScoreJob(j types.JobMetrics, w Weights) Score {
	d := Dimensions{
		CPU:    cpuEfficiency(j),
		Memory: memoryEfficiency(j),
		Time:   timeEstimation(j),
		IO:     ioAwareness(j),
	}
	if j.Accounting != nil && j.Accounting.ReqGPUs > 0 {
		d.GPUApplicable = true
		if j.GPU != nil {
			d.GPU = clamp01(j.GPU.AvgUtilPct / 100)
		}
	}

	overall := Compose(d, w)
	s := Score{
		JobID:      j.JobID,
		Dimensions: d,
		Overall:    overall,
		Bucket:     BucketFor(overall),
	}
	if a := j.Accounting; a != nil && (a.Failed || a.ExitCode != 0) {
		s.Failed = true
		s.Bucket = BucketFailing
	}
	return s
}

// BucketFor maps an overall score to its label.
func BucketFor(overall float64) string {
	switch {
	case overall >= ThresholdHealthy:
		return BucketHealthy
	case overall >= ThresholdAtRisk:
		return BucketAtRisk
	default:
		return BucketFailing
	}
}

// cpuEfficiency: how much of the requested CPU allocation was actually used.
// Without CPU sampling the dimension is neutral — no evidence either way.
func cpuEfficiency(j types.JobMetrics) float64 {
	if j.CPU == nil {
		return 0.5
	}
	return clamp01(j.CPU.AvgUtilPct / 100)
}

// memoryEfficiency: peak usage against the request. Requesting far more
// memory than used blocks other jobs from the node.
func memoryEfficiency(j types.JobMetrics) float64 {
	if j.Memory == nil || j.Accounting == nil || j.Accounting.ReqMemGB <= 0 {
		return 0.5
	}
	return clamp01(j.Memory.PeakUsedGB / j.Accounting.ReqMemGB)
}

// timeEstimation: how accurately walltime was requested. Using 50–90% of the
// limit is ideal; far below wastes scheduler headroom, at 100% the job
// risked being killed.
func timeEstimation(j types.JobMetrics) float64 {
	a := j.Accounting
	if a == nil || a.TimeLimitSec <= 0 || a.RuntimeSec < 0 {
		return 0.5
	}
	r := a.RuntimeSec / a.TimeLimitSec
	switch {
	case r >= 0.5 && r <= 0.9:
		return 1
	case r < 0.5:
		return clamp01(r / 0.5)
	default:
		// Linearly penalize the last 10% — hitting the limit scores 0.5.
		return clamp01(1 - (r-0.9)*5)
	}
}

// ioAwareness: penalizes routing heavy write traffic through NFS and time
// spent blocked on I/O. Jobs that barely write get full credit.
func ioAwareness(j types.JobMetrics) float64 {
	if j.IO == nil {
		return 0.5
	}
	if j.IO.WriteGB < 1 {
		return 1
	}
	score := 1 - clamp01(j.IO.NFSRatio)*0.8
	if j.Device != nil {
		score -= clamp01(j.Device.AvgIOWaitPct/100) * 0.2
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
