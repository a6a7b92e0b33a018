package types

import (
	"context"
	"time"
)

// MetricSample is one raw periodic observation produced by a collector
// adapter. Samples are immutable once recorded and ordered by Timestamp
// within a (Source, Entity) series. Unit and scale are implied by Source.
type MetricSample struct {
	// Source identifies the metric kind, e.g. "disk_used_bytes",
	// "node_load1", "queue_pending_jobs".
	Source string `json:"source"`

	// Entity is the monitored target the sample describes: a filesystem
	// path, a node hostname, a queue name.
	Entity string `json:"entity"`

	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// FeatureFieldNames is the stable, documented field order of a
// JobFeatureVector. External prediction models depend on this order;
// reordering or removing a field is a breaking change.
//
// Missing source categories (no GPU, no NFS traffic) neutral-fill their
// fields with 0 before normalization — vector length never varies.
var FeatureFieldNames = [...]string{
	"runtime_sec",      // accounting
	"req_cpus",         //
	"req_mem_gb",       //
	"req_gpus",         //
	"avg_cpu_pct",      // per-core CPU sampling
	"peak_cpu_pct",     //
	"cpu_imbalance",    // stddev/mean across cores
	"avg_mem_gb",       // memory sampling
	"peak_mem_gb",      //
	"mem_pressure_pct", //
	"swap_used_gb",     //
	"blocked_procs",    //
	"avg_iowait_pct",   // device sampling
	"device_util_pct",  //
	"write_gb",         // per-process I/O sampling
	"write_rate_mbps",  //
	"nfs_ratio",        // NFS share of total write volume
	"gpu_util_pct",     // GPU sampling
}

// NumFeatures is the fixed length of every JobFeatureVector.
const NumFeatures = len(FeatureFieldNames)

// JobFeatureVector is the fixed-length numeric description of one completed
// job, normalized to [0,1] per field over the comparison population.
// Immutable after construction.
type JobFeatureVector struct {
	JobID  string    `json:"job_id"`
	Values []float64 `json:"values"` // len == NumFeatures
}

// JobMetrics is a completed job's aggregated per-source metrics as handed in
// by the collection/query layer. Each source category is optional — a nil
// pointer means that collector was not active for the job — so "missing
// collector" never becomes a special case downstream of the feature builder.
type JobMetrics struct {
	JobID string `json:"job_id"`
	User  string `json:"user,omitempty"`

	Accounting *AccountingMetrics `json:"accounting,omitempty"`
	CPU        *CPUMetrics        `json:"cpu,omitempty"`
	Memory     *MemoryMetrics     `json:"memory,omitempty"`
	Device     *DeviceMetrics     `json:"device,omitempty"`
	IO         *IOMetrics         `json:"io,omitempty"`
	GPU        *GPUMetrics        `json:"gpu,omitempty"`
}

// AccountingMetrics comes from the scheduler's accounting records (sacct).
type AccountingMetrics struct {
	RuntimeSec      float64 `json:"runtime_sec"`
	TimeLimitSec    float64 `json:"time_limit_sec"`
	ReqCPUs         float64 `json:"req_cpus"`
	ReqMemGB        float64 `json:"req_mem_gb"`
	ReqGPUs         float64 `json:"req_gpus"`
	ExitCode        int     `json:"exit_code"`
	Failed          bool    `json:"failed"`
}

// CPUMetrics summarizes per-core CPU sampling over the job's lifetime.
type CPUMetrics struct {
	AvgUtilPct  float64 `json:"avg_util_pct"`
	PeakUtilPct float64 `json:"peak_util_pct"`
	// Imbalance is the coefficient of variation of per-core utilization:
	// 0 = perfectly balanced, higher = more cores idle while others spin.
	Imbalance float64 `json:"imbalance"`
}

// MemoryMetrics summarizes memory-pressure sampling.
type MemoryMetrics struct {
	AvgUsedGB    float64 `json:"avg_used_gb"`
	PeakUsedGB   float64 `json:"peak_used_gb"`
	PressurePct  float64 `json:"pressure_pct"`
	SwapUsedGB   float64 `json:"swap_used_gb"`
	BlockedProcs float64 `json:"blocked_procs"`
}

// DeviceMetrics summarizes iowait and block-device utilization.
type DeviceMetrics struct {
	AvgIOWaitPct float64 `json:"avg_iowait_pct"`
	UtilPct      float64 `json:"util_pct"`
}

// IOMetrics summarizes per-process write sampling.
type IOMetrics struct {
	WriteGB       float64 `json:"write_gb"`
	WriteRateMBps float64 `json:"write_rate_mbps"`
	// NFSRatio is the NFS share of total write volume, in [0,1].
	NFSRatio float64 `json:"nfs_ratio"`
}

// GPUMetrics summarizes GPU utilization sampling.
type GPUMetrics struct {
	AvgUtilPct   float64 `json:"avg_util_pct"`
	AvgMemUsedGB float64 `json:"avg_mem_used_gb"`
}

// SimilarityEdge is one undirected edge of the job similarity graph.
// JobA sorts before JobB; edges exist only at or above the configured
// similarity threshold.
type SimilarityEdge struct {
	JobA       string  `json:"job_a"`
	JobB       string  `json:"job_b"`
	Similarity float64 `json:"similarity"`
}

// NodePosition is one job's 3D coordinate produced by a layout run.
// Positions are recomputed per run; only relative clustering structure is
// meaningful, not absolute coordinates.
type NodePosition struct {
	JobID string  `json:"job_id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// RiskScore is the opaque output of an external prediction model for one job.
type RiskScore struct {
	JobID       string  `json:"job_id"`
	Probability float64 `json:"probability"` // failure probability in [0,1]
	Confidence  float64 `json:"confidence"`  // model self-reported, in [0,1]
	Model       string  `json:"model,omitempty"`
}

// Scorer is the capability interface behind which prediction backends
// (GNN/LSTM/autoencoder/ensemble) live. The engine depends only on this
// contract; models can be swapped or disabled without touching the core.
type Scorer interface {
	Name() string
	Score(ctx context.Context, v JobFeatureVector) (RiskScore, error)
}
