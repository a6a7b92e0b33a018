package api

import (
	"github.com/kestrelhpc/kestrel/engine/internal/alerts"
	"github.com/kestrelhpc/kestrel/engine/internal/features"
	"github.com/kestrelhpc/kestrel/engine/internal/health"
	"github.com/kestrelhpc/kestrel/engine/internal/quality"
	"github.com/kestrelhpc/kestrel/pkg/types"
)

// HealthzResponse is the payload for GET /api/v1/healthz.
type HealthzResponse struct {
	State        string `json:"state"`
	JobCount     int    `json:"job_count"`
	HealthyCount int    `json:"healthy_count"`
	AtRiskCount  int    `json:"at_risk_count"`
	FailingCount int    `json:"failing_count"`
	ActiveAlerts int    `json:"active_alerts"`

	// LastPassAt is empty until the first pass completes.
	LastPassAt    string `json:"last_pass_at,omitempty"` // RFC3339
	LastPassMs    int64  `json:"last_pass_ms,omitempty"`
	SeriesTracked int    `json:"series_tracked"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Active  []alerts.State `json:"active"`
	History []alerts.Event `json:"history"`
}

// GraphResponse is the payload for GET /api/v1/graph: the similarity graph
// with its 3D layout and the clustering quality assessment.
type GraphResponse struct {
	Positions []types.NodePosition   `json:"positions"`
	Edges     []types.SimilarityEdge `json:"edges"`
	ZeroNorm  []string               `json:"zero_norm,omitempty"`
	Converged bool                   `json:"converged"`
	Quality   quality.Report         `json:"quality"`
}

// ScoresResponse is the payload for GET /api/v1/scores.
type ScoresResponse struct {
	Scores  []health.Score     `json:"scores"`
	Risks   []types.RiskScore  `json:"risks,omitempty"`
	Skipped []features.Skipped `json:"skipped,omitempty"`
}

// TrendResponse is the payload for GET /api/v1/trends/{metric}/{entity}.
type TrendResponse struct {
	Metric string `json:"metric"`
	Entity string `json:"entity"`

	Value            float64 `json:"value"`
	FirstDerivative  float64 `json:"first_derivative"`
	SecondDerivative float64 `json:"second_derivative"`
	Regime           string  `json:"regime"`
	Points           int     `json:"points"`

	Samples []types.MetricSample `json:"samples,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
