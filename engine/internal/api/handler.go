package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelhpc/kestrel/engine/internal/alerts"
	"github.com/kestrelhpc/kestrel/engine/internal/cycle"
	"github.com/kestrelhpc/kestrel/engine/internal/health"
	"github.com/kestrelhpc/kestrel/engine/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints. It reads from the
// most recent pass result and the alert engine's live state — it never
// triggers computation itself.
type Handler struct {
	runner *cycle.Runner
	engine *alerts.Engine
	mux    *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(runner *cycle.Runner, engine *alerts.Engine) http.Handler {
	h := &Handler{runner: runner, engine: engine, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/healthz", h.healthz)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/graph", h.graph)
	h.mux.HandleFunc("/api/v1/scores", h.scores)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Trends are routed before the mux: entities are often filesystem paths
	// ("/scratch"), and the mux's path cleaning would eat their slashes.
	if strings.HasPrefix(r.URL.Path, "/api/v1/trends/") {
		h.trend(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// healthz returns GET /api/v1/healthz — cluster-level summary of the most
// recent pass.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthzResponse{ActiveAlerts: len(h.engine.Active())}

	last := h.runner.Last()
	if last == nil {
		resp.State = "starting"
		jsonResp(w, http.StatusOK, resp)
		return
	}

	for _, s := range last.Analytics.Scores {
		switch s.Bucket {
		case health.BucketHealthy:
			resp.HealthyCount++
		case health.BucketAtRisk:
			resp.AtRiskCount++
		case health.BucketFailing:
			resp.FailingCount++
		}
	}
	resp.JobCount = len(last.Analytics.Scores)
	resp.SeriesTracked = last.Alerts.Evaluated
	resp.LastPassAt = last.StartedAt.Format(time.RFC3339)
	resp.LastPassMs = last.Duration.Milliseconds()
	resp.State = overallState(resp)
	jsonResp(w, http.StatusOK, resp)
}

// alerts returns GET /api/v1/alerts — active states plus recent event history.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := AlertsResponse{Active: h.engine.Active(), History: h.engine.History()}
	if resp.Active == nil {
		resp.Active = []alerts.State{}
	}
	if resp.History == nil {
		resp.History = []alerts.Event{}
	}
	jsonResp(w, http.StatusOK, resp)
}

// graph returns GET /api/v1/graph — the similarity graph, its 3D layout and
// the clustering quality report from the most recent pass.
func (h *Handler) graph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	last := h.runner.Last()
	if last == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no pass completed yet")
		return
	}
	an := last.Analytics
	jsonResp(w, http.StatusOK, GraphResponse{
		Positions: an.Layout.Positions,
		Edges:     an.Edges,
		ZeroNorm:  an.ZeroNorm,
		Converged: an.Layout.Converged,
		Quality:   an.Quality,
	})
}

// scores returns GET /api/v1/scores — per-job health scores and any external
// risk scores.
func (h *Handler) scores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	last := h.runner.Last()
	if last == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no pass completed yet")
		return
	}
	jsonResp(w, http.StatusOK, ScoresResponse{
		Scores:  last.Analytics.Scores,
		Risks:   last.Analytics.Risks,
		Skipped: last.Analytics.Skipped,
	})
}

// trend returns GET /api/v1/trends/{metric}/{entity} — the most recent
// derivative estimate for one series. Entity may itself contain slashes
// (filesystem paths), so everything after the first segment is the entity.
func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/trends/")
	metric, entity, ok := strings.Cut(rest, "/")
	if !ok || metric == "" || entity == "" {
		jsonErr(w, http.StatusBadRequest, "want /api/v1/trends/{metric}/{entity}")
		return
	}

	last := h.runner.Last()
	if last == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no pass completed yet")
		return
	}
	est, ok := last.Alerts.Trends[store.SeriesKey{Source: metric, Entity: entity}]
	if !ok {
		jsonErr(w, http.StatusNotFound, "series not found")
		return
	}

	jsonResp(w, http.StatusOK, TrendResponse{
		Metric:           metric,
		Entity:           entity,
		Value:            est.Value,
		FirstDerivative:  est.FirstDerivative,
		SecondDerivative: est.SecondDerivative,
		Regime:           string(est.Regime),
		Points:           est.Points,
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// overallState collapses the bucket counts to one cluster state string.
func overallState(r HealthzResponse) string {
	switch {
	case r.JobCount == 0:
		return "idle"
	case r.FailingCount > 0 || r.ActiveAlerts > 0:
		return "degraded"
	case r.AtRiskCount > r.HealthyCount:
		return "at-risk"
	default:
		return "healthy"
	}
}
