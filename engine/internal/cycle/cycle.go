package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelhpc/kestrel/engine/internal/alerts"
	"github.com/kestrelhpc/kestrel/engine/internal/derive"
	"github.com/kestrelhpc/kestrel/engine/internal/features"
	"github.com/kestrelhpc/kestrel/engine/internal/health"
	"github.com/kestrelhpc/kestrel/engine/internal/layout"
	"github.com/kestrelhpc/kestrel/engine/internal/observability"
	"github.com/kestrelhpc/kestrel/engine/internal/quality"
	"github.com/kestrelhpc/kestrel/engine/internal/simgraph"
	"github.com/kestrelhpc/kestrel/engine/internal/store"
	"github.com/kestrelhpc/kestrel/pkg/types"
)

// Config assembles the tuned components one pass runs with.
type Config struct {
	Analyzer derive.Analyzer
	Builder  features.Builder
	Weights  health.Weights

	// Threshold is the similarity τ for the graph build.
	Threshold float64

	Layout layout.Config

	// Workers bounds the alert-pass fan-out; zero means GOMAXPROCS.
	Workers int

	// Scorers are the optional external risk models consulted per pass.
	Scorers []types.Scorer
}

// ProcessError records one skipped or failed item inside a pass. Passes
// never abort on item-level problems; they collect them here.
type ProcessError struct {
	Stage string `json:"stage"`
	Item  string `json:"item"`
	Err   string `json:"err"`
}

// AlertResult is the outcome of one alert pass.
type AlertResult struct {
	Evaluated int                                 `json:"evaluated"`
	Events    []alerts.Event                      `json:"events,omitempty"`
	Trends    map[store.SeriesKey]derive.Estimate `json:"-"`
	Errors    []ProcessError                      `json:"errors,omitempty"`
}

// AnalyticsResult is the outcome of one analytics pass over the job
// population: vectors, health scores, the similarity graph with its layout
// and quality assessment, and any external risk scores.
type AnalyticsResult struct {
	Vectors  []types.JobFeatureVector `json:"-"`
	Skipped  []features.Skipped       `json:"skipped,omitempty"`
	Scores   []health.Score           `json:"scores,omitempty"`
	Edges    []types.SimilarityEdge   `json:"edges,omitempty"`
	ZeroNorm []string                 `json:"zero_norm,omitempty"`
	Layout   layout.Result            `json:"layout"`
	Quality  quality.Report           `json:"quality"`
	Risks    []types.RiskScore        `json:"risks,omitempty"`
	Errors   []ProcessError           `json:"errors,omitempty"`
}

// PassResult bundles one complete batch pass.
type PassResult struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Alerts    AlertResult     `json:"alerts"`
	Analytics AnalyticsResult `json:"analytics"`
}

// Runner drives periodic batch passes over the store's current contents.
type Runner struct {
	store  *store.Store
	engine *alerts.Engine
	cfg    Config

	mu   sync.RWMutex
	last *PassResult
}

// NewRunner wires a Runner over the given store and alert engine.
func NewRunner(st *store.Store, eng *alerts.Engine, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{store: st, engine: eng, cfg: cfg}
}

// Last returns the most recent pass result, or nil before the first pass.
func (r *Runner) Last() *PassResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Run executes one pass immediately, then one per interval tick until ctx is
// cancelled. After each pass onPass, if non-nil, receives the result (the
// WebSocket hub pushes from there).
func (r *Runner) Run(ctx context.Context, interval time.Duration, onPass func(*PassResult)) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		res := r.RunOnce(ctx)
		if onPass != nil {
			onPass(res)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce executes one full batch pass: the alert pass over every live
// sample series, then the analytics pass over the job population.
func (r *Runner) RunOnce(ctx context.Context) *PassResult {
	res := &PassResult{StartedAt: time.Now().UTC()}
	res.Alerts = r.alertPass(ctx)
	res.Analytics = r.analyticsPass(ctx)
	res.Duration = time.Since(res.StartedAt)

	observability.CyclesTotal.Inc()
	observability.CycleDuration.Observe(res.Duration.Seconds())
	slog.Info("cycle: pass complete",
		"duration", res.Duration,
		"series", res.Alerts.Evaluated,
		"events", len(res.Alerts.Events),
		"jobs", len(res.Analytics.Scores),
		"edges", len(res.Analytics.Edges))

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
	return res
}

// alertPass analyzes every live series and feeds the estimates through the
// alert engine. Series evaluation fans out across workers; the engine's
// per-key sharding keeps concurrent transitions safe.
func (r *Runner) alertPass(ctx context.Context) AlertResult {
	keys := r.store.Keys()
	res := AlertResult{
		Evaluated: len(keys),
		Trends:    make(map[store.SeriesKey]derive.Estimate, len(keys)),
	}

	now := time.Now().UTC()
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			samples, ok := r.store.Series(key.Source, key.Entity)
			if !ok || len(samples) == 0 {
				mu.Lock()
				res.Errors = append(res.Errors, ProcessError{
					Stage: "alerts", Item: key.Source + "/" + key.Entity,
					Err: "series vanished between listing and read",
				})
				mu.Unlock()
				observability.ProcessingErrors.WithLabelValues("alerts").Inc()
				return nil
			}

			points := make([]derive.Point, len(samples))
			for i, s := range samples {
				points[i] = derive.Point{T: s.Timestamp, V: s.Value}
			}
			est := r.cfg.Analyzer.Analyze(points)
			events := r.engine.Evaluate(key.Source, key.Entity, est, now)

			mu.Lock()
			res.Trends[key] = est
			res.Events = append(res.Events, events...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers record, never return, errors

	observability.SeriesEvaluated.Set(float64(res.Evaluated))
	for _, ev := range res.Events {
		observability.AlertEventsTotal.WithLabelValues(string(ev.Status)).Inc()
	}
	return res
}

// analyticsPass builds the population's feature vectors and runs them through
// health scoring, the similarity graph, the layout and the quality check,
// then fans risk scoring out over the configured models.
func (r *Runner) analyticsPass(ctx context.Context) AnalyticsResult {
	jobs := r.store.Jobs()
	var res AnalyticsResult

	built, err := r.cfg.Builder.Build(jobs)
	res.Skipped = built.Skipped
	for _, sk := range res.Skipped {
		res.Errors = append(res.Errors, ProcessError{Stage: "features", Item: sk.JobID, Err: sk.Reason})
		observability.ProcessingErrors.WithLabelValues("features").Inc()
	}
	if err != nil {
		// No comparable jobs at all this pass. Not a fault — the cluster
		// may simply be idle.
		slog.Debug("cycle: analytics pass skipped", "reason", err)
		res.Quality = quality.Evaluate(nil, nil, nil)
		return res
	}
	res.Vectors = built.Vectors

	labels := make(map[string]string, len(jobs))
	for _, j := range jobs {
		score := health.ScoreJob(j, r.cfg.Weights)
		res.Scores = append(res.Scores, score)
		labels[j.JobID] = score.Bucket
	}

	graph, err := simgraph.Build(res.Vectors, r.cfg.Threshold)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{Stage: "simgraph", Err: err.Error()})
		observability.ProcessingErrors.WithLabelValues("simgraph").Inc()
		res.Quality = quality.Evaluate(nil, nil, labels)
		return res
	}
	res.Edges = graph.Edges
	res.ZeroNorm = graph.ZeroNorm

	jobIDs := make([]string, len(res.Vectors))
	for i, v := range res.Vectors {
		jobIDs[i] = v.JobID
	}
	res.Layout = layout.Run(ctx, jobIDs, res.Edges, r.cfg.Layout)
	res.Quality = quality.Evaluate(res.Layout.Positions, res.Edges, labels)
	res.Risks = r.scoreRisks(ctx, res.Vectors, &res)

	observability.JobsScored.Set(float64(len(res.Scores)))
	observability.JobsSkipped.Set(float64(len(res.Skipped)))
	observability.GraphEdges.Set(float64(len(res.Edges)))
	if res.Layout.Converged {
		observability.LayoutConverged.Set(1)
	} else {
		observability.LayoutConverged.Set(0)
	}
	return res
}

// scoreRisks consults every configured model for every vector. Model
// failures are recorded per (model, job) and never fail the pass.
func (r *Runner) scoreRisks(ctx context.Context, vectors []types.JobFeatureVector, res *AnalyticsResult) []types.RiskScore {
	if len(r.cfg.Scorers) == 0 {
		return nil
	}

	var mu sync.Mutex
	var risks []types.RiskScore
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, sc := range r.cfg.Scorers {
		sc := sc
		for _, v := range vectors {
			v := v
			g.Go(func() error {
				risk, err := sc.Score(ctx, v)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Errors = append(res.Errors, ProcessError{
						Stage: "risk",
						Item:  fmt.Sprintf("%s/%s", sc.Name(), v.JobID),
						Err:   err.Error(),
					})
					observability.ProcessingErrors.WithLabelValues("risk").Inc()
					return nil
				}
				risks = append(risks, risk)
				return nil
			})
		}
	}
	g.Wait() //nolint:errcheck
	return risks
}
