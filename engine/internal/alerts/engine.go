package alerts

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhpc/kestrel/engine/internal/derive"
)

const (
	// DefaultCooldown applies to rules configured without one.
	DefaultCooldown = 15 * time.Minute

	// maxHistoryLen caps the retained event history.
	maxHistoryLen = 500

	// numShards spreads (rule, entity) state across independent locks so
	// concurrent evaluation workers rarely contend.
	numShards = 16
)

// Event is one alert notification produced by the engine. Events with
// Status open are firings (or escalations/re-fires); Status resolved marks
// the violation clearing.
type Event struct {
	ID              string    `json:"id"`
	RuleID          string    `json:"rule_id"`
	EntityID        string    `json:"entity_id"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	Value           float64   `json:"value"`
	FirstDerivative float64   `json:"first_derivative,omitempty"`
	FiredAt         time.Time `json:"fired_at"`
	Status          Status    `json:"status"`
}

// State is the lifecycle state of one (rule, entity) pair.
type State struct {
	RuleID          string    `json:"rule_id"`
	EntityID        string    `json:"entity_id"`
	Status          Status    `json:"status"`
	Severity        Severity  `json:"severity"`
	FirstFiredAt    time.Time `json:"first_fired_at"`
	LastFiredAt     time.Time `json:"last_fired_at"`
	OccurrenceCount int       `json:"occurrence_count"`

	// lastNotified is when an event was last emitted for this state;
	// the cooldown clock measures from here, not from LastFiredAt.
	lastNotified time.Time
}

type shard struct {
	mu     sync.Mutex
	states map[string]*State
}

// Engine evaluates rules against derivative estimates and maintains alert
// state. Safe for concurrent use: rule lookups take a read lock, state
// transitions take only the owning shard's lock.
type Engine struct {
	rulesMu  sync.RWMutex
	byMetric map[string][]Rule

	shards [numShards]*shard

	histMu  sync.Mutex
	history []Event
}

// New creates an Engine from validated rules.
func New(rules []Rule) (*Engine, error) {
	e := &Engine{}
	for i := range e.shards {
		e.shards[i] = &shard{states: make(map[string]*State)}
	}
	if err := e.SetRules(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// SetRules atomically replaces the rule set (config hot reload). Existing
// alert state is kept: a rule that survives the reload continues its
// lifecycle where it left off.
func (e *Engine) SetRules(rules []Rule) error {
	byMetric := make(map[string][]Rule, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		if r.Cooldown == 0 {
			r.Cooldown = DefaultCooldown
		}
		byMetric[r.Metric] = append(byMetric[r.Metric], r)
	}
	e.rulesMu.Lock()
	e.byMetric = byMetric
	e.rulesMu.Unlock()
	return nil
}

// Evaluate runs every rule configured for metric against one entity's
// current estimate and returns the events this evaluation emitted (often
// none). Rules on the same entity are independent.
func (e *Engine) Evaluate(metric, entity string, est derive.Estimate, now time.Time) []Event {
	e.rulesMu.RLock()
	rules := e.byMetric[metric]
	e.rulesMu.RUnlock()

	var events []Event
	for _, rule := range rules {
		if ev, ok := e.evaluateRule(rule, entity, est, now); ok {
			events = append(events, ev)
		}
	}
	if len(events) > 0 {
		e.record(events)
	}
	return events
}

func (e *Engine) evaluateRule(rule Rule, entity string, est derive.Estimate, now time.Time) (Event, bool) {
	sev, violating := severityFor(rule, est)
	if violating && sev < rule.MinSeverity {
		violating = false
	}

	key := rule.ID + ":" + entity
	sh := e.shards[shardIndex(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.states[key]

	if !violating {
		if st == nil || st.Status == StatusResolved {
			return Event{}, false
		}
		st.Status = StatusResolved
		delete(sh.states, key)
		slog.Info("alert resolved", "rule", rule.ID, "entity", entity)
		return newEvent(rule, entity, st.Severity, est, now, StatusResolved), true
	}

	if st == nil || st.Status == StatusResolved {
		sh.states[key] = &State{
			RuleID:          rule.ID,
			EntityID:        entity,
			Status:          StatusOpen,
			Severity:        sev,
			FirstFiredAt:    now,
			LastFiredAt:     now,
			OccurrenceCount: 1,
			lastNotified:    now,
		}
		slog.Warn("alert fired",
			"rule", rule.ID, "entity", entity,
			"severity", sev.String(), "value", est.Value)
		return newEvent(rule, entity, sev, est, now, StatusOpen), true
	}

	st.OccurrenceCount++
	st.LastFiredAt = now

	switch {
	case sev > st.Severity:
		// Escalation always re-notifies, cooldown or not.
		st.Severity = sev
		st.Status = StatusOpen
		st.lastNotified = now
		slog.Warn("alert escalated",
			"rule", rule.ID, "entity", entity,
			"severity", sev.String(), "value", est.Value)
		return newEvent(rule, entity, sev, est, now, StatusOpen), true

	case now.Sub(st.lastNotified) >= rule.Cooldown:
		st.Status = StatusOpen
		st.lastNotified = now
		slog.Warn("alert re-fired after cooldown",
			"rule", rule.ID, "entity", entity, "severity", sev.String())
		return newEvent(rule, entity, sev, est, now, StatusOpen), true

	default:
		// Still violating at unchanged (or lower) severity inside the
		// cooldown window — dedup.
		st.Severity = sev
		st.Status = StatusCooldown
		return Event{}, false
	}
}

// severityFor derives the violated severity from value thresholds and the
// derivative regime. When both indicate, the higher severity wins.
func severityFor(r Rule, est derive.Estimate) (Severity, bool) {
	sev := SeverityInfo
	violating := false

	if !r.DerivativeOnly() {
		switch {
		case est.Value >= r.CriticalThreshold:
			sev, violating = SeverityCritical, true
		case est.Value >= r.WarningThreshold:
			sev, violating = SeverityWarning, true
		}
	}

	// An accelerating trend past the rule's sensitivity is an early
	// warning even before any value threshold is crossed.
	if r.DerivativeSensitivity > 0 && est.HasSecond() &&
		est.Regime == derive.RegimeAccelerating &&
		est.SecondDerivative >= r.DerivativeSensitivity {
		if !violating || sev < SeverityWarning {
			sev = SeverityWarning
		}
		violating = true
	}

	return sev, violating
}

// Active returns copies of all currently open or cooling-down states.
func (e *Engine) Active() []State {
	var out []State
	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, st := range sh.states {
			out = append(out, *st)
		}
		sh.mu.Unlock()
	}
	return out
}

// History returns copies of the most recent events, newest last.
func (e *Engine) History() []Event {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]Event, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) record(events []Event) {
	e.histMu.Lock()
	e.history = append(e.history, events...)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	e.histMu.Unlock()
}

func newEvent(rule Rule, entity string, sev Severity, est derive.Estimate, now time.Time, status Status) Event {
	verb := "fired on"
	if status == StatusResolved {
		verb = "resolved on"
	}
	return Event{
		ID:              uuid.NewString(),
		RuleID:          rule.ID,
		EntityID:        entity,
		Severity:        sev,
		Value:           est.Value,
		FirstDerivative: est.FirstDerivative,
		Message: fmt.Sprintf("[%s] %s %s %s — %s = %.2f",
			sev, rule.ID, verb, entity, rule.Metric, est.Value),
		FiredAt: now,
		Status:  status,
	}
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck
	return int(h.Sum32() % numShards)
}
