package alerts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity orders alert severities from least to most urgent.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalJSON renders the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseSeverity converts a config string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q (want info, warning or critical)", s)
}

// Status is the lifecycle state of one (rule, entity) pair.
type Status string

const (
	// StatusOpen: the violation is active and was notified.
	StatusOpen Status = "open"
	// StatusCooldown: still violating, but repeat notification is
	// suppressed until the rule's cooldown elapses.
	StatusCooldown Status = "cooldown"
	// StatusResolved: the violation cleared.
	StatusResolved Status = "resolved"
)

// Rule is one configured alert condition. Rules are loaded once per process
// lifetime and immutable during an evaluation cycle; hot reload swaps the
// whole set atomically.
type Rule struct {
	ID     string `json:"id"`
	Metric string `json:"metric"`

	// Value thresholds, in the metric's own unit. A value at or above
	// WarningThreshold violates at warning severity, at or above
	// CriticalThreshold at critical. Zeroing both (with a sensitivity set)
	// makes the rule derivative-only: value never fires it.
	WarningThreshold  float64 `json:"warning_threshold"`
	CriticalThreshold float64 `json:"critical_threshold"`

	// DerivativeSensitivity is the minimum second derivative (units/sec²)
	// at which an accelerating regime counts as a warning-severity
	// violation on its own, before any value threshold is crossed.
	// Zero disables derivative-based firing.
	DerivativeSensitivity float64 `json:"derivative_sensitivity"`

	// Cooldown suppresses repeat notification of an unchanged violation.
	Cooldown time.Duration `json:"cooldown"`

	// MinSeverity drops violations below this severity entirely.
	MinSeverity Severity `json:"min_severity"`
}

// Validate rejects rules that indicate systemic misconfiguration.
// A bad rule is fatal at cycle start, never discovered mid-pass.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("alert rule: missing id")
	}
	if r.Metric == "" {
		return fmt.Errorf("alert rule %q: missing metric", r.ID)
	}
	if !r.DerivativeOnly() && r.WarningThreshold >= r.CriticalThreshold {
		return fmt.Errorf("alert rule %q: warning threshold %v must be below critical %v",
			r.ID, r.WarningThreshold, r.CriticalThreshold)
	}
	if r.DerivativeSensitivity < 0 {
		return fmt.Errorf("alert rule %q: negative derivative sensitivity", r.ID)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("alert rule %q: negative cooldown", r.ID)
	}
	return nil
}

// DerivativeOnly reports whether the rule fires on trend alone: both value
// thresholds zeroed and a sensitivity set.
func (r Rule) DerivativeOnly() bool {
	return r.WarningThreshold == 0 && r.CriticalThreshold == 0 && r.DerivativeSensitivity > 0
}
