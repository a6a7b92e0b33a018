// Package derive turns a time-ordered metric series into smoothed value,
// first-derivative and second-derivative estimates with a qualitative regime
// classification (accelerating / decelerating / stable). Derivatives are
// computed against elapsed wall-clock time, never sample index, so irregular
// sampling only degrades precision. Too few points is not an error: the
// Estimate reports how many points backed it and callers treat short windows
// as lower-confidence.
package derive
