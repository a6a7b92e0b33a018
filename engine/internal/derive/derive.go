package derive

import (
	"math"
	"sort"
	"time"
)

// DefaultWindow is the number of most recent samples an Analyzer considers
// when no window is configured.
const DefaultWindow = 8

// Regime is the qualitative trend classification from the second derivative.
type Regime string

const (
	RegimeAccelerating Regime = "accelerating"
	RegimeDecelerating Regime = "decelerating"
	RegimeStable       Regime = "stable"
)

// Point is one (timestamp, value) observation of a single entity's metric.
type Point struct {
	T time.Time
	V float64
}

// Estimate is the derivative analysis of the most recent window of a series.
// FirstDerivative and SecondDerivative are per second of the metric's unit.
//
// Points reports how many distinct-timestamp samples backed the estimate:
// fewer than 2 means value-only (no derivatives), fewer than 3 means no
// second derivative. Estimates from short windows are degraded, not errors.
type Estimate struct {
	Timestamp        time.Time
	Value            float64
	FirstDerivative  float64
	SecondDerivative float64
	Regime           Regime
	Points           int
}

// HasFirst reports whether the estimate carries a first derivative.
func (e Estimate) HasFirst() bool { return e.Points >= 2 }

// HasSecond reports whether the estimate carries a second derivative.
func (e Estimate) HasSecond() bool { return e.Points >= 3 }

// Analyzer computes derivative estimates over the trailing window of a series.
// The zero value is usable: DefaultWindow samples, zero noise floor.
type Analyzer struct {
	// Window is the number of most recent samples considered.
	Window int

	// NoiseFloor is the minimum |second derivative| (units/sec²) that
	// counts as a real regime change. At or below it the regime is stable.
	NoiseFloor float64
}

// Analyze computes the current estimate for one entity's series.
//
// The input may be unsorted and may contain duplicate timestamps; Analyze
// sorts a copy and averages duplicates before fitting. An empty series
// yields a zero Estimate with Points == 0.
func (a Analyzer) Analyze(points []Point) Estimate {
	w := a.Window
	if w <= 0 {
		w = DefaultWindow
	}

	pts := dedupe(points)
	if len(pts) > w {
		pts = pts[len(pts)-w:]
	}

	est := Estimate{Points: len(pts), Regime: RegimeStable}
	if len(pts) == 0 {
		return est
	}

	last := pts[len(pts)-1]
	est.Timestamp = last.T
	est.Value = last.V
	if len(pts) < 2 {
		return est
	}

	t0 := pts[0].T
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.T.Sub(t0).Seconds()
		ys[i] = p.V
	}
	est.FirstDerivative = slope(xs, ys)

	if len(pts) < 3 {
		return est
	}

	// Second derivative: least-squares slope of the consecutive pairwise
	// slopes, each placed at its interval midpoint. Exact 0 for
	// constant-slope series, 2a for quadratic ones.
	mx := make([]float64, 0, len(pts)-1)
	my := make([]float64, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		dt := xs[i] - xs[i-1]
		if dt <= 0 {
			continue
		}
		mx = append(mx, (xs[i]+xs[i-1])/2)
		my = append(my, (ys[i]-ys[i-1])/dt)
	}
	if len(mx) >= 2 {
		est.SecondDerivative = slope(mx, my)
	}

	switch {
	case est.SecondDerivative > a.NoiseFloor:
		est.Regime = RegimeAccelerating
	case est.SecondDerivative < -a.NoiseFloor:
		est.Regime = RegimeDecelerating
	default:
		est.Regime = RegimeStable
	}
	return est
}

// dedupe returns a time-sorted copy of points with duplicate timestamps
// collapsed to their mean value. NaN and Inf values are dropped.
func dedupe(points []Point) []Point {
	pts := make([]Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.V) || math.IsInf(p.V, 0) {
			continue
		}
		pts = append(pts, p)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].T.Before(pts[j].T) })

	out := pts[:0]
	for i := 0; i < len(pts); {
		j := i + 1
		sum := pts[i].V
		for j < len(pts) && pts[j].T.Equal(pts[i].T) {
			sum += pts[j].V
			j++
		}
		out = append(out, Point{T: pts[i].T, V: sum / float64(j-i)})
		i = j
	}
	return out
}

// slope is the ordinary least-squares slope of ys over xs.
// Degenerate spans (all xs equal) return 0.
func slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var num, den float64
	for i := range xs {
		dx := xs[i] - meanX
		num += dx * (ys[i] - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
