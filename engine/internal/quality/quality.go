package quality

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// labelRank orders health buckets for the assortativity correlation.
// Unknown labels rank between at-risk and healthy-adjacent extremes.
var labelRank = map[string]float64{
	"failing": 0,
	"at-risk": 1,
	"healthy": 2,
}

// Report is the clustering quality assessment of one graph + layout.
//
// Defined is false when there is not enough data to evaluate (no edges, or
// fewer than two labels present); Reason then says why and the numeric
// fields are meaningless.
type Report struct {
	Defined bool   `json:"defined"`
	Reason  string `json:"reason,omitempty"`

	// Assortativity is the correlation between the labels at the two ends
	// of each edge, in [-1,1]. Positive: like clusters with like.
	Assortativity float64 `json:"assortativity"`

	// MeanPurity is the mean over nodes-with-neighbors of the fraction of
	// neighbors sharing the node's label, in [0,1].
	MeanPurity float64 `json:"mean_purity"`

	// Separation compares spatial neighborhoods in the layout: mean
	// nearest-other-label distance over mean nearest-same-label distance.
	// Above 1: same-label jobs sit closer together than to other labels.
	// Zero when positions or label diversity are insufficient.
	Separation float64 `json:"separation"`

	// PurityPerLabel breaks MeanPurity down by label.
	PurityPerLabel map[string]float64 `json:"purity_per_label,omitempty"`

	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Evaluate computes the quality report for the given layout, edge set, and
// per-job label assignment. Jobs without a label are ignored.
func Evaluate(positions []types.NodePosition, edges []types.SimilarityEdge, labels map[string]string) Report {
	rep := Report{Nodes: len(positions), Edges: len(edges)}

	if len(edges) == 0 {
		rep.Reason = "no edges at or above the similarity threshold — insufficient data"
		return rep
	}
	if distinctLabels(labels) < 2 {
		rep.Reason = "fewer than two label buckets present — nothing to separate"
		return rep
	}

	rep.Assortativity = assortativity(edges, labels)
	rep.MeanPurity, rep.PurityPerLabel = purity(edges, labels)
	rep.Separation = separation(positions, labels)
	rep.Defined = true
	return rep
}

// assortativity correlates the label ranks across edge endpoints. Each edge
// contributes in both directions so the correlation is symmetric.
func assortativity(edges []types.SimilarityEdge, labels map[string]string) float64 {
	xs := make([]float64, 0, len(edges)*2)
	ys := make([]float64, 0, len(edges)*2)
	for _, e := range edges {
		ra, oka := labelRank[labels[e.JobA]]
		rb, okb := labelRank[labels[e.JobB]]
		if !oka || !okb {
			continue
		}
		xs = append(xs, ra, rb)
		ys = append(ys, rb, ra)
	}
	if len(xs) == 0 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		// Zero variance on one side — every labeled edge endpoint agrees.
		return 0
	}
	return r
}

// purity computes, per node with at least one labeled neighbor, the fraction
// of neighbors sharing its label, then averages overall and per label.
func purity(edges []types.SimilarityEdge, labels map[string]string) (float64, map[string]float64) {
	same := map[string]int{}
	total := map[string]int{}
	for _, e := range edges {
		la, oka := labels[e.JobA]
		lb, okb := labels[e.JobB]
		if !oka || !okb {
			continue
		}
		total[e.JobA]++
		total[e.JobB]++
		if la == lb {
			same[e.JobA]++
			same[e.JobB]++
		}
	}

	var sum float64
	n := 0
	perLabelSum := map[string]float64{}
	perLabelN := map[string]int{}
	for id, t := range total {
		p := float64(same[id]) / float64(t)
		sum += p
		n++
		l := labels[id]
		perLabelSum[l] += p
		perLabelN[l]++
	}
	if n == 0 {
		return 0, nil
	}

	perLabel := make(map[string]float64, len(perLabelSum))
	for l, s := range perLabelSum {
		perLabel[l] = s / float64(perLabelN[l])
	}
	return sum / float64(n), perLabel
}

// separation is the nearest-neighbor analog of nearest-taxon distance: for
// every labeled node, the distance to its nearest same-label node and to its
// nearest other-label node; the ratio of the means quantifies how tightly
// buckets cluster in the layout.
func separation(positions []types.NodePosition, labels map[string]string) float64 {
	var sameSum, otherSum float64
	var n int
	for i, a := range positions {
		la, ok := labels[a.JobID]
		if !ok {
			continue
		}
		nearSame, nearOther := math.Inf(1), math.Inf(1)
		for j, b := range positions {
			if i == j {
				continue
			}
			lb, ok := labels[b.JobID]
			if !ok {
				continue
			}
			d := dist(a, b)
			if la == lb {
				nearSame = math.Min(nearSame, d)
			} else {
				nearOther = math.Min(nearOther, d)
			}
		}
		if math.IsInf(nearSame, 1) || math.IsInf(nearOther, 1) {
			continue // node lacks a same- or other-label peer
		}
		sameSum += nearSame
		otherSum += nearOther
		n++
	}
	if n == 0 || sameSum == 0 {
		return 0
	}
	return (otherSum / float64(n)) / (sameSum / float64(n))
}

func distinctLabels(labels map[string]string) int {
	seen := map[string]struct{}{}
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

func dist(a, b types.NodePosition) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
