package layout

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultIterations = 300
	DefaultCooling    = 0.95
	DefaultBound      = 100.0
	DefaultEpsilon    = 1e-3
)

// minSeparation is the distance below which two nodes count as coincident
// and are separated by deterministic jitter before force evaluation.
const minSeparation = 1e-9

// Config controls one layout run.
type Config struct {
	// Iterations is the iteration budget.
	Iterations int `yaml:"iterations"`

	// Cooling multiplies the temperature each iteration; must be in (0,1).
	Cooling float64 `yaml:"cooling"`

	// Bound is the half-extent of the bounding cube; positions are clamped
	// to [-Bound, Bound] on every axis.
	Bound float64 `yaml:"bound"`

	// Epsilon is the total-displacement convergence threshold.
	Epsilon float64 `yaml:"epsilon"`

	// MaxDuration optionally bounds wall-clock time; zero means unbounded.
	MaxDuration time.Duration `yaml:"max_duration"`

	// Workers bounds the force-computation parallelism; zero means
	// GOMAXPROCS.
	Workers int `yaml:"workers"`
}

func (c Config) withDefaults() Config {
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.Cooling <= 0 || c.Cooling >= 1 {
		c.Cooling = DefaultCooling
	}
	if c.Bound <= 0 {
		c.Bound = DefaultBound
	}
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Result is the outcome of a layout run.
//
// Converged is false when the run stopped on its iteration or time budget
// rather than on displacement convergence — a best-effort layout, still
// usable, flagged so consumers can tell.
type Result struct {
	Positions  []types.NodePosition
	Iterations int
	Converged  bool
}

type vec3 struct{ x, y, z float64 }

func (v vec3) add(o vec3) vec3      { return vec3{v.x + o.x, v.y + o.y, v.z + o.z} }
func (v vec3) sub(o vec3) vec3      { return vec3{v.x - o.x, v.y - o.y, v.z - o.z} }
func (v vec3) scale(s float64) vec3 { return vec3{v.x * s, v.y * s, v.z * s} }
func (v vec3) norm() float64        { return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z) }

// Run performs the force simulation for the given nodes and edges.
//
// Every node pair repels with magnitude k²/d; every edge additionally
// attracts with magnitude (d²/k)·similarity. The iteration loop is
// sequential (each step depends on the previous positions) but force
// accumulation within a step is parallel across nodes. Cancelling ctx acts
// like an exhausted budget: the current positions are returned, flagged
// non-converged.
func Run(ctx context.Context, jobIDs []string, edges []types.SimilarityEdge, cfg Config) Result {
	cfg = cfg.withDefaults()
	n := len(jobIDs)
	if n == 0 {
		return Result{Converged: true}
	}

	pos := initialPositions(jobIDs, cfg.Bound)
	index := make(map[string]int, n)
	for i, id := range jobIDs {
		index[id] = i
	}

	// Ideal pairwise distance: nodes evenly spread through the cube volume.
	k := cfg.Bound * 2 / math.Cbrt(float64(n))
	temp := cfg.Bound / 5

	var deadline time.Time
	if cfg.MaxDuration > 0 {
		deadline = time.Now().Add(cfg.MaxDuration)
	}

	res := Result{}
	for iter := 0; iter < cfg.Iterations; iter++ {
		if ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline)) {
			break
		}
		res.Iterations = iter + 1

		disp := make([]vec3, n)
		repelAll(ctx, pos, disp, k, cfg.Workers, jobIDs)

		// Attraction along edges, scaled by similarity. Isolated nodes
		// are never attracted — they only repel.
		for _, e := range edges {
			i, oki := index[e.JobA]
			j, okj := index[e.JobB]
			if !oki || !okj || i == j {
				continue
			}
			delta := pos[j].sub(pos[i])
			d := delta.norm()
			if d < minSeparation {
				continue // repulsion jitter will separate them next pass
			}
			f := delta.scale(d / k * e.Similarity)
			disp[i] = disp[i].add(f)
			disp[j] = disp[j].sub(f)
		}

		// Move, clamped to the cooling temperature and the bounding cube.
		var total float64
		for i := range pos {
			d := disp[i].norm()
			if d == 0 {
				continue
			}
			step := math.Min(d, temp)
			pos[i] = pos[i].add(disp[i].scale(step / d))
			pos[i] = clampCube(pos[i], cfg.Bound)
			total += step
		}

		temp *= cfg.Cooling
		if total < cfg.Epsilon {
			res.Converged = true
			break
		}
	}

	res.Positions = make([]types.NodePosition, n)
	for i, id := range jobIDs {
		res.Positions[i] = types.NodePosition{JobID: id, X: pos[i].x, Y: pos[i].y, Z: pos[i].z}
	}
	return res
}

// repelAll accumulates k²/d repulsion for every node against all others.
// Each worker owns a disjoint range of disp, so writes never race and the
// result is deterministic regardless of worker count.
func repelAll(ctx context.Context, pos []vec3, disp []vec3, k float64, workers int, ids []string) {
	n := len(pos)
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				for j := 0; j < n; j++ {
					if i == j {
						continue
					}
					delta := pos[i].sub(pos[j])
					d := delta.norm()
					if d < minSeparation {
						// Coincident nodes: deterministic jitter keeps
						// the run reproducible.
						delta = jitter(ids[i], ids[j])
						d = delta.norm()
					}
					disp[i] = disp[i].add(delta.scale(k * k / (d * d)))
				}
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}

// initialPositions places each node pseudo-randomly in the cube, seeded from
// its identity so runs are reproducible.
func initialPositions(ids []string, bound float64) []vec3 {
	pos := make([]vec3, len(ids))
	for i, id := range ids {
		r := rand.New(rand.NewSource(seed(id)))
		pos[i] = vec3{
			x: (r.Float64()*2 - 1) * bound / 2,
			y: (r.Float64()*2 - 1) * bound / 2,
			z: (r.Float64()*2 - 1) * bound / 2,
		}
	}
	return pos
}

// jitter derives a small deterministic separation vector from a node pair.
func jitter(a, b string) vec3 {
	r := rand.New(rand.NewSource(seed(a + "\x00" + b)))
	return vec3{
		x: (r.Float64()*2 - 1) * minSeparation * 1e3,
		y: (r.Float64()*2 - 1) * minSeparation * 1e3,
		z: (r.Float64()*2 - 1) * minSeparation * 1e3,
	}
}

func seed(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s)) //nolint:errcheck
	return int64(h.Sum64())
}

func clampCube(v vec3, bound float64) vec3 {
	v.x = math.Max(-bound, math.Min(bound, v.x))
	v.y = math.Max(-bound, math.Min(bound, v.y))
	v.z = math.Max(-bound, math.Min(bound, v.z))
	return v
}
