// Package graph builds the kernel-weighted neighbourhoods of a point set.
//
// Two bandwidth modes are supported. In fixed mode the bandwidth is a
// distance and a neighbourhood holds every point within it. In adaptive mode
// the bandwidth is a neighbour count k and each neighbourhood's kernel
// bandwidth is the distance to its farthest member.
//
// Fit-time neighbourhoods (Build) always leave the focal point out.
package graph

import (
	"math"

	"github.com/YuminosukeSato/gwlearn/core/parallel"
	"github.com/YuminosukeSato/gwlearn/geom"
	"github.com/YuminosukeSato/gwlearn/kernel"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// AdaptiveEpsilon keeps adaptive kernel bandwidths away from zero.
const AdaptiveEpsilon = 1e-6

// parallelThreshold is the point count above which Build fans out queries.
const parallelThreshold = 512

// Neighbor is one member of a neighbourhood.
type Neighbor struct {
	ID       int
	Distance float64
	Weight   float64
}

// Adjacency maps each focal position to its neighbours ordered by ID.
type Adjacency struct {
	Neighbors [][]Neighbor
	// Bandwidths holds the kernel bandwidth used for each focal.
	Bandwidths []float64
}

// Len returns the number of focals.
func (a *Adjacency) Len() int { return len(a.Neighbors) }

// Of returns the neighbours of focal.
func (a *Adjacency) Of(focal int) []Neighbor { return a.Neighbors[focal] }

// IDs returns the neighbour ids of focal.
func (a *Adjacency) IDs(focal int) []int {
	ns := a.Neighbors[focal]
	ids := make([]int, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	return ids
}

// Weights returns the kernel weights of focal's neighbours.
func (a *Adjacency) Weights(focal int) []float64 {
	ns := a.Neighbors[focal]
	w := make([]float64, len(ns))
	for i, n := range ns {
		w[i] = n.Weight
	}
	return w
}

// Config describes a neighbourhood definition.
type Config struct {
	// Bandwidth is a distance when Fixed, otherwise a neighbour count.
	Bandwidth float64
	Fixed     bool
	Kernel    kernel.Func
}

// K returns the adaptive neighbour count.
func (c Config) K() int { return int(c.Bandwidth) }

// Validate checks the bandwidth.
func (c Config) Validate() error {
	if c.Kernel == nil {
		return errors.NewValidationError("kernel", "kernel function is required", nil)
	}
	if math.IsNaN(c.Bandwidth) || math.IsInf(c.Bandwidth, 0) || c.Bandwidth <= 0 {
		return errors.NewValidationError("bandwidth", "must be a positive finite number", c.Bandwidth)
	}
	if !c.Fixed && c.Bandwidth != math.Trunc(c.Bandwidth) {
		return errors.NewValidationError("bandwidth", "adaptive bandwidth must be an integer number of neighbors", c.Bandwidth)
	}
	return nil
}

// Build returns the leave-focal-out neighbourhoods of points. An adaptive
// neighbour count is capped at len(points)-1.
func Build(points []geom.Point, cfg Config) (*Adjacency, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Fixed && cfg.K() >= len(points) {
		// 自分自身を除くので近傍はたかだか n-1 点
		cfg.Bandwidth = float64(max(len(points)-1, 0))
	}

	ix := NewIndex(points)
	adj := &Adjacency{
		Neighbors:  make([][]Neighbor, len(points)),
		Bandwidths: make([]float64, len(points)),
	}
	parallel.ParallelizeWithThreshold(len(points), parallelThreshold, func(start, end int) {
		for focal := start; focal < end; focal++ {
			if cfg.Fixed {
				adj.Neighbors[focal], adj.Bandwidths[focal] = fixedNeighbors(ix, points[focal], focal, cfg)
			} else {
				adj.Neighbors[focal], adj.Bandwidths[focal] = adaptiveNeighbors(ix, points[focal], focal, cfg)
			}
		}
	})
	return adj, nil
}

func fixedNeighbors(ix *Index, q geom.Point, focal int, cfg Config) ([]Neighbor, float64) {
	found := ix.Within(q, cfg.Bandwidth)
	out := found[:0]
	for _, n := range found {
		if n.ID == focal {
			continue
		}
		n.Weight = cfg.Kernel(n.Distance, cfg.Bandwidth)
		out = append(out, n)
	}
	return out, cfg.Bandwidth
}

func adaptiveNeighbors(ix *Index, q geom.Point, focal int, cfg Config) ([]Neighbor, float64) {
	k := cfg.K()
	found := ix.Nearest(q, k+1)
	out := make([]Neighbor, 0, k)
	for _, n := range found {
		if n.ID == focal {
			continue
		}
		out = append(out, n)
	}
	if len(out) > k {
		out = out[:k]
	}

	bw := 0.0
	for _, n := range out {
		bw = math.Max(bw, n.Distance)
	}
	if bw == 0 {
		bw = AdaptiveEpsilon
	}
	for i := range out {
		out[i].Weight = cfg.Kernel(out[i].Distance, bw)
	}
	sortByID(out)
	return out, bw
}

// Query returns the neighbourhoods of query points among the indexed
// training points. No point is excluded. In adaptive mode k is capped at
// the number of indexed points and the kernel bandwidth is the farthest
// neighbour distance plus AdaptiveEpsilon.
func Query(ix *Index, queries []geom.Point, cfg Config) (*Adjacency, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	adj := &Adjacency{
		Neighbors:  make([][]Neighbor, len(queries)),
		Bandwidths: make([]float64, len(queries)),
	}
	k := cfg.K()
	if k > ix.Len() {
		k = ix.Len()
	}
	for qi, q := range queries {
		if cfg.Fixed {
			ns := ix.Within(q, cfg.Bandwidth)
			for i := range ns {
				ns[i].Weight = cfg.Kernel(ns[i].Distance, cfg.Bandwidth)
			}
			adj.Neighbors[qi], adj.Bandwidths[qi] = ns, cfg.Bandwidth
			continue
		}
		ns := ix.Nearest(q, k)
		bw := 0.0
		for _, n := range ns {
			bw = math.Max(bw, n.Distance)
		}
		bw += AdaptiveEpsilon
		for i := range ns {
			ns[i].Weight = cfg.Kernel(ns[i].Distance, bw)
		}
		sortByID(ns)
		adj.Neighbors[qi], adj.Bandwidths[qi] = ns, bw
	}
	return adj, nil
}
