package tree

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one node of a fitted tree stored in a flat slice. Leaves have
// Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value holds class probabilities for classifiers and a single
	// prediction for regressors.
	Value    []float64
	Impurity float64
	Weight   float64
	NSamples int
}

// IsLeaf reports whether n has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

const impurityEpsilon = 1e-12

// builder grows a weighted CART tree depth first.
//
// Statistics are accumulated in acc slices. For classification acc[c] is the
// weight of class c. For regression acc = [Σw, Σwy, Σwy²].
type builder struct {
	cfg        params
	rng        *rand.Rand
	rows       [][]float64
	labels     []int     // classification
	targets    []float64 // regression
	w          []float64
	nClasses   int
	regression bool

	nodes       []Node
	importances []float64
}

func (b *builder) accSize() int {
	if b.regression {
		return 3
	}
	return b.nClasses
}

func (b *builder) add(acc []float64, i int, sign float64) {
	wi := sign * b.w[i]
	if b.regression {
		t := b.targets[i]
		acc[0] += wi
		acc[1] += wi * t
		acc[2] += wi * t * t
		return
	}
	acc[b.labels[i]] += wi
}

func (b *builder) weight(acc []float64) float64 {
	if b.regression {
		return acc[0]
	}
	s := 0.0
	for _, v := range acc {
		s += v
	}
	return s
}

func (b *builder) impurity(acc []float64) float64 {
	total := b.weight(acc)
	if total <= 0 {
		return 0
	}
	if b.regression {
		mean := acc[1] / total
		return math.Max(acc[2]/total-mean*mean, 0)
	}
	imp := 0.0
	switch b.cfg.criterion {
	case "entropy", "log_loss":
		for _, v := range acc {
			if v > 0 {
				p := v / total
				imp -= p * math.Log2(p)
			}
		}
	default:
		imp = 1
		for _, v := range acc {
			p := v / total
			imp -= p * p
		}
	}
	return imp
}

func (b *builder) leafValue(acc []float64) []float64 {
	total := b.weight(acc)
	if b.regression {
		if total <= 0 {
			return []float64{0}
		}
		return []float64{acc[1] / total}
	}
	v := make([]float64, len(acc))
	for c := range acc {
		if total > 0 {
			v[c] = acc[c] / total
		} else {
			v[c] = 1 / float64(len(acc))
		}
	}
	return v
}

func (b *builder) grow() {
	idx := make([]int, 0, len(b.rows))
	for i := range b.rows {
		if b.w[i] > 0 {
			idx = append(idx, i)
		}
	}
	b.nodes = b.nodes[:0]
	b.importances = make([]float64, len(b.rows[0]))
	b.build(idx, 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for f := range b.importances {
			b.importances[f] /= total
		}
	}
}

func (b *builder) build(idx []int, depth int) int {
	acc := make([]float64, b.accSize())
	for _, i := range idx {
		b.add(acc, i, 1)
	}
	weight := b.weight(acc)
	imp := b.impurity(acc)

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    b.leafValue(acc),
		Impurity: imp,
		Weight:   weight,
		NSamples: len(idx),
	})

	if (b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth) ||
		len(idx) < b.cfg.minSamplesSplit ||
		len(idx) < 2*b.cfg.minSamplesLeaf ||
		imp <= impurityEpsilon {
		return id
	}

	feature, threshold, childScore, ok := b.bestSplit(idx, acc)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importances[feature] += math.Max(weight*imp-childScore, 0)

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	n := &b.nodes[id]
	n.Feature, n.Threshold, n.Left, n.Right = feature, threshold, l, r
	return id
}

func (b *builder) candidateFeatures() []int {
	nFeatures := len(b.rows[0])
	k := b.cfg.maxFeatures
	if k <= 0 || k >= nFeatures || b.rng == nil {
		out := make([]int, nFeatures)
		for f := range out {
			out[f] = f
		}
		return out
	}
	return b.rng.Perm(nFeatures)[:k]
}

// bestSplit scans every candidate feature in sorted order and returns the
// split minimising the weighted child impurity Wl·Il + Wr·Ir.
func (b *builder) bestSplit(idx []int, acc []float64) (int, float64, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	bestScore := math.Inf(1)
	n := len(idx)

	sorted := make([]int, n)
	left := make([]float64, len(acc))
	right := make([]float64, len(acc))

	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.rows[sorted[a]][f] < b.rows[sorted[c]][f]
		})
		for j := range left {
			left[j] = 0
		}
		copy(right, acc)

		for k := 0; k < n-1; k++ {
			i := sorted[k]
			b.add(left, i, 1)
			b.add(right, i, -1)

			xk, xn := b.rows[i][f], b.rows[sorted[k+1]][f]
			if xk == xn {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < b.cfg.minSamplesLeaf || nr < b.cfg.minSamplesLeaf {
				continue
			}
			wl, wr := b.weight(left), b.weight(right)
			if wl <= 0 || wr <= 0 {
				continue
			}
			score := wl*b.impurity(left) + wr*b.impurity(right)
			if score < bestScore-impurityEpsilon {
				bestScore = score
				bestFeature = f
				bestThreshold = xk + (xn-xk)/2
				if bestThreshold >= xn {
					bestThreshold = xk
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestScore, bestFeature >= 0
}

// apply returns the leaf index reached by x.
func apply(nodes []Node, x []float64) int {
	id := 0
	for !nodes[id].IsLeaf() {
		if x[nodes[id].Feature] <= nodes[id].Threshold {
			id = nodes[id].Left
		} else {
			id = nodes[id].Right
		}
	}
	return id
}

func depthOf(nodes []Node, id int) int {
	if id < 0 || nodes[id].IsLeaf() {
		return 0
	}
	return 1 + max(depthOf(nodes, nodes[id].Left), depthOf(nodes, nodes[id].Right))
}

func countLeaves(nodes []Node) int {
	n := 0
	for _, node := range nodes {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}
