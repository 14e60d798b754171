package graph

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/YuminosukeSato/gwlearn/geom"
)

// site is a training point stored in the k-d tree. id is the position of
// the point in the training set.
type site struct {
	id   int
	x, y float64
}

func (s site) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return s.x
	}
	return s.y
}

// Compare implements kdtree.Comparable.
func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.coord(d) - c.(site).coord(d)
}

// Dims implements kdtree.Comparable.
func (s site) Dims() int { return 2 }

// Distance implements kdtree.Comparable. It is the squared Euclidean
// distance, which is what the tree prunes against.
func (s site) Distance(c kdtree.Comparable) float64 {
	o := c.(site)
	dx, dy := s.x-o.x, s.y-o.y
	return dx*dx + dy*dy
}

type sites []site

func (p sites) Index(i int) kdtree.Comparable         { return p[i] }
func (p sites) Len() int                              { return len(p) }
func (p sites) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot sorts p along d and returns the median position.
func (p sites) Pivot(d kdtree.Dim) int {
	sort.Sort(plane{sites: p, dim: d})
	return len(p) / 2
}

type plane struct {
	sites
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	a, b := p.sites[i].coord(p.dim), p.sites[j].coord(p.dim)
	if a == b {
		return p.sites[i].id < p.sites[j].id
	}
	return a < b
}

func (p plane) Swap(i, j int) { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }

// Index is a static spatial index over training points. It is safe for
// concurrent queries.
type Index struct {
	tree   *kdtree.Tree
	points []geom.Point
}

// NewIndex builds a k-d tree over points.
func NewIndex(points []geom.Point) *Index {
	ss := make(sites, len(points))
	for i, p := range points {
		ss[i] = site{id: i, x: p.X, y: p.Y}
	}
	ix := &Index{points: append([]geom.Point(nil), points...)}
	if len(ss) > 0 {
		ix.tree = kdtree.New(ss, false)
	}
	return ix
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.points) }

// Point returns the indexed point with the given id.
func (ix *Index) Point(id int) geom.Point { return ix.points[id] }

// radiusSlack widens the tree search so that points exactly on the radius
// survive rounding of the squared distance; candidates are filtered on the
// true distance afterwards.
const radiusSlack = 1e-9

// Within returns every indexed point at distance ≤ r from q, ordered by id.
// Weights are left zero.
func (ix *Index) Within(q geom.Point, r float64) []Neighbor {
	if ix.tree == nil {
		return nil
	}
	keeper := kdtree.NewDistKeeper(r*r*(1+radiusSlack) + radiusSlack)
	ix.tree.NearestSet(keeper, site{id: -1, x: q.X, y: q.Y})

	out := make([]Neighbor, 0, len(keeper.Heap))
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		s := cd.Comparable.(site)
		d := geom.Distance(q, ix.points[s.id])
		if d <= r {
			out = append(out, Neighbor{ID: s.id, Distance: d})
		}
	}
	sortByID(out)
	return out
}

// Nearest returns the k indexed points closest to q ordered by distance,
// ties broken by id. Fewer are returned when the index holds fewer points.
func (ix *Index) Nearest(q geom.Point, k int) []Neighbor {
	if ix.tree == nil || k <= 0 {
		return nil
	}
	keeper := kdtree.NewNKeeper(k)
	ix.tree.NearestSet(keeper, site{id: -1, x: q.X, y: q.Y})

	out := make([]Neighbor, 0, k)
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		s := cd.Comparable.(site)
		out = append(out, Neighbor{ID: s.id, Distance: geom.Distance(q, ix.points[s.id])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].ID < out[j].ID
		}
		return out[i].Distance < out[j].Distance
	})
	return out
}

func sortByID(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].ID < ns[j].ID })
}
