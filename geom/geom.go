// Package geom holds the minimal planar geometry model accepted by the
// geographically weighted estimators. Only points take part in the
// computations; other geometry types exist so that inputs can be rejected
// with a precise error.
package geom

import (
	"math"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// Geometry is any planar geometry.
type Geometry interface {
	GeometryType() string
}

// Point is a location in projected coordinates.
type Point struct {
	X, Y float64
}

// GeometryType implements Geometry.
func (Point) GeometryType() string { return "Point" }

// LineString is an ordered sequence of vertices.
type LineString []Point

// GeometryType implements Geometry.
func (LineString) GeometryType() string { return "LineString" }

// Polygon is a closed exterior ring followed by optional holes.
type Polygon [][]Point

// GeometryType implements Geometry.
func (Polygon) GeometryType() string { return "Polygon" }

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// AsPoints checks that every geometry is a Point and returns them in order.
// op names the calling operation in the returned GeometryError.
func AsPoints(op string, geoms []Geometry) ([]Point, error) {
	pts := make([]Point, len(geoms))
	for i, g := range geoms {
		switch p := g.(type) {
		case Point:
			pts[i] = p
		case *Point:
			if p == nil {
				return nil, errors.NewGeometryError(op, i, "nil")
			}
			pts[i] = *p
		case nil:
			return nil, errors.NewGeometryError(op, i, "nil")
		default:
			return nil, errors.NewGeometryError(op, i, g.GeometryType())
		}
	}
	return pts, nil
}

// Points wraps coordinate pairs as geometries.
func Points(xy ...[2]float64) []Geometry {
	out := make([]Geometry, len(xy))
	for i, c := range xy {
		out[i] = Point{X: c[0], Y: c[1]}
	}
	return out
}
