// Package kernel converts distances into spatial weights.
//
// Every kernel takes a distance and a bandwidth and returns a weight. Kernels
// with compact support clip u = d/bw to [0, 1] so that points at or beyond
// the bandwidth get weight 0 (cosine and boxcar aside, see below). Gaussian
// and exponential kernels are not clipped.
//
// The bandwidth must be positive; callers add a small epsilon where a
// bandwidth can degenerate to 0.
package kernel

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// Func maps a distance under a bandwidth to a kernel weight.
type Func func(distance, bandwidth float64) float64

// Kernel names.
const (
	Triangular  = "triangular"
	Parabolic   = "parabolic"
	Gaussian    = "gaussian"
	Bisquare    = "bisquare"
	Cosine      = "cosine"
	Boxcar      = "boxcar"
	Exponential = "exponential"
)

// Default is the kernel used when none is configured.
const Default = Bisquare

var registry = map[string]Func{
	Triangular:  TriangularFunc,
	Parabolic:   ParabolicFunc,
	Gaussian:    GaussianFunc,
	Bisquare:    BisquareFunc,
	Cosine:      CosineFunc,
	Boxcar:      BoxcarFunc,
	Exponential: ExponentialFunc,
}

func clipped(d, bw float64) float64 {
	return errors.ClipValue(d/bw, 0, 1)
}

// TriangularFunc is 1 - u.
func TriangularFunc(d, bw float64) float64 {
	return 1 - clipped(d, bw)
}

// ParabolicFunc (Epanechnikov) is 0.75 (1 - u²).
func ParabolicFunc(d, bw float64) float64 {
	u := clipped(d, bw)
	return 0.75 * (1 - u*u)
}

// GaussianFunc is exp(-(u/2)²) / (√2 π) with u unclipped.
func GaussianFunc(d, bw float64) float64 {
	u := d / bw
	return math.Exp(-(u/2)*(u/2)) / (math.Sqrt2 * math.Pi)
}

// BisquareFunc is 15/16 (1 - u²)².
func BisquareFunc(d, bw float64) float64 {
	u := clipped(d, bw)
	v := 1 - u*u
	return (15.0 / 16.0) * v * v
}

// CosineFunc is π/4 cos(π/2 u). cos(π/2) is not exactly 0 in floating
// point, so a point at the bandwidth gets a weight of order 1e-17.
func CosineFunc(d, bw float64) float64 {
	u := clipped(d, bw)
	return (math.Pi / 4) * math.Cos(math.Pi/2*u)
}

// BoxcarFunc is 1 for d < bw and 0 otherwise.
func BoxcarFunc(d, bw float64) float64 {
	if d < bw {
		return 1
	}
	return 0
}

// ExponentialFunc is exp(-u) with u unclipped.
func ExponentialFunc(d, bw float64) float64 {
	return math.Exp(-d / bw)
}

// Get returns the kernel registered under name.
func Get(name string) (Func, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errors.NewValidationError("kernel", "unknown kernel, expected one of "+joinNames(), name)
	}
	return f, nil
}

// Names returns the registered kernel names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func joinNames() string {
	s := ""
	for i, n := range Names() {
		if i > 0 {
			s += ", "
		}
		s += n
	}
	return s
}

// Apply evaluates f elementwise. bandwidths is either a single value applied
// to every distance or one value per distance.
func Apply(f Func, distances, bandwidths []float64) ([]float64, error) {
	if len(bandwidths) != 1 && len(bandwidths) != len(distances) {
		return nil, errors.NewDimensionError("kernel.Apply", len(distances), len(bandwidths), 0)
	}
	out := make([]float64, len(distances))
	for i, d := range distances {
		bw := bandwidths[0]
		if len(bandwidths) > 1 {
			bw = bandwidths[i]
		}
		out[i] = f(d, bw)
	}
	return out, nil
}
