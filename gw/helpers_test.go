package gw

import (
	"encoding/gob"
	"math/rand"
	"testing"

	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/geom"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func init() {
	gob.Register(&priorModel{})
	gob.Register(&oneClassModel{})
}

// priorModel predicts the weighted share of class 1 it was fitted on,
// whatever the features. It remembers the rows and weights it saw.
type priorModel struct {
	Prior   float64
	Labels  []int
	Weights []float64
	Fail    bool
	Panic   bool
}

func (p *priorModel) FitWeighted(X, y mat.Matrix, w []float64) error {
	if p.Panic {
		panic("boom")
	}
	if p.Fail {
		return errors.New("estimator failure")
	}
	n, _ := y.Dims()
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	}
	p.Labels = make([]int, n)
	p.Weights = append([]float64(nil), w...)
	var pos, total float64
	for i := 0; i < n; i++ {
		p.Labels[i] = int(y.At(i, 0))
		pos += w[i] * y.At(i, 0)
		total += w[i]
	}
	if total > 0 {
		p.Prior = pos / total
	} else {
		p.Prior = 0.5
	}
	return nil
}

func (p *priorModel) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, 1-p.Prior)
		out.Set(i, 1, p.Prior)
	}
	return out, nil
}

func (p *priorModel) Classes() []int { return []int{0, 1} }

// oneClassModel only knows class 1.
type oneClassModel struct{}

func (oneClassModel) FitWeighted(X, y mat.Matrix, w []float64) error { return nil }

func (oneClassModel) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, 1)
	}
	return out, nil
}

func (oneClassModel) Classes() []int { return []int{1} }

func priorSpec() ModelSpec {
	return Generic(func() model.LocalEstimator { return &priorModel{} }, nil)
}

// line returns 5 points at x = 0..4 with labels 0,0,1,1,1.
func line() (*mat.Dense, *mat.Dense, []geom.Geometry) {
	X := mat.NewDense(5, 1, []float64{0, 1, 2, 3, 4})
	y := mat.NewDense(5, 1, []float64{0, 0, 1, 1, 1})
	return X, y, geom.Points([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{2, 0}, [2]float64{3, 0}, [2]float64{4, 0})
}

// randomData returns n points in a 10×10 square with two features and
// noisy labels driven by the first feature and the x coordinate.
func randomData(n int, seed int64) (*mat.Dense, *mat.Dense, []geom.Geometry) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	geoms := make([]geom.Geometry, n)
	for i := 0; i < n; i++ {
		px, py := rng.Float64()*10, rng.Float64()*10
		geoms[i] = geom.Point{X: px, Y: py}
		X.Set(i, 0, rng.NormFloat64())
		X.Set(i, 1, rng.NormFloat64())
		if X.At(i, 0)+0.2*(px-5)+0.7*rng.NormFloat64() > 0 {
			y.Set(i, 0, 1)
		}
	}
	return X, y, geoms
}

func quiet() Option {
	return WithLogger(log.Nop())
}
