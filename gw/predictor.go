package gw

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/geom"
	"github.com/YuminosukeSato/gwlearn/graph"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

// PredictProba blends the class probabilities of the local models around
// each query point. Rows follow the query points and columns follow
// GlobalClasses. A row is all NaN when none of the nearby local models
// could be used; such rows are not probability distributions.
//
// Query points are processed one at a time. Addressed local models are
// read from disk on every use.
func (c *Classifier) PredictProba(X mat.Matrix, geometry []geom.Geometry) (*mat.Dense, error) {
	const op = "GWClassifier.PredictProba"
	if err := c.state.RequireFitted("GWClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if c.store.Mode() == KeepNone {
		return nil, errors.WithStack(errors.ErrModelsNotKept)
	}
	points, err := geom.AsPoints(op, geometry)
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows != len(points) {
		return nil, errors.NewDimensionError(op, len(points), rows, 0)
	}
	if err := c.state.RequireFeatures(op, cols); err != nil {
		return nil, err
	}

	began := time.Now()
	adj, err := graph.Query(c.index, points, c.graphConfig())
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, len(c.globalClasses), nil)
	missing := 0
	x := make([]float64, cols)
	for i := 0; i < rows; i++ {
		row, err := c.blend(mat.Row(x, i, X), adj.Of(i))
		if err != nil {
			return nil, err
		}
		if errors.HasNaN(row) {
			missing++
		}
		out.SetRow(i, row)
	}

	c.cfg.recorder.Predictions(rows-missing, missing)
	c.logger.Debug("Predicted probabilities",
		log.OperationKey, log.OperationPredict,
		log.SamplesKey, rows,
		log.MissingKey, missing,
		log.DurationMsKey, time.Since(began).Milliseconds(),
	)
	return out, nil
}

// blend returns the kernel-weighted, renormalised average of the
// probabilities the neighbours' local models assign to x. Neighbours whose
// row has any NaN are left out.
func (c *Classifier) blend(x []float64, neighbors []graph.Neighbor) ([]float64, error) {
	k := len(c.globalClasses)
	xm := mat.NewDense(1, len(x), x)
	sum := make([]float64, k)
	totalWeight := 0.0
	for _, n := range neighbors {
		row, err := c.localProba(n.ID, xm)
		if err != nil {
			return nil, err
		}
		if errors.HasNaN(row) {
			continue
		}
		floats.AddScaled(sum, n.Weight, row)
		totalWeight += n.Weight
	}
	if totalWeight <= 0 {
		return errors.NaNs(k), nil
	}
	floats.Scale(1/totalWeight, sum)
	norm := floats.Sum(sum)
	if norm <= 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return errors.NaNs(k), nil
	}
	floats.Scale(1/norm, sum)
	return sum, nil
}

// localProba returns the probability row of focal's local model at x,
// aligned to the global classes. Skipped focals yield a NaN row.
func (c *Classifier) localProba(focal int, x *mat.Dense) ([]float64, error) {
	h := c.records[focal].Model
	if h.IsZero() {
		return errors.NaNs(len(c.globalClasses)), nil
	}
	est, err := c.store.Get(h)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load local model of focal %d", focal)
	}
	proba, err := alignedProba(est, x, c.globalClasses)
	if err != nil {
		return nil, errors.NewModelError("GWClassifier.PredictProba", "local prediction failed", err)
	}
	return proba.RawRowView(0), nil
}

// Predict returns the most probable global class of each query point as an
// n×1 matrix. Ties go to the smaller class. Points without a probability
// row get NaN rather than a label.
func (c *Classifier) Predict(X mat.Matrix, geometry []geom.Geometry) (*mat.Dense, error) {
	proba, err := c.PredictProba(X, geometry)
	if err != nil {
		return nil, err
	}
	return Labels(proba, c.globalClasses), nil
}

// Labels turns a PredictProba result into labels without predicting again.
// Columns of proba follow classes. Ties go to the smaller class and rows
// holding NaN yield NaN.
func Labels(proba mat.Matrix, classes []int) *mat.Dense {
	rows, cols := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, argmaxClass(mat.Row(row, i, proba), classes))
	}
	return out
}

func argmaxClass(row []float64, classes []int) float64 {
	if errors.HasNaN(row) {
		return math.NaN()
	}
	best := 0
	for j := 1; j < len(row); j++ {
		if row[j] > row[best] {
			best = j
		}
	}
	return float64(classes[best])
}
