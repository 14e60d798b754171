// Package gw implements geographically weighted classification.
//
// A Classifier fits one local model per training location on the
// kernel-weighted neighbourhood of that location, leaving the location
// itself out. Predictions for new locations blend the class probabilities
// of the nearby local models with the same kernel.
//
//	clf := gw.New(gw.RandomForest(nil), 50,
//	    gw.WithKernel(kernel.Bisquare),
//	    gw.WithKeepModels(true),
//	)
//	if err := clf.Fit(X, y, points); err != nil {
//	    return err
//	}
//	proba, err := clf.PredictProba(Xnew, newPoints)
//
// Focals whose neighbourhood is invariant or too imbalanced are skipped:
// their probabilities are NaN and they never take part in predictions.
package gw

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/geom"
	"github.com/YuminosukeSato/gwlearn/graph"
	"github.com/YuminosukeSato/gwlearn/performance"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

// Classifier is a geographically weighted binary classifier.
type Classifier struct {
	spec      ModelSpec
	bandwidth float64
	cfg       settings
	id        string
	logger    log.Logger
	state     *model.StateManager

	globalClasses []int
	index         *graph.Index
	store         ModelStore
	records       []LocalModelRecord
	globalModel   model.LocalEstimator
	performance   *Performance
}

// New returns an unfitted classifier. bandwidth is a distance with
// WithFixed(true) and a neighbour count otherwise. Options are validated by
// Fit.
func New(spec ModelSpec, bandwidth float64, opts ...Option) *Classifier {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	id := uuid.NewString()
	logger := cfg.logger
	if logger == nil {
		logger = log.GetLoggerWithName("gw")
	}
	return &Classifier{
		spec:      spec,
		bandwidth: bandwidth,
		cfg:       cfg,
		id:        id,
		logger:    logger.With(log.ModelNameKey, "GWClassifier", log.EstimatorIDKey, id),
		state:     model.NewStateManager(),
		store:     discardStore{},
	}
}

func (c *Classifier) graphConfig() graph.Config {
	return graph.Config{Bandwidth: c.bandwidth, Fixed: c.cfg.fixed, Kernel: c.cfg.kernelFn}
}

// Fit fits the local models. See FitContext.
func (c *Classifier) Fit(X, y mat.Matrix, geometry []geom.Geometry) error {
	return c.FitContext(context.Background(), X, y, geometry)
}

// FitContext fits one local model per training point. y holds 0/1 labels
// and must contain both. Every geometry must be a Point.
//
// With StrictError the fit fails before any local model is fitted if a
// neighbourhood is invariant. An error of any local model aborts the fit
// and no partial result is kept. ctx cancels pending local fits.
func (c *Classifier) FitContext(ctx context.Context, X, y mat.Matrix, geometry []geom.Geometry) error {
	const op = "GWClassifier.Fit"
	if err := c.spec.validate(); err != nil {
		return err
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}
	points, err := geom.AsPoints(op, geometry)
	if err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	if rows != len(points) {
		return errors.NewDimensionError(op, len(points), rows, 0)
	}
	labels, classes, err := binaryTarget(op, y, rows)
	if err != nil {
		return err
	}

	cfg := c.graphConfig()
	adj, err := graph.Build(points, cfg)
	if err != nil {
		return err
	}

	began := time.Now()
	c.logger.Info("Fitting local models",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.BandwidthKey, c.bandwidth,
	)

	invariant := invariantFocals(adj, labels)
	if len(invariant) > 0 {
		c.cfg.recorder.InvariantNeighborhoods(len(invariant))
		switch c.cfg.strict {
		case StrictError:
			return errors.NewInvariantNeighborhoodError(invariant)
		case StrictWarn:
			w := errors.NewInvariantNeighborhoodWarning(invariant)
			c.logger.Warn("Invariant neighbourhoods", log.InvariantKey, len(invariant))
			errors.Warn(w)
		}
	}

	store, err := newModelStore(c.cfg)
	if err != nil {
		return err
	}

	var source rowSource
	if c.cfg.tempFolder != "" {
		spill, err := performance.NewSpillFile(c.cfg.tempFolder, X)
		if err != nil {
			return err
		}
		defer spill.Close()
		source = spill
	} else {
		source = denseRows{m: mat.DenseCopyOf(X)}
	}

	t := &trainer{
		spec:          c.spec,
		cfg:           c.cfg,
		store:         store,
		globalClasses: classes,
		nFeatures:     cols,
		logger:        c.logger,
	}
	records, err := t.fitAll(ctx, source, labels, adj)
	if err != nil {
		c.logger.Error("Fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	var globalModel model.LocalEstimator
	if c.cfg.fitGlobalModel {
		if globalModel, err = c.fitGlobal(X, y); err != nil {
			return err
		}
	}

	var perf *Performance
	if c.cfg.measurePerformance {
		if perf, err = focalPerformance(records, labels, model.ClassIndex(classes, 1)); err != nil {
			return err
		}
		c.cfg.recorder.FocalAccuracy(perf.Accuracy)
	}

	c.globalClasses = classes
	c.index = graph.NewIndex(points)
	c.store = store
	c.records = records
	c.globalModel = globalModel
	c.performance = perf
	c.state.SetFitted(cols, rows)

	fitted := 0
	for _, r := range records {
		if r.Fitted {
			fitted++
		}
	}
	c.logger.Info("Fitted local models",
		log.OperationKey, log.OperationFit,
		log.FittedKey, fitted,
		log.SkippedKey, len(records)-fitted,
		log.InvariantKey, len(invariant),
		log.DurationMsKey, time.Since(began).Milliseconds(),
	)
	return nil
}

func (c *Classifier) fitGlobal(X, y mat.Matrix) (model.LocalEstimator, error) {
	est, err := c.spec.build(c.cfg.randomState)
	if err != nil {
		return nil, err
	}
	err = errors.SafeExecute("GWClassifier.fitGlobal", func() error {
		return est.FitWeighted(X, y, nil)
	})
	if err != nil {
		return nil, errors.NewModelError("GWClassifier.Fit", "global model fit failed", err)
	}
	return est, nil
}

// binaryTarget checks that y is an n×1 column of 0/1 values holding both.
func binaryTarget(op string, y mat.Matrix, n int) ([]int, []int, error) {
	rows, cols := y.Dims()
	if rows != n {
		return nil, nil, errors.NewDimensionError(op, n, rows, 0)
	}
	if cols != 1 {
		return nil, nil, errors.NewDimensionError(op, 1, cols, 1)
	}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		switch v := y.At(i, 0); v {
		case 0, 1:
			labels[i] = int(v)
		default:
			return nil, nil, errors.NewValueError(op, "only binary dependent variable is supported")
		}
	}
	classes := model.UniqueClasses(y)
	if len(classes) != 2 {
		return nil, nil, errors.NewValueError(op, "the dependent variable must contain both classes")
	}
	return labels, classes, nil
}

// BoolTarget encodes boolean labels as an n×1 matrix of 0/1.
func BoolTarget(y []bool) *mat.Dense {
	out := mat.NewDense(len(y), 1, nil)
	for i, v := range y {
		if v {
			out.Set(i, 0, 1)
		}
	}
	return out
}

// IsFitted reports whether Fit has completed.
func (c *Classifier) IsFitted() bool { return c.state.IsFitted() }

// Bandwidth returns the configured bandwidth.
func (c *Classifier) Bandwidth() float64 { return c.bandwidth }

// Family returns the model family of the local models.
func (c *Classifier) Family() Family { return c.spec.Family }

// ID returns the estimator id attached to log records.
func (c *Classifier) ID() string { return c.id }

// GlobalClasses returns the sorted training labels, the column order of
// every probability output.
func (c *Classifier) GlobalClasses() []int {
	return append([]int(nil), c.globalClasses...)
}

// Records returns the local model records in focal order.
func (c *Classifier) Records() []LocalModelRecord { return c.records }

// FocalProba returns the probability of each global class at every focal
// location, predicted by the focal's own local model. Skipped focals are NaN.
func (c *Classifier) FocalProba() *mat.Dense {
	if len(c.records) == 0 {
		return nil
	}
	out := mat.NewDense(len(c.records), len(c.globalClasses), nil)
	for i, r := range c.records {
		out.SetRow(i, r.FocalProba)
	}
	return out
}

// NLabels returns the number of distinct labels in every neighbourhood.
func (c *Classifier) NLabels() []int {
	out := make([]int, len(c.records))
	for i, r := range c.records {
		out[i] = r.NLabels
	}
	return out
}

// GlobalModel returns the baseline model fitted on all data, or nil.
func (c *Classifier) GlobalModel() model.LocalEstimator { return c.globalModel }

// Performance returns the focal metrics, or nil when not measured.
func (c *Classifier) Performance() *Performance { return c.performance }

// Store returns the store holding the local models.
func (c *Classifier) Store() ModelStore { return c.store }

// LocalModel resolves the local model of focal. It returns nil for a
// skipped focal.
func (c *Classifier) LocalModel(focal int) (model.LocalEstimator, error) {
	if err := c.state.RequireFitted("GWClassifier", "LocalModel"); err != nil {
		return nil, err
	}
	if c.store.Mode() == KeepNone {
		return nil, errors.WithStack(errors.ErrModelsNotKept)
	}
	if focal < 0 || focal >= len(c.records) {
		return nil, errors.NewValidationError("focal", "out of range", focal)
	}
	return c.store.Get(c.records[focal].Model)
}
