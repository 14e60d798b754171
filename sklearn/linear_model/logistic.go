// Package linear_model provides linear estimators that can serve as local
// models of a geographically weighted ensemble.
package linear_model

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

func init() {
	gob.Register(&LogisticRegression{})
}

// LogisticRegression is a binary L2-regularised logistic regression fitted by
// Newton iterations on the sample-weighted log loss.
//
// The objective is C Σ wᵢ lossᵢ + ½‖β‖², evaluated as
// Σ wᵢ lossᵢ / Σ wᵢ + ‖β‖² / (2 C Σ wᵢ).
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	randomState  int64 // negative means unseeded
	maxIter      int
	tol          float64
	verbose      int

	// Model parameters
	coef_      []float64
	intercept_ float64
	classes_   []int
	nIter_     int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		randomState:  -1,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type ("l2" or "none")
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

// WithLRVerbose enables convergence warnings
func WithLRVerbose(level int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.verbose = level
	}
}

// SetRandomState implements model.Seeder.
func (lr *LogisticRegression) SetRandomState(seed int64) {
	lr.randomState = seed
}

// Fit trains the model with unit sample weights.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	return lr.FitWeighted(X, y, nil)
}

// FitWeighted trains the model with sample weights w.
func (lr *LogisticRegression) FitWeighted(X, y mat.Matrix, w []float64) (err error) {
	defer errors.Recover(&err, "LogisticRegression.FitWeighted")

	w, err = model.CheckFitInputs("LogisticRegression.FitWeighted", X, y, w)
	if err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()

	lr.classes_ = model.UniqueClasses(y)
	if len(lr.classes_) != 2 {
		return errors.NewValueError("LogisticRegression.FitWeighted",
			"binary logistic regression needs exactly 2 classes in the data")
	}
	w, sumW := model.UniformIfZero(w)
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}

	yBinary := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		if int(y.At(i, 0)) == lr.classes_[1] {
			yBinary[i] = 1
		}
	}

	lr.initializeWeights(nFeatures)
	if err := lr.newton(X, yBinary, w, sumW); err != nil {
		return err
	}
	lr.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	seed := lr.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	lr.coef_ = make([]float64, nFeatures)
	for j := range lr.coef_ {
		lr.coef_[j] = rng.NormFloat64() * 0.01
	}
	lr.intercept_ = 0
}

// newton minimises the scaled objective with Newton steps (IRLS). The
// intercept is the last parameter and is not penalised.
func (lr *LogisticRegression) newton(X mat.Matrix, y, w []float64, sumW float64) error {
	nSamples, nFeatures := X.Dims()
	lambda := 0.0
	if lr.penalty == "l2" {
		lambda = 1.0 / (lr.C * sumW)
	}
	nParams := nFeatures + 1

	grad := mat.NewVecDense(nParams, nil)
	hess := mat.NewSymDense(nParams, nil)
	step := mat.NewVecDense(nParams, nil)
	row := make([]float64, nFeatures)
	ext := make([]float64, nParams)
	ext[nFeatures] = 1

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		grad.Zero()
		hess.Zero()
		for i := 0; i < nSamples; i++ {
			mat.Row(row, i, X)
			copy(ext, row)
			p := sigmoid(lr.intercept_ + floats.Dot(row, lr.coef_))
			e := w[i] * (p - y[i]) / sumW
			s := w[i] * p * (1 - p) / sumW
			for a := 0; a < nParams; a++ {
				grad.SetVec(a, grad.AtVec(a)+e*ext[a])
				for b := a; b < nParams; b++ {
					hess.SetSym(a, b, hess.At(a, b)+s*ext[a]*ext[b])
				}
			}
		}
		for j := 0; j < nFeatures; j++ {
			grad.SetVec(j, grad.AtVec(j)+lambda*lr.coef_[j])
			hess.SetSym(j, j, hess.At(j, j)+lambda+1e-10)
		}
		hess.SetSym(nFeatures, nFeatures, hess.At(nFeatures, nFeatures)+1e-10)
		if !lr.fitIntercept {
			grad.SetVec(nFeatures, 0)
			for a := 0; a < nFeatures; a++ {
				hess.SetSym(a, nFeatures, 0)
			}
			hess.SetSym(nFeatures, nFeatures, 1)
		}

		if err := step.SolveVec(hess, grad); err != nil {
			return errors.NewModelError("LogisticRegression.FitWeighted", "singular Hessian", err)
		}
		for j := 0; j < nFeatures; j++ {
			lr.coef_[j] -= step.AtVec(j)
		}
		if lr.fitIntercept {
			lr.intercept_ -= step.AtVec(nFeatures)
		}
		lr.nIter_ = iter + 1

		maxStep := floats.Norm(step.RawVector().Data, math.Inf(1))
		if math.IsNaN(maxStep) {
			return errors.NewModelError("LogisticRegression.FitWeighted", "Newton step became NaN", nil)
		}
		if maxStep < lr.tol {
			converged = true
			break
		}
	}
	if !converged && lr.verbose > 0 {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter, ""))
	}
	return nil
}

// Predict returns the most probable class of each row.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := proba.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		label := lr.classes_[0]
		if proba.At(i, 1) >= 0.5 {
			label = lr.classes_[1]
		}
		predictions.Set(i, 0, float64(label))
	}
	return predictions, nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.state.RequireFeatures("LogisticRegression.PredictProba", nFeatures); err != nil {
		return nil, err
	}

	probas := mat.NewDense(nSamples, 2, nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		prob1 := sigmoid(lr.intercept_ + floats.Dot(row, lr.coef_))
		probas.Set(i, 0, 1.0-prob1)
		probas.Set(i, 1, prob1)
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples), nil
}

// Classes implements model.LocalEstimator.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// Coef returns the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef_...)
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept_
}

// NIter returns the number of iterations run by the last fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"verbose":       lr.verbose,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ParamString(key, value)
		case "C":
			lr.C, err = model.ParamFloat(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = model.ParamBool(key, value)
		case "random_state":
			lr.randomState, err = model.ParamInt64(key, value)
		case "max_iter":
			lr.maxIter, err = model.ParamInt(key, value)
		case "tol":
			lr.tol, err = model.ParamFloat(key, value)
		case "verbose":
			lr.verbose, err = model.ParamInt(key, value)
		default:
			return model.UnknownParam("LogisticRegression", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// logisticSnapshot is the gob wire form of a fitted LogisticRegression.
type logisticSnapshot struct {
	Penalty      string
	C            float64
	FitIntercept bool
	RandomState  int64
	MaxIter      int
	Tol          float64
	Coef         []float64
	Intercept    float64
	Classes      []int
	NIter        int
	Fitted       bool
	NFeatures    int
	NSamples     int
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	nFeatures, nSamples := lr.state.GetDimensions()
	snap := logisticSnapshot{
		Penalty: lr.penalty, C: lr.C, FitIntercept: lr.fitIntercept,
		RandomState: lr.randomState, MaxIter: lr.maxIter, Tol: lr.tol,
		Coef: lr.coef_, Intercept: lr.intercept_, Classes: lr.classes_, NIter: lr.nIter_,
		Fitted: lr.state.IsFitted(), NFeatures: nFeatures, NSamples: nSamples,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var snap logisticSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	lr.state = model.NewStateManager()
	lr.penalty, lr.C, lr.fitIntercept = snap.Penalty, snap.C, snap.FitIntercept
	lr.randomState, lr.maxIter, lr.tol = snap.RandomState, snap.MaxIter, snap.Tol
	lr.coef_, lr.intercept_, lr.classes_, lr.nIter_ = snap.Coef, snap.Intercept, snap.Classes, snap.NIter
	if snap.Fitted {
		lr.state.SetFitted(snap.NFeatures, snap.NSamples)
	}
	return nil
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}
