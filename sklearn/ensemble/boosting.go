package ensemble

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/sklearn/tree"
)

func init() {
	gob.Register(&GradientBoostingClassifier{})
}

// GradientBoostingClassifier is a binary log-loss gradient boosting model.
// Each stage fits a weighted regression tree to the negative gradient and
// replaces its leaf values with one Newton step.
type GradientBoostingClassifier struct {
	state *model.StateManager

	nEstimators     int
	learningRate    float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	subsample       float64
	randomState     int64

	estimators_  []*tree.DecisionTreeRegressor
	init_        float64 // prior log-odds
	classes_     []int
	importances_ []float64
}

// GradientBoostingOption configures a GradientBoostingClassifier.
type GradientBoostingOption func(*GradientBoostingClassifier)

// NewGradientBoostingClassifier creates a model with 100 depth-3 stages and
// learning rate 0.1.
func NewGradientBoostingClassifier(opts ...GradientBoostingOption) *GradientBoostingClassifier {
	gb := &GradientBoostingClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		learningRate:    0.1,
		maxDepth:        3,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		subsample:       1.0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// WithStages sets the number of boosting stages.
func WithStages(n int) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.nEstimators = n }
}

// WithLearningRate shrinks the contribution of every stage.
func WithLearningRate(rate float64) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.learningRate = rate }
}

// WithBoostingMaxDepth limits the depth of every stage tree.
func WithBoostingMaxDepth(depth int) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.maxDepth = depth }
}

// WithSubsample fits each stage on a random fraction of the rows.
func WithSubsample(fraction float64) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.subsample = fraction }
}

// WithBoostingRandomState seeds row subsampling.
func WithBoostingRandomState(seed int64) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.randomState = seed }
}

// SetRandomState implements model.Seeder.
func (gb *GradientBoostingClassifier) SetRandomState(seed int64) {
	gb.randomState = seed
}

// Fit trains the model with unit sample weights.
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	return gb.FitWeighted(X, y, nil)
}

// FitWeighted implements model.LocalEstimator.
func (gb *GradientBoostingClassifier) FitWeighted(X, y mat.Matrix, w []float64) (err error) {
	const op = "GradientBoostingClassifier.FitWeighted"
	defer errors.Recover(&err, op)

	w, err = model.CheckFitInputs(op, X, y, w)
	if err != nil {
		return err
	}
	switch {
	case gb.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be positive", gb.nEstimators)
	case gb.learningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", gb.learningRate)
	case gb.subsample <= 0 || gb.subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", gb.subsample)
	}
	nSamples, nFeatures := X.Dims()
	classes := model.UniqueClasses(y)
	if len(classes) != 2 {
		return errors.NewValueError(op, "binary gradient boosting needs exactly 2 classes in the data")
	}
	w, sumW := model.UniformIfZero(w)

	target := make([]float64, nSamples)
	rows := make([][]float64, nSamples)
	positive := 0.0
	for i := range target {
		if int(y.At(i, 0)) == classes[1] {
			target[i] = 1
			positive += w[i]
		}
		rows[i] = mat.Row(nil, i, X)
	}
	prior := errors.ClipValue(positive/sumW, 1e-15, 1-1e-15)
	gb.init_ = math.Log(prior / (1 - prior))

	seed := gb.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	raw := make([]float64, nSamples)
	for i := range raw {
		raw[i] = gb.init_
	}
	residual := make([]float64, nSamples)
	stageW := make([]float64, nSamples)
	estimators := make([]*tree.DecisionTreeRegressor, 0, gb.nEstimators)
	for m := 0; m < gb.nEstimators; m++ {
		for i := range residual {
			residual[i] = target[i] - sigmoid(raw[i])
		}
		copy(stageW, w)
		if gb.subsample < 1 {
			for i := range stageW {
				if rng.Float64() >= gb.subsample {
					stageW[i] = 0
				}
			}
		}

		stage := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(gb.maxDepth),
			tree.WithMinSamplesSplit(gb.minSamplesSplit),
			tree.WithMinSamplesLeaf(gb.minSamplesLeaf),
			tree.WithRandomState(rng.Int63()),
		)
		if err := stage.FitWeighted(X, residual, stageW); err != nil {
			return err
		}
		gb.newtonLeaves(stage, rows, residual, raw, stageW)
		for i, row := range rows {
			raw[i] += gb.learningRate * stage.PredictRow(row)
		}
		estimators = append(estimators, stage)
	}

	gb.estimators_ = estimators
	gb.classes_ = classes
	gb.importances_ = averageImportances(nFeatures, len(estimators), func(t int) ([]float64, int) {
		return estimators[t].FeatureImportances(), estimators[t].GetNLeaves()
	})
	gb.state.SetFitted(nFeatures, nSamples)
	return nil
}

// newtonLeaves sets each leaf to Σ w·r / Σ w·p(1−p) over its in-bag rows.
func (gb *GradientBoostingClassifier) newtonLeaves(stage *tree.DecisionTreeRegressor, rows [][]float64, residual, raw, w []float64) {
	num := make(map[int]float64)
	den := make(map[int]float64)
	for i, row := range rows {
		if w[i] <= 0 {
			continue
		}
		leaf := stage.Apply(row)
		p := sigmoid(raw[i])
		num[leaf] += w[i] * residual[i]
		den[leaf] += w[i] * p * (1 - p)
	}
	for leaf, n := range num {
		stage.SetLeafValue(leaf, errors.SafeDivide(n, den[leaf]))
	}
}

// PredictProba returns [P(classes[0]), P(classes[1])] for each row.
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := gb.state.RequireFitted("GradientBoostingClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := gb.state.RequireFeatures("GradientBoostingClassifier.PredictProba", nFeatures); err != nil {
		return nil, err
	}
	out := mat.NewDense(nSamples, 2, nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		raw := gb.init_
		for _, stage := range gb.estimators_ {
			raw += gb.learningRate * stage.PredictRow(row)
		}
		p := sigmoid(raw)
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Predict returns the most probable class of each row.
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, gb.classes_), nil
}

// Classes implements model.LocalEstimator.
func (gb *GradientBoostingClassifier) Classes() []int {
	return append([]int(nil), gb.classes_...)
}

// FeatureImportances implements model.FeatureImportanceProvider.
func (gb *GradientBoostingClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), gb.importances_...)
}

// GetParams returns the model hyperparameters
func (gb *GradientBoostingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      gb.nEstimators,
		"learning_rate":     gb.learningRate,
		"max_depth":         gb.maxDepth,
		"min_samples_split": gb.minSamplesSplit,
		"min_samples_leaf":  gb.minSamplesLeaf,
		"subsample":         gb.subsample,
		"random_state":      gb.randomState,
	}
}

// SetParams sets the model hyperparameters
func (gb *GradientBoostingClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			gb.nEstimators, err = model.ParamInt(key, value)
		case "learning_rate":
			gb.learningRate, err = model.ParamFloat(key, value)
		case "max_depth":
			gb.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			gb.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			gb.minSamplesLeaf, err = model.ParamInt(key, value)
		case "subsample":
			gb.subsample, err = model.ParamFloat(key, value)
		case "random_state":
			gb.randomState, err = model.ParamInt64(key, value)
		default:
			return model.UnknownParam("GradientBoostingClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + errors.StabilizeExp(-z))
}

type boostingSnapshot struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	RandomState     int64
	Estimators      []*tree.DecisionTreeRegressor
	Init            float64
	Classes         []int
	Importances     []float64
	Fitted          bool
	NFeatures       int
	NSamples        int
}

// GobEncode implements gob.GobEncoder.
func (gb *GradientBoostingClassifier) GobEncode() ([]byte, error) {
	if gb.state == nil {
		gb.state = model.NewStateManager()
	}
	nFeatures, nSamples := gb.state.GetDimensions()
	snap := boostingSnapshot{
		NEstimators: gb.nEstimators, LearningRate: gb.learningRate, MaxDepth: gb.maxDepth,
		MinSamplesSplit: gb.minSamplesSplit, MinSamplesLeaf: gb.minSamplesLeaf,
		Subsample: gb.subsample, RandomState: gb.randomState,
		Estimators: gb.estimators_, Init: gb.init_, Classes: gb.classes_, Importances: gb.importances_,
		Fitted: gb.state.IsFitted(), NFeatures: nFeatures, NSamples: nSamples,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (gb *GradientBoostingClassifier) GobDecode(data []byte) error {
	var snap boostingSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	gb.state = model.NewStateManager()
	gb.nEstimators, gb.learningRate, gb.maxDepth = snap.NEstimators, snap.LearningRate, snap.MaxDepth
	gb.minSamplesSplit, gb.minSamplesLeaf = snap.MinSamplesSplit, snap.MinSamplesLeaf
	gb.subsample, gb.randomState = snap.Subsample, snap.RandomState
	gb.estimators_, gb.init_, gb.classes_, gb.importances_ = snap.Estimators, snap.Init, snap.Classes, snap.Importances
	if snap.Fitted {
		gb.state.SetFitted(snap.NFeatures, snap.NSamples)
	}
	return nil
}
