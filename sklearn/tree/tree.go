// Package tree implements weighted CART decision trees. The classifier is a
// local model family in its own right and both trees are the base learners of
// the ensemble package.
package tree

import (
	"bytes"
	"encoding/gob"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

func init() {
	gob.Register(&DecisionTreeClassifier{})
	gob.Register(&DecisionTreeRegressor{})
}

// params are the growth hyperparameters shared by both trees.
type params struct {
	criterion       string // "gini", "entropy" or "log_loss"; ignored by regressors
	maxDepth        int    // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int   // 0 means all features
	randomState     int64 // negative means unseeded
}

func defaultParams() params {
	return params{
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
}

func (p *params) validate() error {
	switch p.criterion {
	case "gini", "entropy", "log_loss":
	default:
		return errors.NewValidationError("criterion", "must be gini, entropy or log_loss", p.criterion)
	}
	if p.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative", p.maxDepth)
	}
	if p.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", p.minSamplesSplit)
	}
	if p.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", p.minSamplesLeaf)
	}
	if p.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be non-negative", p.maxFeatures)
	}
	return nil
}

func (p *params) rng() *rand.Rand {
	seed := p.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

func (p *params) get() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         p.criterion,
		"max_depth":         p.maxDepth,
		"min_samples_split": p.minSamplesSplit,
		"min_samples_leaf":  p.minSamplesLeaf,
		"max_features":      p.maxFeatures,
		"random_state":      p.randomState,
	}
}

func (p *params) set(modelName string, values map[string]interface{}) error {
	for key, value := range values {
		var err error
		switch key {
		case "criterion":
			p.criterion, err = model.ParamString(key, value)
		case "max_depth":
			if value == nil {
				p.maxDepth = 0
				continue
			}
			p.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			p.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			p.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			p.maxFeatures, err = model.ParamInt(key, value)
		case "random_state":
			p.randomState, err = model.ParamInt64(key, value)
		default:
			return model.UnknownParam(modelName, key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Option configures a decision tree.
type Option func(*params)

// WithCriterion sets the split quality measure of a classifier.
func WithCriterion(criterion string) Option {
	return func(p *params) { p.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. Zero means unlimited.
func WithMaxDepth(depth int) Option {
	return func(p *params) { p.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(p *params) { p.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(p *params) { p.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features examined at each split.
func WithMaxFeatures(n int) Option {
	return func(p *params) { p.maxFeatures = n }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed int64) Option {
	return func(p *params) { p.randomState = seed }
}

// DecisionTreeClassifier is a weighted CART classifier.
type DecisionTreeClassifier struct {
	params
	state *model.StateManager

	nodes        []Node
	classes_     []int
	nClasses_    int
	importances_ []float64
}

// NewDecisionTreeClassifier creates a classifier with gini splits and
// unlimited depth unless configured otherwise.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{params: defaultParams(), state: model.NewStateManager()}
	for _, opt := range opts {
		opt(&dt.params)
	}
	return dt
}

// Fit trains the tree with unit sample weights.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted implements model.LocalEstimator.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, w []float64) error {
	return dt.FitClasses(X, y, w, model.UniqueClasses(y))
}

// FitClasses trains the tree against a fixed class list so that trees grown
// on resamples share one probability layout. Labels absent from classes are
// rejected.
func (dt *DecisionTreeClassifier) FitClasses(X, y mat.Matrix, w []float64, classes []int) (err error) {
	const op = "DecisionTreeClassifier.FitWeighted"
	defer errors.Recover(&err, op)

	w, err = model.CheckFitInputs(op, X, y, w)
	if err != nil {
		return err
	}
	if err := dt.params.validate(); err != nil {
		return err
	}
	if len(classes) == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	nSamples, nFeatures := X.Dims()

	labels := make([]int, nSamples)
	for i := range labels {
		c := model.ClassIndex(classes, int(y.At(i, 0)))
		if c < 0 {
			return errors.NewValueError(op, "label is not one of the declared classes")
		}
		labels[i] = c
	}

	b := &builder{
		cfg:      dt.params,
		rng:      dt.params.rng(),
		rows:     denseRows(X),
		labels:   labels,
		w:        w,
		nClasses: len(classes),
	}
	b.grow()

	dt.nodes = b.nodes
	dt.importances_ = b.importances
	dt.classes_ = append([]int(nil), classes...)
	dt.nClasses_ = len(classes)
	dt.state.SetFitted(nFeatures, nSamples)
	return nil
}

// PredictProba returns class probabilities ordered as Classes.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeClassifier.PredictProba", nFeatures); err != nil {
		return nil, err
	}
	out := mat.NewDense(nSamples, dt.nClasses_, nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.nodes[apply(dt.nodes, row)].Value)
	}
	return out, nil
}

// Predict returns the most probable class of each row.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, dt.classes_), nil
}

// Score returns the mean accuracy on X and y. Unfitted trees score 0.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := X.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// Classes implements model.LocalEstimator.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// FeatureImportances returns the normalised weighted impurity decrease of
// every feature.
func (dt *DecisionTreeClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), dt.importances_...)
}

// GetFeatureImportances is an alias of FeatureImportances.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return dt.FeatureImportances()
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return depthOf(dt.nodes, 0)
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return countLeaves(dt.nodes)
}

// GetParams returns the model hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return dt.params.get()
}

// SetParams sets the model hyperparameters
func (dt *DecisionTreeClassifier) SetParams(values map[string]interface{}) error {
	return dt.params.set("DecisionTreeClassifier", values)
}

// SetRandomState implements model.Seeder.
func (dt *DecisionTreeClassifier) SetRandomState(seed int64) {
	dt.randomState = seed
}

// DecisionTreeRegressor is a weighted CART regressor minimising squared error.
type DecisionTreeRegressor struct {
	params
	state *model.StateManager

	nodes        []Node
	importances_ []float64
}

// NewDecisionTreeRegressor creates a regressor.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{params: defaultParams(), state: model.NewStateManager()}
	for _, opt := range opts {
		opt(&dt.params)
	}
	return dt
}

// FitWeighted grows the tree on continuous targets with sample weights w.
func (dt *DecisionTreeRegressor) FitWeighted(X mat.Matrix, target, w []float64) (err error) {
	const op = "DecisionTreeRegressor.FitWeighted"
	defer errors.Recover(&err, op)

	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	if len(target) != nSamples {
		return errors.NewDimensionError(op, nSamples, len(target), 0)
	}
	w, err = model.CheckFitInputs(op, X, mat.NewVecDense(nSamples, target), w)
	if err != nil {
		return err
	}
	dt.criterion = "gini"
	if err := dt.params.validate(); err != nil {
		return err
	}

	b := &builder{
		cfg:        dt.params,
		rng:        dt.params.rng(),
		rows:       denseRows(X),
		targets:    target,
		w:          w,
		regression: true,
	}
	b.grow()

	dt.nodes = b.nodes
	dt.importances_ = b.importances
	dt.state.SetFitted(nFeatures, nSamples)
	return nil
}

// PredictRow returns the prediction for one feature vector.
func (dt *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	return dt.nodes[apply(dt.nodes, x)].Value[0]
}

// Predict returns one prediction per row of X.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) ([]float64, error) {
	if err := dt.state.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeRegressor.Predict", nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, nSamples)
	row := make([]float64, nFeatures)
	for i := range out {
		mat.Row(row, i, X)
		out[i] = dt.PredictRow(row)
	}
	return out, nil
}

// Apply returns the index of the leaf reached by x.
func (dt *DecisionTreeRegressor) Apply(x []float64) int {
	return apply(dt.nodes, x)
}

// SetLeafValue overrides the prediction stored in a leaf. Boosting uses it to
// replace mean residuals with Newton steps.
func (dt *DecisionTreeRegressor) SetLeafValue(leaf int, v float64) {
	dt.nodes[leaf].Value[0] = v
}

// FeatureImportances returns the normalised weighted variance reduction of
// every feature.
func (dt *DecisionTreeRegressor) FeatureImportances() []float64 {
	return append([]float64(nil), dt.importances_...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	return depthOf(dt.nodes, 0)
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	return countLeaves(dt.nodes)
}

func denseRows(X mat.Matrix) [][]float64 {
	n, f := X.Dims()
	backing := make([]float64, n*f)
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = backing[i*f : (i+1)*f : (i+1)*f]
		mat.Row(rows[i], i, X)
	}
	return rows
}

func argmaxLabels(proba mat.Matrix, classes []int) *mat.Dense {
	n, k := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		for c := 1; c < k; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}

// treeSnapshot is the gob wire form of both tree kinds.
type treeSnapshot struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64
	Nodes           []Node
	Classes         []int
	Importances     []float64
	Fitted          bool
	NFeatures       int
	NSamples        int
}

func encodeTree(p params, state *model.StateManager, nodes []Node, classes []int, imp []float64) ([]byte, error) {
	if state == nil {
		state = model.NewStateManager()
	}
	nFeatures, nSamples := state.GetDimensions()
	snap := treeSnapshot{
		Criterion: p.criterion, MaxDepth: p.maxDepth, MinSamplesSplit: p.minSamplesSplit,
		MinSamplesLeaf: p.minSamplesLeaf, MaxFeatures: p.maxFeatures, RandomState: p.randomState,
		Nodes: nodes, Classes: classes, Importances: imp,
		Fitted: state.IsFitted(), NFeatures: nFeatures, NSamples: nSamples,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTree(data []byte) (params, *model.StateManager, treeSnapshot, error) {
	var snap treeSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return params{}, nil, snap, err
	}
	p := params{
		criterion: snap.Criterion, maxDepth: snap.MaxDepth, minSamplesSplit: snap.MinSamplesSplit,
		minSamplesLeaf: snap.MinSamplesLeaf, maxFeatures: snap.MaxFeatures, randomState: snap.RandomState,
	}
	state := model.NewStateManager()
	if snap.Fitted {
		state.SetFitted(snap.NFeatures, snap.NSamples)
	}
	return p, state, snap, nil
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	return encodeTree(dt.params, dt.state, dt.nodes, dt.classes_, dt.importances_)
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	p, state, snap, err := decodeTree(data)
	if err != nil {
		return err
	}
	dt.params, dt.state = p, state
	dt.nodes, dt.classes_, dt.importances_ = snap.Nodes, snap.Classes, snap.Importances
	dt.nClasses_ = len(snap.Classes)
	return nil
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeRegressor) GobEncode() ([]byte, error) {
	return encodeTree(dt.params, dt.state, dt.nodes, nil, dt.importances_)
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeRegressor) GobDecode(data []byte) error {
	p, state, snap, err := decodeTree(data)
	if err != nil {
		return err
	}
	dt.params, dt.state = p, state
	dt.nodes, dt.importances_ = snap.Nodes, snap.Importances
	return nil
}
