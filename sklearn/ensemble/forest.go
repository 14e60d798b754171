// Package ensemble provides tree ensembles usable as local models.
package ensemble

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/core/parallel"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/sklearn/tree"
)

func init() {
	gob.Register(&RandomForestClassifier{})
}

// RandomForestClassifier averages decision trees grown on weighted bootstrap
// resamples. The bootstrap multiplicity of each row multiplies its sample
// weight.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2", "all" or a positive integer
	bootstrap       bool
	oobScore        bool
	randomState     int64
	nJobs           int

	estimators_  []*tree.DecisionTreeClassifier
	classes_     []int
	importances_ []float64
	oobScore_    float64
}

// RandomForestOption configures a RandomForestClassifier.
type RandomForestOption func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest of 100 unpruned gini trees.
func NewRandomForestClassifier(opts ...RandomForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
		nJobs:           1,
		oobScore_:       math.NaN(),
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithForestCriterion sets the split criterion of every tree.
func WithForestCriterion(criterion string) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithForestMaxDepth limits the depth of every tree.
func WithForestMaxDepth(depth int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithForestMinSamplesLeaf sets the minimum leaf size of every tree.
func WithForestMinSamplesLeaf(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature budget.
func WithMaxFeatures(spec string) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = spec }
}

// WithBootstrap toggles bootstrap resampling.
func WithBootstrap(on bool) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = on }
}

// WithOOBScore enables out-of-bag accuracy estimation.
func WithOOBScore(on bool) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.oobScore = on }
}

// WithForestRandomState seeds the forest.
func WithForestRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithForestNJobs sets how many trees are grown concurrently.
func WithForestNJobs(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// SetRandomState implements model.Seeder.
func (rf *RandomForestClassifier) SetRandomState(seed int64) {
	rf.randomState = seed
}

// Fit trains the forest with unit sample weights.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitWeighted(X, y, nil)
}

// FitWeighted implements model.LocalEstimator.
func (rf *RandomForestClassifier) FitWeighted(X, y mat.Matrix, w []float64) (err error) {
	const op = "RandomForestClassifier.FitWeighted"
	defer errors.Recover(&err, op)

	w, err = model.CheckFitInputs(op, X, y, w)
	if err != nil {
		return err
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", rf.nEstimators)
	}
	if rf.oobScore && !rf.bootstrap {
		return errors.NewValidationError("oob_score", "requires bootstrap", rf.oobScore)
	}
	nSamples, nFeatures := X.Dims()
	k, err := resolveMaxFeatures(rf.maxFeatures, nFeatures)
	if err != nil {
		return err
	}

	classes := model.UniqueClasses(y)
	seed := rf.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	master := rand.New(rand.NewSource(seed))

	// Seeds and resamples are drawn up front so results do not depend on
	// the number of workers.
	counts := make([][]int, rf.nEstimators)
	seeds := make([]int64, rf.nEstimators)
	for t := range counts {
		seeds[t] = master.Int63()
		counts[t] = make([]int, nSamples)
		if !rf.bootstrap {
			for i := range counts[t] {
				counts[t][i] = 1
			}
			continue
		}
		for i := 0; i < nSamples; i++ {
			counts[t][master.Intn(nSamples)]++
		}
	}

	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err = parallel.ForEach(context.Background(), parallel.Workers(rf.nJobs), rf.nEstimators,
		func(_ context.Context, t int) error {
			tw := make([]float64, nSamples)
			for i := range tw {
				tw[i] = w[i] * float64(counts[t][i])
			}
			dt := tree.NewDecisionTreeClassifier(
				tree.WithCriterion(rf.criterion),
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(k),
				tree.WithRandomState(seeds[t]),
			)
			if err := dt.FitClasses(X, y, tw, classes); err != nil {
				return err
			}
			estimators[t] = dt
			return nil
		})
	if err != nil {
		return err
	}

	rf.estimators_ = estimators
	rf.classes_ = classes
	rf.importances_ = averageImportances(nFeatures, len(estimators), func(t int) ([]float64, int) {
		return estimators[t].FeatureImportances(), estimators[t].GetNLeaves()
	})
	rf.oobScore_ = math.NaN()
	if rf.oobScore {
		rf.oobScore_ = rf.computeOOB(X, y, counts)
	}
	rf.state.SetFitted(nFeatures, nSamples)
	return nil
}

// computeOOB returns the accuracy of out-of-bag votes over the rows left out
// by at least one tree, or NaN when every row is in every bag.
func (rf *RandomForestClassifier) computeOOB(X, y mat.Matrix, counts [][]int) float64 {
	nSamples, nFeatures := X.Dims()
	row := mat.NewDense(1, nFeatures, nil)
	votes := make([]float64, len(rf.classes_))
	evaluated, correct := 0, 0
	for i := 0; i < nSamples; i++ {
		for c := range votes {
			votes[c] = 0
		}
		voted := false
		row.SetRow(0, mat.Row(nil, i, X))
		for t, est := range rf.estimators_ {
			if counts[t][i] > 0 {
				continue
			}
			proba, err := est.PredictProba(row)
			if err != nil {
				continue
			}
			for c := range votes {
				votes[c] += proba.At(0, c)
			}
			voted = true
		}
		if !voted {
			continue
		}
		evaluated++
		if rf.classes_[argmax(votes)] == int(y.At(i, 0)) {
			correct++
		}
	}
	if evaluated == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(evaluated)
}

// PredictProba returns the mean class probabilities of all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestClassifier.PredictProba", nFeatures); err != nil {
		return nil, err
	}
	out := mat.NewDense(nSamples, len(rf.classes_), nil)
	for _, est := range rf.estimators_ {
		proba, err := est.PredictProba(X)
		if err != nil {
			return nil, err
		}
		out.Add(out, proba)
	}
	out.Scale(1/float64(len(rf.estimators_)), out)
	return out, nil
}

// Predict returns the most probable class of each row.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, rf.classes_), nil
}

// Classes implements model.LocalEstimator.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// FeatureImportances implements model.FeatureImportanceProvider.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), rf.importances_...)
}

// OOBScore implements model.OOBScorer. It is NaN unless oob_score is enabled.
func (rf *RandomForestClassifier) OOBScore() float64 {
	return rf.oobScore_
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// GetParams returns the model hyperparameters
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"oob_score":         rf.oobScore,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets the model hyperparameters
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			rf.nEstimators, err = model.ParamInt(key, value)
		case "criterion":
			rf.criterion, err = model.ParamString(key, value)
		case "max_depth":
			if value == nil {
				rf.maxDepth = 0
				continue
			}
			rf.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			rf.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			rf.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			if n, intErr := model.ParamInt(key, value); intErr == nil {
				rf.maxFeatures = strconv.Itoa(n)
				continue
			}
			if value == nil {
				rf.maxFeatures = "all"
				continue
			}
			rf.maxFeatures, err = model.ParamString(key, value)
		case "bootstrap":
			rf.bootstrap, err = model.ParamBool(key, value)
		case "oob_score":
			rf.oobScore, err = model.ParamBool(key, value)
		case "random_state":
			rf.randomState, err = model.ParamInt64(key, value)
		case "n_jobs":
			rf.nJobs, err = model.ParamInt(key, value)
		default:
			return model.UnknownParam("RandomForestClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func resolveMaxFeatures(spec string, nFeatures int) (int, error) {
	var k int
	switch spec {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	case "all", "":
		k = nFeatures
	default:
		n, err := strconv.Atoi(spec)
		if err != nil || n < 1 {
			return 0, errors.NewValidationError("max_features", "must be sqrt, log2, all or a positive integer", spec)
		}
		k = n
	}
	return max(1, min(k, nFeatures)), nil
}

// averageImportances averages the normalised importances of trees that have
// at least one split, then renormalises.
func averageImportances(nFeatures, nTrees int, get func(t int) ([]float64, int)) []float64 {
	out := make([]float64, nFeatures)
	used := 0
	for t := 0; t < nTrees; t++ {
		imp, leaves := get(t)
		if leaves < 2 {
			continue
		}
		for f, v := range imp {
			out[f] += v
		}
		used++
	}
	if used == 0 {
		return out
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for f := range out {
			out[f] /= total
		}
	}
	return out
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func argmaxLabels(proba mat.Matrix, classes []int) *mat.Dense {
	n, _ := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, float64(classes[argmax(mat.Row(nil, i, proba))]))
	}
	return out
}

type forestSnapshot struct {
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	OOBEnabled      bool
	RandomState     int64
	NJobs           int
	Estimators      []*tree.DecisionTreeClassifier
	Classes         []int
	Importances     []float64
	OOBScore        float64
	Fitted          bool
	NFeatures       int
	NSamples        int
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	nFeatures, nSamples := rf.state.GetDimensions()
	snap := forestSnapshot{
		NEstimators: rf.nEstimators, Criterion: rf.criterion, MaxDepth: rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit, MinSamplesLeaf: rf.minSamplesLeaf,
		MaxFeatures: rf.maxFeatures, Bootstrap: rf.bootstrap, OOBEnabled: rf.oobScore,
		RandomState: rf.randomState, NJobs: rf.nJobs,
		Estimators: rf.estimators_, Classes: rf.classes_, Importances: rf.importances_,
		OOBScore: rf.oobScore_, Fitted: rf.state.IsFitted(), NFeatures: nFeatures, NSamples: nSamples,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var snap forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	rf.state = model.NewStateManager()
	rf.nEstimators, rf.criterion, rf.maxDepth = snap.NEstimators, snap.Criterion, snap.MaxDepth
	rf.minSamplesSplit, rf.minSamplesLeaf = snap.MinSamplesSplit, snap.MinSamplesLeaf
	rf.maxFeatures, rf.bootstrap, rf.oobScore = snap.MaxFeatures, snap.Bootstrap, snap.OOBEnabled
	rf.randomState, rf.nJobs = snap.RandomState, snap.NJobs
	rf.estimators_, rf.classes_, rf.importances_ = snap.Estimators, snap.Classes, snap.Importances
	rf.oobScore_ = snap.OOBScore
	if snap.Fitted {
		rf.state.SetFitted(snap.NFeatures, snap.NSamples)
	}
	return nil
}
