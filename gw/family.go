package gw

import (
	"sync"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/sklearn/ensemble"
	"github.com/YuminosukeSato/gwlearn/sklearn/linear_model"
	"github.com/YuminosukeSato/gwlearn/sklearn/tree"
)

// Family names the estimator family of a ModelSpec. It selects how scores
// and placeholders are shaped.
type Family string

// Built-in families.
const (
	FamilyGeneric          Family = "generic"
	FamilyRandomForest     Family = "random_forest"
	FamilyGradientBoosting Family = "gradient_boosting"
	FamilyLogistic         Family = "logistic"
)

// FamilyBehavior is the family-specific part of local model fitting.
type FamilyBehavior struct {
	// Prepare adjusts a new estimator before it is fitted. Optional.
	Prepare func(est model.LocalEstimator) error
	// Score extracts the score payload of a fitted estimator.
	Score func(in ScoreInput) ScoreData
	// Placeholder returns the score payload and feature importances recorded
	// for a skipped focal.
	Placeholder func(nFeatures int) (ScoreData, []float64)
}

var (
	familiesMu sync.RWMutex
	families   = map[Family]FamilyBehavior{
		FamilyGeneric: {Score: genericScore, Placeholder: genericPlaceholder},
		FamilyRandomForest: {
			Prepare:     enableOOB,
			Score:       randomForestScore,
			Placeholder: randomForestPlaceholder,
		},
		FamilyGradientBoosting: {Score: boostingScore, Placeholder: boostingPlaceholder},
		FamilyLogistic:         {Score: logisticScore, Placeholder: logisticPlaceholder},
	}
)

// RegisterFamily installs or replaces the behaviour of a family. Missing
// functions fall back to the generic behaviour.
func RegisterFamily(f Family, b FamilyBehavior) {
	if b.Score == nil {
		b.Score = genericScore
	}
	if b.Placeholder == nil {
		b.Placeholder = genericPlaceholder
	}
	familiesMu.Lock()
	defer familiesMu.Unlock()
	families[f] = b
}

func behaviorOf(f Family) FamilyBehavior {
	familiesMu.RLock()
	defer familiesMu.RUnlock()
	if b, ok := families[f]; ok {
		return b
	}
	return families[FamilyGeneric]
}

// out-of-bag scoring is always on for forests since it is their score payload.
func enableOOB(est model.LocalEstimator) error {
	if setter, ok := est.(model.ParameterSetter); ok {
		return setter.SetParams(map[string]interface{}{"oob_score": true})
	}
	return nil
}

// ModelSpec describes how local models are built.
type ModelSpec struct {
	Family Family
	// New returns an unfitted estimator with default hyperparameters.
	New func() model.LocalEstimator
	// Params are applied with SetParams to every new estimator.
	Params map[string]interface{}
}

// RandomForest returns the spec of random forest local models.
func RandomForest(params map[string]interface{}) ModelSpec {
	return ModelSpec{
		Family: FamilyRandomForest,
		New:    func() model.LocalEstimator { return ensemble.NewRandomForestClassifier() },
		Params: params,
	}
}

// GradientBoosting returns the spec of gradient boosting local models.
func GradientBoosting(params map[string]interface{}) ModelSpec {
	return ModelSpec{
		Family: FamilyGradientBoosting,
		New:    func() model.LocalEstimator { return ensemble.NewGradientBoostingClassifier() },
		Params: params,
	}
}

// Logistic returns the spec of logistic regression local models.
func Logistic(params map[string]interface{}) ModelSpec {
	return ModelSpec{
		Family: FamilyLogistic,
		New:    func() model.LocalEstimator { return linear_model.NewLogisticRegression() },
		Params: params,
	}
}

// DecisionTree returns the spec of decision tree local models. Trees have no
// family-specific score.
func DecisionTree(params map[string]interface{}) ModelSpec {
	return ModelSpec{
		Family: FamilyGeneric,
		New:    func() model.LocalEstimator { return tree.NewDecisionTreeClassifier() },
		Params: params,
	}
}

// Generic wraps any estimator constructor.
func Generic(newFn func() model.LocalEstimator, params map[string]interface{}) ModelSpec {
	return ModelSpec{Family: FamilyGeneric, New: newFn, Params: params}
}

func (s ModelSpec) validate() error {
	if s.New == nil {
		return errors.NewValidationError("model", "estimator constructor is required", nil)
	}
	return nil
}

// build returns a configured, unfitted estimator.
func (s ModelSpec) build(seed *int64) (model.LocalEstimator, error) {
	est := s.New()
	if len(s.Params) > 0 {
		setter, ok := est.(model.ParameterSetter)
		if !ok {
			return nil, errors.NewValidationError("model.params", "estimator does not accept parameters", s.Params)
		}
		if err := setter.SetParams(s.Params); err != nil {
			return nil, err
		}
	}
	if prepare := behaviorOf(s.Family).Prepare; prepare != nil {
		if err := prepare(est); err != nil {
			return nil, err
		}
	}
	if seed != nil {
		if seeder, ok := est.(model.Seeder); ok {
			seeder.SetRandomState(*seed)
		}
	}
	return est, nil
}
