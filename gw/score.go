package gw

import (
	"math"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// ScoreData is the family-specific score payload of a local model record.
// Skipped focals carry the same shape filled with NaN or empty values.
type ScoreData interface {
	Family() Family
}

// OOBScore is the out-of-bag accuracy of a bagging ensemble.
type OOBScore struct {
	Value float64
}

// Family implements ScoreData.
func (OOBScore) Family() Family { return FamilyRandomForest }

// BoostingScore is a placeholder scalar, always NaN.
type BoostingScore struct {
	Value float64
}

// Family implements ScoreData.
func (BoostingScore) Family() Family { return FamilyGradientBoosting }

// LogisticScore holds the neighbourhood labels, the labels predicted for the
// same rows by the local model, and the local coefficients.
type LogisticScore struct {
	YTrue     []int
	YPred     []int
	Coef      []float64
	Intercept float64
}

// Family implements ScoreData.
func (LogisticScore) Family() Family { return FamilyLogistic }

// ScoreInput is what a family sees of a freshly fitted local model.
type ScoreInput struct {
	Estimator model.LocalEstimator
	// YTrue are the training labels after undersampling.
	YTrue []int
	// YPred are the arg-max labels predicted for the training rows.
	YPred []int
}

func randomForestScore(in ScoreInput) ScoreData {
	if s, ok := in.Estimator.(model.OOBScorer); ok {
		return OOBScore{Value: s.OOBScore()}
	}
	return OOBScore{Value: math.NaN()}
}

func randomForestPlaceholder(nFeatures int) (ScoreData, []float64) {
	return OOBScore{Value: math.NaN()}, errors.NaNs(nFeatures)
}

func boostingScore(ScoreInput) ScoreData {
	return BoostingScore{Value: math.NaN()}
}

func boostingPlaceholder(nFeatures int) (ScoreData, []float64) {
	return BoostingScore{Value: math.NaN()}, errors.NaNs(nFeatures)
}

func logisticScore(in ScoreInput) ScoreData {
	s := LogisticScore{
		YTrue:     append([]int(nil), in.YTrue...),
		YPred:     append([]int(nil), in.YPred...),
		Intercept: math.NaN(),
	}
	if c, ok := in.Estimator.(model.CoefficientProvider); ok {
		s.Coef = c.Coef()
		s.Intercept = c.Intercept()
	}
	return s
}

func logisticPlaceholder(nFeatures int) (ScoreData, []float64) {
	return LogisticScore{YTrue: []int{}, YPred: []int{}, Coef: errors.NaNs(nFeatures), Intercept: math.NaN()}, errors.NaNs(nFeatures)
}

func genericScore(ScoreInput) ScoreData { return nil }

func genericPlaceholder(nFeatures int) (ScoreData, []float64) { return nil, errors.NaNs(nFeatures) }
