package gw

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/metrics"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// Performance holds classification metrics of the focal predictions, that
// is of each training point predicted by the local model it was left out
// of. Focals without a probability are not counted. All values are NaN
// when no focal could be evaluated. AUC and LogLoss are computed on the
// probability of the positive class rather than the thresholded label; AUC
// is NaN when the evaluated focals hold a single class.
type Performance struct {
	// Evaluated is the number of focals the metrics are computed on.
	Evaluated        int
	Accuracy         float64
	Precision        float64
	Recall           float64
	BalancedAccuracy float64
	F1Macro          float64
	F1Micro          float64
	F1Weighted       float64
	AUC              float64
	LogLoss          float64
}

func nanPerformance() *Performance {
	nan := math.NaN()
	return &Performance{
		Accuracy: nan, Precision: nan, Recall: nan, BalancedAccuracy: nan,
		F1Macro: nan, F1Micro: nan, F1Weighted: nan,
		AUC: nan, LogLoss: nan,
	}
}

// focalPerformance thresholds the probability of the positive class at 0.5.
func focalPerformance(records []LocalModelRecord, y []int, positive int) (*Performance, error) {
	var yTrue, yPred, yProba []float64
	for i, r := range records {
		p := r.FocalProba[positive]
		if math.IsNaN(p) {
			continue
		}
		yTrue = append(yTrue, float64(y[i]))
		yProba = append(yProba, p)
		if p > 0.5 {
			yPred = append(yPred, 1)
		} else {
			yPred = append(yPred, 0)
		}
	}
	if len(yTrue) == 0 {
		return nanPerformance(), nil
	}

	t := mat.NewVecDense(len(yTrue), yTrue)
	p := mat.NewVecDense(len(yPred), yPred)
	perf := &Performance{Evaluated: len(yTrue)}
	var err error
	if perf.Accuracy, err = metrics.Accuracy(t, p); err != nil {
		return nil, err
	}
	if perf.Precision, err = metrics.Precision(t, p); err != nil {
		return nil, err
	}
	if perf.Recall, err = metrics.Recall(t, p); err != nil {
		return nil, err
	}
	if perf.BalancedAccuracy, err = metrics.BalancedAccuracy(t, p); err != nil {
		return nil, err
	}
	if perf.F1Macro, err = metrics.F1Score(t, p, metrics.AverageMacro); err != nil {
		return nil, err
	}
	if perf.F1Micro, err = metrics.F1Score(t, p, metrics.AverageMicro); err != nil {
		return nil, err
	}
	if perf.F1Weighted, err = metrics.F1Score(t, p, metrics.AverageWeighted); err != nil {
		return nil, err
	}
	proba := mat.NewVecDense(len(yProba), yProba)
	if floats.Min(yTrue) == floats.Max(yTrue) {
		perf.AUC = math.NaN()
		errors.Warn(errors.NewUndefinedMetricWarning("AUC",
			"only one class is present among the evaluated focals", perf.AUC))
	} else if perf.AUC, err = metrics.AUC(t, proba); err != nil {
		return nil, err
	}
	if perf.LogLoss, err = metrics.BinaryLogLoss(t, proba); err != nil {
		return nil, err
	}
	return perf, nil
}
