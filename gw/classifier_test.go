package gw

import (
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gwlearn/kernel"
	"github.com/YuminosukeSato/gwlearn/monitor"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

func TestFitLogsAndRecords(t *testing.T) {
	X, y, g := line()
	logger, buf := log.NewTestLogger(log.LevelDebug)
	reg := prometheus.NewRegistry()

	clf := New(priorSpec(), 2,
		WithFixed(true),
		WithKernel(kernel.Triangular),
		WithKeepModels(true),
		WithBatchSize(2),
		WithVerbose(true),
		WithLogger(logger),
		WithRecorder(monitor.NewRecorder(reg)),
	)
	require.NoError(t, clf.Fit(X, y, g))

	out := buf.String()
	assert.Contains(t, out, "Processing batch")
	assert.Contains(t, out, "Fitted local models")
	assert.Contains(t, out, clf.ID())
	assert.Equal(t, 3, strings.Count(out, "Processing batch"))

	_, err := clf.PredictProba(X, g)
	require.NoError(t, err)

	expected := `
# HELP gwlearn_local_models_fitted_total Number of local models fitted, by model family
# TYPE gwlearn_local_models_fitted_total counter
gwlearn_local_models_fitted_total{family="generic"} 4
# HELP gwlearn_local_models_skipped_total Number of focal locations skipped by the invariance or minority guard
# TYPE gwlearn_local_models_skipped_total counter
gwlearn_local_models_skipped_total{family="generic"} 1
# HELP gwlearn_invariant_neighborhoods_total Number of neighbourhoods whose labels take a single value
# TYPE gwlearn_invariant_neighborhoods_total counter
gwlearn_invariant_neighborhoods_total 1
# HELP gwlearn_predictions_total Number of query points that received a probability row
# TYPE gwlearn_predictions_total counter
gwlearn_predictions_total 5
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"gwlearn_local_models_fitted_total",
		"gwlearn_local_models_skipped_total",
		"gwlearn_invariant_neighborhoods_total",
		"gwlearn_predictions_total",
	))
}

func TestPerformance(t *testing.T) {
	nan := math.NaN()
	records := []LocalModelRecord{
		{FocalProba: []float64{0.2, 0.8}},
		{FocalProba: []float64{0.7, 0.3}},
		{FocalProba: []float64{nan, nan}},
		{FocalProba: []float64{0.4, 0.6}},
	}
	perf, err := focalPerformance(records, []int{1, 0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, perf.Evaluated)
	assert.InDelta(t, 2.0/3, perf.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, perf.Precision, 1e-12)
	assert.InDelta(t, 1.0, perf.Recall, 1e-12)
	assert.InDelta(t, 0.75, perf.BalancedAccuracy, 1e-12)
	assert.InDelta(t, 2.0/3, perf.F1Micro, 1e-12)
	// positives score 0.8 against negatives 0.3 and 0.6
	assert.InDelta(t, 1.0, perf.AUC, 1e-12)
	assert.InDelta(t, -(math.Log(0.8)+math.Log(0.7)+math.Log(0.4))/3, perf.LogLoss, 1e-12)

	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(error) {})
	perf, err = focalPerformance(records[:2], []int{1, 1}, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(perf.AUC))
	assert.Equal(t, 1.0, perf.Recall)
	require.Len(t, warned, 1)
	var uw *errors.UndefinedMetricWarning
	assert.True(t, errors.As(warned[0], &uw))

	perf, err = focalPerformance(records[2:3], []int{1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, perf.Evaluated)
	assert.True(t, math.IsNaN(perf.Accuracy))
	assert.True(t, math.IsNaN(perf.AUC))
}

func TestMeasurePerformanceDisabled(t *testing.T) {
	X, y, g := line()
	clf := New(priorSpec(), 2, WithFixed(true), WithMeasurePerformance(false), WithFitGlobalModel(false), quiet())
	require.NoError(t, clf.Fit(X, y, g))
	assert.Nil(t, clf.Performance())
	assert.Nil(t, clf.GlobalModel())
	assert.True(t, clf.IsFitted())
}
