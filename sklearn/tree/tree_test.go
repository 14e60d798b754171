package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// separable is two clusters, class 0 at the lower left and class 1 at the
// upper right.
func separable() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

func TestDecisionTreeClassifier_Criteria(t *testing.T) {
	X, y := separable()
	for _, criterion := range []string{"gini", "entropy", "log_loss"} {
		t.Run(criterion, func(t *testing.T) {
			dt := NewDecisionTreeClassifier(WithCriterion(criterion), WithMaxDepth(3))
			require.NoError(t, dt.Fit(X, y))
			assert.Equal(t, 1.0, dt.Score(X, y))

			pred, err := dt.Predict(mat.NewDense(2, 2, []float64{0.5, 0.5, 2.5, 2.5}))
			require.NoError(t, err)
			assert.Equal(t, 0.0, pred.At(0, 0))
			assert.Equal(t, 1.0, pred.At(1, 0))
		})
	}
}

func TestDecisionTreeClassifier_ProbaRowsSumToOne(t *testing.T) {
	X, y := separable()
	dt := NewDecisionTreeClassifier(WithMaxDepth(1))
	require.NoError(t, dt.FitWeighted(X, y, []float64{1, 2, 1, 0.5, 0.5, 3}))

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	require.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-12)
	}
	assert.Equal(t, []int{0, 1}, dt.Classes())
}

func TestDecisionTreeClassifier_XOR(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0.0, 0.0,
		0.0, 0.1,
		0.1, 1.0,
		0.0, 0.9,
		1.0, 0.0,
		0.9, 0.0,
		1.0, 1.0,
		0.9, 0.9,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 1, 1, 1, 1, 0, 0})

	dt := NewDecisionTreeClassifier(WithMaxDepth(5))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1.0, dt.Score(X, y))
	assert.LessOrEqual(t, dt.GetDepth(), 5)
}

func TestDecisionTreeClassifier_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0, 0, 1, 1, 0,
		3, 3, 3, 4, 4, 3,
		6, 6, 6, 7, 7, 6,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 3, dt.nClasses_)
	assert.Equal(t, 1.0, dt.Score(X, y))

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		row := mat.Row(nil, i, proba)
		assert.InDelta(t, 1.0, row[0]+row[1]+row[2], 1e-12)
		assert.Equal(t, 1.0, row[int(y.At(i, 0))], "row %d", i)
	}
}

func TestDecisionTreeClassifier_FeatureImportances(t *testing.T) {
	// only the first feature carries the label
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 1, 1,
		0, 0, 1,
		0, 1, 0,
		1, 0, 0,
		1, 1, 1,
		1, 0, 1,
		1, 1, 0,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	imp := dt.GetFeatureImportances()
	require.Len(t, imp, 3)
	assert.InDelta(t, 1.0, imp[0]+imp[1]+imp[2], 1e-12)
	assert.Greater(t, imp[0], imp[1])
	assert.Greater(t, imp[0], imp[2])
}

func TestDecisionTreeClassifier_GrowthLimits(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	shallow := NewDecisionTreeClassifier(WithMaxDepth(2))
	require.NoError(t, shallow.Fit(X, y))
	assert.LessOrEqual(t, shallow.GetDepth(), 2)

	coarse := NewDecisionTreeClassifier(WithMinSamplesSplit(5), WithMinSamplesLeaf(2))
	require.NoError(t, coarse.Fit(X, y))
	assert.LessOrEqual(t, coarse.GetNLeaves(), 8)
}

func TestDecisionTreeClassifier_Params(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	params := dt.GetParams()
	assert.Equal(t, "gini", params["criterion"])
	assert.Equal(t, 2, params["min_samples_split"])

	require.NoError(t, dt.SetParams(map[string]interface{}{
		"criterion":         "entropy",
		"max_depth":         5,
		"min_samples_split": 4,
		"min_samples_leaf":  2,
	}))
	assert.Equal(t, "entropy", dt.criterion)
	assert.Equal(t, 5, dt.maxDepth)
	assert.Equal(t, 4, dt.minSamplesSplit)
	assert.Equal(t, 2, dt.minSamplesLeaf)
}

func TestDecisionTreeClassifier_NotFitted(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_, err := dt.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
	_, err = dt.PredictProba(X)
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, 0.0, dt.Score(X, mat.NewDense(2, 1, nil)))
}
