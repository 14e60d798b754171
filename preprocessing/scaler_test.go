package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	s := NewStandardScaler(true, true)
	Z, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{2.5, 5}, s.Mean, 1e-12)
	// population std of 1..4 is sqrt(1.25); the constant column keeps scale 1
	assert.InDelta(t, 1.118033988749895, s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1])
	assert.InDelta(t, -1.3416407864998738, Z.At(0, 0), 1e-12)
	assert.Equal(t, 0.0, Z.At(2, 1))

	back, err := s.InverseTransform(Z)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
	assert.Contains(t, s.String(), "n_features=2")
}

func TestStandardScalerWithoutMean(t *testing.T) {
	s := NewStandardScaler(false, true)
	Z, err := s.FitTransform(mat.NewDense(2, 1, []float64{2, 4}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Mean[0])
	assert.InDelta(t, 2.0, Z.At(0, 0), 1e-12)
	assert.Equal(t, false, s.GetParams()["with_mean"])
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScaler(true, true)
	_, err := s.Transform(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
