package monitor

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.LocalModels("random_forest", 3, 2)
	r.LocalModels("random_forest", 1, 0)
	r.InvariantNeighborhoods(2)
	r.Predictions(5, 1)
	r.FocalAccuracy(0.75)
	r.FocalAccuracy(math.NaN())
	r.ObserveBatch(150 * time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(r.modelsFitted.WithLabelValues("random_forest")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.modelsSkipped.WithLabelValues("random_forest")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.invariant))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.predicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.missing))
	assert.Equal(t, 0.75, testutil.ToFloat64(r.focalAccuracy))

	n, err := testutil.GatherAndCount(reg, "gwlearn_batch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.LocalModels("logistic", 1, 1)
		r.InvariantNeighborhoods(1)
		r.ObserveBatch(time.Second)
		r.Predictions(1, 1)
		r.FocalAccuracy(1)
	})
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}
