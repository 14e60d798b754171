// Package monitor exposes Prometheus instrumentation for geographically
// weighted fits and predictions.
package monitor

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the collectors of one registry. A nil *Recorder is valid and
// records nothing, so callers never need to guard their calls.
type Recorder struct {
	modelsFitted  *prometheus.CounterVec
	modelsSkipped *prometheus.CounterVec
	invariant     prometheus.Counter
	batchDuration prometheus.Histogram
	predicted     prometheus.Counter
	missing       prometheus.Counter
	focalAccuracy prometheus.Gauge
}

// NewRecorder registers the gwlearn collectors with reg. Passing nil uses the
// default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		modelsFitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwlearn_local_models_fitted_total",
			Help: "Number of local models fitted, by model family",
		}, []string{"family"}),
		modelsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gwlearn_local_models_skipped_total",
			Help: "Number of focal locations skipped by the invariance or minority guard",
		}, []string{"family"}),
		invariant: factory.NewCounter(prometheus.CounterOpts{
			Name: "gwlearn_invariant_neighborhoods_total",
			Help: "Number of neighbourhoods whose labels take a single value",
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gwlearn_batch_duration_seconds",
			Help:    "Wall time of one batch of local model fits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		predicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gwlearn_predictions_total",
			Help: "Number of query points that received a probability row",
		}),
		missing: factory.NewCounter(prometheus.CounterOpts{
			Name: "gwlearn_predictions_missing_total",
			Help: "Number of query points left without any usable local model",
		}),
		focalAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gwlearn_focal_accuracy",
			Help: "Accuracy of the focal predictions of the last fit",
		}),
	}
}

// LocalModels records the outcome counts of one batch.
func (r *Recorder) LocalModels(family string, fitted, skipped int) {
	if r == nil {
		return
	}
	r.modelsFitted.WithLabelValues(family).Add(float64(fitted))
	r.modelsSkipped.WithLabelValues(family).Add(float64(skipped))
}

// InvariantNeighborhoods adds n invariant neighbourhoods.
func (r *Recorder) InvariantNeighborhoods(n int) {
	if r == nil {
		return
	}
	r.invariant.Add(float64(n))
}

// ObserveBatch records the duration of one batch.
func (r *Recorder) ObserveBatch(d time.Duration) {
	if r == nil {
		return
	}
	r.batchDuration.Observe(d.Seconds())
}

// Predictions records the result of one predict call.
func (r *Recorder) Predictions(predicted, missing int) {
	if r == nil {
		return
	}
	r.predicted.Add(float64(predicted))
	r.missing.Add(float64(missing))
}

// FocalAccuracy sets the accuracy gauge. NaN values are ignored.
func (r *Recorder) FocalAccuracy(v float64) {
	if r == nil || math.IsNaN(v) {
		return
	}
	r.focalAccuracy.Set(v)
}
