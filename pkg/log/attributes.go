// Standard attribute keys for gwlearn log records.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples",
// "gw.bandwidth") so records can be filtered consistently.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model, e.g. "GWClassifier", "RandomForestClassifier".
	ModelNameKey = "model.name"

	// EstimatorIDKey is a unique identifier of one model instance (UUID strings).
	EstimatorIDKey = "estimator.id"

	// OperationKey is the operation being performed: "fit", "predict", "score".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package performing the operation.
	ComponentKey = "ml.component"
)

// Data Shape
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	BatchSizeKey = "data.batch_size"
)

// Performance
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	IterationKey  = "training.iteration"
)

// Geographically weighted context
const (
	// BandwidthKey is the configured bandwidth (distance or neighbour count).
	BandwidthKey = "gw.bandwidth"

	// FocalIDKey is the position of a focal location in the training set.
	FocalIDKey = "gw.focal_id"

	// BatchKey is the 1-based index of the current batch of focals.
	BatchKey = "gw.batch"

	// BatchesKey is the total number of batches.
	BatchesKey = "gw.batches"

	// FittedKey and SkippedKey count local models after a fit.
	FittedKey  = "gw.models_fitted"
	SkippedKey = "gw.models_skipped"

	// InvariantKey counts focals with an invariant neighbourhood.
	InvariantKey = "gw.invariant"

	// MissingKey counts prediction rows without an estimate.
	MissingKey = "gw.missing"

	// WorkersKey is the effective size of the worker pool.
	WorkersKey = "gw.workers"
)

// Standard attribute values
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
)
