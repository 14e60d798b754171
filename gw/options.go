package gw

import (
	"strings"

	"github.com/YuminosukeSato/gwlearn/kernel"
	"github.com/YuminosukeSato/gwlearn/monitor"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

// StrictMode は不変近傍 (近傍内のラベルが単一値) に対する方針
type StrictMode int

const (
	// StrictOff proceeds silently.
	StrictOff StrictMode = iota
	// StrictWarn proceeds and emits an InvariantNeighborhoodWarning.
	StrictWarn
	// StrictError aborts the fit before any local model is fitted.
	StrictError
)

// String returns "off", "warn" or "error".
func (m StrictMode) String() string {
	switch m {
	case StrictWarn:
		return "warn"
	case StrictError:
		return "error"
	default:
		return "off"
	}
}

// ParseStrictMode parses the textual form of a StrictMode.
func ParseStrictMode(s string) (StrictMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "false":
		return StrictOff, nil
	case "warn", "none", "null":
		return StrictWarn, nil
	case "error", "true":
		return StrictError, nil
	}
	return StrictOff, errors.NewValidationError("strict", "must be off, warn or error", s)
}

// settings is the resolved configuration of a Classifier.
type settings struct {
	fixed              bool
	kernelName         string
	kernelFn           kernel.Func
	nJobs              int
	fitGlobalModel     bool
	measurePerformance bool
	strict             StrictMode
	keepModels         bool
	modelDir           string
	tempFolder         string
	batchSize          int
	minProportion      float64
	undersample        bool
	undersampleRatio   float64 // 0 balances the classes
	randomState        *int64
	verbose            bool
	logger             log.Logger
	recorder           *monitor.Recorder
}

func defaultSettings() settings {
	return settings{
		kernelName:         kernel.Default,
		nJobs:              -1,
		fitGlobalModel:     true,
		measurePerformance: true,
		minProportion:      0.2,
	}
}

func (s *settings) validate() error {
	if s.kernelFn == nil {
		fn, err := kernel.Get(s.kernelName)
		if err != nil {
			return err
		}
		s.kernelFn = fn
	}
	if s.batchSize < 0 {
		return errors.NewValidationError("batch_size", "must be positive, or zero for a single batch", s.batchSize)
	}
	if s.minProportion < 0 || s.minProportion > 1 {
		return errors.NewValidationError("min_proportion", "must be in [0, 1]", s.minProportion)
	}
	if s.undersampleRatio < 0 || s.undersampleRatio > 1 {
		return errors.NewValidationError("undersample_ratio", "must be in (0, 1], or zero to balance", s.undersampleRatio)
	}
	if s.keepModels && s.modelDir != "" {
		return errors.NewValidationError("keep_models", "resident models and a model directory are mutually exclusive", s.modelDir)
	}
	return nil
}

// Option configures a Classifier.
type Option func(*settings)

// WithFixed selects a distance bandwidth. The default is an adaptive
// neighbour count.
func WithFixed(fixed bool) Option {
	return func(s *settings) { s.fixed = fixed }
}

// WithKernel selects a built-in kernel by name.
func WithKernel(name string) Option {
	return func(s *settings) {
		s.kernelName = name
		s.kernelFn = nil
	}
}

// WithKernelFunc installs a custom kernel.
func WithKernelFunc(name string, fn kernel.Func) Option {
	return func(s *settings) {
		s.kernelName = name
		s.kernelFn = fn
	}
}

// WithNJobs sets the worker count. -1 uses every CPU, 1 runs serially.
func WithNJobs(n int) Option {
	return func(s *settings) { s.nJobs = n }
}

// WithFitGlobalModel toggles the baseline model fitted on all data.
func WithFitGlobalModel(on bool) Option {
	return func(s *settings) { s.fitGlobalModel = on }
}

// WithMeasurePerformance toggles the focal performance metrics.
func WithMeasurePerformance(on bool) Option {
	return func(s *settings) { s.measurePerformance = on }
}

// WithStrict sets the invariant neighbourhood policy.
func WithStrict(mode StrictMode) Option {
	return func(s *settings) { s.strict = mode }
}

// WithKeepModels keeps fitted local models in memory.
func WithKeepModels(keep bool) Option {
	return func(s *settings) { s.keepModels = keep }
}

// WithModelDir writes fitted local models to dir, one file per focal.
func WithModelDir(dir string) Option {
	return func(s *settings) { s.modelDir = dir }
}

// WithTempFolder spills the feature matrix to a memory-mapped file in dir
// that all workers read from.
func WithTempFolder(dir string) Option {
	return func(s *settings) { s.tempFolder = dir }
}

// WithBatchSize fits focals in sequential batches of n.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

// WithMinProportion sets the minority/majority ratio below which a local
// model is skipped.
func WithMinProportion(p float64) Option {
	return func(s *settings) { s.minProportion = p }
}

// WithUndersample toggles random undersampling of the majority class.
func WithUndersample(on bool) Option {
	return func(s *settings) { s.undersample = on }
}

// WithUndersampleRatio enables undersampling to the given minority/majority
// ratio.
func WithUndersampleRatio(ratio float64) Option {
	return func(s *settings) {
		s.undersample = true
		s.undersampleRatio = ratio
	}
}

// WithRandomState seeds every local model and the undersampler.
func WithRandomState(seed int64) Option {
	return func(s *settings) { s.randomState = &seed }
}

// WithVerbose logs batch progress at info level.
func WithVerbose(on bool) Option {
	return func(s *settings) { s.verbose = on }
}

// WithLogger replaces the package logger.
func WithLogger(l log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRecorder records Prometheus metrics of fits and predictions.
func WithRecorder(r *monitor.Recorder) Option {
	return func(s *settings) { s.recorder = r }
}
