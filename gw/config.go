package gw

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// Config is the YAML form of a Classifier configuration.
//
//	bandwidth: 25
//	fixed: false
//	kernel: bisquare
//	n_jobs: -1
//	strict: warn
//	model_dir: /var/lib/gwlearn/models
//	batch_size: 500
//	random_state: 42
//	model:
//	  family: random_forest
//	  params:
//	    n_estimators: 50
//	    max_depth: 8
//
// Pointer fields distinguish "unset" from the zero value so that the
// defaults of New apply.
type Config struct {
	Bandwidth          float64  `yaml:"bandwidth"`
	Fixed              bool     `yaml:"fixed"`
	Kernel             string   `yaml:"kernel"`
	NJobs              *int     `yaml:"n_jobs"`
	FitGlobalModel     *bool    `yaml:"fit_global_model"`
	MeasurePerformance *bool    `yaml:"measure_performance"`
	Strict             string   `yaml:"strict"`
	KeepModels         bool     `yaml:"keep_models"`
	ModelDir           string   `yaml:"model_dir"`
	TempFolder         string   `yaml:"temp_folder"`
	BatchSize          int      `yaml:"batch_size"`
	MinProportion      *float64 `yaml:"min_proportion"`
	Undersample        bool     `yaml:"undersample"`
	UndersampleRatio   float64  `yaml:"undersample_ratio"`
	RandomState        *int64   `yaml:"random_state"`
	Verbose            bool     `yaml:"verbose"`

	Model ModelConfig `yaml:"model"`
}

// ModelConfig selects the local model family and its hyperparameters.
type ModelConfig struct {
	Family string                 `yaml:"family"`
	Params map[string]interface{} `yaml:"params"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if cfg.Bandwidth <= 0 {
		return nil, errors.NewValidationError("bandwidth", "is required and must be positive", cfg.Bandwidth)
	}
	return &cfg, nil
}

// ModelSpec returns the spec of the configured family. decision_tree is a
// generic-family spec.
func (c *Config) ModelSpec() (ModelSpec, error) {
	switch Family(c.Model.Family) {
	case FamilyRandomForest, "":
		return RandomForest(c.Model.Params), nil
	case FamilyGradientBoosting:
		return GradientBoosting(c.Model.Params), nil
	case FamilyLogistic:
		return Logistic(c.Model.Params), nil
	case "decision_tree":
		return DecisionTree(c.Model.Params), nil
	}
	return ModelSpec{}, errors.NewValidationError("model.family",
		"must be random_forest, gradient_boosting, logistic or decision_tree", c.Model.Family)
}

// Options converts the configuration to Classifier options.
func (c *Config) Options() ([]Option, error) {
	opts := []Option{
		WithFixed(c.Fixed),
		WithKeepModels(c.KeepModels),
		WithBatchSize(c.BatchSize),
		WithVerbose(c.Verbose),
	}
	if c.Kernel != "" {
		opts = append(opts, WithKernel(c.Kernel))
	}
	if c.NJobs != nil {
		opts = append(opts, WithNJobs(*c.NJobs))
	}
	if c.FitGlobalModel != nil {
		opts = append(opts, WithFitGlobalModel(*c.FitGlobalModel))
	}
	if c.MeasurePerformance != nil {
		opts = append(opts, WithMeasurePerformance(*c.MeasurePerformance))
	}
	if c.Strict != "" {
		mode, err := ParseStrictMode(c.Strict)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStrict(mode))
	}
	if c.ModelDir != "" {
		opts = append(opts, WithModelDir(c.ModelDir))
	}
	if c.TempFolder != "" {
		opts = append(opts, WithTempFolder(c.TempFolder))
	}
	if c.MinProportion != nil {
		opts = append(opts, WithMinProportion(*c.MinProportion))
	}
	switch {
	case c.UndersampleRatio > 0:
		opts = append(opts, WithUndersampleRatio(c.UndersampleRatio))
	case c.Undersample:
		opts = append(opts, WithUndersample(true))
	}
	if c.RandomState != nil {
		opts = append(opts, WithRandomState(*c.RandomState))
	}
	return opts, nil
}

// NewClassifier builds an unfitted Classifier from the configuration. Extra
// options are applied after the configured ones.
func (c *Config) NewClassifier(extra ...Option) (*Classifier, error) {
	spec, err := c.ModelSpec()
	if err != nil {
		return nil, err
	}
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return New(spec, c.Bandwidth, append(opts, extra...)...), nil
}
