package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/gw"
	"github.com/YuminosukeSato/gwlearn/monitor"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
	"github.com/YuminosukeSato/gwlearn/preprocessing"
)

type fitFlags struct {
	config         string
	data           string
	features       string
	x, y           string
	target         string
	out            string
	predict        string
	predictionsOut string
	plot           string
	metricsOut     string
	standardize    bool
	timeout        time.Duration
}

func newFitCmd() *cobra.Command {
	f := &fitFlags{}
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit local models and write focal probabilities",
		Long: `fit reads a training table, fits one local model per row location and writes
the focal probabilities. With --predict it also blends the local models at the
query locations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if f.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}
			return runFit(ctx, cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "YAML configuration file")
	fl.StringVar(&f.data, "data", "", "training CSV with a header row")
	fl.StringVar(&f.features, "features", "", "comma separated feature columns")
	fl.StringVar(&f.x, "x", "x", "x coordinate column")
	fl.StringVar(&f.y, "y", "y", "y coordinate column")
	fl.StringVar(&f.target, "target", "target", "binary target column")
	fl.StringVarP(&f.out, "out", "o", "", "focal probabilities CSV (default stdout)")
	fl.StringVar(&f.predict, "predict", "", "query CSV to predict after fitting")
	fl.StringVar(&f.predictionsOut, "predictions-out", "", "predictions CSV (required with --predict)")
	fl.StringVar(&f.plot, "plot", "", "PNG map of focal probabilities")
	fl.StringVar(&f.metricsOut, "metrics-out", "", "write Prometheus metrics in text format")
	fl.BoolVar(&f.standardize, "standardize", false, "scale features to zero mean and unit variance before fitting")
	fl.DurationVar(&f.timeout, "timeout", 0, "abort the fit after this duration")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("features")
	return cmd
}

func runFit(ctx context.Context, cmd *cobra.Command, f *fitFlags) error {
	logger := log.GetLoggerWithName("gwlearn")
	if f.predict != "" && f.predictionsOut == "" {
		return errors.NewValidationError("predictions-out", "required with --predict", f.predictionsOut)
	}

	cfg, err := gw.LoadConfig(f.config)
	if err != nil {
		return err
	}
	cols := columns{features: splitList(f.features), x: f.x, y: f.y, target: f.target}
	train, err := readTable(f.data, cols, true)
	if err != nil {
		return err
	}

	var scaler *preprocessing.StandardScaler
	if f.standardize {
		scaler = preprocessing.NewStandardScaler(true, true)
		if train.X, err = scaler.FitTransform(train.X); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	opts := []gw.Option{gw.WithRecorder(monitor.NewRecorder(reg))}
	// predicting needs the local models; keep them in memory unless the
	// configuration already writes them to a directory
	if f.predict != "" && !cfg.KeepModels && cfg.ModelDir == "" {
		opts = append(opts, gw.WithKeepModels(true))
	}
	clf, err := cfg.NewClassifier(opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := clf.FitContext(ctx, train.X, train.y, train.geometry); err != nil {
		return err
	}
	logger.Info("Fit finished",
		log.SamplesKey, len(train.points),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	if perf := clf.Performance(); perf != nil {
		logger.Info("Focal performance",
			"evaluated", perf.Evaluated,
			log.AccuracyKey, perf.Accuracy,
			"balanced_accuracy", perf.BalancedAccuracy,
			"f1_macro", perf.F1Macro,
			"auc", perf.AUC,
		)
	}

	classes := clf.GlobalClasses()
	focal := clf.FocalProba()
	if f.out == "" {
		if err := printProba(cmd, classes, focal); err != nil {
			return err
		}
	} else if err := writeProba(f.out, train.points, classes, focal, nil); err != nil {
		return err
	}

	if f.plot != "" {
		if err := plotFocalPNG(f.plot, train.points, focal, model.ClassIndex(classes, 1)); err != nil {
			return errors.Wrap(err, "plot")
		}
		logger.Info("Focal map written", "png", f.plot)
	}

	if f.predict != "" {
		query, err := readTable(f.predict, cols, false)
		if err != nil {
			return err
		}
		if scaler != nil {
			if query.X, err = scaler.Transform(query.X); err != nil {
				return err
			}
		}
		proba, err := clf.PredictProba(query.X, query.geometry)
		if err != nil {
			return err
		}
		labels := gw.Labels(proba, classes)
		if err := writeProba(f.predictionsOut, query.points, classes, proba, labels); err != nil {
			return err
		}
	}

	if f.metricsOut != "" {
		if err := writeMetrics(f.metricsOut, reg); err != nil {
			return err
		}
	}
	return nil
}

func printProba(cmd *cobra.Command, classes []int, proba mat.Matrix) error {
	out := cmd.OutOrStdout()
	names := make([]string, len(classes))
	for j, c := range classes {
		names[j] = fmt.Sprintf("proba_%d", c)
	}
	if _, err := fmt.Fprintf(out, "id,%s\n", strings.Join(names, ",")); err != nil {
		return err
	}
	rows, _ := proba.Dims()
	vals := make([]string, len(classes))
	for i := 0; i < rows; i++ {
		for j := range classes {
			vals[j] = formatFloat(proba.At(i, j))
		}
		if _, err := fmt.Fprintf(out, "%d,%s\n", i, strings.Join(vals, ",")); err != nil {
			return err
		}
	}
	return nil
}

// writeMetrics dumps every collector of reg in the Prometheus text format.
func writeMetrics(path string, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer out.Close()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return out.Sync()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
