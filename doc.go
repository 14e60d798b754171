// Package gwlearn provides geographically weighted classification for Go.
//
// A geographically weighted classifier fits one local model per training
// location on that location's kernel-weighted neighbourhood and predicts new
// locations by blending the probabilities of the nearest local models.
//
// # Features
//
//   - Fixed (distance) and adaptive (k nearest) bandwidths
//   - Seven distance kernels plus caller supplied kernels
//   - Invariance and class-imbalance guards with a strict mode
//   - Parallel local fitting, optional batching and a memory-mapped spill file
//   - Local models kept in memory or written to a directory
//   - Focal performance metrics and Prometheus instrumentation
//
// # Installation
//
//	go get github.com/YuminosukeSato/gwlearn
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/gwlearn/geom"
//	    "github.com/YuminosukeSato/gwlearn/gw"
//	    "github.com/YuminosukeSato/gwlearn/kernel"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(6, 1, []float64{0.1, 0.2, 0.9, 0.8, 0.3, 0.7})
//	    y := gw.BoolTarget([]bool{false, false, true, true, false, true})
//	    points := geom.Points(
//	        [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{2, 0},
//	        [2]float64{0, 1}, [2]float64{1, 1}, [2]float64{2, 1},
//	    )
//
//	    clf := gw.New(gw.Logistic(nil), 4,
//	        gw.WithKernel(kernel.Bisquare),
//	        gw.WithKeepModels(true),
//	    )
//	    if err := clf.Fit(X, y, points); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    proba, err := clf.PredictProba(mat.NewDense(1, 1, []float64{0.5}),
//	        geom.Points([2]float64{1, 0.5}))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(proba))
//	}
//
// # Packages
//
//   - gw: the classifier, local model trainer, model stores and predictor
//   - kernel: distance to weight kernels
//   - graph: neighbourhood graphs over a k-d tree
//   - geom: point geometry and validation
//   - sklearn/linear_model, sklearn/tree, sklearn/ensemble: weighted local estimators
//   - metrics: classification metrics
//   - monitor: Prometheus collectors
//   - performance: memory-mapped spill of the feature matrix
//   - core/model, core/parallel: estimator interfaces, persistence and the worker pool
//   - pkg/errors, pkg/log: structured errors and logging
//   - cmd/gwlearn: command line front end
//
// # Configuration
//
// Every option has a YAML counterpart loaded by gw.LoadConfig:
//
//	bandwidth: 25
//	kernel: bisquare
//	strict: warn
//	keep_models: true
//	model:
//	  family: random_forest
//	  params:
//	    n_estimators: 50
//
// # License
//
// gwlearn is released under the MIT License.
package gwlearn
