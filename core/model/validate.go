package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// CheckFitInputs validates the shapes of a weighted fit and returns the
// sample weights, all ones when w is nil.
func CheckFitInputs(op string, X, y mat.Matrix, w []float64) ([]float64, error) {
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return nil, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError(op, 1, yCols, 1)
	}
	if w == nil {
		w = make([]float64, nSamples)
		for i := range w {
			w[i] = 1
		}
		return w, nil
	}
	if len(w) != nSamples {
		return nil, errors.NewDimensionError(op, nSamples, len(w), 0)
	}
	for _, wi := range w {
		if wi < 0 || math.IsNaN(wi) || math.IsInf(wi, 0) {
			return nil, errors.NewValidationError("sample_weight", "must be finite and non-negative", wi)
		}
	}
	return w, nil
}

// UniformIfZero returns w with its sum, or unit weights when the weights
// sum to zero. Every row of a neighbourhood can sit on the kernel boundary.
func UniformIfZero(w []float64) ([]float64, float64) {
	if sum := floats.Sum(w); sum > 0 {
		return w, sum
	}
	ones := make([]float64, len(w))
	for i := range ones {
		ones[i] = 1
	}
	return ones, float64(len(ones))
}

// UniqueClasses returns the sorted distinct integer labels of column vector y.
func UniqueClasses(y mat.Matrix) []int {
	rows, _ := y.Dims()
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		seen[int(y.At(i, 0))] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

// ClassIndex returns the position of label in classes, or -1.
func ClassIndex(classes []int, label int) int {
	i := sort.SearchInts(classes, label)
	if i < len(classes) && classes[i] == label {
		return i
	}
	return -1
}
