package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "gw.Fit",
			kind:    "local model fit failed for focal 3",
			err:     fmt.Errorf("singular design"),
			wantMsg: "gwlearn: gw.Fit: local model fit failed for focal 3: singular design",
		},
		{
			name:    "without original error",
			op:      "gw.Predict",
			kind:    "not fitted",
			wantMsg: "gwlearn: gw.Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
			if tt.err != nil && !Is(err, tt.err) {
				t.Error("ModelError should unwrap to the original error")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("PredictProba", 3, 2, 1)

	want := "gwlearn: PredictProba: dimension mismatch on axis 1 (features). Expected 3, got 2"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 3 || dimErr.Got != 2 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("GWClassifier", "Predict")

	want := "gwlearn: GWClassifier: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewGeometryError(t *testing.T) {
	err := NewGeometryError("gw.Fit", 4, "Polygon")

	want := "gwlearn: gw.Fit: unsupported geometry type Polygon at position 4. Only point geometry is supported"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var geomErr *GeometryError
	if !As(err, &geomErr) {
		t.Fatal("Error should be castable to *GeometryError")
	}
	if geomErr.Index != 4 {
		t.Errorf("Index = %d, want 4", geomErr.Index)
	}
}

func TestInvariantNeighborhood(t *testing.T) {
	t.Run("error lists ids", func(t *testing.T) {
		err := NewInvariantNeighborhoodError([]int{2, 7})
		if !strings.Contains(err.Error(), "[2, 7]") {
			t.Errorf("Error() = %q, want ids listed", err.Error())
		}
		var invErr *InvariantNeighborhoodError
		if !As(err, &invErr) {
			t.Fatal("Error should be castable to *InvariantNeighborhoodError")
		}
	})

	t.Run("warning truncates long lists", func(t *testing.T) {
		ids := make([]int, 25)
		for i := range ids {
			ids[i] = i
		}
		w := NewInvariantNeighborhoodWarning(ids)
		if !strings.Contains(w.Error(), "(5 more)") {
			t.Errorf("Error() = %q, want truncated list", w.Error())
		}
		ids[0] = 99
		if w.FocalIDs[0] != 0 {
			t.Error("warning should own a copy of the ids")
		}
	})
}

func TestWarn(t *testing.T) {
	var (
		mu  sync.Mutex
		got []error
	)
	SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, w)
	})
	defer SetWarningHandler(func(error) {})

	Warn(NewInvariantNeighborhoodWarning([]int{1}))
	Warn(NewConvergenceWarning("LogisticRegression", 100, ""))

	if len(got) != 2 {
		t.Fatalf("handler received %d warnings, want 2", len(got))
	}

	var zl []error
	SetZerologWarnFunc(func(w error) { zl = append(zl, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))
	if len(zl) != 1 || len(got) != 2 {
		t.Errorf("zerolog hook should take precedence: zl=%d handler=%d", len(zl), len(got))
	}
}

func TestNumericalHelpers(t *testing.T) {
	if SafeDivide(1, 0) != 0 {
		t.Error("SafeDivide by zero should return 0")
	}
	if SafeDivide(3, 2) != 1.5 {
		t.Error("SafeDivide(3, 2) should be 1.5")
	}
	if ClipValue(1.5, 0, 1) != 1 || ClipValue(-1, 0, 1) != 0 || ClipValue(0.3, 0, 1) != 0.3 {
		t.Error("ClipValue returned an unexpected value")
	}
	if StabilizeExp(1000) != StabilizeExp(700) {
		t.Error("StabilizeExp should saturate")
	}
	if !HasNaN(NaNs(2)) || HasNaN([]float64{1, 2}) {
		t.Error("HasNaN mismatch")
	}
}
