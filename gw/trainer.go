package gw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/core/model"
	"github.com/YuminosukeSato/gwlearn/core/parallel"
	"github.com/YuminosukeSato/gwlearn/graph"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
	"github.com/YuminosukeSato/gwlearn/pkg/log"
)

// LocalModelRecord is the outcome of fitting one focal location.
type LocalModelRecord struct {
	FocalID int
	// NLabels is the number of distinct labels in the neighbourhood.
	NLabels int
	// Invariant is set when the neighbourhood holds a single label.
	Invariant bool
	// Fitted is false for focals skipped by the invariance or minority guard.
	Fitted bool
	Score  ScoreData
	// FeatureImportances is nil when the family has none.
	FeatureImportances []float64
	// FocalProba is the probability of each global class at the focal
	// location. All NaN when the focal was skipped.
	FocalProba []float64
	Model      Handle
}

// rowSource is the shared, read-only feature matrix workers copy rows from.
type rowSource interface {
	Row(dst []float64, i int) []float64
	Rows(idx []int) *mat.Dense
}

type denseRows struct {
	m *mat.Dense
}

func (d denseRows) Row(dst []float64, i int) []float64 {
	return mat.Row(dst, i, d.m)
}

func (d denseRows) Rows(idx []int) *mat.Dense {
	_, c := d.m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		out.SetRow(k, d.m.RawRowView(i))
	}
	return out
}

// workUnit is the self-contained input of one local fit.
type workUnit struct {
	focal  int
	X      *mat.Dense
	y      []int
	w      []float64
	focalX []float64
}

// trainer fits the local models of one Classifier fit.
type trainer struct {
	spec          ModelSpec
	cfg           settings
	store         ModelStore
	globalClasses []int
	nFeatures     int
	logger        log.Logger
}

// labelCounts returns the distinct labels of a neighbourhood with their
// counts, most frequent first.
func labelCounts(labels []int) (values, counts []int) {
	m := make(map[int]int)
	for _, l := range labels {
		m[l]++
	}
	for v := range m {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if m[values[i]] == m[values[j]] {
			return values[i] < values[j]
		}
		return m[values[i]] > m[values[j]]
	})
	counts = make([]int, len(values))
	for i, v := range values {
		counts[i] = m[v]
	}
	return values, counts
}

// invariantFocals lists the focals whose neighbourhood holds one label.
func invariantFocals(adj *graph.Adjacency, y []int) []int {
	var ids []int
	for focal := 0; focal < adj.Len(); focal++ {
		ns := adj.Of(focal)
		if len(ns) == 0 {
			continue
		}
		first, invariant := y[ns[0].ID], true
		for _, n := range ns[1:] {
			if y[n.ID] != first {
				invariant = false
				break
			}
		}
		if invariant {
			ids = append(ids, focal)
		}
	}
	return ids
}

// fitAll fits every focal of adj in sequential batches and returns the
// records in focal order.
func (t *trainer) fitAll(ctx context.Context, X rowSource, y []int, adj *graph.Adjacency) ([]LocalModelRecord, error) {
	n := adj.Len()
	batch := t.cfg.batchSize
	if batch <= 0 || batch > n {
		batch = n
	}
	nBatches := 0
	if n > 0 {
		nBatches = (n + batch - 1) / batch
	}
	workers := parallel.Workers(t.cfg.nJobs)

	records := make([]LocalModelRecord, n)
	for b := 0; b < nBatches; b++ {
		start, end := b*batch, (b+1)*batch
		if end > n {
			end = n
		}
		msg := "Processing batch"
		fields := []any{log.BatchKey, b + 1, log.BatchesKey, nBatches, log.BatchSizeKey, end - start, log.WorkersKey, workers}
		if t.cfg.verbose {
			t.logger.Info(msg, fields...)
		} else {
			t.logger.Debug(msg, fields...)
		}

		began := time.Now()
		units := make([]workUnit, end-start)
		for i := range units {
			units[i] = t.unitOf(X, y, adj, start+i)
		}
		err := parallel.ForEach(ctx, workers, len(units), func(_ context.Context, i int) error {
			rec, err := t.fitLocal(units[i])
			if err != nil {
				return err
			}
			records[start+i] = rec
			return nil
		})
		if err != nil {
			return nil, err
		}

		fitted := 0
		for _, r := range records[start:end] {
			if r.Fitted {
				fitted++
			}
		}
		t.cfg.recorder.ObserveBatch(time.Since(began))
		t.cfg.recorder.LocalModels(string(t.spec.Family), fitted, end-start-fitted)
	}
	return records, nil
}

func (t *trainer) unitOf(X rowSource, y []int, adj *graph.Adjacency, focal int) workUnit {
	ns := adj.Of(focal)
	ids := make([]int, len(ns))
	u := workUnit{
		focal:  focal,
		y:      make([]int, len(ns)),
		w:      make([]float64, len(ns)),
		focalX: X.Row(nil, focal),
	}
	for i, nb := range ns {
		ids[i] = nb.ID
		u.y[i] = y[nb.ID]
		u.w[i] = nb.Weight
	}
	if len(ids) > 0 {
		u.X = X.Rows(ids)
	}
	return u
}

// skip reports whether the local model of a neighbourhood is not fitted.
// The minority/majority ratio is compared with a strict less-than.
func (t *trainer) skip(counts []int) bool {
	if len(counts) < 2 {
		return true
	}
	return float64(counts[len(counts)-1])/float64(counts[0]) < t.cfg.minProportion
}

func (t *trainer) placeholder(u workUnit, nLabels int) LocalModelRecord {
	score, imp := behaviorOf(t.spec.Family).Placeholder(t.nFeatures)
	return LocalModelRecord{
		FocalID:            u.focal,
		NLabels:            nLabels,
		Invariant:          nLabels == 1,
		Score:              score,
		FeatureImportances: imp,
		FocalProba:         errors.NaNs(len(t.globalClasses)),
	}
}

func (t *trainer) fitLocal(u workUnit) (rec LocalModelRecord, err error) {
	op := fmt.Sprintf("gw.fitLocal[focal=%d]", u.focal)
	defer errors.Recover(&err, op)

	_, counts := labelCounts(u.y)
	if t.skip(counts) {
		return t.placeholder(u, len(counts)), nil
	}

	X, y, w := u.X, u.y, u.w
	if t.cfg.undersample {
		keep := undersample(y, t.cfg.undersampleRatio, rand.New(rand.NewSource(t.seed())))
		X, y, w = subset(X, y, w, keep)
	}

	est, err := t.spec.build(t.cfg.randomState)
	if err != nil {
		return LocalModelRecord{}, err
	}
	yMat := mat.NewDense(len(y), 1, nil)
	for i, label := range y {
		yMat.Set(i, 0, float64(label))
	}
	if err := est.FitWeighted(X, yMat, w); err != nil {
		return LocalModelRecord{}, errors.NewModelError(op, "local fit failed", err)
	}

	focalProba, err := alignedProba(est, mat.NewDense(1, len(u.focalX), u.focalX), t.globalClasses)
	if err != nil {
		return LocalModelRecord{}, errors.NewModelError(op, "focal prediction failed", err)
	}
	yPred, err := predictLabels(est, X)
	if err != nil {
		return LocalModelRecord{}, errors.NewModelError(op, "neighbourhood prediction failed", err)
	}

	rec = LocalModelRecord{
		FocalID:    u.focal,
		NLabels:    len(counts),
		Fitted:     true,
		Score:      behaviorOf(t.spec.Family).Score(ScoreInput{Estimator: est, YTrue: y, YPred: yPred}),
		FocalProba: focalProba.RawRowView(0),
	}
	if fi, ok := est.(model.FeatureImportanceProvider); ok {
		rec.FeatureImportances = append([]float64(nil), fi.FeatureImportances()...)
	}
	if rec.Model, err = t.store.Put(u.focal, est); err != nil {
		return LocalModelRecord{}, errors.NewModelError(op, "failed to store local model", err)
	}
	return rec, nil
}

// seed returns the undersampling seed. Every focal uses the same seed so
// that results do not depend on batching or scheduling.
func (t *trainer) seed() int64 {
	if t.cfg.randomState != nil {
		return *t.cfg.randomState
	}
	return time.Now().UnixNano()
}

func subset(X *mat.Dense, y []int, w []float64, keep []int) (*mat.Dense, []int, []float64) {
	_, c := X.Dims()
	Xs := mat.NewDense(len(keep), c, nil)
	ys := make([]int, len(keep))
	ws := make([]float64, len(keep))
	for k, i := range keep {
		Xs.SetRow(k, X.RawRowView(i))
		ys[k] = y[i]
		ws[k] = w[i]
	}
	return Xs, ys, ws
}

// alignedProba predicts class probabilities and reorders the columns to
// classes. Classes the estimator never saw are NaN.
func alignedProba(est model.LocalEstimator, X mat.Matrix, classes []int) (*mat.Dense, error) {
	proba, err := est.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(classes), nil)
	local := est.Classes()
	for j, c := range classes {
		src := -1
		for k, lc := range local {
			if lc == c {
				src = k
				break
			}
		}
		for i := 0; i < rows; i++ {
			if src < 0 {
				out.Set(i, j, math.NaN())
			} else {
				out.Set(i, j, proba.At(i, src))
			}
		}
	}
	return out, nil
}

// predictLabels returns the arg-max label of every row of X.
func predictLabels(est model.LocalEstimator, X mat.Matrix) ([]int, error) {
	proba, err := est.PredictProba(X)
	if err != nil {
		return nil, err
	}
	classes := est.Classes()
	rows, _ := proba.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < len(classes); j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out[i] = classes[best]
	}
	return out, nil
}
