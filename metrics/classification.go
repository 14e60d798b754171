// Package metrics provides the classification metrics used to summarise the
// focal predictions of a geographically weighted classifier.
//
// Precision, recall and F1 follow the zero_division=0 convention: a ratio
// whose denominator is zero is reported as 0.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// Averaging modes of F1Score.
const (
	AverageBinary   = "binary"
	AverageMacro    = "macro"
	AverageMicro    = "micro"
	AverageWeighted = "weighted"
)

// checkPair は入力ベクトルの検証を行う
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// confusion は二値ラベル (正例 = 1) の混同行列の要素を数える
func confusion(yTrue, yPred *mat.VecDense) (tp, fp, fn, tn float64) {
	for i := 0; i < yTrue.Len(); i++ {
		t, p := yTrue.AtVec(i) == 1, yPred.AtVec(i) == 1
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		default:
			tn++
		}
	}
	return
}

// Precision は正例 1 に対する適合率 tp / (tp + fp) を計算する
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := checkPair("Precision", yTrue, yPred); err != nil {
		return 0, err
	}
	tp, fp, _, _ := confusion(yTrue, yPred)
	return errors.SafeDivide(tp, tp+fp), nil
}

// Recall は正例 1 に対する再現率 tp / (tp + fn) を計算する
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := checkPair("Recall", yTrue, yPred); err != nil {
		return 0, err
	}
	tp, _, fn, _ := confusion(yTrue, yPred)
	return errors.SafeDivide(tp, tp+fn), nil
}

// labelStats holds per-label counts of true positives, predictions and support.
type labelStats struct {
	label   float64
	tp      float64
	pred    float64
	support float64
}

func perLabel(yTrue, yPred *mat.VecDense) []labelStats {
	index := make(map[float64]int)
	var stats []labelStats
	get := func(label float64) *labelStats {
		i, ok := index[label]
		if !ok {
			i = len(stats)
			index[label] = i
			stats = append(stats, labelStats{label: label})
		}
		return &stats[i]
	}
	for i := 0; i < yTrue.Len(); i++ {
		get(yTrue.AtVec(i))
		get(yPred.AtVec(i))
	}
	for i := 0; i < yTrue.Len(); i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		get(t).support++
		get(p).pred++
		if t == p {
			get(t).tp++
		}
	}
	sort.Slice(stats, func(a, b int) bool { return stats[a].label < stats[b].label })
	return stats
}

// BalancedAccuracy は真のラベルに現れる各クラスの再現率の平均を計算する
func BalancedAccuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := checkPair("BalancedAccuracy", yTrue, yPred); err != nil {
		return 0, err
	}
	sum, classes := 0.0, 0
	for _, s := range perLabel(yTrue, yPred) {
		if s.support == 0 {
			continue
		}
		sum += s.tp / s.support
		classes++
	}
	return sum / float64(classes), nil
}

func f1(tp, pred, support float64) float64 {
	precision := errors.SafeDivide(tp, pred)
	recall := errors.SafeDivide(tp, support)
	return errors.SafeDivide(2*precision*recall, precision+recall)
}

// F1Score は F1 スコアを average に従って集約する
//
// binary は正例 1 のみ、macro はラベルごとの単純平均、micro は全体の
// tp/fp/fn から計算し、weighted はサポート数で重み付けした平均を返す。
func F1Score(yTrue, yPred *mat.VecDense, average string) (float64, error) {
	n, err := checkPair("F1Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	switch average {
	case AverageBinary:
		tp, fp, fn, _ := confusion(yTrue, yPred)
		return f1(tp, tp+fp, tp+fn), nil
	case AverageMicro:
		// Every sample carries exactly one predicted and one true label.
		tp := 0.0
		for _, s := range perLabel(yTrue, yPred) {
			tp += s.tp
		}
		return f1(tp, float64(n), float64(n)), nil
	case AverageMacro, AverageWeighted:
		stats := perLabel(yTrue, yPred)
		sum, total := 0.0, 0.0
		for _, s := range stats {
			w := 1.0
			if average == AverageWeighted {
				w = s.support
			}
			sum += w * f1(s.tp, s.pred, s.support)
			total += w
		}
		return errors.SafeDivide(sum, total), nil
	}
	return 0, errors.NewValidationError("average", "must be binary, macro, micro or weighted", average)
}

// BinaryLogLoss は二値クロスエントロピーを計算する。確率は [eps, 1-eps] にクリップされる
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	const eps = 1e-15
	sum := 0.0
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), eps, 1-eps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// AUC は ROC 曲線下面積を Mann-Whitney の U 統計量から計算する
//
// 片方のクラスしか存在しない場合は 0.5 を返す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return yPred.AtVec(order[a]) < yPred.AtVec(order[b]) })

	// Average ranks over ties.
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yPred.AtVec(order[j+1]) == yPred.AtVec(order[i]) {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = r
		}
		i = j + 1
	}

	nPos, rankSum := 0.0, 0.0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
			rankSum += ranks[i]
		}
	}
	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		return 0.5, nil
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}
