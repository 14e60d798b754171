package model

import "gonum.org/v1/gonum/mat"

// LocalEstimator は地理的加重学習で各フォーカル点に当てはめる分類器のインターフェース
//
// 実装は gob でシリアライズ可能でなければならない（gob.Register を init で呼ぶ）。
type LocalEstimator interface {
	// FitWeighted はサンプル重み w 付きでモデルを学習させる。w が nil なら等重み
	FitWeighted(X, y mat.Matrix, w []float64) error

	// PredictProba は各行について Classes() の順にクラス確率を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes は学習時に観測したクラスを昇順で返す
	Classes() []int
}

// FeatureImportanceProvider は特徴量重要度を持つモデルのインターフェース
type FeatureImportanceProvider interface {
	FeatureImportances() []float64
}

// OOBScorer は out-of-bag スコアを持つモデルのインターフェース
type OOBScorer interface {
	OOBScore() float64
}

// CoefficientProvider は線形モデルの係数と切片を返すインターフェース
type CoefficientProvider interface {
	Coef() []float64
	Intercept() float64
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Seeder is implemented by estimators whose randomness can be seeded.
type Seeder interface {
	SetRandomState(seed int64)
}
