package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// SaveEstimator は推定器をインターフェース値として w にエンコードする
//
// 具象型は gob.Register 済みである必要がある。
func SaveEstimator(w io.Writer, est LocalEstimator) error {
	if err := gob.NewEncoder(w).Encode(&est); err != nil {
		return errors.Wrap(err, "failed to encode estimator")
	}
	return nil
}

// LoadEstimator は SaveEstimator で書かれた推定器を r から読み込む
func LoadEstimator(r io.Reader) (LocalEstimator, error) {
	var est LocalEstimator
	if err := gob.NewDecoder(r).Decode(&est); err != nil {
		return nil, errors.Wrap(err, "failed to decode estimator")
	}
	return est, nil
}

// SaveEstimatorFile は推定器をファイルに保存する
//
// 使用例:
//
//	err := model.SaveEstimatorFile("models/12.gob", rf)
func SaveEstimatorFile(filename string, est LocalEstimator) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", filename)
	}
	if err := SaveEstimator(file, est); err != nil {
		file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close file %s", filename)
}

// LoadEstimatorFile はファイルから推定器を読み込む
func LoadEstimatorFile(filename string) (LocalEstimator, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer file.Close()
	return LoadEstimator(file)
}
