package model

import (
	"math"
	"reflect"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// MaxClasses は行数が少ないときに許すクラスインデックスの上限。
// ラベルは max(行数, MaxClasses) 未満でなければならない。
const MaxClasses = 1024

// NoLabels は y が nil か、nil ポインタを包んだ mat.Matrix なら true を返す。
// ラベルのない *dataset.Dataset の Y をそのまま渡した場合がこれにあたる。
func NoLabels(y mat.Matrix) bool {
	if y == nil {
		return true
	}
	v := reflect.ValueOf(y)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// ClassLabels は y をクラスインデックスのスライスに変換する。
//
// y は n×1 の非負整数ラベル、または n×C の one-hot（各行の argmax を採用）。
// nClasses は最大ラベル+1 (one-hot の場合は C)。
func ClassLabels(op string, y mat.Matrix) (labels []int, nClasses int, err error) {
	if NoLabels(y) {
		return nil, 0, errors.NewValidationError(op+".y", "labels are required", nil)
	}
	r, c := y.Dims()
	labels = make([]int, r)

	if c > 1 {
		row := make([]float64, c)
		for i := 0; i < r; i++ {
			mat.Row(row, i, y)
			labels[i] = floats.MaxIdx(row)
		}
		return labels, c, nil
	}

	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v < 0 || v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, 0, errors.NewValidationError(op+".y", "class labels must be non-negative integers", v)
		}
		if v >= float64(max(r, MaxClasses)) {
			return nil, 0, errors.NewValidationError(op+".y", "class label exceeds the number of classes", v)
		}
		labels[i] = int(v)
		if labels[i]+1 > nClasses {
			nClasses = labels[i] + 1
		}
	}
	return labels, nClasses, nil
}

// CheckXY は X と y の行数が一致し、X が空でないことを確認する。
// ラベルなし (NoLabels) の y は検査しない。
func CheckXY(op string, X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewShapeMismatchError(op, -1, 1, 0)
	}
	if NoLabels(y) {
		return nil
	}
	if yr, _ := y.Dims(); yr != r {
		return errors.NewLabelCountMismatchError(op, r, yr)
	}
	return nil
}
