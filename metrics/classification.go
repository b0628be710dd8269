package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Accuracy は正解率を計算する
//
// yTrue, yPred はどちらも n×1 のクラスインデックス、または n×C の
// one-hot / 確率行列（各行の argmax をクラスとみなす）を受け付ける。
func Accuracy(yTrue, yPred mat.Matrix) (float64, error) {
	truth, pred, err := pairLabels("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

// ConfusionMatrix は nClasses×nClasses の混同行列を返す。
// 行が正解クラス、列が予測クラス。nClasses <= 0 の場合はラベルから推定する。
func ConfusionMatrix(yTrue, yPred mat.Matrix, nClasses int) (*mat.Dense, error) {
	truth, pred, err := pairLabels("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	if nClasses <= 0 {
		for i := range truth {
			nClasses = max(nClasses, truth[i]+1, pred[i]+1)
		}
	}

	cm := mat.NewDense(nClasses, nClasses, nil)
	for i := range truth {
		if truth[i] >= nClasses || pred[i] >= nClasses {
			return nil, errors.NewValidationError("nClasses", "label out of range", max(truth[i], pred[i]))
		}
		cm.Set(truth[i], pred[i], cm.At(truth[i], pred[i])+1)
	}
	return cm, nil
}

// LogLoss は one-hot ラベル yTrue (n×C) と確率 yProba (n×C) の平均交差エントロピーを計算する
func LogLoss(yTrue, yProba mat.Matrix) (float64, error) {
	r, c := yTrue.Dims()
	pr, pc := yProba.Dims()
	if r == 0 {
		return 0, errors.NewShapeMismatchError("LogLoss", -1, 1, 0)
	}
	if pr != r {
		return 0, errors.NewLabelCountMismatchError("LogLoss", pr, r)
	}
	if pc != c {
		return 0, errors.NewFeatureShapeMismatchError("LogLoss", c, pc)
	}

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if t := yTrue.At(i, j); t != 0 {
				sum -= t * errors.StabilizeLog(yProba.At(i, j))
			}
		}
	}
	return sum / float64(r), nil
}

func pairLabels(op string, yTrue, yPred mat.Matrix) ([]int, []int, error) {
	rt, _ := yTrue.Dims()
	rp, _ := yPred.Dims()
	if rt == 0 {
		return nil, nil, errors.NewShapeMismatchError(op, -1, 1, 0)
	}
	if rt != rp {
		return nil, nil, errors.NewLabelCountMismatchError(op, rp, rt)
	}

	truth, _, err := model.ClassLabels(op, yTrue)
	if err != nil {
		return nil, nil, err
	}
	pred, _, err := model.ClassLabels(op, yPred)
	if err != nil {
		return nil, nil, err
	}
	return truth, pred, nil
}
