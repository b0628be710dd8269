package pipeline

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// Evaluation は分類器を保持データで評価した結果
type Evaluation struct {
	Accuracy float64 `json:"accuracy"`

	// ConfusionMatrix は行が正解、列が予測のクラス別件数
	ConfusionMatrix *mat.Dense `json:"-"`
}

// Evaluate は h で X を推論し Y との正解率と混同行列を返す。
// 確率を返すアダプタ (MLP) は各行の argmax をクラスとみなす。
// クラスタリングの Handle には正解ラベルがないので ValidationError を返す。
func Evaluate(ctx context.Context, d *Dispatcher, h *Handle, X, Y mat.Matrix) (*Evaluation, error) {
	rows, _ := X.Dims()
	if h != nil && h.Clustering != nil {
		return nil, errors.NewValidationError("handle", "clustering handles have no accuracy", h.Algorithm.String())
	}
	if model.NoLabels(Y) {
		return nil, errors.NewLabelCountMismatchError("Evaluate", rows, 0)
	}

	pred, err := d.Predict(ctx, h, X)
	if err != nil {
		return nil, err
	}

	acc, err := metrics.Accuracy(Y, pred)
	if err != nil {
		return nil, err
	}
	nClasses := 0
	if _, c := pred.Dims(); c > 1 {
		nClasses = c
	}
	cm, err := metrics.ConfusionMatrix(Y, pred, nClasses)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Model evaluated",
		log.AlgorithmKey, h.Algorithm.String(),
		log.EstimatorIDKey, h.ID.String(),
		log.OperationKey, log.OperationScore,
		log.PhaseKey, log.PhaseValidation,
		log.SamplesKey, rows,
		log.AccuracyKey, acc,
	)
	return &Evaluation{Accuracy: acc, ConfusionMatrix: cm}, nil
}
