// Package pipeline dispatches a preprocessed dataset to one of several
// interchangeable training algorithms behind a uniform Train/Predict contract.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Adapter は1つのアルゴリズムを Train/Predict の共通契約で包む。
// アダプタ自身は状態を持たず、学習結果はすべて Handle に入る。
type Adapter interface {
	// Train は X (と任意の Y) で学習し Handle を返す
	Train(ctx context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error)

	// Predict は同じアダプタが返した Handle で X を推論する
	Predict(ctx context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error)
}

// Handle は学習済みモデルを表す不透明な値。生成したアダプタでのみ有効。
type Handle struct {
	ID        uuid.UUID
	Algorithm Algorithm
	NSamples  int
	NFeatures int

	// Report は学習時の指標
	Report Report

	// Clustering は K-Means の場合のみ設定される
	Clustering *Clustering

	model any
}

// NewHandle は新しい ID を振った Handle を作る。m はアダプタ固有の学習済みモデル。
func NewHandle(algorithm Algorithm, X mat.Matrix, m any) *Handle {
	rows, cols := X.Dims()
	return &Handle{
		ID:        uuid.New(),
		Algorithm: algorithm,
		NSamples:  rows,
		NFeatures: cols,
		model:     m,
	}
}

// Model はアダプタ固有の学習済みモデルを返す
func (h *Handle) Model() any { return h.model }

// Report は学習結果の指標。値を持たない指標はゼロ値。
type Report struct {
	// TrainAccuracy は学習データに対する正解率 (分類器のみ)
	TrainAccuracy float64 `json:"train_accuracy"`

	// Epochs は MLP のエポックごとの損失と正解率
	Epochs []EpochMetrics `json:"epochs,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Clustering は K-Means の学習結果
type Clustering struct {
	// Assignments は学習データ各行のクラスタ番号
	Assignments []int

	// Centroids はクラスタ中心 (k × n_features)
	Centroids *mat.Dense

	Inertia float64
	NIter   int
}

// modelAs は Handle のモデルを T として取り出す
func modelAs[T any](h *Handle, want Algorithm) (T, error) {
	var zero T
	if h == nil {
		return zero, errors.NewValidationError("handle", "must not be nil", nil)
	}
	if h.Algorithm != want {
		return zero, errors.NewValidationError("handle", "produced by "+h.Algorithm.String()+" adapter, not "+want.String(), h.ID.String())
	}
	m, ok := h.model.(T)
	if !ok {
		return zero, errors.NewValidationError("handle", "does not carry a "+want.String()+" model", h.ID.String())
	}
	return m, nil
}
