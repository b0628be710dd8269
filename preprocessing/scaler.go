package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// StandardScaler は列ごとに平均0、標準偏差1へ変換する標準化スケーラー。
// 標準偏差は母標準偏差（n で割る）を使う。
//
// 標準偏差が0の列は黙って1に置き換えず、DegenerateColumnError を返す。
// 平均や標準偏差が float64 で表せない (オーバーフローする) 列も同じ扱い。
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差
	Scale []float64
}

// NewStandardScaler は新しいStandardScalerを作成する
//
//	scaler := preprocessing.NewStandardScaler()
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{state: model.NewStateManager()}
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewShapeMismatchError("StandardScaler.Fit", -1, 1, 0)
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		// 定数列は σ ではなく値の一致で判定する
		if floats.Min(col) == floats.Max(col) {
			return errors.NewDegenerateColumnError("Standardize", j)
		}
		mean[j], scale[j] = stat.PopMeanStdDev(col, nil)
		if !(scale[j] > 0) || !isFinite(scale[j]) || !isFinite(mean[j]) {
			return errors.NewDegenerateColumnError("Standardize", j)
		}
	}

	s.Mean, s.Scale = mean, scale
	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

// Stats は学習済みの統計情報をコピーして返す
func (s *StandardScaler) Stats() *Stats {
	return &Stats{
		Kind: KindStandardize,
		Mean: append([]float64(nil), s.Mean...),
		Std:  append([]float64(nil), s.Scale...),
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.state.IsFitted() {
		return "StandardScaler()"
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(n_features=%d)", nFeatures)
}

// Normalizer は各行をその合計で割り、行の合計を1にする。
// 学習する統計量はないため Fit を持たない。
type Normalizer struct{}

// NewNormalizer は新しいNormalizerを作成する
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Transform は行ごとに合計で割った新しい行列と各行の合計を返す。
// 合計がちょうど0の行、または合計がオーバーフローして有限でない行があれば
// DegenerateRowError を返す。
func (n *Normalizer) Transform(X mat.Matrix) (*mat.Dense, []float64, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, nil, errors.NewShapeMismatchError("Normalize", -1, 1, 0)
	}

	result := mat.NewDense(r, c, nil)
	result.Copy(X)
	sums := make([]float64, r)
	for i := 0; i < r; i++ {
		row := result.RawRowView(i)
		sums[i] = floats.Sum(row)
		if sums[i] == 0 || !isFinite(sums[i]) {
			return nil, nil, errors.NewDegenerateRowError("Normalize", i)
		}
		for j := range row {
			row[j] /= sums[i]
		}
	}
	return result, sums, nil
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
