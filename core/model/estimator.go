package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier はクラスインデックスを予測する分類器
type Classifier interface {
	Fitter
	Predictor
	// Score は正解率を返す
	Score(X, y mat.Matrix) float64
}

// ProbaPredictor はクラス確率を返せるモデル
type ProbaPredictor interface {
	// PredictProba は各行のクラス確率 (n_samples × n_classes) を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Clusterer はラベルなしで学習するクラスタリングモデル。Fit の y は無視される
type Clusterer interface {
	Fitter
	Predictor
	// ClusterCenters は学習済みのセントロイド (k × n_features) を返す
	ClusterCenters() mat.Matrix
}
