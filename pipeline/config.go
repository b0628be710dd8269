package pipeline

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/neural_network"
)

// EpochMetrics は MLP の1エポック分の学習指標
type EpochMetrics = neural_network.EpochMetrics

// EpochHook は MLP の各エポック終了時に呼ばれる。エラーを返すと学習を中断する。
type EpochHook = neural_network.EpochHook

// TrainingConfig はアダプタに渡す学習設定。
// 使わないフィールドは各アダプタが無視する。
type TrainingConfig struct {
	// K は KNN の近傍数、K-Means のクラスタ数。範囲チェックはアダプタで行う (InvalidK)。
	K int

	// NTrees はランダムフォレストの木の本数
	NTrees int `validate:"gte=1"`

	// Epochs は MLP の学習エポック数
	Epochs int `validate:"gte=1"`

	// Seed は乱数を使う全アルゴリズムのシード
	Seed int64

	// MaxDepth は木の最大深さ (0 で制限なし)
	MaxDepth int `validate:"gte=0"`

	MinSamplesLeaf int    `validate:"gte=1"`
	Criterion      string `validate:"oneof=gini entropy"`
	Weights        string `validate:"oneof=uniform distance"`

	LearningRate float64 `validate:"gt=0"`
	BatchSize    int     `validate:"gte=1"`

	// ValidationSplit は MLP で末尾から検証用に取り置く割合
	ValidationSplit float64 `validate:"gte=0,lt=1"`

	// MaxIter は K-Means の最大イテレーション数
	MaxIter int `validate:"gte=1"`

	EpochHook EpochHook `validate:"-"`
}

// DefaultTrainingConfig はすべてのフィールドにデフォルト値を設定した設定を返す
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{K: 3}.WithDefaults()
}

// WithDefaults はゼロ値のフィールドをデフォルト値で埋めたコピーを返す。
// K == 0 は呼び出し側の誤りとして InvalidK にするため埋めない。
func (c TrainingConfig) WithDefaults() TrainingConfig {
	if c.NTrees == 0 {
		c.NTrees = 100
	}
	if c.Epochs == 0 {
		c.Epochs = 50
	}
	if c.MinSamplesLeaf == 0 {
		c.MinSamplesLeaf = 1
	}
	if c.Criterion == "" {
		c.Criterion = "gini"
	}
	if c.Weights == "" {
		c.Weights = "uniform"
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.ValidationSplit == 0 {
		c.ValidationSplit = 0.2
	}
	if c.MaxIter == 0 {
		c.MaxIter = 300
	}
	return c
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate はフィールドの値域を確認し、最初の違反を ValidationError として返す
func (c TrainingConfig) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return errors.NewValidationError(fe.Field(), "must satisfy "+reason, fe.Value())
	}
	return errors.NewValidationError("TrainingConfig", err.Error(), nil)
}

// prepare はアダプタ共通の前処理 (デフォルト値の補完と検証)
func prepare(cfg TrainingConfig) (TrainingConfig, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
