package pipeline

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// Dispatcher はアルゴリズム識別子に対応するアダプタを呼び出す。
// アルゴリズムのロジックは持たず、X, Y, cfg はそのままアダプタに渡す。
type Dispatcher struct {
	mu       sync.RWMutex
	adapters map[Algorithm]Adapter
	logger   log.Logger
}

// DispatcherOption はDispatcherの設定オプション
type DispatcherOption func(*Dispatcher)

// WithLogger はログ出力先を設定
func WithLogger(logger log.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher は組み込みの5つのアダプタを登録したDispatcherを作成
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		adapters: map[Algorithm]Adapter{
			KNN:          KNNAdapter{},
			KMeans:       KMeansAdapter{},
			DecisionTree: DecisionTreeAdapter{},
			RandomForest: RandomForestAdapter{},
			MLP:          MLPAdapter{},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.GetLoggerWithName("pipeline")
	}
	return d
}

// Register は algorithm のアダプタを置き換える (テストでフェイクを差し込む用途)
func (d *Dispatcher) Register(algorithm Algorithm, adapter Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[algorithm] = adapter
}

func (d *Dispatcher) adapter(algorithm Algorithm) (Adapter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[algorithm]
	if !ok {
		return nil, errors.NewUnknownAlgorithmError(algorithm.String())
	}
	return a, nil
}

// Run は algorithm のアダプタで学習する。
// アダプタ内の panic は PanicError に変換して返す。
func (d *Dispatcher) Run(ctx context.Context, algorithm Algorithm, X, Y mat.Matrix, cfg TrainingConfig) (h *Handle, err error) {
	defer errors.Recover(&err, "Dispatcher.Run")

	a, err := d.adapter(algorithm)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With(log.AlgorithmKey, algorithm.String())
	start := time.Now()
	h, err = a.Train(ctx, X, Y, cfg)
	if err != nil {
		logger.Debug("Training failed", log.OperationKey, log.OperationFit, "error", err.Error())
		return nil, err
	}

	fields := []any{
		log.EstimatorIDKey, h.ID.String(),
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, h.NSamples,
		log.FeaturesKey, h.NFeatures,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	}
	if h.Clustering != nil {
		fields = append(fields, log.InertiaKey, h.Clustering.Inertia, log.IterationKey, h.Clustering.NIter)
	} else {
		fields = append(fields, log.AccuracyKey, h.Report.TrainAccuracy)
	}
	logger.Info("Model trained", fields...)
	return h, nil
}

// Predict は Handle を生成したアルゴリズムのアダプタで推論する
func (d *Dispatcher) Predict(ctx context.Context, h *Handle, X mat.Matrix) (out mat.Matrix, err error) {
	defer errors.Recover(&err, "Dispatcher.Predict")

	if h == nil {
		return nil, errors.NewValidationError("handle", "must not be nil", nil)
	}
	a, err := d.adapter(h.Algorithm)
	if err != nil {
		return nil, err
	}

	out, err = a.Predict(ctx, h, X)
	if err != nil {
		return nil, err
	}

	if d.logger.Enabled(ctx, log.LevelDebug) {
		rows, _ := out.Dims()
		d.logger.Debug("Prediction completed",
			log.AlgorithmKey, h.Algorithm.String(),
			log.EstimatorIDKey, h.ID.String(),
			log.OperationKey, log.OperationPredict,
			log.PhaseKey, log.PhaseInference,
			log.PredsKey, rows,
		)
	}
	return out, nil
}
