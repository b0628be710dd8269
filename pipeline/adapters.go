package pipeline

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/sklearn/cluster"
	"github.com/YuminosukeSato/mlpipe/sklearn/ensemble"
	"github.com/YuminosukeSato/mlpipe/sklearn/neighbors"
	"github.com/YuminosukeSato/mlpipe/sklearn/neural_network"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

// KNNAdapter は k 近傍法のアダプタ
type KNNAdapter struct{}

func (KNNAdapter) Train(ctx context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	knn := neighbors.NewKNeighborsClassifier(
		neighbors.WithNNeighbors(cfg.K),
		neighbors.WithWeights(cfg.Weights),
	)
	if err := knn.Fit(X, Y); err != nil {
		return nil, err
	}

	h := NewHandle(KNN, X, knn)
	h.Report.TrainAccuracy = knn.Score(X, Y)
	h.Report.Duration = time.Since(start)
	return h, nil
}

func (KNNAdapter) Predict(ctx context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error) {
	knn, err := modelAs[model.Classifier](h, KNN)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return knn.Predict(X)
}

// KMeansAdapter は K-Means のアダプタ。Y は任意。
type KMeansAdapter struct{}

func (KMeansAdapter) Train(ctx context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	km := cluster.NewKMeans(
		cluster.WithNClusters(cfg.K),
		cluster.WithMaxIter(cfg.MaxIter),
		cluster.WithRandomState(cfg.Seed),
	)
	if err := km.Fit(X, Y); err != nil {
		return nil, err
	}

	h := NewHandle(KMeans, X, km)
	h.Clustering = &Clustering{
		Assignments: km.Labels(),
		Centroids:   mat.DenseCopyOf(km.ClusterCenters()),
		Inertia:     km.Inertia(),
		NIter:       km.NIter(),
	}
	h.Report.Duration = time.Since(start)
	return h, nil
}

func (KMeansAdapter) Predict(ctx context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error) {
	km, err := modelAs[model.Clusterer](h, KMeans)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return km.Predict(X)
}

// DecisionTreeAdapter は CART 決定木のアダプタ
type DecisionTreeAdapter struct{}

func (DecisionTreeAdapter) Train(ctx context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	dt := tree.NewDecisionTreeClassifier(
		tree.WithCriterion(cfg.Criterion),
		tree.WithMaxDepth(cfg.MaxDepth),
		tree.WithMinSamplesLeaf(cfg.MinSamplesLeaf),
		tree.WithRandomState(cfg.Seed),
	)
	if err := dt.Fit(X, Y); err != nil {
		return nil, err
	}

	h := NewHandle(DecisionTree, X, dt)
	h.Report.TrainAccuracy = dt.Score(X, Y)
	h.Report.Duration = time.Since(start)
	return h, nil
}

func (DecisionTreeAdapter) Predict(ctx context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error) {
	dt, err := modelAs[model.Classifier](h, DecisionTree)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dt.Predict(X)
}

// RandomForestAdapter はランダムフォレストのアダプタ
type RandomForestAdapter struct{}

func (RandomForestAdapter) Train(ctx context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	rf := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(cfg.NTrees),
		ensemble.WithCriterion(cfg.Criterion),
		ensemble.WithMaxDepth(cfg.MaxDepth),
		ensemble.WithMinSamplesLeaf(cfg.MinSamplesLeaf),
		ensemble.WithRandomState(cfg.Seed),
	)
	if err := rf.FitContext(ctx, X, Y); err != nil {
		return nil, err
	}

	h := NewHandle(RandomForest, X, rf)
	h.Report.TrainAccuracy = rf.Score(X, Y)
	h.Report.Duration = time.Since(start)
	return h, nil
}

func (RandomForestAdapter) Predict(ctx context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error) {
	rf, err := modelAs[model.Classifier](h, RandomForest)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rf.Predict(X)
}

// MLPAdapter はニューラルネットワークのアダプタ。Predict は各行の確率分布を返す。
type MLPAdapter struct{}

func (MLPAdapter) Train(ctx context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	opts := []neural_network.Option{
		neural_network.WithEpochs(cfg.Epochs),
		neural_network.WithLearningRate(cfg.LearningRate),
		neural_network.WithBatchSize(cfg.BatchSize),
		neural_network.WithValidationSplit(cfg.ValidationSplit),
		neural_network.WithRandomState(cfg.Seed),
	}
	if cfg.EpochHook != nil {
		opts = append(opts, neural_network.WithEpochHook(cfg.EpochHook))
	}
	mlp := neural_network.NewMLPClassifier(opts...)
	if err := mlp.FitContext(ctx, X, Y); err != nil {
		return nil, err
	}

	h := NewHandle(MLP, X, mlp)
	h.Report.Epochs = mlp.History()
	if n := len(h.Report.Epochs); n > 0 {
		h.Report.TrainAccuracy = h.Report.Epochs[n-1].Accuracy
	}
	h.Report.Duration = time.Since(start)
	return h, nil
}

func (MLPAdapter) Predict(ctx context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error) {
	mlp, err := modelAs[model.ProbaPredictor](h, MLP)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return mlp.PredictProba(X)
}
