// Package neighbors implements k-nearest-neighbors classification.
package neighbors

import (
	"fmt"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/core/parallel"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// parallelThreshold はこの行数を超えると Predict を並列化する
const parallelThreshold = 64

// KNeighborsClassifier は k 近傍法による分類器。
// Fit は訓練データを保持するだけで、距離計算はすべて Predict で行う。
type KNeighborsClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	nNeighbors int
	weights    string

	// 学習データ
	mu        sync.RWMutex
	xTrain    *mat.Dense
	yTrain    []int
	nClasses_ int
}

// Option はKNeighborsClassifierの設定オプション
type Option func(*KNeighborsClassifier)

// WithNNeighbors は近傍数 k を設定
func WithNNeighbors(k int) Option {
	return func(knn *KNeighborsClassifier) {
		knn.nNeighbors = k
	}
}

// WithWeights は投票の重み付けを設定 ("uniform" または "distance")
func WithWeights(w string) Option {
	return func(knn *KNeighborsClassifier) {
		knn.weights = w
	}
}

// NewKNeighborsClassifier は新しいKNeighborsClassifierを作成 (デフォルト k=3, uniform)
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	knn := &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: 3,
		weights:    WeightsUniform,
	}
	for _, opt := range opts {
		opt(knn)
	}
	return knn
}

// Fit は訓練データをコピーして保持する
func (knn *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	if err := model.CheckXY("KNN.Fit", X, y); err != nil {
		return err
	}
	r, c := X.Dims()
	if model.NoLabels(y) {
		return errors.NewLabelCountMismatchError("KNN.Fit", r, 0)
	}
	if knn.nNeighbors < 1 || knn.nNeighbors > r {
		return errors.NewInvalidKError("KNN.Fit", knn.nNeighbors, r)
	}
	if knn.weights != WeightsUniform && knn.weights != WeightsDistance {
		return errors.NewValidationError("weights", "must be uniform or distance", knn.weights)
	}

	labels, nClasses, err := model.ClassLabels("KNN.Fit", y)
	if err != nil {
		return err
	}

	knn.mu.Lock()
	knn.xTrain = mat.DenseCopyOf(X)
	knn.yTrain = labels
	knn.nClasses_ = nClasses
	knn.mu.Unlock()

	knn.state.SetDimensions(c, r)
	knn.state.SetFitted()
	return nil
}

// Predict は各行の予測クラス (n_samples × 1) を返す
func (knn *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	votes, err := knn.vote("Predict", X)
	if err != nil {
		return nil, err
	}
	r := len(votes)
	out := mat.NewDense(r, 1, nil)
	for i, v := range votes {
		out.Set(i, 0, float64(v.winner))
	}
	return out, nil
}

// PredictProba は各行の (重み付き) 得票率 (n_samples × n_classes) を返す
func (knn *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	votes, err := knn.vote("PredictProba", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(votes), knn.nClasses_, nil)
	for i, v := range votes {
		total := floats.Sum(v.scores)
		for c, s := range v.scores {
			out.Set(i, c, s/total)
		}
	}
	return out, nil
}

// Score は正解率を返す
func (knn *KNeighborsClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := knn.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.Accuracy(y, pred)
	if err != nil {
		return 0
	}
	return acc
}

// NClasses は学習時に見たクラス数を返す
func (knn *KNeighborsClassifier) NClasses() int {
	knn.mu.RLock()
	defer knn.mu.RUnlock()
	return knn.nClasses_
}

// String はモデルの文字列表現を返す
func (knn *KNeighborsClassifier) String() string {
	return fmt.Sprintf("KNeighborsClassifier(n_neighbors=%d, weights=%s)", knn.nNeighbors, knn.weights)
}

type ballot struct {
	scores []float64
	winner int
}

func (knn *KNeighborsClassifier) vote(method string, X mat.Matrix) ([]ballot, error) {
	if err := knn.state.RequireFitted("KNeighborsClassifier", method); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if r == 0 {
		return nil, errors.NewShapeMismatchError("KNN."+method, -1, 1, 0)
	}
	if err := knn.state.RequireFeatures("KNN."+method, c); err != nil {
		return nil, err
	}

	knn.mu.RLock()
	defer knn.mu.RUnlock()

	out := make([]ballot, r)
	err := parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		query := make([]float64, c)
		nTrain, _ := knn.xTrain.Dims()
		dists := make([]float64, nTrain)
		order := make([]int, nTrain)
		for i := start; i < end; i++ {
			mat.Row(query, i, X)
			for j := 0; j < nTrain; j++ {
				dists[j] = floats.Distance(query, knn.xTrain.RawRowView(j), 2)
				order[j] = j
			}
			out[i] = knn.ballotFor(dists, order)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ballotFor は距離の昇順に k 個の近傍を選び投票する。
// 同票の場合は最も近い近傍のクラスを採用する。
func (knn *KNeighborsClassifier) ballotFor(dists []float64, order []int) ballot {
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case dists[a] < dists[b]:
			return -1
		case dists[a] > dists[b]:
			return 1
		default:
			return 0
		}
	})
	neighbors := order[:knn.nNeighbors]

	scores := make([]float64, knn.nClasses_)
	exact := knn.weights == WeightsDistance && dists[neighbors[0]] == 0
	for _, j := range neighbors {
		w := 1.0
		if knn.weights == WeightsDistance {
			switch {
			case exact && dists[j] == 0:
				w = 1
			case exact:
				w = 0
			default:
				w = 1 / dists[j]
			}
		}
		scores[knn.yTrain[j]] += w
	}

	best := floats.Max(scores)
	winner := knn.yTrain[neighbors[0]]
	for _, j := range neighbors {
		if scores[knn.yTrain[j]] == best {
			winner = knn.yTrain[j]
			break
		}
	}
	return ballot{scores: scores, winner: winner}
}
