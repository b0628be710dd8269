// Package ensemble implements a bagged random forest of CART trees.
package ensemble

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/core/parallel"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

// MaxFeaturesSqrt は各分割で sqrt(n_features) 個の特徴量を検討する
const MaxFeaturesSqrt = -1

// RandomForestClassifier はブートストラップ標本で学習した決定木の多数決分類器
type RandomForestClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	nEstimators    int
	criterion      string
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
	randomState    int64
	nJobs          int

	// 学習パラメータ
	mu         sync.RWMutex
	estimators []*tree.DecisionTreeClassifier
	nClasses_  int
}

// Option はRandomForestClassifierの設定オプション
type Option func(*RandomForestClassifier)

// WithNEstimators は木の本数を設定
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion は各木の不純度指標を設定
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth は各木の最大深さを設定 (0 以下で制限なし)
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesLeaf は葉ノードの最小サンプル数を設定
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures は各分割で検討する特徴量数を設定 (MaxFeaturesSqrt, 0 で全特徴量)
func WithMaxFeatures(n int) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = n }
}

// WithRandomState は乱数シードを設定。木 i はシード seed+i を使う。
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs は並列に学習する木の数を設定 (0 以下で CPU 数)
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier は新しいRandomForestClassifierを作成 (デフォルト100本)
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:          model.NewStateManager(),
		nEstimators:    100,
		criterion:      tree.CriterionGini,
		minSamplesLeaf: 1,
		maxFeatures:    MaxFeaturesSqrt,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit は context.Background() で FitContext を呼ぶ
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext は各木をブートストラップ標本で並列に学習する。
// ctx がキャンセルされると未着手の木は学習せずにエラーを返す。
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := model.CheckXY("RandomForest.Fit", X, y); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if model.NoLabels(y) {
		return errors.NewLabelCountMismatchError("RandomForest.Fit", rows, 0)
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}

	labels, nClasses, err := model.ClassLabels("RandomForest.Fit", y)
	if err != nil {
		return err
	}

	data := mat.DenseCopyOf(X)
	maxFeatures := rf.maxFeatures
	if maxFeatures == MaxFeaturesSqrt {
		maxFeatures = max(1, int(math.Sqrt(float64(cols))))
	}

	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err = parallel.ForEach(ctx, rf.nEstimators, rf.nJobs, func(_ context.Context, i int) error {
		seed := rf.randomState + int64(i)
		bx, by := bootstrap(data, labels, rand.New(rand.NewSource(seed)))

		dt := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(maxFeatures),
			tree.WithRandomState(seed),
			tree.WithNClasses(nClasses),
		)
		if err := dt.Fit(bx, by); err != nil {
			return err
		}
		estimators[i] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.mu.Lock()
	rf.estimators = estimators
	rf.nClasses_ = nClasses
	rf.mu.Unlock()

	rf.state.SetDimensions(cols, rows)
	rf.state.SetFitted()
	return nil
}

// Predict は多数決によるクラス (n_samples × 1) を返す。同票は小さいクラスを採用。
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	votes, err := rf.votes("Predict", X)
	if err != nil {
		return nil, err
	}
	rows, _ := votes.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(votes.RawRowView(i))))
	}
	return out, nil
}

// PredictProba は各クラスの得票率 (n_samples × n_classes) を返す
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	votes, err := rf.votes("PredictProba", X)
	if err != nil {
		return nil, err
	}
	votes.Scale(1/float64(len(rf.Estimators())), votes)
	return votes, nil
}

// Score は正解率を返す
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.Accuracy(y, pred)
	if err != nil {
		return 0
	}
	return acc
}

// Estimators は学習済みの木を返す
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return append([]*tree.DecisionTreeClassifier(nil), rf.estimators...)
}

// NClasses は学習時のクラス数を返す
func (rf *RandomForestClassifier) NClasses() int {
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return rf.nClasses_
}

// String はモデルの文字列表現を返す
func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_depth=%d)", rf.nEstimators, rf.maxDepth)
}

func (rf *RandomForestClassifier) votes(method string, X mat.Matrix) (*mat.Dense, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", method); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, errors.NewShapeMismatchError("RandomForest."+method, -1, 1, 0)
	}
	if err := rf.state.RequireFeatures("RandomForest."+method, cols); err != nil {
		return nil, err
	}

	rf.mu.RLock()
	defer rf.mu.RUnlock()

	votes := mat.NewDense(rows, rf.nClasses_, nil)
	for _, dt := range rf.estimators {
		pred, err := dt.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			c := int(pred.At(i, 0))
			votes.Set(i, c, votes.At(i, c)+1)
		}
	}
	return votes, nil
}

// bootstrap は復元抽出で n 行を選ぶ
func bootstrap(X *mat.Dense, labels []int, rng *rand.Rand) (*mat.Dense, *mat.Dense) {
	rows, cols := X.Dims()
	bx := mat.NewDense(rows, cols, nil)
	by := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		j := rng.Intn(rows)
		bx.SetRow(i, X.RawRowView(j))
		by.Set(i, 0, float64(labels[j]))
	}
	return bx, by
}
