// Package tree implements a CART decision tree classifier.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"
)

// treeNode は決定木のノード
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode

	// 葉ノードでのクラス別サンプル数
	counts   []float64
	nSamples int
	depth    int
}

func (n *treeNode) isLeaf() bool { return n.left == nil }

// DecisionTreeClassifier はCARTによる分類木
type DecisionTreeClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	criterion       string
	maxDepth        int // 0 以下なら制限なし
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 以下なら全特徴量を使用
	randomState     int64
	minClasses      int

	// 学習パラメータ
	mu                  sync.RWMutex
	root                *treeNode
	nClasses_           int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

// Option はDecisionTreeClassifierの設定オプション
type Option func(*DecisionTreeClassifier)

// WithCriterion は不純度の指標を設定 ("gini" または "entropy")
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth は木の最大深さを設定
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit は分割に必要な最小サンプル数を設定
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf は葉ノードの最小サンプル数を設定
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures は各分割で検討する特徴量数を設定
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = n
	}
}

// WithRandomState は特徴量サンプリングの乱数シードを設定
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

// WithNClasses はクラス数の下限を設定する。
// ブートストラップ標本に一部のクラスが現れない場合でも確率行列の列数を揃える。
func WithNClasses(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minClasses = n
	}
}

// NewDecisionTreeClassifier は新しいDecisionTreeClassifierを作成
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit は分類木を学習する
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	if err := model.CheckXY("DecisionTree.Fit", X, y); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if model.NoLabels(y) {
		return errors.NewLabelCountMismatchError("DecisionTree.Fit", rows, 0)
	}
	if err := dt.validate(); err != nil {
		return err
	}

	labels, nClasses, err := model.ClassLabels("DecisionTree.Fit", y)
	if err != nil {
		return err
	}
	nClasses = max(nClasses, dt.minClasses)

	b := &builder{
		dt:          dt,
		X:           mat.DenseCopyOf(X),
		y:           labels,
		nClasses:    nClasses,
		importances: make([]float64, cols),
		rng:         rand.New(rand.NewSource(dt.randomState)),
	}
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}
	root := b.build(idx, 0)

	if total := floats.Sum(b.importances); total > 0 {
		floats.Scale(1/total, b.importances)
	}

	dt.mu.Lock()
	dt.root = root
	dt.nClasses_ = nClasses
	dt.featureImportances_ = b.importances
	dt.depth_ = b.depth
	dt.nLeaves_ = b.leaves
	dt.mu.Unlock()

	dt.state.SetDimensions(cols, rows)
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) validate() error {
	if dt.criterion != CriterionGini && dt.criterion != CriterionEntropy {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	return nil
}

// Predict は各行のクラス (n_samples × 1) を返す
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	leaves, err := dt.leavesFor("Predict", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(leaves), 1, nil)
	for i, leaf := range leaves {
		out.Set(i, 0, float64(floats.MaxIdx(leaf.counts)))
	}
	return out, nil
}

// PredictProba は葉ノードのクラス比率 (n_samples × n_classes) を返す
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	leaves, err := dt.leavesFor("PredictProba", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(leaves), dt.NClasses(), nil)
	for i, leaf := range leaves {
		n := float64(leaf.nSamples)
		for c, v := range leaf.counts {
			out.Set(i, c, v/n)
		}
	}
	return out, nil
}

// Score は正解率を返す
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.Accuracy(y, pred)
	if err != nil {
		return 0
	}
	return acc
}

// NClasses は学習時のクラス数を返す
func (dt *DecisionTreeClassifier) NClasses() int {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return dt.nClasses_
}

// GetFeatureImportances は不純度減少に基づく特徴量重要度 (合計1) を返す
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return slices.Clone(dt.featureImportances_)
}

// GetDepth は木の深さを返す (根のみなら0)
func (dt *DecisionTreeClassifier) GetDepth() int {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return dt.depth_
}

// GetNLeaves は葉ノード数を返す
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return dt.nLeaves_
}

// GetParams はハイパーパラメータを返す
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams はハイパーパラメータを設定
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = v
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				dt.maxDepth = v
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			default:
				dt.maxFeatures = v
			}
		case "random_state":
			v, ok := value.(int64)
			if !ok {
				return errors.NewValidationError(key, "must be an int64", value)
			}
			dt.randomState = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// String はモデルの文字列表現を返す
func (dt *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d)", dt.criterion, dt.maxDepth)
}

func (dt *DecisionTreeClassifier) leavesFor(method string, X mat.Matrix) ([]*treeNode, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, errors.NewShapeMismatchError("DecisionTree."+method, -1, 1, 0)
	}
	if err := dt.state.RequireFeatures("DecisionTree."+method, cols); err != nil {
		return nil, err
	}

	dt.mu.RLock()
	defer dt.mu.RUnlock()

	leaves := make([]*treeNode, rows)
	for i := 0; i < rows; i++ {
		node := dt.root
		for !node.isLeaf() {
			if X.At(i, node.feature) <= node.threshold {
				node = node.left
			} else {
				node = node.right
			}
		}
		leaves[i] = node
	}
	return leaves, nil
}

// builder は1回の Fit の間だけ使う木構築の作業領域
type builder struct {
	dt          *DecisionTreeClassifier
	X           *mat.Dense
	y           []int
	nClasses    int
	importances []float64
	rng         *rand.Rand

	depth  int
	leaves int
}

func (b *builder) build(idx []int, depth int) *treeNode {
	counts := make([]float64, b.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	n := len(idx)
	node := &treeNode{counts: counts, nSamples: n, depth: depth}

	current := b.impurity(counts, float64(n))
	dt := b.dt
	if current == 0 || n < dt.minSamplesSplit || n < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		return b.leaf(node)
	}

	feature, threshold, weighted, ok := b.bestSplit(idx, counts)
	if !ok {
		return b.leaf(node)
	}

	var left, right []int
	for _, i := range idx {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return b.leaf(node)
	}
	b.importances[feature] += float64(n) * (current - weighted)
	node.feature = feature
	node.threshold = threshold
	node.left = b.build(left, depth+1)
	node.right = b.build(right, depth+1)
	return node
}

func (b *builder) leaf(node *treeNode) *treeNode {
	b.leaves++
	b.depth = max(b.depth, node.depth)
	return node
}

// bestSplit は重み付き不純度が最小となる (特徴量, 閾値) を探す。
// 閾値は隣接する異なる値の中点。
func (b *builder) bestSplit(idx []int, counts []float64) (feature int, threshold, weighted float64, ok bool) {
	n := len(idx)
	_, nFeatures := b.X.Dims()
	candidates := b.candidateFeatures(nFeatures)

	sorted := slices.Clone(idx)
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)
	weighted = math.Inf(1)

	for _, j := range candidates {
		slices.SortStableFunc(sorted, func(a, c int) int {
			return cmpFloat(b.X.At(a, j), b.X.At(c, j))
		})
		for c := range left {
			left[c] = 0
		}
		for p := 1; p < n; p++ {
			left[b.y[sorted[p-1]]]++
			if p < b.dt.minSamplesLeaf || n-p < b.dt.minSamplesLeaf {
				continue
			}
			lo, hi := b.X.At(sorted[p-1], j), b.X.At(sorted[p], j)
			if lo == hi {
				continue
			}
			for c := range right {
				right[c] = counts[c] - left[c]
			}
			nl, nr := float64(p), float64(n-p)
			w := (nl*b.impurity(left, nl) + nr*b.impurity(right, nr)) / float64(n)
			if w < weighted {
				weighted = w
				feature = j
				threshold = midpoint(lo, hi)
				ok = true
			}
		}
	}
	return feature, threshold, weighted, ok
}

// midpoint は lo < hi の中点を返す。隣接する浮動小数点数やオーバーフローで
// hi 以上になる場合は lo を使い、hi が必ず右側に振り分けられるようにする。
func midpoint(lo, hi float64) float64 {
	m := lo + (hi-lo)/2
	if m >= hi || math.IsInf(m, 0) || math.IsNaN(m) {
		return lo
	}
	return m
}

func (b *builder) candidateFeatures(nFeatures int) []int {
	if b.dt.maxFeatures <= 0 || b.dt.maxFeatures >= nFeatures {
		all := make([]int, nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := b.rng.Perm(nFeatures)[:b.dt.maxFeatures]
	slices.Sort(perm)
	return perm
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	var v float64
	switch b.dt.criterion {
	case CriterionEntropy:
		for _, c := range counts {
			if c > 0 {
				p := c / n
				v -= p * math.Log2(p)
			}
		}
	default:
		v = 1
		for _, c := range counts {
			p := c / n
			v -= p * p
		}
	}
	return v
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
