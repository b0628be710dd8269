// Package cluster implements k-means clustering with k-means++ seeding.
package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// KMeans はLloydアルゴリズムによるK-meansクラスタリング
type KMeans struct {
	state *model.StateManager

	// ハイパーパラメータ
	nClusters   int     // クラスタ数
	maxIter     int     // 最大イテレーション数
	tol         float64 // 中心移動量(二乗)の収束判定
	randomState int64   // 乱数シード

	// 学習パラメータ
	mu              sync.RWMutex
	clusterCenters_ [][]float64
	labels_         []int
	inertia_        float64
	nIter_          int
}

// KMeansOption はKMeansの設定オプション
type KMeansOption func(*KMeans)

// WithNClusters はクラスタ数を設定
func WithNClusters(n int) KMeansOption {
	return func(km *KMeans) {
		km.nClusters = n
	}
}

// WithMaxIter は最大イテレーション数を設定
func WithMaxIter(maxIter int) KMeansOption {
	return func(km *KMeans) {
		km.maxIter = maxIter
	}
}

// WithTol は収束判定の許容誤差を設定
func WithTol(tol float64) KMeansOption {
	return func(km *KMeans) {
		km.tol = tol
	}
}

// WithRandomState は乱数シードを設定
func WithRandomState(seed int64) KMeansOption {
	return func(km *KMeans) {
		km.randomState = seed
	}
}

// NewKMeans は新しいKMeansを作成 (デフォルト 8 クラスタ, 300 イテレーション)
func NewKMeans(options ...KMeansOption) *KMeans {
	km := &KMeans{
		state:     model.NewStateManager(),
		nClusters: 8,
		maxIter:   300,
		tol:       1e-4,
	}
	for _, opt := range options {
		opt(km)
	}
	return km
}

// Fit はクラスタ中心を学習する。y は無視される (nil 可)。
func (km *KMeans) Fit(X, y mat.Matrix) error {
	if err := model.CheckXY("KMeans.Fit", X, y); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if km.nClusters < 1 || km.nClusters > rows {
		return errors.NewInvalidKError("KMeans.Fit", km.nClusters, rows)
	}
	if km.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", km.maxIter)
	}

	data := mat.DenseCopyOf(X)
	rng := rand.New(rand.NewSource(km.randomState))
	centers := initKMeansPlusPlus(data, km.nClusters, rng)

	labels := make([]int, rows)
	sums := make([][]float64, km.nClusters)
	for c := range sums {
		sums[c] = make([]float64, cols)
	}
	counts := make([]int, km.nClusters)

	converged := false
	iter := 0
	for iter < km.maxIter && !converged {
		iter++
		for i := 0; i < rows; i++ {
			labels[i], _ = nearestCenter(data.RawRowView(i), centers)
		}

		for c := range sums {
			for j := range sums[c] {
				sums[c][j] = 0
			}
			counts[c] = 0
		}
		for i, l := range labels {
			floats.Add(sums[l], data.RawRowView(i))
			counts[l]++
		}

		shift := 0.0
		for c := range centers {
			// 空クラスタは前回の中心を維持
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			d := floats.Distance(centers[c], sums[c], 2)
			shift += d * d
			copy(centers[c], sums[c])
		}
		converged = shift <= km.tol
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("KMeans", iter, "centers still moving at max_iter"))
	}

	inertia := 0.0
	for i := 0; i < rows; i++ {
		var d float64
		labels[i], d = nearestCenter(data.RawRowView(i), centers)
		inertia += d * d
	}

	km.mu.Lock()
	km.clusterCenters_ = centers
	km.labels_ = labels
	km.inertia_ = inertia
	km.nIter_ = iter
	km.mu.Unlock()

	km.state.SetDimensions(cols, rows)
	km.state.SetFitted()
	return nil
}

// Predict は各サンプルを最も近いクラスタ中心に割り当てる (n_samples × 1)
func (km *KMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := km.state.RequireFitted("KMeans", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, errors.NewShapeMismatchError("KMeans.Predict", -1, 1, 0)
	}
	if err := km.state.RequireFeatures("KMeans.Predict", cols); err != nil {
		return nil, err
	}

	km.mu.RLock()
	defer km.mu.RUnlock()

	out := mat.NewDense(rows, 1, nil)
	sample := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(sample, i, X)
		c, _ := nearestCenter(sample, km.clusterCenters_)
		out.Set(i, 0, float64(c))
	}
	return out, nil
}

// ClusterCenters はクラスタ中心 (n_clusters × n_features) のコピーを返す
func (km *KMeans) ClusterCenters() mat.Matrix {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if km.clusterCenters_ == nil {
		return nil
	}
	cols := len(km.clusterCenters_[0])
	out := mat.NewDense(len(km.clusterCenters_), cols, nil)
	for i, c := range km.clusterCenters_ {
		out.SetRow(i, c)
	}
	return out
}

// Labels は学習データの各サンプルのクラスタラベルを返す
func (km *KMeans) Labels() []int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return append([]int(nil), km.labels_...)
}

// Inertia はクラスタ内平方和誤差を返す
func (km *KMeans) Inertia() float64 {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.inertia_
}

// NIter は実行されたイテレーション数を返す
func (km *KMeans) NIter() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.nIter_
}

// String はモデルの文字列表現を返す
func (km *KMeans) String() string {
	return fmt.Sprintf("KMeans(n_clusters=%d, max_iter=%d)", km.nClusters, km.maxIter)
}

// initKMeansPlusPlus はk-means++初期化を実行
func initKMeansPlusPlus(X *mat.Dense, k int, rng *rand.Rand) [][]float64 {
	rows, cols := X.Dims()
	centers := make([][]float64, k)

	// 最初のクラスタ中心をランダムに選択
	centers[0] = make([]float64, cols)
	copy(centers[0], X.RawRowView(rng.Intn(rows)))

	distances := make([]float64, rows)
	for c := 1; c < k; c++ {
		// 各サンプルから最近傍クラスタ中心までの距離の二乗
		total := 0.0
		for i := 0; i < rows; i++ {
			_, d := nearestCenter(X.RawRowView(i), centers[:c])
			distances[i] = d * d
			total += distances[i]
		}

		// 距離の二乗に比例した確率でサンプルを選択
		target := rng.Float64() * total
		cumSum := 0.0
		selected := rows - 1
		for i := 0; i < rows; i++ {
			cumSum += distances[i]
			if cumSum >= target && distances[i] > 0 {
				selected = i
				break
			}
		}

		centers[c] = make([]float64, cols)
		copy(centers[c], X.RawRowView(selected))
	}
	return centers
}

// nearestCenter は最も近い中心のインデックスと距離を返す
func nearestCenter(sample []float64, centers [][]float64) (int, float64) {
	best := 0
	minDist := math.Inf(1)
	for c, center := range centers {
		if d := floats.Distance(sample, center, 2); d < minDist {
			minDist = d
			best = c
		}
	}
	return best, minDist
}
