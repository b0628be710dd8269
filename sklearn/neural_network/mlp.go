// Package neural_network implements a small fully connected classifier
// (ReLU hidden layers, softmax output) trained with Adam.
package neural_network

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// EpochMetrics は1エポック終了時の学習指標
type EpochMetrics struct {
	Epoch    int     `json:"epoch"` // 1始まり
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`

	// HasValidation が false の場合 ValLoss, ValAccuracy は 0
	HasValidation bool    `json:"has_validation"`
	ValLoss       float64 `json:"val_loss,omitempty"`
	ValAccuracy   float64 `json:"val_accuracy,omitempty"`
}

// EpochHook は各エポックの終わりに呼ばれる。エラーを返すと学習を中断する。
type EpochHook func(m EpochMetrics) error

type layer struct {
	W *mat.Dense // fanIn × fanOut
	b []float64
}

// MLPClassifier は全結合ニューラルネットワークによる分類器。
// 出力層は softmax、損失はカテゴリカル交差エントロピー。
type MLPClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	hiddenLayerSizes []int
	epochs           int
	learningRate     float64
	batchSize        int
	validationSplit  float64
	randomState      int64
	hook             EpochHook

	// 学習パラメータ
	mu       sync.RWMutex
	layers   []layer
	nOutputs int
	history  []EpochMetrics
}

// Option はMLPClassifierの設定オプション
type Option func(*MLPClassifier)

// WithHiddenLayerSizes は隠れ層のユニット数を設定
func WithHiddenLayerSizes(sizes ...int) Option {
	return func(m *MLPClassifier) { m.hiddenLayerSizes = append([]int(nil), sizes...) }
}

// WithEpochs はエポック数を設定
func WithEpochs(n int) Option {
	return func(m *MLPClassifier) { m.epochs = n }
}

// WithLearningRate はAdamの学習率を設定
func WithLearningRate(lr float64) Option {
	return func(m *MLPClassifier) { m.learningRate = lr }
}

// WithBatchSize はミニバッチサイズを設定
func WithBatchSize(n int) Option {
	return func(m *MLPClassifier) { m.batchSize = n }
}

// WithValidationSplit は末尾から検証用に取り置く行の割合を設定
func WithValidationSplit(frac float64) Option {
	return func(m *MLPClassifier) { m.validationSplit = frac }
}

// WithRandomState は重み初期化とシャッフルの乱数シードを設定
func WithRandomState(seed int64) Option {
	return func(m *MLPClassifier) { m.randomState = seed }
}

// WithEpochHook はエポックごとのフックを設定
func WithEpochHook(hook EpochHook) Option {
	return func(m *MLPClassifier) { m.hook = hook }
}

// NewMLPClassifier は新しいMLPClassifierを作成
// (デフォルト: 隠れ層 64→32, 50エポック, 学習率 0.001, バッチ 32, 検証 20%)
func NewMLPClassifier(opts ...Option) *MLPClassifier {
	m := &MLPClassifier{
		state:            model.NewStateManager(),
		hiddenLayerSizes: []int{64, 32},
		epochs:           50,
		learningRate:     0.001,
		batchSize:        32,
		validationSplit:  0.2,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fit は context.Background() で FitContext を呼ぶ
func (m *MLPClassifier) Fit(X, y mat.Matrix) error {
	return m.FitContext(context.Background(), X, y)
}

// FitContext はネットワークを学習する。
//
// y は n×C の one-hot (または確率) 行列、もしくは n×1 のクラスインデックス。
// 末尾 validationSplit の割合の行は学習に使わず検証指標の計算だけに使う。
// ctx はエポックの境界ごとに確認する。
func (m *MLPClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := model.CheckXY("MLP.Fit", X, y); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if model.NoLabels(y) {
		return errors.NewLabelCountMismatchError("MLP.Fit", rows, 0)
	}
	if err := m.validate(); err != nil {
		return err
	}

	targets, err := oneHotTargets(y)
	if err != nil {
		return err
	}
	_, nOutputs := targets.Dims()

	nTrain := int(math.Floor(float64(rows) * (1 - m.validationSplit)))
	if nTrain < 1 {
		return errors.NewValidationError("validation_split", "leaves no training rows", m.validationSplit)
	}
	data := mat.DenseCopyOf(X)
	xTrain := data.Slice(0, nTrain, 0, cols).(*mat.Dense)
	yTrain := targets.Slice(0, nTrain, 0, nOutputs).(*mat.Dense)
	var xVal, yVal *mat.Dense
	if nTrain < rows {
		xVal = data.Slice(nTrain, rows, 0, cols).(*mat.Dense)
		yVal = targets.Slice(nTrain, rows, 0, nOutputs).(*mat.Dense)
	}

	rng := rand.New(rand.NewSource(m.randomState))
	layers := initLayers(cols, m.hiddenLayerSizes, nOutputs, rng)
	params := make([][]float64, 0, 2*len(layers))
	for _, l := range layers {
		params = append(params, l.W.RawMatrix().Data, l.b)
	}
	opt := newAdam(m.learningRate, params)

	history := make([]EpochMetrics, 0, m.epochs)
	for epoch := 1; epoch <= m.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var lossSum, correct float64
		perm := rng.Perm(nTrain)
		for start := 0; start < nTrain; start += m.batchSize {
			end := min(start+m.batchSize, nTrain)
			bx, by := gatherBatch(xTrain, yTrain, perm[start:end])

			acts := forward(layers, bx)
			probs := acts[len(acts)-1]
			loss, hits, err := crossEntropy(by, probs)
			if err != nil {
				return err
			}
			lossSum += loss * float64(end-start)
			correct += hits

			opt.step(params, backward(layers, acts, by))
		}

		em := EpochMetrics{
			Epoch:    epoch,
			Loss:     lossSum / float64(nTrain),
			Accuracy: correct / float64(nTrain),
		}
		if err := errors.CheckScalar("MLP.Fit.loss", em.Loss, epoch); err != nil {
			return err
		}
		if xVal != nil {
			vr, _ := xVal.Dims()
			acts := forward(layers, xVal)
			vloss, vhits, err := crossEntropy(yVal, acts[len(acts)-1])
			if err != nil {
				return err
			}
			em.HasValidation = true
			em.ValLoss = vloss
			em.ValAccuracy = vhits / float64(vr)
		}
		history = append(history, em)

		if m.hook != nil {
			if err := m.hook(em); err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	m.layers = layers
	m.nOutputs = nOutputs
	m.history = history
	m.mu.Unlock()

	m.state.SetDimensions(cols, rows)
	m.state.SetFitted()
	return nil
}

func (m *MLPClassifier) validate() error {
	switch {
	case m.epochs < 1:
		return errors.NewValidationError("epochs", "must be >= 1", m.epochs)
	case !(m.learningRate > 0):
		return errors.NewValidationError("learning_rate", "must be > 0", m.learningRate)
	case m.batchSize < 1:
		return errors.NewValidationError("batch_size", "must be >= 1", m.batchSize)
	case m.validationSplit < 0 || m.validationSplit >= 1:
		return errors.NewValidationError("validation_split", "must be in [0, 1)", m.validationSplit)
	}
	for _, h := range m.hiddenLayerSizes {
		if h < 1 {
			return errors.NewValidationError("hidden_layer_sizes", "every layer needs >= 1 unit", m.hiddenLayerSizes)
		}
	}
	return nil
}

// PredictProba は各行のクラス確率分布 (n_samples × n_outputs) を返す
func (m *MLPClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MLPClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, errors.NewShapeMismatchError("MLP.PredictProba", -1, 1, 0)
	}
	if err := m.state.RequireFeatures("MLP.PredictProba", cols); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	acts := forward(m.layers, mat.DenseCopyOf(X))
	return acts[len(acts)-1], nil
}

// Predict は確率最大のクラス (n_samples × 1) を返す
func (m *MLPClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	p := proba.(*mat.Dense)
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(p.RawRowView(i))))
	}
	return out, nil
}

// History はエポックごとの学習指標を返す
func (m *MLPClassifier) History() []EpochMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EpochMetrics(nil), m.history...)
}

// NOutputs は出力層のユニット数を返す
func (m *MLPClassifier) NOutputs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nOutputs
}

// String はモデルの文字列表現を返す
func (m *MLPClassifier) String() string {
	return fmt.Sprintf("MLPClassifier(hidden_layer_sizes=%v, epochs=%d)", m.hiddenLayerSizes, m.epochs)
}

// oneHotTargets は n×1 のクラスインデックスを one-hot に展開し、n×C はそのままコピーする
func oneHotTargets(y mat.Matrix) (*mat.Dense, error) {
	rows, cols := y.Dims()
	if cols > 1 {
		return mat.DenseCopyOf(y), nil
	}
	labels, nClasses, err := model.ClassLabels("MLP.Fit", y)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, nClasses, nil)
	for i, l := range labels {
		out.Set(i, l, 1)
	}
	return out, nil
}

// initLayers は Glorot 一様分布で重みを初期化する (バイアスは0)
func initLayers(nIn int, hidden []int, nOut int, rng *rand.Rand) []layer {
	sizes := append(append([]int{nIn}, hidden...), nOut)
	layers := make([]layer, len(sizes)-1)
	for l := range layers {
		fanIn, fanOut := sizes[l], sizes[l+1]
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		w := make([]float64, fanIn*fanOut)
		for i := range w {
			w[i] = (2*rng.Float64() - 1) * limit
		}
		layers[l] = layer{W: mat.NewDense(fanIn, fanOut, w), b: make([]float64, fanOut)}
	}
	return layers
}

func gatherBatch(X, Y *mat.Dense, idx []int) (*mat.Dense, *mat.Dense) {
	_, xc := X.Dims()
	_, yc := Y.Dims()
	bx := mat.NewDense(len(idx), xc, nil)
	by := mat.NewDense(len(idx), yc, nil)
	for i, j := range idx {
		bx.SetRow(i, X.RawRowView(j))
		by.SetRow(i, Y.RawRowView(j))
	}
	return bx, by
}

// forward は各層の出力を返す。acts[0] は入力、最後は softmax 確率。
func forward(layers []layer, X *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(layers)+1)
	acts[0] = X
	last := len(layers) - 1
	for l, ly := range layers {
		z := &mat.Dense{}
		z.Mul(acts[l], ly.W)
		b := ly.b
		if l < last {
			z.Apply(func(_, j int, v float64) float64 {
				return math.Max(0, v+b[j])
			}, z)
		} else {
			z.Apply(func(_, j int, v float64) float64 { return v + b[j] }, z)
			softmaxRows(z)
		}
		acts[l+1] = z
	}
	return acts
}

func softmaxRows(z *mat.Dense) {
	rows, _ := z.Dims()
	for i := 0; i < rows; i++ {
		row := z.RawRowView(i)
		lse := errors.LogSumExp(row)
		for j := range row {
			row[j] = math.Exp(row[j] - lse)
		}
	}
}

// crossEntropy は平均交差エントロピーと argmax が一致した行数を返す
func crossEntropy(targets, probs *mat.Dense) (loss, hits float64, err error) {
	if loss, err = metrics.LogLoss(targets, probs); err != nil {
		return 0, 0, err
	}
	rows, _ := targets.Dims()
	for i := 0; i < rows; i++ {
		if floats.MaxIdx(targets.RawRowView(i)) == floats.MaxIdx(probs.RawRowView(i)) {
			hits++
		}
	}
	return loss, hits, nil
}

// backward は平均損失に対する勾配を params と同じ並び (W0, b0, W1, b1, ...) で返す
func backward(layers []layer, acts []*mat.Dense, targets *mat.Dense) [][]float64 {
	rows, _ := targets.Dims()
	grads := make([][]float64, 2*len(layers))

	// softmax + 交差エントロピーの出力層勾配は (p - t) / n
	delta := &mat.Dense{}
	delta.Sub(acts[len(acts)-1], targets)
	delta.Scale(1/float64(rows), delta)

	for l := len(layers) - 1; l >= 0; l-- {
		gW := &mat.Dense{}
		gW.Mul(acts[l].T(), delta)

		_, c := delta.Dims()
		gb := make([]float64, c)
		for i := 0; i < rows; i++ {
			floats.Add(gb, delta.RawRowView(i))
		}
		grads[2*l] = gW.RawMatrix().Data
		grads[2*l+1] = gb

		if l > 0 {
			next := &mat.Dense{}
			next.Mul(delta, layers[l].W.T())
			a := acts[l]
			next.Apply(func(i, j int, v float64) float64 {
				if a.At(i, j) > 0 {
					return v
				}
				return 0
			}, next)
			delta = next
		}
	}
	return grads
}
