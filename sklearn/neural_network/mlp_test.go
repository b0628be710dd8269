package neural_network

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// blobs は (-1,-1) と (1,1) 付近に交互に並ぶ2クラスのデータを返す
func blobs(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := i % 2
		center := -1.0
		if c == 1 {
			center = 1.0
		}
		jitter := float64((i*7)%11-5) / 20
		X.Set(i, 0, center+jitter)
		X.Set(i, 1, center-jitter)
		y.Set(i, 0, float64(c))
	}
	return X, y
}

func TestMLPClassifier_LearnsSeparableData(t *testing.T) {
	X, y := blobs(40)

	mlp := NewMLPClassifier(WithEpochs(30), WithLearningRate(0.01), WithRandomState(1))
	if err := mlp.Fit(X, y); err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	pred, err := mlp.Predict(X)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if !mat.Equal(pred, y) {
		t.Errorf("predictions differ from labels:\n%v", mat.Formatted(pred.T()))
	}

	history := mlp.History()
	if len(history) != 30 {
		t.Fatalf("len(History) = %d, want 30", len(history))
	}
	if history[len(history)-1].Loss >= history[0].Loss {
		t.Errorf("loss did not decrease: first=%v last=%v", history[0].Loss, history[len(history)-1].Loss)
	}
	if !history[0].HasValidation {
		t.Error("validation metrics missing with default 20% split")
	}
}

func TestMLPClassifier_PredictProbaRowsSumToOne(t *testing.T) {
	X, y := blobs(20)
	mlp := NewMLPClassifier(WithEpochs(3))
	if err := mlp.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	proba, err := mlp.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := proba.Dims()
	if rows != 20 || cols != 2 {
		t.Fatalf("proba dims = (%d,%d), want (20,2)", rows, cols)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			p := proba.At(i, j)
			if p < 0 || p > 1 {
				t.Errorf("proba(%d,%d) = %v out of range", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("row %d sums to %v", i, sum)
		}
	}
}

func TestMLPClassifier_OneHotMatchesIndexLabels(t *testing.T) {
	X, y := blobs(20)
	oneHot := mat.NewDense(20, 2, nil)
	for i := 0; i < 20; i++ {
		oneHot.Set(i, int(y.At(i, 0)), 1)
	}

	fit := func(labels mat.Matrix) mat.Matrix {
		mlp := NewMLPClassifier(WithEpochs(5), WithRandomState(7))
		if err := mlp.Fit(X, labels); err != nil {
			t.Fatal(err)
		}
		p, err := mlp.PredictProba(X)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	if a, b := fit(y), fit(oneHot); !mat.Equal(a, b) {
		t.Error("index labels and one-hot labels trained different networks")
	}
}

func TestMLPClassifier_ValidationHoldsOutLastRows(t *testing.T) {
	X, y := blobs(10)

	var seen []EpochMetrics
	mlp := NewMLPClassifier(
		WithEpochs(4),
		WithValidationSplit(0.3),
		WithEpochHook(func(m EpochMetrics) error {
			seen = append(seen, m)
			return nil
		}),
	)
	if err := mlp.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 4 {
		t.Fatalf("hook called %d times, want 4", len(seen))
	}
	for i, m := range seen {
		if m.Epoch != i+1 {
			t.Errorf("epoch %d reported as %d", i+1, m.Epoch)
		}
		// 学習7行, 検証3行
		if !m.HasValidation {
			t.Errorf("epoch %d has no validation metrics", m.Epoch)
		}
		if got := m.ValAccuracy * 3; math.Abs(got-math.Round(got)) > 1e-9 {
			t.Errorf("ValAccuracy %v is not a multiple of 1/3", m.ValAccuracy)
		}
		if got := m.Accuracy * 7; math.Abs(got-math.Round(got)) > 1e-9 {
			t.Errorf("Accuracy %v is not a multiple of 1/7", m.Accuracy)
		}
	}

	noVal := NewMLPClassifier(WithEpochs(1), WithValidationSplit(0))
	if err := noVal.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if noVal.History()[0].HasValidation {
		t.Error("validation metrics reported with zero split")
	}
}

// 最終エポックの検証損失は学習後のモデルで検証行を推論したときの log loss と一致する
func TestMLPClassifier_ValLossIsLogLoss(t *testing.T) {
	X, y := blobs(20)
	mlp := NewMLPClassifier(WithEpochs(5), WithValidationSplit(0.25), WithRandomState(4))
	if err := mlp.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	xVal := mat.DenseCopyOf(X.Slice(15, 20, 0, 2))
	yVal := mat.NewDense(5, 2, nil)
	for i := 0; i < 5; i++ {
		yVal.Set(i, int(y.At(15+i, 0)), 1)
	}
	proba, err := mlp.PredictProba(xVal)
	if err != nil {
		t.Fatal(err)
	}
	want, err := metrics.LogLoss(yVal, proba)
	if err != nil {
		t.Fatal(err)
	}

	history := mlp.History()
	last := history[len(history)-1]
	if math.Abs(last.ValLoss-want) > 1e-9 {
		t.Errorf("ValLoss = %v, want %v", last.ValLoss, want)
	}
}

func TestMLPClassifier_Cancellation(t *testing.T) {
	X, y := blobs(20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	epochs := 0
	mlp := NewMLPClassifier(
		WithEpochs(50),
		WithEpochHook(func(m EpochMetrics) error {
			epochs++
			if m.Epoch == 2 {
				cancel()
			}
			return nil
		}),
	)

	err := mlp.FitContext(ctx, X, y)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if epochs != 2 {
		t.Errorf("ran %d epochs after cancellation, want 2", epochs)
	}
	if _, err := mlp.Predict(X); err == nil {
		t.Error("cancelled fit must leave the model unfitted")
	}
}

func TestMLPClassifier_HookErrorStops(t *testing.T) {
	X, y := blobs(20)
	stop := errors.New("stop")

	mlp := NewMLPClassifier(WithEpochs(10), WithEpochHook(func(EpochMetrics) error { return stop }))
	if err := mlp.Fit(X, y); !errors.Is(err, stop) {
		t.Errorf("err = %v, want hook error", err)
	}
}

func TestMLPClassifier_Errors(t *testing.T) {
	X, y := blobs(10)
	fractional := mat.DenseCopyOf(y)
	fractional.Set(3, 0, 0.5)

	tests := []struct {
		name     string
		mlp      *MLPClassifier
		y        mat.Matrix
		sentinel error
	}{
		{"label count", NewMLPClassifier(), mat.NewDense(9, 1, nil), errors.ErrLabelCountMismatch},
		{"nil labels", NewMLPClassifier(), nil, errors.ErrLabelCountMismatch},
		{"epochs", NewMLPClassifier(WithEpochs(0)), y, errors.ErrInvalidConfig},
		{"learning rate", NewMLPClassifier(WithLearningRate(0)), y, errors.ErrInvalidConfig},
		{"batch size", NewMLPClassifier(WithBatchSize(0)), y, errors.ErrInvalidConfig},
		{"validation split", NewMLPClassifier(WithValidationSplit(1)), y, errors.ErrInvalidConfig},
		{"hidden layer", NewMLPClassifier(WithHiddenLayerSizes(4, 0)), y, errors.ErrInvalidConfig},
		{"fractional label", NewMLPClassifier(), fractional, errors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.mlp.Fit(X, tt.y); !errors.Is(err, tt.sentinel) {
				t.Errorf("Fit err = %v, want %v", err, tt.sentinel)
			}
		})
	}

	mlp := NewMLPClassifier(WithEpochs(1))
	if _, err := mlp.PredictProba(X); err == nil {
		t.Error("PredictProba before Fit should fail")
	}
	if err := mlp.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if _, err := mlp.PredictProba(mat.NewDense(1, 3, nil)); !errors.Is(err, errors.ErrFeatureShapeMismatch) {
		t.Errorf("err = %v, want ErrFeatureShapeMismatch", err)
	}
}

func TestAdamStep(t *testing.T) {
	params := [][]float64{{1, -1}}
	opt := newAdam(0.1, params)

	// 最初のステップはバイアス補正により勾配の符号方向に lr だけ動く
	opt.step(params, [][]float64{{0.5, -2}})
	if math.Abs(params[0][0]-0.9) > 1e-6 || math.Abs(params[0][1]+0.9) > 1e-6 {
		t.Errorf("params after one step = %v, want [0.9 -0.9]", params[0])
	}
}

func BenchmarkMLPClassifier_Epoch(b *testing.B) {
	X, y := blobs(256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mlp := NewMLPClassifier(WithEpochs(1))
		if err := mlp.Fit(X, y); err != nil {
			b.Fatal(err)
		}
	}
}
