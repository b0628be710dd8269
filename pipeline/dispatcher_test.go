package pipeline

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// fakeAdapter は受け取った引数を記録する
type fakeAdapter struct {
	algorithm Algorithm
	gotX      mat.Matrix
	gotY      mat.Matrix
	gotCfg    TrainingConfig
	predicted int
	panicMsg  string
}

func (f *fakeAdapter) Train(_ context.Context, X, Y mat.Matrix, cfg TrainingConfig) (*Handle, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.gotX, f.gotY, f.gotCfg = X, Y, cfg
	return NewHandle(f.algorithm, X, "fake"), nil
}

func (f *fakeAdapter) Predict(_ context.Context, h *Handle, X mat.Matrix) (mat.Matrix, error) {
	f.predicted++
	rows, _ := X.Dims()
	return mat.NewDense(rows, 1, nil), nil
}

func twoBlobs() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		8, 8,
		8, 9,
		9, 8,
		9, 9,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	return X, y
}

func quietDispatcher() (*Dispatcher, *log.TestLogger) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return NewDispatcher(WithLogger(logger)), logger
}

func TestDispatcher_RoutesUnchanged(t *testing.T) {
	d, _ := quietDispatcher()
	fake := &fakeAdapter{algorithm: KNN}
	d.Register(KNN, fake)

	X, y := twoBlobs()
	cfg := TrainingConfig{K: 7}
	h, err := d.Run(context.Background(), KNN, X, y, cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if fake.gotX != X || fake.gotY != y {
		t.Error("dispatcher did not pass X and Y through unchanged")
	}
	if fake.gotCfg.K != 7 || fake.gotCfg.NTrees != 0 {
		t.Errorf("dispatcher altered cfg: %+v", fake.gotCfg)
	}
	if h.Algorithm != KNN || h.NSamples != 8 || h.NFeatures != 2 {
		t.Errorf("handle = %+v", h)
	}

	if _, err := d.Predict(context.Background(), h, X); err != nil {
		t.Fatal(err)
	}
	if fake.predicted != 1 {
		t.Errorf("Predict routed %d times to the fake, want 1", fake.predicted)
	}
}

func TestDispatcher_UnknownAlgorithm(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()

	_, err := d.Run(context.Background(), Algorithm(99), X, y, DefaultTrainingConfig())
	if !errors.Is(err, errors.ErrUnknownAlgorithm) {
		t.Errorf("err = %v, want ErrUnknownAlgorithm", err)
	}

	h := NewHandle(Algorithm(42), X, nil)
	if _, err := d.Predict(context.Background(), h, X); !errors.Is(err, errors.ErrUnknownAlgorithm) {
		t.Errorf("Predict err = %v, want ErrUnknownAlgorithm", err)
	}
	if _, err := d.Predict(context.Background(), nil, X); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("Predict(nil handle) err = %v, want ErrInvalidConfig", err)
	}
}

func TestDispatcher_RecoversAdapterPanic(t *testing.T) {
	d, _ := quietDispatcher()
	d.Register(MLP, &fakeAdapter{algorithm: MLP, panicMsg: "boom"})

	X, y := twoBlobs()
	_, err := d.Run(context.Background(), MLP, X, y, DefaultTrainingConfig())
	var pe *errors.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if pe.PanicValue != "boom" || pe.Operation != "Dispatcher.Run" {
		t.Errorf("PanicError = %+v", pe)
	}
}

// 巨大なラベルはパニックではなく検証エラーとして返る
func TestDispatcher_SparseLabelIsValidationError(t *testing.T) {
	d, _ := quietDispatcher()
	X, _ := twoBlobs()
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1e15})
	cfg := TrainingConfig{K: 3, NTrees: 4, Epochs: 1}

	for _, a := range []Algorithm{KNN, DecisionTree, RandomForest, MLP} {
		t.Run(a.String(), func(t *testing.T) {
			_, err := d.Run(context.Background(), a, X, y, cfg)
			var pe *errors.PanicError
			if errors.As(err, &pe) {
				t.Fatalf("adapter panicked: %v", pe)
			}
			if !errors.Is(err, errors.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDispatcher_KNNRecoversTrainingLabel(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()

	h, err := d.Run(context.Background(), KNN, X, y, TrainingConfig{K: 1})
	if err != nil {
		t.Fatal(err)
	}
	if h.Report.TrainAccuracy != 1 {
		t.Errorf("TrainAccuracy = %v, want 1", h.Report.TrainAccuracy)
	}

	for i := 0; i < 8; i++ {
		pred, err := d.Predict(context.Background(), h, X.Slice(i, i+1, 0, 2))
		if err != nil {
			t.Fatal(err)
		}
		if pred.At(0, 0) != y.At(i, 0) {
			t.Errorf("row %d: predicted %v, want %v", i, pred.At(0, 0), y.At(i, 0))
		}
	}
}

func TestDispatcher_KMeansInvalidK(t *testing.T) {
	d, _ := quietDispatcher()
	X, _ := twoBlobs()

	_, err := d.Run(context.Background(), KMeans, X, nil, TrainingConfig{K: 0})
	if !errors.Is(err, errors.ErrInvalidK) {
		t.Errorf("err = %v, want ErrInvalidK", err)
	}
	_, err = d.Run(context.Background(), KMeans, X, nil, TrainingConfig{K: 9})
	if !errors.Is(err, errors.ErrInvalidK) {
		t.Errorf("k > n: err = %v, want ErrInvalidK", err)
	}
}

func TestDispatcher_KMeansClustering(t *testing.T) {
	d, logger := quietDispatcher()
	X, _ := twoBlobs()

	h, err := d.Run(context.Background(), KMeans, X, nil, TrainingConfig{K: 2, Seed: 5})
	if err != nil {
		t.Fatal(err)
	}
	c := h.Clustering
	if c == nil {
		t.Fatal("KMeans handle has no Clustering")
	}
	if len(c.Assignments) != 8 {
		t.Fatalf("len(Assignments) = %d, want 8", len(c.Assignments))
	}
	if c.Assignments[0] == c.Assignments[4] {
		t.Errorf("blobs share a cluster: %v", c.Assignments)
	}
	if r, cols := c.Centroids.Dims(); r != 2 || cols != 2 {
		t.Errorf("centroids dims = (%d,%d)", r, cols)
	}
	if math.Abs(c.Inertia-4) > 1e-9 {
		t.Errorf("Inertia = %v, want 4", c.Inertia)
	}

	pred, err := d.Predict(context.Background(), h, mat.NewDense(1, 2, []float64{8.5, 8.5}))
	if err != nil {
		t.Fatal(err)
	}
	if int(pred.At(0, 0)) != c.Assignments[4] {
		t.Errorf("Predict = %v, want cluster %d", pred.At(0, 0), c.Assignments[4])
	}

	if !logger.ContainsField(log.AlgorithmKey, "KMeans") || !logger.ContainsMessage("Model trained") {
		t.Error("training was not logged with the algorithm")
	}
}

func TestDispatcher_LabelCountMismatchEveryAdapter(t *testing.T) {
	d, _ := quietDispatcher()
	X, _ := twoBlobs()
	short := mat.NewDense(7, 1, nil)
	cfg := TrainingConfig{K: 2, NTrees: 3, Epochs: 1}

	for _, a := range Algorithms() {
		t.Run(a.String(), func(t *testing.T) {
			_, err := d.Run(context.Background(), a, X, short, cfg)
			if !errors.Is(err, errors.ErrLabelCountMismatch) {
				t.Errorf("err = %v, want ErrLabelCountMismatch", err)
			}
			var lc *errors.LabelCountMismatchError
			if errors.As(err, &lc) && (lc.Samples != 8 || lc.Labels != 7) {
				t.Errorf("LabelCountMismatchError = %+v", lc)
			}
		})
	}
}

func TestDispatcher_ClassifiersFitSeparableData(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()
	cfg := TrainingConfig{K: 3, NTrees: 15, Seed: 2}

	for _, a := range []Algorithm{KNN, DecisionTree, RandomForest} {
		t.Run(a.String(), func(t *testing.T) {
			h, err := d.Run(context.Background(), a, X, y, cfg)
			if err != nil {
				t.Fatal(err)
			}
			ev, err := Evaluate(context.Background(), d, h, X, y)
			if err != nil {
				t.Fatal(err)
			}
			if ev.Accuracy != 1 {
				t.Errorf("Accuracy = %v, want 1", ev.Accuracy)
			}
			want := mat.NewDense(2, 2, []float64{4, 0, 0, 4})
			if !mat.Equal(ev.ConfusionMatrix, want) {
				t.Errorf("ConfusionMatrix =\n%v", mat.Formatted(ev.ConfusionMatrix))
			}
		})
	}
}

func TestDispatcher_MLPReturnsProbabilities(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()

	var epochs []EpochMetrics
	cfg := TrainingConfig{
		Epochs:       4,
		LearningRate: 0.01,
		EpochHook: func(m EpochMetrics) error {
			epochs = append(epochs, m)
			return nil
		},
	}
	h, err := d.Run(context.Background(), MLP, X, y, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(epochs) != 4 || len(h.Report.Epochs) != 4 {
		t.Errorf("hook saw %d epochs, report has %d, want 4", len(epochs), len(h.Report.Epochs))
	}

	proba, err := d.Predict(context.Background(), h, X)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := proba.Dims()
	if rows != 8 || cols != 2 {
		t.Fatalf("proba dims = (%d,%d), want (8,2)", rows, cols)
	}
	for i := 0; i < rows; i++ {
		if s := proba.At(i, 0) + proba.At(i, 1); math.Abs(s-1) > 1e-9 {
			t.Errorf("row %d sums to %v", i, s)
		}
	}
}

func TestDispatcher_Cancelled(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, a := range Algorithms() {
		_, err := d.Run(ctx, a, X, y, TrainingConfig{K: 2, Epochs: 3, NTrees: 4})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%v: err = %v, want context.Canceled", a, err)
		}
	}
}

func TestAdapter_RejectsForeignHandle(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()

	h, err := d.Run(context.Background(), DecisionTree, X, y, TrainingConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := (KNNAdapter{}).Predict(context.Background(), h, X); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestEvaluate_ClusteringHandle(t *testing.T) {
	d, _ := quietDispatcher()
	X, y := twoBlobs()

	h, err := d.Run(context.Background(), KMeans, X, nil, TrainingConfig{K: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Evaluate(context.Background(), d, h, X, y); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
