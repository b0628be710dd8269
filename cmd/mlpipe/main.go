// Command mlpipe loads a CSV dataset, trains one of the pipeline's
// algorithms on it and prints a JSON report.
//
//	mlpipe -a MLP -l species --standardize iris.csv
//	MLPIPE_TREES=200 mlpipe -a RandomForest -l species -c run.yaml iris.csv
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
	"github.com/YuminosukeSato/mlpipe/preprocessing"
)

var (
	name    = "mlpipe"
	version = "0.1.0"
)

type args struct {
	Source       string             `arg:"positional" help:"CSV file path, file:// or http(s) URL"`
	Algorithm    pipeline.Algorithm `arg:"-a" help:"KNN, KMeans, DecisionTree, RandomForest or MLP"`
	Label        string             `arg:"-l" help:"label column"`
	Features     []string           `arg:"-f" help:"feature columns (default: every column but the label)"`
	Normalize    bool               `help:"divide each row by its sum"`
	Standardize  bool               `help:"scale each column to zero mean and unit variance"`
	TestFraction float64            `arg:"-t,--test-fraction" help:"held-out share of rows for supervised algorithms"`
	K            int                `arg:"-k" help:"neighbours for KNN, clusters for KMeans"`
	Trees        int                `help:"random forest size"`
	Epochs       int                `help:"MLP training epochs"`
	Seed         int64              `help:"random seed"`
	Config       string             `arg:"-c" help:"YAML run file"`
	LogLevel     string             `arg:"--log-level" help:"debug, info, warn or error"`
	LogFormat    string             `arg:"--log-format" help:"json, console or text (log/slog)"`
	Quiet        bool               `arg:"-q" help:"hide the MLP progress bar"`
}

func (args) Version() string {
	return version
}

func (args) Description() string {
	return fmt.Sprintf("%s trains a model on a CSV dataset and prints a JSON report", name)
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := loadConfig(&a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var progress io.Writer = os.Stderr
	if a.Quiet {
		progress = nil
	}
	if err := run(ctx, cfg, os.Stdout, progress); err != nil {
		log.GetLoggerWithName(name).Error("Run failed", err)
		stop()
		os.Exit(1)
	}
}

// run executes one load → scale → train → evaluate pass and writes the
// report to out. A nil progress hides the MLP progress bar.
func run(ctx context.Context, cfg *runConfig, out, progress io.Writer) error {
	start := time.Now()
	alg, err := pipeline.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return err
	}

	records, err := dataset.Load(ctx, cfg.Source, dataset.DefaultLoadOptions())
	if err != nil {
		return err
	}
	label := cfg.Label
	if alg == pipeline.KMeans {
		label = ""
	}
	ds, err := dataset.FromRecords(records, dataset.FeatureSpec{Features: cfg.Features, Label: label})
	if err != nil {
		return err
	}

	train, test := ds, (*dataset.Dataset)(nil)
	if alg != pipeline.KMeans {
		if train, test, err = dataset.TrainTestSplit(ds, cfg.TestFraction, cfg.Training.Seed); err != nil {
			return err
		}
	}

	Xtrain, Xtest, err := scale(cfg.Scale, train, test)
	if err != nil {
		return err
	}

	tc := cfg.Training.TrainingConfig()
	var bar *pb.ProgressBar
	if alg == pipeline.MLP && progress != nil {
		bar = pb.New(tc.WithDefaults().Epochs).SetWriter(progress)
		tc.EpochHook = func(m pipeline.EpochMetrics) error {
			bar.Set("prefix", fmt.Sprintf("loss %.4f ", m.Loss))
			bar.Increment()
			return nil
		}
		bar.Start()
	}

	d := pipeline.NewDispatcher()
	h, err := d.Run(ctx, alg, Xtrain, train.Labels(), tc)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	rep := newReport(cfg, ds, h)
	rep.TrainSamples = train.Rows()
	if test != nil {
		ev, err := pipeline.Evaluate(ctx, d, h, Xtest, test.Labels())
		if err != nil {
			return err
		}
		rep.TestSamples = test.Rows()
		rep.TestAccuracy = &ev.Accuracy
		rep.ConfusionMatrix = denseRows(ev.ConfusionMatrix)
	}
	rep.DurationMs = time.Since(start).Milliseconds()
	return writeReport(out, rep)
}

// scale は学習データで統計量を求め、同じ変換を評価データに適用する
func scale(mode string, train, test *dataset.Dataset) (Xtrain, Xtest *mat.Dense, err error) {
	var stats *preprocessing.Stats
	switch mode {
	case ScaleNormalize:
		Xtrain, stats, err = preprocessing.Normalize(train.X)
	case ScaleStandardize:
		Xtrain, stats, err = preprocessing.Standardize(train.X)
	default:
		Xtrain = train.X
		if test != nil {
			Xtest = test.X
		}
		return Xtrain, Xtest, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if test != nil {
		if Xtest, err = stats.Apply(test.X); err != nil {
			return nil, nil, err
		}
	}
	return Xtrain, Xtest, nil
}

func denseRows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}
