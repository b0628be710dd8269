// Package preprocessing provides the numeric transforms applied between
// loading a dataset and training: row normalization and column
// standardization.
//
// Every transform returns a new matrix and leaves its input untouched. The
// statistics it computed come back as a *Stats value owned by the caller;
// nothing is cached between calls.
package preprocessing

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// StatsKind identifies which transform produced a Stats value.
type StatsKind int

const (
	KindNormalize StatsKind = iota
	KindStandardize
)

func (k StatsKind) String() string {
	if k == KindStandardize {
		return "standardize"
	}
	return "normalize"
}

// Stats holds what a transform computed.
//
// Standardize fills Mean and Std (one entry per column). Normalize fills
// RowSums (one entry per row of the matrix it saw).
type Stats struct {
	Kind    StatsKind
	Mean    []float64
	Std     []float64
	RowSums []float64
}

// Apply transforms X the same way the producing call did. For standardize
// stats that means reusing Mean and Std; normalization is per row so each
// row of X is divided by its own sum.
func (s *Stats) Apply(X mat.Matrix) (*mat.Dense, error) {
	if s.Kind == KindNormalize {
		out, _, err := NewNormalizer().Transform(X)
		return out, err
	}

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewShapeMismatchError("Stats.Apply", -1, 1, 0)
	}
	if c != len(s.Mean) {
		return nil, errors.NewFeatureShapeMismatchError("Stats.Apply", len(s.Mean), c)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, X)
	return out, nil
}

// Normalize divides each row of X by its sum so every output row sums to 1.
// A row whose sum is exactly zero, or overflows float64, fails with
// DegenerateRowError.
func Normalize(X mat.Matrix) (*mat.Dense, *Stats, error) {
	start := time.Now()
	out, sums, err := NewNormalizer().Transform(X)
	if err != nil {
		return nil, nil, err
	}
	logTransform(log.OperationNormalize, X, start)
	return out, &Stats{Kind: KindNormalize, RowSums: sums}, nil
}

// Standardize rescales each column of X to zero mean and unit population
// standard deviation. A constant column, or one whose mean or deviation
// overflows float64, fails with DegenerateColumnError.
func Standardize(X mat.Matrix) (*mat.Dense, *Stats, error) {
	start := time.Now()
	scaler := NewStandardScaler()
	out, err := scaler.FitTransform(X)
	if err != nil {
		return nil, nil, err
	}
	logTransform(log.OperationStandardize, X, start)
	return out, scaler.Stats(), nil
}

// NormalizeRows is Normalize for row slices. Ragged input fails with
// ShapeMismatchError naming the first short or long row.
func NormalizeRows(rows [][]float64) ([][]float64, *Stats, error) {
	X, err := denseFromRows("Normalize", rows)
	if err != nil {
		return nil, nil, err
	}
	out, stats, err := Normalize(X)
	if err != nil {
		return nil, nil, err
	}
	return rowsFromDense(out), stats, nil
}

// StandardizeRows is Standardize for row slices.
func StandardizeRows(rows [][]float64) ([][]float64, *Stats, error) {
	X, err := denseFromRows("Standardize", rows)
	if err != nil {
		return nil, nil, err
	}
	out, stats, err := Standardize(X)
	if err != nil {
		return nil, nil, err
	}
	return rowsFromDense(out), stats, nil
}

func denseFromRows(op string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.NewShapeMismatchError(op, -1, 1, 0)
	}
	c := len(rows[0])
	if c == 0 {
		return nil, errors.NewShapeMismatchError(op, -1, 1, 0)
	}
	X := mat.NewDense(len(rows), c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.NewShapeMismatchError(op, i, c, len(row))
		}
		X.SetRow(i, row)
	}
	return X, nil
}

func rowsFromDense(X *mat.Dense) [][]float64 {
	r, _ := X.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, X)
	}
	return out
}

func logTransform(op string, X mat.Matrix, start time.Time) {
	r, c := X.Dims()
	log.GetLoggerWithName("preprocessing").Debug("Transform applied",
		log.OperationKey, op,
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, r,
		log.FeaturesKey, c,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
}
