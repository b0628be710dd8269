package dataset

import (
	"math"
	"math/rand"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// FeatureSpec selects columns from records.
type FeatureSpec struct {
	// Features lists the feature columns in order. Empty means every column
	// except Label.
	Features []string

	// Label names the class column. Empty means unlabeled data (Y is nil).
	Label string
}

// Dataset is a numeric feature matrix with optional class labels.
//
// X has one row per sample. Y, when present, is n×1 class indices into
// Classes.
type Dataset struct {
	X *mat.Dense
	Y *mat.Dense

	FeatureNames []string
	LabelName    string
	Classes      []string
}

// Rows returns the number of samples.
func (d *Dataset) Rows() int {
	r, _ := d.X.Dims()
	return r
}

// FromRecords converts parsed records into a Dataset. Every selected feature
// cell must be a finite number (bools count as 1/0); anything else fails with
// a ParseError naming the 1-based data row and column.
//
// Label values are mapped to class indices. Classes is sorted numerically
// when every label is a number and lexically otherwise.
func FromRecords(records []Record, spec FeatureSpec) (*Dataset, error) {
	if len(records) == 0 {
		return nil, errors.NewShapeMismatchError("FromRecords", -1, 1, 0)
	}

	first := records[0]
	features := spec.Features
	if len(features) == 0 {
		for _, c := range first.Columns() {
			if c != spec.Label {
				features = append(features, c)
			}
		}
	}
	if len(features) == 0 {
		return nil, errors.NewShapeMismatchError("FromRecords", -1, 1, 0)
	}

	colIdx := make([]int, len(features))
	for j, name := range features {
		i := slices.Index(first.columns, name)
		if i < 0 {
			return nil, errors.NewValidationError("Features", "column not found", name)
		}
		colIdx[j] = i
	}
	labelIdx := -1
	if spec.Label != "" {
		labelIdx = slices.Index(first.columns, spec.Label)
		if labelIdx < 0 {
			return nil, errors.NewValidationError("Label", "column not found", spec.Label)
		}
	}

	n, p := len(records), len(features)
	X := mat.NewDense(n, p, nil)
	labels := make([]Value, 0, n)
	for i, rec := range records {
		if rec.Len() != first.Len() {
			return nil, errors.NewShapeMismatchError("FromRecords", i, first.Len(), rec.Len())
		}
		for j, c := range colIdx {
			v := rec.At(c)
			f, ok := v.Float()
			if !ok {
				return nil, errors.NewParseError(i+1, c+1, "expected a number, got "+v.Kind().String()+" "+strconv.Quote(v.String()), nil)
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, errors.NewParseError(i+1, c+1, "non-finite value", nil)
			}
			X.Set(i, j, f)
		}
		if labelIdx >= 0 {
			v := rec.At(labelIdx)
			if v.IsEmpty() {
				return nil, errors.NewParseError(i+1, labelIdx+1, "empty label", nil)
			}
			labels = append(labels, v)
		}
	}

	ds := &Dataset{
		X:            X,
		FeatureNames: append([]string(nil), features...),
		LabelName:    spec.Label,
	}
	if labelIdx >= 0 {
		ds.Classes = classList(labels)
		ds.Y = mat.NewDense(n, 1, nil)
		for i, v := range labels {
			ds.Y.Set(i, 0, float64(slices.Index(ds.Classes, v.String())))
		}
	}
	return ds, nil
}

func classList(labels []Value) []string {
	numeric := true
	seen := make(map[string]float64)
	for _, v := range labels {
		f, ok := v.Float()
		if !ok || v.Kind() != KindNumber {
			numeric = false
		}
		seen[v.String()] = f
	}

	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	if numeric {
		slices.SortFunc(classes, func(a, b string) int {
			switch fa, fb := seen[a], seen[b]; {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		})
	} else {
		slices.Sort(classes)
	}
	return classes
}

// Labels returns Y as a mat.Matrix, or an untyped nil when the dataset is
// unlabeled.
func (d *Dataset) Labels() mat.Matrix {
	if d.Y == nil {
		return nil
	}
	return d.Y
}

// OneHot returns Y as an n×len(Classes) indicator matrix.
func (d *Dataset) OneHot() (*mat.Dense, error) {
	if d.Y == nil || len(d.Classes) == 0 {
		return nil, errors.NewModelError("Dataset.OneHot", "dataset has no labels", nil)
	}
	n, _ := d.Y.Dims()
	out := mat.NewDense(n, len(d.Classes), nil)
	for i := 0; i < n; i++ {
		out.Set(i, int(d.Y.At(i, 0)), 1)
	}
	return out, nil
}

// TrainTestSplit shuffles rows with seed and puts round(n*testFraction) of
// them in test. Both halves keep at least one row.
func TrainTestSplit(ds *Dataset, testFraction float64, seed int64) (train, test *Dataset, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NewValidationError("testFraction", "must be in (0, 1)", testFraction)
	}
	n := ds.Rows()
	if n < 2 {
		return nil, nil, errors.NewShapeMismatchError("TrainTestSplit", -1, 2, n)
	}

	nTest := int(math.Round(float64(n) * testFraction))
	nTest = min(max(nTest, 1), n-1)

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = ds.subset(perm[:nTest])
	train = ds.subset(perm[nTest:])
	return train, test, nil
}

func (d *Dataset) subset(rows []int) *Dataset {
	_, p := d.X.Dims()
	out := &Dataset{
		X:            mat.NewDense(len(rows), p, nil),
		FeatureNames: d.FeatureNames,
		LabelName:    d.LabelName,
		Classes:      d.Classes,
	}
	if d.Y != nil {
		_, c := d.Y.Dims()
		out.Y = mat.NewDense(len(rows), c, nil)
	}
	for i, r := range rows {
		out.X.SetRow(i, d.X.RawRowView(r))
		if d.Y != nil {
			out.Y.SetRow(i, d.Y.RawRowView(r))
		}
	}
	return out
}
