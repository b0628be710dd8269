package dataset

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func mustParse(t *testing.T, text string) []Record {
	t.Helper()
	records, err := Parse([]byte(text), DefaultLoadOptions())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return records
}

func TestFromRecords(t *testing.T) {
	records := mustParse(t, irisSample)

	ds, err := FromRecords(records, FeatureSpec{Label: "species"})
	if err != nil {
		t.Fatalf("FromRecords returned error: %v", err)
	}

	r, c := ds.X.Dims()
	if r != 3 || c != 4 {
		t.Fatalf("X dims = (%d, %d), want (3, 4)", r, c)
	}
	if ds.X.At(1, 2) != 4.7 {
		t.Errorf("X[1,2] = %v, want 4.7", ds.X.At(1, 2))
	}
	if len(ds.FeatureNames) != 4 || ds.FeatureNames[3] != "petal_width" {
		t.Errorf("FeatureNames = %v", ds.FeatureNames)
	}

	wantClasses := []string{"setosa", "versicolor", "virginica"}
	for i, c := range wantClasses {
		if ds.Classes[i] != c {
			t.Fatalf("Classes = %v, want %v", ds.Classes, wantClasses)
		}
	}
	for i, want := range []float64{0, 1, 2} {
		if ds.Y.At(i, 0) != want {
			t.Errorf("Y[%d] = %v, want %v", i, ds.Y.At(i, 0), want)
		}
	}
}

func TestFromRecordsNumericLabelsSortNumerically(t *testing.T) {
	records := mustParse(t, "x,y\n1,10\n2,9\n3,10\n4,2\n")

	ds, err := FromRecords(records, FeatureSpec{Features: []string{"x"}, Label: "y"})
	if err != nil {
		t.Fatalf("FromRecords returned error: %v", err)
	}
	want := []string{"2", "9", "10"}
	for i := range want {
		if ds.Classes[i] != want[i] {
			t.Fatalf("Classes = %v, want %v", ds.Classes, want)
		}
	}
	if ds.Y.At(0, 0) != 2 || ds.Y.At(3, 0) != 0 {
		t.Errorf("Y = %v", mat.Formatted(ds.Y.T()))
	}
}

func TestFromRecordsUnlabeled(t *testing.T) {
	ds, err := FromRecords(mustParse(t, "a,b\n1,2\n3,4\n"), FeatureSpec{})
	if err != nil {
		t.Fatalf("FromRecords returned error: %v", err)
	}
	if ds.Y != nil {
		t.Error("Y should be nil without a label column")
	}
	if ds.Labels() != nil {
		t.Error("Labels() should be an untyped nil without a label column")
	}
	if _, err := ds.OneHot(); err == nil {
		t.Error("OneHot should fail without labels")
	}
}

func TestFromRecordsErrors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		spec     FeatureSpec
		sentinel error
		row, col int
	}{
		{
			name:     "string feature",
			text:     "a,b\n1,2\nx,4\n",
			sentinel: errors.ErrParse,
			row:      2,
			col:      1,
		},
		{
			name:     "empty feature",
			text:     "a,b\n1,2\n3,\n",
			sentinel: errors.ErrParse,
			row:      2,
			col:      2,
		},
		{
			name:     "empty label",
			text:     "a,label\n1,x\n2,\n",
			spec:     FeatureSpec{Label: "label"},
			sentinel: errors.ErrParse,
			row:      2,
			col:      2,
		},
		{
			name:     "unknown feature",
			text:     "a,b\n1,2\n",
			spec:     FeatureSpec{Features: []string{"c"}},
			sentinel: errors.ErrInvalidConfig,
		},
		{
			name:     "unknown label",
			text:     "a,b\n1,2\n",
			spec:     FeatureSpec{Label: "species"},
			sentinel: errors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRecords(mustParse(t, tt.text), tt.spec)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v, want %v", err, tt.sentinel)
			}
			if tt.row == 0 {
				return
			}
			var perr *errors.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if perr.Row != tt.row || perr.Column != tt.col {
				t.Errorf("position = (%d, %d), want (%d, %d)", perr.Row, perr.Column, tt.row, tt.col)
			}
		})
	}

	if _, err := FromRecords(nil, FeatureSpec{}); !errors.Is(err, errors.ErrShapeMismatch) {
		t.Errorf("no records: err = %v, want ErrShapeMismatch", err)
	}
}

func TestOneHot(t *testing.T) {
	ds, err := FromRecords(mustParse(t, irisSample), FeatureSpec{Label: "species"})
	if err != nil {
		t.Fatal(err)
	}
	oh, err := ds.OneHot()
	if err != nil {
		t.Fatalf("OneHot returned error: %v", err)
	}
	want := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	if !mat.Equal(oh, want) {
		t.Errorf("OneHot =\n%v\nwant\n%v", mat.Formatted(oh), mat.Formatted(want))
	}
}

func TestTrainTestSplit(t *testing.T) {
	n := 10
	X := mat.NewDense(n, 1, nil)
	Y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		Y.Set(i, 0, float64(i%2))
	}
	ds := &Dataset{X: X, Y: Y, Classes: []string{"0", "1"}}

	train, test, err := TrainTestSplit(ds, 0.3, 42)
	if err != nil {
		t.Fatalf("TrainTestSplit returned error: %v", err)
	}
	if train.Rows() != 7 || test.Rows() != 3 {
		t.Fatalf("sizes = (%d, %d), want (7, 3)", train.Rows(), test.Rows())
	}

	seen := make(map[float64]bool)
	for _, part := range []*Dataset{train, test} {
		for i := 0; i < part.Rows(); i++ {
			x := part.X.At(i, 0)
			if seen[x] {
				t.Errorf("row %v appears twice", x)
			}
			seen[x] = true
			if part.Y.At(i, 0) != float64(int(x)%2) {
				t.Errorf("label for row %v moved away from its features", x)
			}
		}
	}
	if len(seen) != n {
		t.Errorf("split covers %d rows, want %d", len(seen), n)
	}

	train2, _, _ := TrainTestSplit(ds, 0.3, 42)
	if !mat.Equal(train.X, train2.X) {
		t.Error("same seed should give the same split")
	}

	if _, _, err := TrainTestSplit(ds, 1.5, 1); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("fraction 1.5: err = %v, want ErrInvalidConfig", err)
	}
}
