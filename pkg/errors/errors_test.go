package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		wantMsg  string
	}{
		{
			name:     "source unavailable",
			err:      NewSourceUnavailableError("http://example.invalid/data.csv", fmt.Errorf("dial tcp: no such host")),
			sentinel: ErrSourceUnavailable,
			wantMsg:  `mlpipe: source "http://example.invalid/data.csv" unavailable: dial tcp: no such host`,
		},
		{
			name:     "parse error",
			err:      NewParseError(3, 2, "unterminated quoted field", nil),
			sentinel: ErrParse,
			wantMsg:  "mlpipe: parse error at row 3, column 2: unterminated quoted field",
		},
		{
			name:     "ragged row",
			err:      NewShapeMismatchError("Normalize", 1, 3, 2),
			sentinel: ErrShapeMismatch,
			wantMsg:  "mlpipe: Normalize: shape mismatch at row 1: expected 3 columns, got 2",
		},
		{
			name:     "empty matrix",
			err:      NewShapeMismatchError("Standardize", -1, 1, 0),
			sentinel: ErrShapeMismatch,
			wantMsg:  "mlpipe: Standardize: shape mismatch: expected at least 1, got 0",
		},
		{
			name:     "degenerate row",
			err:      NewDegenerateRowError("Normalize", 0),
			sentinel: ErrDegenerateRow,
			wantMsg:  "mlpipe: Normalize: row 0 sums to zero and cannot be normalized",
		},
		{
			name:     "degenerate column",
			err:      NewDegenerateColumnError("Standardize", 2),
			sentinel: ErrDegenerateColumn,
			wantMsg:  "mlpipe: Standardize: column 2 has zero standard deviation and cannot be standardized",
		},
		{
			name:     "feature shape mismatch",
			err:      NewFeatureShapeMismatchError("KNN.Predict", 4, 3),
			sentinel: ErrFeatureShapeMismatch,
			wantMsg:  "mlpipe: KNN.Predict: model was trained on 4 features, got 3",
		},
		{
			name:     "label count mismatch",
			err:      NewLabelCountMismatchError("MLP.Train", 10, 9),
			sentinel: ErrLabelCountMismatch,
			wantMsg:  "mlpipe: MLP.Train: got 9 labels for 10 samples",
		},
		{
			name:     "invalid k",
			err:      NewInvalidKError("KMeans.Train", 0, 5),
			sentinel: ErrInvalidK,
			wantMsg:  "mlpipe: KMeans.Train: k must be in [1, 5], got 0",
		},
		{
			name:     "unknown algorithm",
			err:      NewUnknownAlgorithmError("SVM"),
			sentinel: ErrUnknownAlgorithm,
			wantMsg:  `mlpipe: unknown algorithm "SVM"`,
		},
		{
			name:     "invalid config",
			err:      NewValidationError("Epochs", "must be at least 1", -1),
			sentinel: ErrInvalidConfig,
			wantMsg:  "mlpipe: validation failed for parameter 'Epochs': must be at least 1 (got: -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", tt.err.Error(), tt.wantMsg)
			}
			if !Is(tt.err, tt.sentinel) {
				t.Errorf("Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
			// 他のセンチネルとは一致しないこと
			if tt.sentinel != ErrUnknownAlgorithm && Is(tt.err, ErrUnknownAlgorithm) {
				t.Errorf("%v should not match ErrUnknownAlgorithm", tt.err)
			}
			formatted := fmt.Sprintf("%+v", tt.err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}
		})
	}
}

func TestParseErrorAs(t *testing.T) {
	err := Wrap(NewParseError(7, 4, "wrong number of fields", nil), "load iris.csv")

	var parseErr *ParseError
	if !As(err, &parseErr) {
		t.Fatal("Error should be castable to *ParseError")
	}
	if parseErr.Row != 7 || parseErr.Column != 4 {
		t.Errorf("position = (%d, %d), want (7, 4)", parseErr.Row, parseErr.Column)
	}
	if !Is(err, ErrParse) {
		t.Error("wrapped parse error should still match ErrParse")
	}
}

func TestSourceUnavailableUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewSourceUnavailableError("data.csv", cause)

	if !Is(err, cause) {
		t.Error("Expected cause to be reachable through Is")
	}
}

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "mlpipe: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "mlpipe: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("KNeighborsClassifier", "Predict")

	want := "mlpipe: KNeighborsClassifier: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestWarn(t *testing.T) {
	var (
		mu       sync.Mutex
		received []error
	)
	SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, w)
	})
	defer SetWarningHandler(func(w error) {})

	Warn(NewConvergenceWarning("KMeans", 300, ""))

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(received))
	}
	want := "KMeans failed to converge after 300 iterations. Consider increasing max_iter."
	if received[0].Error() != want {
		t.Errorf("warning = %q, want %q", received[0].Error(), want)
	}
}

func TestWarnPrefersZerologFunc(t *testing.T) {
	var viaHandler, viaZerolog int
	SetWarningHandler(func(w error) { viaHandler++ })
	SetZerologWarnFunc(func(w error) { viaZerolog++ })
	defer func() {
		SetZerologWarnFunc(nil)
		SetWarningHandler(func(w error) {})
	}()

	Warn(NewConvergenceWarning("KMeans", 10, "inertia still decreasing"))

	if viaZerolog != 1 || viaHandler != 0 {
		t.Errorf("zerolog=%d handler=%d, want 1 and 0", viaZerolog, viaHandler)
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("loss", 0.5, 1); err != nil {
		t.Errorf("finite value should pass, got %v", err)
	}

	err := CheckScalar("loss", logOfZero(), 3)
	if err == nil {
		t.Fatal("Expected error for -Inf")
	}
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("Expected NumericalInstabilityError, got %T", err)
	}
	if numErr.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", numErr.Iteration)
	}
}

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float64{1000, 1000})
	want := 1000 + 0.6931471805599453
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("LogSumExp = %v, want %v", got, want)
	}
}

func logOfZero() float64 {
	zero := 0.0
	return -1 / zero
}
