package errors

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// train は Dispatcher.Run と同じ形で Recover を defer する
func train(fn func() error) (err error) {
	defer Recover(&err, "Dispatcher.Run")
	return fn()
}

func TestRecover_DispatcherBoundary(t *testing.T) {
	tests := []struct {
		name      string
		fn        func() error
		wantPanic bool
	}{
		{"clean return", func() error { return nil }, false},
		{"string panic", func() error { panic("boom") }, true},
		{"runtime panic", func() error {
			var counts []float64
			counts[3]++
			return nil
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := train(tt.fn)
			if !tt.wantPanic {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			var pe *PanicError
			if !As(err, &pe) {
				t.Fatalf("err = %v, want *PanicError", err)
			}
			if pe.Operation != "Dispatcher.Run" {
				t.Errorf("Operation = %q", pe.Operation)
			}
			if !strings.Contains(pe.StackTrace, "recovery_test.go") {
				t.Error("stack trace does not reach the panicking function")
			}
			if !Is(err, ErrPanic) {
				t.Error("PanicError should match ErrPanic")
			}
			if !strings.HasPrefix(err.Error(), "mlpipe: panic in Dispatcher.Run: ") {
				t.Errorf("Error() = %q", err.Error())
			}
		})
	}
}

func TestRecover_TypedPipelineErrors(t *testing.T) {
	tests := []struct {
		name     string
		value    error
		sentinel error
	}{
		{"invalid k", NewInvalidKError("KMeans.Fit", 0, 8), ErrInvalidK},
		{"label count", NewLabelCountMismatchError("KNN.Fit", 8, 7), ErrLabelCountMismatch},
		{"validation", NewValidationError("DecisionTree.Fit.y", "class labels must be non-negative integers", -1.0), ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := train(func() error { panic(tt.value) })
			if !Is(err, tt.sentinel) {
				t.Errorf("err = %v, want it to match %v", err, tt.sentinel)
			}
			if !Is(err, ErrPanic) {
				t.Errorf("err = %v, want it to match ErrPanic", err)
			}
		})
	}

	// エラーでないパニック値はセンチネルに一致しない
	if err := train(func() error { panic(42) }); Is(err, ErrInvalidConfig) {
		t.Errorf("int panic matched ErrInvalidConfig: %v", err)
	}
}

func TestRecover_KeepsEarlierError(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "Dispatcher.Run")
		err = NewInvalidKError("KNN.Fit", 9, 8)
		panic("cleanup failed")
	}

	err := run()
	var pe *PanicError
	if !As(err, &pe) || pe.PanicValue != "cleanup failed" {
		t.Fatalf("err = %v, want the PanicError first", err)
	}
	if detail := fmt.Sprintf("%+v", err); !strings.Contains(detail, "k must be in [1, 8], got 9") {
		t.Errorf("earlier error lost from %%+v output:\n%s", detail)
	}
}

// ワーカーゴルーチンでのパニックは SafeExecute がそのゴルーチン内で回収する
func TestSafeExecute_WorkerGoroutines(t *testing.T) {
	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			errs[w] = SafeExecute("parallel.ForEach", func() error {
				switch w % 3 {
				case 0:
					panic(fmt.Sprintf("tree %d", w))
				case 1:
					return NewValidationError("n_estimators", "must be >= 1", 0)
				}
				return nil
			})
		}(w)
	}
	wg.Wait()

	for w, err := range errs {
		switch w % 3 {
		case 0:
			var pe *PanicError
			if !As(err, &pe) || pe.PanicValue != fmt.Sprintf("tree %d", w) || pe.Operation != "parallel.ForEach" {
				t.Errorf("worker %d: err = %v", w, err)
			}
		case 1:
			var pe *PanicError
			if As(err, &pe) || !Is(err, ErrInvalidConfig) {
				t.Errorf("worker %d: returned error should pass through, got %v", w, err)
			}
		default:
			if err != nil {
				t.Errorf("worker %d: err = %v", w, err)
			}
		}
	}
}

func TestPanicError_MarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	pe := NewPanicError("parallel.Parallelize", "index out of range")
	logger.Error().Object("panic", pe).Msg("Prediction failed")

	out := buf.String()
	for _, want := range []string{`"operation":"parallel.Parallelize"`, `"panic":"index out of range"`, `"type":"PanicError"`, `"stacktrace":`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}
