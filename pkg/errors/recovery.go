package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrPanic は回復したパニックを表す PanicError に一致するセンチネルです。
var ErrPanic = New("panic recovered")

// PanicError は Dispatcher の境界や並列ワーカーで回復したパニックです。
//
// パニック値が error の場合は Unwrap でそれを返すので、errors.Is で
// 元の型付きエラー (ErrInvalidK など) と照合できます。
type PanicError struct {
	// Operation はパニックを回復した境界 (例: "Dispatcher.Run", "parallel.ForEach")
	Operation string

	// PanicValue は panic() に渡された値
	PanicValue interface{}

	// StackTrace は回復した時点のゴルーチンのスタック
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("mlpipe: panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap はパニック値が error のときそれを返します。
func (e *PanicError) Unwrap() error {
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// Is は ErrPanic との比較を可能にします。
func (e *PanicError) Is(target error) bool { return target == ErrPanic }

// MarshalZerologObject はパニックをスタック付きでログに書き出します。
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.PanicValue)).
		Str("stacktrace", e.StackTrace).
		Str("type", "PanicError")
}

// NewPanicError は現在のゴルーチンのスタックを記録した PanicError を作成します。
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		Operation:  operation,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
}

// Recover はパニックを *err に PanicError として設定します。
// 名前付きの error 戻り値を持つ関数から直接 defer すること。
//
//	func (d *Dispatcher) Run(...) (h *Handle, err error) {
//	    defer errors.Recover(&err, "Dispatcher.Run")
//	    ...
//	}
//
// すでにエラーが設定されていた場合、そのエラーは PanicError の副次エラーとして残ります
// (%+v で表示されます)。
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	pe := NewPanicError(operation, r)
	if *err != nil {
		*err = errors.CombineErrors(pe, *err)
		return
	}
	*err = pe
}

// SafeExecute は fn を実行し、パニックを PanicError として返します。
// 並列ワーカーがゴルーチン内のパニックでプロセスを落とさないために使います。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
