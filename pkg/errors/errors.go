// Package errors はパイプライン全体のエラーハンドリングと警告システムを提供します。
// データ取得・前処理・学習・推論の各段階で発生する失敗を型付きエラーとして表現し、
// 呼び出し側が errors.As / errors.Is で判別できるようにします。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("mlpipe-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ConvergenceWarning は反復アルゴリズムが上限回数までに収束しなかった場合の警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// ===========================================================================
//
//	分類用センチネル
//
// ===========================================================================

var (
	// ErrSourceUnavailable はデータソースの取得に失敗したことを示します。
	ErrSourceUnavailable = New("source unavailable")

	// ErrParse はCSVの構造が不正であることを示します。
	ErrParse = New("parse error")

	// ErrShapeMismatch は行列が矩形でない、または空であることを示します。
	ErrShapeMismatch = New("shape mismatch")

	// ErrDegenerateRow は行の合計が0で正規化できないことを示します。
	ErrDegenerateRow = New("degenerate row")

	// ErrDegenerateColumn は列の標準偏差が0で標準化できないことを示します。
	ErrDegenerateColumn = New("degenerate column")

	// ErrFeatureShapeMismatch は推論時の特徴量数が学習時と異なることを示します。
	ErrFeatureShapeMismatch = New("feature shape mismatch")

	// ErrLabelCountMismatch はラベル数がサンプル数と一致しないことを示します。
	ErrLabelCountMismatch = New("label count mismatch")

	// ErrInvalidK はクラスタ数や近傍数が範囲外であることを示します。
	ErrInvalidK = New("invalid k")

	// ErrUnknownAlgorithm は未登録のアルゴリズム識別子であることを示します。
	ErrUnknownAlgorithm = New("unknown algorithm")

	// ErrInvalidConfig は学習設定の検証に失敗したことを示します。
	ErrInvalidConfig = New("invalid config")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// SourceUnavailableError はネットワークやファイルシステムからの取得失敗を表します。
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mlpipe: source %q unavailable: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("mlpipe: source %q unavailable", e.Source)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// Is は ErrSourceUnavailable との比較を可能にします。
func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SourceUnavailableError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		AnErr("cause", e.Err).
		Str("type", "SourceUnavailableError")
}

// NewSourceUnavailableError は新しいSourceUnavailableErrorを作成し、スタックトレースを付与します。
func NewSourceUnavailableError(source string, cause error) error {
	return errors.WithStack(&SourceUnavailableError{Source: source, Err: cause})
}

// ParseError はCSVの行・列位置を伴う構文エラーです。行・列は1始まりです。
type ParseError struct {
	Row    int
	Column int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mlpipe: parse error at row %d, column %d: %s", e.Row, e.Column, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is は ErrParse との比較を可能にします。
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ParseError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("row", e.Row).
		Int("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "ParseError")
}

// NewParseError は新しいParseErrorを作成し、スタックトレースを付与します。
func NewParseError(row, column int, reason string, cause error) error {
	return errors.WithStack(&ParseError{Row: row, Column: column, Reason: reason, Err: cause})
}

// ShapeMismatchError は入力行列が空、または行ごとの列数が揃っていない場合のエラーです。
// Row が -1 の場合は行列全体の問題（空行列など）を表します。
type ShapeMismatchError struct {
	Op       string
	Row      int
	Expected int
	Got      int
}

func (e *ShapeMismatchError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("mlpipe: %s: shape mismatch: expected at least %d, got %d", e.Op, e.Expected, e.Got)
	}
	return fmt.Sprintf("mlpipe: %s: shape mismatch at row %d: expected %d columns, got %d", e.Op, e.Row, e.Expected, e.Got)
}

// Is は ErrShapeMismatch との比較を可能にします。
func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// NewShapeMismatchError は新しいShapeMismatchErrorを作成し、スタックトレースを付与します。
func NewShapeMismatchError(op string, row, expected, got int) error {
	return errors.WithStack(&ShapeMismatchError{Op: op, Row: row, Expected: expected, Got: got})
}

// DegenerateRowError は合計が0の行を正規化しようとした場合のエラーです。
type DegenerateRowError struct {
	Op  string
	Row int
}

func (e *DegenerateRowError) Error() string {
	return fmt.Sprintf("mlpipe: %s: row %d sums to zero and cannot be normalized", e.Op, e.Row)
}

// Is は ErrDegenerateRow との比較を可能にします。
func (e *DegenerateRowError) Is(target error) bool { return target == ErrDegenerateRow }

// NewDegenerateRowError は新しいDegenerateRowErrorを作成し、スタックトレースを付与します。
func NewDegenerateRowError(op string, row int) error {
	return errors.WithStack(&DegenerateRowError{Op: op, Row: row})
}

// DegenerateColumnError は標準偏差が0の列を標準化しようとした場合のエラーです。
type DegenerateColumnError struct {
	Op     string
	Column int
}

func (e *DegenerateColumnError) Error() string {
	return fmt.Sprintf("mlpipe: %s: column %d has zero standard deviation and cannot be standardized", e.Op, e.Column)
}

// Is は ErrDegenerateColumn との比較を可能にします。
func (e *DegenerateColumnError) Is(target error) bool { return target == ErrDegenerateColumn }

// NewDegenerateColumnError は新しいDegenerateColumnErrorを作成し、スタックトレースを付与します。
func NewDegenerateColumnError(op string, column int) error {
	return errors.WithStack(&DegenerateColumnError{Op: op, Column: column})
}

// FeatureShapeMismatchError は推論時の特徴量数が学習時と異なる場合のエラーです。
type FeatureShapeMismatchError struct {
	Op       string
	Expected int
	Got      int
}

func (e *FeatureShapeMismatchError) Error() string {
	return fmt.Sprintf("mlpipe: %s: model was trained on %d features, got %d", e.Op, e.Expected, e.Got)
}

// Is は ErrFeatureShapeMismatch との比較を可能にします。
func (e *FeatureShapeMismatchError) Is(target error) bool { return target == ErrFeatureShapeMismatch }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FeatureShapeMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("type", "FeatureShapeMismatchError")
}

// NewFeatureShapeMismatchError は新しいFeatureShapeMismatchErrorを作成し、スタックトレースを付与します。
func NewFeatureShapeMismatchError(op string, expected, got int) error {
	return errors.WithStack(&FeatureShapeMismatchError{Op: op, Expected: expected, Got: got})
}

// LabelCountMismatchError はラベル数がサンプル数と一致しない場合のエラーです。
type LabelCountMismatchError struct {
	Op      string
	Samples int
	Labels  int
}

func (e *LabelCountMismatchError) Error() string {
	return fmt.Sprintf("mlpipe: %s: got %d labels for %d samples", e.Op, e.Labels, e.Samples)
}

// Is は ErrLabelCountMismatch との比較を可能にします。
func (e *LabelCountMismatchError) Is(target error) bool { return target == ErrLabelCountMismatch }

// NewLabelCountMismatchError は新しいLabelCountMismatchErrorを作成し、スタックトレースを付与します。
func NewLabelCountMismatchError(op string, samples, labels int) error {
	return errors.WithStack(&LabelCountMismatchError{Op: op, Samples: samples, Labels: labels})
}

// InvalidKError は k が 1 未満、またはサンプル数を超える場合のエラーです。
type InvalidKError struct {
	Op       string
	K        int
	NSamples int
}

func (e *InvalidKError) Error() string {
	return fmt.Sprintf("mlpipe: %s: k must be in [1, %d], got %d", e.Op, e.NSamples, e.K)
}

// Is は ErrInvalidK との比較を可能にします。
func (e *InvalidKError) Is(target error) bool { return target == ErrInvalidK }

// NewInvalidKError は新しいInvalidKErrorを作成し、スタックトレースを付与します。
func NewInvalidKError(op string, k, nSamples int) error {
	return errors.WithStack(&InvalidKError{Op: op, K: k, NSamples: nSamples})
}

// UnknownAlgorithmError は登録されていないアルゴリズム識別子のエラーです。
type UnknownAlgorithmError struct {
	Algorithm string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("mlpipe: unknown algorithm %q", e.Algorithm)
}

// Is は ErrUnknownAlgorithm との比較を可能にします。
func (e *UnknownAlgorithmError) Is(target error) bool { return target == ErrUnknownAlgorithm }

// NewUnknownAlgorithmError は新しいUnknownAlgorithmErrorを作成し、スタックトレースを付与します。
func NewUnknownAlgorithmError(algorithm string) error {
	return errors.WithStack(&UnknownAlgorithmError{Algorithm: algorithm})
}

// NotFittedError はモデルが未学習の状態で `Predict` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("mlpipe: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// ValidationError は学習設定の検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mlpipe: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// Is は ErrInvalidConfig との比較を可能にします。
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidConfig }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ModelError は学習・推論中の一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mlpipe: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mlpipe: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf などを検出します。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "cross_entropy", "softmax"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("mlpipe: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}
