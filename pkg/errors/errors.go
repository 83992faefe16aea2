// Package errors はxgbport全体のエラーハンドリングと警告システムを提供します。
// モデルの読み込みから変換までの失敗を、フォーマット・スキーマ・構造の3種類に分類し、
// フィールド名やオフセットなどの構造化された情報を付与します。
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
		log.Printf("xgbport-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
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

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// DataConversionWarning は特徴量の型が暗黙的に変換された場合に発生する警告です。
// 例えば、double型の連続特徴量がfloat型に縮小された場合など。
type DataConversionWarning struct {
	Feature  string
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("feature '%s' converted from %s to %s. Reason: %s", w.Feature, w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("feature", w.Feature).
		Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(feature, from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{Feature: feature, FromType: from, ToType: to, Reason: reason}
}

// UnusedFeatureWarning は特徴量マップのエントリがどの木からも参照されない場合の警告です。
type UnusedFeatureWarning struct {
	Feature string
	Index   int
}

func (w *UnusedFeatureWarning) Error() string {
	return fmt.Sprintf("feature '%s' (index %d) is not referenced by any split", w.Feature, w.Index)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UnusedFeatureWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("feature", w.Feature).
		Int("index", w.Index).
		Str("type", "UnusedFeatureWarning")
}

// NewUnusedFeatureWarning は新しいUnusedFeatureWarningを作成します。
func NewUnusedFeatureWarning(feature string, index int) *UnusedFeatureWarning {
	return &UnusedFeatureWarning{Feature: feature, Index: index}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// FormatError はモデルのバイト列またはテキスト表現が不正な場合のエラーです。
// 署名の不一致、未対応のバージョン、予約領域の非ゼロ値、読み込み不足、
// 未知の目的関数名などを表します。
type FormatError struct {
	Field  string // 読み込み中のフィールド名（テキスト形式ではパス）
	Offset int64  // バイトオフセット（テキスト形式では -1）
	Err    error
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("xgbport: format: field '%s' at offset %d: %v", e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("xgbport: format: field '%s': %v", e.Field, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FormatError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Int64("offset", e.Offset).
		AnErr("cause", e.Err).
		Str("type", "FormatError")
}

// NewFormatError は新しいFormatErrorを作成し、スタックトレースを付与します。
func NewFormatError(field string, offset int64, err error) error {
	return errors.WithStack(&FormatError{Field: field, Offset: offset, Err: err})
}

// NewFormatErrorf はフォーマット文字列から原因を作るFormatErrorのショートカットです。
func NewFormatErrorf(field string, offset int64, format string, args ...interface{}) error {
	return NewFormatError(field, offset, errors.Newf(format, args...))
}

// SchemaError は特徴量スキーマの解決に失敗した場合のエラーです。
// 分岐が参照する特徴量が存在しない、分岐の種類と特徴量の種類が一致しない、
// 連続値としてエンコードできないデータ型などを表します。
type SchemaError struct {
	Feature string
	Index   int // 特徴量の位置（不明な場合は -1）
	Reason  string
}

func (e *SchemaError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("xgbport: schema: feature #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("xgbport: schema: feature '%s': %s", e.Feature, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("feature", e.Feature).
		Int("index", e.Index).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError は新しいSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(feature string, index int, reason string) error {
	return errors.WithStack(&SchemaError{Feature: feature, Index: index, Reason: reason})
}

// StructuralError はアンサンブルや木の構造が変換の前提を満たさない場合のエラーです。
// 木の数がグループ数で割り切れない、木数の上限指定が木の数を超える、
// 枝刈り時のデフォルト子ノードの衝突などを表します。
type StructuralError struct {
	Op     string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("xgbport: %s: %s", e.Op, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *StructuralError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "StructuralError")
}

// NewStructuralError は新しいStructuralErrorを作成し、スタックトレースを付与します。
func NewStructuralError(op, reason string) error {
	return errors.WithStack(&StructuralError{Op: op, Reason: reason})
}

// NewStructuralErrorf はフォーマット文字列版のNewStructuralErrorです。
func NewStructuralErrorf(op, format string, args ...interface{}) error {
	return NewStructuralError(op, fmt.Sprintf(format, args...))
}

// ValidationError は変換オプションの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("xgbport: validation failed for option '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

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

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrShortRead は入力が途中で終わった場合のエラーです。
	ErrShortRead = New("short read")

	// ErrTrailingBytes はデコード完了後に未消費のバイトが残っている場合のエラーです。
	ErrTrailingBytes = New("trailing unconsumed bytes")

	// ErrReservedNotZero は予約領域にゼロ以外の値が含まれる場合のエラーです。
	ErrReservedNotZero = New("reserved field is not zero")

	// ErrUnsupportedVersion は対応範囲外のフォーマットバージョンの場合のエラーです。
	ErrUnsupportedVersion = New("unsupported format version")

	// ErrUnknownObjective は未知の目的関数名の場合のエラーです。
	ErrUnknownObjective = New("unknown objective function")

	// ErrUnknownBooster は未知のブースター名の場合のエラーです。
	ErrUnknownBooster = New("unknown booster")

	// ErrTypeMismatch はテキスト形式のフィールドの型が期待と異なる場合のエラーです。
	ErrTypeMismatch = New("type mismatch")

	// ErrBadSignature は入力の署名が認識できない場合のエラーです。
	ErrBadSignature = New("malformed signature")

	// ErrConflictingOptions は両立しないオプションが指定された場合のエラーです。
	ErrConflictingOptions = New("conflicting options")
)
