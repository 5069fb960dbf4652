// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 失敗種別ごとの原因カテゴリと人間が読める対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: transport, decode, persistence, validation
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTransport      = "TRANSPORT_ERROR"
	ErrCodeDecode         = "DECODE_ERROR"
	ErrCodeCrypto         = "CRYPTO_ERROR"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
	ErrCodeVisitNotFound  = "VISIT_NOT_FOUND"
	ErrCodeEntryNotFound  = "ENTRY_NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeIngestRunning  = "INGEST_RUNNING"
)

// NewTransportError はカタログ/アーカイブ取得の失敗エラーを生成する。
// 再試行は外部スケジューラの責務であり、本エンジンは再試行しない。
func NewTransportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTransport,
		Message:  fmt.Sprintf("バッチの取得に失敗しました: %s", reason),
		Category: "transport",
		Action:   "ネットワーク接続を確認してください。次回の定期実行で自動的に再試行されます。",
	}
}

// NewDecodeError は不正なアーカイブエントリ/protobuf/平文レイアウトのエラーを生成する。
// 現在のバッチに対して致命的だが、挿入済みの他バッチには影響しない。
func NewDecodeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDecode,
		Message:  fmt.Sprintf("バッチデータのデコードに失敗しました: %s", reason),
		Category: "decode",
		Action:   "配信データの形式が想定と異なります。アプリを最新版に更新してください。",
	}
}

// NewCryptoError は鍵導出または復号の失敗エラーを生成する。
// デコードエラーと同じ扱い（現在のバッチに致命的）。
func NewCryptoError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCrypto,
		Message:  fmt.Sprintf("ケースレコードの復号に失敗しました: %s", reason),
		Category: "decode",
		Action:   "配信データの形式が想定と異なります。アプリを最新版に更新してください。",
	}
}

// NewPersistenceError はストア操作の失敗エラーを生成する。
// 現在のパスの残りを中断する。コミット済みの行はそのまま残る。
func NewPersistenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  fmt.Sprintf("データの保存に失敗しました: %s", reason),
		Category: "persistence",
		Action:   "ストレージの空き容量を確認し、再度お試しください。",
	}
}

// NewVisitNotFoundError は訪問記録未検出エラーを生成する。
func NewVisitNotFoundError(visitID string) *APIError {
	return &APIError{
		Code:     ErrCodeVisitNotFound,
		Message:  fmt.Sprintf("指定された訪問記録が見つかりません: %s", visitID),
		Category: "validation",
		Action:   "訪問記録IDを確認してください。",
	}
}

// NewEntryNotFoundError は通知エントリ未検出エラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定された通知が見つかりません: %s", entryID),
		Category: "validation",
		Action:   "通知IDを確認してください。",
	}
}

// NewInvalidRequestError は不正なリクエストエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewIngestRunningError は取り込み実行中エラーを生成する。
// 取り込みパスはシングルフライトであり、同時実行は拒否される。
func NewIngestRunningError() *APIError {
	return &APIError{
		Code:     ErrCodeIngestRunning,
		Message:  "バッチ取り込みは既に実行中です。",
		Category: "validation",
		Action:   "実行中の取り込みが完了してから再度お試しください。",
	}
}
