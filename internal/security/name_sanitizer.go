// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService は復号されたバッチレコードのメタデータに含まれる
// 会場表示名をサニタイズする。メタデータは外部配信元由来のため、
// そのままUI応答に埋め込むと格納型XSSのリスクがある。
// bluemondayのStrictPolicyですべてのマークアップを除去し、
// プレーンテキストのみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は会場表示名のサニタイズ機能のインターフェースを定義する。
// バッチデコード時、レコード保存前に使用される。
type NameSanitizerService interface {
	// SanitizeName は会場表示名からHTMLマークアップをすべて除去し、
	// 前後の空白をトリムしたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// 会場名はプレーンテキストのみ許容するため、タグを一切許可しない
// StrictPolicyを使用する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は会場表示名からHTMLマークアップをすべて除去する。
// StrictPolicyはタグ除去後にテキストをエンティティエスケープするため、
// 保存用のプレーンテキストに戻すべくアンエスケープしてから返す。
func (s *nameSanitizer) SanitizeName(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
