// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// VenueTypeTaxi は車両（タクシー）の会場タイプ。
// 車両タイプのみ間接接触の猶予ウィンドウが適用される。
const VenueTypeTaxi = "TAXI"

// NoGroup はグループ未割り当てを表すグループID。
const NoGroup = "00000000"

// VenueInfo は会場の表示情報を表す。
// ケースレコードと訪問記録の両方に埋め込まれる。
type VenueInfo struct {
	NameEn    string // 英語名（空の場合あり）
	NameZh    string // 中国語名（空の場合あり）
	LicenseNo string // タクシーのナンバープレート（タクシーのみ）
	Type      string // 会場タイプ（QRコード由来の文字列または "TAXI"）
	VenueID   string // 会場ID（8文字トークン）
}

// CaseRecord は復号済みの感染ケースレコードを表す。
// バッチデコードパイプラインが生成し、マッチング済みフラグ以外は不変。
type CaseRecord struct {
	ID           int64
	GroupID      string // グループID（8文字トークン）
	RandomTokens string // 端末ローテーション由来のランダムトークン（","区切り、合流で増える）
	VenueInfo    VenueInfo
	StartTime    time.Time
	EndTime      time.Time
	BatchID      int       // 配信元バッチの単調増加ID
	BatchTime    time.Time // バッチの解決済みタイムスタンプ
	Matched      bool      // マッチングパスが評価済みならtrue
	CreatedAt    time.Time
}

// TokenCount はランダムトークンの個数（= ケースの多重度）を返す。
// 合流済みレコードでは1つの実訪問ウィンドウに寄与した端末レコード数になる。
func (c *CaseRecord) TokenCount() int {
	if c.RandomTokens == "" {
		return 0
	}
	return strings.Count(c.RandomTokens, ",") + 1
}

// BatchDescriptor は保健当局が公開するバッチカタログの1エントリを表す。
type BatchDescriptor struct {
	ID        int    `json:"id"`
	Filename  string `json:"filename"`
	BatchSize int64  `json:"batchSize"`
	UpdatedAt int64  `json:"updatedAt"` // エポックミリ秒
}

// Watermark はバッチ取り込みの進捗を表す。
// 値は単調増加のみ（max合流）で更新される。
type Watermark struct {
	LastBatchID      int
	LastDownloadTime int64 // エポックミリ秒
}

// Merge は2つのウォーターマークをmax合流した結果を返す。
// 取り込みパスの再実行や交錯があっても値が後退しないことを保証する。
func (w Watermark) Merge(other Watermark) Watermark {
	merged := w
	if other.LastBatchID > merged.LastBatchID {
		merged.LastBatchID = other.LastBatchID
	}
	if other.LastDownloadTime > merged.LastDownloadTime {
		merged.LastDownloadTime = other.LastDownloadTime
	}
	return merged
}
