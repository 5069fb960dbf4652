// Package model はドメインモデルを定義する。
package model

import "time"

// NotificationEntry は通知インボックスの1エントリを表す。
// マッチしたことのある訪問記録ごとに1件（visit_idと1:1）。
// ExposureLevelとTotalCountは常にMatchLink集合からの再導出であり、
// その場限りのインクリメントは行わない。
type NotificationEntry struct {
	ID         string
	VisitID    string
	VenueInfo  VenueInfo // マッチ時点の会場スナップショット
	Date       time.Time // 対象訪問の日付
	Bookmark   bool      // ブックマーク由来ならtrue
	Exposure   ExposureLevel
	TotalCount int // マッチしたケース多重度の合計
	Read       bool
	LastUpdate time.Time
}

// MatchLink はエントリに寄与したケースレコード1件の記録を表す。
// (entry_id, case_id) の組はユニークであり、同一ケースの二重計上を防ぐ
// 冪等性レコードとして機能する。
type MatchLink struct {
	ID           string
	EntryID      string
	CaseID       int64
	Exposure     ExposureLevel
	Multiplicity int   // ケースのランダムトークン数
	OverlapMs    int64 // 直接接触の重なり/間接接触の滞在時間（ブックマークは0）
	MatchedAt    time.Time
}
