// Package model はドメインモデルを定義する。
package model

import "time"

// ExposureLevel は曝露レベルを表す。
// NONE → INDIRECT → DIRECT の順にのみ遷移し、後退しない。
type ExposureLevel string

const (
	// ExposureNone は曝露なし。
	ExposureNone ExposureLevel = ""
	// ExposureIndirect は間接接触（時間重なりなし、または重なり不足）。
	ExposureIndirect ExposureLevel = "I"
	// ExposureDirect は直接接触（十分な時間重なり）。
	ExposureDirect ExposureLevel = "D"
)

// Escalate は現在のレベルとotherのうち高い方を返す。
// レベルの単調エスカレーション（降格なし）を実装する。
func (l ExposureLevel) Escalate(other ExposureLevel) ExposureLevel {
	if l == ExposureDirect || other == ExposureDirect {
		return ExposureDirect
	}
	if l == ExposureIndirect || other == ExposureIndirect {
		return ExposureIndirect
	}
	return ExposureNone
}

// VisitRecord はユーザー自身の訪問記録（チェックイン）またはブックマークを表す。
// 本エンジンはマッチングのための読み取りとexposureの書き込みのみを行う。
type VisitRecord struct {
	ID        string
	GroupID   string
	VenueInfo VenueInfo
	StartTime time.Time
	EndTime   *time.Time // 滞在中（未チェックアウト）の場合はnil
	Bookmark  bool       // trueならお気に入り会場（時間的な意味を持たない）
	Exposure  ExposureLevel
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchCandidate は未評価ケースと訪問記録の結合行を表す。
// ケースと訪問の会場タイプ・会場IDが一致する組み合わせごとに1行。
type MatchCandidate struct {
	VisitID        string
	VisitBookmark  bool
	VenueInfo      VenueInfo
	VisitStartTime time.Time
	VisitEndTime   *time.Time
	CaseID         int64
	CaseTokens     string
	CaseStartTime  time.Time
	CaseEndTime    time.Time
}
