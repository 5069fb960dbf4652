// Package exposure は接触判定と通知インボックスへの集約を提供する。
package exposure

import (
	"time"

	"github.com/hitoshi/caseman/internal/model"
)

// ContactType は接触判定の結果種別。
type ContactType int

const (
	// ContactNone は接触なし。
	ContactNone ContactType = iota
	// ContactIndirect は間接接触（時間重なりなし、または重なり不足）。
	ContactIndirect
	// ContactDirect は直接接触（閾値を超える時間重なり）。
	ContactDirect
)

// String はContactTypeの表示名を返す。
func (c ContactType) String() string {
	switch c {
	case ContactDirect:
		return "DIRECT"
	case ContactIndirect:
		return "INDIRECT"
	default:
		return "NONE"
	}
}

// Level は対応する曝露レベルを返す。
func (c ContactType) Level() model.ExposureLevel {
	switch c {
	case ContactDirect:
		return model.ExposureDirect
	case ContactIndirect:
		return model.ExposureIndirect
	default:
		return model.ExposureNone
	}
}

// Params は接触判定の閾値パラメータ。
type Params struct {
	// DirectOverlapThresholdMs は直接接触と判定する重なりの閾値（ミリ秒）。
	// 重なりが厳密にこの値を超えた場合のみ直接接触となる（境界値は除外）。
	DirectOverlapThresholdMs int64
	// IndirectWithinMs は車両会場の間接接触の猶予ウィンドウ（ミリ秒）。
	// 車両以外の会場には適用されず、-1で無効化される。
	IndirectWithinMs int64
}

// Contact は接触判定の結果。
type Contact struct {
	Type ContactType
	// DiffMs は直接接触なら重なり時間、間接接触なら訪問の滞在時間（ミリ秒）。
	// 接触なしの場合は-1。
	DiffMs int64
}

// Classify はケース区間と訪問区間の時間関係から接触種別を判定する純関数。
//
// venueTypeが車両（TAXI）の場合のみ間接接触の猶予ウィンドウが有効になる。
// 未チェックアウトの訪問（visitEnd == nil）は評価時点nowで終了したとみなす。
//
// 判定手順:
//  1. 2区間が重ならない場合、ケースが訪問より前に終わっていて
//     ギャップが猶予ウィンドウ以内なら間接接触、それ以外は接触なし。
//  2. 重なる場合、重なり時間が閾値を厳密に超えれば直接接触。
//  3. 重なり不足でも猶予ウィンドウが有効なら間接接触。
func Classify(caseStart, caseEnd, visitStart time.Time, visitEnd *time.Time, venueType string, params Params, now time.Time) Contact {
	indirectWithin := int64(-1)
	if venueType == model.VenueTypeTaxi {
		indirectWithin = params.IndirectWithinMs
	}

	vEnd := now
	if visitEnd != nil {
		vEnd = *visitEnd
	}

	stayMs := vEnd.Sub(visitStart).Milliseconds()

	// 重なりなし
	if !caseEnd.After(visitStart) || !vEnd.After(caseStart) {
		if !caseEnd.After(visitStart) {
			gap := visitStart.Sub(caseEnd).Milliseconds()
			if gap <= indirectWithin {
				return Contact{Type: ContactIndirect, DiffMs: stayMs}
			}
		}
		return Contact{Type: ContactNone, DiffMs: -1}
	}

	// 2区間の交差の長さ
	overlapStart := visitStart
	if caseStart.After(overlapStart) {
		overlapStart = caseStart
	}
	overlapEnd := vEnd
	if caseEnd.Before(overlapEnd) {
		overlapEnd = caseEnd
	}
	overlap := overlapEnd.Sub(overlapStart).Milliseconds()

	if overlap > params.DirectOverlapThresholdMs {
		return Contact{Type: ContactDirect, DiffMs: overlap}
	}

	// 重なり不足。猶予ウィンドウが有効なら間接接触にフォールバック
	if indirectWithin > 0 {
		return Contact{Type: ContactIndirect, DiffMs: stayMs}
	}
	return Contact{Type: ContactNone, DiffMs: -1}
}
