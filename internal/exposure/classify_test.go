package exposure

import (
	"testing"
	"time"

	"github.com/hitoshi/caseman/internal/model"
)

var testParams = Params{
	DirectOverlapThresholdMs: 60_000,
	IndirectWithinMs:         24 * 60 * 60 * 1000,
}

func at(hour, min int) time.Time {
	return time.Date(2021, 3, 1, hour, min, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// TestClassify_Direct は閾値を超える重なりが直接接触になることを検証する。
func TestClassify_Direct(t *testing.T) {
	// 訪問 [10:00,11:00)、ケース [10:58:30,12:00) → 重なり90秒
	visitEnd := at(11, 0)
	caseStart := at(10, 58).Add(30 * time.Second)

	got := Classify(caseStart, at(12, 0), at(10, 0), &visitEnd, "RESTAURANT", testParams, at(13, 0))

	if got.Type != ContactDirect {
		t.Fatalf("Type = %v, want DIRECT", got.Type)
	}
	if got.DiffMs != 90_000 {
		t.Errorf("DiffMs = %d, want 90000", got.DiffMs)
	}
}

// TestClassify_OverlapBoundary は境界値（重なり＝閾値ちょうど）が直接接触に
// ならないことを検証する。非車両はNONE、車両は間接接触にフォールバックする。
func TestClassify_OverlapBoundary(t *testing.T) {
	// 訪問 [10:00,11:00)、ケース [10:59,12:00) → 重なりちょうど60秒
	visitEnd := at(11, 0)

	got := Classify(at(10, 59), at(12, 0), at(10, 0), &visitEnd, "RESTAURANT", testParams, at(13, 0))
	if got.Type != ContactNone {
		t.Errorf("非車両の境界値: Type = %v, want NONE", got.Type)
	}
	if got.DiffMs != -1 {
		t.Errorf("非車両の境界値: DiffMs = %d, want -1", got.DiffMs)
	}

	got = Classify(at(10, 59), at(12, 0), at(10, 0), &visitEnd, model.VenueTypeTaxi, testParams, at(13, 0))
	if got.Type != ContactIndirect {
		t.Errorf("車両の境界値: Type = %v, want INDIRECT", got.Type)
	}
	// 間接接触のdiffは訪問の滞在時間
	if got.DiffMs != 60*60*1000 {
		t.Errorf("車両の境界値: DiffMs = %d, want %d", got.DiffMs, 60*60*1000)
	}
}

// TestClassify_TaxiGraceWindow は車両会場の間接接触猶予ウィンドウを検証する。
func TestClassify_TaxiGraceWindow(t *testing.T) {
	// 訪問 [09:00,09:30)、ケースは前日に終了
	visitStart := at(9, 0)
	visitEnd := at(9, 30)

	// ギャップ14.5時間 → 猶予24時間以内なので間接接触
	caseEnd := visitStart.Add(-14*time.Hour - 30*time.Minute)
	got := Classify(caseEnd.Add(-time.Hour), caseEnd, visitStart, &visitEnd, model.VenueTypeTaxi, testParams, at(13, 0))
	if got.Type != ContactIndirect {
		t.Errorf("ギャップ14.5時間: Type = %v, want INDIRECT", got.Type)
	}
	if got.DiffMs != 30*60*1000 {
		t.Errorf("ギャップ14.5時間: DiffMs = %d, want %d", got.DiffMs, 30*60*1000)
	}

	// ギャップ25時間 → 猶予を超えるので接触なし
	caseEnd = visitStart.Add(-25 * time.Hour)
	got = Classify(caseEnd.Add(-time.Hour), caseEnd, visitStart, &visitEnd, model.VenueTypeTaxi, testParams, at(13, 0))
	if got.Type != ContactNone {
		t.Errorf("ギャップ25時間: Type = %v, want NONE", got.Type)
	}
}

// TestClassify_NonTaxiNoGraceWindow は非車両会場に猶予ウィンドウが
// 適用されないことを検証する。
func TestClassify_NonTaxiNoGraceWindow(t *testing.T) {
	visitStart := at(9, 0)
	visitEnd := at(9, 30)
	caseEnd := visitStart.Add(-1 * time.Hour)

	got := Classify(caseEnd.Add(-time.Hour), caseEnd, visitStart, &visitEnd, "RESTAURANT", testParams, at(13, 0))
	if got.Type != ContactNone {
		t.Errorf("Type = %v, want NONE", got.Type)
	}
}

// TestClassify_CaseAfterVisit は訪問より後に始まるケースが接触なしに
// なることを検証する（猶予ウィンドウはケースが先行する場合のみ）。
func TestClassify_CaseAfterVisit(t *testing.T) {
	visitEnd := at(9, 30)

	got := Classify(at(10, 0), at(11, 0), at(9, 0), &visitEnd, model.VenueTypeTaxi, testParams, at(13, 0))
	if got.Type != ContactNone {
		t.Errorf("Type = %v, want NONE", got.Type)
	}
}

// TestClassify_OpenEndedVisit は未チェックアウトの訪問が評価時点で
// 終了したとみなされることを検証する。
func TestClassify_OpenEndedVisit(t *testing.T) {
	now := at(12, 0)

	// 訪問 [10:00,now=12:00)、ケース [10:30,11:00) → 重なり30分
	got := Classify(at(10, 30), at(11, 0), at(10, 0), nil, "RESTAURANT", testParams, now)
	if got.Type != ContactDirect {
		t.Fatalf("Type = %v, want DIRECT", got.Type)
	}
	if got.DiffMs != 30*60*1000 {
		t.Errorf("DiffMs = %d, want %d", got.DiffMs, 30*60*1000)
	}
}

// TestContactTypeLevel はContactTypeから曝露レベルへの変換を検証する。
func TestContactTypeLevel(t *testing.T) {
	if ContactDirect.Level() != model.ExposureDirect {
		t.Errorf("ContactDirect.Level() = %q", ContactDirect.Level())
	}
	if ContactIndirect.Level() != model.ExposureIndirect {
		t.Errorf("ContactIndirect.Level() = %q", ContactIndirect.Level())
	}
	if ContactNone.Level() != model.ExposureNone {
		t.Errorf("ContactNone.Level() = %q", ContactNone.Level())
	}
}
