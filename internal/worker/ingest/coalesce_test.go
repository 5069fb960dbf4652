package ingest

import (
	"testing"
	"time"

	"github.com/hitoshi/caseman/internal/model"
)

func rec(token, venueID string, start, end time.Time) *model.CaseRecord {
	return &model.CaseRecord{
		RandomTokens: token,
		VenueInfo:    model.VenueInfo{VenueID: venueID, Type: "RESTAURANT"},
		StartTime:    start,
		EndTime:      end,
	}
}

// TestCoalescer_MergesConsecutive は連続する同一ウィンドウのレコードが
// 1件に合流されることを検証する。
func TestCoalescer_MergesConsecutive(t *testing.T) {
	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var emitted []*model.CaseRecord
	c := NewCoalescer(func(r *model.CaseRecord) error {
		emitted = append(emitted, r)
		return nil
	})

	for _, token := range []string{"AAAAAAAA", "BBBBBBBB", "CCCCCCCC"} {
		if err := c.Push(rec(token, "VENUE001", start, end)); err != nil {
			t.Fatalf("Push() returned error: %v", err)
		}
	}
	// 4件目は別会場なので新しいグループが始まる
	if err := c.Push(rec("DDDDDDDD", "VENUE002", start, end)); err != nil {
		t.Fatalf("Push() returned error: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() returned error: %v", err)
	}

	if len(emitted) != 2 {
		t.Fatalf("確定レコード数 = %d, want 2", len(emitted))
	}
	if emitted[0].RandomTokens != "AAAAAAAA,BBBBBBBB,CCCCCCCC" {
		t.Errorf("RandomTokens = %q, want %q", emitted[0].RandomTokens, "AAAAAAAA,BBBBBBBB,CCCCCCCC")
	}
	if emitted[0].TokenCount() != 3 {
		t.Errorf("TokenCount() = %d, want 3", emitted[0].TokenCount())
	}
	if emitted[1].RandomTokens != "DDDDDDDD" {
		t.Errorf("2件目のRandomTokens = %q, want %q", emitted[1].RandomTokens, "DDDDDDDD")
	}
}

// TestCoalescer_DifferentWindow は時刻が異なるレコードが合流されないことを検証する。
func TestCoalescer_DifferentWindow(t *testing.T) {
	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var emitted []*model.CaseRecord
	c := NewCoalescer(func(r *model.CaseRecord) error {
		emitted = append(emitted, r)
		return nil
	})

	if err := c.Push(rec("AAAAAAAA", "VENUE001", start, end)); err != nil {
		t.Fatalf("Push() returned error: %v", err)
	}
	// 同一会場でも開始時刻が違えば別レコード
	if err := c.Push(rec("BBBBBBBB", "VENUE001", start.Add(time.Hour), end.Add(time.Hour))); err != nil {
		t.Fatalf("Push() returned error: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() returned error: %v", err)
	}

	if len(emitted) != 2 {
		t.Fatalf("確定レコード数 = %d, want 2", len(emitted))
	}
}

// TestCoalescer_EmptyStream は空ストリームのFlushが何も確定しないことを検証する。
func TestCoalescer_EmptyStream(t *testing.T) {
	calls := 0
	c := NewCoalescer(func(r *model.CaseRecord) error {
		calls++
		return nil
	})

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() returned error: %v", err)
	}
	if calls != 0 {
		t.Errorf("emit呼び出し回数 = %d, want 0", calls)
	}
}
