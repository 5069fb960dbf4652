package casebatch

import (
	"testing"

	"github.com/hitoshi/caseman/internal/model"
)

// TestTimestampFromFilename はファイル名埋め込みタイムスタンプの抽出を検証する。
func TestTimestampFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int64
		wantOK   bool
	}{
		{"標準形式", "batch-1614556800000.zip", 1614556800000, true},
		{"ハイフンなし", "batch.zip", 0, false},
		{"ドットなし", "batch-1614556800000", 0, false},
		{"間が空", "batch-.zip", 0, false},
		{"数値でない", "batch-abc.zip", 0, false},
		{"ドットがハイフンより前", "batch.v2-123", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := timestampFromFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("timestampFromFilename(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("timestampFromFilename(%q) = %d, want %d", tt.filename, got, tt.want)
			}
		})
	}
}

// TestFilterEligible はウォーターマークに基づくバッチ選別を検証する。
func TestFilterEligible(t *testing.T) {
	w := model.Watermark{LastBatchID: 10, LastDownloadTime: 1614556800000}

	batches := []model.BatchDescriptor{
		// サイズ0は常に除外
		{ID: 20, Filename: "batch-1614999999999.zip", BatchSize: 0, UpdatedAt: 1614999999999},
		// IDが新しい
		{ID: 11, Filename: "batch-1614000000000.zip", BatchSize: 100, UpdatedAt: 1614000000000},
		// IDは古いがファイル名タイムスタンプが新しい
		{ID: 5, Filename: "batch-1614556800001.zip", BatchSize: 100, UpdatedAt: 0},
		// IDもファイル名タイムスタンプも古い
		{ID: 5, Filename: "batch-1614556799999.zip", BatchSize: 100, UpdatedAt: 1614999999999},
		// ファイル名形式が変わった場合はupdatedAtで比較
		{ID: 5, Filename: "newformat.zip", BatchSize: 100, UpdatedAt: 1614556800001},
		{ID: 5, Filename: "newformat2.zip", BatchSize: 100, UpdatedAt: 1614556800000},
	}

	got := FilterEligible(batches, w)

	wantIDs := []struct {
		id       int
		filename string
	}{
		{11, "batch-1614000000000.zip"},
		{5, "batch-1614556800001.zip"},
		{5, "newformat.zip"},
	}

	if len(got) != len(wantIDs) {
		t.Fatalf("選別結果 = %d件, want %d件: %+v", len(got), len(wantIDs), got)
	}
	for i, want := range wantIDs {
		if got[i].ID != want.id || got[i].Filename != want.filename {
			t.Errorf("選別結果[%d] = {%d %q}, want {%d %q}",
				i, got[i].ID, got[i].Filename, want.id, want.filename)
		}
	}
}

// TestResolveTimestamp は解決済みタイムスタンプの決定を検証する。
func TestResolveTimestamp(t *testing.T) {
	withTs := model.BatchDescriptor{Filename: "batch-1614556800000.zip", UpdatedAt: 999}
	if got := ResolveTimestamp(withTs); got != 1614556800000 {
		t.Errorf("ResolveTimestamp = %d, want 1614556800000", got)
	}

	withoutTs := model.BatchDescriptor{Filename: "batch.zip", UpdatedAt: 999}
	if got := ResolveTimestamp(withoutTs); got != 999 {
		t.Errorf("ResolveTimestamp = %d, want 999", got)
	}
}
