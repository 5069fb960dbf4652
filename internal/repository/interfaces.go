// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/caseman/internal/model"
)

// CaseRepository はケースレコードの永続化インターフェース。
type CaseRepository interface {
	// InsertWithDupCheck はケースレコードを重複チェック付きで挿入する。
	// 重複キーは (venue_id, venue_type, batch_id, start_time)。
	// 挿入された場合は新しいID、重複でスキップされた場合は0を返す。
	InsertWithDupCheck(ctx context.Context, c *model.CaseRecord) (int64, error)

	// FindByID は指定IDのケースレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.CaseRecord, error)

	// MaxBatchID は保存済みケースの最大バッチIDを返す。1件もない場合は-1を返す。
	MaxBatchID(ctx context.Context) (int, error)

	// ListUnmatchedOverlapsWithCheckIns は未評価ケースと非ブックマーク訪問の
	// 結合行を返す。会場タイプ・会場IDの一致かつ訪問開始がsince以降のもの。
	ListUnmatchedOverlapsWithCheckIns(ctx context.Context, since time.Time) ([]model.MatchCandidate, error)

	// ListUnmatchedOverlapsWithBookmarks は未評価ケースとブックマークの結合行を返す。
	// ブックマークは常設のため期間制限なし。
	ListUnmatchedOverlapsWithBookmarks(ctx context.Context) ([]model.MatchCandidate, error)

	// ListOverlapsForVisit は指定訪問記録と会場が一致する全ケースの結合行を返す。
	// 新規ブックマークには過去の照合がないため、matchedフラグに関係なく全件を対象とする。
	ListOverlapsForVisit(ctx context.Context, visitID string) ([]model.MatchCandidate, error)

	// MarkAllMatched は未評価の全ケースをmatched=trueにする。
	MarkAllMatched(ctx context.Context) error

	// DeleteOlderThan はstart_timeがcutoffより古いケースを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// VisitRepository は訪問記録の永続化インターフェース。
// 訪問記録の所有者は周辺アプリケーションであり、本エンジンは
// マッチングのための読み取りとexposureの書き込みを行う。
type VisitRepository interface {
	// FindByID は指定IDの訪問記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.VisitRecord, error)

	// Create は訪問記録（チェックインまたはブックマーク）を作成する。
	Create(ctx context.Context, v *model.VisitRecord) error

	// SetEndTime は滞在中の訪問記録に終了時刻を設定する（チェックアウト）。
	SetEndTime(ctx context.Context, id string, endTime time.Time) error

	// SetExposure は訪問記録の曝露レベルを設定する。
	// レベルは単調エスカレーションのみ（INDIRECTからDIRECTへは上がるが逆はない）。
	SetExposure(ctx context.Context, id string, level model.ExposureLevel) error

	// List は訪問記録の一覧を開始時刻降順で返す。
	List(ctx context.Context, limit int) ([]*model.VisitRecord, error)
}

// NotificationRepository は通知インボックスの永続化インターフェース。
type NotificationRepository interface {
	// FindByVisitID は訪問記録IDで通知エントリを検索する。見つからない場合はnilを返す。
	FindByVisitID(ctx context.Context, visitID string) (*model.NotificationEntry, error)

	// ListLinksByEntry はエントリの全MatchLinkを返す。
	ListLinksByEntry(ctx context.Context, entryID string) ([]*model.MatchLink, error)

	// UpsertWithLinks はエントリと新規MatchLinkを同一トランザクションで書き込む。
	// isNewがtrueの場合はエントリをINSERT、falseの場合は
	// exposure/total_count/last_updateをUPDATEする。
	UpsertWithLinks(ctx context.Context, entry *model.NotificationEntry, newLinks []*model.MatchLink, isNew bool) error

	// List は通知エントリの一覧をlast_update降順で返す。
	List(ctx context.Context, limit int) ([]*model.NotificationEntry, error)

	// UnreadCount は未読エントリ数を返す。
	UnreadCount(ctx context.Context) (int, error)

	// MarkRead は指定エントリを既読にする。該当なしの場合はfalseを返す。
	MarkRead(ctx context.Context, entryID string) (bool, error)
}

// SettingsRepository はウォーターマークと閾値設定の永続化インターフェース。
type SettingsRepository interface {
	// Watermark は現在のウォーターマークを返す。
	Watermark(ctx context.Context) (model.Watermark, error)

	// AdvanceWatermark はウォーターマークをmax合流で前進させる。
	// 渡された値が現在値より小さいフィールドは変更されない。
	AdvanceWatermark(ctx context.Context, w model.Watermark) error

	// SetLastUserDownloadTime はユーザー起因の最終ダウンロード時刻を記録する。
	// UI表示専用であり、バッチフィルタリングには使用しない。
	SetLastUserDownloadTime(ctx context.Context, epochMillis int64) error

	// LastUserDownloadTime はユーザー起因の最終ダウンロード時刻を返す。未記録なら0。
	LastUserDownloadTime(ctx context.Context) (int64, error)

	// Thresholds は曝露判定の閾値設定を返す。各値0は「未設定」を意味する。
	Thresholds(ctx context.Context) (Thresholds, error)
}

// Thresholds はsettings行に保存される曝露判定の閾値。
// 値0は「未設定＝デフォルトを使用」を一貫して意味する。
type Thresholds struct {
	CheckExposureDays        int
	DirectOverlapThresholdMs int64
	IndirectVehicleDays      int
}
