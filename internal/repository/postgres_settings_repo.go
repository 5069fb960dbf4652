package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/caseman/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用した設定リポジトリ。
// settingsテーブルは常にid=1の1行のみを持つ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Watermark は現在のウォーターマークを返す。
func (r *PostgresSettingsRepo) Watermark(ctx context.Context) (model.Watermark, error) {
	var w model.Watermark
	err := r.db.QueryRowContext(ctx,
		`SELECT last_batch_id, last_download_time FROM settings WHERE id = 1`,
	).Scan(&w.LastBatchID, &w.LastDownloadTime)
	if err != nil {
		return model.Watermark{}, fmt.Errorf("ウォーターマークの取得に失敗しました: %w", err)
	}
	return w, nil
}

// AdvanceWatermark はウォーターマークをmax合流で前進させる。
// GREATESTにより、並行実行や再実行があっても値は後退しない。
func (r *PostgresSettingsRepo) AdvanceWatermark(ctx context.Context, w model.Watermark) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE settings
		 SET last_batch_id      = GREATEST(last_batch_id, $1),
		     last_download_time = GREATEST(last_download_time, $2)
		 WHERE id = 1`,
		w.LastBatchID, w.LastDownloadTime,
	)
	if err != nil {
		return fmt.Errorf("ウォーターマークの更新に失敗しました: %w", err)
	}
	return nil
}

// SetLastUserDownloadTime はユーザー起因の最終ダウンロード時刻を記録する。
func (r *PostgresSettingsRepo) SetLastUserDownloadTime(ctx context.Context, epochMillis int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE settings SET last_user_download_time = $1 WHERE id = 1`,
		epochMillis,
	)
	if err != nil {
		return fmt.Errorf("ユーザーダウンロード時刻の更新に失敗しました: %w", err)
	}
	return nil
}

// LastUserDownloadTime はユーザー起因の最終ダウンロード時刻を返す。未記録なら0。
func (r *PostgresSettingsRepo) LastUserDownloadTime(ctx context.Context) (int64, error) {
	var t int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_user_download_time FROM settings WHERE id = 1`,
	).Scan(&t)
	if err != nil {
		return 0, fmt.Errorf("ユーザーダウンロード時刻の取得に失敗しました: %w", err)
	}
	return t, nil
}

// Thresholds は曝露判定の閾値設定を返す。各値0は「未設定」を意味する。
func (r *PostgresSettingsRepo) Thresholds(ctx context.Context) (Thresholds, error) {
	var th Thresholds
	err := r.db.QueryRowContext(ctx,
		`SELECT check_exposure_days, direct_overlap_threshold_ms, indirect_vehicle_days
		 FROM settings WHERE id = 1`,
	).Scan(&th.CheckExposureDays, &th.DirectOverlapThresholdMs, &th.IndirectVehicleDays)
	if err != nil {
		return Thresholds{}, fmt.Errorf("閾値設定の取得に失敗しました: %w", err)
	}
	return th, nil
}

// インターフェース適合の静的検証
var (
	_ CaseRepository         = (*PostgresCaseRepo)(nil)
	_ VisitRepository        = (*PostgresVisitRepo)(nil)
	_ NotificationRepository = (*PostgresNotificationRepo)(nil)
	_ SettingsRepository     = (*PostgresSettingsRepo)(nil)
)
