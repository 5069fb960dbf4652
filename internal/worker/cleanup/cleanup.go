// Package cleanup はケースレコードの自動削除ジョブを提供する。
// 保持期間（デフォルト31日）を超過したケースレコードを日次バッチで削除する。
// 関連するmatch_linksはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/caseman/internal/repository"
)

// defaultRetentionDays はケースレコードのデフォルト保持日数。
// 遡及期間（14日）より十分長く、配信元の公開期間に合わせてある。
const defaultRetentionDays = 31

// CleanupJob は保持期間を超過したケースレコードの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	cases         repository.CaseRepository
	logger        *slog.Logger
	RetentionDays int // ケースレコードの保持日数（デフォルト: 31）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(cases repository.CaseRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		cases:         cases,
		logger:        logger,
		RetentionDays: defaultRetentionDays,
	}
}

// Run は保持期間を超過したケースレコードを削除する。
// start_timeがRetentionDays日前より古いケースをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.cases.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("ケースクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return err
	}

	duration := time.Since(start)
	j.logger.Info("ケースクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は24時間間隔のティッカーでクリーンアップジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	j.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Int("retention_days", j.RetentionDays),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
