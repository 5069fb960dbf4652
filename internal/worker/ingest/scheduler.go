package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Runner は取り込みパスの実行インターフェース。
type Runner interface {
	Run(ctx context.Context) (bool, error)
}

// Scheduler は取り込みパスを一定間隔で実行する。
// パイプライン自体がシングルフライトのため、手動実行と重なった場合は
// 実行中エラーになるが、次回のティックで再試行される。
type Scheduler struct {
	runner Runner
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, logger: logger}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce は取り込みパスを1回実行し、結果をログに残す。
// 失敗は次回ティックでの再実行に委ねる（本体は再試行しない）。
func (s *Scheduler) runOnce(ctx context.Context) {
	hadNewMatches, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("定期取り込みの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("定期取り込みが完了しました",
		slog.Bool("had_new_matches", hadNewMatches),
	)
}
