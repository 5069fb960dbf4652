package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/caseman/internal/casebatch"
	"github.com/hitoshi/caseman/internal/config"
	"github.com/hitoshi/caseman/internal/database"
	"github.com/hitoshi/caseman/internal/decode"
	"github.com/hitoshi/caseman/internal/exposure"
	"github.com/hitoshi/caseman/internal/handler"
	"github.com/hitoshi/caseman/internal/logger"
	"github.com/hitoshi/caseman/internal/metrics"
	"github.com/hitoshi/caseman/internal/middleware"
	"github.com/hitoshi/caseman/internal/repository"
	"github.com/hitoshi/caseman/internal/security"
	"github.com/hitoshi/caseman/internal/worker/cleanup"
	"github.com/hitoshi/caseman/internal/worker/ingest"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("batch_base_url", cfg.BatchBaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと
// 取り込みスケジューラ・クリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	caseRepo := repository.NewPostgresCaseRepo(db)
	visitRepo := repository.NewPostgresVisitRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスとバッチクライアントの初期化
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.BatchBaseURL); err != nil {
		return fmt.Errorf("invalid batch base URL: %w", err)
	}
	safeClient := ssrfGuard.NewSafeClient(cfg.FetchTimeout)
	batchClient := casebatch.NewClient(safeClient, slog.Default(), cfg.BatchBaseURL, cfg.FetchMaxSize)

	// 5. デコーダーと照合サービスの初期化
	sanitizer := security.NewNameSanitizer()
	decoder := decode.NewRecordDecoder(slog.Default(), sanitizer)
	matcher := exposure.NewService(
		slog.Default(), caseRepo, visitRepo, notificationRepo, settingsRepo,
	).WithMetrics(collector).WithThresholdFallback(repository.Thresholds{
		CheckExposureDays:        cfg.CheckExposureDays,
		DirectOverlapThresholdMs: cfg.DirectOverlapThresholdMs,
		IndirectVehicleDays:      cfg.IndirectVehicleDays,
	})

	// 6. 取り込みパイプラインの初期化
	pipeline := ingest.NewPipeline(
		slog.Default(), batchClient, decoder, caseRepo, settingsRepo, matcher, collector,
	).WithPrefetchDepth(cfg.BatchPrefetch)

	// 7. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート制限はreq/min単位なのでreq/secに変換する
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitIngest > 0 {
		rateLimiterCfg.IngestRate = rate.Limit(float64(cfg.RateLimitIngest) / 60.0)
		rateLimiterCfg.IngestBurst = cfg.RateLimitIngest
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,

		IngestService: pipeline,
		Settings:      settingsRepo,

		InboxService: notificationRepo,

		VisitService: handler.NewVisitServiceAdapter(visitRepo, matcher),

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 8. バックグラウンドジョブの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := ingest.NewScheduler(pipeline, slog.Default())
	go scheduler.Start(ctx, cfg.IngestInterval)

	cleanupJob := cleanup.NewCleanupJob(caseRepo, slog.Default())
	if cfg.CaseRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.CaseRetentionDays
	}
	go cleanupJob.Start(ctx)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
