package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caseman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// 取り込み
	IngestService IngestServiceInterface
	Settings      SettingsReader

	// 通知インボックス
	InboxService InboxServiceInterface

	// 訪問記録
	VisitService VisitServiceInterface

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// ヘルスチェックとメトリクスはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	ingestHandler := NewIngestHandler(deps.IngestService, deps.Settings)
	inboxHandler := NewInboxHandler(deps.InboxService)
	visitHandler := NewVisitHandler(deps.VisitService)

	// --- レート制限の外のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 取り込み
		r.Route("/api/ingest", func(r chi.Router) {
			// POST /api/ingest/run - 手動取り込み（取り込み専用レート制限を追加）
			r.With(deps.RateLimiter.IngestMiddleware()).Post("/run", ingestHandler.RunIngest)
			r.Get("/status", ingestHandler.Status)
		})

		// 通知インボックス
		r.Route("/api/inbox", func(r chi.Router) {
			r.Get("/", inboxHandler.ListInbox)
			r.Post("/{id}/read", inboxHandler.MarkRead)
		})

		// 訪問記録
		r.Route("/api/visits", func(r chi.Router) {
			r.Get("/", visitHandler.ListVisits)
			r.Post("/", visitHandler.CheckIn)
			r.Post("/{id}/checkout", visitHandler.CheckOut)
		})

		// ブックマーク
		r.Post("/api/bookmarks", visitHandler.CreateBookmark)
	})

	return r
}
