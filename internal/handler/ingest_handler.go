package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/caseman/internal/model"
)

// IngestServiceInterface は取り込みハンドラーが必要とするサービスインターフェース。
type IngestServiceInterface interface {
	// Run は取り込みパスを1回実行する。戻り値は新規マッチが生まれたかどうか。
	// 実行中の再入はIngestRunningErrorで拒否される。
	Run(ctx context.Context) (bool, error)
	// Running は取り込みが実行中かどうかを返す。
	Running() bool
}

// SettingsReader はウォーターマークと最終ダウンロード時刻の読み取りインターフェース。
type SettingsReader interface {
	Watermark(ctx context.Context) (model.Watermark, error)
	LastUserDownloadTime(ctx context.Context) (int64, error)
}

// IngestHandler は取り込みトリガーと状態照会のHTTPハンドラー。
type IngestHandler struct {
	service  IngestServiceInterface
	settings SettingsReader
}

// NewIngestHandler はIngestHandlerを生成する。
func NewIngestHandler(service IngestServiceInterface, settings SettingsReader) *IngestHandler {
	return &IngestHandler{service: service, settings: settings}
}

// ingestRunResponse は取り込み実行のレスポンス。
type ingestRunResponse struct {
	HadNewMatches bool `json:"had_new_matches"`
}

// ingestStatusResponse は取り込み状態のレスポンス。
type ingestStatusResponse struct {
	Running              bool   `json:"running"`
	LastBatchID          int    `json:"last_batch_id"`
	LastDownloadTime     int64  `json:"last_download_time"`                // エポックミリ秒
	LastUserDownloadTime *int64 `json:"last_user_download_time,omitempty"` // エポックミリ秒。未記録ならnull
}

// RunIngest は取り込みパスを手動で実行する。
// POST /api/ingest/run
//
// 実行中の場合は409を返す。定期実行と同じパスを同期的に実行し、
// 完了後に新規マッチの有無を返す。
func (h *IngestHandler) RunIngest(w http.ResponseWriter, r *http.Request) {
	hadNewMatches, err := h.service.Run(r.Context())
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeIngestRunning {
			writeAPIErrorResponse(w, http.StatusConflict, apiErr)
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ingestRunResponse{HadNewMatches: hadNewMatches})
}

// Status は取り込みの実行状態、ウォーターマーク、最終ダウンロード時刻を返す。
// GET /api/ingest/status
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := ingestStatusResponse{Running: h.service.Running()}

	watermark, err := h.settings.Watermark(r.Context())
	if err != nil {
		slog.Error("ウォーターマークの取得に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}
	resp.LastBatchID = watermark.LastBatchID
	resp.LastDownloadTime = watermark.LastDownloadTime

	last, err := h.settings.LastUserDownloadTime(r.Context())
	if err != nil {
		slog.Error("最終ダウンロード時刻の取得に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}
	if last > 0 {
		resp.LastUserDownloadTime = &last
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
