package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caseman/internal/model"
)

// defaultVisitsPerPage は訪問記録一覧の1回の取得件数（デフォルト）。
const defaultVisitsPerPage = 100

// VisitParams はチェックイン・ブックマーク作成の入力パラメータ。
type VisitParams struct {
	VenueID   string
	VenueType string
	GroupID   string
	NameEn    string
	NameZhHK  string
	LicenseNo string
	StartTime time.Time
}

// VisitServiceInterface は訪問記録ハンドラーが必要とするサービスインターフェース。
type VisitServiceInterface interface {
	// CheckIn は訪問記録（チェックイン）を作成する。
	CheckIn(ctx context.Context, params VisitParams) (*model.VisitRecord, error)
	// CheckOut は滞在中の訪問記録に終了時刻を設定する。
	CheckOut(ctx context.Context, visitID string, endTime time.Time) error
	// CreateBookmark はブックマークを作成し、既存ケースとの照合を実行する。
	// 戻り値は作成された記録と、新規マッチが生まれたかどうか。
	CreateBookmark(ctx context.Context, params VisitParams) (*model.VisitRecord, bool, error)
	// List は訪問記録の一覧を開始時刻降順で返す。
	List(ctx context.Context, limit int) ([]*model.VisitRecord, error)
}

// VisitHandler は訪問記録（チェックイン・ブックマーク）のHTTPハンドラー。
type VisitHandler struct {
	service VisitServiceInterface
}

// NewVisitHandler はVisitHandlerを生成する。
func NewVisitHandler(service VisitServiceInterface) *VisitHandler {
	return &VisitHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// visitRequest はチェックイン・ブックマーク作成リクエストのボディ。
type visitRequest struct {
	VenueID   string     `json:"venue_id"`
	Type      string     `json:"type"`
	GroupID   string     `json:"group_id,omitempty"`
	NameEn    string     `json:"name_en,omitempty"`
	NameZhHK  string     `json:"name_zh_hk,omitempty"`
	LicenseNo string     `json:"license_no,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"` // 省略時は現在時刻
}

// checkOutRequest はチェックアウトリクエストのボディ。
type checkOutRequest struct {
	EndTime *time.Time `json:"end_time,omitempty"` // 省略時は現在時刻
}

// visitResponse は訪問記録のレスポンス。
type visitResponse struct {
	ID        string        `json:"id"`
	GroupID   string        `json:"group_id,omitempty"`
	Venue     venueResponse `json:"venue"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Bookmark  bool          `json:"bookmark"`
	Exposure  string        `json:"exposure"`
}

// bookmarkResponse はブックマーク作成のレスポンス。
// 作成時点で既存ケースとの照合が走るため、その結果を含む。
type bookmarkResponse struct {
	visitResponse
	HadNewMatches bool `json:"had_new_matches"`
}

// visitListResponse は訪問記録一覧のレスポンス。
type visitListResponse struct {
	Visits []visitResponse `json:"visits"`
}

// CheckIn は訪問記録（チェックイン）を作成する。
// POST /api/visits
func (h *VisitHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	params, ok := decodeVisitParams(w, r)
	if !ok {
		return
	}

	visit, err := h.service.CheckIn(r.Context(), params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toVisitResponse(visit))
}

// CheckOut は滞在中の訪問記録に終了時刻を設定する。
// POST /api/visits/{id}/checkout
func (h *VisitHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "id")

	var req checkOutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
			return
		}
	}

	endTime := time.Now()
	if req.EndTime != nil {
		endTime = *req.EndTime
	}

	if err := h.service.CheckOut(r.Context(), visitID, endTime); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateBookmark はブックマークを作成し、既存ケースとの照合を実行する。
// POST /api/bookmarks
func (h *VisitHandler) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	params, ok := decodeVisitParams(w, r)
	if !ok {
		return
	}

	visit, hadNewMatches, err := h.service.CreateBookmark(r.Context(), params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bookmarkResponse{
		visitResponse: toVisitResponse(visit),
		HadNewMatches: hadNewMatches,
	})
}

// ListVisits は訪問記録の一覧を取得する。
// GET /api/visits?limit=100
func (h *VisitHandler) ListVisits(w http.ResponseWriter, r *http.Request) {
	limit := defaultVisitsPerPage
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは1以上の整数で指定してください"))
			return
		}
		limit = n
	}

	visits, err := h.service.List(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := visitListResponse{Visits: make([]visitResponse, len(visits))}
	for i, v := range visits {
		resp.Visits[i] = toVisitResponse(v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// decodeVisitParams はリクエストボディを検証してVisitParamsに変換する。
// 検証エラー時はレスポンスを書き込み、falseを返す。
func decodeVisitParams(w http.ResponseWriter, r *http.Request) (VisitParams, bool) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return VisitParams{}, false
	}

	if strings.TrimSpace(req.VenueID) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("venue_idは必須です"))
		return VisitParams{}, false
	}
	if strings.TrimSpace(req.Type) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("typeは必須です"))
		return VisitParams{}, false
	}

	startTime := time.Now()
	if req.StartTime != nil {
		startTime = *req.StartTime
	}

	return VisitParams{
		VenueID:   strings.TrimSpace(req.VenueID),
		VenueType: strings.TrimSpace(req.Type),
		GroupID:   strings.TrimSpace(req.GroupID),
		NameEn:    req.NameEn,
		NameZhHK:  req.NameZhHK,
		LicenseNo: strings.TrimSpace(req.LicenseNo),
		StartTime: startTime,
	}, true
}

// toVisitResponse はドメインの訪問記録をレスポンス型に変換する。
func toVisitResponse(v *model.VisitRecord) visitResponse {
	return visitResponse{
		ID:        v.ID,
		GroupID:   v.GroupID,
		Venue:     toVenueResponse(v.VenueInfo),
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		Bookmark:  v.Bookmark,
		Exposure:  string(v.Exposure),
	}
}
