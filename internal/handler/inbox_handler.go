package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caseman/internal/model"
)

// defaultInboxPerPage は通知一覧の1回の取得件数（デフォルト）。
const defaultInboxPerPage = 50

// InboxServiceInterface は通知インボックスハンドラーが必要とするサービスインターフェース。
type InboxServiceInterface interface {
	// List は通知エントリの一覧をlast_update降順で返す。
	List(ctx context.Context, limit int) ([]*model.NotificationEntry, error)
	// UnreadCount は未読エントリ数を返す。
	UnreadCount(ctx context.Context) (int, error)
	// MarkRead は指定エントリを既読にする。該当なしの場合はfalseを返す。
	MarkRead(ctx context.Context, entryID string) (bool, error)
}

// InboxHandler は通知インボックスのHTTPハンドラー。
type InboxHandler struct {
	service InboxServiceInterface
}

// NewInboxHandler はInboxHandlerを生成する。
func NewInboxHandler(service InboxServiceInterface) *InboxHandler {
	return &InboxHandler{service: service}
}

// --- レスポンス型 ---

// venueResponse は会場情報のレスポンス。
type venueResponse struct {
	VenueID   string `json:"venue_id"`
	Type      string `json:"type"`
	NameEn    string `json:"name_en,omitempty"`
	NameZhHK  string `json:"name_zh_hk,omitempty"`
	LicenseNo string `json:"license_no,omitempty"`
}

// inboxEntryResponse は通知エントリのレスポンス。
type inboxEntryResponse struct {
	ID         string        `json:"id"`
	VisitID    string        `json:"visit_id"`
	Venue      venueResponse `json:"venue"`
	Date       time.Time     `json:"date"`
	Bookmark   bool          `json:"bookmark"`
	Exposure   string        `json:"exposure"`
	TotalCount int           `json:"total_count"`
	Read       bool          `json:"read"`
	LastUpdate time.Time     `json:"last_update"`
}

// inboxListResponse は通知一覧のレスポンス。
type inboxListResponse struct {
	Entries     []inboxEntryResponse `json:"entries"`
	UnreadCount int                  `json:"unread_count"`
}

// ListInbox は通知インボックスの一覧を取得する。
// GET /api/inbox?limit=50
func (h *InboxHandler) ListInbox(w http.ResponseWriter, r *http.Request) {
	limit := defaultInboxPerPage
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは1以上の整数で指定してください"))
			return
		}
		limit = n
	}

	entries, err := h.service.List(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	unread, err := h.service.UnreadCount(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := inboxListResponse{
		Entries:     make([]inboxEntryResponse, len(entries)),
		UnreadCount: unread,
	}
	for i, e := range entries {
		resp.Entries[i] = toInboxEntryResponse(e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// MarkRead は通知エントリを既読にする。
// POST /api/inbox/{id}/read
//
// 冪等: 既読済みのエントリに対しても成功を返す。
func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")

	found, err := h.service.MarkRead(r.Context(), entryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !found {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewEntryNotFoundError(entryID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toInboxEntryResponse はドメインの通知エントリをレスポンス型に変換する。
func toInboxEntryResponse(e *model.NotificationEntry) inboxEntryResponse {
	return inboxEntryResponse{
		ID:         e.ID,
		VisitID:    e.VisitID,
		Venue:      toVenueResponse(e.VenueInfo),
		Date:       e.Date,
		Bookmark:   e.Bookmark,
		Exposure:   string(e.Exposure),
		TotalCount: e.TotalCount,
		Read:       e.Read,
		LastUpdate: e.LastUpdate,
	}
}

// toVenueResponse はドメインの会場情報をレスポンス型に変換する。
func toVenueResponse(v model.VenueInfo) venueResponse {
	return venueResponse{
		VenueID:   v.VenueID,
		Type:      v.Type,
		NameEn:    v.NameEn,
		NameZhHK:  v.NameZh,
		LicenseNo: v.LicenseNo,
	}
}
