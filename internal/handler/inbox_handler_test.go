package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caseman/internal/model"
)

// mockInboxService はInboxServiceInterfaceのテスト用モック。
type mockInboxService struct {
	entries      []*model.NotificationEntry
	unread       int
	markReadFunc func(ctx context.Context, entryID string) (bool, error)
	gotLimit     int
}

func (m *mockInboxService) List(ctx context.Context, limit int) ([]*model.NotificationEntry, error) {
	m.gotLimit = limit
	return m.entries, nil
}

func (m *mockInboxService) UnreadCount(ctx context.Context) (int, error) {
	return m.unread, nil
}

func (m *mockInboxService) MarkRead(ctx context.Context, entryID string) (bool, error) {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, entryID)
	}
	return true, nil
}

func sampleEntry() *model.NotificationEntry {
	return &model.NotificationEntry{
		ID:      "entry-1",
		VisitID: "visit-1",
		VenueInfo: model.VenueInfo{
			NameEn:  "Happy Dessert",
			NameZh:  "快樂甜品",
			Type:    "RESTAURANT",
			VenueID: "VENUE001",
		},
		Date:       time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC),
		Exposure:   model.ExposureDirect,
		TotalCount: 3,
		LastUpdate: time.Date(2021, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestInboxHandler_ListInbox(t *testing.T) {
	mock := &mockInboxService{
		entries: []*model.NotificationEntry{sampleEntry()},
		unread:  1,
	}
	h := NewInboxHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/inbox", nil)
	rec := httptest.NewRecorder()
	h.ListInbox(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want 200", rec.Code)
	}
	if mock.gotLimit != defaultInboxPerPage {
		t.Errorf("limit = %d, want %d", mock.gotLimit, defaultInboxPerPage)
	}

	var resp inboxListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("エントリ数 = %d, want 1", len(resp.Entries))
	}
	if resp.UnreadCount != 1 {
		t.Errorf("unread_count = %d, want 1", resp.UnreadCount)
	}

	entry := resp.Entries[0]
	if entry.ID != "entry-1" {
		t.Errorf("id = %q, want entry-1", entry.ID)
	}
	if entry.Exposure != "D" {
		t.Errorf("exposure = %q, want D", entry.Exposure)
	}
	if entry.TotalCount != 3 {
		t.Errorf("total_count = %d, want 3", entry.TotalCount)
	}
	if entry.Venue.NameZhHK != "快樂甜品" {
		t.Errorf("venue.name_zh_hk = %q, want 快樂甜品", entry.Venue.NameZhHK)
	}
}

func TestInboxHandler_ListInbox_CustomLimit(t *testing.T) {
	mock := &mockInboxService{}
	h := NewInboxHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/inbox?limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListInbox(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want 200", rec.Code)
	}
	if mock.gotLimit != 10 {
		t.Errorf("limit = %d, want 10", mock.gotLimit)
	}
}

func TestInboxHandler_ListInbox_InvalidLimit(t *testing.T) {
	h := NewInboxHandler(&mockInboxService{})

	req := httptest.NewRequest(http.MethodGet, "/api/inbox?limit=abc", nil)
	rec := httptest.NewRecorder()
	h.ListInbox(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ステータスコード = %d, want 400", rec.Code)
	}
}

func TestInboxHandler_MarkRead_Success(t *testing.T) {
	h := NewInboxHandler(&mockInboxService{})

	r := chi.NewRouter()
	r.Post("/api/inbox/{id}/read", h.MarkRead)

	req := httptest.NewRequest(http.MethodPost, "/api/inbox/entry-1/read", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("ステータスコード = %d, want 204", rec.Code)
	}
}

func TestInboxHandler_MarkRead_NotFound(t *testing.T) {
	h := NewInboxHandler(&mockInboxService{
		markReadFunc: func(ctx context.Context, entryID string) (bool, error) {
			return false, nil
		},
	})

	r := chi.NewRouter()
	r.Post("/api/inbox/{id}/read", h.MarkRead)

	req := httptest.NewRequest(http.MethodPost, "/api/inbox/missing/read", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("ステータスコード = %d, want 404", rec.Code)
	}

	var body apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body.Code != model.ErrCodeEntryNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeEntryNotFound)
	}
}
