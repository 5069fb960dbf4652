package casebatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/caseman/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestFetchCatalog はバッチカタログの取得とパースを検証する。
func TestFetchCatalog(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/batch/LastBatch.json" {
			t.Errorf("リクエストパス = %q, want %q", r.URL.Path, "/v2/batch/LastBatch.json")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "filename": "batch-1614556800000.zip", "batchSize": 100, "updatedAt": 1614556800000},
			{"id": 2, "filename": "batch-1614643200000.zip", "batchSize": 50, "updatedAt": 1614643200000}
		]`))
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), testLogger(), ts.URL, 1024*1024)
	batches, err := c.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog() returned error: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("バッチ数 = %d, want 2", len(batches))
	}
	if batches[0].ID != 1 || batches[0].Filename != "batch-1614556800000.zip" || batches[0].BatchSize != 100 {
		t.Errorf("batches[0] = %+v", batches[0])
	}
	if batches[1].UpdatedAt != 1614643200000 {
		t.Errorf("batches[1].UpdatedAt = %d, want 1614643200000", batches[1].UpdatedAt)
	}
}

// TestFetchCatalog_ServerError は配信元エラー時にTransportErrorが返ることを検証する。
func TestFetchCatalog_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), testLogger(), ts.URL, 1024*1024)
	_, err := c.FetchCatalog(context.Background())
	if err == nil {
		t.Fatal("サーバーエラーに対してエラーが返るべきです")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("エラー型が*model.APIErrorではありません: %T", err)
	}
	if apiErr.Code != model.ErrCodeTransport {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeTransport)
	}
}

// TestFetchCatalog_MalformedJSON はカタログJSONの形式違反がDecodeErrorになることを検証する。
func TestFetchCatalog_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), testLogger(), ts.URL, 1024*1024)
	_, err := c.FetchCatalog(context.Background())
	if err == nil {
		t.Fatal("形式違反のJSONに対してエラーが返るべきです")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("エラー型が*model.APIErrorではありません: %T", err)
	}
	if apiErr.Code != model.ErrCodeDecode {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeDecode)
	}
}

// TestFetchArchive はアーカイブのダウンロードを検証する。
func TestFetchArchive(t *testing.T) {
	want := []byte("zip-bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch/file/batch-1614556800000.zip" {
			t.Errorf("リクエストパス = %q", r.URL.Path)
		}
		w.Write(want)
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), testLogger(), ts.URL, 1024*1024)
	got, err := c.FetchArchive(context.Background(), "batch-1614556800000.zip")
	if err != nil {
		t.Fatalf("FetchArchive() returned error: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("FetchArchive() = %q, want %q", got, want)
	}
}

// TestFetchArchive_SizeLimit は最大許容サイズ超過の拒否を検証する。
func TestFetchArchive_SizeLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), testLogger(), ts.URL, 50)
	_, err := c.FetchArchive(context.Background(), "big.zip")
	if err == nil {
		t.Fatal("サイズ超過に対してエラーが返るべきです")
	}
}
