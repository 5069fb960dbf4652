// Package casebatch は保健当局のバッチ配信元との通信を提供する。
// バッチカタログの取得とアーカイブのダウンロード、およびウォーターマークに
// 基づくバッチの選別を含む。
package casebatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/hitoshi/caseman/internal/model"
)

const (
	// catalogPath はバッチカタログのパス。
	catalogPath = "v2/batch/LastBatch.json"
	// archivePathPrefix はアーカイブダウンロードのパスプレフィックス。
	archivePathPrefix = "batch/file/"
)

// Client はバッチ配信元のHTTPクライアント。
// 配信元への全リクエストはレートリミッタを通過する。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	baseURL     string
	limiter     *rate.Limiter
	maxBodySize int64
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF防止付きクライアントを渡す（テストでは素のクライアントで可）。
// maxBodySizeはアーカイブ1件の最大許容バイト数。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, maxBodySize int64) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		// 配信元への負荷を抑えるため毎秒2リクエスト・バースト5に制限
		limiter:     rate.NewLimiter(rate.Limit(2), 5),
		maxBodySize: maxBodySize,
	}
}

// FetchCatalog はバッチカタログを取得する。
func (c *Client) FetchCatalog(ctx context.Context) ([]model.BatchDescriptor, error) {
	body, err := c.get(ctx, catalogPath)
	if err != nil {
		return nil, err
	}

	var batches []model.BatchDescriptor
	if err := json.Unmarshal(body, &batches); err != nil {
		c.logger.Error("バッチカタログのパースに失敗しました",
			slog.String("error", err.Error()))
		return nil, model.NewDecodeError(fmt.Sprintf("バッチカタログJSONのパースに失敗しました: %v", err))
	}

	return batches, nil
}

// FetchArchive は指定バッチのzipアーカイブを取得する。
func (c *Client) FetchArchive(ctx context.Context, filename string) ([]byte, error) {
	return c.get(ctx, archivePathPrefix+url.PathEscape(filename))
}

// get は配信元のpathへGETリクエストを送り、ボディを返す。
// 失敗はすべてTransportErrorとして返す。
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("レート制限待機が中断されました: %v", err))
	}

	reqURL, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("リクエストURLの構築に失敗しました: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("HTTPリクエストの作成に失敗しました: %v", err))
	}
	req.Header.Set("User-Agent", "Caseman/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("バッチ配信元への接続に失敗しました",
			slog.String("url", reqURL),
			slog.String("error", err.Error()))
		return nil, model.NewTransportError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("バッチ配信元がエラーステータスを返しました",
			slog.String("url", reqURL),
			slog.Int("http_status", resp.StatusCode))
		return nil, model.NewTransportError(fmt.Sprintf("配信元がステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, model.NewTransportError(fmt.Sprintf("レスポンスボディの読み取りに失敗しました: %v", err))
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, model.NewTransportError(fmt.Sprintf("レスポンスが最大許容サイズ%dバイトを超えています", c.maxBodySize))
	}

	return body, nil
}
