// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込みパイプラインと照合サービスから利用する。
type MetricsCollector interface {
	RecordBatchFetchSuccess()
	RecordBatchFetchFailure(reason string)
	RecordDecodeFailure()
	RecordCasesInserted(count int)
	RecordCasesDeduplicated(count int)
	RecordMatches(level string, count int)
	RecordIngestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	batchFetchSuccess prometheus.Counter
	batchFetchFail    *prometheus.CounterVec
	decodeFail        prometheus.Counter
	casesInserted     prometheus.Counter
	casesDeduped      prometheus.Counter
	matches           *prometheus.CounterVec
	ingestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		batchFetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caseman_batch_fetch_success_total",
			Help: "バッチアーカイブ取得成功の合計数",
		}),
		batchFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseman_batch_fetch_fail_total",
			Help: "バッチアーカイブ取得失敗の合計数",
		}, []string{"reason"}),
		decodeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caseman_decode_fail_total",
			Help: "バッチデコード失敗の合計数",
		}),
		casesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caseman_cases_inserted_total",
			Help: "挿入されたケースレコードの合計数",
		}),
		casesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caseman_cases_deduplicated_total",
			Help: "重複によりスキップされたケースレコードの合計数",
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseman_matches_total",
			Help: "曝露レベル別の新規マッチの合計数",
		}, []string{"level"}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "caseman_ingest_latency_seconds",
			Help:    "取り込みパス全体のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.batchFetchSuccess,
		c.batchFetchFail,
		c.decodeFail,
		c.casesInserted,
		c.casesDeduped,
		c.matches,
		c.ingestLatency,
	)

	return c
}

// RecordBatchFetchSuccess はバッチ取得成功を記録する。
func (c *Collector) RecordBatchFetchSuccess() {
	c.batchFetchSuccess.Inc()
}

// RecordBatchFetchFailure はバッチ取得失敗を記録する。
func (c *Collector) RecordBatchFetchFailure(reason string) {
	c.batchFetchFail.WithLabelValues(reason).Inc()
}

// RecordDecodeFailure はデコード失敗を記録する。
func (c *Collector) RecordDecodeFailure() {
	c.decodeFail.Inc()
}

// RecordCasesInserted は挿入されたケース数を記録する。
func (c *Collector) RecordCasesInserted(count int) {
	c.casesInserted.Add(float64(count))
}

// RecordCasesDeduplicated は重複スキップされたケース数を記録する。
func (c *Collector) RecordCasesDeduplicated(count int) {
	c.casesDeduped.Add(float64(count))
}

// RecordMatches は曝露レベル別の新規マッチ数を記録する。
func (c *Collector) RecordMatches(level string, count int) {
	c.matches.WithLabelValues(level).Add(float64(count))
}

// RecordIngestLatency は取り込みパスのレイテンシを記録する。
func (c *Collector) RecordIngestLatency(duration time.Duration) {
	c.ingestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
