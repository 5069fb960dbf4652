package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/caseman/internal/casebatch"
	"github.com/hitoshi/caseman/internal/decode"
	"github.com/hitoshi/caseman/internal/metrics"
	"github.com/hitoshi/caseman/internal/model"
	"github.com/hitoshi/caseman/internal/repository"
)

// defaultPrefetchDepth は先読みするアーカイブ数の上限のデフォルト。
// ダウンロードとデコードを重ねつつ、メモリ使用量を抑える。
const defaultPrefetchDepth = 5

// BatchSource はバッチ配信元へのアクセスインターフェース。
type BatchSource interface {
	FetchCatalog(ctx context.Context) ([]model.BatchDescriptor, error)
	FetchArchive(ctx context.Context, filename string) ([]byte, error)
}

// Matcher は取り込み後の照合パスのインターフェース。
type Matcher interface {
	RunNewDownloadPass(ctx context.Context) (bool, error)
}

// Pipeline はバッチの選別・取得・復号・合流・保存と照合パスの起動を行う。
//
// 実行はシングルフライトであり、同時に1つの取り込みだけが走る。
// 実行中の再入はIngestRunningErrorで拒否される。
type Pipeline struct {
	logger   *slog.Logger
	source   BatchSource
	decoder  *decode.RecordDecoder
	cases    repository.CaseRepository
	settings repository.SettingsRepository
	matcher  Matcher
	metrics  metrics.MetricsCollector

	prefetch int

	mu      sync.Mutex
	running bool
	now     func() time.Time
}

// NewPipeline はPipelineを生成する。
func NewPipeline(
	logger *slog.Logger,
	source BatchSource,
	decoder *decode.RecordDecoder,
	cases repository.CaseRepository,
	settings repository.SettingsRepository,
	matcher Matcher,
	mc metrics.MetricsCollector,
) *Pipeline {
	return &Pipeline{
		logger:   logger,
		source:   source,
		decoder:  decoder,
		cases:    cases,
		settings: settings,
		matcher:  matcher,
		metrics:  mc,
		prefetch: defaultPrefetchDepth,
		now:      time.Now,
	}
}

// WithPrefetchDepth はアーカイブ先読み数の上限を設定する。0以下は無視する。
func (p *Pipeline) WithPrefetchDepth(n int) *Pipeline {
	if n > 0 {
		p.prefetch = n
	}
	return p
}

// Running は取り込みが実行中かどうかを返す。
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// fetchedArchive は先読みされたアーカイブ1件。
type fetchedArchive struct {
	batch    model.BatchDescriptor
	data     []byte
	fetchErr error
}

// Run は取り込みパスを1回実行する。
//
// カタログ取得→ウォーターマークによる選別→アーカイブ取得（先読み）→
// 復号→合流→重複チェック付き挿入→ウォーターマーク前進→照合パス、の順に進む。
// 戻り値は照合パスで新規マッチが生まれたかどうか。
func (p *Pipeline) Run(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false, model.NewIngestRunningError()
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	start := p.now()

	catalog, err := p.source.FetchCatalog(ctx)
	if err != nil {
		p.metrics.RecordBatchFetchFailure("catalog")
		return false, err
	}

	watermark, err := p.settings.Watermark(ctx)
	if err != nil {
		return false, err
	}

	eligible := casebatch.FilterEligible(catalog, watermark)
	p.logger.Info("取り込み対象バッチを選別しました",
		slog.Int("catalog_size", len(catalog)),
		slog.Int("eligible", len(eligible)),
		slog.Int("last_batch_id", watermark.LastBatchID))

	inserted, deduped := 0, 0
	advanced := watermark
	if len(eligible) > 0 {
		inserted, deduped, advanced, err = p.ingestBatches(ctx, eligible, watermark)
		if err != nil {
			return false, err
		}

		if err := p.settings.AdvanceWatermark(ctx, advanced); err != nil {
			return false, err
		}
	}

	if err := p.settings.SetLastUserDownloadTime(ctx, p.now().UnixMilli()); err != nil {
		return false, err
	}

	p.metrics.RecordCasesInserted(inserted)
	p.metrics.RecordCasesDeduplicated(deduped)

	hadNewMatches, err := p.matcher.RunNewDownloadPass(ctx)
	if err != nil {
		return false, err
	}

	p.metrics.RecordIngestLatency(p.now().Sub(start))
	p.logger.Info("取り込みパスが完了しました",
		slog.Int("batches", len(eligible)),
		slog.Int("inserted", inserted),
		slog.Int("deduplicated", deduped),
		slog.Bool("had_new_matches", hadNewMatches))

	return hadNewMatches, nil
}

// ingestBatches は選別済みバッチを順に復号して保存する。
// アーカイブのダウンロードはprefetch件まで先読みされ、復号は逐次行う。
// 戻り値は挿入件数、重複スキップ件数、前進後のウォーターマーク。
func (p *Pipeline) ingestBatches(ctx context.Context, batches []model.BatchDescriptor, w model.Watermark) (int, int, model.Watermark, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefetched := make(chan fetchedArchive, p.prefetch)
	go func() {
		defer close(prefetched)
		for _, b := range batches {
			data, err := p.source.FetchArchive(fetchCtx, b.Filename)
			select {
			case prefetched <- fetchedArchive{batch: b, data: data, fetchErr: err}:
			case <-fetchCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	inserted, deduped := 0, 0
	advanced := w

	for fa := range prefetched {
		if fa.fetchErr != nil {
			p.metrics.RecordBatchFetchFailure("archive")
			return inserted, deduped, advanced, fa.fetchErr
		}
		p.metrics.RecordBatchFetchSuccess()

		batchTime := casebatch.ResolveTimestamp(fa.batch)
		ins, dup, err := p.ingestArchive(ctx, fa.batch, fa.data, batchTime)
		if err != nil {
			return inserted, deduped, advanced, err
		}
		inserted += ins
		deduped += dup

		advanced = advanced.Merge(model.Watermark{
			LastBatchID:      fa.batch.ID,
			LastDownloadTime: batchTime,
		})
	}

	return inserted, deduped, advanced, nil
}

// ingestArchive は1つのアーカイブを復号・合流して保存する。
func (p *Pipeline) ingestArchive(ctx context.Context, batch model.BatchDescriptor, archive []byte, batchTimeMillis int64) (int, int, error) {
	batchTime := time.UnixMilli(batchTimeMillis).UTC()
	inserted, deduped := 0, 0

	coalescer := NewCoalescer(func(rec *model.CaseRecord) error {
		id, err := p.cases.InsertWithDupCheck(ctx, rec)
		if err != nil {
			return model.NewPersistenceError(err.Error())
		}
		if id == 0 {
			deduped++
		} else {
			inserted++
		}
		return nil
	})

	err := decode.StreamArchiveEntries(archive, func(entry decode.ArchiveEntry) error {
		export, err := decode.ParseArchiveEntry(entry.Data)
		if err != nil {
			p.metrics.RecordDecodeFailure()
			return err
		}

		for _, key := range export.EffectiveKeys() {
			rec, err := p.decoder.Decode(key.KeyData, key.KeyInterval, batch.ID, batchTime)
			if err != nil {
				p.metrics.RecordDecodeFailure()
				return err
			}
			if err := coalescer.Push(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return inserted, deduped, err
	}

	if err := coalescer.Flush(); err != nil {
		return inserted, deduped, err
	}

	p.logger.Info("バッチを取り込みました",
		slog.Int("batch_id", batch.ID),
		slog.String("filename", batch.Filename),
		slog.Int("inserted", inserted),
		slog.Int("deduplicated", deduped))

	return inserted, deduped, nil
}
