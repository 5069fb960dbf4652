// Package ingest はバッチ取り込みのバックグラウンド処理を提供する。
// 取り込みパイプライン、連続重複の合流、定期実行スケジューラを含む。
package ingest

import (
	"github.com/hitoshi/caseman/internal/model"
)

// Coalescer はデコード済みケースレコードの連続重複をストリーミングで合流する。
//
// 配信元は端末のブロードキャスト間隔ごとにランダムトークンをローテーションする
// ため、1つの実訪問ウィンドウが多数のほぼ同一レコードとして届く。保留中の
// レコードを最大1件だけ保持し、(venueId, startTime, endTime) が一致する後続
// レコードのトークンをカンマ区切りで追記する。一致しないレコードが来た時点で
// 保留中を確定し入れ替える。
type Coalescer struct {
	pending *model.CaseRecord
	emit    func(*model.CaseRecord) error
}

// NewCoalescer はCoalescerを生成する。確定したレコードはemitに渡される。
func NewCoalescer(emit func(*model.CaseRecord) error) *Coalescer {
	return &Coalescer{emit: emit}
}

// Push はデコード済みレコードを1件投入する。
// 保留中レコードと合流できる場合はトークンのみ追記し、emitは呼ばれない。
func (c *Coalescer) Push(rec *model.CaseRecord) error {
	if c.pending == nil {
		c.pending = rec
		return nil
	}

	if c.pending.VenueInfo.VenueID == rec.VenueInfo.VenueID &&
		c.pending.StartTime.Equal(rec.StartTime) &&
		c.pending.EndTime.Equal(rec.EndTime) {
		c.pending.RandomTokens += "," + rec.RandomTokens
		return nil
	}

	out := c.pending
	c.pending = rec
	return c.emit(out)
}

// Flush はストリーム終端で保留中のレコードを確定する。
func (c *Coalescer) Flush() error {
	if c.pending == nil {
		return nil
	}
	out := c.pending
	c.pending = nil
	return c.emit(out)
}
