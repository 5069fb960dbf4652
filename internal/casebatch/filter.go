package casebatch

import (
	"strconv"
	"strings"

	"github.com/hitoshi/caseman/internal/model"
)

// FilterEligible はウォーターマークに基づいて取り込み対象のバッチを選別する。
// バッチはサイズが正で、かつ「IDがウォーターマークより新しい」または
// 「ファイル名埋め込みタイムスタンプ（なければupdatedAt）が
// 最終ダウンロード時刻より新しい」場合に対象となる。
func FilterEligible(batches []model.BatchDescriptor, w model.Watermark) []model.BatchDescriptor {
	var eligible []model.BatchDescriptor
	for _, b := range batches {
		if b.BatchSize <= 0 {
			continue
		}
		if b.ID > w.LastBatchID || resolveTimestamp(b) > w.LastDownloadTime {
			eligible = append(eligible, b)
		}
	}
	return eligible
}

// ResolveTimestamp はバッチの解決済みタイムスタンプ（エポックミリ秒）を返す。
// ファイル名に埋め込まれたタイムスタンプを優先し、なければupdatedAtを使う。
// 取り込まれたケースレコードのbatch_timeにもこの値が使われる。
func ResolveTimestamp(b model.BatchDescriptor) int64 {
	return resolveTimestamp(b)
}

func resolveTimestamp(b model.BatchDescriptor) int64 {
	if ts, ok := timestampFromFilename(b.Filename); ok {
		return ts
	}
	return b.UpdatedAt
}

// timestampFromFilename はファイル名から埋め込みタイムスタンプを抽出する。
// 対象は最初の'-'と最初の'.'に挟まれた部分文字列で、整数としてパースする。
// 形式に合致しない場合は第2戻り値がfalseになる。
func timestampFromFilename(filename string) (int64, bool) {
	idx1 := strings.IndexByte(filename, '-')
	idx2 := strings.IndexByte(filename, '.')
	if idx1 == -1 || idx2 == -1 || idx1+1 >= idx2 {
		return 0, false
	}

	ts, err := strconv.ParseInt(filename[idx1+1:idx2], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
