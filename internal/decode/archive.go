package decode

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/hitoshi/caseman/internal/model"
)

// ArchiveEntry は配信アーカイブの1エントリ。
type ArchiveEntry struct {
	// Name はzipエントリ名（ログ用）。
	Name string
	// Data はエントリの全バイト（base64エンコードされた鍵リスト）。
	Data []byte
}

// StreamArchiveEntries はzipアーカイブのエントリを順にyieldに渡す。
// アーカイブ全体の展開結果を一度にメモリへ積むことを避けるため、
// エントリ単位で読み出してはコールバックに渡す。
// yieldがエラーを返した時点で走査を打ち切り、そのエラーを返す。
func StreamArchiveEntries(archive []byte, yield func(ArchiveEntry) error) error {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return model.NewDecodeError(fmt.Sprintf("zipアーカイブのオープンに失敗しました: %v", err))
	}

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return model.NewDecodeError(fmt.Sprintf("zipエントリ%sのオープンに失敗しました: %v", f.Name, err))
		}

		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return model.NewDecodeError(fmt.Sprintf("zipエントリ%sの読み取りに失敗しました: %v", f.Name, err))
		}

		if err := yield(ArchiveEntry{Name: f.Name, Data: data}); err != nil {
			return err
		}
	}

	return nil
}
