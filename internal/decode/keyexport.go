package decode

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hitoshi/caseman/internal/model"
)

// ExposureKeyExport は配信アーカイブの1エントリに含まれる鍵リストメッセージ。
// ワイヤ形式はproto/exposure.protoに記載。コード生成に頼らず
// protowireで直接パースする（フィールドは2つだけで変化しない）。
type ExposureKeyExport struct {
	// BatchSize は配信元が申告する鍵レコード数。
	BatchSize int
	// Keys は暗号化鍵レコードのリスト。
	Keys []EncryptedKey
}

// EncryptedKey は暗号化された鍵レコード1件。
type EncryptedKey struct {
	// KeyData はbase64エンコードされた暗号文。
	KeyData []byte
	// KeyInterval は鍵導出の入力鍵材料。
	KeyInterval []byte
}

// ExposureKeyExportのフィールド番号。
const (
	fieldBatchSize = 1
	fieldKeys      = 2
)

// EncryptedKeyのフィールド番号。
const (
	fieldKeyData     = 1
	fieldKeyInterval = 2
)

// ParseArchiveEntry はアーカイブエントリ（base64エンコードされたワイヤ形式）を
// パースする。空のエントリは空の鍵リストとして扱う。
func ParseArchiveEntry(entry []byte) (*ExposureKeyExport, error) {
	decoded, err := decodeBase64(entry)
	if err != nil {
		return nil, model.NewDecodeError(fmt.Sprintf("アーカイブエントリのbase64デコードに失敗しました: %v", err))
	}
	if len(decoded) == 0 {
		return &ExposureKeyExport{}, nil
	}
	return ParseKeyExport(decoded)
}

// ParseKeyExport はprotobufワイヤ形式のExposureKeyExportをパースする。
// 形式違反はすべてDecodeErrorとして返す。
func ParseKeyExport(data []byte) (*ExposureKeyExport, error) {
	export := &ExposureKeyExport{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, model.NewDecodeError(fmt.Sprintf("鍵リストのタグのパースに失敗しました: %v", protowire.ParseError(n)))
		}
		data = data[n:]

		switch {
		case num == fieldBatchSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, model.NewDecodeError(fmt.Sprintf("batch_sizeのパースに失敗しました: %v", protowire.ParseError(n)))
			}
			export.BatchSize = int(v)
			data = data[n:]

		case num == fieldKeys && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, model.NewDecodeError(fmt.Sprintf("鍵レコードのパースに失敗しました: %v", protowire.ParseError(n)))
			}
			key, err := parseEncryptedKey(v)
			if err != nil {
				return nil, err
			}
			export.Keys = append(export.Keys, key)
			data = data[n:]

		default:
			// 未知フィールドはスキップ（前方互換）
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, model.NewDecodeError(fmt.Sprintf("鍵リストの未知フィールドのスキップに失敗しました: %v", protowire.ParseError(n)))
			}
			data = data[n:]
		}
	}

	if export.BatchSize > len(export.Keys) {
		return nil, model.NewDecodeError(fmt.Sprintf("batch_size=%dに対して鍵レコードが%d件しかありません", export.BatchSize, len(export.Keys)))
	}

	return export, nil
}

// parseEncryptedKey はEncryptedKeyサブメッセージをパースする。
func parseEncryptedKey(data []byte) (EncryptedKey, error) {
	var key EncryptedKey

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return key, model.NewDecodeError(fmt.Sprintf("鍵レコードのタグのパースに失敗しました: %v", protowire.ParseError(n)))
		}
		data = data[n:]

		switch {
		case num == fieldKeyData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return key, model.NewDecodeError(fmt.Sprintf("key_dataのパースに失敗しました: %v", protowire.ParseError(n)))
			}
			key.KeyData = append([]byte(nil), v...)
			data = data[n:]

		case num == fieldKeyInterval && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return key, model.NewDecodeError(fmt.Sprintf("key_intervalのパースに失敗しました: %v", protowire.ParseError(n)))
			}
			key.KeyInterval = append([]byte(nil), v...)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return key, model.NewDecodeError(fmt.Sprintf("鍵レコードの未知フィールドのスキップに失敗しました: %v", protowire.ParseError(n)))
			}
			data = data[n:]
		}
	}

	return key, nil
}

// EffectiveKeys は申告されたbatch_size分の鍵レコードを返す。
// batch_sizeが鍵数より少ない場合は先頭からbatch_size件のみを対象とする。
func (e *ExposureKeyExport) EffectiveKeys() []EncryptedKey {
	if e.BatchSize < len(e.Keys) {
		return e.Keys[:e.BatchSize]
	}
	return e.Keys
}
