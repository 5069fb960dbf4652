package decode

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// buildKeyExport はテスト用のExposureKeyExportワイヤバイト列を組み立てる。
func buildKeyExport(batchSize int, keys []EncryptedKey) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldBatchSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(batchSize))

	for _, k := range keys {
		var sub []byte
		sub = protowire.AppendTag(sub, fieldKeyData, protowire.BytesType)
		sub = protowire.AppendBytes(sub, k.KeyData)
		sub = protowire.AppendTag(sub, fieldKeyInterval, protowire.BytesType)
		sub = protowire.AppendBytes(sub, k.KeyInterval)

		b = protowire.AppendTag(b, fieldKeys, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b
}

// TestParseKeyExport は鍵リストメッセージのパースを検証する。
func TestParseKeyExport(t *testing.T) {
	keys := []EncryptedKey{
		{KeyData: []byte("data-one"), KeyInterval: []byte("269015")},
		{KeyData: []byte("data-two"), KeyInterval: []byte("269016")},
	}
	data := buildKeyExport(2, keys)

	export, err := ParseKeyExport(data)
	if err != nil {
		t.Fatalf("ParseKeyExport() returned error: %v", err)
	}

	if export.BatchSize != 2 {
		t.Errorf("BatchSize = %d, want 2", export.BatchSize)
	}
	if len(export.Keys) != 2 {
		t.Fatalf("len(Keys) = %d, want 2", len(export.Keys))
	}
	for i, want := range keys {
		if !bytes.Equal(export.Keys[i].KeyData, want.KeyData) {
			t.Errorf("Keys[%d].KeyData = %q, want %q", i, export.Keys[i].KeyData, want.KeyData)
		}
		if !bytes.Equal(export.Keys[i].KeyInterval, want.KeyInterval) {
			t.Errorf("Keys[%d].KeyInterval = %q, want %q", i, export.Keys[i].KeyInterval, want.KeyInterval)
		}
	}
}

// TestParseKeyExport_Empty は空メッセージのパースを検証する。
func TestParseKeyExport_Empty(t *testing.T) {
	export, err := ParseKeyExport(nil)
	if err != nil {
		t.Fatalf("ParseKeyExport(nil) returned error: %v", err)
	}
	if export.BatchSize != 0 || len(export.Keys) != 0 {
		t.Errorf("空メッセージは空のExposureKeyExportになるべきです: %+v", export)
	}
}

// TestParseKeyExport_BatchSizeExceedsKeys はbatch_sizeが鍵数を超える場合の拒否を検証する。
func TestParseKeyExport_BatchSizeExceedsKeys(t *testing.T) {
	data := buildKeyExport(3, []EncryptedKey{
		{KeyData: []byte("data-one"), KeyInterval: []byte("269015")},
	})

	_, err := ParseKeyExport(data)
	if err == nil {
		t.Fatal("鍵数を超えるbatch_sizeに対してエラーが返るべきです")
	}
}

// TestParseKeyExport_UnknownField は未知フィールドをスキップすることを検証する。
func TestParseKeyExport_UnknownField(t *testing.T) {
	data := buildKeyExport(1, []EncryptedKey{
		{KeyData: []byte("data-one"), KeyInterval: []byte("269015")},
	})
	// 未知のフィールド番号99を付加
	data = protowire.AppendTag(data, 99, protowire.VarintType)
	data = protowire.AppendVarint(data, 12345)

	export, err := ParseKeyExport(data)
	if err != nil {
		t.Fatalf("ParseKeyExport() returned error: %v", err)
	}
	if len(export.Keys) != 1 {
		t.Errorf("len(Keys) = %d, want 1", len(export.Keys))
	}
}

// TestParseKeyExport_Malformed は壊れたワイヤバイト列の拒否を検証する。
func TestParseKeyExport_Malformed(t *testing.T) {
	// 長さプレフィックスが残りバイト数を超える
	var data []byte
	data = protowire.AppendTag(data, fieldKeys, protowire.BytesType)
	data = protowire.AppendVarint(data, 1000)
	data = append(data, 0x01)

	_, err := ParseKeyExport(data)
	if err == nil {
		t.Fatal("壊れたワイヤバイト列に対してエラーが返るべきです")
	}
}

// TestEffectiveKeys はbatch_sizeによる鍵リストの切り詰めを検証する。
func TestEffectiveKeys(t *testing.T) {
	export := &ExposureKeyExport{
		BatchSize: 1,
		Keys: []EncryptedKey{
			{KeyData: []byte("one")},
			{KeyData: []byte("two")},
		},
	}

	got := export.EffectiveKeys()
	if len(got) != 1 {
		t.Fatalf("len(EffectiveKeys()) = %d, want 1", len(got))
	}
	if !bytes.Equal(got[0].KeyData, []byte("one")) {
		t.Errorf("EffectiveKeys()[0].KeyData = %q, want %q", got[0].KeyData, "one")
	}
}
