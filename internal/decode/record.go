// Package decode はバッチ配信データの復号とパースを提供する。
//
// 配信アーカイブの各エントリはbase64エンコードされたprotobufメッセージで、
// 暗号化された鍵レコードのリストを含む。各鍵レコードはHKDF-SHA256で導出した
// 鍵によるAES-128-CBC（ゼロIV・パディングなし）で復号され、固定レイアウトの
// 平文からケースレコードが得られる。これらの形式はすべて配信元が固定しており、
// 本パッケージは仕様どおりに復号する以外の裁量を持たない。
package decode

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/hitoshi/caseman/internal/model"
	"github.com/hitoshi/caseman/internal/security"
)

// hkdfInfo は鍵導出のドメイン分離ラベル。配信元と合意された固定値。
var hkdfInfo = []byte("HKEN")

// derivedKeyLen は導出鍵の長さ（AES-128のため16バイト）。
const derivedKeyLen = 16

// plaintextMinLen は復号平文の最小長。固定レイアウト部（メタデータ前）の長さ。
const plaintextMinLen = 50

// RecordDecoder は暗号化鍵レコードをケースレコードに復号する。
type RecordDecoder struct {
	logger    *slog.Logger
	sanitizer security.NameSanitizerService
}

// NewRecordDecoder はRecordDecoderを生成する。
func NewRecordDecoder(logger *slog.Logger, sanitizer security.NameSanitizerService) *RecordDecoder {
	return &RecordDecoder{logger: logger, sanitizer: sanitizer}
}

// venueMetadata は平文末尾のbase64 JSONメタデータ。
// 飲食店等の例: {"name_zh_hk":"快樂甜品","type":"IMPORT","name_en":"Happy Dessert"}
// タクシーの例: {"type":"TAXI","taxiNo":"KB4484"}
// 未知のキーは無視する。
type venueMetadata struct {
	NameZhHK string `json:"name_zh_hk"`
	NameEn   string `json:"name_en"`
	Type     string `json:"type"`
	TaxiNo   string `json:"taxiNo"`
}

// Decode は1件の暗号化鍵レコードを復号してケースレコードを返す。
//
// keyDataはbase64エンコードされた暗号文、keyIntervalは鍵導出の入力鍵材料。
// batchIDとbatchTimeは所属バッチから引き継がれる。
// 復号・パースのいずれかで失敗した場合はCryptoError/DecodeErrorを返し、
// 他のレコードの処理には影響しない。
func (d *RecordDecoder) Decode(keyData, keyInterval []byte, batchID int, batchTime time.Time) (*model.CaseRecord, error) {
	ciphertext, err := decodeBase64(keyData)
	if err != nil {
		return nil, model.NewDecodeError(fmt.Sprintf("鍵データのbase64デコードに失敗しました: %v", err))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, model.NewDecodeError(fmt.Sprintf("暗号文長が不正です: %dバイト", len(ciphertext)))
	}

	key, err := deriveKey(keyInterval)
	if err != nil {
		return nil, model.NewCryptoError(err.Error())
	}

	plain, err := decryptCBC(key, ciphertext)
	if err != nil {
		return nil, model.NewCryptoError(err.Error())
	}

	return d.parsePlaintext(plain, batchID, batchTime)
}

// deriveKey はHKDF-SHA256（ソルトなし、固定ラベル）で16バイト鍵を導出する。
func deriveKey(keyInterval []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, keyInterval, nil, hkdfInfo)
	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("鍵導出に失敗しました: %w", err)
	}
	return key, nil
}

// decryptCBC はAES-128-CBC（ゼロIV・パディングなし）で復号する。
// 暗号文長はブロックサイズの倍数であることを配信元が保証する。
func decryptCBC(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("暗号器の初期化に失敗しました: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return plain, nil
}

// parsePlaintext は固定レイアウトの平文をケースレコードに変換する。
//
// レイアウト:
//
//	[0,8)   ランダムトークン
//	[8,16)  会場ID
//	[16,24) グループID
//	[24,37) 開始時刻（エポックミリ秒のASCII10進）
//	[37,50) 終了時刻（エポックミリ秒のASCII10進）
//	[50,)   base64エンコードされたUTF-8 JSONメタデータ
func (d *RecordDecoder) parsePlaintext(plain []byte, batchID int, batchTime time.Time) (*model.CaseRecord, error) {
	if len(plain) < plaintextMinLen {
		return nil, model.NewDecodeError(fmt.Sprintf("平文が短すぎます: %dバイト", len(plain)))
	}

	startMillis, err := strconv.ParseInt(string(plain[24:37]), 10, 64)
	if err != nil {
		return nil, model.NewDecodeError(fmt.Sprintf("開始時刻のパースに失敗しました: %v", err))
	}
	endMillis, err := strconv.ParseInt(string(plain[37:50]), 10, 64)
	if err != nil {
		return nil, model.NewDecodeError(fmt.Sprintf("終了時刻のパースに失敗しました: %v", err))
	}

	metaJSON, err := decodeBase64(plain[50:])
	if err != nil {
		return nil, model.NewDecodeError(fmt.Sprintf("メタデータのbase64デコードに失敗しました: %v", err))
	}

	var meta venueMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, model.NewDecodeError(fmt.Sprintf("メタデータJSONのパースに失敗しました: %v", err))
	}

	venueID := string(plain[8:16])
	venue := model.VenueInfo{
		NameEn:    d.sanitizer.SanitizeName(meta.NameEn),
		NameZh:    d.sanitizer.SanitizeName(meta.NameZhHK),
		LicenseNo: strings.TrimSpace(meta.TaxiNo),
		Type:      meta.Type,
		VenueID:   venueID,
	}
	d.applyNameFallback(&venue)

	return &model.CaseRecord{
		GroupID:      string(plain[16:24]),
		RandomTokens: string(plain[0:8]),
		VenueInfo:    venue,
		StartTime:    time.UnixMilli(startMillis).UTC(),
		EndTime:      time.UnixMilli(endMillis).UTC(),
		BatchID:      batchID,
		BatchTime:    batchTime,
	}, nil
}

// applyNameFallback は非タクシー会場の表示名の欠落を補完する。
// 両方空の場合は警告ログのみ出して両方空文字列のまま、
// 片方のみ空の場合はもう一方をミラーする。タクシーは表示名を持たない。
func (d *RecordDecoder) applyNameFallback(v *model.VenueInfo) {
	if v.Type == model.VenueTypeTaxi {
		return
	}
	if v.NameZh == "" {
		if v.NameEn == "" {
			d.logger.Warn("会場の英語名・中国語名がいずれも空です",
				slog.String("venue_id", v.VenueID),
				slog.String("venue_type", v.Type))
		}
		v.NameZh = v.NameEn
	} else if v.NameEn == "" {
		v.NameEn = v.NameZh
	}
}

// decodeBase64 はパディング有無や改行の揺れを許容してbase64をデコードする。
func decodeBase64(data []byte) ([]byte, error) {
	cleaned := bytes.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, data)

	s := string(cleaned)
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
