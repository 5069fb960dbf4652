package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSetup_OutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf)

	logger.Info("テストメッセージ", "key", "value")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログ出力がJSONとしてパースできない: %v", err)
	}

	if entry["msg"] != "テストメッセージ" {
		t.Errorf("msg = %v, want テストメッセージ", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestSetup_DebugIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf)

	logger.Debug("デバッグメッセージ")

	if buf.Len() != 0 {
		t.Errorf("DEBUGレベルは出力されないべき: %s", buf.String())
	}
}
