package model

import (
	"errors"
	"strings"
	"testing"
)

func TestWatermark_Merge(t *testing.T) {
	tests := []struct {
		name  string
		base  Watermark
		other Watermark
		want  Watermark
	}{
		{
			name:  "両方前進",
			base:  Watermark{LastBatchID: 1, LastDownloadTime: 100},
			other: Watermark{LastBatchID: 2, LastDownloadTime: 200},
			want:  Watermark{LastBatchID: 2, LastDownloadTime: 200},
		},
		{
			name:  "後退しない",
			base:  Watermark{LastBatchID: 5, LastDownloadTime: 500},
			other: Watermark{LastBatchID: 2, LastDownloadTime: 200},
			want:  Watermark{LastBatchID: 5, LastDownloadTime: 500},
		},
		{
			name:  "フィールドごとに独立してmax",
			base:  Watermark{LastBatchID: 5, LastDownloadTime: 100},
			other: Watermark{LastBatchID: 2, LastDownloadTime: 300},
			want:  Watermark{LastBatchID: 5, LastDownloadTime: 300},
		},
		{
			name:  "ゼロ値との合流",
			base:  Watermark{},
			other: Watermark{LastBatchID: 1, LastDownloadTime: 50},
			want:  Watermark{LastBatchID: 1, LastDownloadTime: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.base.Merge(tt.other)
			if got != tt.want {
				t.Errorf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCaseRecord_TokenCount(t *testing.T) {
	tests := []struct {
		tokens string
		want   int
	}{
		{"", 0},
		{"AAAAAAAA", 1},
		{"AAAAAAAA,BBBBBBBB", 2},
		{"AAAAAAAA,BBBBBBBB,CCCCCCCC", 3},
	}

	for _, tt := range tests {
		c := &CaseRecord{RandomTokens: tt.tokens}
		if got := c.TokenCount(); got != tt.want {
			t.Errorf("TokenCount(%q) = %d, want %d", tt.tokens, got, tt.want)
		}
	}
}

func TestExposureLevel_Escalate(t *testing.T) {
	tests := []struct {
		name  string
		base  ExposureLevel
		other ExposureLevel
		want  ExposureLevel
	}{
		{"なしから間接", ExposureNone, ExposureIndirect, ExposureIndirect},
		{"間接から直接", ExposureIndirect, ExposureDirect, ExposureDirect},
		{"直接は降格しない", ExposureDirect, ExposureIndirect, ExposureDirect},
		{"直接は維持", ExposureDirect, ExposureNone, ExposureDirect},
		{"間接は維持", ExposureIndirect, ExposureNone, ExposureIndirect},
		{"両方なし", ExposureNone, ExposureNone, ExposureNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.base.Escalate(tt.other); got != tt.want {
				t.Errorf("Escalate(%q, %q) = %q, want %q", tt.base, tt.other, got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewVisitNotFoundError("visit-1")

	if !strings.Contains(err.Error(), ErrCodeVisitNotFound) {
		t.Errorf("Error() にエラーコードが含まれていない: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "visit-1") {
		t.Errorf("Error() に対象IDが含まれていない: %s", err.Error())
	}
}

func TestAPIError_ErrorsAs(t *testing.T) {
	var err error = NewIngestRunningError()

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As で *APIError に変換できるべき")
	}
	if apiErr.Code != ErrCodeIngestRunning {
		t.Errorf("Code = %q, want %q", apiErr.Code, ErrCodeIngestRunning)
	}
}
