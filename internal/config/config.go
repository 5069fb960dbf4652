package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 曝露判定の閾値（CheckExposureDays等）はDBのsettings行が優先され、
// 未設定（0）の場合にここでのデフォルトが適用される。
type Config struct {
	// Database
	DatabaseURL string

	// Batch API
	BatchBaseURL  string
	FetchTimeout  time.Duration
	FetchMaxSize  int64
	BatchPrefetch int

	// Ingest
	IngestInterval time.Duration

	// Exposure（0は「未設定＝デフォルト使用」を意味する）
	CheckExposureDays        int
	DirectOverlapThresholdMs int64
	IndirectVehicleDays      int

	// Retention
	CaseRetentionDays int

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitIngest  int

	// Server
	ServerPort string
}

// 曝露判定のデフォルト値。settingsにもenvにも値がない場合に使用される。
const (
	// DefaultCheckExposureDays はチェックイン照合の遡及日数（14日）。
	DefaultCheckExposureDays = 14
	// DefaultDirectOverlapThresholdMs は直接接触と判定する重なり時間の閾値（60秒）。
	DefaultDirectOverlapThresholdMs = 60 * 1000
	// DefaultIndirectVehicleDays は車両タイプの間接接触猶予ウィンドウ（1日）。
	DefaultIndirectVehicleDays = 1
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BatchBaseURL = os.Getenv("BATCH_BASE_URL")
	if cfg.BatchBaseURL == "" {
		missing = append(missing, "BATCH_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 20*1024*1024)
	cfg.BatchPrefetch = getEnvInt("BATCH_PREFETCH", 5)
	cfg.IngestInterval = getEnvDuration("INGEST_INTERVAL", 4*time.Hour)
	cfg.CheckExposureDays = getEnvInt("CHECK_EXPOSURE_DAYS", 0)
	cfg.DirectOverlapThresholdMs = getEnvInt64("DIRECT_OVERLAP_THRESHOLD_MS", 0)
	cfg.IndirectVehicleDays = getEnvInt("INDIRECT_VEHICLE_DAYS", 0)
	cfg.CaseRetentionDays = getEnvInt("CASE_RETENTION_DAYS", 31)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitIngest = getEnvInt("RATE_LIMIT_INGEST", 6)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
