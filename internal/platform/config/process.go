package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"market_etl/internal/shared/errs"
)

// Storage backends.
const (
	BackendFile    = "file"
	BackendRedis   = "redis"
	BackendSQL     = "sql"
	BackendParquet = "parquet"
)

// Process はプロセス全体の設定です（環境変数から読み込み）。
type Process struct {
	DataDir          string        // パーティションの既定ディレクトリ（DATA_DIR）
	StateDir         string        // 状態ファイルとロックの置き場所（STATE_DIR）
	PartitionBackend string        // parquet | sql（PARTITION_BACKEND）
	StateBackend     string        // file | redis | sql（STATE_BACKEND）
	LockBackend      string        // file | redis（LOCK_BACKEND）
	LockMaxAge       time.Duration // これより古いロックは奪取可能（LOCK_MAX_AGE）
	RedisNamespace   string        // Redis キーの接頭辞（REDIS_NAMESPACE）
	AlertsOnNoNewRow bool          // 新規行が無いパスでもアラートを評価する（ALERTS_ON_NO_NEW_ROWS）
	Cron             string        // 常駐モードの実行タイミング（SCHEDULE_CRON）
	Timezone         string        // Cron のタイムゾーン（SCHEDULE_TZ）
}

// LoadProcess は環境変数からプロセス設定を読み込み、未設定の項目に既定値を設定します。
func LoadProcess() (Process, error) {
	p := Process{
		DataDir:          getEnv("DATA_DIR", "data"),
		StateDir:         getEnv("STATE_DIR", "state"),
		PartitionBackend: strings.ToLower(getEnv("PARTITION_BACKEND", BackendParquet)),
		StateBackend:     strings.ToLower(getEnv("STATE_BACKEND", BackendFile)),
		LockBackend:      strings.ToLower(getEnv("LOCK_BACKEND", BackendFile)),
		LockMaxAge:       2 * time.Hour,
		RedisNamespace:   getEnv("REDIS_NAMESPACE", "market_etl"),
		AlertsOnNoNewRow: true,
		Cron:             getEnv("SCHEDULE_CRON", "*/15 * * * *"),
		Timezone:         getEnv("SCHEDULE_TZ", "UTC"),
	}

	if v := os.Getenv("LOCK_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Process{}, fmt.Errorf("%w: LOCK_MAX_AGE %q", errs.ErrValidation, v)
		}
		p.LockMaxAge = d
	}
	if v := os.Getenv("ALERTS_ON_NO_NEW_ROWS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Process{}, fmt.Errorf("%w: ALERTS_ON_NO_NEW_ROWS %q", errs.ErrValidation, v)
		}
		p.AlertsOnNoNewRow = b
	}

	switch p.PartitionBackend {
	case BackendParquet, BackendSQL:
	default:
		return Process{}, fmt.Errorf("%w: PARTITION_BACKEND %q", errs.ErrValidation, p.PartitionBackend)
	}
	switch p.StateBackend {
	case BackendFile, BackendRedis, BackendSQL:
	default:
		return Process{}, fmt.Errorf("%w: STATE_BACKEND %q", errs.ErrValidation, p.StateBackend)
	}
	switch p.LockBackend {
	case BackendFile, BackendRedis:
	default:
		return Process{}, fmt.Errorf("%w: LOCK_BACKEND %q", errs.ErrValidation, p.LockBackend)
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return Process{}, fmt.Errorf("%w: SCHEDULE_TZ %q: %w", errs.ErrValidation, p.Timezone, err)
	}
	return p, nil
}

// Location は Cron を解釈するタイムゾーンを返します。
func (p Process) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
