// Package binance はBinance現物市場APIのクライアントを提供します。
package binance

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultBaseURL           = "https://api.binance.com"
	defaultRequestsPerMinute = 1200
)

// Config はBinance APIクライアントの設定を保持します。
type Config struct {
	BaseURL           string        // APIのベースURL（例: "https://api.binance.com"）
	Timeout           time.Duration // HTTPリクエストタイムアウト
	RequestsPerMinute int           // 1分あたりのリクエスト上限（0以下は無制限）
}

// LoadConfig は環境変数からBinanceの設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{
		BaseURL:           os.Getenv("BINANCE_BASE_URL"),
		Timeout:           10 * time.Second,
		RequestsPerMinute: defaultRequestsPerMinute,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if v, err := strconv.Atoi(os.Getenv("BINANCE_REQUESTS_PER_MINUTE")); err == nil {
		cfg.RequestsPerMinute = v
	}
	if d, err := time.ParseDuration(os.Getenv("BINANCE_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}
