package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"market_etl/internal/shared/errs"
)

const klinesBody = `[
	[1704067200000, "42283.58", "42554.57", "42261.02", "42475.23", "1271.68108", 1704070799999, "53957248.97", 47134, "682.57581", "28957416.82", "0"],
	[1704070800000, "42475.23", "42775.00", "42431.65", "42613.56", "1196.37856", 1704074399999, "50984893.13", 44377, "638.27861", "27201042.29", "0"]
]`

func TestNewBinanceMarket(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: "https://api.test.com", Timeout: 10 * time.Second}
	market := NewBinanceMarket(cfg, &http.Client{})

	if market == nil {
		t.Fatal("expected non-nil market")
	}
	if market.cfg.BaseURL != cfg.BaseURL {
		t.Errorf("expected base URL %q, got %q", cfg.BaseURL, market.cfg.BaseURL)
	}
}

func TestBinanceMarket_GetKlines_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		// Verify request parameters
		if q.Get("symbol") != "BTCUSDT" {
			t.Errorf("expected symbol BTCUSDT, got %s", q.Get("symbol"))
		}
		if q.Get("interval") != "1h" {
			t.Errorf("expected interval 1h, got %s", q.Get("interval"))
		}
		if q.Get("startTime") != "1704067200000" {
			t.Errorf("expected startTime 1704067200000, got %s", q.Get("startTime"))
		}
		// 半開区間の end は閉区間に変換される
		if q.Get("endTime") != "1704077999999" {
			t.Errorf("expected endTime 1704077999999, got %s", q.Get("endTime"))
		}
		if q.Get("limit") != "500" {
			t.Errorf("expected limit 500, got %s", q.Get("limit"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer server.Close()

	market := NewBinanceMarket(Config{BaseURL: server.URL}, server.Client())

	candles, err := market.GetKlines(context.Background(), "BTCUSDT", "1h", 1704067200000, 1704078000000, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	c := candles[0]
	if c.OpenTime != 1704067200000 {
		t.Errorf("expected open time 1704067200000, got %d", c.OpenTime)
	}
	if c.Open != 42283.58 || c.High != 42554.57 || c.Low != 42261.02 || c.Close != 42475.23 {
		t.Errorf("unexpected OHLC: %+v", c)
	}
	if c.Volume != 1271.68108 {
		t.Errorf("expected volume 1271.68108, got %f", c.Volume)
	}
	if c.CloseTime != 1704070799999 {
		t.Errorf("expected close time 1704070799999, got %d", c.CloseTime)
	}
	if c.Trades != 47134 {
		t.Errorf("expected trades 47134, got %d", c.Trades)
	}
	if c.TakerBuyQuote != 28957416.82 {
		t.Errorf("expected taker buy quote 28957416.82, got %f", c.TakerBuyQuote)
	}
}

func TestBinanceMarket_GetKlines_HTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		body       string
		want       error
	}{
		{"bad request", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, errs.ErrValidation},
		{"not found", http.StatusNotFound, ``, errs.ErrValidation},
		{"too many requests", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`, errs.ErrNetwork},
		{"ip banned", http.StatusTeapot, ``, errs.ErrNetwork},
		{"internal server error", http.StatusInternalServerError, ``, errs.ErrNetwork},
		{"service unavailable", http.StatusServiceUnavailable, ``, errs.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			market := NewBinanceMarket(Config{BaseURL: server.URL}, server.Client())

			_, err := market.GetKlines(context.Background(), "BTCUSDT", "1h", 0, 1000, 10)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBinanceMarket_GetKlines_InvalidPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `not-json`},
		{"too few fields", `[[1704067200000, "1", "2"]]`},
		{"bad price", `[[1704067200000, "x", "2", "1", "2", "1", 1704070799999, "1", 1, "1", "1", "0"]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			market := NewBinanceMarket(Config{BaseURL: server.URL}, server.Client())
			if _, err := market.GetKlines(context.Background(), "BTCUSDT", "1h", 0, 1000, 10); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestBinanceMarket_GetKlines_NetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	market := NewBinanceMarket(Config{BaseURL: url}, &http.Client{Timeout: time.Second})
	_, err := market.GetKlines(context.Background(), "BTCUSDT", "1h", 0, 1000, 10)
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestBinanceMarket_ServerTime(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/time" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"serverTime": 1704067200123}`))
	}))
	defer server.Close()

	market := NewBinanceMarket(Config{BaseURL: server.URL}, server.Client())
	got, err := market.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UnixMilli() != 1704067200123 {
		t.Errorf("expected 1704067200123, got %d", got.UnixMilli())
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BINANCE_BASE_URL", "")
	t.Setenv("BINANCE_REQUESTS_PER_MINUTE", "600")
	t.Setenv("BINANCE_TIMEOUT", "3s")

	cfg := LoadConfig()
	if cfg.BaseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %q", cfg.BaseURL)
	}
	if cfg.RequestsPerMinute != 600 {
		t.Errorf("expected 600, got %d", cfg.RequestsPerMinute)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.Timeout)
	}
}
