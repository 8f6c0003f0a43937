// Package di provides dependency injection factories for creating application components.
package di

import (
	"time"

	"market_etl/internal/platform/externalapi/binance"
	infrahttp "market_etl/internal/platform/http"
	"market_etl/internal/shared/ratelimiter"
)

// NewMarket creates a fully configured BinanceMarket with HTTP client and its rate limiter.
func NewMarket() (*binance.BinanceMarket, *ratelimiter.RateLimiter) {
	cfg := binance.LoadConfig()
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return binance.NewBinanceMarket(cfg, httpClient), ratelimiter.NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
}
