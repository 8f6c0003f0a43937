package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
	"market_etl/internal/shared/ratelimiter"
)

const (
	// MaxPageLimit は取引所が1リクエストで返すローソク足の最大件数です。
	MaxPageLimit = 1000
)

// MarketRepository は取引所からローソク足を取得するリポジトリのインターフェイスです。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type MarketRepository interface {
	// GetKlines returns candles with open time in [startMS, endMS), oldest first, at most limit records.
	// Transient failures (transport errors, 429, 5xx) must wrap errs.ErrNetwork.
	GetKlines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error)
}

// RetryPolicy bounds the retries of a single page request.
type RetryPolicy struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // First backoff delay, doubled on each retry
}

// DefaultRetryPolicy returns the retry policy used by the scheduler.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 4, BaseDelay: 500 * time.Millisecond}
}

// Extractor はページングしながら取得期間全体のローソク足を取得します。
// ページは常に逐次取得し、ページ境界で重複したローソク足は open_time で除去します。
type Extractor struct {
	market      MarketRepository
	rateLimiter ratelimiter.RateLimiterInterface
	retry       RetryPolicy
}

// NewExtractor は新しい Extractor を作成します。
func NewExtractor(market MarketRepository, rateLimiter ratelimiter.RateLimiterInterface, policy RetryPolicy) *Extractor {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Extractor{market: market, rateLimiter: rateLimiter, retry: policy}
}

// Extract は window 内のローソク足を古い順・open_time 一意で返します。
// 次のページは直前ページの最終 open_time + 1本分から要求し、
// 空ページ・limit 未満のページ・window 終端のいずれかで終了します。
func (e *Extractor) Extract(ctx context.Context, symbol string, iv entity.Interval, w entity.Window, limit int) ([]entity.Candle, error) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if w.Empty() {
		return nil, nil
	}

	startMS, endMS := w.Start.UnixMilli(), w.End.UnixMilli()
	seen := make(map[int64]struct{})
	out := make([]entity.Candle, 0)

	next := startMS
	for next < endMS {
		page, err := e.fetchPage(ctx, symbol, iv.Venue, next, endMS, limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		maxOpen := page[0].OpenTime
		for _, c := range page {
			if c.OpenTime > maxOpen {
				maxOpen = c.OpenTime
			}
			if c.OpenTime < startMS || c.OpenTime >= endMS {
				continue
			}
			// ページ境界のローソク足は前ページと重複することがある
			if _, dup := seen[c.OpenTime]; dup {
				continue
			}
			seen[c.OpenTime] = struct{}{}
			out = append(out, c)
		}

		if len(page) < limit {
			break
		}
		following := iv.Next(maxOpen)
		if following <= next {
			break
		}
		next = following
	}

	slices.SortFunc(out, func(a, b entity.Candle) int {
		switch {
		case a.OpenTime < b.OpenTime:
			return -1
		case a.OpenTime > b.OpenTime:
			return 1
		}
		return 0
	})
	return out, nil
}

// fetchPage は1ページ分を取得します。ErrNetwork のみ指数バックオフで再試行します。
func (e *Extractor) fetchPage(ctx context.Context, symbol, venueInterval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
	var page []entity.Candle
	attempts := 0

	backoff := retry.WithMaxRetries(uint64(e.retry.MaxRetries), retry.NewExponential(e.retry.BaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := e.rateLimiter.WaitIfNeeded(ctx); err != nil {
			return err
		}
		cs, err := e.market.GetKlines(ctx, symbol, venueInterval, startMS, endMS, limit)
		if err != nil {
			if errors.Is(err, errs.ErrNetwork) {
				slog.Warn("kline page request failed", "symbol", symbol, "interval", venueInterval,
					"start", startMS, "attempt", attempts, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		page = cs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s page at %d after %d attempt(s): %w", symbol, venueInterval, startMS, attempts, err)
	}
	return page, nil
}
