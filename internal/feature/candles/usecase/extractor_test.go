package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

var testPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

func mustInterval(t *testing.T, code string) entity.Interval {
	t.Helper()
	iv, err := entity.ParseInterval(code)
	require.NoError(t, err)
	return iv
}

func TestExtractor_Extract_Paginates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 100)
	market := seriesMarket(series)
	rl := &mockRateLimiter{}

	ex := NewExtractor(market, rl, testPolicy)
	w := entity.Window{Start: start, End: start.Add(200 * time.Hour)}
	got, err := ex.Extract(context.Background(), "BTCUSDT", mustInterval(t, "1h"), w, 30)

	require.NoError(t, err)
	assert.Len(t, got, 100)
	// 30 + 30 + 30 + 10
	assert.Equal(t, 4, market.GetKlinesCalls)
	assert.Equal(t, 4, rl.WaitIfNeededCalls)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].OpenTime, got[i].OpenTime)
	}
}

func TestExtractor_Extract_DedupsOverlappingPages(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 10)

	// ページ境界で前ページ最後の足を再送する取引所
	market := &mockMarketRepository{}
	market.GetKlinesFunc = func(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
		out := []entity.Candle{}
		for _, c := range series {
			if c.OpenTime >= startMS-time.Hour.Milliseconds() && c.OpenTime < endMS {
				out = append(out, c)
				if len(out) == limit {
					break
				}
			}
		}
		return out, nil
	}

	ex := NewExtractor(market, &mockRateLimiter{}, testPolicy)
	w := entity.Window{Start: start, End: start.Add(10 * time.Hour)}
	got, err := ex.Extract(context.Background(), "BTCUSDT", mustInterval(t, "1h"), w, 4)

	require.NoError(t, err)
	require.Len(t, got, 10)
	seen := map[int64]bool{}
	for _, c := range got {
		assert.False(t, seen[c.OpenTime], "duplicate open_time %d", c.OpenTime)
		seen[c.OpenTime] = true
	}
}

func TestExtractor_Extract_DropsCandlesOutsideWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 5)
	market := &mockMarketRepository{
		GetKlinesFunc: func(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
			return series, nil
		},
	}

	ex := NewExtractor(market, &mockRateLimiter{}, testPolicy)
	w := entity.Window{Start: start.Add(time.Hour), End: start.Add(3 * time.Hour)}
	got, err := ex.Extract(context.Background(), "BTCUSDT", mustInterval(t, "1h"), w, 1000)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, series[1].OpenTime, got[0].OpenTime)
	assert.Equal(t, series[2].OpenTime, got[1].OpenTime)
}

func TestExtractor_Extract_EmptyWindow(t *testing.T) {
	market := &mockMarketRepository{}
	ex := NewExtractor(market, &mockRateLimiter{}, testPolicy)
	now := time.Now()

	got, err := ex.Extract(context.Background(), "BTCUSDT", mustInterval(t, "1h"), entity.Window{Start: now, End: now}, 100)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, market.GetKlinesCalls)
}

func TestExtractor_Extract_Retry(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 3)
	errBoom := errors.New("boom")

	testCases := []struct {
		name        string
		failures    int
		failWith    error
		wantErr     error
		wantCalls   int
		wantCandles int
	}{
		{
			name:        "正常系: 一時的なエラーは再試行で回復する",
			failures:    2,
			failWith:    fmt.Errorf("%w: status 503", errs.ErrNetwork),
			wantCalls:   3,
			wantCandles: 3,
		},
		{
			name:      "異常系: 再試行回数を使い切ると NetworkError",
			failures:  100,
			failWith:  fmt.Errorf("%w: connection reset", errs.ErrNetwork),
			wantErr:   errs.ErrNetwork,
			wantCalls: testPolicy.MaxRetries + 1,
		},
		{
			name:      "異常系: 再試行対象外のエラーは即座に失敗",
			failures:  100,
			failWith:  errBoom,
			wantErr:   errBoom,
			wantCalls: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			market := &mockMarketRepository{
				GetKlinesFunc: func(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
					calls++
					if calls <= tc.failures {
						return nil, tc.failWith
					}
					return series, nil
				},
			}

			ex := NewExtractor(market, &mockRateLimiter{}, testPolicy)
			w := entity.Window{Start: start, End: start.Add(3 * time.Hour)}
			got, err := ex.Extract(context.Background(), "BTCUSDT", mustInterval(t, "1h"), w, 1000)

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Len(t, got, tc.wantCandles)
			}
			assert.Equal(t, tc.wantCalls, market.GetKlinesCalls)
		})
	}
}
