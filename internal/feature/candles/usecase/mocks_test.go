package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"market_etl/internal/feature/candles/domain/entity"
)

// mockMarketRepository is a mock implementation of the MarketRepository interface.
type mockMarketRepository struct {
	GetKlinesFunc  func(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error)
	GetKlinesCalls int
}

func (m *mockMarketRepository) GetKlines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
	m.GetKlinesCalls++
	if m.GetKlinesFunc != nil {
		return m.GetKlinesFunc(ctx, symbol, interval, startMS, endMS, limit)
	}
	return nil, errors.New("GetKlinesFunc is not implemented")
}

// seriesMarket serves pages out of a fixed candle series the way the venue does.
func seriesMarket(series []entity.Candle) *mockMarketRepository {
	return &mockMarketRepository{
		GetKlinesFunc: func(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
			out := []entity.Candle{}
			for _, c := range series {
				if c.OpenTime >= startMS && c.OpenTime < endMS {
					out = append(out, c)
					if len(out) == limit {
						break
					}
				}
			}
			return out, nil
		},
	}
}

// mockRateLimiter is a mock implementation of the RateLimiterInterface.
type mockRateLimiter struct {
	WaitIfNeededCalls int
}

func (m *mockRateLimiter) WaitIfNeeded(ctx context.Context) error {
	m.WaitIfNeededCalls++
	return nil
}

// memPartitions is an in-memory PartitionRepository.
type memPartitions struct {
	mu        sync.Mutex
	data      map[string][]entity.Row
	SaveFunc  func(key entity.PartitionKey, rows []entity.Row) error
	LoadErr   error
	SaveCalls int
}

func newMemPartitions() *memPartitions {
	return &memPartitions{data: map[string][]entity.Row{}}
}

func (m *memPartitions) Load(ctx context.Context, key entity.PartitionKey) ([]entity.Row, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, false, m.LoadErr
	}
	rows, ok := m.data[key.String()]
	if !ok {
		return nil, false, nil
	}
	return append([]entity.Row(nil), rows...), true, nil
}

func (m *memPartitions) Save(ctx context.Context, key entity.PartitionKey, rows []entity.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveFunc != nil {
		if err := m.SaveFunc(key, rows); err != nil {
			return err
		}
	}
	m.data[key.String()] = append([]entity.Row(nil), rows...)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// hourlyCandles builds n consecutive hourly candles starting at start.
func hourlyCandles(start time.Time, n int) []entity.Candle {
	out := make([]entity.Candle, n)
	for i := range out {
		open := 100 + float64(i)
		ot := start.Add(time.Duration(i) * time.Hour)
		out[i] = entity.Candle{
			OpenTime:  ot.UnixMilli(),
			Open:      open,
			High:      open + 2,
			Low:       open - 1,
			Close:     open + 1,
			Volume:    10,
			CloseTime: ot.Add(time.Hour).UnixMilli() - 1,
		}
	}
	return out
}

func rowsFrom(cs []entity.Candle) []entity.Row {
	rows := make([]entity.Row, len(cs))
	for i, c := range cs {
		rows[i] = entity.Row{Candle: c, TrueRange: c.High - c.Low}
	}
	return rows
}
