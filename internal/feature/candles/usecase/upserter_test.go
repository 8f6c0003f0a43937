package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

func TestMergeRows(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := rowsFrom(hourlyCandles(start, 5))

	replaced := existing[4]
	replaced.Close = 999
	incoming := append([]entity.Row{replaced}, rowsFrom(hourlyCandles(start.Add(5*time.Hour), 3))...)
	// 逆順で渡しても昇順になる
	incoming[1], incoming[3] = incoming[3], incoming[1]

	merged, added := MergeRows(existing, incoming)

	assert.Equal(t, 3, added)
	require.Len(t, merged, 8)
	for i := 1; i < len(merged); i++ {
		assert.Less(t, merged[i-1].OpenTime, merged[i].OpenTime)
	}
	assert.Equal(t, 999.0, merged[4].Close, "duplicate key keeps the new row")
	// 既存スライスは変更しない
	assert.NotEqual(t, 999.0, existing[4].Close)
}

func TestMergeRows_DuplicateIncomingCountsOnce(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := rowsFrom(hourlyCandles(start, 1))[0]
	newer := r
	newer.Close = 42

	merged, added := MergeRows(nil, []entity.Row{r, newer})

	assert.Equal(t, 1, added)
	require.Len(t, merged, 1)
	assert.Equal(t, 42.0, merged[0].Close)
}

func TestUpserter_Upsert(t *testing.T) {
	ctx := context.Background()
	key := entity.PartitionKey{Ticker: "BTCUSDT", Interval: "1h"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := rowsFrom(hourlyCandles(start, 3))
	fresh := rowsFrom(hourlyCandles(start.Add(3*time.Hour), 2))
	errDisk := errors.New("disk full")

	testCases := []struct {
		name        string
		incoming    []entity.Row
		saveErr     error
		wantErr     error
		wantAdded   int
		wantWritten bool
		wantSaves   int
	}{
		{
			name:        "正常系: 新しい行を追加して保存",
			incoming:    fresh,
			wantAdded:   2,
			wantWritten: true,
			wantSaves:   1,
		},
		{
			name:      "正常系: 同一内容なら書き込まない",
			incoming:  existing,
			wantSaves: 0,
		},
		{
			name:      "正常系: 入力なし",
			incoming:  nil,
			wantSaves: 0,
		},
		{
			name:      "異常系: 保存失敗は StorageError",
			incoming:  fresh,
			saveErr:   errDisk,
			wantErr:   errs.ErrStorage,
			wantSaves: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemPartitions()
			store.data[key.String()] = existing
			store.SaveFunc = func(entity.PartitionKey, []entity.Row) error { return tc.saveErr }

			res, err := NewUpserter(store).Upsert(ctx, key, existing, tc.incoming)

			assert.Equal(t, tc.wantSaves, store.SaveCalls)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr))
				assert.True(t, errors.Is(err, errDisk))
				// 既存パーティションはそのまま
				assert.Len(t, store.data[key.String()], len(existing))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantAdded, res.Added)
			assert.Equal(t, tc.wantWritten, res.Written)
			assert.Len(t, res.Rows, len(existing)+tc.wantAdded)
		})
	}
}
