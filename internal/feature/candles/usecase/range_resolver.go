package usecase

import (
	"time"

	"market_etl/internal/feature/candles/domain/entity"
)

// DefaultLookback は永続化済みパーティションが存在しない場合の取得期間です。
const DefaultLookback = 90 * 24 * time.Hour

// Overrides は呼び出し元が明示的に指定した取得期間です。指定された値は自動解決より優先されます。
type Overrides struct {
	Start *time.Time
	End   *time.Time
}

// ResolveRange は指定された時間足とパーティションの最新 open_time から取得期間 [start, end) を計算します。
//
//   - パーティションなし: [now - DefaultLookback, now)
//   - パーティションあり: [最新 open_time + 1本分, now)
//
// 時間足コードが不明な場合は ValidationError を返します。
// 最新ローソク足が end 以降にある場合は空の期間を返し、取得は行いません。
func ResolveRange(code string, lastOpenTime *int64, now time.Time, ov Overrides) (entity.Window, error) {
	iv, err := entity.ParseInterval(code)
	if err != nil {
		return entity.Window{}, err
	}

	end := now
	if ov.End != nil {
		end = *ov.End
	}

	var start time.Time
	switch {
	case ov.Start != nil:
		start = *ov.Start
	case lastOpenTime != nil:
		start = time.UnixMilli(iv.Next(*lastOpenTime)).UTC()
	default:
		start = end.Add(-DefaultLookback)
	}

	return entity.Window{Start: start.UTC(), End: end.UTC()}, nil
}
