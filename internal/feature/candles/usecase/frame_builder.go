package usecase

import (
	"math"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"market_etl/internal/feature/candles/domain/entity"
)

const (
	// DefaultATRWindow は ATR の移動平均に使う本数のデフォルト値です。
	DefaultATRWindow = 14
	// DefaultRetainedMonths は保持ビューのデフォルト月数です。
	DefaultRetainedMonths = 3
	daysPerRetainedMonth  = 30
)

// BuildFrame は取得したローソク足を正規化し、true range と ATR を付与した行に変換します。
//
// history は永続化済みパーティション（昇順）です。raw の先頭より前の直近 window 本を
// 種データとして使うため、増分取得でも全件再計算と同じ ATR になります。
// 種データが足りない先頭 window-1 本の ATR は nil（ゼロではない）です。
func BuildFrame(history []entity.Row, raw []entity.Candle, window int) []entity.Row {
	if len(raw) == 0 {
		return nil
	}
	if window < 1 {
		window = 1
	}

	candles := slices.Clone(raw)
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })

	// raw の先頭より前の履歴を最大 window 本だけ種として使う
	first := candles[0].OpenTime
	cut := sort.Search(len(history), func(i int) bool { return history[i].OpenTime >= first })
	seedFrom := max(cut-window, 0)
	seed := history[seedFrom:cut]

	series := make([]entity.Candle, 0, len(seed)+len(candles))
	for _, r := range seed {
		series = append(series, r.Candle)
	}
	series = append(series, candles...)

	trs := trueRanges(series)
	rows := make([]entity.Row, 0, len(candles))
	for i := len(seed); i < len(series); i++ {
		row := entity.Row{Candle: series[i], TrueRange: trs[i]}
		if i+1 >= window {
			atr := stat.Mean(trs[i+1-window:i+1], nil)
			row.ATR = &atr
		}
		rows = append(rows, row)
	}
	return rows
}

// trueRanges returns max(high-low, |high-prevClose|, |low-prevClose|) per candle.
// The first candle has no previous close and uses high-low.
func trueRanges(series []entity.Candle) []float64 {
	trs := make([]float64, len(series))
	for i, c := range series {
		if i == 0 {
			trs[i] = c.High - c.Low
			continue
		}
		prev := series[i-1].Close
		trs[i] = floats.Max([]float64{c.High - c.Low, math.Abs(c.High - prev), math.Abs(c.Low - prev)})
	}
	return trs
}

// RetainedView は最新行から months か月（30日換算）以内の行だけを返します。
// 永続化済みパーティションは切り詰めません。months <= 0 の場合は全行を返します。
func RetainedView(rows []entity.Row, months int) []entity.Row {
	if months <= 0 || len(rows) == 0 {
		return rows
	}
	latest := rows[len(rows)-1].OpenTime
	cutoff := latest - (time.Duration(months*daysPerRetainedMonth) * 24 * time.Hour).Milliseconds()
	i := sort.Search(len(rows), func(i int) bool { return rows[i].OpenTime >= cutoff })
	return rows[i:]
}
