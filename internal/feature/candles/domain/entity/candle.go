// Package entity defines the domain models for the candles feature.
package entity

import (
	"fmt"
	"strings"
	"time"
)

// Candle is one raw OHLCV record as returned by the market venue.
type Candle struct {
	OpenTime      int64   // Candle start, epoch milliseconds (unique key within a partition)
	Open          float64 // Opening price
	High          float64 // Highest price during this period
	Low           float64 // Lowest price during this period
	Close         float64 // Closing price
	Volume        float64 // Base asset volume
	CloseTime     int64   // Candle end, epoch milliseconds
	QuoteVolume   float64 // Quote asset volume
	Trades        int64   // Number of trades
	TakerBuyBase  float64 // Taker buy base asset volume
	TakerBuyQuote float64 // Taker buy quote asset volume
}

// Time returns the candle's open time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Row is a normalized candle with its derived columns attached.
// ATR is nil for warm-up rows that do not yet have a full window of true ranges.
type Row struct {
	Candle
	TrueRange float64
	ATR       *float64
}

// Equal reports whether two rows carry identical values, including derived columns.
func (r Row) Equal(o Row) bool {
	if r.Candle != o.Candle || r.TrueRange != o.TrueRange {
		return false
	}
	switch {
	case r.ATR == nil && o.ATR == nil:
		return true
	case r.ATR == nil || o.ATR == nil:
		return false
	default:
		return *r.ATR == *o.ATR
	}
}

// PartitionKey addresses the persisted series of one (instrument, interval) pair.
type PartitionKey struct {
	Ticker   string // Instrument symbol (e.g. "BTCUSDT")
	Interval string // Configured interval code (e.g. "1h", "45m")
	Path     string // Optional output override; empty means the store's default location
}

// String returns the "TICKER,interval" form used as the state key.
func (k PartitionKey) String() string {
	return fmt.Sprintf("%s,%s", strings.ToUpper(k.Ticker), strings.ToLower(k.Interval))
}

// Window is a half-open fetch range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window contains no instants.
func (w Window) Empty() bool {
	return !w.Start.Before(w.End)
}
