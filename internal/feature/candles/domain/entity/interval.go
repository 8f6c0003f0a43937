package entity

import (
	"fmt"
	"strings"
	"time"

	"market_etl/internal/shared/errs"
)

// Interval describes a configured candle interval and how it is requested from the venue.
// Codes the venue does not serve natively map to the nearest coarser venue interval;
// in that case the stored candles have the venue's granularity.
type Interval struct {
	Code         string // Configured code, e.g. "45m"
	Minutes      int    // Nominal minutes of the configured code; default run spacing
	Venue        string // Code sent to the venue, e.g. "1h"
	VenueMinutes int    // Nominal minutes of the venue interval
	monthly      bool
}

var intervals = map[string]Interval{
	"1m":     {Code: "1m", Minutes: 1, Venue: "1m", VenueMinutes: 1},
	"5m":     {Code: "5m", Minutes: 5, Venue: "5m", VenueMinutes: 5},
	"15m":    {Code: "15m", Minutes: 15, Venue: "15m", VenueMinutes: 15},
	"30m":    {Code: "30m", Minutes: 30, Venue: "30m", VenueMinutes: 30},
	"45m":    {Code: "45m", Minutes: 45, Venue: "1h", VenueMinutes: 60},
	"1h":     {Code: "1h", Minutes: 60, Venue: "1h", VenueMinutes: 60},
	"4h":     {Code: "4h", Minutes: 240, Venue: "4h", VenueMinutes: 240},
	"6h":     {Code: "6h", Minutes: 360, Venue: "6h", VenueMinutes: 360},
	"12h":    {Code: "12h", Minutes: 720, Venue: "12h", VenueMinutes: 720},
	"1d":     {Code: "1d", Minutes: 1440, Venue: "1d", VenueMinutes: 1440},
	"1w":     {Code: "1w", Minutes: 10080, Venue: "1w", VenueMinutes: 10080},
	"1month": {Code: "1month", Minutes: 43200, Venue: "1M", VenueMinutes: 43200, monthly: true},
}

// ParseInterval resolves a configured interval code (case-insensitive).
func ParseInterval(code string) (Interval, error) {
	iv, ok := intervals[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Interval{}, fmt.Errorf("%w: unsupported interval %q", errs.ErrValidation, code)
	}
	return iv, nil
}

// IntervalCodes returns the supported codes, shortest first.
func IntervalCodes() []string {
	return []string{"1m", "5m", "15m", "30m", "45m", "1h", "4h", "6h", "12h", "1d", "1w", "1month"}
}

// Step returns the nominal duration of one venue candle.
func (i Interval) Step() time.Duration {
	return time.Duration(i.VenueMinutes) * time.Minute
}

// RunSpacing returns the default minimum spacing between scheduled runs.
func (i Interval) RunSpacing() time.Duration {
	return time.Duration(i.Minutes) * time.Minute
}

// Next returns the open time (epoch ms) of the venue candle following openTime.
// Monthly candles advance by calendar month.
func (i Interval) Next(openTime int64) int64 {
	if i.monthly {
		return time.UnixMilli(openTime).UTC().AddDate(0, 1, 0).UnixMilli()
	}
	return openTime + i.Step().Milliseconds()
}
