// Package entity defines the domain models for the schedule feature.
package entity

import (
	"fmt"
	"strings"
	"time"

	candles "market_etl/internal/feature/candles/domain/entity"
)

// Status is the outcome of one entry's pass.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusNoNewData Status = "no_new_data"
	// StatusSkipped is reported for throttled or disabled entries and is never persisted.
	StatusSkipped Status = "skipped"
)

// Entry is one configured (instrument, interval) job. Immutable per pass.
type Entry struct {
	Ticker          string // Instrument symbol, upper case
	Interval        string // Configured interval code
	ATRWindow       int    // Volatility (ATR) window
	RetainedMonths  int    // Retained view passed to alert evaluation
	IntervalMinutes int    // Minimum spacing between runs
	PageLimit       int    // Venue page size
	Enabled         bool
	Output          string // Optional partition path override
}

// Key returns the "TICKER,interval" state key.
func (e Entry) Key() string {
	return fmt.Sprintf("%s,%s", strings.ToUpper(e.Ticker), strings.ToLower(e.Interval))
}

// Spacing returns the minimum duration between two runs of the entry.
func (e Entry) Spacing() time.Duration {
	return time.Duration(e.IntervalMinutes) * time.Minute
}

// PartitionKey addresses the partition the entry writes.
func (e Entry) PartitionKey() candles.PartitionKey {
	return candles.PartitionKey{Ticker: strings.ToUpper(e.Ticker), Interval: strings.ToLower(e.Interval), Path: e.Output}
}

// State is the persisted last-run metadata of an entry.
type State struct {
	LastRunAt  time.Time `json:"last_run_at"`
	LastStatus Status    `json:"last_status"`
	RowsAdded  int       `json:"rows_added"`
	LastError  string    `json:"last_error,omitempty"`
}

// LockToken identifies the current holder of the scheduler lock.
type LockToken struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Stale reports whether the token is older than maxAge at now.
func (t LockToken) Stale(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(t.AcquiredAt) > maxAge
}
