// Package entity defines the domain models for the alerts feature.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry signal kinds.
const (
	KindMACross         = "ma_cross"
	KindVolatilitySpike = "volatility_spike"
)

// Notification channels.
const (
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// EntrySpec selects the entry signal and its parameters.
type EntrySpec struct {
	Kind       string  // KindMACross or KindVolatilitySpike
	Fast       int     // ma_cross: fast moving average window
	Slow       int     // ma_cross: slow moving average window
	Multiplier float64 // volatility_spike: true range threshold as a multiple of ATR
}

// LevelSpec places a price level at close ± direction × ATR × Multiplier.
type LevelSpec struct {
	Multiplier decimal.Decimal
}

// Rule is one configured alert.
type Rule struct {
	Name            string // Part of the alert key; unique per (ticker, interval)
	Ticker          string
	Interval        string
	Enabled         bool
	Entry           EntrySpec
	Target          *LevelSpec // optional atr_target
	Stop            *LevelSpec // optional atr_stop
	ThrottleSeconds int
	Channel         string
	Destination     string // Telegram chat id or webhook URL
	SuppressRepeat  bool   // Do not re-send the event of a candle already dispatched
}

// Key returns the "TICKER,interval,name" alert state key.
func (r Rule) Key() string {
	return fmt.Sprintf("%s,%s,%s", strings.ToUpper(r.Ticker), strings.ToLower(r.Interval), r.Name)
}

// Matches reports whether the rule applies to the given partition.
func (r Rule) Matches(ticker, interval string) bool {
	return r.Enabled && strings.EqualFold(r.Ticker, ticker) && strings.EqualFold(r.Interval, interval)
}

// Throttle returns the minimum spacing between two dispatches of the rule.
func (r Rule) Throttle() time.Duration {
	return time.Duration(r.ThrottleSeconds) * time.Second
}

// State is the persisted dispatch history of one alert key.
type State struct {
	LastDispatchedAt time.Time `json:"last_dispatched_at"`
	LastSignal       int       `json:"last_signal"`
	LastOpenTime     int64     `json:"last_open_time"`
}

// Signal is a detected trade event on the latest candle.
type Signal struct {
	Kind      string
	Direction int // 1 long, -1 short
	OpenTime  int64
	Close     decimal.Decimal
	Target    *decimal.Decimal
	Stop      *decimal.Decimal
}

// Side returns "LONG" or "SHORT".
func (s Signal) Side() string {
	if s.Direction > 0 {
		return "LONG"
	}
	return "SHORT"
}

// Notification is one message addressed to a channel destination.
type Notification struct {
	Channel     string
	Destination string
	Text        string
}

// FormatMessage renders the human readable alert text.
func FormatMessage(ticker, interval string, s Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s (%s)\n", strings.ToUpper(ticker), strings.ToLower(interval), s.Side(), s.Kind)
	fmt.Fprintf(&b, "Price: %s\n", s.Close.String())
	if s.Target != nil {
		fmt.Fprintf(&b, "TP: %s\n", s.Target.String())
	}
	if s.Stop != nil {
		fmt.Fprintf(&b, "SL: %s\n", s.Stop.String())
	}
	fmt.Fprintf(&b, "Time: %s", time.UnixMilli(s.OpenTime).UTC().Format(time.RFC3339))
	return b.String()
}
