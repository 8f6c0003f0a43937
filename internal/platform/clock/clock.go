// Package clock provides the wall clock used by the pipeline and the scheduler,
// corrected by the market venue's server time.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market_etl/internal/shared/errs"
)

// ServerTimer は取引所のサーバー時刻を返します（binance.BinanceMarket が実装）。
type ServerTimer interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// SkewClock はローカル時刻にサーバー時刻とのずれを加えた現在時刻を返します。
// Sync を呼ぶまではローカル時刻をそのまま使います。
type SkewClock struct {
	source ServerTimer
	local  func() time.Time

	mu     sync.RWMutex
	offset time.Duration
}

// NewSkewClock は新しい SkewClock を作成します。source が nil の場合は補正しません。
func NewSkewClock(source ServerTimer) *SkewClock {
	return &SkewClock{source: source, local: time.Now}
}

// Now は補正済みの現在時刻（UTC）を返します。
func (c *SkewClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.local().Add(c.offset).UTC()
}

// Offset は直近の Sync で求めたずれを返します。
func (c *SkewClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Sync はサーバー時刻を取得し、往復時間の中間点を基準にずれを更新します。
// 失敗した場合は以前のずれを維持します。
func (c *SkewClock) Sync(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	before := c.local()
	server, err := c.source.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("%w: server time: %w", errs.ErrNetwork, err)
	}
	after := c.local()
	mid := before.Add(after.Sub(before) / 2)

	offset := server.Sub(mid)
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()

	slog.Debug("clock synchronized", "offset", offset, "round_trip", after.Sub(before))
	return nil
}
