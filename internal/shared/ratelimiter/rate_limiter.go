package ratelimiter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterInterface は、API呼び出しなどの操作の頻度を制限するインターフェースです。
type RateLimiterInterface interface {
	WaitIfNeeded(ctx context.Context) error
}

// RateLimiterは、取引所APIへのリクエスト頻度を制限します。
// トークンバケット方式（golang.org/x/time/rate）で、interval あたり limit 回まで許可します。
type RateLimiter struct {
	limiter *rate.Limiter
	limit   int
}

// NewRateLimiterは新しいRateLimiterのインスタンスを生成します。
// limit <= 0 の場合は制限なしとして扱います。
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 || interval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	every := rate.Every(interval / time.Duration(limit))
	return &RateLimiter{
		limiter: rate.NewLimiter(every, limit),
		limit:   limit,
	}
}

// WaitIfNeededはレートリミットの上限に達しているかを確認し、必要であれば待機します。
// ctx がキャンセルされた場合は待機を中断してエラーを返します。
func (rl *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	if rl.limiter.Tokens() < 1 {
		slog.Debug("rate limit reached, waiting", "limit", rl.limit)
	}
	return rl.limiter.Wait(ctx)
}
