// Command etl runs the candle pipeline once for a single instrument and interval.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"market_etl/internal/app/di"
	"market_etl/internal/feature/candles/domain/entity"
	candleusecase "market_etl/internal/feature/candles/usecase"
	"market_etl/internal/platform/clock"
	"market_etl/internal/platform/config"
	"market_etl/internal/platform/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		ticker = flag.String("ticker", "", "instrument symbol, e.g. BTCUSDT")
		freq   = flag.String("freq", "1h", "interval code ("+strings.Join(entity.IntervalCodes(), ", ")+")")
		start  = flag.String("start", "", "window start (RFC3339 or YYYY-MM-DD); default resumes after the last stored candle")
		end    = flag.String("end", "", "window end, exclusive (RFC3339 or YYYY-MM-DD); default now")
		limit  = flag.Int("limit", candleusecase.MaxPageLimit, "venue page size (max 1000)")
		atr    = flag.Int("atr", candleusecase.DefaultATRWindow, "ATR window")
		months = flag.Int("months", candleusecase.DefaultRetainedMonths, "retained view in months reported after the run")
		output = flag.String("output", "", "partition path override")
	)
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Debug(".env not found; using system environment variables")
	}
	logger.Setup()

	if *ticker == "" {
		fmt.Fprintln(os.Stderr, "-ticker is required")
		flag.Usage()
		return 2
	}
	overrides, err := parseOverrides(*start, *end)
	if err != nil {
		slog.Error("invalid window", "error", err)
		return 2
	}

	proc, err := config.LoadProcess()
	if err != nil {
		slog.Error("failed to load process config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := di.OpenBackends(ctx, proc)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		return 1
	}
	defer backends.Close()

	market, limiter := di.NewMarket()
	clk := clock.NewSkewClock(market)
	if err := clk.Sync(ctx); err != nil {
		slog.Warn("clock sync failed, using local time", "error", err)
	}

	// スケジューラと同じロックで書き込みを直列化する
	lock := backends.Locker()
	token, err := lock.Acquire(ctx)
	if err != nil {
		slog.Error("failed to acquire lock", "error", err)
		return 1
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx), token); err != nil {
			slog.Error("failed to release lock", "error", err)
		}
	}()

	uc := candleusecase.NewIngestUsecase(market, backends.Partitions(), limiter, clk, candleusecase.DefaultRetryPolicy())
	res, err := uc.Run(ctx, candleusecase.IngestRequest{
		Key:       entity.PartitionKey{Ticker: *ticker, Interval: *freq, Path: *output},
		ATRWindow: *atr,
		PageLimit: *limit,
		Overrides: overrides,
	})
	if err != nil {
		slog.Error("etl failed", "ticker", *ticker, "freq", *freq, "error", err)
		return 1
	}

	view := candleusecase.RetainedView(res.Rows, *months)
	slog.Info("etl finished",
		"ticker", strings.ToUpper(*ticker),
		"freq", *freq,
		"window_start", res.Window.Start,
		"window_end", res.Window.End,
		"fetched", res.Fetched,
		"rows_added", res.Added,
		"rows_total", len(res.Rows),
		"retained_rows", len(view),
	)
	return 0
}

// parseOverrides は -start / -end を解釈します。
func parseOverrides(start, end string) (candleusecase.Overrides, error) {
	var ov candleusecase.Overrides
	if start != "" {
		t, err := parseTime(start)
		if err != nil {
			return ov, fmt.Errorf("-start: %w", err)
		}
		ov.Start = &t
	}
	if end != "" {
		t, err := parseTime(end)
		if err != nil {
			return ov, fmt.Errorf("-end: %w", err)
		}
		ov.End = &t
	}
	if ov.Start != nil && ov.End != nil && !ov.Start.Before(*ov.End) {
		return ov, errors.New("-start must be before -end")
	}
	return ov, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
