// Command server exposes the stored candles and schedule state over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"

	"market_etl/internal/app/di"
	"market_etl/internal/app/router"
	candlehandler "market_etl/internal/feature/candles/transport/handler"
	candleusecase "market_etl/internal/feature/candles/usecase"
	schedulehandler "market_etl/internal/feature/schedule/transport/handler"
	"market_etl/internal/platform/config"
	jwtmw "market_etl/internal/platform/jwt"
	"market_etl/internal/platform/logger"
	infraredis "market_etl/internal/platform/redis"
)

// cacheRefresh はキャッシュを揃える境界です。スケジューラの15分間隔に合わせます。
const cacheRefresh = 15 * time.Minute

func main() {
	var (
		addr       = flag.String("addr", ":8080", "listen address")
		issueToken = flag.String("issue-token", "", "print a read token for the given subject and exit")
		tokenTTL   = flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	)
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Debug(".env not found; using system environment variables")
	}
	logger.Setup()

	secret := os.Getenv(jwtmw.EnvKeyJWTSecret)
	if *issueToken != "" {
		if secret == "" {
			slog.Error("JWT_SECRET is not set")
			os.Exit(1)
		}
		token, err := jwtmw.NewGenerator(secret, *tokenTTL).GenerateToken(*issueToken, jwtmw.ScopeRead)
		if err != nil {
			slog.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}
	if secret == "" {
		slog.Warn("JWT_SECRET is not set. Every authenticated request will be rejected.")
	}

	proc, err := config.LoadProcess()
	if err != nil {
		slog.Error("failed to load process config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	backends, err := di.OpenBackends(ctx, proc)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	// Redis はキャッシュとしてのみ使う。繋がらなければキャッシュなしで動かす
	rdb := backends.Redis
	if rdb == nil {
		rdb = openCache(ctx)
		if rdb != nil {
			defer func() {
				if err := rdb.Close(); err != nil {
					slog.Error("failed to close Redis client", "error", err)
				}
			}()
		}
	}

	// Usecase
	candlesUC := candleusecase.NewCandlesUsecase(backends.CachedPartitions(rdb, cacheRefresh))

	// Handler
	candlesH := candlehandler.NewCandlesHandler(candlesUC)
	scheduleH := schedulehandler.NewScheduleHandler(backends.ScheduleStates())

	r := router.NewRouter(backends.HealthChecks(), candlesH, scheduleH)
	slog.Info("server listening", "addr", *addr)
	if err := r.Run(*addr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func openCache(ctx context.Context) *redisv9.Client {
	cfg, err := infraredis.LoadConfig()
	if err != nil {
		slog.Warn("Redis config invalid. Running without cache.", "error", err)
		return nil
	}
	rdb, err := infraredis.NewRedisClient(ctx, cfg)
	if err != nil {
		slog.Warn("Redis unavailable. Running without cache.", "error", err)
		return nil
	}
	return rdb
}
