package di

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	alertusecase "market_etl/internal/feature/alerts/usecase"
	candleadapters "market_etl/internal/feature/candles/adapters"
	candleusecase "market_etl/internal/feature/candles/usecase"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/platform/cache"
	"market_etl/internal/platform/config"
	infradb "market_etl/internal/platform/db"
	"market_etl/internal/platform/filestate"
	"market_etl/internal/platform/http/handler"
	infraredis "market_etl/internal/platform/redis"
	"market_etl/internal/platform/redisstate"
	"market_etl/internal/platform/sqlstate"
)

// Backends は設定に応じて開いた DB / Redis 接続を保持します。使わないものは nil です。
type Backends struct {
	Process config.Process
	DB      *gorm.DB
	Redis   *redisv9.Client
}

// OpenBackends は Process 設定が必要とする接続だけを開きます。
func OpenBackends(ctx context.Context, proc config.Process) (*Backends, error) {
	b := &Backends{Process: proc}

	if proc.PartitionBackend == config.BackendSQL || proc.StateBackend == config.BackendSQL {
		db, err := infradb.OpenDB()
		if err != nil {
			return nil, err
		}
		b.DB = db
	}
	if proc.StateBackend == config.BackendRedis || proc.LockBackend == config.BackendRedis {
		cfg, err := infraredis.LoadConfig()
		if err != nil {
			return nil, err
		}
		rdb, err := infraredis.NewRedisClient(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("redis backend: %w", err)
		}
		b.Redis = rdb
	}
	return b, nil
}

// Close は開いた接続を閉じます。
func (b *Backends) Close() {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			slog.Error("failed to close Redis client", "error", err)
		}
	}
	if b.DB != nil {
		if sqlDB, err := b.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Partitions は PARTITION_BACKEND に応じたパーティションリポジトリを返します。
func (b *Backends) Partitions() candleusecase.PartitionRepository {
	if b.Process.PartitionBackend == config.BackendSQL {
		return candleadapters.NewCandleSQLRepository(b.DB)
	}
	return candleadapters.NewCandleParquetRepository(b.Process.DataDir)
}

// CachedPartitions は読み取りAPI向けに Redis キャッシュで包んだリポジトリを返します。
// rdb が nil の場合はキャッシュなしで動作します。
func (b *Backends) CachedPartitions(rdb *redisv9.Client, refresh time.Duration) *cache.CachingPartitionRepository {
	c := cache.NewCachingPartitionRepository(rdb, refresh, b.Partitions(), b.Process.RedisNamespace+":candles")
	c.SetRefreshBoundary(refresh)
	return c
}

// ScheduleStates は STATE_BACKEND に応じたスケジュール状態ストアを返します。
func (b *Backends) ScheduleStates() scheduleusecase.StateStore {
	switch b.Process.StateBackend {
	case config.BackendRedis:
		return redisstate.NewScheduleStateStore(b.Redis, b.Process.RedisNamespace)
	case config.BackendSQL:
		return sqlstate.NewScheduleStateStore(b.DB)
	default:
		return filestate.NewScheduleStateStore(b.Process.StateDir)
	}
}

// AlertStates は STATE_BACKEND に応じたアラート状態ストアを返します。
func (b *Backends) AlertStates() alertusecase.StateStore {
	switch b.Process.StateBackend {
	case config.BackendRedis:
		return redisstate.NewAlertStateStore(b.Redis, b.Process.RedisNamespace)
	case config.BackendSQL:
		return sqlstate.NewAlertStateStore(b.DB)
	default:
		return filestate.NewAlertStateStore(b.Process.StateDir)
	}
}

// Locker は LOCK_BACKEND に応じたスケジューラロックを返します。
func (b *Backends) Locker() scheduleusecase.Locker {
	if b.Process.LockBackend == config.BackendRedis {
		return redisstate.NewLock(b.Redis, b.Process.RedisNamespace, b.Process.LockMaxAge)
	}
	return filestate.NewFileLock(b.Process.StateDir, b.Process.LockMaxAge)
}

// HealthChecks は有効な依存先の疎通確認を返します。
func (b *Backends) HealthChecks() map[string]handler.Check {
	checks := map[string]handler.Check{}
	if b.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return b.Redis.Ping(ctx).Err() }
	}
	if b.DB != nil {
		checks["db"] = func(ctx context.Context) error {
			sqlDB, err := b.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if b.Process.PartitionBackend == config.BackendParquet {
		checks["data_dir"] = func(ctx context.Context) error {
			_, err := os.Stat(b.Process.DataDir)
			return err
		}
	}
	return checks
}
