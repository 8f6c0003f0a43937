package redis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Config は Redis 接続設定です。
type Config struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig は REDIS_HOST / REDIS_PORT / REDIS_PASSWORD / REDIS_DB から設定を読み込みます。
func LoadConfig() (Config, error) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	cfg := Config{Addr: host + ":" + port, Password: os.Getenv("REDIS_PASSWORD")}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid REDIS_DB %q", v)
		}
		cfg.DB = n
	}
	return cfg, nil
}

// NewRedisClient は Redis クライアントを作成し、接続を確認します。
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 接続確認
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Redis connection failed", "address", cfg.Addr, "error", err)
		_ = rdb.Close()
		return nil, err
	}

	slog.Info("Redis connection successful", "address", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}
