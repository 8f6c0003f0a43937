package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"market_etl/internal/feature/schedule/domain/entity"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/shared/errs"
)

// releaseScript は保持者が一致する場合のみトークンを削除します。
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return -1 end
if cjson.decode(v)["holder"] ~= ARGV[1] then return 0 end
redis.call("DEL", KEYS[1])
return 1
`)

// Lock は SET NX によるスケジューラロックです。
// トークンには maxAge の TTL を付け、保持者が異常終了しても期限切れで解放されます。
type Lock struct {
	client *redis.Client
	key    string
	maxAge time.Duration
	holder string
	now    func() time.Time
}

var _ scheduleusecase.Locker = (*Lock)(nil)

// NewLock は "<prefix>:scheduler_lock" キーを使うロックを作成します。maxAge が 0 の場合は期限を付けません。
func NewLock(client *redis.Client, prefix string, maxAge time.Duration) *Lock {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Lock{
		client: client,
		key:    prefix + ":scheduler_lock",
		maxAge: maxAge,
		holder: fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()),
		now:    time.Now,
	}
}

func (l *Lock) Acquire(ctx context.Context) (entity.LockToken, error) {
	token := entity.LockToken{Holder: l.holder, AcquiredAt: l.now().UTC()}
	data, err := json.Marshal(token)
	if err != nil {
		return entity.LockToken{}, fmt.Errorf("%w: encode token: %w", errs.ErrLock, err)
	}

	ok, err := l.client.SetNX(ctx, l.key, data, l.maxAge).Result()
	if err != nil {
		return entity.LockToken{}, fmt.Errorf("%w: redis setnx %s: %w", errs.ErrLock, l.key, err)
	}
	if !ok {
		holder := "unknown"
		if raw, gerr := l.client.Get(ctx, l.key).Bytes(); gerr == nil {
			var current entity.LockToken
			if json.Unmarshal(raw, &current) == nil {
				holder = current.Holder
			}
		}
		return entity.LockToken{}, fmt.Errorf("%w: held by %s", errs.ErrLock, holder)
	}
	return token, nil
}

func (l *Lock) Release(ctx context.Context, token entity.LockToken) error {
	res, err := releaseScript.Run(ctx, l.client, []string{l.key}, token.Holder).Int()
	if err != nil {
		return fmt.Errorf("%w: redis release %s: %w", errs.ErrLock, l.key, err)
	}
	if res != 1 {
		return fmt.Errorf("%w: lock lost by %s", errs.ErrLock, token.Holder)
	}
	return nil
}
