// Package redisstate stores scheduler state, alert state and the scheduler lock in Redis,
// for deployments where several hosts share one schedule.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	alertentity "market_etl/internal/feature/alerts/domain/entity"
	alertusecase "market_etl/internal/feature/alerts/usecase"
	"market_etl/internal/feature/schedule/domain/entity"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/shared/errs"
)

// hashStore keeps JSON values in one Redis hash.
type hashStore[V any] struct {
	client *redis.Client
	key    string
}

func (h hashStore[V]) get(ctx context.Context, field string) (V, bool, error) {
	var v V
	data, err := h.client.HGet(ctx, h.key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("%w: redis hget %s: %w", errs.ErrStorage, h.key, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("%w: corrupt state %s/%s: %w", errs.ErrStorage, h.key, field, err)
	}
	return v, true, nil
}

func (h hashStore[V]) put(ctx context.Context, field string, v V) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode state: %w", errs.ErrStorage, err)
	}
	if err := h.client.HSet(ctx, h.key, field, data).Err(); err != nil {
		return fmt.Errorf("%w: redis hset %s: %w", errs.ErrStorage, h.key, err)
	}
	return nil
}

func (h hashStore[V]) list(ctx context.Context) (map[string]V, error) {
	raw, err := h.client.HGetAll(ctx, h.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis hgetall %s: %w", errs.ErrStorage, h.key, err)
	}
	out := make(map[string]V, len(raw))
	for field, data := range raw {
		var v V
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("%w: corrupt state %s/%s: %w", errs.ErrStorage, h.key, field, err)
		}
		out[field] = v
	}
	return out, nil
}

// ScheduleStateStore はエントリごとの最終実行情報を "<prefix>:schedule_state" ハッシュに保存します。
type ScheduleStateStore struct {
	h hashStore[entity.State]
}

var _ scheduleusecase.StateStore = (*ScheduleStateStore)(nil)

// NewScheduleStateStore creates a new ScheduleStateStore.
func NewScheduleStateStore(client *redis.Client, prefix string) *ScheduleStateStore {
	return &ScheduleStateStore{h: hashStore[entity.State]{client: client, key: prefix + ":schedule_state"}}
}

func (s *ScheduleStateStore) Get(ctx context.Context, key string) (entity.State, bool, error) {
	return s.h.get(ctx, key)
}

func (s *ScheduleStateStore) Put(ctx context.Context, key string, st entity.State) error {
	return s.h.put(ctx, key, st)
}

func (s *ScheduleStateStore) List(ctx context.Context) (map[string]entity.State, error) {
	return s.h.list(ctx)
}

// AlertStateStore はアラートの通知履歴を "<prefix>:alerts_state" ハッシュに保存します。
type AlertStateStore struct {
	h hashStore[alertentity.State]
}

var _ alertusecase.StateStore = (*AlertStateStore)(nil)

// NewAlertStateStore creates a new AlertStateStore.
func NewAlertStateStore(client *redis.Client, prefix string) *AlertStateStore {
	return &AlertStateStore{h: hashStore[alertentity.State]{client: client, key: prefix + ":alerts_state"}}
}

func (s *AlertStateStore) Get(ctx context.Context, key string) (alertentity.State, bool, error) {
	return s.h.get(ctx, key)
}

func (s *AlertStateStore) Put(ctx context.Context, key string, st alertentity.State) error {
	return s.h.put(ctx, key, st)
}
