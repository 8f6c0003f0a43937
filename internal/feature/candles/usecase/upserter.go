package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

// PartitionRepository は (銘柄, 時間足) ごとのパーティションを永続化するリポジトリです。
// Save は書き込み完了まで既存パーティションを置き換えてはいけません（atomic replace）。
type PartitionRepository interface {
	PartitionReader
	Save(ctx context.Context, key entity.PartitionKey, rows []entity.Row) error
}

// UpsertResult はマージ結果です。
type UpsertResult struct {
	Rows    []entity.Row // マージ後のパーティション全体（昇順）
	Added   int          // 既存に無かった open_time の数
	Written bool         // パーティションを書き込んだかどうか
}

// Upserter は新しい行を既存パーティションにマージして保存します。
type Upserter struct {
	partitions PartitionRepository
}

// NewUpserter は新しい Upserter を作成します。
func NewUpserter(partitions PartitionRepository) *Upserter {
	return &Upserter{partitions: partitions}
}

// Upsert は existing と incoming をマージし、変化があればパーティションを保存します。
// 同じ open_time は incoming 側の行で置き換えます。
// 保存に失敗した場合は StorageError を返し、既存パーティションはそのまま残ります。
func (u *Upserter) Upsert(ctx context.Context, key entity.PartitionKey, existing, incoming []entity.Row) (UpsertResult, error) {
	if len(incoming) == 0 {
		return UpsertResult{Rows: existing}, nil
	}

	merged, added := MergeRows(existing, incoming)
	if rowsEqual(existing, merged) {
		slog.Debug("partition unchanged, skipping write", "partition", key.String())
		return UpsertResult{Rows: existing}, nil
	}

	if err := u.partitions.Save(ctx, key, merged); err != nil {
		if !errors.Is(err, errs.ErrStorage) {
			err = fmt.Errorf("%w: save %s: %w", errs.ErrStorage, key.String(), err)
		}
		return UpsertResult{}, err
	}
	return UpsertResult{Rows: merged, Added: added, Written: true}, nil
}

// MergeRows は open_time をキーに2つの行集合をマージし、昇順に並べて返します。
// 重複キーは incoming の値を優先します。戻り値の int は新規キーの数です。
func MergeRows(existing, incoming []entity.Row) ([]entity.Row, int) {
	merged := make([]entity.Row, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	index := make(map[int64]int, len(existing)+len(incoming))
	for i, r := range merged {
		index[r.OpenTime] = i
	}

	added := 0
	for _, r := range incoming {
		if i, ok := index[r.OpenTime]; ok {
			merged[i] = r
			continue
		}
		index[r.OpenTime] = len(merged)
		merged = append(merged, r)
		added++
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].OpenTime < merged[j].OpenTime })
	return merged, added
}

func rowsEqual(a, b []entity.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
