// Package usecase はローソク足の取得・加工・永続化のビジネスロジックを実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

const (
	// DefaultOutputSize はデフォルトのローソク足返却件数です。
	DefaultOutputSize = 500
	// MaxOutputSize はローソク足の最大返却件数です。
	MaxOutputSize = 5000
)

// ErrPartitionNotFound はパーティションがまだ作成されていない場合のエラーです。
var ErrPartitionNotFound = errors.New("partition not found")

// PartitionReader はパーティションの読み取りレイヤーを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type PartitionReader interface {
	// Load はパーティション全体を昇順で返します。存在しない場合は found=false です。
	Load(ctx context.Context, key entity.PartitionKey) (rows []entity.Row, found bool, err error)
}

// candlesUsecase は永続化済みローソク足を参照するユースケースです。
type candlesUsecase struct {
	partitions PartitionReader
}

// NewCandlesUsecase はcandlesUsecaseの新しいインスタンスを生成します。
func NewCandlesUsecase(partitions PartitionReader) *candlesUsecase {
	return &candlesUsecase{partitions: partitions}
}

// GetCandles は保持ビュー（直近 months か月）のうち末尾 outputsize 件を返します。
func (cu *candlesUsecase) GetCandles(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("%w: ticker is required", errs.ErrValidation)
	}
	iv, err := entity.ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = DefaultRetainedMonths
	}
	if outputsize <= 0 || outputsize > MaxOutputSize {
		outputsize = DefaultOutputSize
	}

	key := entity.PartitionKey{Ticker: strings.ToUpper(ticker), Interval: iv.Code}
	rows, found, err := cu.partitions.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, key.String())
	}

	view := RetainedView(rows, months)
	if len(view) > outputsize {
		view = view[len(view)-outputsize:]
	}
	return view, nil
}
