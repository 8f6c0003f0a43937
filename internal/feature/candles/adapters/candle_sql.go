package adapters

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/feature/candles/usecase"
	"market_etl/internal/shared/errs"
)

const sqlBatchSize = 500

type candleSQL struct {
	db *gorm.DB
}

var _ usecase.PartitionRepository = (*candleSQL)(nil)

// NewCandleSQLRepository はパーティションを1テーブルに保存するリポジトリを返します。
// 1パーティションの置き換えは1トランザクションで行います。
func NewCandleSQLRepository(db *gorm.DB) *candleSQL {
	return &candleSQL{db: db}
}

type CandleModel struct {
	ID       uint   `gorm:"primaryKey"`
	Symbol   string `gorm:"size:32;not null;uniqueIndex:candle_sym_int_time,priority:1"`
	Interval string `gorm:"column:freq;size:16;not null;uniqueIndex:candle_sym_int_time,priority:2"`
	OpenTime int64  `gorm:"not null;uniqueIndex:candle_sym_int_time,priority:3"`

	Open          float64 `gorm:"not null"`
	High          float64 `gorm:"not null"`
	Low           float64 `gorm:"not null"`
	Close         float64 `gorm:"not null"`
	Volume        float64 `gorm:"not null;default:0"`
	CloseTime     int64   `gorm:"not null;default:0"`
	QuoteVolume   float64 `gorm:"not null;default:0"`
	Trades        int64   `gorm:"not null;default:0"`
	TakerBuyBase  float64 `gorm:"not null;default:0"`
	TakerBuyQuote float64 `gorm:"not null;default:0"`
	TrueRange     float64 `gorm:"not null;default:0"`
	ATR           *float64
}

func (CandleModel) TableName() string {
	return "candles"
}

func toModel(key entity.PartitionKey, r entity.Row) CandleModel {
	return CandleModel{
		Symbol:        strings.ToUpper(key.Ticker),
		Interval:      strings.ToLower(key.Interval),
		OpenTime:      r.OpenTime,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		Volume:        r.Volume,
		CloseTime:     r.CloseTime,
		QuoteVolume:   r.QuoteVolume,
		Trades:        r.Trades,
		TakerBuyBase:  r.TakerBuyBase,
		TakerBuyQuote: r.TakerBuyQuote,
		TrueRange:     r.TrueRange,
		ATR:           r.ATR,
	}
}

// Save はパーティションの行を丸ごと置き換えます。途中で失敗した場合はロールバックされます。
func (r *candleSQL) Save(ctx context.Context, key entity.PartitionKey, rows []entity.Row) error {
	ms := make([]CandleModel, 0, len(rows))
	for _, row := range rows {
		ms = append(ms, toModel(key, row))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ? AND freq = ?", strings.ToUpper(key.Ticker), strings.ToLower(key.Interval)).
			Delete(&CandleModel{}).Error; err != nil {
			return err
		}
		if len(ms) == 0 {
			return nil
		}
		return tx.CreateInBatches(&ms, sqlBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", errs.ErrStorage, key.String(), err)
	}
	return nil
}

// Load はパーティションを open_time 昇順で返します。
func (r *candleSQL) Load(ctx context.Context, key entity.PartitionKey) ([]entity.Row, bool, error) {
	var ms []CandleModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND freq = ?", strings.ToUpper(key.Ticker), strings.ToLower(key.Interval)).
		Order("open_time ASC").
		Find(&ms).Error
	if err != nil {
		return nil, false, fmt.Errorf("%w: load %s: %w", errs.ErrStorage, key.String(), err)
	}
	if len(ms) == 0 {
		return nil, false, nil
	}

	out := make([]entity.Row, 0, len(ms))
	for _, m := range ms {
		out = append(out, entity.Row{
			Candle: entity.Candle{
				OpenTime:      m.OpenTime,
				Open:          m.Open,
				High:          m.High,
				Low:           m.Low,
				Close:         m.Close,
				Volume:        m.Volume,
				CloseTime:     m.CloseTime,
				QuoteVolume:   m.QuoteVolume,
				Trades:        m.Trades,
				TakerBuyBase:  m.TakerBuyBase,
				TakerBuyQuote: m.TakerBuyQuote,
			},
			TrueRange: m.TrueRange,
			ATR:       m.ATR,
		})
	}
	return out, true, nil
}
