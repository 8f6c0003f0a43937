// Package adapters はローソク足パーティションの永続化実装を提供します。
package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/parquet-go/parquet-go"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/feature/candles/usecase"
	"market_etl/internal/shared/errs"
)

// DefaultDataDir はパーティションファイルのデフォルト保存先です。
const DefaultDataDir = "data"

// candleRecord is the on-disk Parquet row layout of a partition.
type candleRecord struct {
	OpenTime      int64    `parquet:"open_time"`
	Open          float64  `parquet:"open"`
	High          float64  `parquet:"high"`
	Low           float64  `parquet:"low"`
	Close         float64  `parquet:"close"`
	Volume        float64  `parquet:"volume"`
	CloseTime     int64    `parquet:"close_time"`
	QuoteVolume   float64  `parquet:"quote_volume"`
	Trades        int64    `parquet:"trades"`
	TakerBuyBase  float64  `parquet:"taker_buy_base"`
	TakerBuyQuote float64  `parquet:"taker_buy_quote"`
	TrueRange     float64  `parquet:"true_range"`
	ATR           *float64 `parquet:"atr,optional"`
}

type encodeFunc func(w io.Writer, recs []candleRecord) error

func writeParquet(w io.Writer, recs []candleRecord) error {
	return parquet.Write(w, recs)
}

type candleParquet struct {
	dir    string
	encode encodeFunc
}

var _ usecase.PartitionRepository = (*candleParquet)(nil)

// NewCandleParquetRepository は dir 配下に (銘柄, 時間足) ごとの Parquet ファイルを置くリポジトリを返します。
func NewCandleParquetRepository(dir string) *candleParquet {
	if dir == "" {
		dir = DefaultDataDir
	}
	return &candleParquet{dir: dir, encode: writeParquet}
}

// Path はパーティションのファイルパスを返します。key.Path が指定されていればそれを使います。
func (r *candleParquet) Path(key entity.PartitionKey) string {
	if key.Path != "" {
		return key.Path
	}
	name := fmt.Sprintf("market_data_%s_%s.parquet", strings.ToUpper(key.Ticker), strings.ToLower(key.Interval))
	return filepath.Join(r.dir, name)
}

// Load はパーティションを読み込みます。ファイルが無い場合は found=false を返します。
// 読み込めないファイルは StorageError とし、呼び出し側で上書きさせません。
func (r *candleParquet) Load(ctx context.Context, key entity.PartitionKey) ([]entity.Row, bool, error) {
	path := r.Path(key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: stat %s: %w", errs.ErrStorage, path, err)
	}

	recs, err := parquet.ReadFile[candleRecord](path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %s: %w", errs.ErrStorage, path, err)
	}

	rows := make([]entity.Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, toRow(rec))
	}
	return rows, true, nil
}

// Save は一時ファイルに書き出してから rename で置き換えます。
// 途中で失敗した場合、一時ファイルは削除され既存ファイルは変更されません。
func (r *candleParquet) Save(ctx context.Context, key entity.PartitionKey, rows []entity.Row) error {
	path := r.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", errs.ErrStorage, filepath.Dir(path), err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", errs.ErrStorage, path, err)
	}
	defer func() { _ = pf.Cleanup() }()

	recs := make([]candleRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, toRecord(row))
	}
	if err := r.encode(pf, recs); err != nil {
		return fmt.Errorf("%w: encode %s: %w", errs.ErrStorage, path, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("%w: replace %s: %w", errs.ErrStorage, path, err)
	}
	return nil
}

func toRecord(r entity.Row) candleRecord {
	return candleRecord{
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

func toRow(rec candleRecord) entity.Row {
	return entity.Row{
		Candle: entity.Candle{
			OpenTime:      rec.OpenTime,
			Open:          rec.Open,
			High:          rec.High,
			Low:           rec.Low,
			Close:         rec.Close,
			Volume:        rec.Volume,
			CloseTime:     rec.CloseTime,
			QuoteVolume:   rec.QuoteVolume,
			Trades:        rec.Trades,
			TakerBuyBase:  rec.TakerBuyBase,
			TakerBuyQuote: rec.TakerBuyQuote,
		},
		TrueRange: rec.TrueRange,
		ATR:       rec.ATR,
	}
}
