package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
	"market_etl/internal/shared/ratelimiter"
)

// Clock は現在時刻を返します。取引所のサーバー時刻で補正された実装を注入します。
type Clock interface {
	Now() time.Time
}

// IngestRequest は1パーティション分の取り込み指示です。
type IngestRequest struct {
	Key       entity.PartitionKey
	ATRWindow int // ATR の移動平均本数
	PageLimit int // 1リクエストあたりの取得件数（最大 MaxPageLimit）
	Overrides Overrides
}

// IngestResult は取り込み結果です。
type IngestResult struct {
	Window  entity.Window
	Fetched int          // 取引所から取得したローソク足の数
	Added   int          // パーティションに新規追加された open_time の数
	Rows    []entity.Row // 取り込み後のパーティション全体
}

// IngestUsecase は外部APIからデータを取得し、パーティションに永続化するユースケースを定義します。
// RangeResolver → Extractor → FrameBuilder → Upserter の順に実行します。
type IngestUsecase struct {
	partitions PartitionRepository
	extractor  *Extractor
	upserter   *Upserter
	clock      Clock
}

// NewIngestUsecase は新しい IngestUsecase を作成します。
func NewIngestUsecase(
	market MarketRepository,
	partitions PartitionRepository,
	rateLimiter ratelimiter.RateLimiterInterface,
	clock Clock,
	policy RetryPolicy,
) *IngestUsecase {
	return &IngestUsecase{
		partitions: partitions,
		extractor:  NewExtractor(market, rateLimiter, policy),
		upserter:   NewUpserter(partitions),
		clock:      clock,
	}
}

// Run は1パーティション分のパイプラインを実行します。
// いずれかの段階で失敗した場合、パーティションは変更されません。
func (iu *IngestUsecase) Run(ctx context.Context, req IngestRequest) (IngestResult, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Key.Ticker))
	if ticker == "" {
		return IngestResult{}, fmt.Errorf("%w: ticker is required", errs.ErrValidation)
	}
	iv, err := entity.ParseInterval(req.Key.Interval)
	if err != nil {
		return IngestResult{}, err
	}
	key := entity.PartitionKey{Ticker: ticker, Interval: iv.Code, Path: req.Key.Path}

	existing, found, err := iu.partitions.Load(ctx, key)
	if err != nil {
		return IngestResult{}, err
	}

	var last *int64
	if found && len(existing) > 0 {
		t := existing[len(existing)-1].OpenTime
		last = &t
	}
	w, err := ResolveRange(iv.Code, last, iu.clock.Now(), req.Overrides)
	if err != nil {
		return IngestResult{}, err
	}

	res := IngestResult{Window: w, Rows: existing}
	if w.Empty() {
		slog.Info("no new candles to fetch", "partition", key.String(), "window_start", w.Start, "window_end", w.End)
		return res, nil
	}

	raw, err := iu.extractor.Extract(ctx, ticker, iv, w, req.PageLimit)
	if err != nil {
		return res, err
	}
	res.Fetched = len(raw)

	window := req.ATRWindow
	if window <= 0 {
		window = DefaultATRWindow
	}
	rows := BuildFrame(existing, raw, window)

	up, err := iu.upserter.Upsert(ctx, key, existing, rows)
	if err != nil {
		return res, err
	}
	res.Rows = up.Rows
	res.Added = up.Added

	slog.Info("ingest finished",
		"partition", key.String(),
		"window_start", w.Start,
		"window_end", w.End,
		"fetched", res.Fetched,
		"rows_added", res.Added,
		"rows_total", len(res.Rows),
	)
	return res, nil
}
