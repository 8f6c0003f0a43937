package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/feature/candles/usecase"
	"market_etl/internal/platform/externalapi/binance/dto"
	"market_etl/internal/shared/errs"
)

// BinanceMarket はBinance外部APIからローソク足を取得するMarketRepository実装です。
type BinanceMarket struct {
	cfg    Config
	client *http.Client
}

// BinanceMarketがMarketRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.MarketRepository = (*BinanceMarket)(nil)

// NewBinanceMarket は指定された設定とHTTPクライアントでBinanceMarketの新しいインスタンスを生成します。
func NewBinanceMarket(cfg Config, client *http.Client) *BinanceMarket {
	return &BinanceMarket{cfg: cfg, client: client}
}

// GetKlines は open_time が [startMS, endMS) のローソク足を古い順に最大 limit 件取得します。
// 通信エラー・429・418・5xx は ErrNetwork、その他の 4xx は ErrValidation でラップします。
func (b *BinanceMarket) GetKlines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]entity.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(startMS, 10))
	// Binance の endTime は閉区間
	q.Set("endTime", strconv.FormatInt(endMS-1, 10))
	q.Set("limit", strconv.Itoa(limit))

	var body []dto.Kline
	if err := b.get(ctx, "/api/v3/klines", q, &body); err != nil {
		return nil, err
	}

	candles := make([]entity.Candle, 0, len(body))
	for i, k := range body {
		c, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// ServerTime は取引所のサーバー時刻を返します。時計のずれ補正に使います。
func (b *BinanceMarket) ServerTime(ctx context.Context) (time.Time, error) {
	var body dto.ServerTimeResponse
	if err := b.get(ctx, "/api/v3/time", nil, &body); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(body.ServerTime).UTC(), nil
}

func (b *BinanceMarket) get(ctx context.Context, path string, q url.Values, out any) error {
	u := b.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	// リクエストオブジェクトを作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	// リクエストを実行
	res, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: binance %s: %w", errs.ErrNetwork, path, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return statusError(path, res)
	}

	// JSONレスポンスをDTOにデコード
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: binance %s: decode: %w", errs.ErrNetwork, path, err)
	}
	return nil
}

func statusError(path string, res *http.Response) error {
	msg := ""
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	var apiErr dto.ErrorResponse
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Msg != "" {
		msg = fmt.Sprintf(" (code=%d msg=%s)", apiErr.Code, apiErr.Msg)
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests, res.StatusCode == http.StatusTeapot, res.StatusCode >= 500:
		return fmt.Errorf("%w: binance http %d %s%s", errs.ErrNetwork, res.StatusCode, path, msg)
	default:
		return fmt.Errorf("%w: binance http %d %s%s", errs.ErrValidation, res.StatusCode, path, msg)
	}
}

func parseKline(k dto.Kline) (entity.Candle, error) {
	if len(k) < dto.KlineFieldCount {
		return entity.Candle{}, fmt.Errorf("expected %d fields, got %d", dto.KlineFieldCount, len(k))
	}

	var (
		c   entity.Candle
		err error
	)
	if err = json.Unmarshal(k[0], &c.OpenTime); err != nil {
		return c, fmt.Errorf("parse open time: %w", err)
	}
	if err = json.Unmarshal(k[6], &c.CloseTime); err != nil {
		return c, fmt.Errorf("parse close time: %w", err)
	}
	if err = json.Unmarshal(k[8], &c.Trades); err != nil {
		return c, fmt.Errorf("parse trades: %w", err)
	}

	// 価格・数量は文字列で返る
	fields := []struct {
		name string
		idx  int
		dst  *float64
	}{
		{"open", 1, &c.Open},
		{"high", 2, &c.High},
		{"low", 3, &c.Low},
		{"close", 4, &c.Close},
		{"volume", 5, &c.Volume},
		{"quote volume", 7, &c.QuoteVolume},
		{"taker buy base", 9, &c.TakerBuyBase},
		{"taker buy quote", 10, &c.TakerBuyQuote},
	}
	for _, f := range fields {
		var s string
		if err = json.Unmarshal(k[f.idx], &s); err != nil {
			return c, fmt.Errorf("parse %s: %w", f.name, err)
		}
		if *f.dst, err = strconv.ParseFloat(s, 64); err != nil {
			return c, fmt.Errorf("parse %s %q: %w", f.name, s, err)
		}
	}
	return c, nil
}
