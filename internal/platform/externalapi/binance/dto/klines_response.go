// Package dto はBinance APIレスポンスのデータ転送オブジェクトを定義します。
package dto

import "encoding/json"

// Kline は /api/v3/klines が返す1本分の配列です。
//
//	[openTime, "open", "high", "low", "close", "volume", closeTime,
//	 "quoteVolume", trades, "takerBuyBase", "takerBuyQuote", "ignore"]
type Kline []json.RawMessage

// KlineFieldCount は Kline が最低限持つべき要素数です。
const KlineFieldCount = 11

// ServerTimeResponse は /api/v3/time のレスポンスです。
type ServerTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// ErrorResponse はBinanceがエラー時に返すJSONです。
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
