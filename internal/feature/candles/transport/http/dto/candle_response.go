// Package dto はcandles APIのレスポンスDTOを定義します。
package dto

// CandleResponse はロウソク足データのレスポンスDTOです。
type CandleResponse struct {
	Time      string   `json:"time"`       // open_time（RFC3339, UTC）
	OpenTime  int64    `json:"open_time"`  // open_time（epoch ms）
	Open      float64  `json:"open"`       // 始値
	High      float64  `json:"high"`       // 高値
	Low       float64  `json:"low"`        // 安値
	Close     float64  `json:"close"`      // 終値
	Volume    float64  `json:"volume"`     // 出来高
	TrueRange float64  `json:"true_range"` // true range
	ATR       *float64 `json:"atr"`        // ウォームアップ中は null
}

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}
