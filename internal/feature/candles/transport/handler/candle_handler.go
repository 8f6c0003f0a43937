// Package handler はcandlesフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/feature/candles/transport/http/dto"
	"market_etl/internal/feature/candles/usecase"
	"market_etl/internal/shared/errs"
)

// CandlesUsecase はローソク足データ参照のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type CandlesUsecase interface {
	GetCandles(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error)
}

// CandlesHandler はローソク足データのHTTPリクエストを処理します。
type CandlesHandler struct {
	uc CandlesUsecase
}

// NewCandlesHandler は指定されたusecaseでCandlesHandlerの新しいインスタンスを生成します。
func NewCandlesHandler(uc CandlesUsecase) *CandlesHandler {
	return &CandlesHandler{uc: uc}
}

// GetCandlesHandler は銘柄と時間足を受け取り、保持ビューのローソク足をJSONで返します。
//
// エンドポイント例:
// GET /candles/:ticker/:freq?months=3&outputsize=500
func (h *CandlesHandler) GetCandlesHandler(c *gin.Context) {
	ticker := c.Param("ticker")
	freq := c.Param("freq")
	// 文字列を整数に変換（不正値は0となり usecase 側でデフォルト値に置き換える）
	months, _ := strconv.Atoi(c.Query("months"))
	outputsize, _ := strconv.Atoi(c.Query("outputsize"))

	rows, err := h.uc.GetCandles(c.Request.Context(), ticker, freq, months, outputsize)
	if err != nil {
		c.JSON(statusFor(err), dto.ErrorResponse{Error: err.Error()})
		return
	}

	// データをフォーマット
	out := make([]dto.CandleResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.CandleResponse{
			Time:      r.Time().Format(time.RFC3339),
			OpenTime:  r.OpenTime,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
			TrueRange: r.TrueRange,
			ATR:       r.ATR,
		})
	}

	c.JSON(http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrPartitionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
