package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/feature/candles/transport/handler"
	"market_etl/internal/feature/candles/usecase"
	"market_etl/internal/shared/errs"
)

// mockCandlesUsecase はCandlesUsecaseインターフェースのモック実装です。
type mockCandlesUsecase struct {
	GetCandlesFunc func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error)
}

func (m *mockCandlesUsecase) GetCandles(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
	return m.GetCandlesFunc(ctx, ticker, interval, months, outputsize)
}

// TestCandlesHandler_GetCandlesHandler はGetCandlesHandlerのHTTPリクエスト/レスポンス処理をテストします。
func TestCandlesHandler_GetCandlesHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// テスト用の固定時刻
	testTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	atr := 2.5

	tests := []struct {
		name           string
		url            string
		mockGetCandles func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error)
		expectedStatus int
		expectedBody   string // JSON文字列として比較
	}{
		{
			name: "success: all parameters specified",
			url:  "/candles/BTCUSDT/1h?months=1&outputsize=10",
			mockGetCandles: func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
				assert.Equal(t, "BTCUSDT", ticker)
				assert.Equal(t, "1h", interval)
				assert.Equal(t, 1, months)
				assert.Equal(t, 10, outputsize)
				return []entity.Row{
					{Candle: entity.Candle{OpenTime: testTime.UnixMilli(), Open: 100, High: 110, Low: 90, Close: 105, Volume: 1000}, TrueRange: 20, ATR: &atr},
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody: fmt.Sprintf(`[{"time":"2024-01-01T00:00:00Z","open_time":%d,"open":100,"high":110,"low":90,"close":105,"volume":1000,"true_range":20,"atr":2.5}]`,
				testTime.UnixMilli()),
		},
		{
			name: "success: warm-up rows have null atr",
			url:  "/candles/BTCUSDT/1h",
			mockGetCandles: func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
				assert.Equal(t, 0, months)
				assert.Equal(t, 0, outputsize)
				return []entity.Row{{Candle: entity.Candle{OpenTime: testTime.UnixMilli()}}}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody: fmt.Sprintf(`[{"time":"2024-01-01T00:00:00Z","open_time":%d,"open":0,"high":0,"low":0,"close":0,"volume":0,"true_range":0,"atr":null}]`,
				testTime.UnixMilli()),
		},
		{
			name: "error: unknown interval",
			url:  "/candles/BTCUSDT/7m",
			mockGetCandles: func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
				return nil, fmt.Errorf("%w: unsupported interval", errs.ErrValidation)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"validation error: unsupported interval"}`,
		},
		{
			name: "error: partition not found",
			url:  "/candles/ETHUSDT/1h",
			mockGetCandles: func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
				return nil, usecase.ErrPartitionNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"partition not found"}`,
		},
		{
			name: "error: usecase returns error",
			url:  "/candles/BTCUSDT/1h",
			mockGetCandles: func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
				return nil, errors.New("internal server error")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"internal server error"}`,
		},
		{
			name: "edge case: invalid outputsize string is passed as zero",
			url:  "/candles/BTCUSDT/1h?outputsize=invalid",
			mockGetCandles: func(ctx context.Context, ticker, interval string, months, outputsize int) ([]entity.Row, error) {
				// デフォルト値への変換はusecaseレイヤーで処理される
				assert.Equal(t, 0, outputsize)
				return []entity.Row{}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `[]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUC := &mockCandlesUsecase{
				GetCandlesFunc: tt.mockGetCandles,
			}

			h := handler.NewCandlesHandler(mockUC)

			router := gin.New()
			router.GET("/candles/:ticker/:freq", h.GetCandlesHandler)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.url, io.NopCloser(bytes.NewReader(nil)))

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}
