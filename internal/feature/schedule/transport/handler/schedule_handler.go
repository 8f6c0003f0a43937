// Package handler はscheduleフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"market_etl/internal/feature/schedule/domain/entity"
)

// StateLister はエントリごとの最終実行情報を返します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type StateLister interface {
	List(ctx context.Context) (map[string]entity.State, error)
}

// StateResponse はエントリ1件分のレスポンスDTOです。
type StateResponse struct {
	Entry      string `json:"entry"`
	LastRunAt  string `json:"last_run_at"`
	LastStatus string `json:"last_status"`
	RowsAdded  int    `json:"rows_added"`
	LastError  string `json:"last_error,omitempty"`
}

// ScheduleHandler はスケジュール状態のHTTPリクエストを処理します。
type ScheduleHandler struct {
	states StateLister
}

// NewScheduleHandler は新しい ScheduleHandler を生成します。
func NewScheduleHandler(states StateLister) *ScheduleHandler {
	return &ScheduleHandler{states: states}
}

// GetStates は全エントリの最終実行情報をエントリキー順に返します。
//
// エンドポイント例:
// GET /schedule/state
func (h *ScheduleHandler) GetStates(c *gin.Context) {
	states, err := h.states.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]StateResponse, 0, len(keys))
	for _, k := range keys {
		st := states[k]
		out = append(out, StateResponse{
			Entry:      k,
			LastRunAt:  st.LastRunAt.UTC().Format(time.RFC3339),
			LastStatus: string(st.LastStatus),
			RowsAdded:  st.RowsAdded,
			LastError:  st.LastError,
		})
	}
	c.JSON(http.StatusOK, out)
}
