package router

import (
	"github.com/gin-gonic/gin"

	candlehandler "market_etl/internal/feature/candles/transport/handler"
	schedulehandler "market_etl/internal/feature/schedule/transport/handler"
	"market_etl/internal/platform/http/handler"
	jwtmw "market_etl/internal/platform/jwt"
)

func NewRouter(checks map[string]handler.Check, candles *candlehandler.CandlesHandler,
	schedule *schedulehandler.ScheduleHandler) *gin.Engine {
	r := gin.Default()

	// 認証不要
	// 導通確認用
	health := handler.NewHealth(checks)
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)

	// 認証必須のルート
	// etl:read スコープを持つサービストークンが必要
	auth := r.Group("/")
	auth.Use(jwtmw.AuthRequired(jwtmw.ScopeRead))
	{
		auth.GET("/candles/:ticker/:freq", candles.GetCandlesHandler)
		auth.GET("/schedule/state", schedule.GetStates)
	}

	return r
}
