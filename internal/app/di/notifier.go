package di

import (
	"market_etl/internal/feature/alerts/adapters/dispatch"
	"market_etl/internal/feature/alerts/adapters/telegram"
	"market_etl/internal/feature/alerts/adapters/webhook"
	"market_etl/internal/feature/alerts/domain/entity"
	"market_etl/internal/feature/alerts/usecase"
	infrahttp "market_etl/internal/platform/http"
)

// NewNotifier は通知チャンネルごとの送信先を束ねた Notifier を作成します。
func NewNotifier() *dispatch.Router {
	tgCfg := telegram.LoadConfig()
	return dispatch.NewRouter(map[string]usecase.Notifier{
		entity.ChannelTelegram: telegram.NewNotifier(tgCfg, infrahttp.NewHTTPClient(tgCfg.Timeout)),
		entity.ChannelWebhook:  webhook.NewNotifier(infrahttp.NewHTTPClient(tgCfg.Timeout)),
	})
}
