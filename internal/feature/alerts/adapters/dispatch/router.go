// Package dispatch routes alert notifications to the notifier of their channel.
package dispatch

import (
	"context"
	"fmt"

	"market_etl/internal/feature/alerts/domain/entity"
	"market_etl/internal/feature/alerts/usecase"
	"market_etl/internal/shared/errs"
)

// Router は Notification.Channel に応じて送信先の Notifier を選びます。
type Router struct {
	notifiers map[string]usecase.Notifier
}

var _ usecase.Notifier = (*Router)(nil)

// NewRouter はチャンネル名から Notifier へのマップで Router を作成します。
func NewRouter(notifiers map[string]usecase.Notifier) *Router {
	return &Router{notifiers: notifiers}
}

func (r *Router) Send(ctx context.Context, n entity.Notification) error {
	notifier, ok := r.notifiers[n.Channel]
	if !ok || notifier == nil {
		return fmt.Errorf("%w: no notifier for channel %q", errs.ErrAlertDispatch, n.Channel)
	}
	return notifier.Send(ctx, n)
}
