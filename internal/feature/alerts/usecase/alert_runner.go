// Package usecase はアラートの判定・スロットリング・通知を実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market_etl/internal/feature/alerts/domain/entity"
	candle "market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

// StateStore はアラートキーごとの通知履歴を永続化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type StateStore interface {
	Get(ctx context.Context, key string) (entity.State, bool, error)
	Put(ctx context.Context, key string, st entity.State) error
}

// Notifier は通知を送信します。成功を返した場合のみ配信済みとみなします。
type Notifier interface {
	Send(ctx context.Context, n entity.Notification) error
}

// Clock は現在時刻を返します。
type Clock interface {
	Now() time.Time
}

// AlertRunner はルールを評価し、スロットリングを通過したシグナルを通知します。
type AlertRunner struct {
	rules    []entity.Rule
	states   StateStore
	notifier Notifier
	clock    Clock
}

// NewAlertRunner は新しい AlertRunner を作成します。
func NewAlertRunner(rules []entity.Rule, states StateStore, notifier Notifier, clock Clock) *AlertRunner {
	return &AlertRunner{rules: rules, states: states, notifier: notifier, clock: clock}
}

// Evaluate は ticker/interval に一致する有効なルールを rows の最新足で評価します。
//
// 通知するのは、同じキーで過去に通知が無いか、前回通知から throttle_seconds 以上経過した場合のみです。
// 通知履歴は配信に成功した場合だけ更新します。配信失敗は ErrAlertDispatch としてまとめて返します。
func (ar *AlertRunner) Evaluate(ctx context.Context, ticker, interval string, rows []candle.Row) error {
	var failures []error
	for _, rule := range ar.rules {
		if !rule.Matches(ticker, interval) {
			continue
		}
		if err := ar.evaluateRule(ctx, rule, rows); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func (ar *AlertRunner) evaluateRule(ctx context.Context, rule entity.Rule, rows []candle.Row) error {
	sig, ok := Detect(rule, rows)
	if !ok {
		return nil
	}

	key := rule.Key()
	prev, found, err := ar.states.Get(ctx, key)
	if err != nil {
		slog.Error("failed to read alert state", "alert", key, "error", err)
		return err
	}

	now := ar.clock.Now()
	if found {
		if rule.SuppressRepeat && prev.LastOpenTime == sig.OpenTime && prev.LastSignal == sig.Direction {
			slog.Debug("alert already sent for this candle", "alert", key, "open_time", sig.OpenTime)
			return nil
		}
		if now.Sub(prev.LastDispatchedAt) < rule.Throttle() {
			slog.Debug("alert throttled", "alert", key, "last_dispatched_at", prev.LastDispatchedAt, "throttle_seconds", rule.ThrottleSeconds)
			return nil
		}
	}

	n := entity.Notification{
		Channel:     rule.Channel,
		Destination: rule.Destination,
		Text:        entity.FormatMessage(rule.Ticker, rule.Interval, sig),
	}
	if err := ar.notifier.Send(ctx, n); err != nil {
		slog.Warn("alert dispatch failed", "alert", key, "channel", rule.Channel, "error", err)
		if !errors.Is(err, errs.ErrAlertDispatch) {
			err = fmt.Errorf("%w: %s: %w", errs.ErrAlertDispatch, key, err)
		}
		return err
	}

	st := entity.State{LastDispatchedAt: now, LastSignal: sig.Direction, LastOpenTime: sig.OpenTime}
	if err := ar.states.Put(ctx, key, st); err != nil {
		slog.Error("failed to write alert state", "alert", key, "error", err)
		return err
	}
	slog.Info("alert dispatched", "alert", key, "side", sig.Side(), "open_time", sig.OpenTime, "channel", rule.Channel)
	return nil
}
