// Package usecase はスケジュール実行（ロック・スロットリング・状態更新・アラート起動）を実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	candleentity "market_etl/internal/feature/candles/domain/entity"
	candleusecase "market_etl/internal/feature/candles/usecase"
	"market_etl/internal/feature/schedule/domain/entity"
	"market_etl/internal/shared/errs"
)

// DefaultCron は常駐モードの実行タイミング（15分境界）です。
const DefaultCron = "*/15 * * * *"

// Ingester は1エントリ分のパイプラインを実行します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type Ingester interface {
	Run(ctx context.Context, req candleusecase.IngestRequest) (candleusecase.IngestResult, error)
}

// StateStore はエントリごとの最終実行情報を永続化します。
type StateStore interface {
	Get(ctx context.Context, key string) (entity.State, bool, error)
	Put(ctx context.Context, key string, st entity.State) error
	List(ctx context.Context) (map[string]entity.State, error)
}

// Locker はホスト内の排他ロックです。保持中で stale でない場合 Acquire は ErrLock を返します。
type Locker interface {
	Acquire(ctx context.Context) (entity.LockToken, error)
	Release(ctx context.Context, token entity.LockToken) error
}

// AlertRunner はエントリの保持ビューに対してシグナル判定と通知を行います。
type AlertRunner interface {
	Evaluate(ctx context.Context, ticker, interval string, rows []candleentity.Row) error
}

// Clock は現在時刻を返します。
type Clock interface {
	Now() time.Time
}

// ClockSyncer は取引所のサーバー時刻で時計のずれを補正できる Clock です。
type ClockSyncer interface {
	Sync(ctx context.Context) error
}

// Options はスケジューラの動作設定です。
type Options struct {
	// RunAlertsWithoutNewRows が true の場合、新しい行が無いパスでもアラートを評価します。
	RunAlertsWithoutNewRows bool
	// Cron は常駐モードの実行タイミングです。空なら DefaultCron。
	Cron string
	// Location は Cron を解釈するタイムゾーンです。nil なら UTC。
	Location *time.Location
}

// EntryResult は1エントリ分の実行結果です。
type EntryResult struct {
	Key       string
	Status    entity.Status
	Window    candleentity.Window
	RowsAdded int
	Err       error
}

// PassSummary は1パス分の実行結果です。
type PassSummary struct {
	Results []EntryResult
}

// Count は指定ステータスのエントリ数を返します。
func (p PassSummary) Count(status entity.Status) int {
	n := 0
	for _, r := range p.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Scheduler は設定されたエントリを順番に実行します。
// 1パスはロックで保護され、エントリ同士が並行に実行されることはありません。
type Scheduler struct {
	entries []entity.Entry
	ingest  Ingester
	states  StateStore
	lock    Locker
	alerts  AlertRunner
	clock   Clock
	opts    Options
}

// NewScheduler は新しい Scheduler を作成します。alerts は nil でも構いません。
func NewScheduler(entries []entity.Entry, ingest Ingester, states StateStore, lock Locker, alerts AlertRunner, clock Clock, opts Options) *Scheduler {
	if opts.Cron == "" {
		opts.Cron = DefaultCron
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		entries: entries,
		ingest:  ingest,
		states:  states,
		lock:    lock,
		alerts:  alerts,
		clock:   clock,
		opts:    opts,
	}
}

// RunOnce は1パスを実行します。
//
//  1. ロックを取得する（取得できなければ ErrLock を返し、どのエントリも実行しない）
//  2. 有効なエントリを設定順に実行する（前回成功から interval_minutes 未満ならスキップ。
//     前回が失敗なら間隔に関係なく同じウィンドウを再試行する）
//  3. 成功したエントリについてアラートを評価する
//  4. ロックを解放する
//
// エントリ単位の失敗は PassSummary に記録され、戻り値のエラーにはなりません。
func (s *Scheduler) RunOnce(ctx context.Context) (summary PassSummary, err error) {
	token, err := s.lock.Acquire(ctx)
	if err != nil {
		return PassSummary{}, err
	}
	slog.Debug("scheduler lock acquired", "holder", token.Holder)
	defer func() {
		if rerr := s.lock.Release(context.WithoutCancel(ctx), token); rerr != nil {
			slog.Error("failed to release scheduler lock", "holder", token.Holder, "error", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()

	// 時計合わせはロック取得後に行う。ロックを取れなかったプロセスは取引所にアクセスしない
	if syncer, ok := s.clock.(ClockSyncer); ok {
		if serr := syncer.Sync(ctx); serr != nil {
			slog.Warn("clock sync failed, using local time", "error", serr)
		}
	}

	for _, e := range s.entries {
		if !e.Enabled {
			summary.Results = append(summary.Results, EntryResult{Key: e.Key(), Status: entity.StatusSkipped})
			continue
		}
		summary.Results = append(summary.Results, s.runEntry(ctx, e))
	}

	slog.Info("scheduler pass finished",
		"entries", len(summary.Results),
		"success", summary.Count(entity.StatusSuccess),
		"no_new_data", summary.Count(entity.StatusNoNewData),
		"failure", summary.Count(entity.StatusFailure),
		"skipped", summary.Count(entity.StatusSkipped),
	)
	return summary, nil
}

func (s *Scheduler) runEntry(ctx context.Context, e entity.Entry) EntryResult {
	key := e.Key()
	now := s.clock.Now()

	prev, found, err := s.states.Get(ctx, key)
	if err != nil {
		slog.Error("failed to read schedule state", "entry", key, "error", err)
		return EntryResult{Key: key, Status: entity.StatusFailure, Err: err}
	}
	if found && prev.LastStatus != entity.StatusFailure && now.Sub(prev.LastRunAt) < e.Spacing() {
		slog.Debug("entry throttled", "entry", key, "last_run_at", prev.LastRunAt, "interval_minutes", e.IntervalMinutes)
		return EntryResult{Key: key, Status: entity.StatusSkipped}
	}

	res, runErr := s.ingest.Run(ctx, candleusecase.IngestRequest{
		Key:       e.PartitionKey(),
		ATRWindow: e.ATRWindow,
		PageLimit: e.PageLimit,
	})

	out := EntryResult{Key: key, Window: res.Window, RowsAdded: res.Added, Err: runErr}
	switch {
	case runErr != nil:
		out.Status = entity.StatusFailure
	case res.Added == 0:
		out.Status = entity.StatusNoNewData
	default:
		out.Status = entity.StatusSuccess
	}

	st := entity.State{LastRunAt: now, LastStatus: out.Status, RowsAdded: res.Added}
	if runErr != nil {
		st.LastError = runErr.Error()
	}
	if err := s.states.Put(ctx, key, st); err != nil {
		// 状態が進まないので次のパスで同じウィンドウを再実行する（パーティションの upsert は冪等）
		out.Status = entity.StatusFailure
		out.Err = errors.Join(runErr, fmt.Errorf("%w: write schedule state %s: %w", errs.ErrStorage, key, err))
	}

	if out.Err != nil {
		slog.Error("entry finished",
			"entry", key,
			"window_start", res.Window.Start,
			"window_end", res.Window.End,
			"rows_added", res.Added,
			"status", out.Status,
			"error", out.Err,
		)
		return out
	}
	slog.Info("entry finished",
		"entry", key,
		"window_start", res.Window.Start,
		"window_end", res.Window.End,
		"rows_added", res.Added,
		"status", out.Status,
	)

	if s.alerts != nil && (res.Added > 0 || s.opts.RunAlertsWithoutNewRows) {
		view := candleusecase.RetainedView(res.Rows, e.RetainedMonths)
		if err := s.alerts.Evaluate(ctx, e.Ticker, e.Interval, view); err != nil {
			slog.Warn("alert evaluation failed", "entry", key, "error", err)
		}
	}
	return out
}

// RunContinuous は即座に1パスを実行し、その後 Cron の各境界でパスを繰り返します。
// ctx がキャンセルされるまで戻りません。ロック競合はそのパスだけを中止します。
func (s *Scheduler) RunContinuous(ctx context.Context) error {
	sched := gocron.NewScheduler(s.opts.Location)
	sched.SingletonModeAll()

	pass := func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, errs.ErrLock) {
				slog.Warn("scheduler pass skipped", "error", err)
				return
			}
			slog.Error("scheduler pass failed", "error", err)
		}
	}

	if _, err := sched.Cron(s.opts.Cron).WaitForSchedule().Do(pass); err != nil {
		return fmt.Errorf("%w: cron %q: %w", errs.ErrValidation, s.opts.Cron, err)
	}

	pass()
	sched.StartAsync()
	slog.Info("scheduler started", "cron", s.opts.Cron, "entries", len(s.entries))

	<-ctx.Done()
	sched.Stop()
	slog.Info("scheduler stopped")
	return nil
}

// States は全エントリの最終実行情報を返します。
func (s *Scheduler) States(ctx context.Context) (map[string]entity.State, error) {
	return s.states.List(ctx)
}
