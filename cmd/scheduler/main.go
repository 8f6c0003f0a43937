// Command scheduler runs the configured schedule entries once or continuously,
// evaluates alert rules after each entry, and reports the schedule state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"market_etl/internal/app/di"
	alertusecase "market_etl/internal/feature/alerts/usecase"
	candleusecase "market_etl/internal/feature/candles/usecase"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/platform/clock"
	"market_etl/internal/platform/config"
	"market_etl/internal/platform/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath    = flag.String("config", "schedule.yml", "schedule entries (YAML or JSON)")
		alertsPath = flag.String("alerts", "", "alert rules (YAML or JSON); empty disables alerts")
		stateDir   = flag.String("state-dir", "", "state and lock directory (overrides STATE_DIR)")
		once       = flag.Bool("once", false, "run a single pass and exit (default)")
		loop       = flag.Bool("loop", false, "run continuously on the cron schedule")
		cronSpec   = flag.String("cron", "", "cron spec for -loop (overrides SCHEDULE_CRON)")
		status     = flag.Bool("status", false, "print the schedule state and exit")
	)
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Debug(".env not found; using system environment variables")
	}
	logger.Setup()

	if *once && *loop {
		fmt.Fprintln(os.Stderr, "-once and -loop are mutually exclusive")
		return 2
	}

	proc, err := config.LoadProcess()
	if err != nil {
		slog.Error("failed to load process config", "error", err)
		return 1
	}
	if *stateDir != "" {
		proc.StateDir = *stateDir
	}
	if *cronSpec != "" {
		proc.Cron = *cronSpec
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := di.OpenBackends(ctx, proc)
	if err != nil {
		slog.Error("failed to open backends", "error", err)
		return 1
	}
	defer backends.Close()

	if *status {
		states, err := backends.ScheduleStates().List(ctx)
		if err != nil {
			slog.Error("failed to read schedule state", "error", err)
			return 1
		}
		if err := printStatus(os.Stdout, states); err != nil {
			slog.Error("failed to render status", "error", err)
			return 1
		}
		return 0
	}

	schedule, err := config.LoadSchedule(*cfgPath)
	if err != nil {
		slog.Error("failed to load schedule config", "path", *cfgPath, "error", err)
		return 1
	}
	slog.Info("schedule loaded", "path", *cfgPath, "entries", len(schedule.Entries), "rejected", len(schedule.Rejected))

	market, limiter := di.NewMarket()
	clk := clock.NewSkewClock(market)
	ingest := candleusecase.NewIngestUsecase(market, backends.Partitions(), limiter, clk, candleusecase.DefaultRetryPolicy())

	var alerts scheduleusecase.AlertRunner
	if *alertsPath != "" {
		rules, err := config.LoadAlerts(*alertsPath)
		if err != nil {
			slog.Error("failed to load alerts config", "path", *alertsPath, "error", err)
			return 1
		}
		slog.Info("alerts loaded", "path", *alertsPath, "rules", len(rules.Rules), "rejected", len(rules.Rejected))
		if len(rules.Rules) > 0 {
			alerts = alertusecase.NewAlertRunner(rules.Rules, backends.AlertStates(), di.NewNotifier(), clk)
		}
	}

	s := scheduleusecase.NewScheduler(schedule.Entries, ingest, backends.ScheduleStates(), backends.Locker(), alerts, clk,
		scheduleusecase.Options{
			RunAlertsWithoutNewRows: proc.AlertsOnNoNewRow,
			Cron:                    proc.Cron,
			Location:                proc.Location(),
		})

	if *loop {
		if err := s.RunContinuous(ctx); err != nil {
			slog.Error("scheduler failed", "error", err)
			return 1
		}
		return 0
	}

	summary, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("scheduler pass aborted", "error", err)
		return 1
	}
	printSummary(os.Stdout, summary)
	return 0
}
