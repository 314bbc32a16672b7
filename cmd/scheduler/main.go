package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/config"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/control"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/logbus"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/queue"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/scheduler"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := config.Load()
	logger.Info("enesa-automation-hub scheduler starting", "version", version)

	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.AppTimezone, err)
	}

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer st.Close()

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer rdb.Close()

	env, err := cipher.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("cipher init: %w", err)
	}

	q := queue.New(rdb)
	ctrl := control.New(rdb)
	bus := logbus.New(rdb, st)
	engine := runengine.New(st, q, bus, ctrl, env, rdb, cfg.MaxIneligibleAttempts,
		time.Duration(cfg.CancelGraceSeconds)*time.Second, time.Duration(cfg.WorkerStaleSeconds)*time.Second, loc)

	sched := scheduler.New(scheduler.Config{
		Interval:      time.Duration(cfg.SchedulerIntervalSeconds) * time.Second,
		MaxCatchup:    cfg.SchedulerMaxCatchup,
		CatchupWindow: cfg.SchedulerCatchupWindow,
	}, st, q, engine, logger)

	sched.Run(ctx)
	logger.Info("scheduler stopped")
	return nil
}
