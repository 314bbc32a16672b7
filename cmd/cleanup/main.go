package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cleanup"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/config"
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
	logger.Info("enesa-automation-hub cleanup starting", "version", version)

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer st.Close()

	cl := cleanup.New(cleanup.Config{
		Interval:              time.Duration(cfg.CleanupIntervalSeconds) * time.Second,
		RunRetentionDays:      cfg.RunRetentionDays,
		LogRetentionDays:      cfg.LogRetentionDays,
		ArtifactRetentionDays: cfg.ArtifactRetentionDays,
		Workers:               4,
	}, st, logger)

	cl.Run(ctx)
	logger.Info("cleanup stopped")
	return nil
}
