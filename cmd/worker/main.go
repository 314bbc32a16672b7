package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/config"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/control"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/logbus"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/queue"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/worker"
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
	workerID, err := loadOrCreateWorkerID(filepath.Join(cfg.ArtifactsRoot, ".worker_id"))
	if err != nil {
		return fmt.Errorf("load worker id: %w", err)
	}
	logger = logger.With("worker_id", workerID)
	logger.Info("enesa-automation-hub worker starting", "version", version)

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

	w := worker.New(worker.Config{
		WorkerID:              workerID,
		Hostname:              worker.Hostname(),
		Version:               version,
		HeartbeatInterval:     time.Duration(cfg.HeartbeatIntervalSeconds) * time.Second,
		ClaimDequeueTimeout:   5 * time.Second,
		CancelPollInterval:    time.Duration(cfg.CancelPollIntervalSeconds) * time.Second,
		CancelGraceSeconds:    cfg.CancelGraceSeconds,
		DefaultTimeoutSeconds: cfg.DefaultManualTimeoutSeconds,
		DrainTimeout:          time.Duration(cfg.DrainTimeoutSeconds) * time.Second,
		ArtifactsRoot:         cfg.ArtifactsRoot,
		ScratchRoot:           os.TempDir(),
	}, st, engine, ctrl, logger)

	if err := w.Register(ctx); err != nil {
		return fmt.Errorf("worker register: %w", err)
	}

	return w.Run(ctx)
}

// loadOrCreateWorkerID returns the worker's stable identity, persisted at
// path so restarts reuse it instead of orphaning the previous worker row
// and its (worker_id, run_id)-keyed control channel entries.
func loadOrCreateWorkerID(path string) (uuid.UUID, error) {
	if data, err := os.ReadFile(path); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(string(data))); err == nil {
			return id, nil
		}
	}
	id := uuid.New()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.String()), 0o644); err != nil {
		return uuid.Nil, fmt.Errorf("persist worker id: %w", err)
	}
	return id, nil
}
