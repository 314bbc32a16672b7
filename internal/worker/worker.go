// Package worker implements the worker fleet of spec.md §4.3: a claim
// loop that pulls work from RunEngine, a heartbeat loop, and an executor
// that spawns and supervises the child process for each claimed run.
// Three cooperative goroutines per process, matching the teacher's
// per-process loop layout (heartbeat + claim + reaper in the original,
// heartbeat + claim + shutdown-drain here).
package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/control"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
)

// Store is the narrow persistence surface the worker fleet needs beyond
// what runengine.Engine already exposes.
type Store interface {
	heartbeatStore
	UpsertWorker(ctx context.Context, w *domain.Worker) error
	GetWorker(ctx context.Context, id uuid.UUID) (*domain.Worker, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.RobotVersion, error)
	GetScheduleByRobot(ctx context.Context, robotID uuid.UUID) (*domain.Schedule, error)
}

type Config struct {
	WorkerID              uuid.UUID
	Hostname              string
	Version               string
	HeartbeatInterval     time.Duration
	ClaimDequeueTimeout   time.Duration
	CancelPollInterval    time.Duration
	CancelGraceSeconds    int
	DefaultTimeoutSeconds int
	DrainTimeout          time.Duration
	ArtifactsRoot         string
	ScratchRoot           string
}

type Worker struct {
	cfg      Config
	store    Store
	engine   *runengine.Engine
	control  *control.Channel
	artifact *ArtifactStore
	log      *slog.Logger

	inFlight chan struct{} // buffered with capacity 1; occupied while a run executes
}

func New(cfg Config, store Store, engine *runengine.Engine, ctrl *control.Channel, log *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		control:  ctrl,
		artifact: NewArtifactStore(cfg.ArtifactsRoot),
		log:      log,
		inFlight: make(chan struct{}, 1),
	}
}

// Register upserts the worker's row with status RUNNING, the first thing
// a process does on startup (spec.md §4.3).
func (w *Worker) Register(ctx context.Context) error {
	return w.store.UpsertWorker(ctx, &domain.Worker{
		ID:            w.cfg.WorkerID,
		Hostname:      w.cfg.Hostname,
		Status:        domain.WorkerRunning,
		LastHeartbeat: time.Now().UTC(),
		Version:       w.cfg.Version,
	})
}

// Run starts the heartbeat and claim loops under one errgroup.Group and
// blocks until ctx is canceled, then drains any in-flight run for up to
// DrainTimeout — the shutdown loop's behavior (spec.md §4.3). The
// in-flight run itself executes under execCtx, a context independent of
// ctx's shutdown chain, so SIGTERM stops new claims without killing the
// child process the moment it arrives; execCtx is only canceled once the
// drain window actually elapses.
func (w *Worker) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	execCtx, execCancel := context.WithCancel(context.Background())
	defer execCancel()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		runHeartbeat(gctx, w.store, w.cfg.WorkerID, w.cfg.HeartbeatInterval, w.log)
		return nil
	})
	g.Go(func() error {
		w.runClaimLoop(gctx, execCtx)
		return nil
	})

	<-ctx.Done()
	w.log.Info("worker shutting down, draining in-flight run", "worker_id", w.cfg.WorkerID)
	cancel()

	drained := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(w.cfg.DrainTimeout):
		w.log.Warn("drain timeout elapsed, exiting with run possibly still in flight", "worker_id", w.cfg.WorkerID)
		execCancel()
	}
	return nil
}

// Hostname returns the local hostname, falling back to a fixed sentinel
// when it cannot be determined — used by cmd/worker to populate Config.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}
