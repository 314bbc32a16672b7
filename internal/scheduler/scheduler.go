// Package scheduler implements spec.md §4.5: a periodic loop that walks
// each enabled Schedule's cron expression forward from its last_tick_at
// and creates a SCHEDULED Run for every fire time due, catching up across
// restarts via the persisted tick boundary — generalized from the
// teacher's Scheduler.handleScheduleWithMetrics catch-up loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/clock"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
)

// Store is the narrow persistence surface Scheduler needs.
type Store interface {
	ListEnabledSchedules(ctx context.Context) ([]domain.Schedule, error)
	AdvanceTick(ctx context.Context, scheduleID uuid.UUID, to time.Time) error
	PendingOrRunningForSchedule(ctx context.Context, scheduleID uuid.UUID) (int, error)
}

// Queue is the narrow queue surface Scheduler needs to promote backed-off
// runs — retries (spec.md §4.4) and ClaimNext's ineligibility backoff
// (spec.md §4.1) both land in the delayed set and rely on this sweep to
// come back into rotation.
type Queue interface {
	MoveDueDelayed(ctx context.Context, limit int64) (int, error)
}

// delayedMoveBatch caps how many due delayed runs are promoted per tick,
// so one Scheduler cycle can't be dominated by a large backlog.
const delayedMoveBatch = 500

// Config generalizes the teacher's hardcoded maxCatchupWindows=10 /
// maxCatchupDuration=1h into env-configurable bounds (SCHEDULER_MAX_CATCHUP,
// SCHEDULER_CATCHUP_WINDOW).
type Config struct {
	Interval      time.Duration
	MaxCatchup    int
	CatchupWindow time.Duration
}

type Scheduler struct {
	cfg    Config
	store  Store
	queue  Queue
	engine *runengine.Engine
	log    *slog.Logger
}

func New(cfg Config, store Store, queue Queue, engine *runengine.Engine, log *slog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, store: store, queue: queue, engine: engine, log: log}
}

// Run ticks every cfg.Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if moved, err := s.queue.MoveDueDelayed(ctx, delayedMoveBatch); err != nil {
		s.log.Error("scheduler: move due delayed runs failed", "err", err)
	} else if moved > 0 {
		s.log.Info("scheduler: promoted delayed runs to ready", "count", moved)
	}

	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		s.log.Error("scheduler: list enabled schedules failed", "err", err)
		return
	}
	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	for _, sch := range schedules {
		sch := sch
		g.Go(func() error {
			if err := s.handleSchedule(gctx, sch, now); err != nil {
				s.log.Error("scheduler: handle schedule failed", "schedule_id", sch.ID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// handleSchedule walks fire times in (last_tick_at, now] bounded by
// MaxCatchup, and floors the walk's start at CatchupWindow so a Scheduler
// that was down for a long time does not attempt to replay its entire
// history on restart.
func (s *Scheduler) handleSchedule(ctx context.Context, sch domain.Schedule, now time.Time) error {
	loc, err := time.LoadLocation(sch.Timezone)
	if err != nil {
		return err
	}
	parsed, err := clock.ParseCron(sch.CronExpr)
	if err != nil {
		return err
	}

	from := sch.LastTickAt
	if cutoff := now.Add(-s.cfg.CatchupWindow); from.Before(cutoff) {
		from = cutoff
	}

	fires := clock.NextFireTimes(parsed, loc, from, now)
	if len(fires) > s.cfg.MaxCatchup {
		s.log.Warn("scheduler: catchup exceeds max, dropping oldest fires",
			"schedule_id", sch.ID, "dropped", len(fires)-s.cfg.MaxCatchup)
		fires = fires[len(fires)-s.cfg.MaxCatchup:]
	}

	last := sch.LastTickAt
	for _, fire := range fires {
		if err := s.fireOnce(ctx, sch, fire, loc); err != nil {
			s.log.Error("scheduler: fire failed", "schedule_id", sch.ID, "fire_time", fire, "err", err)
		}
		last = fire
	}
	if len(fires) > 0 {
		return s.store.AdvanceTick(ctx, sch.ID, last)
	}
	return nil
}

func (s *Scheduler) fireOnce(ctx context.Context, sch domain.Schedule, fireTime time.Time, loc *time.Location) error {
	if sch.HasWindow() {
		inWindow, err := clock.InWindow(fireTime, loc, sch.WindowStart, sch.WindowEnd)
		if err != nil || !inWindow {
			s.log.Info("scheduler: fire outside window, skipped", "schedule_id", sch.ID, "fire_time", fireTime)
			return nil
		}
	}

	inFlight, err := s.store.PendingOrRunningForSchedule(ctx, sch.ID)
	if err != nil {
		return err
	}
	if inFlight >= maxConcurrency(sch) {
		s.log.Info("scheduler: max_concurrency saturated, fire skipped", "schedule_id", sch.ID, "fire_time", fireTime)
		return nil
	}

	ft := fireTime
	_, err = s.engine.CreateRun(ctx, sch.RobotID, uuid.Nil, domain.EnvProd, domain.RunParameters{}, domain.TriggerScheduled, nil, &sch.ID, nil, &ft)
	if apperr.Is(err, apperr.Conflict) {
		return nil // (schedule_id, fire_time) already recorded — idempotent replay after a restart
	}
	return err
}

func maxConcurrency(sch domain.Schedule) int {
	if sch.MaxConcurrency < 1 {
		return 1
	}
	return sch.MaxConcurrency
}
