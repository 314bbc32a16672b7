// Package slamonitor implements spec.md §4.6: periodic detection of LATE,
// FAILURE_STREAK, WORKER_DOWN and QUEUE_BACKLOG conditions, opening and
// auto-resolving AlertEvents, and spec.md line 236's worker-liveness reclaim
// sweep — grounded here rather than in a separate janitor because it shares
// the same worker-heartbeat staleness read as the WORKER_DOWN detector.
package slamonitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/clock"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/metrics"
)

// Store is the narrow persistence surface SLAMonitor needs.
type Store interface {
	ListSLARules(ctx context.Context) ([]domain.SLARule, error)
	LastSuccessAt(ctx context.Context, robotID uuid.UUID) (*time.Time, error)
	LastNStatuses(ctx context.Context, robotID uuid.UUID, n int) ([]domain.RunStatus, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)
	QueueBacklogCount(ctx context.Context) (int, error)
	GetOpenAlert(ctx context.Context, robotID uuid.UUID, t domain.AlertType) (*domain.AlertEvent, error)
	OpenAlert(ctx context.Context, a *domain.AlertEvent) error
	ResolveAlert(ctx context.Context, robotID uuid.UUID, t domain.AlertType, at time.Time) error
	ListStaleRunning(ctx context.Context, staleAfter time.Duration) ([]domain.Run, error)
	ListOpenAlerts(ctx context.Context) ([]domain.AlertEvent, error)
}

// Queue is the narrow queue surface SLAMonitor needs to report the
// run_queue_depth gauge.
type Queue interface {
	Depth(ctx context.Context) (int64, error)
}

// RunFinisher is the narrow reclaim/watchdog surface, satisfied by
// runengine.Engine.
type RunFinisher interface {
	ReportFinish(ctx context.Context, runID uuid.UUID, outcome domain.RunStatus, errMsg string, artifacts []domain.Artifact) error
	RunWatchdog(ctx context.Context, defaultTimeoutSeconds int, watchdogMargin time.Duration, log *slog.Logger) error
}

type Config struct {
	Interval               time.Duration
	FailureStreakThreshold int
	QueueBacklogThreshold  int
	WorkerStale            time.Duration
	Loc                    *time.Location
	DefaultTimeoutSeconds  int
	WatchdogMargin         time.Duration
}

type Monitor struct {
	cfg    Config
	store  Store
	queue  Queue
	engine RunFinisher
	log    *slog.Logger
}

func New(cfg Config, store Store, queue Queue, engine RunFinisher, log *slog.Logger) *Monitor {
	return &Monitor{cfg: cfg, store: store, queue: queue, engine: engine, log: log}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	now := time.Now().UTC()

	if depth, err := m.queue.Depth(ctx); err != nil {
		m.log.Error("slamonitor: queue depth read failed", "err", err)
	} else {
		metrics.QueueDepth.Set(float64(depth))
	}
	if err := m.recordOpenAlertCounts(ctx); err != nil {
		m.log.Error("slamonitor: open alert count failed", "err", err)
	}

	if err := m.reclaimOrphaned(ctx, now); err != nil {
		m.log.Error("slamonitor: reclaim orphaned runs failed", "err", err)
	}
	if err := m.engine.RunWatchdog(ctx, m.cfg.DefaultTimeoutSeconds, m.cfg.WatchdogMargin, m.log); err != nil {
		m.log.Error("slamonitor: watchdog sweep failed", "err", err)
	}
	if err := m.checkWorkerDown(ctx, now); err != nil {
		m.log.Error("slamonitor: worker-down check failed", "err", err)
	}
	if err := m.checkQueueBacklog(ctx, now); err != nil {
		m.log.Error("slamonitor: queue-backlog check failed", "err", err)
	}

	rules, err := m.store.ListSLARules(ctx)
	if err != nil {
		m.log.Error("slamonitor: list sla rules failed", "err", err)
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, rule := range rules {
		rule := rule
		g.Go(func() error {
			if err := m.checkLate(gctx, rule, now); err != nil {
				m.log.Error("slamonitor: late check failed", "robot_id", rule.RobotID, "err", err)
			}
			if err := m.checkFailureStreak(gctx, rule, now); err != nil {
				m.log.Error("slamonitor: failure-streak check failed", "robot_id", rule.RobotID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// reclaimOrphaned forcibly finishes RUNNING runs whose worker has been
// silent for 2×WORKER_STALE_SECONDS, per spec.md's worker-liveness rule:
// a worker merely late on its heartbeat gets a grace period before its
// in-flight runs are declared lost, distinct from (and longer than) the
// WORKER_DOWN alert threshold itself.
func (m *Monitor) reclaimOrphaned(ctx context.Context, now time.Time) error {
	orphaned, err := m.store.ListStaleRunning(ctx, 2*m.cfg.WorkerStale)
	if err != nil {
		return err
	}
	for _, run := range orphaned {
		if err := m.engine.ReportFinish(ctx, run.ID, domain.RunFailed, "worker lost", nil); err != nil {
			m.log.Error("slamonitor: reclaim ReportFinish failed", "run_id", run.ID, "err", err)
			continue
		}
		m.log.Warn("slamonitor: reclaimed orphaned run", "run_id", run.ID, "robot_id", run.RobotID)
	}
	return nil
}

// checkLate implements spec.md §4.6's LATE formula, an OR of two
// independent lateness signals: a rolling "hasn't run in N minutes" check
// against expected_every_minutes, and a wall-clock "hasn't run yet today"
// check against expected_daily_time. Either firing opens the alert.
func (m *Monitor) checkLate(ctx context.Context, rule domain.SLARule, now time.Time) error {
	if !rule.AlertOnLate || (rule.ExpectedEveryMinutes <= 0 && rule.ExpectedDailyTime == "") {
		return m.resolveIfOpen(ctx, rule.RobotID, domain.AlertLate, now)
	}
	last, err := m.store.LastSuccessAt(ctx, rule.RobotID)
	if err != nil {
		return err
	}

	if rule.ExpectedEveryMinutes > 0 {
		threshold := time.Duration(rule.ExpectedEveryMinutes+rule.LateAfterMinutes) * time.Minute
		if last == nil || now.Sub(*last) > threshold {
			return m.openIfNotOpen(ctx, rule.RobotID, domain.AlertLate, now,
				fmt.Sprintf("no successful run in the last %d minutes", rule.ExpectedEveryMinutes+rule.LateAfterMinutes))
		}
	}

	if rule.ExpectedDailyTime != "" {
		late, err := m.pastDailyDeadline(rule, now, last)
		if err != nil {
			return err
		}
		if late {
			return m.openIfNotOpen(ctx, rule.RobotID, domain.AlertLate, now,
				fmt.Sprintf("no successful run today past %s + %d minutes", rule.ExpectedDailyTime, rule.LateAfterMinutes))
		}
	}

	return m.resolveIfOpen(ctx, rule.RobotID, domain.AlertLate, now)
}

// pastDailyDeadline reports whether today's local clock has passed
// expected_daily_time+late_after_minutes with no SUCCESS since local
// midnight.
func (m *Monitor) pastDailyDeadline(rule domain.SLARule, now time.Time, lastSuccess *time.Time) (bool, error) {
	loc := m.cfg.Loc
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	deadlineMin, err := clock.ParseHHMM(rule.ExpectedDailyTime)
	if err != nil {
		return false, err
	}
	deadlineMin += rule.LateAfterMinutes
	nowMin := local.Hour()*60 + local.Minute()
	if nowMin < deadlineMin {
		return false, nil
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return lastSuccess == nil || lastSuccess.In(loc).Before(midnight), nil
}

func (m *Monitor) checkFailureStreak(ctx context.Context, rule domain.SLARule, now time.Time) error {
	if !rule.AlertOnFailure {
		return m.resolveIfOpen(ctx, rule.RobotID, domain.AlertFailureStreak, now)
	}
	statuses, err := m.store.LastNStatuses(ctx, rule.RobotID, m.cfg.FailureStreakThreshold)
	if err != nil {
		return err
	}
	streak := len(statuses) == m.cfg.FailureStreakThreshold
	for _, st := range statuses {
		if st != domain.RunFailed {
			streak = false
			break
		}
	}
	if !streak {
		return m.resolveIfOpen(ctx, rule.RobotID, domain.AlertFailureStreak, now)
	}
	return m.openIfNotOpen(ctx, rule.RobotID, domain.AlertFailureStreak, now,
		fmt.Sprintf("last %d runs all FAILED", m.cfg.FailureStreakThreshold))
}

// checkWorkerDown alerts per stale worker, keyed by the worker's id (not a
// robot), so QueueBacklogRobotID-style global keying doesn't apply here —
// AlertEvent.RobotID stores the worker id for this alert type.
func (m *Monitor) checkWorkerDown(ctx context.Context, now time.Time) error {
	workers, err := m.store.ListWorkers(ctx)
	if err != nil {
		return err
	}
	for _, w := range workers {
		metrics.WorkerHeartbeatAge.WithLabelValues(w.ID.String()).Set(now.Sub(w.LastHeartbeat).Seconds())
		if w.Status == domain.WorkerStopped {
			continue
		}
		if w.Stale(now, m.cfg.WorkerStale) {
			if err := m.openIfNotOpen(ctx, w.ID, domain.AlertWorkerDown, now,
				fmt.Sprintf("worker %s heartbeat is stale since %s", w.Hostname, w.LastHeartbeat)); err != nil {
				return err
			}
			continue
		}
		if err := m.resolveIfOpen(ctx, w.ID, domain.AlertWorkerDown, now); err != nil {
			return err
		}
	}
	return nil
}

// recordOpenAlertCounts sets sla_alerts_open per type, zeroing types with
// no open alert so a resolved type's gauge doesn't stick at its last count.
func (m *Monitor) recordOpenAlertCounts(ctx context.Context) error {
	open, err := m.store.ListOpenAlerts(ctx)
	if err != nil {
		return err
	}
	counts := map[domain.AlertType]int{
		domain.AlertLate:          0,
		domain.AlertFailureStreak: 0,
		domain.AlertWorkerDown:    0,
		domain.AlertQueueBacklog:  0,
	}
	for _, a := range open {
		counts[a.Type]++
	}
	for t, n := range counts {
		metrics.SLAAlertsOpen.WithLabelValues(string(t)).Set(float64(n))
	}
	return nil
}

func (m *Monitor) checkQueueBacklog(ctx context.Context, now time.Time) error {
	depth, err := m.store.QueueBacklogCount(ctx)
	if err != nil {
		return err
	}
	if depth >= m.cfg.QueueBacklogThreshold {
		return m.openIfNotOpen(ctx, domain.QueueBacklogRobotID, domain.AlertQueueBacklog, now,
			fmt.Sprintf("%d runs PENDING, threshold %d", depth, m.cfg.QueueBacklogThreshold))
	}
	return m.resolveIfOpen(ctx, domain.QueueBacklogRobotID, domain.AlertQueueBacklog, now)
}

func (m *Monitor) openIfNotOpen(ctx context.Context, robotID uuid.UUID, t domain.AlertType, now time.Time, message string) error {
	existing, err := m.store.GetOpenAlert(ctx, robotID, t)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return m.store.OpenAlert(ctx, &domain.AlertEvent{
		ID:        uuid.New(),
		RobotID:   robotID,
		Type:      t,
		Severity:  domain.DefaultSeverity(t),
		Message:   message,
		CreatedAt: now,
	})
}

func (m *Monitor) resolveIfOpen(ctx context.Context, robotID uuid.UUID, t domain.AlertType, now time.Time) error {
	existing, err := m.store.GetOpenAlert(ctx, robotID, t)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	return m.store.ResolveAlert(ctx, robotID, t, now)
}
