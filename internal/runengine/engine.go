// Package runengine implements every operation of spec.md §4.1: CreateRun,
// ClaimNext, ReportStart, AppendLog, ReportFinish, RequestCancel and
// GetLogsSince. Every Run.Status change goes through one of its methods:
// ReportFinish checks the transition table in state.go, while ClaimNext,
// RequestCancel and ForceCancel guard their own single edge (the store's
// status-conditioned UPDATE, or an explicit RUNNING check).
package runengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/dispatcher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/metrics"
)

// Store is the narrow persistence surface the engine needs, kept as an
// interface so tests can substitute an in-memory fake instead of a live
// Postgres pool.
type Store interface {
	CreateRun(ctx context.Context, r *domain.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetActiveVersion(ctx context.Context, robotID uuid.UUID) (*domain.RobotVersion, error)
	GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.RobotVersion, error)
	GetScheduleByRobot(ctx context.Context, robotID uuid.UUID) (*domain.Schedule, error)
	GetWorker(ctx context.Context, id uuid.UUID) (*domain.Worker, error)
	ListEnvBindings(ctx context.Context, robotID uuid.UUID, envName domain.EnvName) ([]domain.RobotEnvBinding, error)
	SetRunStarted(ctx context.Context, id uuid.UUID, host string, pid int, at time.Time) error
	FinishRun(ctx context.Context, id uuid.UUID, status domain.RunStatus, errMsg string, finishedAt time.Time, durationSeconds float64) error
	CreateArtifact(ctx context.Context, a *domain.Artifact) error
	RequestCancel(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error
	CancelPending(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	AppendRunLog(ctx context.Context, l *domain.RunLog) error
	ListRunLogsSince(ctx context.Context, runID uuid.UUID, since int64) ([]domain.RunLog, error)
	MaxRunLogSequence(ctx context.Context, runID uuid.UUID) (int64, error)
	WithRobotLock(ctx context.Context, robotID uuid.UUID, fn func(tx pgx.Tx) error) error
	CountRunning(ctx context.Context, tx pgx.Tx, robotID uuid.UUID) (int, error)
	TransitionToRunning(ctx context.Context, tx pgx.Tx, runID, workerID uuid.UUID) (bool, error)
	ListPendingForceCancel(ctx context.Context, requestedBefore time.Time) ([]domain.Run, error)
	ListRunningWithStart(ctx context.Context) ([]domain.Run, error)
}

// Queue is the narrow dispatch surface, mirroring internal/queue.Queue's
// public methods.
type Queue interface {
	Enqueue(ctx context.Context, runID uuid.UUID) error
	EnqueueAt(ctx context.Context, runID uuid.UUID, notBefore time.Time) error
	Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error)
}

// LogBus is the narrow publish surface, mirroring internal/logbus.Bus.
type LogBus interface {
	Publish(ctx context.Context, l domain.RunLog) error
}

// Control is the narrow kill-signal surface, mirroring internal/control.Channel.
type Control interface {
	SendKill(ctx context.Context, workerID, runID uuid.UUID, ttl time.Duration) error
}

type Engine struct {
	store   Store
	queue   Queue
	logbus  LogBus
	control Control
	cipher  *cipher.Envelope

	maxIneligibleAttempts int
	cancelGrace           time.Duration
	workerStale           time.Duration
	appTimezone           *time.Location

	ineligible *redis.Client
}

func New(store Store, queue Queue, logbus LogBus, control Control, env *cipher.Envelope, rdb *redis.Client, maxIneligibleAttempts int, cancelGrace, workerStale time.Duration, loc *time.Location) *Engine {
	return &Engine{
		store:                 store,
		queue:                 queue,
		logbus:                logbus,
		control:               control,
		cipher:                env,
		maxIneligibleAttempts: maxIneligibleAttempts,
		cancelGrace:           cancelGrace,
		workerStale:           workerStale,
		appTimezone:           loc,
		ineligible:            rdb,
	}
}

// CreateRun resolves version_ref — an explicit version id must belong to
// the robot, otherwise the robot's active version is used — persists the
// run PENDING, and enqueues it. Fails PreconditionFailed with
// NoActiveVersion if no version resolves, per spec.md §4.1.
func (e *Engine) CreateRun(ctx context.Context, robotID, versionRef uuid.UUID, envName domain.EnvName, params domain.RunParameters, trigger domain.TriggerType, triggeredBy *uuid.UUID, scheduleID, serviceID *uuid.UUID, scheduleFireTime *time.Time) (uuid.UUID, error) {
	var version *domain.RobotVersion
	var err error
	if versionRef != uuid.Nil {
		version, err = e.store.GetVersionByID(ctx, versionRef)
		if err != nil || version.RobotID != robotID {
			return uuid.Nil, apperr.Newf(apperr.NotFound, "runengine.CreateRun", "version %s does not belong to robot %s", versionRef, robotID)
		}
	} else {
		version, err = e.store.GetActiveVersion(ctx, robotID)
		if err != nil {
			return uuid.Nil, apperr.New(apperr.PreconditionFailed, "runengine.CreateRun", fmt.Errorf("NoActiveVersion: robot %s has no active version: %w", robotID, err))
		}
	}

	run := &domain.Run{
		ID:               uuid.New(),
		RobotID:          robotID,
		RobotVersionID:   version.ID,
		ServiceID:        serviceID,
		ScheduleID:       scheduleID,
		ScheduleFireTime: scheduleFireTime,
		EnvName:          envName,
		TriggerType:      trigger,
		Attempt:          1,
		Parameters:       params,
		Status:           domain.RunPending,
		QueuedAt:         time.Now().UTC(),
		TriggeredBy:      triggeredBy,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return uuid.Nil, apperr.New(apperr.Conflict, "runengine.CreateRun", err)
	}
	if err := e.queue.Enqueue(ctx, run.ID); err != nil {
		return uuid.Nil, apperr.New(apperr.Transient, "runengine.CreateRun", err)
	}
	return run.ID, nil
}

// ClaimNext pops the next candidate off Queue and, if eligible, transitions
// it to RUNNING under the robot's advisory lock. Ineligible candidates are
// re-queued at the tail; after maxIneligibleAttempts consecutive failures
// the run is held out for schedule.retry_backoff_seconds (or a fixed
// fallback with no schedule) via Queue's not-before enqueue (spec.md §4.1).
func (e *Engine) ClaimNext(ctx context.Context, workerID uuid.UUID, dequeueTimeout time.Duration) (uuid.UUID, error) {
	runID, ok, err := e.queue.Dequeue(ctx, dequeueTimeout)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.Transient, "runengine.ClaimNext", err)
	}
	if !ok {
		return uuid.Nil, nil
	}

	worker, err := e.store.GetWorker(ctx, workerID)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.NotFound, "runengine.ClaimNext", err)
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.NotFound, "runengine.ClaimNext", err)
	}
	sched, err := e.store.GetScheduleByRobot(ctx, run.RobotID)
	if err != nil {
		sched = nil // no schedule is a valid state, not an error
	}

	var claimed bool
	var reason dispatcher.Reason
	lockErr := e.store.WithRobotLock(ctx, run.RobotID, func(tx pgx.Tx) error {
		inFlight, err := e.store.CountRunning(ctx, tx, run.RobotID)
		if err != nil {
			return err
		}
		ok, r := dispatcher.Eligible(run, worker, sched, inFlight, time.Now(), e.appTimezone, e.workerStale)
		reason = r
		if !ok {
			return nil
		}
		affected, err := e.store.TransitionToRunning(ctx, tx, run.ID, workerID)
		if err != nil {
			return err
		}
		claimed = affected
		return nil
	})
	if lockErr != nil {
		return uuid.Nil, apperr.New(apperr.Transient, "runengine.ClaimNext", lockErr)
	}

	if claimed {
		metrics.RunsRunning.Inc()
		e.resetIneligibleCount(ctx, run.ID)
		return run.ID, nil
	}
	return uuid.Nil, e.handleIneligible(ctx, run, sched, reason)
}

func ineligibleKey(runID uuid.UUID) string {
	return "runengine:ineligible:" + runID.String()
}

func (e *Engine) resetIneligibleCount(ctx context.Context, runID uuid.UUID) {
	if e.ineligible == nil {
		return
	}
	e.ineligible.Del(ctx, ineligibleKey(runID))
}

// handleIneligible re-enqueues a run that failed the eligibility check.
// After maxIneligibleAttempts in a row it is held out on Queue's delayed
// set for the schedule's backoff window instead of spinning the claim
// loop against a saturated robot.
func (e *Engine) handleIneligible(ctx context.Context, run *domain.Run, sched *domain.Schedule, reason dispatcher.Reason) error {
	if e.ineligible == nil {
		return e.queue.Enqueue(ctx, run.ID)
	}
	n, err := e.ineligible.Incr(ctx, ineligibleKey(run.ID)).Result()
	if err != nil {
		return e.queue.Enqueue(ctx, run.ID)
	}
	if int(n) < e.maxIneligibleAttempts {
		return e.queue.Enqueue(ctx, run.ID)
	}
	e.ineligible.Del(ctx, ineligibleKey(run.ID))
	backoff := 30 * time.Second
	if sched != nil && sched.RetryBackoffSeconds > 0 {
		backoff = time.Duration(sched.RetryBackoffSeconds) * time.Second
	}
	_ = reason // surfaced via structured logging at the call site, not here
	return e.queue.EnqueueAt(ctx, run.ID, time.Now().Add(backoff))
}

// ReportStart records where a claimed run is actually executing.
// Idempotent when called again with the same host/pid, matching spec.md
// §4.1's "idempotent if already set to same values" — a second call from
// a retried RPC is a no-op, not a conflict.
func (e *Engine) ReportStart(ctx context.Context, runID uuid.UUID, host string, pid int) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return apperr.New(apperr.NotFound, "runengine.ReportStart", err)
	}
	if run.Status != domain.RunRunning {
		return apperr.Newf(apperr.PreconditionFailed, "runengine.ReportStart", "run %s is not RUNNING", runID)
	}
	if run.StartedAt != nil && run.HostName == host && run.ProcessID == pid {
		return nil
	}
	if err := e.store.SetRunStarted(ctx, runID, host, pid, time.Now().UTC()); err != nil {
		return apperr.New(apperr.Transient, "runengine.ReportStart", err)
	}
	return nil
}

// AppendLog persists the next sequence number for a run's log stream and
// publishes it live. Logs appended after the run reached a terminal state
// are still accepted (forensic value) but tagged post_terminal, per
// spec.md §4.1.
func (e *Engine) AppendLog(ctx context.Context, runID uuid.UUID, level domain.LogLevel, message string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return apperr.New(apperr.NotFound, "runengine.AppendLog", err)
	}
	maxSeq, err := e.store.MaxRunLogSequence(ctx, runID)
	if err != nil {
		return apperr.New(apperr.Transient, "runengine.AppendLog", err)
	}
	entry := &domain.RunLog{
		RunID:        runID,
		Sequence:     maxSeq + 1,
		Timestamp:    time.Now().UTC(),
		Level:        level,
		Message:      message,
		PostTerminal: run.Status.Terminal(),
	}
	if err := e.store.AppendRunLog(ctx, entry); err != nil {
		return apperr.New(apperr.Transient, "runengine.AppendLog", err)
	}
	_ = e.logbus.Publish(ctx, *entry) // best-effort: catch-up read covers a missed publish
	return nil
}

// GetLogsSince returns every log line after `since` in order, the
// non-streaming half of the log API.
func (e *Engine) GetLogsSince(ctx context.Context, runID uuid.UUID, since int64) ([]domain.RunLog, error) {
	logs, err := e.store.ListRunLogsSince(ctx, runID, since)
	if err != nil {
		return nil, apperr.New(apperr.Transient, "runengine.GetLogsSince", err)
	}
	return logs, nil
}

// ReportFinish is valid only from RUNNING (spec.md §4.1). On FAILED it
// evaluates the retry policy and, if the schedule calls for it, creates
// and enqueues the follow-up RETRY run.
func (e *Engine) ReportFinish(ctx context.Context, runID uuid.UUID, outcome domain.RunStatus, errMsg string, artifacts []domain.Artifact) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return apperr.New(apperr.NotFound, "runengine.ReportFinish", err)
	}
	if run.Status != domain.RunRunning || !canTransition(run.Status, outcome) {
		return apperr.Newf(apperr.PreconditionFailed, "runengine.ReportFinish", "cannot move run %s from %s to %s", runID, run.Status, outcome)
	}

	now := time.Now().UTC()
	var duration float64
	if run.StartedAt != nil {
		duration = now.Sub(*run.StartedAt).Seconds()
	}
	if err := e.store.FinishRun(ctx, runID, outcome, errMsg, now, duration); err != nil {
		return apperr.New(apperr.Transient, "runengine.ReportFinish", err)
	}
	recordTerminal(run.RobotID, outcome, true)
	for i := range artifacts {
		artifacts[i].RunID = runID
		if err := e.store.CreateArtifact(ctx, &artifacts[i]); err != nil {
			return apperr.New(apperr.Transient, "runengine.ReportFinish", err)
		}
	}

	if outcome != domain.RunFailed {
		return nil
	}
	sched, err := e.store.GetScheduleByRobot(ctx, run.RobotID)
	if err != nil {
		return nil // no schedule means no retry policy to evaluate
	}
	run.Status = domain.RunFailed
	if !shouldRetry(run, sched) {
		return nil
	}
	retryRun := buildRetryRun(run, sched, now)
	if err := e.store.CreateRun(ctx, retryRun); err != nil {
		return apperr.New(apperr.Transient, "runengine.ReportFinish", err)
	}
	if err := e.queue.EnqueueAt(ctx, retryRun.ID, retryRun.QueuedAt); err != nil {
		return apperr.New(apperr.Transient, "runengine.ReportFinish", err)
	}
	return nil
}

// RequestCancel sets the cancel flag and, for a still-PENDING run,
// transitions it straight to CANCELED. For a RUNNING run the Worker
// observes the flag cooperatively; if no ReportFinish arrives within
// cancelGrace, RunWatchdog's cancel-grace sweep calls ForceCancel.
func (e *Engine) RequestCancel(ctx context.Context, runID, by uuid.UUID) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return apperr.New(apperr.NotFound, "runengine.RequestCancel", err)
	}
	if run.Status.Terminal() {
		return nil // idempotent no-op, not an error (apperr.Conflict territory the caller doesn't need)
	}
	now := time.Now().UTC()
	if err := e.store.RequestCancel(ctx, runID, by, now); err != nil {
		return apperr.New(apperr.Transient, "runengine.RequestCancel", err)
	}
	if run.Status == domain.RunPending {
		if _, err := e.store.CancelPending(ctx, runID, now); err != nil {
			return apperr.New(apperr.Transient, "runengine.RequestCancel", err)
		}
		recordTerminal(run.RobotID, domain.RunCanceled, false)
	}
	return nil
}

// ForceCancel marks a RUNNING run CANCELED after the cancel grace period
// elapsed without a cooperative ReportFinish, and best-effort signals the
// worker to kill the child process via the control channel.
func (e *Engine) ForceCancel(ctx context.Context, runID, workerID uuid.UUID) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return apperr.New(apperr.NotFound, "runengine.ForceCancel", err)
	}
	if run.Status != domain.RunRunning {
		return nil
	}
	now := time.Now().UTC()
	var duration float64
	if run.StartedAt != nil {
		duration = now.Sub(*run.StartedAt).Seconds()
	}
	if err := e.store.FinishRun(ctx, runID, domain.RunCanceled, "canceled: grace period elapsed", now, duration); err != nil {
		return apperr.New(apperr.Transient, "runengine.ForceCancel", err)
	}
	recordTerminal(run.RobotID, domain.RunCanceled, true)
	if e.control != nil {
		_ = e.control.SendKill(ctx, workerID, runID, e.cancelGrace)
	}
	return nil
}

// recordTerminal updates the run-outcome metrics every path that finishes a
// run funnels through: the running gauge only moves for runs that actually
// occupied it, while the completed/failed counters count every terminal
// transition regardless of prior state.
func recordTerminal(robotID uuid.UUID, status domain.RunStatus, wasRunning bool) {
	if wasRunning {
		metrics.RunsRunning.Dec()
	}
	metrics.RunsCompletedTotal.WithLabelValues(robotID.String(), string(status)).Inc()
	if status == domain.RunFailed {
		metrics.RunsFailedTotal.WithLabelValues(robotID.String()).Inc()
	}
}

// RunWatchdog is RunEngine's backup enforcement path, spec.md §5's
// "RunEngine watchdog": a periodic sweep for runs the Worker should have
// already finished but didn't because it died, hung, or lost its process
// mid-operation. It covers a cancel that never got a cooperative
// ReportFinish within cancel_grace_seconds, and a run that outlived its
// declared timeout by more than watchdog_margin_seconds. Per-run failures
// are logged and skipped rather than aborting the sweep.
func (e *Engine) RunWatchdog(ctx context.Context, defaultTimeoutSeconds int, watchdogMargin time.Duration, log *slog.Logger) error {
	now := time.Now().UTC()

	overdueCancels, err := e.store.ListPendingForceCancel(ctx, now.Add(-e.cancelGrace))
	if err != nil {
		return apperr.New(apperr.Transient, "runengine.RunWatchdog", err)
	}
	for _, run := range overdueCancels {
		var workerID uuid.UUID
		if run.WorkerID != nil {
			workerID = *run.WorkerID
		}
		if err := e.ForceCancel(ctx, run.ID, workerID); err != nil {
			log.Error("runengine: watchdog ForceCancel failed", "run_id", run.ID, "err", err)
		}
	}

	running, err := e.store.ListRunningWithStart(ctx)
	if err != nil {
		return apperr.New(apperr.Transient, "runengine.RunWatchdog", err)
	}
	schedCache := map[uuid.UUID]*domain.Schedule{}
	for _, run := range running {
		if run.CancelRequested {
			continue // already covered by the cancel-grace sweep above
		}
		sched, cached := schedCache[run.RobotID]
		if !cached {
			sched, _ = e.store.GetScheduleByRobot(ctx, run.RobotID)
			schedCache[run.RobotID] = sched
		}
		timeout := effectiveTimeout(run.TriggerType, sched, defaultTimeoutSeconds)
		if now.Sub(*run.StartedAt) <= timeout+watchdogMargin {
			continue
		}
		if err := e.ReportFinish(ctx, run.ID, domain.RunFailed, "TIMEOUT", nil); err != nil {
			log.Error("runengine: watchdog timeout finish failed", "run_id", run.ID, "err", err)
			continue
		}
		if e.control != nil && run.WorkerID != nil {
			_ = e.control.SendKill(ctx, *run.WorkerID, run.ID, watchdogMargin)
		}
	}
	return nil
}

// effectiveTimeout mirrors the Worker's own timeoutFor (internal/worker):
// schedule.timeout_seconds for scheduled runs with a schedule, otherwise
// default_manual_timeout_seconds.
func effectiveTimeout(trigger domain.TriggerType, sched *domain.Schedule, defaultSeconds int) time.Duration {
	if trigger == domain.TriggerManual || sched == nil || sched.TimeoutSeconds <= 0 {
		return time.Duration(defaultSeconds) * time.Second
	}
	return time.Duration(sched.TimeoutSeconds) * time.Second
}

// AssembleEnv layers robot_version.default_env, then RobotEnvBinding
// values for (robot, env_name) decrypted via Cipher, then runtime env
// overrides, and fails fast on a missing required key — spec.md §4.3
// step 3.
func (e *Engine) AssembleEnv(ctx context.Context, robotID uuid.UUID, envName domain.EnvName, defaultEnv map[string]string, requiredKeys []string, runtimeEnv map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(defaultEnv))
	for k, v := range defaultEnv {
		out[k] = v
	}

	bindings, err := e.store.ListEnvBindings(ctx, robotID, envName)
	if err != nil {
		return nil, apperr.New(apperr.Transient, "runengine.AssembleEnv", err)
	}
	for _, b := range bindings {
		if b.IsSecret {
			plain, err := e.cipher.Decrypt(b.Value)
			if err != nil {
				return nil, apperr.New(apperr.Fatal, "runengine.AssembleEnv", err)
			}
			out[b.Key] = plain
		} else {
			out[b.Key] = b.Value
		}
	}
	for k, v := range runtimeEnv {
		out[k] = v
	}

	var missing []string
	for _, k := range requiredKeys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Newf(apperr.PreconditionFailed, "runengine.AssembleEnv", "MissingRequiredEnv: %v", missing)
	}
	return out, nil
}
