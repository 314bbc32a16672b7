package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	args, err := json.Marshal(r.Parameters.RuntimeArguments)
	if err != nil {
		return err
	}
	env, err := json.Marshal(r.Parameters.RuntimeEnv)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO runs (id, robot_id, robot_version_id, service_id, schedule_id, schedule_fire_time,
			env_name, trigger_type, attempt, runtime_arguments, runtime_env, status, queued_at,
			triggered_by, host_name, process_id, error_message, cancel_requested)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'',0,'',FALSE)
	`, r.ID, r.RobotID, r.RobotVersionID, r.ServiceID, r.ScheduleID, r.ScheduleFireTime,
		r.EnvName, r.TriggerType, r.Attempt, args, env, r.Status, r.QueuedAt, r.TriggeredBy)
	return err
}

const runSelect = `
	SELECT id, robot_id, robot_version_id, service_id, schedule_id, schedule_fire_time,
		env_name, trigger_type, attempt, runtime_arguments, runtime_env, status, queued_at,
		started_at, finished_at, duration_seconds, triggered_by, claimed_by, host_name, process_id,
		error_message, cancel_requested, canceled_at, canceled_by
	FROM runs`

func scanRun(row rowScanner) (*domain.Run, error) {
	var r domain.Run
	var args, env []byte
	if err := row.Scan(
		&r.ID, &r.RobotID, &r.RobotVersionID, &r.ServiceID, &r.ScheduleID, &r.ScheduleFireTime,
		&r.EnvName, &r.TriggerType, &r.Attempt, &args, &env, &r.Status, &r.QueuedAt,
		&r.StartedAt, &r.FinishedAt, &r.DurationSeconds, &r.TriggeredBy, &r.WorkerID, &r.HostName, &r.ProcessID,
		&r.ErrorMessage, &r.CancelRequested, &r.CanceledAt, &r.CanceledBy,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(args, &r.Parameters.RuntimeArguments); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env, &r.Parameters.RuntimeEnv); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := s.Pool.QueryRow(ctx, runSelect+` WHERE id=$1`, id)
	return scanRun(row)
}

func (s *Store) ListRunsByRobot(ctx context.Context, robotID uuid.UUID, limit int) ([]domain.Run, error) {
	rows, err := s.Pool.Query(ctx, runSelect+` WHERE robot_id=$1 ORDER BY queued_at DESC LIMIT $2`, robotID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// RunFilter narrows ListRuns; a zero-value field means "any". Backs the
// GET /runs query parameters of spec.md §6.
type RunFilter struct {
	RobotID     *uuid.UUID
	ServiceID   *uuid.UUID
	TriggerType domain.TriggerType
	Status      domain.RunStatus
	Limit       int
}

func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]domain.Run, error) {
	query := runSelect + ` WHERE TRUE`
	args := []any{}
	if f.RobotID != nil {
		args = append(args, *f.RobotID)
		query += fmt.Sprintf(" AND robot_id=$%d", len(args))
	}
	if f.ServiceID != nil {
		args = append(args, *f.ServiceID)
		query += fmt.Sprintf(" AND service_id=$%d", len(args))
	}
	if f.TriggerType != "" {
		args = append(args, f.TriggerType)
		query += fmt.Sprintf(" AND trigger_type=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY queued_at DESC LIMIT $%d", len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	var out []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CountRunning returns the robot's current RUNNING count. Callers that
// need this figure to gate a state transition must call it inside the
// same advisory-locked transaction as the transition — see
// runengine.ClaimNext, which is the only caller that matters for the
// per-robot concurrency invariant.
func (s *Store) CountRunning(ctx context.Context, tx pgx.Tx, robotID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM runs WHERE robot_id=$1 AND status='RUNNING'`, robotID).Scan(&n)
	return n, err
}

// WithRobotLock runs fn inside a transaction holding
// pg_advisory_xact_lock(hashtext(robot_id)), released automatically at
// commit or rollback. This is the serialization point for every mutation
// that must observe an up-to-date per-robot RUNNING count — ClaimNext's
// eligibility check and the transition to RUNNING happen inside the same
// call so no second claimer can slip in between count and transition.
func (s *Store) WithRobotLock(ctx context.Context, robotID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, robotID.String()); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TransitionToRunning is called by ClaimNext inside WithRobotLock, after
// the eligibility check has passed. The WHERE clause re-checks status to
// guard against a lost update if the run left PENDING by another path
// (e.g. RequestCancel) between the SELECT and this UPDATE. claimed_by
// records which worker owns the run so ForceCancel and the timeout
// watchdog know who to send a kill signal to.
func (s *Store) TransitionToRunning(ctx context.Context, tx pgx.Tx, runID, workerID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE runs SET status='RUNNING', claimed_by=$2 WHERE id=$1 AND status='PENDING'
	`, runID, workerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// NextPendingForRobot reads the run with id runID inside tx and locks its
// row (FOR UPDATE), whatever its status. ClaimNext does not call it; it
// reads the run with GetRun.
func NextPendingForRobot(ctx context.Context, tx pgx.Tx, runID uuid.UUID) (*domain.Run, error) {
	row := tx.QueryRow(ctx, runSelect+` WHERE id=$1 FOR UPDATE`, runID)
	return scanRun(row)
}

func (s *Store) SetRunStarted(ctx context.Context, id uuid.UUID, host string, pid int, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE runs SET started_at=$2, host_name=$3, process_id=$4 WHERE id=$1
	`, id, at, host, pid)
	return err
}

// FinishRun sets the terminal fields in one statement. Only valid from
// RUNNING; runengine enforces that before calling this.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, status domain.RunStatus, errMsg string, finishedAt time.Time, durationSeconds float64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE runs SET status=$2, error_message=$3, finished_at=$4, duration_seconds=$5
		WHERE id=$1
	`, id, status, errMsg, finishedAt, durationSeconds)
	return err
}

func (s *Store) RequestCancel(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE runs SET cancel_requested=TRUE, canceled_by=$2, canceled_at=$3 WHERE id=$1
	`, id, by, at)
	return err
}

// CancelPending transitions a still-PENDING run straight to CANCELED, the
// immediate branch of RequestCancel (spec.md §4.2 cancellation note).
func (s *Store) CancelPending(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE runs SET status='CANCELED', finished_at=$2, duration_seconds=0
		WHERE id=$1 AND status='PENDING'
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStaleRunning finds RUNNING runs whose owning worker's heartbeat is
// older than staleAfter — the reclaim sweep run by SLAMonitor's
// reclaimOrphaned (spec.md §4.3 worker-down handling).
func (s *Store) ListStaleRunning(ctx context.Context, staleAfter time.Duration) ([]domain.Run, error) {
	rows, err := s.Pool.Query(ctx, runSelect+`
		WHERE runs.status='RUNNING' AND runs.host_name IN (
			SELECT hostname FROM workers WHERE last_heartbeat < $1
		)
	`, time.Now().Add(-staleAfter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// ListPendingForceCancel returns RUNNING runs whose cancel was requested
// at or before the given instant and have not yet reported finish — the
// RunEngine watchdog's backup path for a cooperative cancel that never
// arrived within cancel_grace_seconds (spec.md §4.1).
func (s *Store) ListPendingForceCancel(ctx context.Context, requestedBefore time.Time) ([]domain.Run, error) {
	rows, err := s.Pool.Query(ctx, runSelect+`
		WHERE status='RUNNING' AND cancel_requested=TRUE AND canceled_at <= $1
	`, requestedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// ListRunningWithStart returns every RUNNING run that has actually
// started, feeding the RunEngine timeout watchdog (spec.md §5).
func (s *Store) ListRunningWithStart(ctx context.Context) ([]domain.Run, error) {
	rows, err := s.Pool.Query(ctx, runSelect+`
		WHERE status='RUNNING' AND started_at IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// LastNStatuses returns the most recent N terminal statuses for a robot,
// newest first — SLAMonitor's FAILURE_STREAK detector consumes this.
func (s *Store) LastNStatuses(ctx context.Context, robotID uuid.UUID, n int) ([]domain.RunStatus, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT status FROM runs
		WHERE robot_id=$1 AND status IN ('SUCCESS','FAILED','CANCELED')
		ORDER BY finished_at DESC LIMIT $2
	`, robotID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunStatus
	for rows.Next() {
		var st domain.RunStatus
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LastSuccessAt returns the most recent SUCCESS finish time for a robot,
// used by SLAMonitor's LATE detector — spec.md §4.6 measures lateness
// against last_successful_finish, not any terminal run.
func (s *Store) LastSuccessAt(ctx context.Context, robotID uuid.UUID) (*time.Time, error) {
	var t *time.Time
	err := s.Pool.QueryRow(ctx, `
		SELECT MAX(finished_at) FROM runs WHERE robot_id=$1 AND status='SUCCESS'
	`, robotID).Scan(&t)
	return t, err
}

// QueueBacklogCount is the PENDING run count across all robots, backing
// the QUEUE_BACKLOG alert.
func (s *Store) QueueBacklogCount(ctx context.Context) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs WHERE status='PENDING'`).Scan(&n)
	return n, err
}

// CountRunsByStatus feeds GET /ops/status's runs_running figure.
func (s *Store) CountRunsByStatus(ctx context.Context, status domain.RunStatus) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs WHERE status=$1`, status).Scan(&n)
	return n, err
}

// CountRunsFailedSince feeds GET /ops/status's runs_failed_last_hour figure.
func (s *Store) CountRunsFailedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM runs WHERE status='FAILED' AND finished_at >= $1
	`, since).Scan(&n)
	return n, err
}

// PendingOrRunningForSchedule reports whether a schedule already has a
// non-terminal run in flight, used by the Scheduler's per-fire skip check
// when max_concurrency is saturated (spec.md §4.5).
func (s *Store) PendingOrRunningForSchedule(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM runs WHERE schedule_id=$1 AND status IN ('PENDING','RUNNING')
	`, scheduleID).Scan(&n)
	return n, err
}

// DeleteTerminalOlderThan is the cleanup component's run-retention sweep.
// Deleting a run cascades to its run_logs and artifacts rows via foreign
// key ON DELETE CASCADE.
func (s *Store) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		DELETE FROM runs WHERE status IN ('SUCCESS','FAILED','CANCELED') AND finished_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
