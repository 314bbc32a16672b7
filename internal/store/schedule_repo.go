package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

const scheduleSelect = `
	SELECT id, robot_id, enabled, cron_expr, timezone, window_start, window_end,
		max_concurrency, timeout_seconds, retry_count, retry_backoff_seconds,
		last_tick_at, created_at
	FROM schedules`

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	if err := row.Scan(
		&s.ID, &s.RobotID, &s.Enabled, &s.CronExpr, &s.Timezone, &s.WindowStart, &s.WindowEnd,
		&s.MaxConcurrency, &s.TimeoutSeconds, &s.RetryCount, &s.RetryBackoffSeconds,
		&s.LastTickAt, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSchedule creates or replaces the one schedule a robot owns, since
// schedules.robot_id is unique — spec §3 allows at most one Schedule per
// Robot.
func (s *Store) UpsertSchedule(ctx context.Context, sch *domain.Schedule) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO schedules (id, robot_id, enabled, cron_expr, timezone, window_start, window_end,
			max_concurrency, timeout_seconds, retry_count, retry_backoff_seconds, last_tick_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
		ON CONFLICT (robot_id) DO UPDATE SET
			enabled=EXCLUDED.enabled, cron_expr=EXCLUDED.cron_expr, timezone=EXCLUDED.timezone,
			window_start=EXCLUDED.window_start, window_end=EXCLUDED.window_end,
			max_concurrency=EXCLUDED.max_concurrency, timeout_seconds=EXCLUDED.timeout_seconds,
			retry_count=EXCLUDED.retry_count, retry_backoff_seconds=EXCLUDED.retry_backoff_seconds
	`, sch.ID, sch.RobotID, sch.Enabled, sch.CronExpr, sch.Timezone, sch.WindowStart, sch.WindowEnd,
		sch.MaxConcurrency, sch.TimeoutSeconds, sch.RetryCount, sch.RetryBackoffSeconds, sch.LastTickAt)
	return err
}

func (s *Store) GetScheduleByRobot(ctx context.Context, robotID uuid.UUID) (*domain.Schedule, error) {
	row := s.Pool.QueryRow(ctx, scheduleSelect+` WHERE robot_id=$1`, robotID)
	return scanSchedule(row)
}

func (s *Store) GetScheduleByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	row := s.Pool.QueryRow(ctx, scheduleSelect+` WHERE id=$1`, id)
	return scanSchedule(row)
}

// ListEnabledSchedules is the Scheduler tick loop's entry point — the set
// of candidates it walks fire times for on every tick (spec §4.5).
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.Pool.Query(ctx, scheduleSelect+` WHERE enabled ORDER BY robot_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// AdvanceTick moves last_tick_at forward once a schedule's due fire times
// have all been turned into runs, so a crash mid-catch-up re-walks only
// the un-advanced tail on restart.
func (s *Store) AdvanceTick(ctx context.Context, scheduleID uuid.UUID, to time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE schedules SET last_tick_at=$2 WHERE id=$1`, scheduleID, to)
	return err
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE schedules SET enabled=$2 WHERE id=$1`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}
