package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func (s *Store) UpsertSLARule(ctx context.Context, r *domain.SLARule) error {
	notify, err := json.Marshal(r.NotifyChannels)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO sla_rules (id, robot_id, expected_every_minutes, expected_daily_time,
			late_after_minutes, alert_on_failure, alert_on_late, notify_channels)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (robot_id) DO UPDATE SET
			expected_every_minutes=EXCLUDED.expected_every_minutes,
			expected_daily_time=EXCLUDED.expected_daily_time,
			late_after_minutes=EXCLUDED.late_after_minutes,
			alert_on_failure=EXCLUDED.alert_on_failure,
			alert_on_late=EXCLUDED.alert_on_late,
			notify_channels=EXCLUDED.notify_channels
	`, r.ID, r.RobotID, r.ExpectedEveryMinutes, r.ExpectedDailyTime,
		r.LateAfterMinutes, r.AlertOnFailure, r.AlertOnLate, notify)
	return err
}

const slaSelect = `
	SELECT id, robot_id, expected_every_minutes, expected_daily_time,
		late_after_minutes, alert_on_failure, alert_on_late, notify_channels
	FROM sla_rules`

func scanSLA(row rowScanner) (*domain.SLARule, error) {
	var r domain.SLARule
	var notify []byte
	if err := row.Scan(&r.ID, &r.RobotID, &r.ExpectedEveryMinutes, &r.ExpectedDailyTime,
		&r.LateAfterMinutes, &r.AlertOnFailure, &r.AlertOnLate, &notify); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(notify, &r.NotifyChannels); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetSLARule(ctx context.Context, robotID uuid.UUID) (*domain.SLARule, error) {
	row := s.Pool.QueryRow(ctx, slaSelect+` WHERE robot_id=$1`, robotID)
	return scanSLA(row)
}

// ListSLARules feeds every SLAMonitor sweep (spec §4.7).
func (s *Store) ListSLARules(ctx context.Context) ([]domain.SLARule, error) {
	rows, err := s.Pool.Query(ctx, slaSelect+` ORDER BY robot_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SLARule
	for rows.Next() {
		r, err := scanSLA(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
