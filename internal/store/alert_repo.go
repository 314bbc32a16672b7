package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// OpenAlert creates a new open AlertEvent. The partial unique index on
// (robot_id, type) WHERE resolved_at IS NULL is the actual enforcement of
// "at most one open alert per (robot, type)" (spec §4.7) — a duplicate
// insert surfaces as unique_violation and is returned as an error.
// SLAMonitor checks GetOpenAlert before calling this.
func (s *Store) OpenAlert(ctx context.Context, a *domain.AlertEvent) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO alert_events (id, robot_id, run_id, type, severity, message, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
	`, a.ID, a.RobotID, a.RunID, a.Type, a.Severity, a.Message, metadata)
	return err
}

// ResolveAlert closes the open alert for (robotID, alertType), if any.
// Returns errNotFound if none was open; SLAMonitor only calls it after
// GetOpenAlert found an open alert.
func (s *Store) ResolveAlert(ctx context.Context, robotID uuid.UUID, t domain.AlertType, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE alert_events SET resolved_at=$3
		WHERE robot_id=$1 AND type=$2 AND resolved_at IS NULL
	`, robotID, t, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

func (s *Store) GetOpenAlert(ctx context.Context, robotID uuid.UUID, t domain.AlertType) (*domain.AlertEvent, error) {
	row := s.Pool.QueryRow(ctx, alertSelect+` WHERE robot_id=$1 AND type=$2 AND resolved_at IS NULL`, robotID, t)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetAlertByID backs POST /alerts/{id}/resolve (spec.md §6), the only
// route that addresses an AlertEvent by its own id rather than by
// (robot, type).
func (s *Store) GetAlertByID(ctx context.Context, id uuid.UUID) (*domain.AlertEvent, error) {
	row := s.Pool.QueryRow(ctx, alertSelect+` WHERE id=$1`, id)
	return scanAlert(row)
}

// ResolveAlertByID closes a specific alert by id, for manual operator
// resolution via the HTTP API — distinct from ResolveAlert's
// (robot,type)-keyed auto-resolve used by SLAMonitor.
func (s *Store) ResolveAlertByID(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE alert_events SET resolved_at=$2 WHERE id=$1 AND resolved_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// ListOpenAlerts feeds SLAMonitor's per-type count of open alerts for the
// sla_alerts_open gauge.
func (s *Store) ListOpenAlerts(ctx context.Context) ([]domain.AlertEvent, error) {
	rows, err := s.Pool.Query(ctx, alertSelect+` WHERE resolved_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AlertEvent
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListAlerts filters by open/resolved status and optionally by type,
// backing GET /alerts?status=&type= (spec.md §6).
func (s *Store) ListAlerts(ctx context.Context, open bool, t domain.AlertType) ([]domain.AlertEvent, error) {
	query := alertSelect + ` WHERE `
	args := []any{}
	if open {
		query += `resolved_at IS NULL`
	} else {
		query += `resolved_at IS NOT NULL`
	}
	if t != "" {
		args = append(args, t)
		query += fmt.Sprintf(" AND type=$%d", len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AlertEvent
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const alertSelect = `
	SELECT id, robot_id, run_id, type, severity, message, metadata, created_at, resolved_at
	FROM alert_events`

func scanAlert(row rowScanner) (*domain.AlertEvent, error) {
	var a domain.AlertEvent
	var metadata []byte
	if err := row.Scan(&a.ID, &a.RobotID, &a.RunID, &a.Type, &a.Severity, &a.Message, &metadata, &a.CreatedAt, &a.ResolvedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
		return nil, err
	}
	return &a, nil
}
