package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// UpsertWorker is called when a worker registers at process start; later
// heartbeats go through Heartbeat — WorkerID is generated once and
// persisted by the process itself, per domain.Worker's doc comment.
func (s *Store) UpsertWorker(ctx context.Context, w *domain.Worker) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO workers (id, hostname, status, last_heartbeat, version, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (id) DO UPDATE SET
			hostname=EXCLUDED.hostname, status=EXCLUDED.status,
			last_heartbeat=EXCLUDED.last_heartbeat, version=EXCLUDED.version
	`, w.ID, w.Hostname, w.Status, w.LastHeartbeat, w.Version)
	return err
}

func (s *Store) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE workers SET last_heartbeat=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

func (s *Store) SetWorkerStatus(ctx context.Context, id uuid.UUID, status domain.WorkerStatus) error {
	_, err := s.Pool.Exec(ctx, `UPDATE workers SET status=$2 WHERE id=$1`, id, status)
	return err
}

const workerSelect = `SELECT id, hostname, status, last_heartbeat, version, created_at FROM workers`

func scanWorker(row rowScanner) (*domain.Worker, error) {
	var w domain.Worker
	if err := row.Scan(&w.ID, &w.Hostname, &w.Status, &w.LastHeartbeat, &w.Version, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) GetWorker(ctx context.Context, id uuid.UUID) (*domain.Worker, error) {
	row := s.Pool.QueryRow(ctx, workerSelect+` WHERE id=$1`, id)
	return scanWorker(row)
}

// ListWorkers feeds both the operator worker list and the SLAMonitor's
// WORKER_DOWN sweep.
func (s *Store) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := s.Pool.Query(ctx, workerSelect+` ORDER BY hostname`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
