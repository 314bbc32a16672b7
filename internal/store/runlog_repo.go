package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// AppendRunLog inserts one log line. Sequence is caller-assigned
// (monotonic per run, held by runengine) so replays and the (run_id,
// sequence) primary key give at-most-once persistence even if the
// worker retries a flush after a network blip.
func (s *Store) AppendRunLog(ctx context.Context, l *domain.RunLog) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO run_logs (run_id, sequence, timestamp, level, message, post_terminal)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (run_id, sequence) DO NOTHING
	`, l.RunID, l.Sequence, l.Timestamp, l.Level, l.Message, l.PostTerminal)
	return err
}

// ListRunLogsSince backs the catch-up half of log streaming (spec §4.6,
// §7 WS route): everything with sequence > since, in order.
func (s *Store) ListRunLogsSince(ctx context.Context, runID uuid.UUID, since int64) ([]domain.RunLog, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT run_id, sequence, timestamp, level, message, post_terminal
		FROM run_logs WHERE run_id=$1 AND sequence > $2 ORDER BY sequence
	`, runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(&l.RunID, &l.Sequence, &l.Timestamp, &l.Level, &l.Message, &l.PostTerminal); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) MaxRunLogSequence(ctx context.Context, runID uuid.UUID) (int64, error) {
	var max *int64
	if err := s.Pool.QueryRow(ctx, `SELECT MAX(sequence) FROM run_logs WHERE run_id=$1`, runID).Scan(&max); err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
