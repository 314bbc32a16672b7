package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// heartbeatStore is the narrow Store surface the heartbeat loop needs.
type heartbeatStore interface {
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error
}

// runHeartbeat periodically touches the worker's last_heartbeat row,
// generalizing the teacher's Redis TTL-key heartbeat
// (worker.StartHeartbeat) into a Store write, since spec.md §4.3 makes
// Worker.LastHeartbeat a persisted field other components (SLAMonitor's
// WORKER_DOWN detector) read directly rather than a Redis-only signal.
func runHeartbeat(ctx context.Context, store heartbeatStore, workerID uuid.UUID, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	beat := func() {
		if err := store.Heartbeat(ctx, workerID, time.Now().UTC()); err != nil {
			log.Warn("heartbeat failed", "worker_id", workerID, "err", err)
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
