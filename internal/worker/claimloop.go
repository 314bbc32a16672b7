package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// runClaimLoop calls ClaimNext while the worker's own status row is
// RUNNING; a PAUSED worker stops claiming but this loop is the only place
// that stops, so a run already executing (via w.executeRun) is left to
// finish, matching spec.md §4.3's "currently executing runs continue to
// completion unless canceled". ctx governs polling for new work and stops
// promptly on shutdown; execCtx governs the run actually being executed
// and outlives ctx so an in-flight child process gets to run out the
// drain window instead of being killed the instant shutdown begins.
func (w *Worker) runClaimLoop(ctx, execCtx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		self, err := w.store.GetWorker(ctx, w.cfg.WorkerID)
		if err != nil {
			w.log.Warn("claim loop: could not read own worker row", "err", err)
			time.Sleep(w.cfg.ClaimDequeueTimeout)
			continue
		}
		if self.Status != domain.WorkerRunning {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.HeartbeatInterval):
			}
			continue
		}

		runID, err := w.engine.ClaimNext(ctx, w.cfg.WorkerID, w.cfg.ClaimDequeueTimeout)
		if err != nil {
			w.log.Warn("claim next failed", "err", err)
			continue
		}
		if runID == uuid.Nil {
			continue // nothing ready within the dequeue timeout
		}

		w.inFlight <- struct{}{}
		w.executeRun(execCtx, runID)
		<-w.inFlight
	}
}
