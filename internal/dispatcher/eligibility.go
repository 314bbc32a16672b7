// Package dispatcher holds the eligibility filter ClaimNext applies to a
// candidate run — spec.md §4.2 describes dispatch as pull-based, with the
// Dispatcher "embodied in" Queue's FIFO order plus this filter, rather
// than a standalone loop.
package dispatcher

import (
	"time"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/clock"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// Reason names why a candidate run was rejected, used for logging and for
// the ineligibility counter that drives ClaimNext's requeue-with-backoff
// behavior (spec.md §4.1).
type Reason string

const (
	OK                  Reason = ""
	ReasonNotPending    Reason = "not_pending"
	ReasonWorkerPaused  Reason = "worker_paused"
	ReasonWorkerStale   Reason = "worker_stale"
	ReasonConcurrency   Reason = "concurrency_saturated"
	ReasonOutsideWindow Reason = "outside_window"
)

// MaxConcurrency returns the effective per-robot concurrency ceiling: the
// schedule's value, or 1 when the robot has no schedule (spec.md §4.1/§4.2
// default).
func MaxConcurrency(sched *domain.Schedule) int {
	if sched == nil {
		return 1
	}
	if sched.MaxConcurrency < 1 {
		return 1
	}
	return sched.MaxConcurrency
}

// Eligible applies the ClaimNext gate: the run must still be PENDING, the
// worker must be RUNNING (not paused) and have heartbeated within
// workerStale, the robot's in-flight count must be below its concurrency
// ceiling, and — only for SCHEDULED-triggered runs — now must fall inside
// the schedule's window, if one is set. Manual and retry runs are never
// window-gated: the window only constrains when the Scheduler itself
// creates new SCHEDULED runs. The staleness check (spec.md §4.2 rule 1)
// rejects a worker whose Status row is still RUNNING but which has
// stopped heartbeating, the same threshold SLAMonitor uses for its
// WORKER_DOWN alert.
func Eligible(run *domain.Run, worker *domain.Worker, sched *domain.Schedule, robotInFlight int, now time.Time, loc *time.Location, workerStale time.Duration) (bool, Reason) {
	if run.Status != domain.RunPending {
		return false, ReasonNotPending
	}
	if worker.Status != domain.WorkerRunning {
		return false, ReasonWorkerPaused
	}
	if worker.Stale(now, workerStale) {
		return false, ReasonWorkerStale
	}
	if robotInFlight >= MaxConcurrency(sched) {
		return false, ReasonConcurrency
	}
	if run.TriggerType == domain.TriggerScheduled && sched != nil && sched.HasWindow() {
		inWindow, err := clock.InWindow(now, loc, sched.WindowStart, sched.WindowEnd)
		if err != nil || !inWindow {
			return false, ReasonOutsideWindow
		}
	}
	return true, OK
}
