package domain

import (
	"time"

	"github.com/google/uuid"
)

type WorkerStatus string

const (
	WorkerRunning WorkerStatus = "RUNNING"
	WorkerPaused  WorkerStatus = "PAUSED"
	WorkerStopped WorkerStatus = "STOPPED"
)

// Worker is one host process claiming and executing runs. WorkerID is
// stable across restarts (persisted by the process, not regenerated).
type Worker struct {
	ID            uuid.UUID
	Hostname      string
	Status        WorkerStatus
	LastHeartbeat time.Time
	Version       string
	CreatedAt     time.Time
}

// Stale reports whether the worker's heartbeat is older than staleAfter.
func (w Worker) Stale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(w.LastHeartbeat) > staleAfter
}
