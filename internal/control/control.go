// Package control delivers best-effort kill signals from RunEngine to the
// Worker holding a run, adapted from the teacher's Redis SETNX+Lua lease
// manager (internal/lease/manager.go) — repurposed from task leasing to a
// one-shot cancel signal keyed by (worker_id, run_id) rather than a
// renewable lease (spec.md §4.2 cancellation note).
package control

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func signalKey(workerID, runID uuid.UUID) string {
	return "control:kill:" + workerID.String() + ":" + runID.String()
}

// Channel is the control-plane handle both RunEngine (sender) and Worker
// (poller) hold.
type Channel struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Channel {
	return &Channel{rdb: rdb}
}

// SendKill raises a kill flag for a specific (worker, run) pair, with a
// TTL so an unconsumed signal for a since-restarted worker does not leak
// forever. RunEngine calls this when the cancel grace period elapses
// without a ReportFinish (spec.md §4.2).
func (c *Channel) SendKill(ctx context.Context, workerID, runID uuid.UUID, ttl time.Duration) error {
	return c.rdb.Set(ctx, signalKey(workerID, runID), "1", ttl).Err()
}

// Consume checks and clears the kill flag in one round trip using GETDEL,
// so a given signal is observed at most once, by the worker's cancel-poll
// goroutine.
func (c *Channel) Consume(ctx context.Context, workerID, runID uuid.UUID) (bool, error) {
	res, err := c.rdb.GetDel(ctx, signalKey(workerID, runID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res == "1", nil
}
