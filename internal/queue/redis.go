// Package queue holds run ids in Redis for dispatch, generalizing the
// teacher's per-queue-name ready/delayed keys into a single global ready
// list plus a delayed zset for retry backoff. Store remains the source of
// truth for run state; Queue only hints at ordering (spec.md §5).
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	readyKey   = "runs:ready"
	delayedKey = "runs:delayed"
)

// Queue wraps the Redis client every dispatch-facing operation needs.
type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Connect parses REDIS_URL and verifies the connection with a ping,
// mirroring the teacher's queue.Connect.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Enqueue appends a run id to the tail of the ready list — RPUSH/BLPOP
// gives FIFO ordering, matching the reference dispatch model (spec.md
// §4.2's "Queue's FIFO semantics").
func (q *Queue) Enqueue(ctx context.Context, runID uuid.UUID) error {
	return q.rdb.RPush(ctx, readyKey, runID.String()).Err()
}

// EnqueueAt schedules a run id to become ready at notBefore — used for
// retry backoff (spec.md §4.4) and for holding out runs that failed the
// eligibility check N times in a row (spec.md §4.1 ClaimNext note).
func (q *Queue) EnqueueAt(ctx context.Context, runID uuid.UUID, notBefore time.Time) error {
	return q.rdb.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(notBefore.Unix()),
		Member: runID.String(),
	}).Err()
}

// Dequeue pops the head of the ready list with a blocking timeout,
// returning (uuid.Nil, false, nil) on timeout so the caller's claim loop
// can re-check its own shutdown/pause state between polls.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, readyKey).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	// BLPop returns [key, value]
	id, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("queue: malformed run id %q: %w", res[1], err)
	}
	return id, true, nil
}

// MoveDueDelayed transfers up to limit members of the delayed zset scored
// at or before now into the ready list, via a transaction pipeline.
// Scheduler calls this every tick so backed-off runs come back into
// rotation without a dedicated timer per run.
func (q *Queue) MoveDueDelayed(ctx context.Context, limit int64) (int, error) {
	now := time.Now().Unix()
	items, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	pipe := q.rdb.TxPipeline()
	for _, m := range items {
		pipe.ZRem(ctx, delayedKey, m)
		pipe.RPush(ctx, readyKey, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Depth reports the ready list length, feeding the metrics.QueueDepth
// gauge and GET /ops/status. The QUEUE_BACKLOG alert counts PENDING runs
// in Store instead.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, readyKey).Result()
}

// DelayedDepth reports how many runs are currently held back on backoff.
func (q *Queue) DelayedDepth(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, delayedKey).Result()
}
