package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeHeartbeatStore struct {
	mu    sync.Mutex
	beats int
}

func (f *fakeHeartbeatStore) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

func (f *fakeHeartbeatStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beats
}

func TestRunHeartbeat_BeatsImmediatelyThenOnEachTick(t *testing.T) {
	store := &fakeHeartbeatStore{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	runHeartbeat(ctx, store, uuid.New(), 20*time.Millisecond, log)

	// One immediate beat plus at least two ticks in 55ms at a 20ms interval.
	assert.GreaterOrEqual(t, store.count(), 3)
}

func TestRunHeartbeat_StopsOnContextCancel(t *testing.T) {
	store := &fakeHeartbeatStore{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runHeartbeat(ctx, store, uuid.New(), time.Second, log)

	assert.Equal(t, 1, store.count(), "the immediate beat still fires before the ctx.Done() check")
}
