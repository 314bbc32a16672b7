package dispatcher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/dispatcher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

var utc = time.UTC

const staleAfter = time.Minute

func runningWorker(now time.Time) *domain.Worker {
	return &domain.Worker{Status: domain.WorkerRunning, LastHeartbeat: now}
}

func TestEligible_RejectsNonPendingRun(t *testing.T) {
	now := time.Now()
	run := &domain.Run{Status: domain.RunRunning}
	ok, reason := dispatcher.Eligible(run, runningWorker(now), nil, 0, now, utc, staleAfter)
	assert.False(t, ok)
	assert.Equal(t, dispatcher.ReasonNotPending, reason)
}

func TestEligible_RejectsPausedWorker(t *testing.T) {
	now := time.Now()
	run := &domain.Run{Status: domain.RunPending}
	worker := &domain.Worker{Status: domain.WorkerPaused, LastHeartbeat: now}
	ok, reason := dispatcher.Eligible(run, worker, nil, 0, now, utc, staleAfter)
	assert.False(t, ok)
	assert.Equal(t, dispatcher.ReasonWorkerPaused, reason)
}

func TestEligible_RejectsStaleWorker(t *testing.T) {
	now := time.Now()
	run := &domain.Run{Status: domain.RunPending}
	worker := &domain.Worker{Status: domain.WorkerRunning, LastHeartbeat: now.Add(-2 * staleAfter)}
	ok, reason := dispatcher.Eligible(run, worker, nil, 0, now, utc, staleAfter)
	assert.False(t, ok)
	assert.Equal(t, dispatcher.ReasonWorkerStale, reason)
}

func TestEligible_RejectsAtConcurrencyCeiling(t *testing.T) {
	now := time.Now()
	run := &domain.Run{Status: domain.RunPending}
	sched := &domain.Schedule{MaxConcurrency: 2}
	ok, reason := dispatcher.Eligible(run, runningWorker(now), sched, 2, now, utc, staleAfter)
	assert.False(t, ok)
	assert.Equal(t, dispatcher.ReasonConcurrency, reason)
}

func TestEligible_NoScheduleDefaultsToConcurrencyOne(t *testing.T) {
	now := time.Now()
	run := &domain.Run{Status: domain.RunPending}
	ok, reason := dispatcher.Eligible(run, runningWorker(now), nil, 1, now, utc, staleAfter)
	assert.False(t, ok)
	assert.Equal(t, dispatcher.ReasonConcurrency, reason)
}

func TestEligible_RejectsScheduledRunOutsideWindow(t *testing.T) {
	run := &domain.Run{Status: domain.RunPending, TriggerType: domain.TriggerScheduled}
	sched := &domain.Schedule{MaxConcurrency: 1, WindowStart: "09:00", WindowEnd: "17:00"}
	night := time.Date(2026, 3, 1, 22, 0, 0, 0, utc)
	ok, reason := dispatcher.Eligible(run, runningWorker(night), sched, 0, night, utc, staleAfter)
	assert.False(t, ok)
	assert.Equal(t, dispatcher.ReasonOutsideWindow, reason)
}

func TestEligible_ManualRunIgnoresWindow(t *testing.T) {
	run := &domain.Run{Status: domain.RunPending, TriggerType: domain.TriggerManual}
	sched := &domain.Schedule{MaxConcurrency: 1, WindowStart: "09:00", WindowEnd: "17:00"}
	night := time.Date(2026, 3, 1, 22, 0, 0, 0, utc)
	ok, reason := dispatcher.Eligible(run, runningWorker(night), sched, 0, night, utc, staleAfter)
	assert.True(t, ok)
	assert.Equal(t, dispatcher.OK, reason)
}

func TestEligible_AllConditionsSatisfied(t *testing.T) {
	run := &domain.Run{Status: domain.RunPending, TriggerType: domain.TriggerScheduled}
	sched := &domain.Schedule{MaxConcurrency: 3, WindowStart: "09:00", WindowEnd: "17:00"}
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, utc)
	ok, reason := dispatcher.Eligible(run, runningWorker(noon), sched, 1, noon, utc, staleAfter)
	assert.True(t, ok)
	assert.Equal(t, dispatcher.OK, reason)
}

func TestMaxConcurrency_DefaultsAndFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, dispatcher.MaxConcurrency(nil))
	assert.Equal(t, 1, dispatcher.MaxConcurrency(&domain.Schedule{MaxConcurrency: 0}))
	assert.Equal(t, 5, dispatcher.MaxConcurrency(&domain.Schedule{MaxConcurrency: 5}))
}
