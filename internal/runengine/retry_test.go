package runengine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func TestShouldRetry_NoScheduleNeverRetries(t *testing.T) {
	failed := &domain.Run{Attempt: 1, TriggerType: domain.TriggerScheduled}
	assert.False(t, shouldRetry(failed, nil))
}

func TestShouldRetry_ManualNeverRetriesEvenWithRetryPolicy(t *testing.T) {
	failed := &domain.Run{Attempt: 1, TriggerType: domain.TriggerManual}
	sched := &domain.Schedule{RetryCount: 3}
	assert.False(t, shouldRetry(failed, sched))
}

func TestShouldRetry_ZeroRetryCountNeverRetries(t *testing.T) {
	failed := &domain.Run{Attempt: 1, TriggerType: domain.TriggerScheduled}
	sched := &domain.Schedule{RetryCount: 0}
	assert.False(t, shouldRetry(failed, sched))
}

func TestShouldRetry_WithinBudgetRetries(t *testing.T) {
	sched := &domain.Schedule{RetryCount: 2}
	assert.True(t, shouldRetry(&domain.Run{Attempt: 1, TriggerType: domain.TriggerScheduled}, sched))
	assert.True(t, shouldRetry(&domain.Run{Attempt: 2, TriggerType: domain.TriggerScheduled}, sched))
}

func TestShouldRetry_ExhaustedBudgetStopsRetrying(t *testing.T) {
	sched := &domain.Schedule{RetryCount: 2}
	failed := &domain.Run{Attempt: 3, TriggerType: domain.TriggerRetry}
	assert.False(t, shouldRetry(failed, sched))
}

func TestBuildRetryRun_IncrementsAttemptAndAppliesBackoff(t *testing.T) {
	robotID := uuid.New()
	versionID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	failed := &domain.Run{
		ID:             uuid.New(),
		RobotID:        robotID,
		RobotVersionID: versionID,
		EnvName:        domain.EnvName("prod"),
		Attempt:        1,
		Parameters:     domain.RunParameters{RuntimeArguments: []string{"--flag"}},
	}
	sched := &domain.Schedule{RetryBackoffSeconds: 30}

	next := buildRetryRun(failed, sched, now)

	require.NotNil(t, next)
	assert.Equal(t, robotID, next.RobotID)
	assert.Equal(t, versionID, next.RobotVersionID)
	assert.Equal(t, 2, next.Attempt)
	assert.Equal(t, domain.TriggerRetry, next.TriggerType)
	assert.Equal(t, domain.RunPending, next.Status)
	assert.Equal(t, failed.Parameters, next.Parameters)
	assert.Equal(t, now.Add(30*time.Second), next.QueuedAt)
	assert.NotEqual(t, failed.ID, next.ID)
}
