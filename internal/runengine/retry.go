package runengine

import (
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// shouldRetry implements spec.md §4.4's retry policy: only a schedule-
// backed robot with retry_count > 0 auto-retries, only while the failed
// run's attempt has not yet exhausted that budget, and MANUAL runs never
// auto-retry regardless of schedule.
func shouldRetry(failed *domain.Run, sched *domain.Schedule) bool {
	if sched == nil {
		return false
	}
	if failed.TriggerType == domain.TriggerManual {
		return false
	}
	if sched.RetryCount <= 0 {
		return false
	}
	return failed.Attempt <= sched.RetryCount
}

// buildRetryRun constructs the follow-up Run for a retried failure: same
// version/env/params, attempt incremented, queued_at pushed back by the
// schedule's backoff so Queue's not-before semantics hold it out of
// rotation until then.
func buildRetryRun(failed *domain.Run, sched *domain.Schedule, now time.Time) *domain.Run {
	return &domain.Run{
		ID:             uuid.New(),
		RobotID:        failed.RobotID,
		RobotVersionID: failed.RobotVersionID,
		ServiceID:      failed.ServiceID,
		ScheduleID:     failed.ScheduleID,
		EnvName:        failed.EnvName,
		TriggerType:    domain.TriggerRetry,
		Attempt:        failed.Attempt + 1,
		Parameters:     failed.Parameters,
		Status:         domain.RunPending,
		QueuedAt:       now.Add(time.Duration(sched.RetryBackoffSeconds) * time.Second),
		TriggeredBy:    failed.TriggeredBy,
	}
}
