package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is a node of the run state machine (spec §4.4). Terminal
// states are Success, Failed and Canceled; no transition leaves a
// terminal state.
type RunStatus string

const (
	RunPending  RunStatus = "PENDING"
	RunRunning  RunStatus = "RUNNING"
	RunSuccess  RunStatus = "SUCCESS"
	RunFailed   RunStatus = "FAILED"
	RunCanceled RunStatus = "CANCELED"
)

// Terminal reports whether the status has no outgoing transition.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunFailed, RunCanceled:
		return true
	}
	return false
}

// TriggerType is the origin of a Run.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerRetry     TriggerType = "RETRY"
)

// Run is one attempt to execute a specific RobotVersion with specific
// parameters. FinishedAt is set iff Status is terminal.
type Run struct {
	ID              uuid.UUID
	RobotID         uuid.UUID
	RobotVersionID  uuid.UUID
	ServiceID       *uuid.UUID
	ScheduleID      *uuid.UUID
	EnvName         EnvName
	TriggerType     TriggerType
	Attempt         int
	Parameters      RunParameters
	Status          RunStatus
	QueuedAt        time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationSeconds *float64
	TriggeredBy     *uuid.UUID
	WorkerID        *uuid.UUID
	HostName        string
	ProcessID       int
	ErrorMessage    string
	CancelRequested bool
	CanceledAt      *time.Time
	CanceledBy      *uuid.UUID

	// ScheduleFireTime is set only for TriggerScheduled runs; combined with
	// ScheduleID it backs the (schedule_id, fire_time) uniqueness constraint
	// that makes the Scheduler idempotent across restarts (spec §4.5).
	ScheduleFireTime *time.Time
}

// RunParameters is the runtime argument/env override supplied by the
// caller at CreateRun time.
type RunParameters struct {
	RuntimeArguments []string
	RuntimeEnv       map[string]string
}

// RunLog is one ordered log line belonging to a Run.
type RunLog struct {
	RunID        uuid.UUID
	Sequence     int64
	Timestamp    time.Time
	Level        LogLevel
	Message      string
	PostTerminal bool
}

type LogLevel string

const (
	LogDebug LogLevel = "DEBUG"
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// Artifact is one output file declared or discovered for a Run. Name is
// unique per run.
type Artifact struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	Name        string
	Path        string
	SizeBytes   int64
	ContentType string
	CreatedAt   time.Time
}
