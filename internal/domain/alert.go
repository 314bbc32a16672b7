package domain

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertLate           AlertType = "LATE"
	AlertFailureStreak  AlertType = "FAILURE_STREAK"
	AlertWorkerDown     AlertType = "WORKER_DOWN"
	AlertQueueBacklog   AlertType = "QUEUE_BACKLOG"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarn     AlertSeverity = "WARN"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// DefaultSeverity returns the spec's fixed severity for an alert type.
func DefaultSeverity(t AlertType) AlertSeverity {
	switch t {
	case AlertLate:
		return SeverityWarn
	case AlertFailureStreak:
		return SeverityCritical
	case AlertWorkerDown:
		return SeverityCritical
	case AlertQueueBacklog:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// QueueBacklogRobotID is the sentinel robot id used for the one global
// QUEUE_BACKLOG alert, which has no natural robot owner.
var QueueBacklogRobotID = uuid.Nil

// AlertEvent records a detected SLA condition. At most one open
// (ResolvedAt zero) event exists per (RobotID, Type).
type AlertEvent struct {
	ID         uuid.UUID
	RobotID    uuid.UUID
	RunID      *uuid.UUID
	Type       AlertType
	Severity   AlertSeverity
	Message    string
	Metadata   map[string]string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

func (a AlertEvent) Open() bool {
	return a.ResolvedAt == nil
}
