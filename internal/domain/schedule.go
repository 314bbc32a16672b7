package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is the one-per-robot cron policy that drives SCHEDULED runs.
type Schedule struct {
	ID                   uuid.UUID
	RobotID              uuid.UUID
	Enabled              bool
	CronExpr             string // 5-field: minute hour dom month dow
	Timezone             string // IANA zone name
	WindowStart          string // "HH:MM", empty if unset
	WindowEnd            string // "HH:MM", empty if unset
	MaxConcurrency       int
	TimeoutSeconds       int
	RetryCount           int
	RetryBackoffSeconds  int
	LastTickAt           time.Time // last successful Scheduler tick boundary
	CreatedAt            time.Time
}

// HasWindow reports whether the schedule restricts SCHEDULED runs to a
// daily local-time window.
func (s Schedule) HasWindow() bool {
	return s.WindowStart != "" && s.WindowEnd != ""
}
