package domain

import "github.com/google/uuid"

// SLARule is the one-per-robot lateness/failure alerting policy.
type SLARule struct {
	ID                    uuid.UUID
	RobotID               uuid.UUID
	ExpectedEveryMinutes  int    // 0 means unset
	ExpectedDailyTime     string // "HH:MM", empty if unset
	LateAfterMinutes      int
	AlertOnFailure        bool
	AlertOnLate           bool
	NotifyChannels        map[string]string
}
