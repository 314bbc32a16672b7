package domain

import (
	"time"

	"github.com/google/uuid"
)

// EnvName is one of the three environments a run can target.
type EnvName string

const (
	EnvProd EnvName = "PROD"
	EnvHML  EnvName = "HML"
	EnvTest EnvName = "TEST"
)

func (e EnvName) Valid() bool {
	switch e {
	case EnvProd, EnvHML, EnvTest:
		return true
	}
	return false
}

// RobotEnvBinding supplies one config or secret value for a robot in one
// environment. Key is unique per (robot, env_name). Value holds ciphertext
// when IsSecret is true, plaintext otherwise.
type RobotEnvBinding struct {
	RobotID   uuid.UUID
	EnvName   EnvName
	Key       string
	Value     string
	IsSecret  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
