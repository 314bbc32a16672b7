package httpapi

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// executeRunRequest accepts version_id and robot_version_id as synonyms
// for the same field (spec.md §9 open question) — the source payload
// exposes both names, so either may be sent, but if both are present they
// must agree.
type executeRunRequest struct {
	VersionID        string            `json:"version_id"`
	RobotVersionID   string            `json:"robot_version_id"`
	RuntimeArguments []string          `json:"runtime_arguments"`
	RuntimeEnv       map[string]string `json:"runtime_env"`
	EnvName          string            `json:"env_name" binding:"required,envname"`
}

// resolvedVersionRef returns the single version id the request names, or
// an error if version_id and robot_version_id are both set to different
// values.
func (r executeRunRequest) resolvedVersionRef() (string, error) {
	if r.VersionID != "" && r.RobotVersionID != "" && r.VersionID != r.RobotVersionID {
		return "", fmt.Errorf("version_id and robot_version_id are both set and do not match")
	}
	if r.VersionID != "" {
		return r.VersionID, nil
	}
	return r.RobotVersionID, nil
}

type runDTO struct {
	ID              string     `json:"id"`
	RobotID         string     `json:"robot_id"`
	RobotVersionID  string     `json:"robot_version_id"`
	ServiceID       *string    `json:"service_id,omitempty"`
	ScheduleID      *string    `json:"schedule_id,omitempty"`
	EnvName         string     `json:"env_name"`
	TriggerType     string     `json:"trigger_type"`
	Attempt         int        `json:"attempt"`
	Status          string     `json:"status"`
	QueuedAt        time.Time  `json:"queued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CanceledAt      *time.Time `json:"canceled_at,omitempty"`
}

func toRunDTO(r domain.Run) runDTO {
	dto := runDTO{
		ID:              r.ID.String(),
		RobotID:         r.RobotID.String(),
		RobotVersionID:  r.RobotVersionID.String(),
		EnvName:         string(r.EnvName),
		TriggerType:     string(r.TriggerType),
		Attempt:         r.Attempt,
		Status:          string(r.Status),
		QueuedAt:        r.QueuedAt,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationSeconds: r.DurationSeconds,
		ErrorMessage:    r.ErrorMessage,
		CancelRequested: r.CancelRequested,
		CanceledAt:      r.CanceledAt,
	}
	if r.ServiceID != nil {
		s := r.ServiceID.String()
		dto.ServiceID = &s
	}
	if r.ScheduleID != nil {
		s := r.ScheduleID.String()
		dto.ScheduleID = &s
	}
	return dto
}

type runLogDTO struct {
	Sequence     int64     `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	PostTerminal bool      `json:"post_terminal"`
}

func toRunLogDTO(l domain.RunLog) runLogDTO {
	return runLogDTO{
		Sequence:     l.Sequence,
		Timestamp:    l.Timestamp,
		Level:        string(l.Level),
		Message:      l.Message,
		PostTerminal: l.PostTerminal,
	}
}

type artifactDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

func toArtifactDTO(a domain.Artifact) artifactDTO {
	return artifactDTO{ID: a.ID.String(), Name: a.Name, SizeBytes: a.SizeBytes, ContentType: a.ContentType}
}

type publishVersionRequest struct {
	Version        string `form:"version" binding:"required,semver"`
	Channel        string `form:"channel" binding:"required"`
	Changelog      string `form:"changelog"`
	EntrypointPath string `form:"entrypoint_path" binding:"required"`
	EntrypointType string `form:"entrypoint_type" binding:"required"`
	Activate       bool   `form:"activate"`
	CommitSHA      string `form:"commit_sha"`
	Branch         string `form:"branch"`
	BuildURL       string `form:"build_url"`
}

type versionDTO struct {
	ID             string    `json:"id"`
	RobotID        string    `json:"robot_id"`
	Version        string    `json:"version"`
	Channel        string    `json:"channel"`
	ArtifactDigest string    `json:"artifact_digest"`
	EntrypointPath string    `json:"entrypoint_path"`
	Changelog      string    `json:"changelog"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toVersionDTO(v domain.RobotVersion) versionDTO {
	return versionDTO{
		ID:             v.ID.String(),
		RobotID:        v.RobotID.String(),
		Version:        v.Version,
		Channel:        string(v.Channel),
		ArtifactDigest: v.ArtifactDigest,
		EntrypointPath: v.EntrypointPath,
		Changelog:      v.Changelog,
		IsActive:       v.IsActive,
		CreatedAt:      v.CreatedAt,
	}
}

type upsertScheduleRequest struct {
	Enabled             *bool  `json:"enabled"`
	CronExpr            string `json:"cron_expr" binding:"required,cronexpr"`
	Timezone            string `json:"timezone" binding:"required"`
	WindowStart         string `json:"window_start" binding:"hhmm"`
	WindowEnd           string `json:"window_end" binding:"hhmm"`
	MaxConcurrency      int    `json:"max_concurrency"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	RetryCount          int    `json:"retry_count"`
	RetryBackoffSeconds int    `json:"retry_backoff_seconds"`
}

type patchScheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

type scheduleDTO struct {
	ID                  string    `json:"id"`
	RobotID             string    `json:"robot_id"`
	Enabled             bool      `json:"enabled"`
	CronExpr            string    `json:"cron_expr"`
	Timezone            string    `json:"timezone"`
	WindowStart         string    `json:"window_start,omitempty"`
	WindowEnd           string    `json:"window_end,omitempty"`
	MaxConcurrency      int       `json:"max_concurrency"`
	TimeoutSeconds      int       `json:"timeout_seconds"`
	RetryCount          int       `json:"retry_count"`
	RetryBackoffSeconds int       `json:"retry_backoff_seconds"`
	LastTickAt          time.Time `json:"last_tick_at"`
}

func toScheduleDTO(s domain.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:                  s.ID.String(),
		RobotID:             s.RobotID.String(),
		Enabled:             s.Enabled,
		CronExpr:            s.CronExpr,
		Timezone:            s.Timezone,
		WindowStart:         s.WindowStart,
		WindowEnd:           s.WindowEnd,
		MaxConcurrency:      s.MaxConcurrency,
		TimeoutSeconds:      s.TimeoutSeconds,
		RetryCount:          s.RetryCount,
		RetryBackoffSeconds: s.RetryBackoffSeconds,
		LastTickAt:          s.LastTickAt,
	}
}

type upsertSLARequest struct {
	ExpectedEveryMinutes int    `json:"expected_every_minutes"`
	ExpectedDailyTime    string `json:"expected_daily_time" binding:"hhmm"`
	LateAfterMinutes     int    `json:"late_after_minutes"`
	AlertOnFailure       *bool  `json:"alert_on_failure"`
	AlertOnLate          *bool  `json:"alert_on_late"`
	NotifyChannels       map[string]string `json:"notify_channels"`
}

type patchSLARequest struct {
	AlertOnFailure *bool `json:"alert_on_failure"`
	AlertOnLate    *bool `json:"alert_on_late"`
}

type slaDTO struct {
	ID                   string            `json:"id"`
	RobotID              string            `json:"robot_id"`
	ExpectedEveryMinutes int               `json:"expected_every_minutes"`
	ExpectedDailyTime    string            `json:"expected_daily_time,omitempty"`
	LateAfterMinutes     int               `json:"late_after_minutes"`
	AlertOnFailure       bool              `json:"alert_on_failure"`
	AlertOnLate          bool              `json:"alert_on_late"`
	NotifyChannels       map[string]string `json:"notify_channels,omitempty"`
}

func toSLADTO(r domain.SLARule) slaDTO {
	return slaDTO{
		ID:                   r.ID.String(),
		RobotID:              r.RobotID.String(),
		ExpectedEveryMinutes: r.ExpectedEveryMinutes,
		ExpectedDailyTime:    r.ExpectedDailyTime,
		LateAfterMinutes:     r.LateAfterMinutes,
		AlertOnFailure:       r.AlertOnFailure,
		AlertOnLate:          r.AlertOnLate,
		NotifyChannels:       r.NotifyChannels,
	}
}

type envItem struct {
	Key      string `json:"key" binding:"required"`
	Value    string `json:"value"`
	IsSecret bool   `json:"is_secret"`
}

type putEnvRequest struct {
	Items []envItem `json:"items" binding:"required,dive"`
}

// envBindingDTO redacts secret values (spec.md §7 "Secrets"): a secret
// row reports is_set instead of its plaintext or ciphertext.
type envBindingDTO struct {
	Key      string  `json:"key"`
	Value    *string `json:"value"`
	IsSecret bool    `json:"is_secret"`
	IsSet    bool    `json:"is_set"`
}

func toEnvBindingDTO(b domain.RobotEnvBinding) envBindingDTO {
	if b.IsSecret {
		return envBindingDTO{Key: b.Key, IsSecret: true, IsSet: b.Value != ""}
	}
	v := b.Value
	return envBindingDTO{Key: b.Key, Value: &v, IsSecret: false, IsSet: true}
}

type workerDTO struct {
	ID            string    `json:"id"`
	Hostname      string    `json:"hostname"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Version       string    `json:"version"`
}

func toWorkerDTO(w domain.Worker) workerDTO {
	return workerDTO{ID: w.ID.String(), Hostname: w.Hostname, Status: string(w.Status), LastHeartbeat: w.LastHeartbeat, Version: w.Version}
}

type opsStatusResponse struct {
	TotalWorkers        int `json:"total_workers"`
	WorkersRunning      int `json:"workers_running"`
	WorkersPaused       int `json:"workers_paused"`
	QueueDepth          int `json:"queue_depth"`
	RunsRunning         int `json:"runs_running"`
	RunsFailedLastHour  int `json:"runs_failed_last_hour"`
	UptimeSeconds       int `json:"uptime_seconds"`
}

type alertDTO struct {
	ID         string     `json:"id"`
	RobotID    string     `json:"robot_id"`
	RunID      *string    `json:"run_id,omitempty"`
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func toAlertDTO(a domain.AlertEvent) alertDTO {
	dto := alertDTO{
		ID:         a.ID.String(),
		RobotID:    a.RobotID.String(),
		Type:       string(a.Type),
		Severity:   string(a.Severity),
		Message:    a.Message,
		CreatedAt:  a.CreatedAt,
		ResolvedAt: a.ResolvedAt,
	}
	if a.RunID != nil {
		s := a.RunID.String()
		dto.RunID = &s
	}
	return dto
}

func parseUUIDParam(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil
}
