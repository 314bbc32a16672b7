// Package store is the durable repository of robots, versions, schedules,
// SLA rules, runs, run logs, artifacts, workers, alerts and env bindings
// (spec §3). It exposes transactional operations only — no business
// rules live here, those belong to runengine, scheduler and slamonitor.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// errNotFound is returned by repository methods whose row-affecting
// update matched nothing. Callers wrap it with apperr.NotFound /
// apperr.Conflict depending on which invariant it signals.
var errNotFound = errors.New("store: not found")

// Store bundles the connection pool every repository shares. Repository
// methods hang off this type instead of free functions so a caller can
// pass a single *Store through the component graph.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to Postgres and verifies the connection with a ping. It
// does not run schema migrations — call EnsureSchema explicitly, mirroring
// the teacher's split between connecting and provisioning.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// EnsureSchema creates every table the run lifecycle engine needs if it
// does not already exist. Real deployments run versioned migrations
// upstream of this; EnsureSchema exists so a fresh dev environment and
// the test harness can stand the schema up without one, matching the
// teacher's `db.EnsureSchema`.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.Pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS robots (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS robot_tags (
		robot_id UUID NOT NULL REFERENCES robots(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		PRIMARY KEY (robot_id, tag)
	)`,
	`CREATE TABLE IF NOT EXISTS robot_versions (
		id UUID PRIMARY KEY,
		robot_id UUID NOT NULL REFERENCES robots(id) ON DELETE CASCADE,
		version TEXT NOT NULL,
		channel TEXT NOT NULL,
		artifact_kind TEXT NOT NULL,
		artifact_digest TEXT NOT NULL,
		entrypoint_kind TEXT NOT NULL,
		entrypoint_path TEXT NOT NULL,
		default_arguments JSONB NOT NULL DEFAULT '[]',
		default_env JSONB NOT NULL DEFAULT '{}',
		working_dir TEXT NOT NULL DEFAULT '',
		required_env_keys JSONB NOT NULL DEFAULT '[]',
		source_commit TEXT NOT NULL DEFAULT '',
		source_branch TEXT NOT NULL DEFAULT '',
		source_build_url TEXT NOT NULL DEFAULT '',
		created_source TEXT NOT NULL DEFAULT 'user',
		changelog TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (robot_id, version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_robot_versions_active
		ON robot_versions(robot_id) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id UUID PRIMARY KEY,
		robot_id UUID NOT NULL UNIQUE REFERENCES robots(id) ON DELETE CASCADE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		cron_expr TEXT NOT NULL,
		timezone TEXT NOT NULL,
		window_start TEXT NOT NULL DEFAULT '',
		window_end TEXT NOT NULL DEFAULT '',
		max_concurrency INT NOT NULL DEFAULT 1,
		timeout_seconds INT NOT NULL DEFAULT 3600,
		retry_count INT NOT NULL DEFAULT 0,
		retry_backoff_seconds INT NOT NULL DEFAULT 60,
		last_tick_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS sla_rules (
		id UUID PRIMARY KEY,
		robot_id UUID NOT NULL UNIQUE REFERENCES robots(id) ON DELETE CASCADE,
		expected_every_minutes INT NOT NULL DEFAULT 0,
		expected_daily_time TEXT NOT NULL DEFAULT '',
		late_after_minutes INT NOT NULL DEFAULT 15,
		alert_on_failure BOOLEAN NOT NULL DEFAULT TRUE,
		alert_on_late BOOLEAN NOT NULL DEFAULT TRUE,
		notify_channels JSONB NOT NULL DEFAULT '{}'
	)`,

	`CREATE TABLE IF NOT EXISTS robot_env_bindings (
		robot_id UUID NOT NULL REFERENCES robots(id) ON DELETE CASCADE,
		env_name TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		is_secret BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (robot_id, env_name, key)
	)`,

	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		robot_id UUID NOT NULL REFERENCES robots(id),
		robot_version_id UUID NOT NULL REFERENCES robot_versions(id),
		service_id UUID,
		schedule_id UUID REFERENCES schedules(id),
		schedule_fire_time TIMESTAMPTZ,
		env_name TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		attempt INT NOT NULL DEFAULT 1,
		runtime_arguments JSONB NOT NULL DEFAULT '[]',
		runtime_env JSONB NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		queued_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		duration_seconds DOUBLE PRECISION,
		triggered_by UUID,
		host_name TEXT NOT NULL DEFAULT '',
		process_id INT NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
		canceled_at TIMESTAMPTZ,
		canceled_by UUID,
		claimed_by UUID,
		UNIQUE (schedule_id, schedule_fire_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_robot_status ON runs(robot_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_queued_at ON runs(queued_at)`,

	`CREATE TABLE IF NOT EXISTS run_logs (
		run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		sequence BIGINT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		post_terminal BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (run_id, sequence)
	)`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (run_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS workers (
		id UUID PRIMARY KEY,
		hostname TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'RUNNING',
		last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		version TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS alert_events (
		id UUID PRIMARY KEY,
		robot_id UUID NOT NULL,
		run_id UUID,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_events_open
		ON alert_events(robot_id, type) WHERE resolved_at IS NULL`,
}
