package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// CreateVersion inserts a new RobotVersion. The (robot_id, version)
// uniqueness constraint surfaces a duplicate publish as a Postgres
// unique_violation, which callers map to apperr.Conflict.
func (s *Store) CreateVersion(ctx context.Context, v *domain.RobotVersion) error {
	args, err := json.Marshal(v.DefaultArguments)
	if err != nil {
		return err
	}
	env, err := json.Marshal(v.DefaultEnv)
	if err != nil {
		return err
	}
	required, err := json.Marshal(v.RequiredEnvKeys)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO robot_versions (
			id, robot_id, version, channel, artifact_kind, artifact_digest,
			entrypoint_kind, entrypoint_path, default_arguments, default_env,
			working_dir, required_env_keys, source_commit, source_branch,
			source_build_url, created_source, changelog, is_active, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW())
	`, v.ID, v.RobotID, v.Version, v.Channel, v.ArtifactKind, v.ArtifactDigest,
		v.EntrypointKind, v.EntrypointPath, args, env,
		v.WorkingDir, required, v.SourceMeta.Commit, v.SourceMeta.Branch,
		v.SourceMeta.BuildURL, v.SourceMeta.CreatedSource, v.Changelog, v.IsActive, v.CreatedBy)
	return err
}

// ActivateVersion clears IsActive for every other version of the robot and
// sets it for versionID, inside one transaction so "at most one active
// version per robot" (spec §3) never observes two active rows.
func (s *Store) ActivateVersion(ctx context.Context, robotID, versionID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE robot_versions SET is_active=FALSE WHERE robot_id=$1`, robotID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE robot_versions SET is_active=TRUE WHERE id=$1 AND robot_id=$2`, versionID, robotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return tx.Commit(ctx)
}

func (s *Store) GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.RobotVersion, error) {
	row := s.Pool.QueryRow(ctx, versionSelect+` WHERE id=$1`, id)
	return scanVersion(row)
}

// GetActiveVersion returns the robot's active version, or pgx.ErrNoRows if
// none is active — the caller (runengine.CreateRun) maps this to
// apperr.PreconditionFailed as spec §4.1's NoActiveVersion.
func (s *Store) GetActiveVersion(ctx context.Context, robotID uuid.UUID) (*domain.RobotVersion, error) {
	row := s.Pool.QueryRow(ctx, versionSelect+` WHERE robot_id=$1 AND is_active`, robotID)
	return scanVersion(row)
}

func (s *Store) ListVersions(ctx context.Context, robotID uuid.UUID) ([]domain.RobotVersion, error) {
	rows, err := s.Pool.Query(ctx, versionSelect+` WHERE robot_id=$1 ORDER BY created_at DESC`, robotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RobotVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

const versionSelect = `
	SELECT id, robot_id, version, channel, artifact_kind, artifact_digest,
		entrypoint_kind, entrypoint_path, default_arguments, default_env,
		working_dir, required_env_keys, source_commit, source_branch,
		source_build_url, created_source, changelog, is_active, created_by, created_at
	FROM robot_versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*domain.RobotVersion, error) {
	var v domain.RobotVersion
	var args, env, required []byte
	if err := row.Scan(
		&v.ID, &v.RobotID, &v.Version, &v.Channel, &v.ArtifactKind, &v.ArtifactDigest,
		&v.EntrypointKind, &v.EntrypointPath, &args, &env,
		&v.WorkingDir, &required, &v.SourceMeta.Commit, &v.SourceMeta.Branch,
		&v.SourceMeta.BuildURL, &v.SourceMeta.CreatedSource, &v.Changelog, &v.IsActive, &v.CreatedBy, &v.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(args, &v.DefaultArguments); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env, &v.DefaultEnv); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(required, &v.RequiredEnvKeys); err != nil {
		return nil, err
	}
	return &v, nil
}
