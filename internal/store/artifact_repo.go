package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

func (s *Store) CreateArtifact(ctx context.Context, a *domain.Artifact) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO artifacts (id, run_id, name, path, size_bytes, content_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (run_id, name) DO UPDATE SET
			path=EXCLUDED.path, size_bytes=EXCLUDED.size_bytes, content_type=EXCLUDED.content_type
	`, a.ID, a.RunID, a.Name, a.Path, a.SizeBytes, a.ContentType)
	return err
}

func (s *Store) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]domain.Artifact, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, run_id, name, path, size_bytes, content_type, created_at
		FROM artifacts WHERE run_id=$1 ORDER BY name
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		if err := rows.Scan(&a.ID, &a.RunID, &a.Name, &a.Path, &a.SizeBytes, &a.ContentType, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteArtifactsOlderThan is the cleanup component's artifact-retention
// sweep. Deletes the metadata rows and returns them so the caller can
// then remove the backing files from ArtifactsRoot.
func (s *Store) DeleteArtifactsOlderThan(ctx context.Context, cutoff any) ([]domain.Artifact, error) {
	rows, err := s.Pool.Query(ctx, `
		DELETE FROM artifacts WHERE created_at < $1
		RETURNING id, run_id, name, path, size_bytes, content_type, created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		if err := rows.Scan(&a.ID, &a.RunID, &a.Name, &a.Path, &a.SizeBytes, &a.ContentType, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
