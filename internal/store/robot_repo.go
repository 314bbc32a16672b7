package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// CreateRobot inserts a new robot together with its tag set.
func (s *Store) CreateRobot(ctx context.Context, r *domain.Robot) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO robots (id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
	`, r.ID, r.Name); err != nil {
		return err
	}
	for _, tag := range r.Tags {
		if _, err := tx.Exec(ctx, `
			INSERT INTO robot_tags (robot_id, tag) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, r.ID, tag); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetRobotByID(ctx context.Context, id uuid.UUID) (*domain.Robot, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM robots WHERE id=$1
	`, id)
	var r domain.Robot
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	tags, err := s.listRobotTags(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Tags = tags
	return &r, nil
}

func (s *Store) GetRobotByName(ctx context.Context, name string) (*domain.Robot, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM robots WHERE name=$1
	`, name)
	var r domain.Robot
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	tags, err := s.listRobotTags(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Tags = tags
	return &r, nil
}

func (s *Store) listRobotTags(ctx context.Context, robotID uuid.UUID) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT tag FROM robot_tags WHERE robot_id=$1 ORDER BY tag`, robotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) ListRobots(ctx context.Context) ([]domain.Robot, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM robots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Robot
	for rows.Next() {
		var r domain.Robot
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		tags, err := s.listRobotTags(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

func (s *Store) TouchRobot(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE robots SET updated_at=$2 WHERE id=$1`, id, at)
	return err
}
