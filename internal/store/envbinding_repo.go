package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// UpsertEnvBinding stores a config or secret value. Callers pass Value
// already encrypted (cipher.Envelope.Encrypt) when IsSecret is true — the
// store layer never encrypts or decrypts, it only persists bytes.
func (s *Store) UpsertEnvBinding(ctx context.Context, b *domain.RobotEnvBinding) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO robot_env_bindings (robot_id, env_name, key, value, is_secret, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
		ON CONFLICT (robot_id, env_name, key) DO UPDATE SET
			value=EXCLUDED.value, is_secret=EXCLUDED.is_secret, updated_at=NOW()
	`, b.RobotID, b.EnvName, b.Key, b.Value, b.IsSecret)
	return err
}

func (s *Store) DeleteEnvBinding(ctx context.Context, robotID uuid.UUID, envName domain.EnvName, key string) error {
	_, err := s.Pool.Exec(ctx, `
		DELETE FROM robot_env_bindings WHERE robot_id=$1 AND env_name=$2 AND key=$3
	`, robotID, envName, key)
	return err
}

// ListEnvBindings returns every key configured for a robot in one
// environment — the RunEngine calls this to assemble a run's environment
// before decrypting the secret subset.
func (s *Store) ListEnvBindings(ctx context.Context, robotID uuid.UUID, envName domain.EnvName) ([]domain.RobotEnvBinding, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT robot_id, env_name, key, value, is_secret, created_at, updated_at
		FROM robot_env_bindings WHERE robot_id=$1 AND env_name=$2 ORDER BY key
	`, robotID, envName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RobotEnvBinding
	for rows.Next() {
		var b domain.RobotEnvBinding
		if err := rows.Scan(&b.RobotID, &b.EnvName, &b.Key, &b.Value, &b.IsSecret, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
