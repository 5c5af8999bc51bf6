package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the model as a single row of the model_artifacts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL model store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the model_artifacts table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS model_artifacts (
			id            SMALLINT PRIMARY KEY CHECK (id = 1),
			artifact      JSONB NOT NULL,
			trained_at    TIMESTAMPTZ NOT NULL,
			training_rows INTEGER NOT NULL,
			training_mse  DOUBLE PRECISION NOT NULL
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create model_artifacts: %w", err)
	}
	return nil
}

// Save overwrites the stored model.
func (s *PostgresStore) Save(ctx context.Context, m *Model) error {
	artifact, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	query := `
		INSERT INTO model_artifacts (id, artifact, trained_at, training_rows, training_mse)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			artifact = EXCLUDED.artifact,
			trained_at = EXCLUDED.trained_at,
			training_rows = EXCLUDED.training_rows,
			training_mse = EXCLUDED.training_mse
	`
	if _, err := s.pool.Exec(ctx, query, artifact, m.TrainedAt, m.TrainingRows, m.TrainingMSE); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// Load reads the stored model.
func (s *PostgresStore) Load(ctx context.Context) (*Model, error) {
	var artifact []byte
	err := s.pool.QueryRow(ctx, `SELECT artifact FROM model_artifacts WHERE id = 1`).Scan(&artifact)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	return decode(artifact)
}
