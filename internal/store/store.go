package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ExecutionRecord is the persisted outcome of a single action run.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	Module     string          `json:"module"`
	Prototype  string          `json:"prototype"`
	Successful schemas.Flag    `json:"successful"`
	Feedback   string          `json:"feedback"`
	Paused     schemas.Flag    `json:"paused"`
	PauseInfo  string          `json:"pause_info,omitempty"`
	Deps       json.RawMessage `json:"deps,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store persists action execution records in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// RecordExecution inserts one execution record. Empty JSON payloads are
// normalized to "{}" so the jsonb columns never see null.
func (s *Store) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	deps := rec.Deps
	if len(deps) == 0 || string(deps) == "null" {
		deps = json.RawMessage("{}")
	}
	output := rec.Output
	if len(output) == 0 || string(output) == "null" {
		output = json.RawMessage("{}")
	}

	createdAt := rec.CreatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
        INSERT INTO action_executions (id, module, prototype, successful, feedback, paused, pause_info, deps, output, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
    `
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Module, rec.Prototype,
		string(rec.Successful), rec.Feedback,
		string(rec.Paused), rec.PauseInfo,
		deps, output, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent records for a module, newest first.
// An empty module name returns records across all modules.
func (s *Store) ListExecutions(ctx context.Context, module string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT id, module, prototype, successful, feedback, paused, pause_info, deps, output, created_at
        FROM action_executions
    `
	args := []interface{}{}
	if module != "" {
		query += " WHERE module = $1 ORDER BY created_at DESC LIMIT $2;"
		args = append(args, module, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1;"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var successful, paused string
		err := rows.Scan(
			&rec.ID, &rec.Module, &rec.Prototype,
			&successful, &rec.Feedback,
			&paused, &rec.PauseInfo,
			&rec.Deps, &rec.Output, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		rec.Successful = schemas.Flag(successful)
		rec.Paused = schemas.Flag(paused)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}
