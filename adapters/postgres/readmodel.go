package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	academic "github.com/songifi/LMS-Backend-sub004"
)

// ReadModelOption configures a ReadModelStore.
type ReadModelOption func(*readModelConfig)

type readModelConfig struct {
	schema      string
	autoMigrate bool
}

// WithReadModelSchema sets the PostgreSQL schema for the read model table.
func WithReadModelSchema(schema string) ReadModelOption {
	return func(c *readModelConfig) {
		c.schema = schema
	}
}

// WithAutoMigrate enables automatic table creation.
// Default is true.
func WithAutoMigrate(enabled bool) ReadModelOption {
	return func(c *readModelConfig) {
		c.autoMigrate = enabled
	}
}

// ReadModelStore keeps projection views as JSONB documents keyed by the
// projection's key. One table holds one projection's read model.
type ReadModelStore[T any] struct {
	db     *sql.DB
	schema string
	table  string
}

var _ academic.ReadModelStore[academic.GradeView] = (*ReadModelStore[academic.GradeView])(nil)

// NewReadModelStore creates a store backed by table.
//
// Example:
//
//	grades, err := postgres.NewReadModelStore[academic.GradeView](db, "grade_views")
//	projection := academic.NewGradesProjection(grades)
func NewReadModelStore[T any](db *sql.DB, table string, opts ...ReadModelOption) (*ReadModelStore[T], error) {
	config := readModelConfig{
		schema:      DefaultSchema,
		autoMigrate: true,
	}
	for _, opt := range opts {
		opt(&config)
	}

	if !identifierPattern.MatchString(config.schema) {
		return nil, fmt.Errorf("academic/postgres: invalid schema name %q", config.schema)
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("academic/postgres: invalid table name %q", table)
	}

	s := &ReadModelStore[T]{db: db, schema: config.schema, table: table}
	if config.autoMigrate {
		if err := s.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the schema and table if they do not exist.
func (s *ReadModelStore[T]) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.qualified()),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("academic/postgres: failed to migrate read model %s: %w", s.qualified(), err)
		}
	}
	return nil
}

// Get implements academic.ReadModelStore.
func (s *ReadModelStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	var data []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE key = $1`, s.qualified()), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("academic/postgres: failed to get %q: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("academic/postgres: failed to decode %q: %w", key, err)
	}
	return value, true, nil
}

// Upsert implements academic.ReadModelStore.
func (s *ReadModelStore[T]) Upsert(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("academic/postgres: failed to encode %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, s.qualified()),
		key, data)
	if err != nil {
		return fmt.Errorf("academic/postgres: failed to upsert %q: %w", key, err)
	}
	return nil
}

// Delete implements academic.ReadModelStore.
func (s *ReadModelStore[T]) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.qualified()), key)
	if err != nil {
		return fmt.Errorf("academic/postgres: failed to delete %q: %w", key, err)
	}
	return nil
}

// List implements academic.ReadModelStore.
func (s *ReadModelStore[T]) List(ctx context.Context, prefix string) ([]T, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE key LIKE $1 ESCAPE '\' ORDER BY key COLLATE "C"`, s.qualified()),
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to list %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("academic/postgres: failed to scan read model: %w", err)
		}
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("academic/postgres: failed to decode read model: %w", err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

// Clear implements academic.ReadModelStore.
func (s *ReadModelStore[T]) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE %s`, s.qualified())); err != nil {
		return fmt.Errorf("academic/postgres: failed to clear %s: %w", s.qualified(), err)
	}
	return nil
}

// TableName returns the schema-qualified table name.
func (s *ReadModelStore[T]) TableName() string {
	return s.qualified()
}

func (s *ReadModelStore[T]) qualified() string {
	return s.schema + "." + s.table
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
