// Package postgres provides a PostgreSQL implementation of the event store adapter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// Ensure PostgresAdapter implements required interfaces.
var (
	_ adapters.EventStoreAdapter = (*PostgresAdapter)(nil)
	_ adapters.SnapshotAdapter   = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker     = (*PostgresAdapter)(nil)
	_ adapters.Migrator          = (*PostgresAdapter)(nil)
)

// DefaultSchema is the schema used when none is configured.
const DefaultSchema = "academic"

// schemaVersion is bumped whenever Migrate learns a new table or index.
const schemaVersion = 2

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresAdapter is a PostgreSQL implementation of EventStoreAdapter and SnapshotAdapter.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
	closed bool
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxIdleConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) {
		a.db.SetConnMaxLifetime(d)
	}
}

// NewAdapter opens a connection pool through the pgx stdlib driver.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to open database: %w", err)
	}

	adapter := NewAdapterWithDB(db, opts...)
	if !identifierPattern.MatchString(adapter.schema) {
		_ = db.Close()
		return nil, fmt.Errorf("academic/postgres: invalid schema name %q", adapter.schema)
	}

	return adapter, nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *PostgresAdapter {
	adapter := &PostgresAdapter{
		db:     db,
		schema: DefaultSchema,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Initialize creates the required database schema and tables.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	return a.Migrate(ctx)
}

// Migrate creates the schema, tables and indexes if they do not exist.
func (a *PostgresAdapter) Migrate(ctx context.Context) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	if !identifierPattern.MatchString(a.schema) {
		return fmt.Errorf("academic/postgres: invalid schema name %q", a.schema)
	}

	statements := []struct {
		what string
		sql  string
	}{
		{"schema", `CREATE SCHEMA IF NOT EXISTS %[1]s`},
		{"streams table", `
			CREATE TABLE IF NOT EXISTS %[1]s.streams (
				stream_id       VARCHAR(500) PRIMARY KEY,
				category        VARCHAR(250) NOT NULL,
				version         BIGINT NOT NULL DEFAULT 0,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`},
		{"events table", `
			CREATE TABLE IF NOT EXISTS %[1]s.events (
				global_position BIGSERIAL PRIMARY KEY,
				stream_id       VARCHAR(500) NOT NULL,
				version         BIGINT NOT NULL,
				event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
				event_type      VARCHAR(250) NOT NULL,
				data            BYTEA NOT NULL,
				metadata        JSONB,
				recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(stream_id, version)
			)`},
		{"snapshots table", `
			CREATE TABLE IF NOT EXISTS %[1]s.snapshots (
				stream_id       VARCHAR(500) NOT NULL,
				version         BIGINT NOT NULL,
				taken_at        TIMESTAMPTZ NOT NULL,
				data            BYTEA NOT NULL,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (stream_id, version)
			)`},
		{"schema version table", `
			CREATE TABLE IF NOT EXISTS %[1]s.schema_version (
				version         INT NOT NULL,
				applied_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`},
		{"streams category index", `CREATE INDEX IF NOT EXISTS idx_streams_category ON %[1]s.streams(category)`},
		{"events time index", `CREATE INDEX IF NOT EXISTS idx_events_stream_time ON %[1]s.events(stream_id, recorded_at)`},
		{"snapshots time index", `CREATE INDEX IF NOT EXISTS idx_snapshots_stream_time ON %[1]s.snapshots(stream_id, taken_at)`},
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, fmt.Sprintf(stmt.sql, a.schema)); err != nil {
			return fmt.Errorf("academic/postgres: failed to create %s: %w", stmt.what, err)
		}
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s.schema_version (version)
		SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM %[1]s.schema_version WHERE version >= $1)`, a.schema), schemaVersion)
	if err != nil {
		return fmt.Errorf("academic/postgres: failed to record schema version: %w", err)
	}

	return nil
}

// MigrationVersion returns the highest applied schema version, or 0 before the first migration.
func (a *PostgresAdapter) MigrationVersion(ctx context.Context) (int, error) {
	if a.closed {
		return 0, adapters.ErrAdapterClosed
	}

	var exists bool
	err := a.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = 'schema_version'
		)`, a.schema).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("academic/postgres: failed to inspect schema: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version sql.NullInt64
	err = a.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(version) FROM %s.schema_version`, a.schema)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("academic/postgres: failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Append stores events to the specified stream with optimistic concurrency control.
// The stream row is locked for the duration of the transaction, so concurrent
// writers on one stream are serialized and exactly one wins a given expected version.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Insert-if-absent first so that two creators of a new stream also
	// contend on the same row lock.
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.streams (stream_id, category, version)
		VALUES ($1, $2, 0)
		ON CONFLICT (stream_id) DO NOTHING`, a.schema), streamID, adapters.ExtractCategory(streamID))
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to create stream: %w", err)
	}

	var currentVersion int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT version FROM %s.streams
		WHERE stream_id = $1
		FOR UPDATE`, a.schema), streamID).Scan(&currentVersion)
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, currentVersion > 0); err != nil {
		return nil, err
	}

	storedEvents := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("academic/postgres: failed to marshal metadata: %w", err)
		}

		var globalPosition int64
		var eventID string
		var recordedAt time.Time

		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s.events (stream_id, version, event_type, data, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING global_position, event_id, recorded_at`, a.schema),
			streamID, currentVersion, event.Type, event.Data, metadataJSON,
		).Scan(&globalPosition, &eventID, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("academic/postgres: failed to insert event: %w", err)
		}

		storedEvents[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(globalPosition),
			Timestamp:      recordedAt.UTC(),
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s.streams
		SET version = $1, updated_at = NOW()
		WHERE stream_id = $2`, a.schema), currentVersion, streamID)
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to commit transaction: %w", err)
	}

	return storedEvents, nil
}

// Load retrieves the events of a stream that fall inside the range.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, r adapters.Range) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	conditions := []string{"stream_id = $1", "version > $2"}
	args := []interface{}{streamID, r.AfterVersion}
	if r.MaxVersion > 0 {
		args = append(args, r.MaxVersion)
		conditions = append(conditions, fmt.Sprintf("version <= $%d", len(args)))
	}
	if !r.Until.IsZero() {
		args = append(args, r.Until)
		conditions = append(conditions, fmt.Sprintf("recorded_at <= $%d", len(args)))
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT event_id, stream_id, version, event_type, data, metadata, global_position, recorded_at
		FROM %s.events
		WHERE %s
		ORDER BY version`, a.schema, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadFromPosition loads events with a global position greater than fromPosition.
func (a *PostgresAdapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	limit = adapters.DefaultLimit(limit, adapters.DefaultBatchSize)

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT event_id, stream_id, version, event_type, data, metadata, global_position, recorded_at
		FROM %s.events
		WHERE global_position > $1
		ORDER BY global_position ASC
		LIMIT $2`, a.schema), int64(fromPosition), limit)
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, category, version, created_at, updated_at
		FROM %s.streams
		WHERE stream_id = $1 AND version > 0`, a.schema), streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&info.CreatedAt,
		&info.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to get stream info: %w", err)
	}

	info.EventCount = info.Version
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed {
		return 0, adapters.ErrAdapterClosed
	}

	var pos sql.NullInt64
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MAX(global_position) FROM %s.events`, a.schema)).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("academic/postgres: failed to get last position: %w", err)
	}

	if pos.Valid {
		return uint64(pos.Int64), nil
	}
	return 0, nil
}

// Close releases the database connection.
func (a *PostgresAdapter) Close() error {
	a.closed = true
	return a.db.Close()
}

// SaveSnapshot stores a snapshot, replacing any earlier one at the same version.
func (a *PostgresAdapter) SaveSnapshot(ctx context.Context, snapshot adapters.SnapshotRecord) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}

	if snapshot.StreamID == "" {
		return adapters.ErrEmptyStreamID
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.snapshots (stream_id, version, taken_at, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream_id, version) DO UPDATE SET
			taken_at = EXCLUDED.taken_at,
			data = EXCLUDED.data,
			created_at = NOW()`, a.schema),
		snapshot.StreamID, snapshot.Version, snapshot.Timestamp.UTC(), snapshot.Data)
	if err != nil {
		return fmt.Errorf("academic/postgres: failed to save snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves the snapshot with the highest version for the stream.
func (a *PostgresAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	return a.querySnapshot(ctx, `stream_id = $1 ORDER BY version DESC`, streamID)
}

// LoadSnapshotAtVersion retrieves the newest snapshot at or below maxVersion.
func (a *PostgresAdapter) LoadSnapshotAtVersion(ctx context.Context, streamID string, maxVersion int64) (*adapters.SnapshotRecord, error) {
	return a.querySnapshot(ctx, `stream_id = $1 AND version <= $2 ORDER BY version DESC`, streamID, maxVersion)
}

// LoadSnapshotAtTime retrieves the newest snapshot taken at or before until.
func (a *PostgresAdapter) LoadSnapshotAtTime(ctx context.Context, streamID string, until time.Time) (*adapters.SnapshotRecord, error) {
	return a.querySnapshot(ctx, `stream_id = $1 AND taken_at <= $2 ORDER BY taken_at DESC, version DESC`, streamID, until.UTC())
}

func (a *PostgresAdapter) querySnapshot(ctx context.Context, where string, args ...interface{}) (*adapters.SnapshotRecord, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	var snapshot adapters.SnapshotRecord
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, version, taken_at, data
		FROM %s.snapshots
		WHERE %s
		LIMIT 1`, a.schema, where), args...).Scan(
		&snapshot.StreamID,
		&snapshot.Version,
		&snapshot.Timestamp,
		&snapshot.Data,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("academic/postgres: failed to load snapshot: %w", err)
	}

	snapshot.Timestamp = snapshot.Timestamp.UTC()
	return &snapshot, nil
}

// DeleteSnapshots removes every snapshot of the stream.
func (a *PostgresAdapter) DeleteSnapshots(ctx context.Context, streamID string) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s.snapshots WHERE stream_id = $1`, a.schema), streamID)
	if err != nil {
		return fmt.Errorf("academic/postgres: failed to delete snapshots: %w", err)
	}

	return nil
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}

func scanEvents(rows *sql.Rows) ([]adapters.StoredEvent, error) {
	events := make([]adapters.StoredEvent, 0)

	for rows.Next() {
		var event adapters.StoredEvent
		var metadataJSON []byte
		var globalPosition int64

		err := rows.Scan(
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&globalPosition,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("academic/postgres: failed to scan event: %w", err)
		}

		event.GlobalPosition = uint64(globalPosition)
		event.Timestamp = event.Timestamp.UTC()

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("academic/postgres: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("academic/postgres: row iteration error: %w", err)
	}

	return events, nil
}
