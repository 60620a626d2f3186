// Package sqlite provides an embedded single-file event store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/songifi/LMS-Backend-sub004/adapters"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

var (
	_ adapters.EventStoreAdapter = (*SQLiteAdapter)(nil)
	_ adapters.SnapshotAdapter   = (*SQLiteAdapter)(nil)
	_ adapters.HealthChecker     = (*SQLiteAdapter)(nil)
	_ adapters.Migrator          = (*SQLiteAdapter)(nil)
)

// SQLiteAdapter persists streams and snapshots in a single SQLite file.
type SQLiteAdapter struct {
	db *sql.DB

	// writeMu serializes appends issued through this handle; the file lock
	// covers other processes.
	writeMu sync.Mutex
	now     func() time.Time
	closed  atomic.Bool
}

// Option configures a SQLiteAdapter.
type Option func(*SQLiteAdapter)

// WithClock sets the function used to timestamp appended events.
func WithClock(now func() time.Time) Option {
	return func(a *SQLiteAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database file at path.
// Call Initialize to apply the embedded schema.
func Open(path string, opts ...Option) (*SQLiteAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("academic/sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("academic/sqlite: ping db: %w", err)
	}

	adapter := &SQLiteAdapter{db: db, now: time.Now}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter, nil
}

// Initialize applies the embedded schema.
func (a *SQLiteAdapter) Initialize(ctx context.Context) error {
	return a.Migrate(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (a *SQLiteAdapter) Migrate(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}

	up := schemaSQL
	if idx := strings.Index(up, "-- +migrate Down"); idx >= 0 {
		up = up[:idx]
	}
	if _, err := a.db.ExecContext(ctx, up); err != nil {
		return fmt.Errorf("academic/sqlite: apply schema: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, "PRAGMA user_version = 1"); err != nil {
		return fmt.Errorf("academic/sqlite: record schema version: %w", err)
	}
	return nil
}

// MigrationVersion returns the schema version stored in the file header.
func (a *SQLiteAdapter) MigrationVersion(ctx context.Context) (int, error) {
	if a.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	var version int
	if err := a.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("academic/sqlite: read schema version: %w", err)
	}
	return version, nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *SQLiteAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT version FROM streams WHERE stream_id = ?`, streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("academic/sqlite: get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, exists); err != nil {
		return nil, err
	}

	// Millisecond precision matches what Load reads back.
	now := a.now().UTC().Truncate(time.Millisecond)
	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO streams (stream_id, category, version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
			streamID, adapters.ExtractCategory(streamID), toMillis(now), toMillis(now))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion)
			}
			return nil, fmt.Errorf("academic/sqlite: create stream: %w", err)
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("academic/sqlite: marshal metadata: %w", err)
		}

		eventID := uuid.New().String()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			eventID, streamID, currentVersion, event.Type, event.Data, string(metadataJSON), toMillis(now))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion-1)
			}
			return nil, fmt.Errorf("academic/sqlite: insert event: %w", err)
		}
		position, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("academic/sqlite: read global position: %w", err)
		}

		stored[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(position),
			Timestamp:      now,
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE streams SET version = ?, updated_at = ? WHERE stream_id = ?`,
		currentVersion, toMillis(now), streamID)
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("academic/sqlite: commit tx: %w", err)
	}
	return stored, nil
}

// Load retrieves the events of a stream that fall inside the range.
func (a *SQLiteAdapter) Load(ctx context.Context, streamID string, r adapters.Range) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	query := `SELECT event_id, stream_id, version, event_type, data, metadata, global_position, recorded_at
		FROM events WHERE stream_id = ? AND version > ?`
	args := []interface{}{streamID, r.AfterVersion}
	if r.MaxVersion > 0 {
		query += ` AND version <= ?`
		args = append(args, r.MaxVersion)
	}
	if !r.Until.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, toMillis(r.Until))
	}
	query += ` ORDER BY version`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: load events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadFromPosition loads events with a global position greater than fromPosition.
func (a *SQLiteAdapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT event_id, stream_id, version, event_type, data, metadata, global_position, recorded_at
		 FROM events WHERE global_position > ? ORDER BY global_position LIMIT ?`,
		int64(fromPosition), adapters.DefaultLimit(limit, adapters.DefaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: load events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetStreamInfo returns metadata about a stream.
func (a *SQLiteAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	var info adapters.StreamInfo
	var createdAt, updatedAt int64
	err := a.db.QueryRowContext(ctx,
		`SELECT stream_id, category, version, created_at, updated_at FROM streams WHERE stream_id = ?`,
		streamID).Scan(&info.StreamID, &info.Category, &info.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: get stream info: %w", err)
	}

	info.EventCount = info.Version
	info.CreatedAt = fromMillis(createdAt)
	info.UpdatedAt = fromMillis(updatedAt)
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *SQLiteAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	var pos sql.NullInt64
	if err := a.db.QueryRowContext(ctx, `SELECT MAX(global_position) FROM events`).Scan(&pos); err != nil {
		return 0, fmt.Errorf("academic/sqlite: get last position: %w", err)
	}
	return uint64(pos.Int64), nil
}

// SaveSnapshot stores a snapshot, replacing any earlier one at the same version.
func (a *SQLiteAdapter) SaveSnapshot(ctx context.Context, snapshot adapters.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if snapshot.StreamID == "" {
		return adapters.ErrEmptyStreamID
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO snapshots (stream_id, version, taken_at, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (stream_id, version) DO UPDATE SET taken_at = excluded.taken_at, data = excluded.data`,
		snapshot.StreamID, snapshot.Version, toMillis(snapshot.Timestamp), snapshot.Data)
	if err != nil {
		return fmt.Errorf("academic/sqlite: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the snapshot with the highest version for the stream.
func (a *SQLiteAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	return a.querySnapshot(ctx, `stream_id = ? ORDER BY version DESC`, streamID)
}

// LoadSnapshotAtVersion retrieves the newest snapshot at or below maxVersion.
func (a *SQLiteAdapter) LoadSnapshotAtVersion(ctx context.Context, streamID string, maxVersion int64) (*adapters.SnapshotRecord, error) {
	return a.querySnapshot(ctx, `stream_id = ? AND version <= ? ORDER BY version DESC`, streamID, maxVersion)
}

// LoadSnapshotAtTime retrieves the newest snapshot taken at or before until.
func (a *SQLiteAdapter) LoadSnapshotAtTime(ctx context.Context, streamID string, until time.Time) (*adapters.SnapshotRecord, error) {
	return a.querySnapshot(ctx, `stream_id = ? AND taken_at <= ? ORDER BY taken_at DESC, version DESC`, streamID, toMillis(until))
}

func (a *SQLiteAdapter) querySnapshot(ctx context.Context, where string, args ...interface{}) (*adapters.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	var snapshot adapters.SnapshotRecord
	var takenAt int64
	err := a.db.QueryRowContext(ctx,
		`SELECT stream_id, version, taken_at, data FROM snapshots WHERE `+where+` LIMIT 1`, args...).
		Scan(&snapshot.StreamID, &snapshot.Version, &takenAt, &snapshot.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("academic/sqlite: load snapshot: %w", err)
	}
	snapshot.Timestamp = fromMillis(takenAt)
	return &snapshot, nil
}

// DeleteSnapshots removes every snapshot of the stream.
func (a *SQLiteAdapter) DeleteSnapshots(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM snapshots WHERE stream_id = ?`, streamID); err != nil {
		return fmt.Errorf("academic/sqlite: delete snapshots: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close closes the SQLite handle.
func (a *SQLiteAdapter) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	return a.db.Close()
}

func scanEvents(rows *sql.Rows) ([]adapters.StoredEvent, error) {
	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var event adapters.StoredEvent
		var metadataJSON sql.NullString
		var position, recordedAt int64

		if err := rows.Scan(&event.ID, &event.StreamID, &event.Version, &event.Type,
			&event.Data, &metadataJSON, &position, &recordedAt); err != nil {
			return nil, fmt.Errorf("academic/sqlite: scan event: %w", err)
		}
		event.GlobalPosition = uint64(position)
		event.Timestamp = fromMillis(recordedAt)

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("academic/sqlite: unmarshal metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("academic/sqlite: row iteration: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
