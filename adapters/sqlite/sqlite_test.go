package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/songifi/LMS-Backend-sub004/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestAdapter(t *testing.T, opts ...Option) *SQLiteAdapter {
	t.Helper()
	adapter, err := Open(filepath.Join(t.TempDir(), "academic.db"), opts...)
	require.NoError(t, err)
	require.NoError(t, adapter.Initialize(context.Background()))
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func events(n int) []adapters.EventRecord {
	out := make([]adapters.EventRecord, n)
	for i := range out {
		out[i] = adapters.EventRecord{
			Type:     "CourseEnrolled",
			Data:     []byte(`{"courseId":"MATH201"}`),
			Metadata: adapters.Metadata{UserID: "advisor", Custom: map[string]string{"semester": "Spring2025"}},
		}
	}
	return out
}

func TestOpen(t *testing.T) {
	t.Run("requires a path", func(t *testing.T) {
		_, err := Open("  ")
		assert.Error(t, err)
	})

	t.Run("migration is idempotent and versioned", func(t *testing.T) {
		adapter := openTestAdapter(t)
		ctx := context.Background()

		require.NoError(t, adapter.Migrate(ctx))
		version, err := adapter.MigrationVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, version)
		assert.NoError(t, adapter.Ping(ctx))
	})
}

func TestSQLiteAdapter_AppendAndLoad(t *testing.T) {
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	tick := start
	adapter := openTestAdapter(t, WithClock(func() time.Time {
		now := tick
		tick = tick.Add(time.Hour)
		return now
	}))
	ctx := context.Background()

	first, err := adapter.Append(ctx, "StudentRecord-s1", events(2), adapters.NoStream)
	require.NoError(t, err)
	second, err := adapter.Append(ctx, "StudentRecord-s1", events(1), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(3), second[0].Version)
	assert.Equal(t, start, first[0].Timestamp)
	assert.Equal(t, start.Add(time.Hour), second[0].Timestamp)

	t.Run("round trips envelopes", func(t *testing.T) {
		loaded, err := adapter.Load(ctx, "StudentRecord-s1", adapters.Range{})
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		assert.Equal(t, first[0].ID, loaded[0].ID)
		assert.Equal(t, "advisor", loaded[0].Metadata.UserID)
		assert.Equal(t, "Spring2025", loaded[2].Metadata.Custom["semester"])
		assert.Equal(t, `{"courseId":"MATH201"}`, string(loaded[1].Data))
	})

	t.Run("honours the time ceiling", func(t *testing.T) {
		loaded, err := adapter.Load(ctx, "StudentRecord-s1", adapters.Range{Until: start.Add(30 * time.Minute)})
		require.NoError(t, err)
		assert.Len(t, loaded, 2)
	})

	t.Run("honours version bounds", func(t *testing.T) {
		loaded, err := adapter.Load(ctx, "StudentRecord-s1", adapters.Range{AfterVersion: 2})
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, int64(3), loaded[0].Version)
	})

	t.Run("rejects a stale version", func(t *testing.T) {
		_, err := adapter.Append(ctx, "StudentRecord-s1", events(1), 2)
		assert.True(t, errors.Is(err, adapters.ErrConcurrencyConflict))
	})

	t.Run("pages the global log", func(t *testing.T) {
		page, err := adapter.LoadFromPosition(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, uint64(2), page[0].GlobalPosition)

		last, err := adapter.GetLastPosition(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), last)
	})

	t.Run("stream info", func(t *testing.T) {
		info, err := adapter.GetStreamInfo(ctx, "StudentRecord-s1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), info.Version)
		assert.Equal(t, start, info.CreatedAt)

		_, err = adapter.GetStreamInfo(ctx, "StudentRecord-nope")
		assert.ErrorIs(t, err, adapters.ErrStreamNotFound)
	})
}

func TestSQLiteAdapter_ConcurrentAppend(t *testing.T) {
	adapter := openTestAdapter(t)
	ctx := context.Background()
	_, err := adapter.Append(ctx, "StudentRecord-s1", events(1), adapters.NoStream)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = adapter.Append(ctx, "StudentRecord-s1", events(1), 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestSQLiteAdapter_Snapshots(t *testing.T) {
	adapter := openTestAdapter(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, v := range []int64{10, 20, 30} {
		require.NoError(t, adapter.SaveSnapshot(ctx, adapters.SnapshotRecord{
			StreamID:  "StudentRecord-s1",
			Version:   v,
			Timestamp: base.Add(time.Duration(v) * time.Hour),
			Data:      []byte{0x1, byte(v)},
		}))
	}

	latest, err := adapter.LoadSnapshot(ctx, "StudentRecord-s1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(30), latest.Version)
	assert.Equal(t, []byte{0x1, 30}, latest.Data)

	atVersion, err := adapter.LoadSnapshotAtVersion(ctx, "StudentRecord-s1", 29)
	require.NoError(t, err)
	require.NotNil(t, atVersion)
	assert.Equal(t, int64(20), atVersion.Version)

	atTime, err := adapter.LoadSnapshotAtTime(ctx, "StudentRecord-s1", base.Add(15*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, atTime)
	assert.Equal(t, int64(10), atTime.Version)
	assert.Equal(t, base.Add(10*time.Hour), atTime.Timestamp)

	none, err := adapter.LoadSnapshotAtVersion(ctx, "StudentRecord-s1", 5)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, adapter.DeleteSnapshots(ctx, "StudentRecord-s1"))
	gone, err := adapter.LoadSnapshot(ctx, "StudentRecord-s1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSQLiteAdapter_Closed(t *testing.T) {
	adapter, err := Open(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, adapter.Close())

	_, err = adapter.Append(context.Background(), "StudentRecord-s1", events(1), adapters.NoStream)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)
	assert.NoError(t, adapter.Close())
}

func TestSQLiteAdapter_CloseWhileLoading(t *testing.T) {
	ctx := context.Background()
	adapter, err := Open(filepath.Join(t.TempDir(), "race.db"))
	require.NoError(t, err)
	require.NoError(t, adapter.Initialize(ctx))
	_, err = adapter.Append(ctx, "StudentRecord-s1", events(2), adapters.NoStream)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := adapter.Load(ctx, "StudentRecord-s1", adapters.Range{}); err != nil {
					return
				}
			}
		}()
	}
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, adapter.Close())
		}()
	}
	wg.Wait()

	_, err = adapter.Load(ctx, "StudentRecord-s1", adapters.Range{})
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)
}
