package adapters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrConcurrencyConflict", ErrConcurrencyConflict},
		{"ErrStreamNotFound", ErrStreamNotFound},
		{"ErrEmptyStreamID", ErrEmptyStreamID},
		{"ErrNoEvents", ErrNoEvents},
		{"ErrInvalidVersion", ErrInvalidVersion},
		{"ErrAdapterClosed", ErrAdapterClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name+" has academic prefix", func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), "academic:")
		})

		t.Run(tt.name+" is distinct", func(t *testing.T) {
			for _, other := range tests {
				if tt.name != other.name {
					assert.False(t, errors.Is(tt.err, other.err),
						"%s should not match %s", tt.name, other.name)
				}
			}
		})
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		name     string
		streamID string
		expected string
	}{
		{"student record stream", "StudentRecord-s-42", "StudentRecord"},
		{"no hyphen returns entire ID", "SingleWord", "SingleWord"},
		{"empty string returns empty", "", ""},
		{"starts with hyphen returns empty", "-s-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractCategory(tt.streamID))
		})
	}
}

func TestRange_Contains(t *testing.T) {
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		r        Range
		version  int64
		ts       time.Time
		expected bool
	}{
		{"zero range includes everything", Range{}, 7, base, true},
		{"after version is exclusive", Range{AfterVersion: 3}, 3, base, false},
		{"after version admits the next", Range{AfterVersion: 3}, 4, base, true},
		{"max version is inclusive", Range{MaxVersion: 5}, 5, base, true},
		{"max version excludes beyond", Range{MaxVersion: 5}, 6, base, false},
		{"until is inclusive", Range{Until: base}, 1, base, true},
		{"until excludes later events", Range{Until: base}, 1, base.Add(time.Nanosecond), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.r.Contains(tt.version, tt.ts))
		})
	}
}

func TestConcurrencyError(t *testing.T) {
	t.Run("Error method returns formatted message", func(t *testing.T) {
		err := NewConcurrencyError("StudentRecord-s1", 5, 3)

		expected := `academic: concurrency conflict on stream "StudentRecord-s1": expected version 5, got 3`
		assert.Equal(t, expected, err.Error())
	})

	t.Run("Is matches ErrConcurrencyConflict only", func(t *testing.T) {
		err := NewConcurrencyError("StudentRecord-s1", 5, 3)

		assert.True(t, errors.Is(err, ErrConcurrencyConflict))
		assert.False(t, errors.Is(err, ErrStreamNotFound))
	})
}

func TestStreamNotFoundError(t *testing.T) {
	err := NewStreamNotFoundError("StudentRecord-s1")

	assert.Equal(t, `academic: stream "StudentRecord-s1" not found`, err.Error())
	assert.True(t, errors.Is(err, ErrStreamNotFound))
	assert.False(t, errors.Is(err, ErrConcurrencyConflict))
}

func TestCheckVersion(t *testing.T) {
	t.Run("AnyVersion always succeeds", func(t *testing.T) {
		assert.NoError(t, CheckVersion("s", AnyVersion, 5, true))
		assert.NoError(t, CheckVersion("s", AnyVersion, 0, false))
	})

	t.Run("NoStream fails when stream exists", func(t *testing.T) {
		err := CheckVersion("s", NoStream, 5, true)
		require.Error(t, err)

		var concErr *ConcurrencyError
		require.True(t, errors.As(err, &concErr))
		assert.Equal(t, NoStream, concErr.ExpectedVersion)
		assert.Equal(t, int64(5), concErr.ActualVersion)
	})

	t.Run("NoStream succeeds when stream does not exist", func(t *testing.T) {
		assert.NoError(t, CheckVersion("s", NoStream, 0, false))
	})

	t.Run("StreamExists fails when stream does not exist", func(t *testing.T) {
		err := CheckVersion("s", StreamExists, 0, false)
		assert.True(t, errors.Is(err, ErrStreamNotFound))
	})

	t.Run("positive version must match", func(t *testing.T) {
		assert.NoError(t, CheckVersion("s", 5, 5, true))
		assert.True(t, errors.Is(CheckVersion("s", 5, 3, true), ErrConcurrencyConflict))
	})

	t.Run("other negative versions are invalid", func(t *testing.T) {
		for _, v := range []int64{-3, -10} {
			assert.True(t, errors.Is(CheckVersion("s", v, 5, true), ErrInvalidVersion))
		}
	})
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, 100, DefaultLimit(0, 100))
	assert.Equal(t, 100, DefaultLimit(-1, 100))
	assert.Equal(t, 50, DefaultLimit(50, 100))
}
