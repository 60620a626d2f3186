package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json output with fields", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Level: "debug", Format: FormatJSON, Output: &buf})
		require.NoError(t, err)

		log.Warn("snapshot write failed", "studentId", "s-1", "version", 10, "error", errors.New("disk full"))

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "warning", line["level"])
		assert.Equal(t, "snapshot write failed", line["msg"])
		assert.Equal(t, "s-1", line["studentId"])
		assert.Equal(t, float64(10), line["version"])
		assert.Equal(t, "disk full", line["error"])
	})

	t.Run("level filters lines", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Level: "warn", Output: &buf})
		require.NoError(t, err)

		log.Debug("hidden")
		log.Info("hidden")
		log.Error("projection failed", "projection", "grades")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "projection failed")
		assert.Contains(t, out, "projection=grades")
		assert.Equal(t, 1, strings.Count(out, "\n"))
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		assert.Error(t, err)

		_, err = New(Options{Format: "xml"})
		assert.ErrorContains(t, err, `unknown format "xml"`)
	})
}

func TestWrap(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	log := Wrap(base).With("component", "projection-manager")
	log.Debug("event dispatched", "studentId", "s-1")
	log.Info("odd args", "dangling")
	log.Info("non-string key", 42, "answer")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)

	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, "projection-manager", entries[0].Data["component"])
	assert.Equal(t, "s-1", entries[0].Data["studentId"])

	assert.Equal(t, "dangling", entries[1].Data["!BADKEY"])
	assert.Equal(t, "answer", entries[2].Data["42"])
}
