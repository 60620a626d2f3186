package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinner(t *testing.T) {
	t.Run("init ticks", func(t *testing.T) {
		assert.NotNil(t, NewSpinner("Migrating...").Init())
	})

	t.Run("view shows message", func(t *testing.T) {
		assert.Contains(t, NewSpinner("Migrating...").View(), "Migrating...")
	})

	t.Run("quit keys", func(t *testing.T) {
		for _, key := range []tea.KeyMsg{
			{Type: tea.KeyRunes, Runes: []rune{'q'}},
			{Type: tea.KeyEsc},
			{Type: tea.KeyCtrlC},
		} {
			model, cmd := NewSpinner("x").Update(key)
			sm := model.(SpinnerModel)
			assert.True(t, sm.quitting, key.String())
			assert.NotNil(t, cmd)
			assert.Contains(t, sm.View(), "Cancelled")
		}
	})

	t.Run("done", func(t *testing.T) {
		model, cmd := NewSpinner("x").Update(SpinnerDoneMsg{Result: "Migrated"})
		assert.NotNil(t, cmd)
		assert.Contains(t, model.View(), "Migrated")
	})

	t.Run("done with error", func(t *testing.T) {
		model, _ := NewSpinner("x").Update(SpinnerDoneMsg{Result: "Migration failed", Err: errors.New("boom")})
		assert.Contains(t, model.View(), "Migration failed")
	})

	t.Run("tick", func(t *testing.T) {
		s := NewSpinner("x")
		_, cmd := s.Update(spinner.TickMsg{ID: s.spinner.ID()})
		assert.NotNil(t, cmd)
	})
}

func TestRebuildProgressMsg_Percent(t *testing.T) {
	tests := []struct {
		name string
		msg  RebuildProgressMsg
		want float64
	}{
		{"empty log", RebuildProgressMsg{}, 0},
		{"half", RebuildProgressMsg{Processed: 5, Total: 10}, 0.5},
		{"clamped", RebuildProgressMsg{Processed: 12, Total: 10}, 1},
		{"done", RebuildProgressMsg{Done: true}, 1},
		{"failed", RebuildProgressMsg{Processed: 3, Total: 10, Done: true, Err: errors.New("x")}, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.msg.Percent(), 1e-9)
		})
	}
}

func TestRebuildModel(t *testing.T) {
	t.Run("progress then done", func(t *testing.T) {
		var m tea.Model = NewRebuildModel("grades")

		m, cmd := m.Update(RebuildProgressMsg{Projection: "grades", Processed: 4, Total: 8})
		assert.Nil(t, cmd)
		assert.Contains(t, m.View(), "4/8")

		m, cmd = m.Update(RebuildProgressMsg{Projection: "grades", Processed: 8, Total: 8, Done: true})
		assert.NotNil(t, cmd)
		assert.Contains(t, m.View(), "replayed 8 events")
		assert.NoError(t, m.(RebuildModel).Err())
	})

	t.Run("failure", func(t *testing.T) {
		m, _ := NewRebuildModel("grades").Update(RebuildProgressMsg{Projection: "grades", Done: true, Err: errors.New("store down")})
		assert.Contains(t, m.View(), "store down")
		assert.Error(t, m.(RebuildModel).Err())
	})

	t.Run("cancel", func(t *testing.T) {
		m, cmd := NewRebuildModel("grades").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		require.NotNil(t, cmd)
		assert.True(t, m.(RebuildModel).Cancelled())
		assert.Contains(t, m.View(), "cancelled")
	})
}

func TestTable(t *testing.T) {
	table := NewTable("Course", "Grade")
	table.AddRow("CS101", "A")
	table.AddRow("MATH-2001-ADVANCED")
	table.AddRow("PHYS", "B", "ignored")

	out := table.Render()
	assert.Equal(t, 3, table.Len())
	assert.Contains(t, out, "Course")
	assert.Contains(t, out, "CS101")
	assert.Contains(t, out, "MATH-2001-ADVANCED")
	assert.NotContains(t, out, "ignored")
	assert.Len(t, strings.Split(out, "\n"), 7)

	assert.Empty(t, NewTable().Render())
}

func TestStatusBadge(t *testing.T) {
	for _, status := range []string{"ready", "rebuilding", "faulted", "Enrolled", "Dropped", "unknown"} {
		assert.Contains(t, StatusBadge(status), status)
	}
}

func TestBannerAndLists(t *testing.T) {
	assert.Contains(t, Banner(), "academic")
	assert.NotEmpty(t, Divider(10))

	out := ListItems([]string{"grades", "enrollments"})
	assert.Contains(t, out, "grades")
	assert.Contains(t, out, "enrollments")
}
