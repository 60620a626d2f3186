package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		icon string
	}{
		{"success", FormatSuccess, IconSuccess},
		{"error", FormatError, IconError},
		{"warning", FormatWarning, IconWarning},
		{"info", FormatInfo, IconInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.fn("grade recorded")
			assert.Contains(t, out, tt.icon)
			assert.Contains(t, out, "grade recorded")
		})
	}
}

func TestFormatStep(t *testing.T) {
	out := FormatStep(2, 12, "applying migration")
	assert.Contains(t, out, "[2/12]")
	assert.Contains(t, out, "applying migration")
}

func TestFormatKeyValue(t *testing.T) {
	out := FormatKeyValue("Student", "s-42")
	assert.Contains(t, out, "Student:")
	assert.Contains(t, out, "s-42")
}

func TestGradeColor(t *testing.T) {
	tests := []struct {
		grade string
		want  lipgloss.Color
	}{
		{"A", Success},
		{"b+", Success},
		{"C-", Warning},
		{"D", Warning},
		{"F", Error},
		{"P", TextMuted},
		{"", TextMuted},
	}

	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeColor(tt.grade))
		})
	}
}

func TestFormatGrade(t *testing.T) {
	assert.Contains(t, FormatGrade("A-"), "A-")
}

func TestDisableColors(t *testing.T) {
	primary, success := Primary, Success
	t.Cleanup(func() { Primary, Success = primary, success })

	DisableColors()

	assert.Equal(t, lipgloss.Color(""), Primary)
	assert.Equal(t, lipgloss.Color(""), Success)
}
