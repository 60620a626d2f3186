// Package styles holds the colors and text styles of the academic CLI.
package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Primary      = lipgloss.Color("#2563EB") // Royal blue
	PrimaryLight = lipgloss.Color("#60A5FA")
	Secondary    = lipgloss.Color("#D97706") // Gold

	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F9FAFB")
	TextMuted = lipgloss.Color("#9CA3AF")
	TextDim   = lipgloss.Color("#6B7280")
	Surface   = lipgloss.Color("#1F2937")
	Border    = lipgloss.Color("#374151")
)

// Text styles
var (
	Bold = lipgloss.NewStyle().Bold(true)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryLight)

	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted  = lipgloss.NewStyle().Foreground(TextMuted)
	Dim    = lipgloss.NewStyle().Foreground(TextDim)

	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error)
	InfoStyle    = lipgloss.NewStyle().Foreground(Info)
)

// Icons
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconDot      = "•"
	IconDatabase = "🗄️"
	IconRecord   = "📘"
	IconChart    = "📊"
	IconCap      = "🎓"
)

func roundedBox(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2)
}

// Boxes
var (
	Box        = roundedBox(Border)
	BoxSuccess = roundedBox(Success)
	BoxWarning = roundedBox(Warning)
	BoxError   = roundedBox(Error)
)

// ListItemBullet renders list bullets.
var ListItemBullet = lipgloss.NewStyle().Foreground(Primary).PaddingRight(1)

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatStep formats a step of a multi-step process, e.g. "[2/5] msg".
func FormatStep(step, total int, msg string) string {
	return lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(8).
		Render(fmt.Sprintf("[%d/%d]", step, total)) + " " + msg
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	return lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(20).
		Render(key+":") + " " + Highlight.Render(value)
}

// GradeColor picks a color for a letter grade: green for A and B, amber
// for C and D, red for anything failing, muted for marks like "P" or "I".
func GradeColor(grade string) lipgloss.Color {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if g == "" {
		return TextMuted
	}
	switch g[:1] {
	case "A", "B":
		return Success
	case "C", "D":
		return Warning
	case "F":
		return Error
	default:
		return TextMuted
	}
}

// FormatGrade renders a letter grade in its color.
func FormatGrade(grade string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(GradeColor(grade)).Render(grade)
}

// DisableColors turns off colors for terminals that don't support them.
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &TextDim, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
}
