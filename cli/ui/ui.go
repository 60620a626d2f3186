// Package ui provides the interactive components of the academic CLI:
// a spinner, a rebuild progress bar, tables and status badges.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/songifi/LMS-Backend-sub004/cli/styles"
)

// SpinnerModel shows a spinner next to a message until SpinnerDoneMsg arrives.
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)
	return SpinnerModel{spinner: s, message: message}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuitKey(msg) {
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m SpinnerModel) View() string {
	switch {
	case m.done && m.err != nil:
		return styles.FormatError(m.result) + "\n"
	case m.done:
		return styles.FormatSuccess(m.result) + "\n"
	case m.quitting:
		return styles.FormatWarning("Cancelled") + "\n"
	}
	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// SpinnerDoneMsg signals that the spinner operation is complete.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// RebuildProgressMsg reports how far a projection rebuild has got.
type RebuildProgressMsg struct {
	Projection string
	Processed  int64
	Total      int64
	Done       bool
	Err        error
}

// Percent returns the completed fraction in [0, 1].
func (m RebuildProgressMsg) Percent() float64 {
	if m.Done && m.Err == nil {
		return 1
	}
	if m.Total <= 0 {
		return 0
	}
	p := float64(m.Processed) / float64(m.Total)
	if p > 1 {
		p = 1
	}
	return p
}

// RebuildModel renders one progress bar per rebuild. It quits when the
// final message arrives or the user cancels; Cancelled tells which.
type RebuildModel struct {
	bar       progress.Model
	last      RebuildProgressMsg
	cancelled bool
}

// NewRebuildModel creates a progress bar for rebuilding the named projection.
func NewRebuildModel(projection string) RebuildModel {
	return RebuildModel{
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
		last: RebuildProgressMsg{Projection: projection},
	}
}

// Cancelled reports whether the user quit before the rebuild finished.
func (m RebuildModel) Cancelled() bool {
	return m.cancelled
}

// Err returns the rebuild failure, if the final message carried one.
func (m RebuildModel) Err() error {
	return m.last.Err
}

func (m RebuildModel) Init() tea.Cmd {
	return nil
}

func (m RebuildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuitKey(msg) {
			m.cancelled = true
			return m, tea.Quit
		}

	case RebuildProgressMsg:
		m.last = msg
		if msg.Done {
			return m, tea.Quit
		}

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m RebuildModel) View() string {
	name := m.last.Projection
	switch {
	case m.last.Done && m.last.Err != nil:
		return styles.FormatError(fmt.Sprintf("%s: %v", name, m.last.Err)) + "\n"
	case m.last.Done:
		return styles.FormatSuccess(fmt.Sprintf("%s: replayed %d events", name, m.last.Processed)) + "\n"
	case m.cancelled:
		return styles.FormatWarning(name+": cancelled") + "\n"
	}
	counts := styles.Muted.Render(fmt.Sprintf("%d/%d", m.last.Processed, m.last.Total))
	return fmt.Sprintf("%-16s %s %s\n", name, m.bar.ViewAs(m.last.Percent()), counts)
}

func isQuitKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return true
	}
	return false
}

// Table renders rows inside a box-drawing border.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow adds a row. Missing cells are blank and extra cells are ignored.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
			if w := lipgloss.Width(values[i]); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the formatted table.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	border := lipgloss.NewStyle().Foreground(styles.Border)
	header := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)

	rule := func(left, mid, right string) string {
		parts := make([]string, len(t.widths))
		for i, w := range t.widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return border.Render(left + strings.Join(parts, mid) + right)
	}
	line := func(values []string, style lipgloss.Style) string {
		var sb strings.Builder
		sb.WriteString(border.Render("│"))
		for i, v := range values {
			sb.WriteString(style.Width(t.widths[i] + 2).Render(v))
			sb.WriteString(border.Render("│"))
		}
		return sb.String()
	}

	lines := []string{rule("┌", "┬", "┐"), line(t.headers, header), rule("├", "┼", "┤")}
	for _, row := range t.rows {
		lines = append(lines, line(row, cell))
	}
	lines = append(lines, rule("└", "┴", "┘"))
	return strings.Join(lines, "\n")
}

// StatusBadge renders a status as a colored badge.
func StatusBadge(status string) string {
	bg, fg := styles.Surface, styles.Text
	switch strings.ToLower(status) {
	case "ready", "enrolled", "ok", "applied", "healthy":
		bg, fg = styles.Success, lipgloss.Color("#000000")
	case "rebuilding", "pending":
		bg, fg = styles.Warning, lipgloss.Color("#000000")
	case "faulted", "dropped", "failed", "error":
		bg, fg = styles.Error, lipgloss.Color("#FFFFFF")
	}
	return lipgloss.NewStyle().Background(bg).Foreground(fg).Padding(0, 1).Render(status)
}

// Banner returns the one-line CLI banner.
func Banner() string {
	return styles.IconCap + " " +
		lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("academic") +
		" " + styles.Muted.Render("- event-sourced student records")
}

// Divider returns a horizontal divider line.
func Divider(width int) string {
	return styles.Dim.Render(strings.Repeat("─", width))
}

// ListItems formats items as a bulleted list.
func ListItems(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("  ")
		sb.WriteString(styles.ListItemBullet.Render(styles.IconDot))
		sb.WriteString(styles.Normal.Render(item))
		sb.WriteString("\n")
	}
	return sb.String()
}
