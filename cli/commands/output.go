package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/cli/styles"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dateLayouts are the accepted --date formats, tried in order.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// parseDate parses a flag value as a UTC time. A bare date means midnight
// UTC, except for "until" bounds where it means the end of that day.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" && endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", value)
}

// formatDate renders a time for tables; the zero time is blank.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// splitList splits a comma separated flag value, dropping empty items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// describeEvent summarizes an event payload in one line.
func describeEvent(e academic.Event) string {
	switch e := e.(type) {
	case academic.GradeRecorded:
		return fmt.Sprintf("%s %s (%.2f) in %s", e.CourseID, e.Grade, e.Points, e.Semester)
	case academic.GradeModified:
		s := fmt.Sprintf("%s -> %s (%.2f)", e.CourseID, e.NewGrade, e.NewPoints)
		if e.Reason != "" {
			s += ": " + e.Reason
		}
		return s
	case academic.CourseEnrolled:
		return fmt.Sprintf("%s in %s on %s", e.CourseID, e.Semester, formatDate(e.EnrollmentDate))
	case academic.CourseDropped:
		s := fmt.Sprintf("%s in %s on %s", e.CourseID, e.Semester, formatDate(e.DropDate))
		if e.Reason != "" {
			s += ": " + e.Reason
		}
		return s
	case academic.DegreeProgressUpdated:
		return fmt.Sprintf("%s %.1f credits, %d remaining", e.DegreeID, e.CreditsEarned, len(e.RemainingRequirements))
	default:
		return ""
	}
}

// printResult reports a successful command and any derived write that
// failed after the events were committed.
func printResult(w io.Writer, what string, result academic.CommandResult) {
	fmt.Fprintln(w, styles.FormatSuccess(fmt.Sprintf("%s for %s (version %d)", what, result.StudentID, result.Version)))

	save := result.Save
	if save == nil {
		return
	}
	if save.SnapshotWritten {
		fmt.Fprintln(w, styles.FormatInfo(fmt.Sprintf("Snapshot written at version %d", save.Version)))
	}
	if save.SnapshotErr != nil {
		fmt.Fprintln(w, styles.FormatWarning("Snapshot failed: "+save.SnapshotErr.Error()))
	}
	for _, err := range save.ProjectionErrs {
		fmt.Fprintln(w, styles.FormatWarning("Projection update failed: "+err.Error()))
	}
	for _, err := range save.PublishErrs {
		fmt.Fprintln(w, styles.FormatWarning("Publish failed: "+err.Error()))
	}
}
