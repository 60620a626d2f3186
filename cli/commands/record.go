package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/cli/styles"
	"github.com/songifi/LMS-Backend-sub004/cli/ui"
)

func newRecordCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Read and change student records",
		Long: `Read a student's record or append to it.

Examples:
  academic record show s-1                        # Current record
  academic record show s-1 --version 3            # Record after its third event
  academic record show s-1 --at 2024-09-30        # Record as of a date
  academic record history s-1                     # Every event in order
  academic record grade s-1 CS101 A --points 4 --semester 2024-FALL --by prof-1
  academic record enroll s-1 CS101 --semester 2024-FALL --by registrar`,
	}

	cmd.AddCommand(newRecordShowCommand(c))
	cmd.AddCommand(newRecordHistoryCommand(c))
	cmd.AddCommand(newRecordGradeCommand(c))
	cmd.AddCommand(newRecordModifyGradeCommand(c))
	cmd.AddCommand(newRecordEnrollCommand(c))
	cmd.AddCommand(newRecordDropCommand(c))
	cmd.AddCommand(newRecordProgressCommand(c))

	return cmd
}

func newRecordShowCommand(c *cli) *cobra.Command {
	var (
		version int64
		at      string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "show STUDENT",
		Short: "Show a student's record",
		Long: `Show a student's record: its grades, enrollments and degree progress.

--version reconstructs the record after that many events; --at reconstructs
it from the events recorded up to the given date (a bare date includes the
whole day).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version != 0 && at != "" {
				return fmt.Errorf("--version and --at cannot be combined")
			}

			rt, release, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			studentID := args[0]

			var view *academic.RecordView
			switch {
			case version != 0:
				view, err = rt.Service.GetStudentRecordAtVersion(ctx, studentID, version)
			case at != "":
				var date time.Time
				if date, err = parseDate(at, true); err != nil {
					return err
				}
				view, err = rt.Service.GetStudentRecordAtDate(ctx, studentID, date)
			default:
				view, err = rt.Service.GetStudentRecord(ctx, studentID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, view)
			}
			printRecord(out, view)
			return nil
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "Reconstruct the record at this version")
	cmd.Flags().StringVar(&at, "at", "", "Reconstruct the record as of this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")

	return cmd
}

func printRecord(w io.Writer, view *academic.RecordView) {
	title := fmt.Sprintf("%s Student %s", styles.IconRecord, view.StudentID)
	switch view.Method {
	case academic.MethodVersion:
		title += fmt.Sprintf(" at version %d", view.Version)
	case academic.MethodDate:
		title += fmt.Sprintf(" as of %s (version %d)", view.AsOf.UTC().Format(time.RFC3339), view.Version)
	default:
		title += fmt.Sprintf(" (version %d)", view.Version)
	}
	fmt.Fprintln(w, styles.Title.Render(title))
	fmt.Fprintln(w, ui.Divider(48))

	fmt.Fprintln(w, styles.Subtitle.Render("Grades"))
	if len(view.Grades) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("  none"))
	} else {
		table := ui.NewTable("Course", "Grade", "Points", "Semester", "By", "Note")
		for _, g := range view.Grades {
			by, note := g.RecordedBy, ""
			if g.ModifiedBy != "" {
				by, note = g.ModifiedBy, g.Reason
			}
			table.AddRow(g.CourseID, styles.FormatGrade(g.Grade), strconv.FormatFloat(g.Points, 'f', 2, 64), g.Semester, by, note)
		}
		fmt.Fprintln(w, table.Render())
	}

	fmt.Fprintln(w, styles.Subtitle.Render("Enrollments"))
	if len(view.Enrollments) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("  none"))
	} else {
		table := ui.NewTable("Course", "Semester", "Status", "Enrolled", "Dropped", "Reason")
		for _, e := range view.Enrollments {
			table.AddRow(e.CourseID, e.Semester, ui.StatusBadge(string(e.Status)),
				formatDate(e.EnrollmentDate), formatDate(e.DropDate), e.DropReason)
		}
		fmt.Fprintln(w, table.Render())
	}

	fmt.Fprintln(w, styles.Subtitle.Render("Degree Progress"))
	if len(view.DegreeProgress) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("  none"))
	} else {
		table := ui.NewTable("Degree", "Credits", "Fulfilled", "Remaining", "Projected")
		for _, d := range view.DegreeProgress {
			table.AddRow(d.DegreeID, strconv.FormatFloat(d.CreditsEarned, 'f', 1, 64),
				strings.Join(d.RequirementsFulfilled, ", "), strings.Join(d.RemainingRequirements, ", "),
				formatDate(d.ProjectedCompletionDate))
		}
		fmt.Fprintln(w, table.Render())
	}
}

func newRecordHistoryCommand(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history STUDENT",
		Short: "List every event of a student's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, release, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			events, err := rt.Service.GetHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, historyJSON(events))
			}

			fmt.Fprintln(out, styles.Title.Render(fmt.Sprintf("%s History of %s", styles.IconRecord, args[0])))
			table := ui.NewTable("Version", "Event", "Recorded", "By", "Details")
			for _, e := range events {
				table.AddRow(strconv.FormatInt(e.Version, 10), string(e.Payload.EventType()),
					e.Timestamp.UTC().Format(time.RFC3339), e.Metadata.UserID, describeEvent(e.Payload))
			}
			fmt.Fprintln(out, table.Render())
			fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("%d event(s)", len(events))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the history as JSON")
	return cmd
}

type historyEntry struct {
	ID             string            `json:"id"`
	Version        int64             `json:"version"`
	GlobalPosition uint64            `json:"globalPosition"`
	Type           string            `json:"type"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       academic.Metadata `json:"metadata"`
	Payload        academic.Event    `json:"payload"`
}

func historyJSON(events []academic.DomainEvent) []historyEntry {
	out := make([]historyEntry, len(events))
	for i, e := range events {
		out[i] = historyEntry{
			ID:             e.ID,
			Version:        e.Version,
			GlobalPosition: e.GlobalPosition,
			Type:           string(e.Payload.EventType()),
			Timestamp:      e.Timestamp,
			Metadata:       e.Metadata,
			Payload:        e.Payload,
		}
	}
	return out
}

// dispatch sends cmd through the record service and prints the outcome.
func (c *cli) dispatch(cmd *cobra.Command, what string, command academic.Command) error {
	rt, release, err := c.runtime(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	result, err := rt.Service.Dispatch(cmd.Context(), command)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), what, result)
	return nil
}

func newRecordGradeCommand(c *cli) *cobra.Command {
	var (
		points   float64
		semester string
		by       string
	)

	cmd := &cobra.Command{
		Use:   "grade STUDENT COURSE GRADE",
		Short: "Record a course grade",
		Long: `Record the grade a student obtained in a course.
Recording a grade for a course that already has one replaces it.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.dispatch(cmd, "Grade recorded", academic.RecordGrade{
				StudentID:  args[0],
				CourseID:   args[1],
				Grade:      args[2],
				Points:     points,
				Semester:   semester,
				RecordedBy: by,
			})
		},
	}

	cmd.Flags().Float64Var(&points, "points", 0, "Grade points")
	cmd.Flags().StringVar(&semester, "semester", "", "Semester the grade belongs to")
	cmd.Flags().StringVar(&by, "by", "", "Who records the grade")
	return cmd
}

func newRecordModifyGradeCommand(c *cli) *cobra.Command {
	var (
		points float64
		by     string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "modify-grade STUDENT COURSE GRADE",
		Short: "Correct a recorded grade",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.dispatch(cmd, "Grade modified", academic.ModifyGrade{
				StudentID:  args[0],
				CourseID:   args[1],
				NewGrade:   args[2],
				NewPoints:  points,
				ModifiedBy: by,
				Reason:     reason,
			})
		},
	}

	cmd.Flags().Float64Var(&points, "points", 0, "New grade points")
	cmd.Flags().StringVar(&by, "by", "", "Who modifies the grade")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the grade changes")
	return cmd
}

// dateFlag parses an optional date flag, defaulting to today in UTC.
func dateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return parseDate(value, false)
}

func newRecordEnrollCommand(c *cli) *cobra.Command {
	var (
		semester string
		date     string
		by       string
	)

	cmd := &cobra.Command{
		Use:   "enroll STUDENT COURSE",
		Short: "Enroll a student in a course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enrolled, err := dateFlag(date)
			if err != nil {
				return err
			}
			return c.dispatch(cmd, "Enrolled "+args[1], academic.EnrollInCourse{
				StudentID:      args[0],
				CourseID:       args[1],
				Semester:       semester,
				EnrollmentDate: enrolled,
				EnrolledBy:     by,
			})
		},
	}

	cmd.Flags().StringVar(&semester, "semester", "", "Semester of the enrollment")
	cmd.Flags().StringVar(&date, "date", "", "Enrollment date (default: today)")
	cmd.Flags().StringVar(&by, "by", "", "Who enrolls the student")
	return cmd
}

func newRecordDropCommand(c *cli) *cobra.Command {
	var (
		semester string
		date     string
		by       string
		reason   string
	)

	cmd := &cobra.Command{
		Use:   "drop STUDENT COURSE",
		Short: "Drop an active enrollment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dropped, err := dateFlag(date)
			if err != nil {
				return err
			}
			return c.dispatch(cmd, "Dropped "+args[1], academic.DropCourse{
				StudentID: args[0],
				CourseID:  args[1],
				Semester:  semester,
				DropDate:  dropped,
				DroppedBy: by,
				Reason:    reason,
			})
		},
	}

	cmd.Flags().StringVar(&semester, "semester", "", "Semester of the enrollment")
	cmd.Flags().StringVar(&date, "date", "", "Drop date (default: today)")
	cmd.Flags().StringVar(&by, "by", "", "Who drops the course")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the course is dropped")
	return cmd
}

func newRecordProgressCommand(c *cli) *cobra.Command {
	var (
		credits    float64
		fulfilled  string
		remaining  string
		completion string
		by         string
	)

	cmd := &cobra.Command{
		Use:   "progress STUDENT DEGREE",
		Short: "Replace a student's progress towards a degree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var projected time.Time
			if completion != "" {
				var err error
				if projected, err = parseDate(completion, false); err != nil {
					return err
				}
			}
			return c.dispatch(cmd, "Degree progress updated", academic.UpdateDegreeProgress{
				StudentID:               args[0],
				DegreeID:                args[1],
				CreditsEarned:           credits,
				RequirementsFulfilled:   splitList(fulfilled),
				RemainingRequirements:   splitList(remaining),
				ProjectedCompletionDate: projected,
				UpdatedBy:               by,
			})
		},
	}

	cmd.Flags().Float64Var(&credits, "credits", 0, "Credits earned")
	cmd.Flags().StringVar(&fulfilled, "fulfilled", "", "Comma separated fulfilled requirements")
	cmd.Flags().StringVar(&remaining, "remaining", "", "Comma separated remaining requirements")
	cmd.Flags().StringVar(&completion, "completion", "", "Projected completion date")
	cmd.Flags().StringVar(&by, "by", "", "Who updates the progress")
	return cmd
}
