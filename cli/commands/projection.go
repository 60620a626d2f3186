package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/cli/styles"
	"github.com/songifi/LMS-Backend-sub004/cli/ui"
)

func newProjectionCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projection",
		Aliases: []string{"proj"},
		Short:   "Manage read model projections",
		Long: `Inspect, query and rebuild the read models derived from the event log.

Projections: grades, enrollments, degree-progress.

Examples:
  academic projection list                         # Status of every projection
  academic projection rebuild grades               # Rebuild one projection
  academic projection rebuild --all --force        # Rebuild all without asking
  academic projection query grades --student s-1   # Read a projection`,
	}

	cmd.AddCommand(newProjectionListCommand(c))
	cmd.AddCommand(newProjectionRebuildCommand(c))
	cmd.AddCommand(newProjectionQueryCommand(c))

	return cmd
}

func newProjectionListCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the status of every projection",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, release, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			head, err := rt.Adapter.GetLastPosition(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Title.Render(styles.IconChart+" Projections"))

			table := ui.NewTable("Name", "State", "Events", "Position", "Behind", "Last Processed", "Error")
			for _, s := range rt.Projections.GetAllStatuses() {
				last := ""
				if !s.LastProcessedAt.IsZero() {
					last = s.LastProcessedAt.UTC().Format(time.RFC3339)
				}
				behind := uint64(0)
				if head > s.LastPosition {
					behind = head - s.LastPosition
				}
				table.AddRow(s.Name, ui.StatusBadge(string(s.State)),
					strconv.FormatUint(s.EventsProcessed, 10),
					strconv.FormatUint(s.LastPosition, 10),
					strconv.FormatUint(behind, 10),
					last, s.Error)
			}
			fmt.Fprintln(out, table.Render())
			fmt.Fprintln(out, styles.FormatKeyValue("Log position", strconv.FormatUint(head, 10)))
			return nil
		},
	}
}

func newProjectionRebuildCommand(c *cli) *cobra.Command {
	var (
		all   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild [NAME...]",
		Short: "Reset projections and replay the whole log into them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("name one or more projections or pass --all")
			}

			rt, release, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			names := args
			if all {
				names = rt.Projections.Names()
			}
			for _, name := range names {
				if _, err := rt.Projections.Projection(name); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if !force {
				confirmed, err := confirmRebuild(names)
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(out, styles.FormatInfo("Cancelled"))
					return nil
				}
			}

			for _, name := range names {
				if err := rebuildOne(cmd, rt, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Rebuild every projection")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}

func confirmRebuild(names []string) (bool, error) {
	if !isTerminal(os.Stdin) {
		return false, fmt.Errorf("confirmation needs a terminal, pass --force to rebuild anyway")
	}

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Rebuild %s?", strings.Join(names, ", "))).
				Description("This deletes the projected data and replays the whole event log").
				Value(&confirmed),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

// rebuildOne rebuilds a projection, drawing a progress bar on a terminal
// and printing a summary line otherwise.
func rebuildOne(cmd *cobra.Command, rt *Runtime, name string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if !isTerminal(out) {
		var last academic.RebuildProgress
		err := rt.Projections.RebuildProjection(ctx, name, academic.RebuildOptions{
			ProgressCallback: func(p academic.RebuildProgress) { last = p },
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Rebuilt %s: replayed %d events in %s",
			name, last.ProcessedEvents, last.Duration.Round(time.Millisecond))))
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewRebuildModel(name), tea.WithOutput(out))
	done := make(chan error, 1)
	go func() {
		var last academic.RebuildProgress
		err := rt.Projections.RebuildProjection(ctx, name, academic.RebuildOptions{
			ProgressEvery: 50,
			ProgressCallback: func(progress academic.RebuildProgress) {
				last = progress
				p.Send(progressMsg(progress, false, nil))
			},
		})
		p.Send(progressMsg(last, true, err))
		done <- err
	}()

	model, err := p.Run()
	if err != nil {
		cancel()
		<-done
		return err
	}
	if m, ok := model.(ui.RebuildModel); ok && m.Cancelled() {
		cancel()
	}
	return <-done
}

func progressMsg(p academic.RebuildProgress, done bool, err error) ui.RebuildProgressMsg {
	return ui.RebuildProgressMsg{
		Projection: p.ProjectionName,
		Processed:  int64(p.ProcessedEvents),
		Total:      int64(p.TotalEvents),
		Done:       done,
		Err:        err,
	}
}

func newProjectionQueryCommand(c *cli) *cobra.Command {
	var (
		student string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "query NAME",
		Short: "Print the contents of a projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, release, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			rows, table, err := queryProjection(cmd.Context(), rt, args[0], student)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, rows)
			}
			if table.Len() == 0 {
				fmt.Fprintln(out, styles.FormatInfo("No rows"))
				return nil
			}
			fmt.Fprintln(out, table.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&student, "student", "", "Only rows of this student")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func queryProjection(ctx context.Context, rt *Runtime, name, student string) (interface{}, *ui.Table, error) {
	switch name {
	case academic.GradesProjectionName:
		rows, err := listViews(ctx, student, rt.Grades.State, rt.Grades.ForStudent)
		if err != nil {
			return nil, nil, err
		}
		table := ui.NewTable("Student", "Course", "Grade", "Points", "Semester", "Version")
		for _, v := range rows {
			table.AddRow(v.StudentID, v.CourseID, styles.FormatGrade(v.Grade),
				strconv.FormatFloat(v.Points, 'f', 2, 64), v.Semester, strconv.FormatInt(v.Version, 10))
		}
		return rows, table, nil

	case academic.EnrollmentsProjectionName:
		rows, err := listViews(ctx, student, rt.Enrollments.State, rt.Enrollments.ForStudent)
		if err != nil {
			return nil, nil, err
		}
		table := ui.NewTable("Student", "Course", "Semester", "Status", "Enrolled", "Dropped")
		for _, v := range rows {
			table.AddRow(v.StudentID, v.CourseID, v.Semester, ui.StatusBadge(string(v.Status)),
				formatDate(v.EnrollmentDate), formatDate(v.DropDate))
		}
		return rows, table, nil

	case academic.DegreeProgressProjectionName:
		rows, err := listViews(ctx, student, rt.Degrees.State, rt.Degrees.ForStudent)
		if err != nil {
			return nil, nil, err
		}
		table := ui.NewTable("Student", "Degree", "Credits", "Remaining", "Projected")
		for _, v := range rows {
			table.AddRow(v.StudentID, v.DegreeID, strconv.FormatFloat(v.CreditsEarned, 'f', 1, 64),
				strings.Join(v.RemainingRequirements, ", "), formatDate(v.ProjectedCompletionDate))
		}
		return rows, table, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", academic.ErrProjectionNotFound, name)
	}
}

func listViews[T any](ctx context.Context, student string,
	all func(context.Context) ([]T, error),
	forStudent func(context.Context, string) ([]T, error),
) ([]T, error) {
	if student == "" {
		return all(ctx)
	}
	return forStudent(ctx, student)
}
