package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/cli/config"
)

// harness runs CLI commands against one in-memory runtime, so state
// carries over between invocations.
type harness struct {
	t       *testing.T
	rt      *Runtime
	cfgPath string
}

func newHarness(t *testing.T, modify ...func(*config.Config)) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverMemory
	cfg.Store.SnapshotCadence = 2
	for _, m := range modify {
		m(cfg)
	}

	dir := t.TempDir()
	require.NoError(t, cfg.Save(dir))

	rt, err := OpenRuntime(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	return &harness{t: t, rt: rt, cfgPath: filepath.Join(dir, config.ConfigFileName)}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()

	root := newRootCommand(func(context.Context, *config.Config) (*Runtime, func(), error) {
		return h.rt, func() {}, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", h.cfgPath}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func TestRecordCommands(t *testing.T) {
	t.Run("grade then show", func(t *testing.T) {
		h := newHarness(t)

		out := h.mustRun("record", "grade", "s-1", "CS101", "A", "--points", "4", "--semester", "2024-FALL", "--by", "prof-1")
		assert.Contains(t, out, "Grade recorded for s-1 (version 1)")

		out = h.mustRun("record", "show", "s-1")
		assert.Contains(t, out, "Student s-1 (version 1)")
		assert.Contains(t, out, "CS101")
		assert.Contains(t, out, "2024-FALL")
	})

	t.Run("snapshot cadence is reported", func(t *testing.T) {
		h := newHarness(t)
		h.mustRun("record", "enroll", "s-1", "CS101", "--semester", "2024-FALL", "--date", "2024-09-01", "--by", "registrar")

		out := h.mustRun("record", "grade", "s-1", "CS101", "B", "--points", "3", "--semester", "2024-FALL", "--by", "prof-1")
		assert.Contains(t, out, "Snapshot written at version 2")
	})

	t.Run("show at version and date", func(t *testing.T) {
		h := newHarness(t)
		h.mustRun("record", "enroll", "s-1", "CS101", "--semester", "2024-FALL", "--date", "2024-09-01", "--by", "registrar")
		h.mustRun("record", "drop", "s-1", "CS101", "--semester", "2024-FALL", "--date", "2024-10-01", "--by", "registrar", "--reason", "schedule")

		out := h.mustRun("record", "show", "s-1", "--version", "1", "--json")
		var view academic.RecordView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, academic.MethodVersion, view.Method)
		require.Len(t, view.Enrollments, 1)
		assert.Equal(t, academic.StatusEnrolled, view.Enrollments[0].Status)

		out = h.mustRun("record", "show", "s-1", "--json")
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, academic.StatusDropped, view.Enrollments[0].Status)
		assert.Equal(t, "schedule", view.Enrollments[0].DropReason)

		out = h.mustRun("record", "show", "s-1", "--at", "2999-01-01", "--json")
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, academic.MethodDate, view.Method)
		assert.Equal(t, int64(2), view.Version)
	})

	t.Run("version and at are exclusive", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("record", "show", "s-1", "--version", "1", "--at", "2024-01-01")
		assert.Error(t, err)
	})

	t.Run("unknown student", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("record", "show", "nobody")
		assert.ErrorIs(t, err, academic.ErrNotFound)

		_, err = h.run("record", "history", "nobody")
		assert.ErrorIs(t, err, academic.ErrNotFound)
	})

	t.Run("validation failure", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("record", "grade", "s-1", "CS101", "A", "--points", "4", "--semester", "2024-FALL")
		assert.ErrorIs(t, err, academic.ErrValidationFailed)
	})

	t.Run("modify without grade is rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("record", "modify-grade", "s-1", "CS101", "B", "--points", "3", "--by", "prof-1", "--reason", "regrade")
		assert.ErrorIs(t, err, academic.ErrInvalidOperation)
	})

	t.Run("modify grade", func(t *testing.T) {
		h := newHarness(t)
		h.mustRun("record", "grade", "s-1", "CS101", "B", "--points", "3", "--semester", "2024-FALL", "--by", "prof-1")
		out := h.mustRun("record", "modify-grade", "s-1", "CS101", "A-", "--points", "3.7", "--by", "prof-2", "--reason", "regrade")
		assert.Contains(t, out, "Grade modified for s-1 (version 2)")

		out = h.mustRun("projection", "query", "grades", "--student", "s-1", "--json")
		var rows []academic.GradeView
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "A-", rows[0].Grade)
		assert.InDelta(t, 3.7, rows[0].Points, 1e-9)
	})

	t.Run("drop twice is rejected", func(t *testing.T) {
		h := newHarness(t)
		h.mustRun("record", "enroll", "s-1", "CS101", "--semester", "2024-FALL", "--by", "registrar")
		h.mustRun("record", "drop", "s-1", "CS101", "--semester", "2024-FALL", "--by", "registrar")

		_, err := h.run("record", "drop", "s-1", "CS101", "--semester", "2024-FALL", "--by", "registrar")
		assert.ErrorIs(t, err, academic.ErrInvalidOperation)
	})

	t.Run("bad date", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("record", "enroll", "s-1", "CS101", "--semester", "2024-FALL", "--date", "yesterday", "--by", "registrar")
		assert.ErrorContains(t, err, "invalid date")
	})

	t.Run("degree progress", func(t *testing.T) {
		h := newHarness(t)
		h.mustRun("record", "progress", "s-1", "BSC-CS", "--credits", "60",
			"--fulfilled", "core, math", "--remaining", "thesis", "--completion", "2026-06-30", "--by", "advisor")

		out := h.mustRun("record", "show", "s-1", "--json")
		var view academic.RecordView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		require.Len(t, view.DegreeProgress, 1)
		assert.Equal(t, []string{"core", "math"}, view.DegreeProgress[0].RequirementsFulfilled)
		assert.Equal(t, []string{"thesis"}, view.DegreeProgress[0].RemainingRequirements)
	})

	t.Run("history", func(t *testing.T) {
		h := newHarness(t)
		h.mustRun("record", "enroll", "s-1", "CS101", "--semester", "2024-FALL", "--date", "2024-09-01", "--by", "registrar")
		h.mustRun("record", "grade", "s-1", "CS101", "A", "--points", "4", "--semester", "2024-FALL", "--by", "prof-1")

		out := h.mustRun("record", "history", "s-1")
		assert.Contains(t, out, "CourseEnrolled")
		assert.Contains(t, out, "GradeRecorded")
		assert.Contains(t, out, "2 event(s)")

		out = h.mustRun("record", "history", "s-1", "--json")
		var entries []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "CourseEnrolled", entries[0]["type"])
		assert.Equal(t, float64(2), entries[1]["version"])
	})
}

func TestProjectionCommands(t *testing.T) {
	seed := func(h *harness) {
		h.mustRun("record", "enroll", "s-1", "CS101", "--semester", "2024-FALL", "--by", "registrar")
		h.mustRun("record", "grade", "s-1", "CS101", "A", "--points", "4", "--semester", "2024-FALL", "--by", "prof-1")
		h.mustRun("record", "grade", "s-2", "MATH1", "C", "--points", "2", "--semester", "2024-FALL", "--by", "prof-2")
	}

	t.Run("list", func(t *testing.T) {
		h := newHarness(t)
		seed(h)

		out := h.mustRun("projection", "list")
		for _, name := range []string{"grades", "enrollments", "degree-progress"} {
			assert.Contains(t, out, name)
		}
		assert.Contains(t, out, "ready")
	})

	t.Run("rebuild one", func(t *testing.T) {
		h := newHarness(t)
		seed(h)

		out := h.mustRun("projection", "rebuild", "grades", "--force")
		assert.Contains(t, out, "Rebuilt grades: replayed 3 events")

		status, err := h.rt.Projections.GetStatus("grades")
		require.NoError(t, err)
		assert.Equal(t, academic.ProjectionStateReady, status.State)
	})

	t.Run("rebuild all", func(t *testing.T) {
		h := newHarness(t)
		seed(h)

		out := h.mustRun("projection", "rebuild", "--all", "--force")
		assert.Contains(t, out, "Rebuilt grades")
		assert.Contains(t, out, "Rebuilt enrollments")
		assert.Contains(t, out, "Rebuilt degree-progress")
	})

	t.Run("rebuild needs a target", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("projection", "rebuild", "--force")
		assert.Error(t, err)

		_, err = h.run("projection", "rebuild", "grades", "--all", "--force")
		assert.Error(t, err)
	})

	t.Run("rebuild unknown", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("projection", "rebuild", "transcripts", "--force")
		assert.ErrorIs(t, err, academic.ErrProjectionNotFound)
	})

	t.Run("rebuild asks for confirmation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("projection", "rebuild", "grades")
		assert.ErrorContains(t, err, "--force")
	})

	t.Run("query", func(t *testing.T) {
		h := newHarness(t)
		seed(h)

		out := h.mustRun("projection", "query", "grades")
		assert.Contains(t, out, "CS101")
		assert.Contains(t, out, "MATH1")

		out = h.mustRun("projection", "query", "enrollments", "--student", "s-2")
		assert.Contains(t, out, "No rows")

		out = h.mustRun("projection", "query", "enrollments", "--student", "s-1", "--json")
		var rows []academic.EnrollmentView
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, academic.StatusEnrolled, rows[0].Status)

		_, err := h.run("projection", "query", "transcripts")
		assert.ErrorIs(t, err, academic.ErrProjectionNotFound)
	})
}

func TestConfigCommands(t *testing.T) {
	t.Run("init writes a loadable file", func(t *testing.T) {
		h := newHarness(t)
		dir := t.TempDir()

		out := h.mustRun("config", "init", dir, "--driver", "memory")
		assert.Contains(t, out, config.ConfigFileName)

		cfg, err := config.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, config.DriverMemory, cfg.Database.Driver)

		_, err = h.run("config", "init", dir)
		assert.ErrorContains(t, err, "already exists")

		h.mustRun("config", "init", dir, "--force", "--driver", "postgres")
		cfg, err = config.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "${DATABASE_URL}", cfg.Database.URL)
	})

	t.Run("init rejects unknown driver", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("config", "init", t.TempDir(), "--driver", "mysql")
		assert.Error(t, err)
	})

	t.Run("show applies env overrides", func(t *testing.T) {
		t.Setenv("ACADEMIC_SNAPSHOT_CADENCE", "7")
		t.Setenv("ACADEMIC_REDIS_PASSWORD", "secret")
		h := newHarness(t)

		out := h.mustRun("config", "show")
		assert.Contains(t, out, "snapshot_cadence: 7")
		assert.NotContains(t, out, "secret")
	})

	t.Run("validate", func(t *testing.T) {
		h := newHarness(t)
		out := h.mustRun("config", "validate")
		assert.Contains(t, out, "Configuration is valid")

		t.Setenv("ACADEMIC_READ_MODELS", "mongo")
		out, err := h.run("config", "validate")
		assert.Error(t, err)
		assert.Contains(t, out, "read_models.backend")
	})
}

func TestMigrateCommands(t *testing.T) {
	t.Run("memory driver", func(t *testing.T) {
		h := newHarness(t)
		out := h.mustRun("migrate", "up")
		assert.Contains(t, out, "Memory driver doesn't require migrations")
	})

	t.Run("sqlite", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "records.db")
		h := newHarness(t)

		cfg := config.DefaultConfig()
		cfg.Database.URL = dbPath
		require.NoError(t, cfg.SaveFile(h.cfgPath))

		out := h.mustRun("migrate", "status")
		assert.Contains(t, out, "pending")

		out = h.mustRun("migrate", "up")
		assert.Contains(t, out, "Schema migrated from version 0 to 1")

		out = h.mustRun("migrate", "up")
		assert.Contains(t, out, "Schema is up to date (version 1)")

		out = h.mustRun("migrate", "status")
		assert.Contains(t, out, "applied")
	})
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.Contains(t, out, "academic")
	assert.Contains(t, out, Version)
}

func TestOpenRuntime(t *testing.T) {
	t.Run("sqlite keeps records between runs", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Database.URL = filepath.Join(t.TempDir(), "records.db")
		ctx := context.Background()

		rt, err := OpenRuntime(ctx, cfg, io.Discard)
		require.NoError(t, err)
		_, err = rt.Service.RecordGrade(ctx, academic.RecordGrade{
			StudentID: "s-1", CourseID: "CS101", Grade: "A", Points: 4,
			Semester: "2024-FALL", RecordedBy: "prof-1",
		})
		require.NoError(t, err)
		require.NoError(t, rt.Close())

		rt, err = OpenRuntime(ctx, cfg, io.Discard)
		require.NoError(t, err)
		defer rt.Close()

		view, err := rt.Service.GetStudentRecord(ctx, "s-1")
		require.NoError(t, err)
		assert.Len(t, view.Grades, 1)

		grades, err := rt.Grades.ForStudent(ctx, "s-1")
		require.NoError(t, err)
		assert.Len(t, grades, 1, "memory read models are rebuilt on open")
	})

	t.Run("serializers", func(t *testing.T) {
		for _, name := range []string{"json", "msgpack", "protobuf"} {
			t.Run(name, func(t *testing.T) {
				cfg := config.DefaultConfig()
				cfg.Database.Driver = config.DriverMemory
				cfg.Store.Serializer = name

				rt, err := OpenRuntime(context.Background(), cfg, io.Discard)
				require.NoError(t, err)
				defer rt.Close()

				_, err = rt.Service.EnrollInCourse(context.Background(), academic.EnrollInCourse{
					StudentID: "s-1", CourseID: "CS101", Semester: "2024-FALL",
					EnrollmentDate: mustDate(t, "2024-09-01"), EnrolledBy: "registrar",
				})
				require.NoError(t, err)

				view, err := rt.Service.GetStudentRecord(context.Background(), "s-1")
				require.NoError(t, err)
				assert.Len(t, view.Enrollments, 1)
			})
		}
	})

	t.Run("tracing", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Database.Driver = config.DriverMemory
		cfg.Tracing.Enabled = true

		var spans bytes.Buffer
		rt, err := OpenRuntime(context.Background(), cfg, &spans)
		require.NoError(t, err)

		_, err = rt.Service.RecordGrade(context.Background(), academic.RecordGrade{
			StudentID: "s-1", CourseID: "CS101", Grade: "A", Points: 4,
			Semester: "2024-FALL", RecordedBy: "prof-1",
		})
		require.NoError(t, err)
		require.NoError(t, rt.Close())

		assert.Contains(t, spans.String(), "RecordGrade")
	})

	t.Run("metrics", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Database.Driver = config.DriverMemory
		cfg.Metrics.Enabled = true
		cfg.Metrics.Output = filepath.Join(t.TempDir(), "metrics.prom")

		rt, err := OpenRuntime(context.Background(), cfg, io.Discard)
		require.NoError(t, err)
		require.NotNil(t, rt.Metrics)

		_, err = rt.Service.RecordGrade(context.Background(), academic.RecordGrade{
			StudentID: "s-1", CourseID: "CS101", Grade: "A", Points: 4,
			Semester: "2024-FALL", RecordedBy: "prof-1",
		})
		require.NoError(t, err)
		require.NoError(t, rt.Close())

		data, err := os.ReadFile(cfg.Metrics.Output)
		require.NoError(t, err)
		out := string(data)
		assert.Contains(t, out, `academic_commands_total{command_type="RecordGrade"`)
		assert.Contains(t, out, "academic_events_appended_total")
		assert.Contains(t, out, "academic_projections_processed_total")
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Database.Driver = "mysql"
		_, err := OpenRuntime(context.Background(), cfg, io.Discard)
		assert.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("postgres read models need postgres", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Database.Driver = config.DriverMemory
		cfg.ReadModels.Backend = config.ReadModelsPostgres
		_, err := OpenRuntime(context.Background(), cfg, io.Discard)
		assert.Error(t, err)
	})
}

func TestHelpers(t *testing.T) {
	t.Run("parseDate", func(t *testing.T) {
		d, err := parseDate("2024-09-01", false)
		require.NoError(t, err)
		assert.Equal(t, "2024-09-01T00:00:00Z", d.Format("2006-01-02T15:04:05Z07:00"))

		end, err := parseDate("2024-09-01", true)
		require.NoError(t, err)
		assert.Equal(t, 23, end.Hour())

		exact, err := parseDate("2024-09-01T10:30:00+02:00", true)
		require.NoError(t, err)
		assert.Equal(t, 8, exact.Hour())

		_, err = parseDate("01/09/2024", false)
		assert.Error(t, err)
	})

	t.Run("splitList", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
		assert.Nil(t, splitList(""))
	})

	t.Run("describeEvent", func(t *testing.T) {
		assert.Contains(t, describeEvent(academic.GradeModified{CourseID: "CS101", NewGrade: "B", Reason: "regrade"}), "regrade")
		assert.Contains(t, describeEvent(academic.DegreeProgressUpdated{DegreeID: "BSC", RemainingRequirements: []string{"x"}}), "1 remaining")
	})

	t.Run("isTerminal", func(t *testing.T) {
		assert.False(t, isTerminal(&bytes.Buffer{}))
		f, err := os.CreateTemp(t.TempDir(), "out")
		require.NoError(t, err)
		defer f.Close()
		assert.False(t, isTerminal(f))
	})
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := parseDate(value, false)
	require.NoError(t, err)
	return parsed
}
