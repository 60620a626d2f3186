package academic

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBase(t *testing.T) {
	base := CommandBase{CommandID: "cmd-1", CorrelationID: "corr-1", CausationID: "cause-1"}

	assert.Equal(t, "cmd-1", base.GetCommandID())
	assert.Equal(t, "corr-1", base.GetCorrelationID())
	assert.Equal(t, "cause-1", base.GetCausationID())
}

func TestCommands_TypeAndAggregate(t *testing.T) {
	tests := []struct {
		cmd      RecordCommand
		wantType string
	}{
		{RecordGrade{StudentID: "s-1"}, CommandRecordGrade},
		{ModifyGrade{StudentID: "s-1"}, CommandModifyGrade},
		{EnrollInCourse{StudentID: "s-1"}, CommandEnrollInCourse},
		{DropCourse{StudentID: "s-1"}, CommandDropCourse},
		{UpdateDegreeProgress{StudentID: "s-1"}, CommandUpdateDegreeProgress},
	}
	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.cmd.CommandType())
			assert.Equal(t, "s-1", tt.cmd.AggregateID())
		})
	}
}

func TestCommands_Validate(t *testing.T) {
	valid := recordGradeCmd("s-1", "CS101", "A", 4)

	tests := []struct {
		name      string
		cmd       Command
		wantField string
	}{
		{name: "valid grade", cmd: valid},
		{name: "missing student", cmd: func() Command { c := valid; c.StudentID = ""; return c }(), wantField: "StudentID"},
		{name: "missing grade", cmd: func() Command { c := valid; c.Grade = ""; return c }(), wantField: "Grade"},
		{name: "negative points", cmd: func() Command { c := valid; c.Points = -1; return c }(), wantField: "Points"},
		{name: "NaN points", cmd: func() Command { c := valid; c.Points = math.NaN(); return c }(), wantField: "Points"},
		{
			name:      "modify without actor",
			cmd:       ModifyGrade{StudentID: "s-1", CourseID: "CS101", NewGrade: "B"},
			wantField: "ModifiedBy",
		},
		{
			name:      "enroll without date",
			cmd:       EnrollInCourse{StudentID: "s-1", CourseID: "CS101", Semester: "Fall2024", EnrolledBy: "advisor"},
			wantField: "EnrollmentDate",
		},
		{
			name: "enroll",
			cmd:  EnrollInCourse{StudentID: "s-1", CourseID: "CS101", Semester: "Fall2024", EnrollmentDate: testEpoch, EnrolledBy: "advisor"},
		},
		{
			name:      "drop without semester",
			cmd:       DropCourse{StudentID: "s-1", CourseID: "CS101", DropDate: testEpoch, DroppedBy: "student"},
			wantField: "Semester",
		},
		{
			name: "drop",
			cmd:  DropCourse{StudentID: "s-1", CourseID: "CS101", Semester: "Fall2024", DropDate: testEpoch, DroppedBy: "student"},
		},
		{
			name:      "progress without degree",
			cmd:       UpdateDegreeProgress{StudentID: "s-1"},
			wantField: "DegreeID",
		},
		{
			name:      "progress with negative credits",
			cmd:       UpdateDegreeProgress{StudentID: "s-1", DegreeID: "BSc", CreditsEarned: -3},
			wantField: "CreditsEarned",
		},
		{
			name: "progress",
			cmd:  UpdateDegreeProgress{StudentID: "s-1", DegreeID: "BSc", CreditsEarned: 90},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidationFailed)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.cmd.CommandType(), verr.CommandType)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestCommandResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := NewSuccessResult("s-1", &SaveResult{Version: 3})
		assert.True(t, r.IsSuccess())
		assert.False(t, r.IsError())
		assert.Equal(t, int64(3), r.Version)
		assert.Equal(t, "s-1", r.StudentID)
	})

	t.Run("error", func(t *testing.T) {
		r := NewErrorResult(errInjected)
		assert.False(t, r.IsSuccess())
		assert.True(t, r.IsError())
		assert.Equal(t, errInjected, r.Error)
	})
}
