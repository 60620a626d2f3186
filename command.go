package academic

import (
	"time"
)

// Command represents an intent to change a student's record.
// Commands are validated before they reach their handler.
type Command interface {
	// CommandType returns the type identifier for this command (e.g., "RecordGrade").
	CommandType() string

	// Validate checks the command's input shape.
	// Returns nil if valid, or a ValidationError.
	Validate() error
}

// RecordCommand is a command that targets one student's record.
type RecordCommand interface {
	Command

	// AggregateID returns the student the command targets.
	AggregateID() string
}

// Command type identifiers.
const (
	CommandRecordGrade          = "RecordGrade"
	CommandModifyGrade          = "ModifyGrade"
	CommandEnrollInCourse       = "EnrollInCourse"
	CommandDropCourse           = "DropCourse"
	CommandUpdateDegreeProgress = "UpdateDegreeProgress"
)

// CommandBase carries the tracing identifiers a command may bring along.
// Embed this struct in command types.
type CommandBase struct {
	// CommandID is an optional unique identifier for this command instance.
	CommandID string `json:"commandId,omitempty"`

	// CorrelationID links related commands and events for distributed tracing.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the event or command that caused this command.
	CausationID string `json:"causationId,omitempty"`
}

// GetCommandID returns the command ID.
func (c CommandBase) GetCommandID() string {
	return c.CommandID
}

// GetCorrelationID returns the correlation ID.
func (c CommandBase) GetCorrelationID() string {
	return c.CorrelationID
}

// GetCausationID returns the causation ID.
func (c CommandBase) GetCausationID() string {
	return c.CausationID
}

// RecordGrade records the grade a student obtained in a course.
type RecordGrade struct {
	CommandBase
	StudentID  string  `json:"studentId"`
	CourseID   string  `json:"courseId"`
	Grade      string  `json:"grade"`
	Points     float64 `json:"points"`
	Semester   string  `json:"semester"`
	RecordedBy string  `json:"recordedBy"`
}

// CommandType implements Command.
func (RecordGrade) CommandType() string { return CommandRecordGrade }

// AggregateID implements RecordCommand.
func (c RecordGrade) AggregateID() string { return c.StudentID }

// Validate implements Command.
func (c RecordGrade) Validate() error {
	if err := requireFields(CommandRecordGrade,
		"StudentID", c.StudentID,
		"CourseID", c.CourseID,
		"Grade", c.Grade,
		"Semester", c.Semester,
		"RecordedBy", c.RecordedBy); err != nil {
		return err
	}
	return validatePoints(CommandRecordGrade, "Points", c.Points)
}

// ModifyGrade corrects the grade of a course that already has one.
type ModifyGrade struct {
	CommandBase
	StudentID  string  `json:"studentId"`
	CourseID   string  `json:"courseId"`
	NewGrade   string  `json:"newGrade"`
	NewPoints  float64 `json:"newPoints"`
	ModifiedBy string  `json:"modifiedBy"`
	Reason     string  `json:"reason"`
}

// CommandType implements Command.
func (ModifyGrade) CommandType() string { return CommandModifyGrade }

// AggregateID implements RecordCommand.
func (c ModifyGrade) AggregateID() string { return c.StudentID }

// Validate implements Command.
func (c ModifyGrade) Validate() error {
	if err := requireFields(CommandModifyGrade,
		"StudentID", c.StudentID,
		"CourseID", c.CourseID,
		"NewGrade", c.NewGrade,
		"ModifiedBy", c.ModifiedBy); err != nil {
		return err
	}
	return validatePoints(CommandModifyGrade, "NewPoints", c.NewPoints)
}

// EnrollInCourse enrolls a student in a course for a semester.
type EnrollInCourse struct {
	CommandBase
	StudentID      string    `json:"studentId"`
	CourseID       string    `json:"courseId"`
	Semester       string    `json:"semester"`
	EnrollmentDate time.Time `json:"enrollmentDate"`
	EnrolledBy     string    `json:"enrolledBy"`
}

// CommandType implements Command.
func (EnrollInCourse) CommandType() string { return CommandEnrollInCourse }

// AggregateID implements RecordCommand.
func (c EnrollInCourse) AggregateID() string { return c.StudentID }

// Validate implements Command.
func (c EnrollInCourse) Validate() error {
	if err := requireFields(CommandEnrollInCourse,
		"StudentID", c.StudentID,
		"CourseID", c.CourseID,
		"Semester", c.Semester,
		"EnrolledBy", c.EnrolledBy); err != nil {
		return err
	}
	if c.EnrollmentDate.IsZero() {
		return NewValidationError(CommandEnrollInCourse, "EnrollmentDate", "is required")
	}
	return nil
}

// DropCourse drops a student's active enrollment.
type DropCourse struct {
	CommandBase
	StudentID string    `json:"studentId"`
	CourseID  string    `json:"courseId"`
	Semester  string    `json:"semester"`
	DropDate  time.Time `json:"dropDate"`
	DroppedBy string    `json:"droppedBy"`
	Reason    string    `json:"reason"`
}

// CommandType implements Command.
func (DropCourse) CommandType() string { return CommandDropCourse }

// AggregateID implements RecordCommand.
func (c DropCourse) AggregateID() string { return c.StudentID }

// Validate implements Command.
func (c DropCourse) Validate() error {
	if err := requireFields(CommandDropCourse,
		"StudentID", c.StudentID,
		"CourseID", c.CourseID,
		"Semester", c.Semester,
		"DroppedBy", c.DroppedBy); err != nil {
		return err
	}
	if c.DropDate.IsZero() {
		return NewValidationError(CommandDropCourse, "DropDate", "is required")
	}
	return nil
}

// UpdateDegreeProgress replaces a student's progress towards a degree.
type UpdateDegreeProgress struct {
	CommandBase
	StudentID               string    `json:"studentId"`
	DegreeID                string    `json:"degreeId"`
	CreditsEarned           float64   `json:"creditsEarned"`
	RequirementsFulfilled   []string  `json:"requirementsFulfilled"`
	RemainingRequirements   []string  `json:"remainingRequirements"`
	ProjectedCompletionDate time.Time `json:"projectedCompletionDate"`
	// UpdatedBy is recorded as the event's actor.
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// CommandType implements Command.
func (UpdateDegreeProgress) CommandType() string { return CommandUpdateDegreeProgress }

// AggregateID implements RecordCommand.
func (c UpdateDegreeProgress) AggregateID() string { return c.StudentID }

// Validate implements Command.
func (c UpdateDegreeProgress) Validate() error {
	if err := requireFields(CommandUpdateDegreeProgress,
		"StudentID", c.StudentID,
		"DegreeID", c.DegreeID); err != nil {
		return err
	}
	return validatePoints(CommandUpdateDegreeProgress, "CreditsEarned", c.CreditsEarned)
}

// CommandResult represents the result of command execution.
type CommandResult struct {
	// Success indicates whether the command executed successfully.
	Success bool

	// StudentID is the record affected by the command.
	StudentID string

	// Version is the record version after the command.
	Version int64

	// Save describes the append and the derived writes that followed it.
	Save *SaveResult

	// Error contains the error if the command failed.
	Error error
}

// NewSuccessResult creates a successful CommandResult.
func NewSuccessResult(studentID string, save *SaveResult) CommandResult {
	return CommandResult{
		Success:   true,
		StudentID: studentID,
		Version:   save.Version,
		Save:      save,
	}
}

// NewErrorResult creates a failed CommandResult.
func NewErrorResult(err error) CommandResult {
	return CommandResult{
		Success: false,
		Error:   err,
	}
}

// IsSuccess returns true if the command executed successfully.
func (r CommandResult) IsSuccess() bool {
	return r.Success && r.Error == nil
}

// IsError returns true if the command failed.
func (r CommandResult) IsError() bool {
	return !r.Success || r.Error != nil
}
