package academic

import (
	"context"
	"time"
)

// ReconstructionMethod tells how a RecordView was produced.
type ReconstructionMethod string

const (
	// MethodCurrent is the latest state.
	MethodCurrent ReconstructionMethod = "current"

	// MethodVersion is the state at an exact version.
	MethodVersion ReconstructionMethod = "version"

	// MethodDate is the state from the events recorded up to a date.
	MethodDate ReconstructionMethod = "date"
)

// RecordView is a student record returned to callers.
type RecordView struct {
	RecordState

	// Method is how the state was reconstructed.
	Method ReconstructionMethod `json:"method"`

	// AsOf is the requested date for MethodDate views.
	AsOf time.Time `json:"asOf"`
}

// RecordService is the entry point for reading and changing student records.
// Reads go straight to the Repository; commands go through a CommandBus
// with validation, recovery, correlation and logging middleware.
type RecordService struct {
	repo   *Repository
	bus    *CommandBus
	logger Logger
	extra  []Middleware
}

// ServiceOption configures a RecordService.
type ServiceOption func(*RecordService)

// WithServiceLogger sets the logger used by the command middleware.
func WithServiceLogger(l Logger) ServiceOption {
	return func(s *RecordService) {
		s.logger = l
	}
}

// WithCommandMiddleware appends middleware after the built-in chain, such as
// metrics or tracing middleware.
func WithCommandMiddleware(middleware ...Middleware) ServiceOption {
	return func(s *RecordService) {
		s.extra = append(s.extra, middleware...)
	}
}

// NewRecordService creates a service over repo and registers a handler for
// every record command.
func NewRecordService(repo *Repository, opts ...ServiceOption) *RecordService {
	s := &RecordService{
		repo:   repo,
		logger: &noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bus = NewCommandBus(WithMiddleware(
		RecoveryMiddleware(s.logger),
		CorrelationIDMiddleware(nil),
		CausationIDMiddleware(),
		NewLoggingMiddleware(s.logger).Middleware(),
		ValidationMiddleware(),
	))
	s.bus.Use(s.extra...)

	s.bus.Register(NewRecordHandler(repo, func(_ context.Context, r *StudentRecord, c RecordGrade) error {
		return r.RecordGrade(c.CourseID, c.Grade, c.Points, c.Semester, c.RecordedBy)
	}))
	s.bus.Register(NewRecordHandler(repo, func(_ context.Context, r *StudentRecord, c ModifyGrade) error {
		return r.ModifyGrade(c.CourseID, c.NewGrade, c.NewPoints, c.ModifiedBy, c.Reason)
	}))
	s.bus.Register(NewRecordHandler(repo, func(_ context.Context, r *StudentRecord, c EnrollInCourse) error {
		return r.EnrollInCourse(c.CourseID, c.Semester, c.EnrollmentDate, c.EnrolledBy)
	}))
	s.bus.Register(NewRecordHandler(repo, func(_ context.Context, r *StudentRecord, c DropCourse) error {
		return r.DropCourse(c.CourseID, c.Semester, c.DropDate, c.DroppedBy, c.Reason)
	}))
	s.bus.Register(NewRecordHandler(repo, func(ctx context.Context, r *StudentRecord, c UpdateDegreeProgress) error {
		if c.UpdatedBy != "" {
			r.SetMetadata(metadataFromContext(ctx).WithUserID(c.UpdatedBy))
		}
		return r.UpdateDegreeProgress(c.DegreeID, c.CreditsEarned, c.RequirementsFulfilled, c.RemainingRequirements, c.ProjectedCompletionDate)
	}))

	return s
}

// Bus returns the command bus.
func (s *RecordService) Bus() *CommandBus {
	return s.bus
}

// Repository returns the underlying repository.
func (s *RecordService) Repository() *Repository {
	return s.repo
}

// GetStudentRecord returns the current record. A student without history
// fails with ErrNotFound.
func (s *RecordService) GetStudentRecord(ctx context.Context, studentID string) (*RecordView, error) {
	record, err := s.repo.Load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if record.Version() == 0 {
		return nil, NewRecordNotFoundError(studentID)
	}
	return &RecordView{RecordState: record.State(), Method: MethodCurrent}, nil
}

// GetStudentRecordAtVersion returns the record as it was at version.
func (s *RecordService) GetStudentRecordAtVersion(ctx context.Context, studentID string, version int64) (*RecordView, error) {
	record, err := s.repo.LoadAtVersion(ctx, studentID, version)
	if err != nil {
		return nil, err
	}
	return &RecordView{RecordState: record.State(), Method: MethodVersion}, nil
}

// GetStudentRecordAtDate returns the record built from the events recorded
// at or before date. A date before the first event fails with ErrNotFound.
func (s *RecordService) GetStudentRecordAtDate(ctx context.Context, studentID string, date time.Time) (*RecordView, error) {
	record, err := s.repo.LoadAtDate(ctx, studentID, date)
	if err != nil {
		return nil, err
	}
	return &RecordView{RecordState: record.State(), Method: MethodDate, AsOf: date.UTC()}, nil
}

// GetHistory returns every event of a student in version order.
func (s *RecordService) GetHistory(ctx context.Context, studentID string) ([]DomainEvent, error) {
	events, err := s.repo.Store().GetEventsByAggregate(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, NewRecordNotFoundError(studentID)
	}
	return events, nil
}

// Dispatch sends any record command through the bus.
func (s *RecordService) Dispatch(ctx context.Context, cmd Command) (CommandResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

// RecordGrade records a grade.
func (s *RecordService) RecordGrade(ctx context.Context, cmd RecordGrade) (CommandResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

// ModifyGrade corrects an existing grade.
func (s *RecordService) ModifyGrade(ctx context.Context, cmd ModifyGrade) (CommandResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

// EnrollInCourse enrolls the student in a course.
func (s *RecordService) EnrollInCourse(ctx context.Context, cmd EnrollInCourse) (CommandResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

// DropCourse drops an active enrollment.
func (s *RecordService) DropCourse(ctx context.Context, cmd DropCourse) (CommandResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

// UpdateDegreeProgress replaces the progress of a degree.
func (s *RecordService) UpdateDegreeProgress(ctx context.Context, cmd UpdateDegreeProgress) (CommandResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}
