package academic

import (
	"context"
	"fmt"
	"time"
)

// Names of the built-in projections.
const (
	GradesProjectionName         = "grades"
	EnrollmentsProjectionName    = "enrollments"
	DegreeProgressProjectionName = "degree-progress"
)

// GradeView is the current grade of one student in one course.
type GradeView struct {
	StudentID  string    `json:"studentId"`
	CourseID   string    `json:"courseId"`
	Grade      string    `json:"grade"`
	Points     float64   `json:"points"`
	Semester   string    `json:"semester"`
	RecordedBy string    `json:"recordedBy"`
	ModifiedBy string    `json:"modifiedBy,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EnrollmentView is the latest enrollment of a student in a course and semester.
type EnrollmentView struct {
	StudentID      string           `json:"studentId"`
	CourseID       string           `json:"courseId"`
	Semester       string           `json:"semester"`
	Status         EnrollmentStatus `json:"status"`
	EnrollmentDate time.Time        `json:"enrollmentDate"`
	EnrolledBy     string           `json:"enrolledBy"`
	DropDate       time.Time        `json:"dropDate"`
	DroppedBy      string           `json:"droppedBy,omitempty"`
	DropReason     string           `json:"dropReason,omitempty"`
	Version        int64            `json:"version"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// DegreeProgressView is the latest progress of a student towards a degree.
type DegreeProgressView struct {
	StudentID               string    `json:"studentId"`
	DegreeID                string    `json:"degreeId"`
	CreditsEarned           float64   `json:"creditsEarned"`
	RequirementsFulfilled   []string  `json:"requirementsFulfilled"`
	RemainingRequirements   []string  `json:"remainingRequirements"`
	ProjectedCompletionDate time.Time `json:"projectedCompletionDate"`
	Version                 int64     `json:"version"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// stale reports whether a view already reflects the event at version.
func stale(ok bool, viewVersion, eventVersion int64) bool {
	return ok && viewVersion >= eventVersion
}

// GradesProjection maintains one GradeView per student and course.
type GradesProjection struct {
	store ReadModelStore[GradeView]
}

var _ Projection = (*GradesProjection)(nil)

// NewGradesProjection creates a grades projection over store.
func NewGradesProjection(store ReadModelStore[GradeView]) *GradesProjection {
	return &GradesProjection{store: store}
}

// Name implements Projection.
func (p *GradesProjection) Name() string { return GradesProjectionName }

// HandleEvent implements Projection.
func (p *GradesProjection) HandleEvent(ctx context.Context, event DomainEvent) error {
	return event.Payload.Accept(&gradesApplier{ctx: ctx, store: p.store, event: event})
}

// Reset implements Projection.
func (p *GradesProjection) Reset(ctx context.Context) error {
	return p.store.Clear(ctx)
}

// State returns every grade view ordered by student and course.
func (p *GradesProjection) State(ctx context.Context) ([]GradeView, error) {
	return p.store.List(ctx, "")
}

// ForStudent returns the grade views of one student ordered by course.
func (p *GradesProjection) ForStudent(ctx context.Context, studentID string) ([]GradeView, error) {
	return p.store.List(ctx, ReadModelKey(studentID, ""))
}

type gradesApplier struct {
	ctx   context.Context
	store ReadModelStore[GradeView]
	event DomainEvent
}

func (a *gradesApplier) VisitGradeRecorded(e GradeRecorded) error {
	key := ReadModelKey(a.event.AggregateID, e.CourseID)
	existing, ok, err := a.store.Get(a.ctx, key)
	if err != nil {
		return err
	}
	if stale(ok, existing.Version, a.event.Version) {
		return nil
	}
	return a.store.Upsert(a.ctx, key, GradeView{
		StudentID:  a.event.AggregateID,
		CourseID:   e.CourseID,
		Grade:      e.Grade,
		Points:     e.Points,
		Semester:   e.Semester,
		RecordedBy: e.RecordedBy,
		Version:    a.event.Version,
		UpdatedAt:  a.event.Timestamp,
	})
}

func (a *gradesApplier) VisitGradeModified(e GradeModified) error {
	key := ReadModelKey(a.event.AggregateID, e.CourseID)
	view, ok, err := a.store.Get(a.ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no grade view for %s", key)
	}
	if stale(ok, view.Version, a.event.Version) {
		return nil
	}
	view.Grade = e.NewGrade
	view.Points = e.NewPoints
	view.ModifiedBy = e.ModifiedBy
	view.Reason = e.Reason
	view.Version = a.event.Version
	view.UpdatedAt = a.event.Timestamp
	return a.store.Upsert(a.ctx, key, view)
}

func (a *gradesApplier) VisitCourseEnrolled(CourseEnrolled) error { return nil }

func (a *gradesApplier) VisitCourseDropped(CourseDropped) error { return nil }

func (a *gradesApplier) VisitDegreeProgressUpdated(DegreeProgressUpdated) error { return nil }

// EnrollmentsProjection maintains one EnrollmentView per student, course and semester.
type EnrollmentsProjection struct {
	store ReadModelStore[EnrollmentView]
}

var _ Projection = (*EnrollmentsProjection)(nil)

// NewEnrollmentsProjection creates an enrollments projection over store.
func NewEnrollmentsProjection(store ReadModelStore[EnrollmentView]) *EnrollmentsProjection {
	return &EnrollmentsProjection{store: store}
}

// Name implements Projection.
func (p *EnrollmentsProjection) Name() string { return EnrollmentsProjectionName }

// HandleEvent implements Projection.
func (p *EnrollmentsProjection) HandleEvent(ctx context.Context, event DomainEvent) error {
	return event.Payload.Accept(&enrollmentsApplier{ctx: ctx, store: p.store, event: event})
}

// Reset implements Projection.
func (p *EnrollmentsProjection) Reset(ctx context.Context) error {
	return p.store.Clear(ctx)
}

// State returns every enrollment view ordered by student, course and semester.
func (p *EnrollmentsProjection) State(ctx context.Context) ([]EnrollmentView, error) {
	return p.store.List(ctx, "")
}

// ForStudent returns the enrollment views of one student.
func (p *EnrollmentsProjection) ForStudent(ctx context.Context, studentID string) ([]EnrollmentView, error) {
	return p.store.List(ctx, ReadModelKey(studentID, ""))
}

type enrollmentsApplier struct {
	ctx   context.Context
	store ReadModelStore[EnrollmentView]
	event DomainEvent
}

func (a *enrollmentsApplier) VisitGradeRecorded(GradeRecorded) error { return nil }

func (a *enrollmentsApplier) VisitGradeModified(GradeModified) error { return nil }

func (a *enrollmentsApplier) VisitCourseEnrolled(e CourseEnrolled) error {
	key := ReadModelKey(a.event.AggregateID, e.CourseID, e.Semester)
	existing, ok, err := a.store.Get(a.ctx, key)
	if err != nil {
		return err
	}
	if stale(ok, existing.Version, a.event.Version) {
		return nil
	}
	return a.store.Upsert(a.ctx, key, EnrollmentView{
		StudentID:      a.event.AggregateID,
		CourseID:       e.CourseID,
		Semester:       e.Semester,
		Status:         StatusEnrolled,
		EnrollmentDate: e.EnrollmentDate,
		EnrolledBy:     e.EnrolledBy,
		Version:        a.event.Version,
		UpdatedAt:      a.event.Timestamp,
	})
}

func (a *enrollmentsApplier) VisitCourseDropped(e CourseDropped) error {
	key := ReadModelKey(a.event.AggregateID, e.CourseID, e.Semester)
	view, ok, err := a.store.Get(a.ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no enrollment view for %s", key)
	}
	if stale(ok, view.Version, a.event.Version) {
		return nil
	}
	view.Status = StatusDropped
	view.DropDate = e.DropDate
	view.DroppedBy = e.DroppedBy
	view.DropReason = e.Reason
	view.Version = a.event.Version
	view.UpdatedAt = a.event.Timestamp
	return a.store.Upsert(a.ctx, key, view)
}

func (a *enrollmentsApplier) VisitDegreeProgressUpdated(DegreeProgressUpdated) error { return nil }

// DegreeProgressProjection maintains one DegreeProgressView per student and degree.
type DegreeProgressProjection struct {
	store ReadModelStore[DegreeProgressView]
}

var _ Projection = (*DegreeProgressProjection)(nil)

// NewDegreeProgressProjection creates a degree progress projection over store.
func NewDegreeProgressProjection(store ReadModelStore[DegreeProgressView]) *DegreeProgressProjection {
	return &DegreeProgressProjection{store: store}
}

// Name implements Projection.
func (p *DegreeProgressProjection) Name() string { return DegreeProgressProjectionName }

// HandleEvent implements Projection.
func (p *DegreeProgressProjection) HandleEvent(ctx context.Context, event DomainEvent) error {
	return event.Payload.Accept(&degreeProgressApplier{ctx: ctx, store: p.store, event: event})
}

// Reset implements Projection.
func (p *DegreeProgressProjection) Reset(ctx context.Context) error {
	return p.store.Clear(ctx)
}

// State returns every degree progress view ordered by student and degree.
func (p *DegreeProgressProjection) State(ctx context.Context) ([]DegreeProgressView, error) {
	return p.store.List(ctx, "")
}

// ForStudent returns the degree progress views of one student.
func (p *DegreeProgressProjection) ForStudent(ctx context.Context, studentID string) ([]DegreeProgressView, error) {
	return p.store.List(ctx, ReadModelKey(studentID, ""))
}

type degreeProgressApplier struct {
	ctx   context.Context
	store ReadModelStore[DegreeProgressView]
	event DomainEvent
}

func (a *degreeProgressApplier) VisitGradeRecorded(GradeRecorded) error { return nil }

func (a *degreeProgressApplier) VisitGradeModified(GradeModified) error { return nil }

func (a *degreeProgressApplier) VisitCourseEnrolled(CourseEnrolled) error { return nil }

func (a *degreeProgressApplier) VisitCourseDropped(CourseDropped) error { return nil }

func (a *degreeProgressApplier) VisitDegreeProgressUpdated(e DegreeProgressUpdated) error {
	key := ReadModelKey(a.event.AggregateID, e.DegreeID)
	existing, ok, err := a.store.Get(a.ctx, key)
	if err != nil {
		return err
	}
	if stale(ok, existing.Version, a.event.Version) {
		return nil
	}
	return a.store.Upsert(a.ctx, key, DegreeProgressView{
		StudentID:               a.event.AggregateID,
		DegreeID:                e.DegreeID,
		CreditsEarned:           e.CreditsEarned,
		RequirementsFulfilled:   cloneStrings(e.RequirementsFulfilled),
		RemainingRequirements:   cloneStrings(e.RemainingRequirements),
		ProjectedCompletionDate: e.ProjectedCompletionDate,
		Version:                 a.event.Version,
		UpdatedAt:               a.event.Timestamp,
	})
}
