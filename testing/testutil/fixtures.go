package testutil

import (
	"time"

	"github.com/google/uuid"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters/memory"
)

// Defaults used by the fixtures below.
const (
	Registrar = "registrar"
	Semester  = "Fall2024"
)

// Epoch is the timestamp of the first event a History builds.
var Epoch = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

// History builds the committed event stream of one student, assigning
// versions, global positions and timestamps the way an append would.
type History struct {
	studentID string
	position  uint64
	clock     time.Time
	step      time.Duration
	events    []academic.DomainEvent
}

// NewHistory starts an empty history for studentID.
func NewHistory(studentID string) *History {
	return &History{
		studentID: studentID,
		clock:     Epoch,
		step:      time.Hour,
	}
}

// FromPosition makes the next event take global position p+1.
func (h *History) FromPosition(p uint64) *History {
	h.position = p
	return h
}

// At sets the timestamp of the next event. Later events follow it one step apart.
func (h *History) At(ts time.Time) *History {
	h.clock = ts.UTC()
	return h
}

// Append adds an event with the given payload, recorded by the registrar.
func (h *History) Append(payload academic.Event) *History {
	return h.AppendBy(Registrar, payload)
}

// AppendBy adds an event with the given payload and actor.
func (h *History) AppendBy(actor string, payload academic.Event) *History {
	h.position++
	metadata := academic.Metadata{}.WithUserID(actor)
	if semester := semesterOf(payload); semester != "" {
		metadata = metadata.WithCustom(academic.MetadataSemester, semester)
	}

	h.events = append(h.events, academic.DomainEvent{
		ID:             uuid.NewString(),
		AggregateID:    h.studentID,
		AggregateType:  academic.AggregateType,
		Version:        int64(len(h.events) + 1),
		GlobalPosition: h.position,
		Timestamp:      h.clock,
		Payload:        payload,
		Metadata:       metadata,
	})
	h.clock = h.clock.Add(h.step)
	return h
}

// Grade appends GradeRecorded for the default semester.
func (h *History) Grade(courseID, grade string, points float64) *History {
	return h.Append(academic.GradeRecorded{
		CourseID:   courseID,
		Grade:      grade,
		Points:     points,
		Semester:   Semester,
		RecordedBy: Registrar,
	})
}

// Regrade appends GradeModified.
func (h *History) Regrade(courseID, grade string, points float64, reason string) *History {
	return h.Append(academic.GradeModified{
		CourseID:   courseID,
		NewGrade:   grade,
		NewPoints:  points,
		ModifiedBy: Registrar,
		Reason:     reason,
	})
}

// Enroll appends CourseEnrolled dated at the current clock.
func (h *History) Enroll(courseID, semester string) *History {
	return h.Append(academic.CourseEnrolled{
		CourseID:       courseID,
		Semester:       semester,
		EnrollmentDate: h.clock,
		EnrolledBy:     Registrar,
	})
}

// Drop appends CourseDropped dated at the current clock.
func (h *History) Drop(courseID, semester, reason string) *History {
	return h.Append(academic.CourseDropped{
		CourseID:  courseID,
		Semester:  semester,
		DropDate:  h.clock,
		DroppedBy: Registrar,
		Reason:    reason,
	})
}

// Progress appends DegreeProgressUpdated.
func (h *History) Progress(degreeID string, credits float64, fulfilled, remaining []string) *History {
	return h.Append(academic.DegreeProgressUpdated{
		DegreeID:                degreeID,
		CreditsEarned:           credits,
		RequirementsFulfilled:   fulfilled,
		RemainingRequirements:   remaining,
		ProjectedCompletionDate: Epoch.AddDate(2, 0, 0),
	})
}

// StudentID returns the student the history belongs to.
func (h *History) StudentID() string { return h.studentID }

// Len returns the number of events built so far.
func (h *History) Len() int { return len(h.events) }

// LastPosition returns the global position of the last event.
func (h *History) LastPosition() uint64 { return h.position }

// Events returns a copy of the events built so far.
func (h *History) Events() []academic.DomainEvent {
	out := make([]academic.DomainEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Payloads returns the payloads of the events built so far.
func (h *History) Payloads() []academic.Event {
	out := make([]academic.Event, len(h.events))
	for i, e := range h.events {
		out[i] = e.Payload
	}
	return out
}

func semesterOf(payload academic.Event) string {
	switch e := payload.(type) {
	case academic.GradeRecorded:
		return e.Semester
	case academic.CourseEnrolled:
		return e.Semester
	case academic.CourseDropped:
		return e.Semester
	default:
		return ""
	}
}

// RecordGrade returns a valid RecordGrade command for the default semester.
func RecordGrade(studentID, courseID, grade string, points float64) academic.RecordGrade {
	return academic.RecordGrade{
		StudentID:  studentID,
		CourseID:   courseID,
		Grade:      grade,
		Points:     points,
		Semester:   Semester,
		RecordedBy: Registrar,
	}
}

// Enroll returns a valid EnrollInCourse command dated at Epoch.
func Enroll(studentID, courseID, semester string) academic.EnrollInCourse {
	return academic.EnrollInCourse{
		StudentID:      studentID,
		CourseID:       courseID,
		Semester:       semester,
		EnrollmentDate: Epoch,
		EnrolledBy:     Registrar,
	}
}

// Drop returns a valid DropCourse command dated a month after Epoch.
func Drop(studentID, courseID, semester, reason string) academic.DropCourse {
	return academic.DropCourse{
		StudentID: studentID,
		CourseID:  courseID,
		Semester:  semester,
		DropDate:  Epoch.AddDate(0, 1, 0),
		DroppedBy: Registrar,
		Reason:    reason,
	}
}

// Stack is an in-memory record service with the built-in projections.
type Stack struct {
	Adapter     *memory.MemoryAdapter
	Store       *academic.EventStore
	Grades      *academic.GradesProjection
	Enrollments *academic.EnrollmentsProjection
	Degrees     *academic.DegreeProgressProjection
	Projections *academic.ProjectionManager
	Service     *academic.RecordService
}

// NewStack wires a RecordService over the in-memory adapter with the
// built-in projections on memory read models.
func NewStack(opts ...academic.RepositoryOption) *Stack {
	adapter := memory.NewAdapter()
	s := &Stack{
		Adapter:     adapter,
		Store:       academic.NewEventStore(adapter),
		Grades:      academic.NewGradesProjection(academic.NewMemoryReadModelStore[academic.GradeView]()),
		Enrollments: academic.NewEnrollmentsProjection(academic.NewMemoryReadModelStore[academic.EnrollmentView]()),
		Degrees:     academic.NewDegreeProgressProjection(academic.NewMemoryReadModelStore[academic.DegreeProgressView]()),
	}
	s.Projections = academic.NewProjectionManager(s.Store, []academic.Projection{s.Grades, s.Enrollments, s.Degrees})

	opts = append([]academic.RepositoryOption{academic.WithProjectionManager(s.Projections)}, opts...)
	repo := academic.NewRepository(s.Store, academic.NewSnapshotStore(adapter), opts...)
	s.Service = academic.NewRecordService(repo)
	return s
}
