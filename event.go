package academic

import (
	"time"
)

// EventType identifies one of the fixed set of student record events.
type EventType string

// The student record event types. Stored events carry these names.
const (
	EventGradeRecorded         EventType = "GradeRecorded"
	EventGradeModified         EventType = "GradeModified"
	EventCourseEnrolled        EventType = "CourseEnrolled"
	EventCourseDropped         EventType = "CourseDropped"
	EventDegreeProgressUpdated EventType = "DegreeProgressUpdated"
)

// EventTypes lists every known event type.
func EventTypes() []EventType {
	return []EventType{
		EventGradeRecorded,
		EventGradeModified,
		EventCourseEnrolled,
		EventCourseDropped,
		EventDegreeProgressUpdated,
	}
}

// Event is the payload of a domain event.
//
// The set of implementations is closed: the unexported normalize method
// keeps other packages from adding variants, and every consumer handles the
// variants through EventVisitor, so a new event type does not compile until
// each visitor implements it.
type Event interface {
	// EventType returns the stored name of the variant.
	EventType() EventType

	// Accept calls the visitor method for the variant.
	Accept(v EventVisitor) error

	// normalize returns a copy with times in UTC and empty lists as nil,
	// so that every serializer folds to identical state.
	normalize() Event
}

// EventVisitor handles each event variant.
type EventVisitor interface {
	VisitGradeRecorded(e GradeRecorded) error
	VisitGradeModified(e GradeModified) error
	VisitCourseEnrolled(e CourseEnrolled) error
	VisitCourseDropped(e CourseDropped) error
	VisitDegreeProgressUpdated(e DegreeProgressUpdated) error
}

// GradeRecorded is emitted when a grade is first recorded for a course.
type GradeRecorded struct {
	CourseID   string  `json:"courseId"`
	Grade      string  `json:"grade"`
	Points     float64 `json:"points"`
	Semester   string  `json:"semester"`
	RecordedBy string  `json:"recordedBy"`
}

// EventType implements Event.
func (GradeRecorded) EventType() EventType { return EventGradeRecorded }

// Accept implements Event.
func (e GradeRecorded) Accept(v EventVisitor) error { return v.VisitGradeRecorded(e) }

func (e GradeRecorded) normalize() Event { return e }

// GradeModified corrects the grade and points of a recorded course.
type GradeModified struct {
	CourseID   string  `json:"courseId"`
	NewGrade   string  `json:"newGrade"`
	NewPoints  float64 `json:"newPoints"`
	ModifiedBy string  `json:"modifiedBy"`
	Reason     string  `json:"reason"`
}

// EventType implements Event.
func (GradeModified) EventType() EventType { return EventGradeModified }

// Accept implements Event.
func (e GradeModified) Accept(v EventVisitor) error { return v.VisitGradeModified(e) }

func (e GradeModified) normalize() Event { return e }

// CourseEnrolled opens an enrollment for a course in a semester.
type CourseEnrolled struct {
	CourseID       string    `json:"courseId"`
	Semester       string    `json:"semester"`
	EnrollmentDate time.Time `json:"enrollmentDate"`
	EnrolledBy     string    `json:"enrolledBy"`
}

// EventType implements Event.
func (CourseEnrolled) EventType() EventType { return EventCourseEnrolled }

// Accept implements Event.
func (e CourseEnrolled) Accept(v EventVisitor) error { return v.VisitCourseEnrolled(e) }

func (e CourseEnrolled) normalize() Event {
	e.EnrollmentDate = e.EnrollmentDate.UTC()
	return e
}

// CourseDropped closes the active enrollment for a course in a semester.
type CourseDropped struct {
	CourseID  string    `json:"courseId"`
	Semester  string    `json:"semester"`
	DropDate  time.Time `json:"dropDate"`
	DroppedBy string    `json:"droppedBy"`
	Reason    string    `json:"reason"`
}

// EventType implements Event.
func (CourseDropped) EventType() EventType { return EventCourseDropped }

// Accept implements Event.
func (e CourseDropped) Accept(v EventVisitor) error { return v.VisitCourseDropped(e) }

func (e CourseDropped) normalize() Event {
	e.DropDate = e.DropDate.UTC()
	return e
}

// DegreeProgressUpdated replaces the progress record of one degree.
type DegreeProgressUpdated struct {
	DegreeID                string    `json:"degreeId"`
	CreditsEarned           float64   `json:"creditsEarned"`
	RequirementsFulfilled   []string  `json:"requirementsFulfilled"`
	RemainingRequirements   []string  `json:"remainingRequirements"`
	ProjectedCompletionDate time.Time `json:"projectedCompletionDate"`
}

// EventType implements Event.
func (DegreeProgressUpdated) EventType() EventType { return EventDegreeProgressUpdated }

// Accept implements Event.
func (e DegreeProgressUpdated) Accept(v EventVisitor) error { return v.VisitDegreeProgressUpdated(e) }

func (e DegreeProgressUpdated) normalize() Event {
	e.RequirementsFulfilled = cloneStrings(e.RequirementsFulfilled)
	e.RemainingRequirements = cloneStrings(e.RemainingRequirements)
	e.ProjectedCompletionDate = e.ProjectedCompletionDate.UTC()
	return e
}

// Metadata contains contextual information about an event.
type Metadata struct {
	// CorrelationID links events produced by the same request.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the command that caused this event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies the actor who triggered this event.
	UserID string `json:"userId,omitempty"`

	// Custom contains arbitrary key-value pairs such as the semester.
	Custom map[string]string `json:"custom,omitempty"`
}

// MetadataSemester is the Custom key holding the semester an event concerns.
const MetadataSemester = "semester"

// WithCorrelationID returns a copy of Metadata with the correlation ID set.
func (m Metadata) WithCorrelationID(id string) Metadata {
	m.CorrelationID = id
	return m
}

// WithCausationID returns a copy of Metadata with the causation ID set.
func (m Metadata) WithCausationID(id string) Metadata {
	m.CausationID = id
	return m
}

// WithUserID returns a copy of Metadata with the user ID set.
func (m Metadata) WithUserID(id string) Metadata {
	m.UserID = id
	return m
}

// WithCustom returns a copy of Metadata with a custom key-value pair added.
func (m Metadata) WithCustom(key, value string) Metadata {
	newCustom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		newCustom[k] = v
	}
	newCustom[key] = value
	m.Custom = newCustom
	return m
}

// Semester returns the semester recorded in Custom, if any.
func (m Metadata) Semester() string {
	return m.Custom[MetadataSemester]
}

// IsEmpty reports whether the Metadata has no values set.
func (m Metadata) IsEmpty() bool {
	return m.CorrelationID == "" &&
		m.CausationID == "" &&
		m.UserID == "" &&
		len(m.Custom) == 0
}

// DomainEvent is an immutable fact in a student's record together with its envelope.
type DomainEvent struct {
	// ID is the globally unique event identifier, assigned on append.
	ID string

	// AggregateID is the student identifier.
	AggregateID string

	// AggregateType is always AggregateType.
	AggregateType string

	// Version is the position within the student's stream, starting at 1.
	Version int64

	// GlobalPosition orders events across all streams, assigned on append.
	GlobalPosition uint64

	// Timestamp is when the event was recorded, assigned on append.
	Timestamp time.Time

	// Payload is the variant-specific data.
	Payload Event

	// Metadata carries the actor, semester and correlation data.
	Metadata Metadata
}

// EventType returns the payload's event type.
func (e DomainEvent) EventType() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// StreamID returns the stream the event belongs to.
func (e DomainEvent) StreamID() string {
	return BuildStreamID(e.AggregateID)
}

// StreamInfo contains metadata about a student's stream.
type StreamInfo struct {
	StreamID   string
	Category   string
	Version    int64
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
