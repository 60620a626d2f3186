package academic

import (
	"fmt"
	"strings"
	"time"
)

// AggregateBase carries the identity, version and pending events of an
// event-sourced record.
type AggregateBase struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []DomainEvent
}

// NewAggregateBase creates a new AggregateBase with the given ID and type.
func NewAggregateBase(id, aggregateType string) AggregateBase {
	return AggregateBase{
		id:            id,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// AggregateType returns the aggregate type.
func (a *AggregateBase) AggregateType() string {
	return a.aggregateType
}

// Version returns the number of events applied, committed or not.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// OriginalVersion returns the version before the uncommitted events were applied.
// This is the expected version for the next append.
func (a *AggregateBase) OriginalVersion() int64 {
	return a.version - int64(len(a.uncommittedEvents))
}

// UncommittedEvents returns a copy of the events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []DomainEvent {
	if len(a.uncommittedEvents) == 0 {
		return nil
	}
	out := make([]DomainEvent, len(a.uncommittedEvents))
	copy(out, a.uncommittedEvents)
	return out
}

// ClearUncommittedEvents removes all uncommitted events.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommittedEvents = nil
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommittedEvents) > 0
}

// StreamID returns the stream ID for this aggregate.
func (a *AggregateBase) StreamID() string {
	return a.aggregateType + "-" + a.id
}

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

// Enrollment statuses. An enrollment only moves from Enrolled to Dropped.
const (
	StatusEnrolled EnrollmentStatus = "Enrolled"
	StatusDropped  EnrollmentStatus = "Dropped"
)

// GradeEntry is the current grade of one course.
type GradeEntry struct {
	CourseID   string  `json:"courseId"`
	Grade      string  `json:"grade"`
	Points     float64 `json:"points"`
	Semester   string  `json:"semester"`
	RecordedBy string  `json:"recordedBy"`
	ModifiedBy string  `json:"modifiedBy,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Enrollment is one enrollment of a course in a semester.
type Enrollment struct {
	CourseID       string           `json:"courseId"`
	Semester       string           `json:"semester"`
	Status         EnrollmentStatus `json:"status"`
	EnrollmentDate time.Time        `json:"enrollmentDate"`
	EnrolledBy     string           `json:"enrolledBy"`
	DropDate       time.Time        `json:"dropDate"`
	DroppedBy      string           `json:"droppedBy,omitempty"`
	DropReason     string           `json:"dropReason,omitempty"`
}

// Active reports whether the enrollment has not been dropped.
func (e Enrollment) Active() bool {
	return e.Status == StatusEnrolled
}

// DegreeProgress is the latest progress record of one degree.
type DegreeProgress struct {
	DegreeID                string    `json:"degreeId"`
	CreditsEarned           float64   `json:"creditsEarned"`
	RequirementsFulfilled   []string  `json:"requirementsFulfilled"`
	RemainingRequirements   []string  `json:"remainingRequirements"`
	ProjectedCompletionDate time.Time `json:"projectedCompletionDate"`
}

// RecordState is an immutable view of a student record. It is the
// snapshot payload and the shape returned to readers.
type RecordState struct {
	StudentID      string           `json:"studentId"`
	Version        int64            `json:"version"`
	Grades         []GradeEntry     `json:"grades"`
	Enrollments    []Enrollment     `json:"enrollments"`
	DegreeProgress []DegreeProgress `json:"degreeProgress"`
}

// Grade returns the grade entry of a course.
func (s RecordState) Grade(courseID string) (GradeEntry, bool) {
	for _, g := range s.Grades {
		if g.CourseID == courseID {
			return g, true
		}
	}
	return GradeEntry{}, false
}

// Enrollment returns the latest enrollment of a course in a semester.
func (s RecordState) Enrollment(courseID, semester string) (Enrollment, bool) {
	for i := len(s.Enrollments) - 1; i >= 0; i-- {
		e := s.Enrollments[i]
		if e.CourseID == courseID && e.Semester == semester {
			return e, true
		}
	}
	return Enrollment{}, false
}

// clone returns a deep copy with times in UTC and empty lists as nil.
func (s RecordState) clone() RecordState {
	out := RecordState{StudentID: s.StudentID, Version: s.Version}
	if len(s.Grades) > 0 {
		out.Grades = make([]GradeEntry, len(s.Grades))
		copy(out.Grades, s.Grades)
	}
	if len(s.Enrollments) > 0 {
		out.Enrollments = make([]Enrollment, len(s.Enrollments))
		for i, e := range s.Enrollments {
			e.EnrollmentDate = e.EnrollmentDate.UTC()
			e.DropDate = e.DropDate.UTC()
			out.Enrollments[i] = e
		}
	}
	if len(s.DegreeProgress) > 0 {
		out.DegreeProgress = make([]DegreeProgress, len(s.DegreeProgress))
		for i, p := range s.DegreeProgress {
			p.RequirementsFulfilled = cloneStrings(p.RequirementsFulfilled)
			p.RemainingRequirements = cloneStrings(p.RemainingRequirements)
			p.ProjectedCompletionDate = p.ProjectedCompletionDate.UTC()
			out.DegreeProgress[i] = p
		}
	}
	return out
}

// StudentRecord is the aggregate holding one student's academic history.
//
// Command methods validate their input and preconditions, then emit exactly
// one event, fold it into state and queue it for the Repository to save.
// A rejected command leaves the record untouched.
type StudentRecord struct {
	AggregateBase

	state    RecordState
	metadata Metadata
	readOnly bool
}

// NewStudentRecord creates an empty record for a student.
func NewStudentRecord(studentID string) *StudentRecord {
	return &StudentRecord{
		AggregateBase: NewAggregateBase(studentID, AggregateType),
		state:         RecordState{StudentID: studentID},
	}
}

// State returns a deep copy of the current state.
func (r *StudentRecord) State() RecordState {
	s := r.state.clone()
	s.Version = r.version
	return s
}

// ReadOnly reports whether the record is a historical reconstruction.
func (r *StudentRecord) ReadOnly() bool {
	return r.readOnly
}

// markReadOnly flags the record as a historical reconstruction.
func (r *StudentRecord) markReadOnly() {
	r.readOnly = true
}

// SetMetadata sets the correlation data stamped on subsequently emitted events.
// The actor and semester are filled in per command.
func (r *StudentRecord) SetMetadata(m Metadata) {
	r.metadata = m
}

// RestoreSnapshot replaces the state with a snapshot's state.
// It must be called on a record without uncommitted events.
func (r *StudentRecord) RestoreSnapshot(state RecordState) error {
	if state.StudentID != r.id {
		return NewStoreError("restore snapshot",
			fmt.Errorf("snapshot belongs to %q, not %q", state.StudentID, r.id))
	}
	if state.Version < 1 {
		return NewStoreError("restore snapshot", fmt.Errorf("snapshot version %d is invalid", state.Version))
	}
	if r.HasUncommittedEvents() {
		return NewInvalidOperationError("RestoreSnapshot", "record has uncommitted events")
	}
	r.state = state.clone()
	r.version = state.Version
	return nil
}

// LoadFromHistory folds committed events into state in version order.
// It never emits events. An unknown event type or a version gap aborts the
// fold with an error; the record must then be discarded.
func (r *StudentRecord) LoadFromHistory(events []DomainEvent) error {
	for _, event := range events {
		if event.AggregateID != r.id {
			return NewStoreError("replay", fmt.Errorf("event %d belongs to %q, not %q", event.Version, event.AggregateID, r.id))
		}
		if event.Version != r.version+1 {
			return NewStoreError("replay", fmt.Errorf("expected version %d for %q, got %d", r.version+1, r.id, event.Version))
		}
		if err := r.apply(event); err != nil {
			return err
		}
	}
	return nil
}

// RecordGrade emits GradeRecorded. Recording a course that already has a
// grade replaces that entry in place.
func (r *StudentRecord) RecordGrade(courseID, grade string, points float64, semester, recordedBy string) error {
	const op = "RecordGrade"
	if err := r.checkWritable(op); err != nil {
		return err
	}
	if err := requireFields(op, "CourseID", courseID, "Grade", grade, "Semester", semester, "RecordedBy", recordedBy); err != nil {
		return err
	}
	if err := validatePoints(op, "Points", points); err != nil {
		return err
	}
	return r.raise(GradeRecorded{
		CourseID:   courseID,
		Grade:      grade,
		Points:     points,
		Semester:   semester,
		RecordedBy: recordedBy,
	}, recordedBy, semester)
}

// ModifyGrade emits GradeModified. The course must already have a grade.
func (r *StudentRecord) ModifyGrade(courseID, newGrade string, newPoints float64, modifiedBy, reason string) error {
	const op = "ModifyGrade"
	if err := r.checkWritable(op); err != nil {
		return err
	}
	if err := requireFields(op, "CourseID", courseID, "NewGrade", newGrade, "ModifiedBy", modifiedBy); err != nil {
		return err
	}
	if err := validatePoints(op, "NewPoints", newPoints); err != nil {
		return err
	}
	entry, ok := r.state.Grade(courseID)
	if !ok {
		return NewInvalidOperationError(op, "no prior grade to modify")
	}
	return r.raise(GradeModified{
		CourseID:   courseID,
		NewGrade:   newGrade,
		NewPoints:  newPoints,
		ModifiedBy: modifiedBy,
		Reason:     reason,
	}, modifiedBy, entry.Semester)
}

// EnrollInCourse emits CourseEnrolled. It fails while an active enrollment
// exists for the same course and semester.
func (r *StudentRecord) EnrollInCourse(courseID, semester string, enrollmentDate time.Time, enrolledBy string) error {
	const op = "EnrollInCourse"
	if err := r.checkWritable(op); err != nil {
		return err
	}
	if err := requireFields(op, "CourseID", courseID, "Semester", semester, "EnrolledBy", enrolledBy); err != nil {
		return err
	}
	if enrollmentDate.IsZero() {
		return NewValidationError(op, "EnrollmentDate", "is required")
	}
	if e, ok := r.state.Enrollment(courseID, semester); ok && e.Active() {
		return NewInvalidOperationError(op, fmt.Sprintf("already enrolled in %s for %s", courseID, semester))
	}
	return r.raise(CourseEnrolled{
		CourseID:       courseID,
		Semester:       semester,
		EnrollmentDate: enrollmentDate.UTC(),
		EnrolledBy:     enrolledBy,
	}, enrolledBy, semester)
}

// DropCourse emits CourseDropped. It requires an active enrollment for the
// course and semester.
func (r *StudentRecord) DropCourse(courseID, semester string, dropDate time.Time, droppedBy, reason string) error {
	const op = "DropCourse"
	if err := r.checkWritable(op); err != nil {
		return err
	}
	if err := requireFields(op, "CourseID", courseID, "Semester", semester, "DroppedBy", droppedBy); err != nil {
		return err
	}
	if dropDate.IsZero() {
		return NewValidationError(op, "DropDate", "is required")
	}
	if e, ok := r.state.Enrollment(courseID, semester); !ok || !e.Active() {
		return NewInvalidOperationError(op, fmt.Sprintf("no active enrollment in %s for %s", courseID, semester))
	}
	return r.raise(CourseDropped{
		CourseID:  courseID,
		Semester:  semester,
		DropDate:  dropDate.UTC(),
		DroppedBy: droppedBy,
		Reason:    reason,
	}, droppedBy, semester)
}

// UpdateDegreeProgress emits DegreeProgressUpdated, superseding the previous
// progress record of the same degree.
func (r *StudentRecord) UpdateDegreeProgress(degreeID string, creditsEarned float64, requirementsFulfilled, remainingRequirements []string, projectedCompletionDate time.Time) error {
	const op = "UpdateDegreeProgress"
	if err := r.checkWritable(op); err != nil {
		return err
	}
	if err := requireFields(op, "DegreeID", degreeID); err != nil {
		return err
	}
	if err := validatePoints(op, "CreditsEarned", creditsEarned); err != nil {
		return err
	}
	return r.raise(DegreeProgressUpdated{
		DegreeID:                degreeID,
		CreditsEarned:           creditsEarned,
		RequirementsFulfilled:   requirementsFulfilled,
		RemainingRequirements:   remainingRequirements,
		ProjectedCompletionDate: projectedCompletionDate,
	}.normalize(), "", "")
}

func (r *StudentRecord) checkWritable(op string) error {
	if r.readOnly {
		return NewInvalidOperationError(op, "historical record is read-only")
	}
	return nil
}

// raise folds a new event and queues it for saving.
func (r *StudentRecord) raise(payload Event, actor, semester string) error {
	metadata := r.metadata
	if actor != "" {
		metadata = metadata.WithUserID(actor)
	}
	if semester != "" {
		metadata = metadata.WithCustom(MetadataSemester, semester)
	}

	event := DomainEvent{
		AggregateID:   r.id,
		AggregateType: r.aggregateType,
		Version:       r.version + 1,
		Payload:       payload,
		Metadata:      metadata,
	}
	if err := r.apply(event); err != nil {
		return err
	}
	r.uncommittedEvents = append(r.uncommittedEvents, event)
	return nil
}

func (r *StudentRecord) apply(event DomainEvent) error {
	if event.Payload == nil {
		return NewStoreError("replay", fmt.Errorf("event %d of %q has no payload", event.Version, r.id))
	}
	if err := event.Payload.Accept(recordFolder{r}); err != nil {
		return err
	}
	r.version = event.Version
	r.state.Version = event.Version
	return nil
}

// recordFolder applies each event variant to a record's state.
type recordFolder struct {
	r *StudentRecord
}

var _ EventVisitor = recordFolder{}

func (f recordFolder) VisitGradeRecorded(e GradeRecorded) error {
	entry := GradeEntry{
		CourseID:   e.CourseID,
		Grade:      e.Grade,
		Points:     e.Points,
		Semester:   e.Semester,
		RecordedBy: e.RecordedBy,
	}
	for i := range f.r.state.Grades {
		if f.r.state.Grades[i].CourseID == e.CourseID {
			f.r.state.Grades[i] = entry
			return nil
		}
	}
	f.r.state.Grades = append(f.r.state.Grades, entry)
	return nil
}

func (f recordFolder) VisitGradeModified(e GradeModified) error {
	for i := range f.r.state.Grades {
		g := &f.r.state.Grades[i]
		if g.CourseID == e.CourseID {
			g.Grade = e.NewGrade
			g.Points = e.NewPoints
			g.ModifiedBy = e.ModifiedBy
			g.Reason = e.Reason
			return nil
		}
	}
	return NewStoreError("replay", fmt.Errorf("GradeModified for %s without a recorded grade", e.CourseID))
}

func (f recordFolder) VisitCourseEnrolled(e CourseEnrolled) error {
	f.r.state.Enrollments = append(f.r.state.Enrollments, Enrollment{
		CourseID:       e.CourseID,
		Semester:       e.Semester,
		Status:         StatusEnrolled,
		EnrollmentDate: e.EnrollmentDate.UTC(),
		EnrolledBy:     e.EnrolledBy,
	})
	return nil
}

func (f recordFolder) VisitCourseDropped(e CourseDropped) error {
	for i := len(f.r.state.Enrollments) - 1; i >= 0; i-- {
		en := &f.r.state.Enrollments[i]
		if en.CourseID == e.CourseID && en.Semester == e.Semester && en.Active() {
			en.Status = StatusDropped
			en.DropDate = e.DropDate.UTC()
			en.DroppedBy = e.DroppedBy
			en.DropReason = e.Reason
			return nil
		}
	}
	return NewStoreError("replay", fmt.Errorf("CourseDropped for %s/%s without an active enrollment", e.CourseID, e.Semester))
}

func (f recordFolder) VisitDegreeProgressUpdated(e DegreeProgressUpdated) error {
	progress := DegreeProgress{
		DegreeID:                e.DegreeID,
		CreditsEarned:           e.CreditsEarned,
		RequirementsFulfilled:   cloneStrings(e.RequirementsFulfilled),
		RemainingRequirements:   cloneStrings(e.RemainingRequirements),
		ProjectedCompletionDate: e.ProjectedCompletionDate.UTC(),
	}
	for i := range f.r.state.DegreeProgress {
		if f.r.state.DegreeProgress[i].DegreeID == e.DegreeID {
			f.r.state.DegreeProgress[i] = progress
			return nil
		}
	}
	f.r.state.DegreeProgress = append(f.r.state.DegreeProgress, progress)
	return nil
}

// requireFields takes name/value pairs and reports the first blank value.
func requireFields(cmdType string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return NewValidationError(cmdType, pairs[i], "is required")
		}
	}
	return nil
}

func validatePoints(cmdType, field string, value float64) error {
	if value < 0 || value != value {
		return NewValidationError(cmdType, field, "must be a non-negative number")
	}
	return nil
}
