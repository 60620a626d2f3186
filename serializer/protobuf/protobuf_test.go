package protobuf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters/memory"
)

var when = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

func sampleEvents() []academic.Event {
	return []academic.Event{
		academic.GradeRecorded{CourseID: "CS101", Grade: "B+", Points: 3.3, Semester: "Fall2024", RecordedBy: "registrar"},
		academic.GradeModified{CourseID: "CS101", NewGrade: "A-", NewPoints: 3.7, ModifiedBy: "dean", Reason: "appeal"},
		academic.CourseEnrolled{CourseID: "MATH201", Semester: "Spring2025", EnrollmentDate: when, EnrolledBy: "advisor"},
		academic.CourseDropped{CourseID: "MATH201", Semester: "Spring2025", DropDate: when.Add(48 * time.Hour), DroppedBy: "student", Reason: "schedule"},
		academic.DegreeProgressUpdated{
			DegreeID:                "BSc-CS",
			CreditsEarned:           45.5,
			RequirementsFulfilled:   []string{"core"},
			RemainingRequirements:   []string{"thesis", "electives"},
			ProjectedCompletionDate: when.AddDate(2, 0, 0),
		},
	}
}

func TestSerializer_Name(t *testing.T) {
	assert.Equal(t, "protobuf", NewSerializer().Name())
}

func TestSerializer_EventRoundTrip(t *testing.T) {
	s := NewSerializer()

	for _, event := range sampleEvents() {
		t.Run(string(event.EventType()), func(t *testing.T) {
			eventType, data, err := academic.EncodeEvent(s, event)
			require.NoError(t, err)

			decoded, err := academic.DecodeEvent(s, eventType, data)
			require.NoError(t, err)
			assert.Equal(t, event, decoded)
		})
	}
}

func TestSerializer_WireFormat(t *testing.T) {
	s := NewSerializer()
	event := academic.GradeRecorded{CourseID: "CS101", Grade: "A", Points: 4, Semester: "Fall2024", RecordedBy: "registrar"}

	data, err := s.Marshal(event)
	require.NoError(t, err)

	t.Run("readable as a plain Struct", func(t *testing.T) {
		var msg structpb.Struct
		require.NoError(t, proto.Unmarshal(data, &msg))
		assert.Equal(t, "CS101", msg.Fields["courseId"].GetStringValue())
		assert.Equal(t, 4.0, msg.Fields["points"].GetNumberValue())
	})

	t.Run("deterministic", func(t *testing.T) {
		again, err := s.Marshal(event)
		require.NoError(t, err)
		assert.Equal(t, data, again)
	})
}

func TestSerializer_Errors(t *testing.T) {
	s := NewSerializer()

	t.Run("empty data", func(t *testing.T) {
		var event academic.GradeRecorded
		err := s.Unmarshal(nil, &event)

		var serr *SerializationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "deserialize", serr.Operation)
		assert.ErrorIs(t, err, ErrEmptyData)
	})

	t.Run("non-object value", func(t *testing.T) {
		_, err := s.Marshal([]string{"not", "an", "object"})
		assert.ErrorIs(t, err, ErrNotObject)

		_, err = s.Marshal(nil)
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("corrupt data", func(t *testing.T) {
		var event academic.GradeRecorded
		err := s.Unmarshal([]byte{0xff, 0xff, 0xff}, &event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "academic/protobuf: failed to deserialize")
	})

	t.Run("type mismatch", func(t *testing.T) {
		data, err := s.Marshal(map[string]interface{}{"points": "four"})
		require.NoError(t, err)

		var event academic.GradeRecorded
		assert.Error(t, s.Unmarshal(data, &event))
	})
}

func TestSerializer_Concurrency(t *testing.T) {
	s := NewSerializer()
	events := sampleEvents()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(event academic.Event) {
			defer wg.Done()
			eventType, data, err := academic.EncodeEvent(s, event)
			if !assert.NoError(t, err) {
				return
			}
			decoded, err := academic.DecodeEvent(s, eventType, data)
			assert.NoError(t, err)
			assert.Equal(t, event, decoded)
		}(events[i%len(events)])
	}
	wg.Wait()
}

func TestSerializer_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSerializer()
	adapter := memory.NewAdapter()
	store := academic.NewEventStore(adapter, academic.WithSerializer(s))
	snapshots := academic.NewSnapshotStore(adapter, academic.WithSnapshotSerializer(s))
	repo := academic.NewRepository(store, snapshots, academic.WithSnapshotCadence(2))

	record := academic.NewStudentRecord("s-1")
	require.NoError(t, record.RecordGrade("CS101", "B+", 3.3, "Fall2024", "registrar"))
	require.NoError(t, record.ModifyGrade("CS101", "A-", 3.7, "dean", "appeal"))
	require.NoError(t, record.EnrollInCourse("MATH201", "Spring2025", when, "advisor"))
	result, err := repo.Save(ctx, record)
	require.NoError(t, err)
	require.True(t, result.SnapshotWritten)

	snap, err := snapshots.GetLatestSnapshot(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, record.State(), snap.State)

	loaded, err := repo.LoadAtVersion(ctx, "s-1", 1)
	require.NoError(t, err)
	grades := loaded.State().Grades
	require.Len(t, grades, 1)
	assert.Equal(t, "B+", grades[0].Grade)
}
