package msgpack

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

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
	assert.Equal(t, "msgpack", NewSerializer().Name())
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

func TestSerializer_FieldNames(t *testing.T) {
	event := academic.GradeRecorded{CourseID: "CS101", Grade: "A", Points: 4, Semester: "Fall2024", RecordedBy: "registrar"}

	t.Run("follows json tags by default", func(t *testing.T) {
		data, err := NewSerializer().Marshal(event)
		require.NoError(t, err)

		var generic map[string]interface{}
		require.NoError(t, msgpack.Unmarshal(data, &generic))
		assert.Equal(t, "CS101", generic["courseId"])
		assert.Equal(t, "registrar", generic["recordedBy"])
	})

	t.Run("custom tag", func(t *testing.T) {
		data, err := NewSerializer(WithStructTag("msgpack")).Marshal(event)
		require.NoError(t, err)

		var generic map[string]interface{}
		require.NoError(t, msgpack.Unmarshal(data, &generic))
		assert.Equal(t, "CS101", generic["CourseID"])
	})

	t.Run("smaller than json", func(t *testing.T) {
		packed, err := NewSerializer().Marshal(event)
		require.NoError(t, err)
		plain, err := json.Marshal(event)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(plain))
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

	t.Run("corrupt data", func(t *testing.T) {
		var event academic.GradeRecorded
		err := s.Unmarshal([]byte{0xc1}, &event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "academic/msgpack: failed to deserialize")
	})

	t.Run("unencodable value", func(t *testing.T) {
		_, err := s.Marshal(make(chan int))
		var serr *SerializationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "serialize", serr.Operation)
	})

	t.Run("decode failure surfaces as store error", func(t *testing.T) {
		_, err := academic.DecodeEvent(s, string(academic.EventGradeRecorded), bytes.Repeat([]byte{0xc1}, 3))
		assert.ErrorIs(t, err, academic.ErrStore)
	})
}

func TestSerializer_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSerializer()
	adapter := memory.NewAdapter()
	store := academic.NewEventStore(adapter, academic.WithSerializer(s))
	snapshots := academic.NewSnapshotStore(adapter, academic.WithSnapshotSerializer(s))
	repo := academic.NewRepository(store, snapshots, academic.WithSnapshotCadence(2))

	record := academic.NewStudentRecord("s-1")
	require.NoError(t, record.EnrollInCourse("MATH201", "Spring2025", when, "advisor"))
	require.NoError(t, record.DropCourse("MATH201", "Spring2025", when.Add(24*time.Hour), "student", "schedule"))
	require.NoError(t, record.UpdateDegreeProgress("BSc-CS", 30, []string{"core"}, nil, when.AddDate(2, 0, 0)))
	result, err := repo.Save(ctx, record)
	require.NoError(t, err)
	require.True(t, result.SnapshotWritten)

	snap, err := snapshots.GetLatestSnapshot(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, snap)

	loaded, err := repo.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, record.State(), loaded.State())
	assert.Equal(t, record.State(), snap.State)
}
