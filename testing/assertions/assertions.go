// Package assertions provides assertions over committed student record
// events: payload checks, stream invariants and readable event diffs.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	academic "github.com/songifi/LMS-Backend-sub004"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// AssertEventTypes checks that the events have the expected types in order.
func AssertEventTypes(t TB, events []academic.DomainEvent, types ...academic.EventType) {
	t.Helper()

	if len(events) != len(types) {
		t.Fatalf("Expected %d events, got %d", len(types), len(events))
	}

	for i, expected := range types {
		if actual := events[i].EventType(); actual != expected {
			t.Errorf("Event %d: expected type %s, got %s", i, expected, actual)
		}
	}
}

// AssertPayload checks that an event carries exactly the expected payload.
func AssertPayload[T academic.Event](t TB, event academic.DomainEvent, expected T) {
	t.Helper()

	actual, ok := event.Payload.(T)
	if !ok {
		t.Fatalf("Event %d is not of expected type %s, got %s", event.Version, expected.EventType(), event.EventType())
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("Event %d payload mismatch:\nExpected: %+v\nActual: %+v", event.Version, expected, actual)
	}
}

// AssertEventCount checks the number of events.
func AssertEventCount(t TB, events []academic.DomainEvent, expected int) {
	t.Helper()

	if len(events) != expected {
		t.Errorf("Expected %d events, got %d", expected, len(events))
	}
}

// AssertNoEvents checks that no events were produced.
func AssertNoEvents(t TB, events []academic.DomainEvent) {
	t.Helper()

	if len(events) > 0 {
		t.Errorf("Expected no events, got %d: %s", len(events), summarize(events))
	}
}

// AssertLastEvent checks the last event carries the expected payload.
func AssertLastEvent[T academic.Event](t TB, events []academic.DomainEvent, expected T) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("Expected at least one event, got none")
	}

	AssertPayload(t, events[len(events)-1], expected)
}

// AssertEventAtIndex checks the event at index carries the expected payload.
func AssertEventAtIndex[T academic.Event](t TB, events []academic.DomainEvent, index int, expected T) {
	t.Helper()

	if index < 0 || index >= len(events) {
		t.Fatalf("Index %d out of bounds, have %d events", index, len(events))
	}

	AssertPayload(t, events[index], expected)
}

// AssertContainsPayload checks that some event carries the expected payload.
func AssertContainsPayload(t TB, events []academic.DomainEvent, expected academic.Event) {
	t.Helper()

	if CountMatches(events, MatchPayload(expected)) == 0 {
		t.Errorf("Events do not contain expected %s: %+v", expected.EventType(), expected)
	}
}

// AssertStream checks that events form one student's stream: same student,
// versions 1..n without gaps.
func AssertStream(t TB, events []academic.DomainEvent, studentID string) {
	t.Helper()

	for i, e := range events {
		if e.AggregateID != studentID {
			t.Errorf("Event %d belongs to %q, expected %q", i, e.AggregateID, studentID)
		}
		if e.Version != int64(i+1) {
			t.Errorf("Event %d has version %d, expected %d", i, e.Version, i+1)
		}
	}
}

// AssertGlobalOrder checks that global positions strictly increase.
func AssertGlobalOrder(t TB, events []academic.DomainEvent) {
	t.Helper()

	for i := 1; i < len(events); i++ {
		if events[i].GlobalPosition <= events[i-1].GlobalPosition {
			t.Errorf("Event %d at position %d does not follow position %d",
				i, events[i].GlobalPosition, events[i-1].GlobalPosition)
		}
	}
}

// EventDiff represents a difference between expected and actual payloads.
type EventDiff struct {
	Index    int
	Expected academic.Event
	Actual   academic.Event
	Type     DiffType
}

// DiffType represents the type of difference.
type DiffType int

const (
	// DiffMissing indicates an expected event was not present.
	DiffMissing DiffType = iota
	// DiffExtra indicates an unexpected event was present.
	DiffExtra
	// DiffMismatch indicates event data did not match.
	DiffMismatch
)

// String returns a human-readable representation of the diff type.
func (d DiffType) String() string {
	switch d {
	case DiffMissing:
		return "missing"
	case DiffExtra:
		return "extra"
	case DiffMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// DiffEvents compares the expected payloads with the payloads of actual.
func DiffEvents(expected []academic.Event, actual []academic.DomainEvent) []EventDiff {
	var diffs []EventDiff

	n := max(len(expected), len(actual))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(expected):
			diffs = append(diffs, EventDiff{Index: i, Actual: actual[i].Payload, Type: DiffExtra})
		case i >= len(actual):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		case !reflect.DeepEqual(expected[i], actual[i].Payload):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Actual: actual[i].Payload, Type: DiffMismatch})
		}
	}

	return diffs
}

// FormatDiffs formats event diffs as a human-readable string.
func FormatDiffs(diffs []EventDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var buf strings.Builder
	buf.WriteString("Event differences:\n")
	for _, diff := range diffs {
		fmt.Fprintf(&buf, "  Event %d (%s):\n", diff.Index, diff.Type)
		switch diff.Type {
		case DiffExtra:
			fmt.Fprintf(&buf, "    + %s %+v (unexpected)\n", diff.Actual.EventType(), diff.Actual)
		case DiffMissing:
			fmt.Fprintf(&buf, "    - %s %+v (missing)\n", diff.Expected.EventType(), diff.Expected)
		case DiffMismatch:
			fmt.Fprintf(&buf, "    - %s %+v\n", diff.Expected.EventType(), diff.Expected)
			fmt.Fprintf(&buf, "    + %s %+v\n", diff.Actual.EventType(), diff.Actual)
		}
	}
	return buf.String()
}

// AssertEventsEqual fails with a diff unless actual carries exactly the expected payloads.
func AssertEventsEqual(t TB, expected []academic.Event, actual []academic.DomainEvent) {
	t.Helper()

	if diffs := DiffEvents(expected, actual); len(diffs) > 0 {
		t.Error(FormatDiffs(diffs))
	}
}

// EventMatcher is a function that checks if an event matches certain criteria.
type EventMatcher func(event academic.DomainEvent) bool

// MatchEventType matches events of one type.
func MatchEventType(eventType academic.EventType) EventMatcher {
	return func(event academic.DomainEvent) bool {
		return event.EventType() == eventType
	}
}

// MatchPayload matches events whose payload equals expected.
func MatchPayload(expected academic.Event) EventMatcher {
	return func(event academic.DomainEvent) bool {
		return reflect.DeepEqual(event.Payload, expected)
	}
}

// MatchStudent matches events of one student.
func MatchStudent(studentID string) EventMatcher {
	return func(event academic.DomainEvent) bool {
		return event.AggregateID == studentID
	}
}

// MatchSemester matches events whose metadata names the semester.
func MatchSemester(semester string) EventMatcher {
	return func(event academic.DomainEvent) bool {
		return event.Metadata.Semester() == semester
	}
}

// MatchActor matches events recorded by one user.
func MatchActor(userID string) EventMatcher {
	return func(event academic.DomainEvent) bool {
		return event.Metadata.UserID == userID
	}
}

// AssertAnyMatch checks that at least one event matches the matcher.
func AssertAnyMatch(t TB, events []academic.DomainEvent, matcher EventMatcher) {
	t.Helper()

	if CountMatches(events, matcher) == 0 {
		t.Error("No event matched the criteria")
	}
}

// AssertAllMatch checks that all events match the matcher.
func AssertAllMatch(t TB, events []academic.DomainEvent, matcher EventMatcher) {
	t.Helper()

	for i, event := range events {
		if !matcher(event) {
			t.Errorf("Event %d did not match: %s", i, describe(event))
		}
	}
}

// AssertNoneMatch checks that no events match the matcher.
func AssertNoneMatch(t TB, events []academic.DomainEvent, matcher EventMatcher) {
	t.Helper()

	for i, event := range events {
		if matcher(event) {
			t.Errorf("Event %d unexpectedly matched: %s", i, describe(event))
		}
	}
}

// CountMatches returns the number of events that match the matcher.
func CountMatches(events []academic.DomainEvent, matcher EventMatcher) int {
	count := 0
	for _, event := range events {
		if matcher(event) {
			count++
		}
	}
	return count
}

// FilterEvents returns events that match the matcher.
func FilterEvents(events []academic.DomainEvent, matcher EventMatcher) []academic.DomainEvent {
	var result []academic.DomainEvent
	for _, event := range events {
		if matcher(event) {
			result = append(result, event)
		}
	}
	return result
}

func describe(e academic.DomainEvent) string {
	return fmt.Sprintf("%s v%d of %s %+v", e.EventType(), e.Version, e.AggregateID, e.Payload)
}

func summarize(events []academic.DomainEvent) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = describe(e)
	}
	return strings.Join(parts, "; ")
}
