// Package bdd provides Given-When-Then fixtures for student records.
//
// TestFixture drives a StudentRecord directly: history is folded with
// LoadFromHistory and the payloads the command raises are compared with the
// expected ones. CommandTestFixture drives a RecordService end to end.
package bdd

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/testing/testutil"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TestFixture provides BDD-style testing for a student record.
type TestFixture struct {
	t        TB
	record   *academic.StudentRecord
	history  []academic.DomainEvent
	result   error
	executed bool
}

// Given sets up a record for studentID with the given payloads already
// committed, in order.
func Given(t TB, studentID string, events ...academic.Event) *TestFixture {
	t.Helper()

	history := testutil.NewHistory(studentID)
	for _, e := range events {
		history.Append(e)
	}
	return GivenHistory(t, studentID, history.Events()...)
}

// GivenHistory sets up a record for studentID from fully formed committed events.
func GivenHistory(t TB, studentID string, events ...academic.DomainEvent) *TestFixture {
	t.Helper()
	return &TestFixture{
		t:       t,
		record:  academic.NewStudentRecord(studentID),
		history: events,
	}
}

// When folds the history and runs command against the record.
func (f *TestFixture) When(command func(r *academic.StudentRecord) error) *TestFixture {
	f.t.Helper()

	if err := f.record.LoadFromHistory(f.history); err != nil {
		f.t.Fatalf("bdd: failed to fold given history: %v", err)
	}

	f.result = command(f.record)
	f.executed = true
	return f
}

// Then asserts that the command succeeded and raised exactly the expected payloads.
func (f *TestFixture) Then(expected ...academic.Event) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("Then")

	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}

	raised := f.raised()
	if len(raised) != len(expected) {
		f.t.Fatalf("Expected %d events, got %d.\nExpected: %+v\nActual: %+v",
			len(expected), len(raised), expected, raised)
	}

	for i := range expected {
		if !reflect.DeepEqual(raised[i], expected[i]) {
			f.t.Errorf("Event %d mismatch:\nExpected: %+v\nActual: %+v", i, expected[i], raised[i])
		}
	}
	return f
}

// ThenVersion asserts the record version after the command.
func (f *TestFixture) ThenVersion(expected int64) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenVersion")

	if v := f.record.Version(); v != expected {
		f.t.Errorf("Expected version %d, got %d", expected, v)
	}
	return f
}

// ThenState runs check against the record state after the command.
func (f *TestFixture) ThenState(check func(t TB, state academic.RecordState)) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenState")

	check(f.t, f.record.State())
	return f
}

// ThenError asserts that the command failed with an error matching target.
func (f *TestFixture) ThenError(target error) {
	f.t.Helper()
	f.mustHaveRun("ThenError")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}

	if !errors.Is(f.result, target) {
		f.t.Errorf("Expected error %v, got %v", target, f.result)
	}
	f.noneRaised()
}

// ThenErrorContains asserts that the error message contains a substring.
func (f *TestFixture) ThenErrorContains(substring string) {
	f.t.Helper()
	f.mustHaveRun("ThenErrorContains")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}

	if !strings.Contains(f.result.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.result.Error())
	}
}

// ThenNoEvents asserts that the command succeeded without raising events.
func (f *TestFixture) ThenNoEvents() {
	f.t.Helper()
	f.mustHaveRun("ThenNoEvents")

	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
	f.noneRaised()
}

// Record returns the record under test.
func (f *TestFixture) Record() *academic.StudentRecord {
	return f.record
}

func (f *TestFixture) mustHaveRun(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was executed", step)
	}
}

// A rejected command leaves no uncommitted events behind.
func (f *TestFixture) noneRaised() {
	f.t.Helper()
	if raised := f.raised(); len(raised) > 0 {
		f.t.Errorf("Expected no events, got %d: %+v", len(raised), raised)
	}
}

func (f *TestFixture) raised() []academic.Event {
	uncommitted := f.record.UncommittedEvents()
	out := make([]academic.Event, len(uncommitted))
	for i, e := range uncommitted {
		out[i] = e.Payload
	}
	return out
}

// CommandTestFixture provides BDD-style testing through a RecordService.
type CommandTestFixture struct {
	t        TB
	ctx      context.Context
	service  *academic.RecordService
	given    []academic.Command
	result   academic.CommandResult
	err      error
	executed bool
}

// GivenCommand creates a command fixture over service.
func GivenCommand(t TB, service *academic.RecordService) *CommandTestFixture {
	t.Helper()
	return &CommandTestFixture{
		t:       t,
		ctx:     context.Background(),
		service: service,
	}
}

// WithContext sets a custom context for the command execution.
func (f *CommandTestFixture) WithContext(ctx context.Context) *CommandTestFixture {
	f.ctx = ctx
	return f
}

// WithExistingCommands queues commands that must succeed before the one under test.
func (f *CommandTestFixture) WithExistingCommands(cmds ...academic.Command) *CommandTestFixture {
	f.given = append(f.given, cmds...)
	return f
}

// When dispatches the queued commands and then cmd.
func (f *CommandTestFixture) When(cmd academic.Command) *CommandTestFixture {
	f.t.Helper()

	for _, given := range f.given {
		if _, err := f.service.Dispatch(f.ctx, given); err != nil {
			f.t.Fatalf("bdd: given %s failed: %v", given.CommandType(), err)
		}
	}

	f.result, f.err = f.service.Dispatch(f.ctx, cmd)
	f.executed = true
	return f
}

// ThenSucceeds asserts the command succeeded.
func (f *CommandTestFixture) ThenSucceeds() *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenSucceeds")

	if f.err != nil {
		f.t.Fatalf("Expected success but got error: %v", f.err)
	}
	if !f.result.IsSuccess() {
		f.t.Fatalf("Expected success result but got error: %v", f.result.Error)
	}
	return f
}

// ThenFails asserts the command failed with an error matching target.
func (f *CommandTestFixture) ThenFails(target error) {
	f.t.Helper()
	f.mustHaveRun("ThenFails")

	if f.err == nil && f.result.IsSuccess() {
		f.t.Fatal("Expected failure but got success")
	}

	err := f.err
	if err == nil {
		err = f.result.Error
	}
	if !errors.Is(err, target) {
		f.t.Errorf("Expected error %v, got %v", target, err)
	}
}

// ThenReturnsStudentID asserts the result names the expected student.
func (f *CommandTestFixture) ThenReturnsStudentID(expected string) *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenReturnsStudentID")

	if f.result.StudentID != expected {
		f.t.Errorf("Expected student ID %q, got %q", expected, f.result.StudentID)
	}
	return f
}

// ThenReturnsVersion asserts the result contains the expected version.
func (f *CommandTestFixture) ThenReturnsVersion(expected int64) *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenReturnsVersion")

	if f.result.Version != expected {
		f.t.Errorf("Expected version %d, got %d", expected, f.result.Version)
	}
	return f
}

// ThenRecord loads the current record and runs check against it.
func (f *CommandTestFixture) ThenRecord(studentID string, check func(t TB, view *academic.RecordView)) *CommandTestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenRecord")

	view, err := f.service.GetStudentRecord(f.ctx, studentID)
	if err != nil {
		f.t.Fatalf("bdd: load record %s: %v", studentID, err)
	}
	check(f.t, view)
	return f
}

// Result returns the result of the command under test.
func (f *CommandTestFixture) Result() academic.CommandResult {
	return f.result
}

func (f *CommandTestFixture) mustHaveRun(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When() - no command was dispatched", step)
	}
}
