package testutil

import (
	"fmt"
	"runtime"
	"testing"
)

// MockT is a testing.TB that records failures instead of reporting them,
// so fixtures and assertions can be tested for the failures they raise.
type MockT struct {
	testing.TB

	failed   bool
	fatal    bool
	messages []string
}

// NewMockT creates a new MockT instance.
func NewMockT() *MockT {
	return &MockT{}
}

// Helper implements testing.TB.
func (m *MockT) Helper() {}

// Error implements testing.TB.
func (m *MockT) Error(args ...any) {
	m.failed = true
	m.messages = append(m.messages, fmt.Sprint(args...))
}

// Errorf implements testing.TB.
func (m *MockT) Errorf(format string, args ...any) {
	m.failed = true
	m.messages = append(m.messages, fmt.Sprintf(format, args...))
}

// Fail implements testing.TB.
func (m *MockT) Fail() { m.failed = true }

// FailNow implements testing.TB.
func (m *MockT) FailNow() {
	m.failed = true
	m.fatal = true
	runtime.Goexit()
}

// Fatal implements testing.TB.
func (m *MockT) Fatal(args ...any) {
	m.Error(args...)
	m.FailNow()
}

// Fatalf implements testing.TB.
func (m *MockT) Fatalf(format string, args ...any) {
	m.Errorf(format, args...)
	m.FailNow()
}

// Failed implements testing.TB.
func (m *MockT) Failed() bool { return m.failed }

// Stopped reports whether the test was stopped by Fatal or FailNow.
func (m *MockT) Stopped() bool { return m.fatal }

// Messages returns the recorded failure messages.
func (m *MockT) Messages() []string { return m.messages }

// LastMessage returns the most recent failure message, or "".
func (m *MockT) LastMessage() string {
	if len(m.messages) == 0 {
		return ""
	}
	return m.messages[len(m.messages)-1]
}

// RunWithMockT runs fn on its own goroutine so that Fatal and FailNow can
// stop it, and returns the MockT once fn has finished.
func RunWithMockT(fn func(m *MockT)) *MockT {
	mt := NewMockT()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(mt)
	}()
	<-done
	return mt
}
