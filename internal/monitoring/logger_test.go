package monitoring

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/footfall/internal/timeutil"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	// Test setting a custom logger
	called := false
	customLogger := func(format string, v ...interface{}) {
		called = true
	}

	SetLogger(customLogger)
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// Test setting nil logger (should create no-op)
	SetLogger(nil)
	// This should not panic
	Logf("test message")

	// Verify the logger is a no-op by checking it doesn't panic
	// and doesn't call anything
	noOpCalled := false
	testLogger := func(format string, v ...interface{}) {
		noOpCalled = true
	}
	SetLogger(testLogger)
	// First verify our test logger works
	Logf("test")
	if !noOpCalled {
		t.Error("Test logger should have been called")
	}

	// Now set to nil and verify it doesn't call our logger
	noOpCalled = false
	SetLogger(nil)
	Logf("test")
	if noOpCalled {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	// Test that Logf is not nil by default
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	// Test that we can call it without panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestWarnf(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Warnf("window %d fell back", 4)
	if got != "WARN: window 4 fell back" {
		t.Errorf("Warnf logged %q", got)
	}
}

func TestTimed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Timed(nil, "forecast")()
	if !strings.HasPrefix(got, "forecast took ") {
		t.Errorf("Timed logged %q", got)
	}
}

func TestTimedUsesClock(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	done := Timed(clock, "run r1")
	clock.Advance(90 * time.Second)
	done()
	if got != "run r1 took 1m30s" {
		t.Errorf("Timed logged %q", got)
	}
}

func TestWindow(t *testing.T) {
	if got := Window("", 3); got != "[window 3]" {
		t.Errorf("Window() = %q", got)
	}
	if got := Window("abc", 12); got != "[run abc window 12]" {
		t.Errorf("Window() = %q", got)
	}
}
