// Package monitoring holds the process-wide diagnostic logger used by the
// simulation, filter and pipeline packages.
package monitoring

import (
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/footfall/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem, such as a window that fell back to its
// forecast.
func Warnf(format string, v ...interface{}) {
	Logf("WARN: "+format, v...)
}

// Timed logs the duration of a named step, measured on clock, when the
// returned func is called. A nil clock means the real clock.
//
//	defer monitoring.Timed(clock, "window 3 forecast")()
func Timed(clock timeutil.Clock, name string) func() {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()
	return func() {
		Logf("%s took %s", name, clock.Since(start).Round(time.Millisecond))
	}
}

// Window formats the standard prefix for per-window log lines.
func Window(run string, w int) string {
	if run == "" {
		return fmt.Sprintf("[window %d]", w)
	}
	return fmt.Sprintf("[run %s window %d]", run, w)
}
