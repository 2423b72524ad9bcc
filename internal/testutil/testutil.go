// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/monitoring"
)

// Ptr returns a pointer to v, for filling optional config fields.
func Ptr[T any](v T) *T { return &v }

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertClose fails the test if got and want differ by more than tol.
func AssertClose(t testing.TB, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("got %v, want %v ± %v", got, want, tol)
	}
}

// SmallConfig returns a fixed-seed configuration that runs in well under a
// second: 80 agents, 8 members and one simulated day.
func SmallConfig(seed uint64) *config.AssimilationConfig {
	return &config.AssimilationConfig{
		Agents:             Ptr(80),
		Members:            Ptr(8),
		TicksPerHour:       Ptr(60),
		Windows:            Ptr(24),
		DailyReleases:      Ptr(800.0),
		ReleasePeakHour:    Ptr(12.0),
		ReleaseSpreadHours: Ptr(6.0),
		PriorRateMean:      Ptr(0.5),
		PriorRateStddev:    Ptr(0.1),
		TrueRate:           Ptr(0.4),
		Parallel:           Ptr(false),
		Seed:               Ptr(seed),
	}
}

// MuteLogs silences the monitoring logger for the duration of the test.
func MuteLogs(t testing.TB) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })
}
