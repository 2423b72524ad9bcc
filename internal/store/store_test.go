package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall/internal/pipeline"
	"github.com/banshee-data/footfall/internal/testutil"
	"github.com/banshee-data/footfall/internal/world"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	testutil.MuteLogs(t)

	s, err := Open(filepath.Join(t.TempDir(), "footfall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func sampleRecord(w int) pipeline.WindowRecord {
	return pipeline.WindowRecord{
		Window:             w,
		StartTick:          (w-1)*60 + 1,
		EndTick:            w*60 + 1,
		ForecastMean:       40.5,
		ForecastVariance:   12.25,
		AnalysisMean:       42,
		AnalysisVariance:   3.5,
		VirtualObservation: 43.1,
		TrueObservation:    43,
		Observations:       []float64{51, 43},
		Parameter:          0.47,
		ParameterVariance:  0.004,
		TrueParameter:      0.45,
		Fallback:           w%2 == 0,
		Elapsed:            1500 * time.Millisecond,
	}
}

func TestMigrations(t *testing.T) {
	s := setupTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Idempotent.
	require.NoError(t, s.MigrateUp())

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	err = s.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='truth_counts'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrateVersionFreshDatabase(t *testing.T) {
	testutil.MuteLogs(t)

	s, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestRunLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cfg := testutil.SmallConfig(1<<63 + 5)
	run, err := NewRun(cfg, 1<<63+5, 0.4)
	require.NoError(t, err)
	require.NoError(t, s.CreateRun(ctx, run))
	require.NotEmpty(t, run.RunID)

	got, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63+5), got.Seed, "seeds above MaxInt64 survive")
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 80, got.Agents)
	assert.Equal(t, 8, got.Members)
	assert.JSONEq(t, string(run.ConfigJSON), string(got.ConfigJSON))

	sum := pipeline.Summary{Windows: 24, Fallbacks: 1, ForecastRMSE: 4, AnalysisRMSE: 2, ObservationRMSE: 3, ParameterRMSE: 0.05}
	require.NoError(t, s.FinishRun(ctx, run.RunID, sum, nil))

	got, err = s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 24, got.CompletedWindows)
	assert.Equal(t, 0.05, got.ParameterRMSE)
	assert.NotZero(t, got.FinishedAt)

	failed := &Run{Seed: 2}
	require.NoError(t, s.CreateRun(ctx, failed))
	require.NoError(t, s.FinishRun(ctx, failed.RunID, pipeline.Summary{}, errors.New("window 3: boom")))
	got, err = s.GetRun(ctx, failed.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "window 3: boom", got.Error)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestUnknownRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.FinishRun(ctx, "nope", pipeline.Summary{}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWindowRecorderRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := &Run{Seed: 7}
	require.NoError(t, s.CreateRun(ctx, run))

	var rec pipeline.Recorder = s.Recorder(run.RunID)
	want := []pipeline.WindowRecord{sampleRecord(1), sampleRecord(2), sampleRecord(3)}
	// Insert out of order; reads come back by window.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, rec.RecordWindow(ctx, want[i]))
	}

	got, err := s.Windows(ctx, run.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("windows mismatch (-want +got):\n%s", diff)
	}

	err = rec.RecordWindow(ctx, want[0])
	assert.Error(t, err, "a window is recorded once per run")
}

func TestTruthCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := &Run{Seed: 3, Status: StatusTruth}
	require.NoError(t, s.CreateRun(ctx, run))

	series := pipeline.TruthSeries{
		Cameras: []string{"camera_a", "camera_b"},
		Counts:  [][]int{{0, 4, 9}, {0, 3, 7}},
	}
	require.NoError(t, s.RecordTruth(ctx, run.RunID, series))

	got, err := s.TruthCounts(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"camera_a": {0, 4, 9}, "camera_b": {0, 3, 7}}, got)

	empty, err := s.TruthCounts(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPipelineWritesThroughStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cfg := testutil.SmallConfig(17)
	cfg.Windows = testutil.Ptr(3)
	runner, err := pipeline.NewRunner(cfg, world.DefaultStreet())
	require.NoError(t, err)

	run, err := NewRun(cfg, runner.Seed, runner.Truth.Rate())
	require.NoError(t, err)
	require.NoError(t, s.CreateRun(ctx, run))
	runner.RunID = run.RunID
	runner.Recorder = s.Recorder(run.RunID)

	sum, err := runner.Run(ctx)
	require.NoError(t, s.FinishRun(ctx, run.RunID, sum, err))
	require.NoError(t, err)

	got, err := s.Windows(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, sum.Records[2].Parameter, got[2].Parameter)
}
