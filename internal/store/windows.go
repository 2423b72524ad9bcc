package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/footfall/internal/pipeline"
)

// WindowRecorder writes pipeline window records for one run.
type WindowRecorder struct {
	store *Store
	runID string
}

// Recorder returns a pipeline.Recorder bound to runID.
func (s *Store) Recorder(runID string) *WindowRecorder {
	return &WindowRecorder{store: s, runID: runID}
}

// RecordWindow implements pipeline.Recorder.
func (w *WindowRecorder) RecordWindow(ctx context.Context, rec pipeline.WindowRecord) error {
	return w.store.InsertWindow(ctx, w.runID, rec)
}

// InsertWindow persists one window record.
func (s *Store) InsertWindow(ctx context.Context, runID string, rec pipeline.WindowRecord) error {
	obs, err := json.Marshal(rec.Observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	_, err = s.ExecContext(ctx, `
		INSERT INTO assimilation_windows (
			run_id, window_index, start_tick, end_tick,
			forecast_mean, forecast_variance, analysis_mean, analysis_variance,
			virtual_observation, true_observation, observations_json,
			parameter, parameter_variance, true_parameter, fallback, elapsed_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Window, rec.StartTick, rec.EndTick,
		rec.ForecastMean, rec.ForecastVariance, rec.AnalysisMean, rec.AnalysisVariance,
		rec.VirtualObservation, rec.TrueObservation, string(obs),
		rec.Parameter, rec.ParameterVariance, rec.TrueParameter, rec.Fallback, int64(rec.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("insert window %d: %w", rec.Window, err)
	}
	return nil
}

// Windows returns a run's window records in window order.
func (s *Store) Windows(ctx context.Context, runID string) ([]pipeline.WindowRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT window_index, start_tick, end_tick,
		       forecast_mean, forecast_variance, analysis_mean, analysis_variance,
		       virtual_observation, true_observation, observations_json,
		       parameter, parameter_variance, true_parameter, fallback, elapsed_ns
		FROM assimilation_windows
		WHERE run_id = ?
		ORDER BY window_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	var out []pipeline.WindowRecord
	for rows.Next() {
		var rec pipeline.WindowRecord
		var obs string
		var elapsed int64
		if err := rows.Scan(
			&rec.Window, &rec.StartTick, &rec.EndTick,
			&rec.ForecastMean, &rec.ForecastVariance, &rec.AnalysisMean, &rec.AnalysisVariance,
			&rec.VirtualObservation, &rec.TrueObservation, &obs,
			&rec.Parameter, &rec.ParameterVariance, &rec.TrueParameter, &rec.Fallback, &elapsed,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(obs), &rec.Observations); err != nil {
			return nil, fmt.Errorf("window %d observations: %w", rec.Window, err)
		}
		rec.Elapsed = time.Duration(elapsed)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordTruth stores the hourly camera counts of a truth-only run in a single
// transaction.
func (s *Store) RecordTruth(ctx context.Context, runID string, series pipeline.TruthSeries) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO truth_counts (run_id, camera, hour, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, camera := range series.Cameras {
		for hour, n := range series.Counts[i] {
			if _, err := stmt.ExecContext(ctx, runID, camera, hour, n); err != nil {
				return fmt.Errorf("insert %s hour %d: %w", camera, hour, err)
			}
		}
	}
	return tx.Commit()
}

// TruthCounts returns a run's hourly counts keyed by camera name.
func (s *Store) TruthCounts(ctx context.Context, runID string) (map[string][]int, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT camera, count FROM truth_counts
		WHERE run_id = ?
		ORDER BY camera, hour`, runID)
	if err != nil {
		return nil, fmt.Errorf("query truth counts: %w", err)
	}
	defer rows.Close()

	out := map[string][]int{}
	for rows.Next() {
		var camera string
		var n int
		if err := rows.Scan(&camera, &n); err != nil {
			return nil, err
		}
		out[camera] = append(out[camera], n)
	}
	return out, rows.Err()
}
