package pipeline

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// WindowRecord is the per-window diagnostic emitted by the loop. Means and
// variances refer to the tracked quantity (the last observed one).
type WindowRecord struct {
	Window             int           `json:"window"`
	StartTick          int           `json:"start_tick"`
	EndTick            int           `json:"end_tick"`
	ForecastMean       float64       `json:"forecast_mean"`
	ForecastVariance   float64       `json:"forecast_variance"`
	AnalysisMean       float64       `json:"analysis_mean"`
	AnalysisVariance   float64       `json:"analysis_variance"`
	VirtualObservation float64       `json:"virtual_observation"` // ensemble mean of the perturbed observations
	TrueObservation    float64       `json:"true_observation"`
	Observations       []float64     `json:"observations"` // true values of every observed quantity
	Parameter          float64       `json:"parameter"`    // analysis-mean bleed-out rate
	ParameterVariance  float64       `json:"parameter_variance"`
	TrueParameter      float64       `json:"true_parameter"`
	Fallback           bool          `json:"fallback"` // correction failed, forecast kept
	Elapsed            time.Duration `json:"elapsed"`
}

// Recorder receives every completed window in order.
type Recorder interface {
	RecordWindow(ctx context.Context, rec WindowRecord) error
}

// MemoryRecorder keeps records in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []WindowRecord
}

// RecordWindow implements Recorder.
func (m *MemoryRecorder) RecordWindow(_ context.Context, rec WindowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *MemoryRecorder) Records() []WindowRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WindowRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Summary aggregates a run.
type Summary struct {
	RunID           string
	Windows         int
	Fallbacks       int
	TrueRate        float64
	FinalRate       float64
	ForecastRMSE    float64 // forecast mean of the tracked quantity vs truth
	AnalysisRMSE    float64 // analysis mean of the tracked quantity vs truth
	ObservationRMSE float64 // mean virtual observation vs truth
	ParameterRMSE   float64 // analysis-mean rate vs the hidden true rate
	Records         []WindowRecord
}

// Summarize computes the error statistics over a run's records.
func Summarize(records []WindowRecord) Summary {
	s := Summary{Windows: len(records), Records: records}
	if len(records) == 0 {
		return s
	}
	n := len(records)
	truth := make([]float64, n)
	forecast := make([]float64, n)
	analysis := make([]float64, n)
	virtual := make([]float64, n)
	param := make([]float64, n)
	trueParam := make([]float64, n)
	for i, r := range records {
		truth[i] = r.TrueObservation
		forecast[i] = r.ForecastMean
		analysis[i] = r.AnalysisMean
		virtual[i] = r.VirtualObservation
		param[i] = r.Parameter
		trueParam[i] = r.TrueParameter
		if r.Fallback {
			s.Fallbacks++
		}
	}
	s.ForecastRMSE = rmse(forecast, truth)
	s.AnalysisRMSE = rmse(analysis, truth)
	s.ObservationRMSE = rmse(virtual, truth)
	s.ParameterRMSE = rmse(param, trueParam)
	s.TrueRate = trueParam[n-1]
	s.FinalRate = param[n-1]
	return s
}

func rmse(a, b []float64) float64 {
	return floats.Distance(a, b, 2) / math.Sqrt(float64(len(a)))
}
