// Package pipeline drives the assimilation loop: forecast every member
// through a window, observe the truth, correct the ensemble and record the
// window diagnostics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/enkf"
	"github.com/banshee-data/footfall/internal/ensemble"
	"github.com/banshee-data/footfall/internal/monitoring"
	"github.com/banshee-data/footfall/internal/sim"
	"github.com/banshee-data/footfall/internal/timeutil"
	"github.com/banshee-data/footfall/internal/world"
)

// Stream indices reserved next to the member indices of ensemble.Seed.
const (
	truthStream       = 1 << 30
	observationStream = truthStream + 1
	priorStream       = truthStream + 2
	memberRateStream  = truthStream + 3
)

// Runner owns one assimilation run.
type Runner struct {
	World    *world.World
	Params   sim.Params
	Manager  *ensemble.Manager
	Filter   *enkf.Filter
	Truth    TruthSource
	Recorder Recorder
	Clock    timeutil.Clock

	RunID    string
	Seed     uint64
	Members  int
	Windows  int
	Observed []sim.Quantity
	Policy   string
	Prior    [2]float64 // mean, stddev of the bleed-out rate prior
}

// NewRunner wires a run from configuration. A config without a seed gets a
// random one, reported through Runner.Seed.
func NewRunner(cfg *config.AssimilationConfig, w *world.World) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	observed, err := sim.ParseQuantities(cfg.GetObserved())
	if err != nil {
		return nil, err
	}

	seed, ok := cfg.GetSeed()
	if !ok {
		seed = rand.Uint64()
	}

	params := sim.ParamsFromConfig(cfg, cfg.GetPriorRateMean())
	if err := params.Validate(); err != nil {
		return nil, err
	}

	indices := make([]int, len(observed))
	for i, q := range observed {
		indices[i] = q.Index(params.Agents)
	}
	h, err := enkf.NewOperator(sim.StateLen(params.Agents), indices...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	trueRate, ok := cfg.GetTrueRate()
	if !ok {
		src := ensemble.NewRand(ensemble.Seed(seed, 0, priorStream))
		trueRate = ensemble.DrawRates(1, cfg.GetPriorRateMean(), cfg.GetPriorRateStddev(), src)[0]
	}
	truth, err := NewSimTruth(w, params, trueRate, ensemble.Seed(seed, 0, truthStream))
	if err != nil {
		return nil, err
	}

	return &Runner{
		World:  w,
		Params: params,
		Manager: &ensemble.Manager{
			World:  w,
			Params: params,
			Mapper: ensemble.NewMapper(cfg.GetParallel(), cfg.GetWorkers()),
			Budget: cfg.GetWindowBudget(),
		},
		Filter: &enkf.Filter{
			H:             h,
			NoiseVariance: cfg.GetObservationNoiseVariance(),
			RankTolerance: cfg.GetRankTolerance(),
			Src:           ensemble.NewRand(ensemble.Seed(seed, 0, observationStream)),
		},
		Truth:    truth,
		Seed:     seed,
		Members:  cfg.GetMembers(),
		Windows:  cfg.GetWindows(),
		Observed: observed,
		Policy:   cfg.GetFailurePolicy(),
		Prior:    [2]float64{cfg.GetPriorRateMean(), cfg.GetPriorRateStddev()},
	}, nil
}

// Run spins up the ensemble and assimilates every window. On error the
// summary covers the windows completed so far.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r.Manager.Clock = clock
	defer monitoring.Timed(clock, fmt.Sprintf("run %s", r.RunID))()

	rates := ensemble.DrawRates(r.Members, r.Prior[0], r.Prior[1], ensemble.NewRand(ensemble.Seed(r.Seed, 0, memberRateStream)))
	members, err := ensemble.Spinup(r.World, r.Params, rates, r.Seed)
	if err != nil {
		return Summary{RunID: r.RunID}, fmt.Errorf("spin-up: %w", err)
	}
	monitoring.Logf("%s spun up %d members, seed %d, true rate %.4f",
		monitoring.Window(r.RunID, 0), len(members), r.Seed, r.Truth.Rate())

	var records []WindowRecord
	summarize := func() Summary {
		s := Summarize(records)
		s.RunID = r.RunID
		return s
	}

	for w := 1; w <= r.Windows; w++ {
		rec, next, err := r.window(ctx, clock, w, members)
		if err != nil {
			return summarize(), fmt.Errorf("window %d: %w", w, err)
		}
		if r.Recorder != nil {
			if err := r.Recorder.RecordWindow(ctx, rec); err != nil {
				return summarize(), fmt.Errorf("window %d: record: %w", w, err)
			}
		}
		records = append(records, rec)
		members = next
	}
	return summarize(), nil
}

// window runs one forecast/correct cycle and returns its record together with
// the members for the following window.
func (r *Runner) window(ctx context.Context, clock timeutil.Clock, w int, members []ensemble.Member) (WindowRecord, []ensemble.Member, error) {
	start := clock.Now()
	tph := r.Params.TicksPerHour
	tag := monitoring.Window(r.RunID, w)

	forecasts, err := r.Manager.Forecast(ctx, members, tph)
	if err != nil {
		return WindowRecord{}, nil, fmt.Errorf("forecast: %w", err)
	}
	if err := r.Truth.Advance(ctx, tph); err != nil {
		return WindowRecord{}, nil, fmt.Errorf("truth: %w", err)
	}
	obs := r.Truth.Observe(r.Observed)

	ens := ensemble.Matrix(forecasts)
	res, err := r.Filter.Assimilate(ens, obs)
	fallback := false
	next := mat.Matrix(ens)
	switch {
	case err == nil:
		next = ensemble.KeepAgents(ens, res.Analysis, r.Params.Agents)
	case errors.Is(err, enkf.ErrDegenerateCovariance) && r.Policy == config.PolicyContinue:
		monitoring.Warnf("%s correction skipped, keeping forecast: %v", tag, err)
		fallback = true
	default:
		return WindowRecord{}, nil, fmt.Errorf("correct: %w", err)
	}

	rec := r.record(w, members[0].StartTick, forecasts[0].EndTick, obs, res, next, fallback)
	rec.Elapsed = clock.Since(start)
	monitoring.Logf("%s truth %v, forecast %.2f, analysis %.2f, rate %.4f (true %.4f)",
		tag, obs, rec.ForecastMean, rec.AnalysisMean, rec.Parameter, rec.TrueParameter)

	seed := func(i int) uint64 { return ensemble.Seed(r.Seed, w+1, i) }
	return rec, ensemble.Reseed(next, forecasts[0].EndTick, seed), nil
}

// record summarises a window. The parameter estimate is the mean rate the
// members carry into the next window, after clamping.
func (r *Runner) record(w, startTick, endTick int, obs []float64, res *enkf.Result, next mat.Matrix, fallback bool) WindowRecord {
	last := len(r.Observed) - 1
	tracked := r.Observed[last].Index(r.Params.Agents)
	rate := sim.RateIndex(r.Params.Agents)

	mean, cov := res.AnalysisMean, res.AnalysisCovariance
	if fallback {
		mean, cov = res.ForecastMean, res.ForecastCovariance
	}
	return WindowRecord{
		Window:             w,
		StartTick:          startTick,
		EndTick:            endTick,
		ForecastMean:       res.ForecastMean[tracked],
		ForecastVariance:   res.ForecastCovariance.At(tracked, tracked),
		AnalysisMean:       mean[tracked],
		AnalysisVariance:   cov.At(tracked, tracked),
		VirtualObservation: stat.Mean(mat.Col(nil, last, res.Virtual), nil),
		TrueObservation:    obs[last],
		Observations:       obs,
		Parameter:          stat.Mean(mat.Col(nil, rate, next), nil),
		ParameterVariance:  cov.At(rate, rate),
		TrueParameter:      r.Truth.Rate(),
		Fallback:           fallback,
	}
}
