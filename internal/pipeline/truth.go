package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/footfall/internal/ensemble"
	"github.com/banshee-data/footfall/internal/sim"
	"github.com/banshee-data/footfall/internal/world"
)

// TruthSource is the ground-truth process observed by the loop. Observe is
// only called after Advance has returned for the window.
type TruthSource interface {
	Advance(ctx context.Context, ticks int) error
	Observe(qs []sim.Quantity) []float64
	Rate() float64
}

// SimTruth is a ground truth driven by its own, never assimilated,
// simulation.
type SimTruth struct {
	sim *sim.Simulation
}

// NewSimTruth builds the truth replica with the hidden rate and executes tick
// 0, matching the ensemble spin-up.
func NewSimTruth(w *world.World, p sim.Params, rate float64, seed uint64) (*SimTruth, error) {
	p.BleedoutRate = rate
	s, err := sim.New(w, p, ensemble.NewRand(seed))
	if err != nil {
		return nil, err
	}
	if err := s.Tick(); err != nil {
		return nil, err
	}
	return &SimTruth{sim: s}, nil
}

// Advance runs the truth for the given number of ticks, checking ctx once
// per simulated hour.
func (t *SimTruth) Advance(ctx context.Context, ticks int) error {
	tph := ticksPerHour(t.sim)
	for i := 0; i < ticks; i++ {
		if i%tph == 0 {
			if err := context.Cause(ctx); err != nil {
				return err
			}
		}
		if err := t.sim.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// Observe returns the current value of each quantity.
func (t *SimTruth) Observe(qs []sim.Quantity) []float64 {
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = t.sim.Read(q)
	}
	return out
}

// Rate returns the hidden bleed-out rate.
func (t *SimTruth) Rate() float64 { return t.sim.BleedoutRate() }

// Simulation exposes the underlying replica.
func (t *SimTruth) Simulation() *sim.Simulation { return t.sim }

// HourlyCounts returns the closed hourly counts of each camera, hour 0 first.
func (t *SimTruth) HourlyCounts() [][]int {
	var out [][]int
	for _, c := range t.sim.Cameras() {
		out = append(out, c.History())
	}
	return out
}

func ticksPerHour(s *sim.Simulation) int {
	return s.Params().TicksPerHour
}

// TruthSeries is the hourly output of a truth-only run.
type TruthSeries struct {
	Seed    uint64
	Rate    float64
	Cameras []string
	Counts  [][]int // per camera, hour 0 first
	BledOut int
}

// RunTruth advances only the ground truth through every window, without an
// ensemble, and returns its hourly camera counts.
func (r *Runner) RunTruth(ctx context.Context) (TruthSeries, error) {
	st, ok := r.Truth.(*SimTruth)
	if !ok {
		return TruthSeries{}, fmt.Errorf("truth source %T has no hourly series", r.Truth)
	}
	tph := r.Params.TicksPerHour
	for w := 1; w <= r.Windows; w++ {
		if err := st.Advance(ctx, tph); err != nil {
			return TruthSeries{}, fmt.Errorf("window %d: %w", w, err)
		}
	}
	out := TruthSeries{
		Seed:    r.Seed,
		Rate:    st.Rate(),
		Counts:  st.HourlyCounts(),
		BledOut: st.sim.BledOut(),
	}
	for _, c := range st.sim.Cameras() {
		out.Cameras = append(out.Cameras, c.Name)
	}
	return out, nil
}
