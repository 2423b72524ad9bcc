// Package ensemble advances independent simulation replicas through a
// forecast window. A member is a plain value (state vector, clock and seed),
// so replicas share nothing but the read-only World.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/footfall/internal/sim"
	"github.com/banshee-data/footfall/internal/timeutil"
	"github.com/banshee-data/footfall/internal/world"
)

// Member is one ensemble replica between windows.
type Member struct {
	Vector    []float64
	StartTick int    // tick the next forecast begins with
	Seed      uint64 // seeds the replica's random stream for the next forecast
}

// Forecast is a member advanced through a window.
type Forecast struct {
	Vector       []float64
	CameraCounts [2]int // hourly counts closed at the end of the window
	BledOut      int
	EndTick      int // tick the following window begins with
}

// ForecastMember rebuilds a replica from m and runs it for horizon ticks. It
// depends only on its arguments. The member vector is first projected onto a
// consistent state and must survive a decode/encode round trip unchanged.
func ForecastMember(ctx context.Context, w *world.World, p sim.Params, m Member, horizon int) (Forecast, error) {
	v, err := sim.ProjectState(w, m.Vector)
	if err != nil {
		return Forecast{}, err
	}
	agents, err := sim.AgentsFor(len(v))
	if err != nil {
		return Forecast{}, err
	}
	p.Agents = agents
	p.BleedoutRate = v[sim.RateIndex(agents)]

	s, err := sim.New(w, p, NewRand(m.Seed))
	if err != nil {
		return Forecast{}, err
	}
	if err := s.DecodeState(v); err != nil {
		return Forecast{}, err
	}
	if !slices.Equal(s.EncodeState(), v) {
		return Forecast{}, fmt.Errorf("%w: re-encoded state differs from decoded input", sim.ErrEncoding)
	}
	s.SetNextTick(m.StartTick)

	for i := 0; i < horizon; i++ {
		if i%p.TicksPerHour == 0 {
			if err := context.Cause(ctx); err != nil {
				return Forecast{}, err
			}
		}
		if err := s.Tick(); err != nil {
			return Forecast{}, err
		}
	}
	return Forecast{
		Vector:       s.EncodeState(),
		CameraCounts: s.CameraCounts(),
		BledOut:      s.BledOut(),
		EndTick:      s.NextTick(),
	}, nil
}

// Manager forecasts a whole ensemble.
type Manager struct {
	World  *world.World
	Params sim.Params
	Mapper Mapper
	Clock  timeutil.Clock
	Budget time.Duration // wall-clock limit per Forecast call; 0 means none
}

// Forecast advances every member by horizon ticks. The result is all or
// nothing: on any failure, cancellation or budget overrun every partial
// result is discarded.
func (m *Manager) Forecast(ctx context.Context, members []Member, horizon int) ([]Forecast, error) {
	clock := m.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	mapper := m.Mapper
	if mapper == nil {
		mapper = SequentialMapper{}
	}

	ctx, cancel := timeutil.WithBudget(ctx, clock, m.Budget)
	defer cancel()

	out := make([]Forecast, len(members))
	err := mapper.Map(ctx, len(members), func(ctx context.Context, i int) error {
		f, err := ForecastMember(ctx, m.World, m.Params, members[i], horizon)
		if err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = f
		return nil
	})
	if err != nil {
		if errors.Is(context.Cause(ctx), timeutil.ErrBudgetExceeded) && !errors.Is(err, timeutil.ErrBudgetExceeded) {
			err = fmt.Errorf("%w: %w", timeutil.ErrBudgetExceeded, err)
		}
		return nil, err
	}
	return out, nil
}

// Matrix stacks forecast vectors into an N×D ensemble matrix.
func Matrix(forecasts []Forecast) *mat.Dense {
	d := len(forecasts[0].Vector)
	ens := mat.NewDense(len(forecasts), d, nil)
	for i, f := range forecasts {
		ens.SetRow(i, f.Vector)
	}
	return ens
}

// KeepAgents builds the next window's ensemble from a forecast and its
// analysis. Every member keeps its own forecast agents, so the analysis never
// moves, releases or retires an agent; the bleed-out rate and the camera
// counts come from the analysis, with the rate clamped to [0,1].
func KeepAgents(forecast, analysis mat.Matrix, agents int) *mat.Dense {
	n, d := forecast.Dims()
	out := mat.DenseCopyOf(forecast)
	rate := sim.RateIndex(agents)
	for i := 0; i < n; i++ {
		for j := rate; j < d; j++ {
			out.Set(i, j, analysis.At(i, j))
		}
		out.Set(i, rate, min(1, max(0, out.At(i, rate))))
	}
	return out
}

// Reseed turns an N×D analysis (or a fallback forecast) into the members of
// the next window.
func Reseed(ens mat.Matrix, startTick int, seed func(member int) uint64) []Member {
	n, d := ens.Dims()
	out := make([]Member, n)
	for i := range out {
		v := make([]float64, d)
		mat.Row(v, i, ens)
		out[i] = Member{Vector: v, StartTick: startTick, Seed: seed(i)}
	}
	return out
}
