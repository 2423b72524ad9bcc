package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/world"
)

// ErrEncoding is returned when a state vector does not describe a consistent
// population. It indicates a codec bug and is never recovered from.
var ErrEncoding = errors.New("state vector encoding")

// State vector layout for M agents:
//
//	[2i]   linear cell index of agent i
//	[2i+1] journey counter of agent i
//	[2M]   bleed-out rate
//	[2M+1] last closed hourly count of camera_a
//	[2M+2] last closed hourly count of camera_b

// StateLen returns the state vector length for a population of agents.
func StateLen(agents int) int { return 2*agents + 3 }

// RateIndex returns the index of the bleed-out rate.
func RateIndex(agents int) int { return 2 * agents }

// CameraIndex returns the index of the count of camera cam (0 or 1).
func CameraIndex(agents, cam int) int { return 2*agents + 1 + cam }

// AgentsFor returns the population size encoded by a vector of length n.
func AgentsFor(n int) (int, error) {
	if n < 3 || (n-3)%2 != 0 {
		return 0, fmt.Errorf("%w: length %d is not 2M+3", ErrEncoding, n)
	}
	return (n - 3) / 2, nil
}

// EncodeState flattens the replica into a new state vector.
func (s *Simulation) EncodeState() []float64 {
	g := s.world.Grid()
	m := len(s.agents)
	v := make([]float64, StateLen(m))
	for i := range s.agents {
		v[2*i] = float64(g.Index(s.agents[i].Position))
		v[2*i+1] = float64(s.agents[i].Counter)
	}
	v[RateIndex(m)] = s.rate
	for i, c := range s.cameras {
		v[CameraIndex(m, i)] = float64(c.Last())
	}
	return v
}

// DecodeState replaces the replica's agents, rate and camera counts with the
// contents of v. Decoding is strict: every entry must be finite, positions and
// counters must be integers that place each agent on its route or on the
// graveyard, and counts must be non-negative integers. On error the replica
// is left unchanged.
func (s *Simulation) DecodeState(v []float64) error {
	m := len(s.agents)
	if len(v) != StateLen(m) {
		return fmt.Errorf("%w: length %d, want %d", ErrEncoding, len(v), StateLen(m))
	}

	agents := make([]Agent, m)
	for i := range agents {
		a, err := decodeAgent(s.world, i, v[2*i], v[2*i+1])
		if err != nil {
			return err
		}
		agents[i] = a
	}

	rate := v[RateIndex(m)]
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: rate is %v", ErrEncoding, rate)
	}
	if err := config.ValidateRate("bleedout_rate", &rate); err != nil {
		return err
	}

	var counts [2]int
	for i := range s.cameras {
		c, err := integral(v[CameraIndex(m, i)])
		if err != nil || c < 0 {
			return fmt.Errorf("%w: camera %d count %v", ErrEncoding, i, v[CameraIndex(m, i)])
		}
		counts[i] = c
	}

	s.agents = agents
	s.rate = rate
	for i, c := range s.cameras {
		c.reset(counts[i], s.agents)
	}
	return nil
}

func integral(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int(f), nil
}

func decodeAgent(w *world.World, id int, pos, counter float64) (Agent, error) {
	g := w.Grid()
	p, err := integral(pos)
	if err != nil || p < 0 || p >= g.Size() {
		return Agent{}, fmt.Errorf("%w: agent %d position %v", ErrEncoding, id, pos)
	}
	c, err := integral(counter)
	if err != nil {
		return Agent{}, fmt.Errorf("%w: agent %d counter %v", ErrEncoding, id, counter)
	}
	cell := g.CellAt(p)

	if c == RetiredCounter {
		if cell != w.Graveyard() {
			return Agent{}, fmt.Errorf("%w: retired agent %d at %v, not on the graveyard", ErrEncoding, id, cell)
		}
		return Agent{ID: id, Position: cell, State: AgentRetired, Counter: c}, nil
	}

	// Outbound wins when both routes pass the same cell at the same counter.
	for _, st := range []AgentState{AgentActiveOutbound, AgentActiveReturning} {
		route := routeFor(w, st)
		if c >= 0 && c < len(route) && route[c] == cell {
			return Agent{ID: id, Position: cell, State: st, Counter: c}, nil
		}
	}
	return Agent{}, fmt.Errorf("%w: agent %d at %v is not on a route at counter %d", ErrEncoding, id, cell, c)
}

// ProjectState maps an arbitrary real vector (typically an analysis member)
// onto the nearest vector DecodeState accepts:
//   - counters are rounded; an agent whose counter is nearer RetiredCounter
//     than the route is retired, otherwise the counter is clamped onto the
//     route and the agent is placed on whichever direction's cell is closer
//     to its encoded position (outbound on ties);
//   - the rate is clamped to [0,1];
//   - camera counts are rounded and floored at zero.
//
// The input is not modified.
func ProjectState(w *world.World, v []float64) ([]float64, error) {
	m, err := AgentsFor(len(v))
	if err != nil {
		return nil, err
	}
	g := w.Grid()
	out := make([]float64, len(v))
	grave := float64(g.Index(w.Graveyard()))

	for i := 0; i < m; i++ {
		pos, counter := v[2*i], math.Round(v[2*i+1])
		last := len(w.Outbound()) - 1
		clamped := math.Max(0, math.Min(float64(last), counter))
		if math.IsNaN(counter) || math.Abs(counter-RetiredCounter) < math.Abs(counter-clamped) {
			out[2*i], out[2*i+1] = grave, RetiredCounter
			continue
		}
		c := int(clamped)
		ob := float64(g.Index(w.Outbound()[c]))
		rt := float64(g.Index(w.Returning()[c]))
		out[2*i], out[2*i+1] = ob, float64(c)
		if math.Abs(pos-rt) < math.Abs(pos-ob) {
			out[2*i] = rt
		}
	}

	rate := v[RateIndex(m)]
	if math.IsNaN(rate) {
		return nil, fmt.Errorf("%w: rate is NaN", ErrEncoding)
	}
	out[RateIndex(m)] = math.Max(0, math.Min(1, rate))

	for cam := 0; cam < 2; cam++ {
		n := math.Round(v[CameraIndex(m, cam)])
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			n = 0
		}
		out[CameraIndex(m, cam)] = n
	}
	return out, nil
}
