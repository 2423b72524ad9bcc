package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/world"
)

// ErrUnderPopulation is returned when an hour asks for more releases than
// there are retired agents.
var ErrUnderPopulation = errors.New("not enough retired agents")

// Params configures a simulation replica.
type Params struct {
	Agents       int
	TicksPerHour int
	WalkingSpeed int
	BleedoutRate float64 // probability that an agent on the bleed-out cell continues
	Schedule     ReleaseSchedule
	Order        StepOrder // nil means Shuffled
}

// ParamsFromConfig builds Params from an assimilation config. The rate is
// supplied separately because every replica draws its own.
func ParamsFromConfig(cfg *config.AssimilationConfig, rate float64) Params {
	var order StepOrder = Shuffled{}
	if !cfg.GetShuffleAgents() {
		order = Sequential{}
	}
	return Params{
		Agents:       cfg.GetAgents(),
		TicksPerHour: cfg.GetTicksPerHour(),
		WalkingSpeed: cfg.GetWalkingSpeed(),
		BleedoutRate: rate,
		Schedule:     NormalSchedule(cfg.GetDailyReleases(), cfg.GetReleasePeakHour(), cfg.GetReleaseSpreadHours()),
		Order:        order,
	}
}

// Validate rejects parameters the engine cannot run with.
func (p Params) Validate() error {
	if p.Agents <= 0 {
		return fmt.Errorf("%w: agents must be positive, got %d", config.ErrInvalidConfig, p.Agents)
	}
	if p.TicksPerHour <= 0 {
		return fmt.Errorf("%w: ticks_per_hour must be positive, got %d", config.ErrInvalidConfig, p.TicksPerHour)
	}
	if p.WalkingSpeed <= 0 {
		return fmt.Errorf("%w: walking_speed must be positive, got %d", config.ErrInvalidConfig, p.WalkingSpeed)
	}
	for h, n := range p.Schedule {
		if n < 0 {
			return fmt.Errorf("%w: release schedule hour %d is negative (%d)", config.ErrInvalidConfig, h, n)
		}
	}
	rate := p.BleedoutRate
	return config.ValidateRate("bleedout_rate", &rate)
}

// Simulation owns one replica: its agents, cameras and random stream. The
// World is shared read-only. A Simulation is not safe for concurrent use.
type Simulation struct {
	world   *world.World
	params  Params
	order   StepOrder
	rng     *rand.Rand
	rate    float64
	agents  []Agent
	cameras []*Camera
	next    int // tick executed by the next call to Tick
	bled    int

	orderBuf   []int
	retiredBuf []int
}

// New returns a simulation with every agent retired, ready to execute tick 0.
// Agent ids equal their index.
func New(w *world.World, p Params, rng *rand.Rand) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{
		world:    w,
		params:   p,
		order:    p.Order,
		rng:      rng,
		rate:     p.BleedoutRate,
		agents:   make([]Agent, p.Agents),
		orderBuf: make([]int, p.Agents),
	}
	if s.order == nil {
		s.order = Shuffled{}
	}
	for i := range s.agents {
		s.agents[i].ID = i
		s.agents[i].retire(w)
	}
	for _, c := range w.Cameras() {
		s.cameras = append(s.cameras, NewCamera(c))
	}
	return s, nil
}

// World returns the shared world.
func (s *Simulation) World() *world.World { return s.world }

// Params returns the parameters the replica was built with.
func (s *Simulation) Params() Params { return s.params }

// BleedoutRate returns the replica's current rate.
func (s *Simulation) BleedoutRate() float64 { return s.rate }

// NextTick returns the tick the next call to Tick will execute.
func (s *Simulation) NextTick() int { return s.next }

// SetNextTick moves the simulation clock, used when a replica is rebuilt from
// a state vector mid-run.
func (s *Simulation) SetNextTick(tick int) { s.next = tick }

// BledOut returns the number of agents retired on the bleed-out cell so far.
func (s *Simulation) BledOut() int { return s.bled }

// Agents returns a copy of the population.
func (s *Simulation) Agents() []Agent {
	out := make([]Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// Cameras returns the replica's cameras in state-vector order.
func (s *Simulation) Cameras() []*Camera { return s.cameras }

// CameraCounts returns the last closed hourly count of each camera.
func (s *Simulation) CameraCounts() [2]int {
	var out [2]int
	for i, c := range s.cameras {
		out[i] = c.Last()
	}
	return out
}

// Population returns the number of agents in each state.
func (s *Simulation) Population() map[AgentState]int {
	out := map[AgentState]int{AgentRetired: 0, AgentActiveOutbound: 0, AgentActiveReturning: 0}
	for i := range s.agents {
		out[s.agents[i].State]++
	}
	return out
}

func (s *Simulation) hourBoundary(tick int) bool {
	return tick%s.params.TicksPerHour == 0
}

// Tick executes one tick: hourly releases, one step per agent, camera
// observation and, on hour boundaries, closing the hour on every camera.
func (s *Simulation) Tick() error {
	t := s.next
	boundary := s.hourBoundary(t)

	if boundary {
		if err := s.Activate(s.params.Schedule.At(t, s.params.TicksPerHour)); err != nil {
			return fmt.Errorf("tick %d: %w", t, err)
		}
	}

	for _, i := range s.order.Order(s.orderBuf, s.rng) {
		s.step(&s.agents[i], t)
	}

	for _, c := range s.cameras {
		c.Observe(s.agents)
	}
	if boundary {
		for _, c := range s.cameras {
			c.CloseHour()
		}
	}

	s.next++
	return nil
}

// Run executes n ticks.
func (s *Simulation) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// Activate releases n distinct retired agents chosen uniformly, each from a
// uniformly chosen endpoint. Releasing zero agents is a no-op.
func (s *Simulation) Activate(n int) error {
	if n <= 0 {
		return nil
	}
	retired := s.retiredBuf[:0]
	for i := range s.agents {
		if s.agents[i].State == AgentRetired {
			retired = append(retired, i)
		}
	}
	s.retiredBuf = retired
	if len(retired) < n {
		return fmt.Errorf("%w: want %d, have %d", ErrUnderPopulation, n, len(retired))
	}

	// Partial Fisher-Yates: the first n entries become a uniform sample.
	for k := 0; k < n; k++ {
		j := k + s.rng.IntN(len(retired)-k)
		retired[k], retired[j] = retired[j], retired[k]
		s.agents[retired[k]].activate(s.world, Endpoint(s.rng.IntN(2)))
	}
	return nil
}

func (s *Simulation) step(a *Agent, tick int) {
	switch a.State {
	case AgentRetired:
		return
	case AgentActiveOutbound, AgentActiveReturning:
		if a.arrived(s.world) {
			a.retire(s.world)
			return
		}
		if a.Position == s.world.BleedOut() && s.rng.Float64() >= s.rate {
			a.retire(s.world)
			s.bled++
			return
		}
		if tick%s.params.WalkingSpeed == 0 {
			a.advance(s.world)
		}
	default:
		panic(fmt.Sprintf("sim: agent %d in unknown state %q", a.ID, a.State))
	}
}
