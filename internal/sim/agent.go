package sim

import "github.com/banshee-data/footfall/internal/world"

// AgentState represents the lifecycle state of an agent.
type AgentState string

const (
	AgentRetired         AgentState = "retired"          // parked on the graveyard, available for release
	AgentActiveOutbound  AgentState = "active_outbound"  // walking endpoint A to endpoint B
	AgentActiveReturning AgentState = "active_returning" // walking endpoint B to endpoint A
)

// RetiredCounter is the journey counter of every retired agent. It lies far
// outside any route so it is never mistaken for route progress.
const RetiredCounter = 1000

// Endpoint selects which canonical entrance an agent is released from.
type Endpoint int

const (
	EndpointA Endpoint = iota
	EndpointB
)

// Agent is one simulated pedestrian. Active agents always satisfy
// Position == route[Counter]; the route is implied by State.
type Agent struct {
	ID       int
	Position world.Cell
	State    AgentState
	Counter  int
}

// Active reports whether the agent is walking a route.
func (a *Agent) Active() bool {
	return a.State == AgentActiveOutbound || a.State == AgentActiveReturning
}

// routeFor returns the route walked by an agent in the given active state.
func routeFor(w *world.World, s AgentState) []world.Cell {
	if s == AgentActiveReturning {
		return w.Returning()
	}
	return w.Outbound()
}

func (a *Agent) activate(w *world.World, from Endpoint) {
	if from == EndpointB {
		a.State = AgentActiveReturning
	} else {
		a.State = AgentActiveOutbound
	}
	a.Counter = 0
	a.Position = routeFor(w, a.State)[0]
}

func (a *Agent) retire(w *world.World) {
	a.State = AgentRetired
	a.Position = w.Graveyard()
	a.Counter = RetiredCounter
}

// arrived reports whether an active agent stands on its destination.
func (a *Agent) arrived(w *world.World) bool {
	return a.Counter >= len(routeFor(w, a.State))-1
}

func (a *Agent) advance(w *world.World) {
	route := routeFor(w, a.State)
	a.Counter++
	a.Position = route[a.Counter]
}
