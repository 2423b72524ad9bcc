package sim

import "github.com/banshee-data/footfall/internal/world"

// Camera counts agents leaving its line-of-sight cell. An agent is counted
// once when it departs, however many ticks it lingered in view.
type Camera struct {
	Name        string
	LineOfSight world.Cell

	enclosed map[int]struct{} // agent ids currently in view
	seen     map[int]struct{} // scratch set for Observe
	count    int              // departures in the open hour
	last     int              // count of the most recently closed hour
	history  []int
}

// NewCamera returns a camera watching the placement's line of sight.
func NewCamera(p world.Camera) *Camera {
	return &Camera{
		Name:        p.Name,
		LineOfSight: p.LineOfSight,
		enclosed:    make(map[int]struct{}),
		seen:        make(map[int]struct{}),
	}
}

// Observe updates the enclosed set from the current agent positions and
// counts every enclosed agent that is no longer in view. Agents are matched by
// ID; an enclosed ID missing from agents counts as a departure.
func (c *Camera) Observe(agents []Agent) {
	if c.seen == nil {
		c.seen = make(map[int]struct{})
	}
	for i := range agents {
		if agents[i].Position == c.LineOfSight {
			c.seen[agents[i].ID] = struct{}{}
		}
	}
	for id := range c.enclosed {
		if _, ok := c.seen[id]; !ok {
			c.count++
		}
	}
	c.enclosed, c.seen = c.seen, c.enclosed
	clear(c.seen)
}

// CloseHour appends the open hour's count to the history, keeps it as the
// last count and starts a new hour at zero.
func (c *Camera) CloseHour() {
	c.history = append(c.history, c.count)
	c.last = c.count
	c.count = 0
}

// Count returns the departures counted so far in the open hour.
func (c *Camera) Count() int { return c.count }

// Last returns the count of the most recently closed hour.
func (c *Camera) Last() int { return c.last }

// Enclosed returns the number of agents currently in view.
func (c *Camera) Enclosed() int { return len(c.enclosed) }

// History returns a copy of every closed hourly count.
func (c *Camera) History() []int {
	out := make([]int, len(c.history))
	copy(out, c.history)
	return out
}

// reset restores the camera after a state decode: the last count comes from
// the state vector and agents already in view are enclosed without being
// counted.
func (c *Camera) reset(last int, agents []Agent) {
	c.last = last
	c.count = 0
	clear(c.enclosed)
	for i := range agents {
		if agents[i].Position == c.LineOfSight {
			c.enclosed[agents[i].ID] = struct{}{}
		}
	}
}
