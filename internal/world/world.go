package world

import "fmt"

// Camera is a fixed sensor placement: a mount cell on a wall and the single
// walkable cell it watches.
type Camera struct {
	Name        string
	Mount       Cell
	LineOfSight Cell
}

// World is the static environment shared read-only by every simulation
// replica: the grid, its named locations and the two precomputed routes
// between the canonical endpoints.
type World struct {
	grid      *Grid
	endpointA Cell
	endpointB Cell
	bleedOut  Cell
	graveyard Cell
	cameras   []Camera
	outbound  []Cell // endpoint A to endpoint B
	returning []Cell // endpoint B to endpoint A
}

// CameraNames are assigned to the camera mounts in row-major order.
var CameraNames = [2]string{"camera_a", "camera_b"}

// New validates g and precomputes routes. The grid needs at least two
// entrances (the first two in row-major order are the canonical endpoints),
// exactly one bleed-out cell, exactly one graveyard and exactly two camera
// mounts, each with a single walkable neighbour reachable from an endpoint.
func New(g *Grid) (*World, error) {
	entrances := g.Find(Entrance)
	if len(entrances) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 entrances, found %d", ErrInvalidWorld, len(entrances))
	}
	bleed := g.Find(BleedOut)
	if len(bleed) != 1 {
		return nil, fmt.Errorf("%w: need exactly 1 bleed-out cell, found %d", ErrInvalidWorld, len(bleed))
	}
	graves := g.Find(Graveyard)
	if len(graves) != 1 {
		return nil, fmt.Errorf("%w: need exactly 1 graveyard cell, found %d", ErrInvalidWorld, len(graves))
	}
	mounts := g.Find(CameraMount)
	if len(mounts) != len(CameraNames) {
		return nil, fmt.Errorf("%w: need exactly %d camera mounts, found %d", ErrInvalidWorld, len(CameraNames), len(mounts))
	}

	w := &World{
		grid:      g,
		endpointA: entrances[0],
		endpointB: entrances[1],
		bleedOut:  bleed[0],
		graveyard: graves[0],
	}

	for i, m := range mounts {
		var sight []Cell
		for _, n := range neighbours(m) {
			if g.Walkable(n) {
				sight = append(sight, n)
			}
		}
		if len(sight) != 1 {
			return nil, fmt.Errorf("%w: camera mount %v has %d walkable neighbours, want 1", ErrInvalidWorld, m, len(sight))
		}
		if !Reachable(g, sight[0], w.endpointA, w.endpointB) {
			return nil, fmt.Errorf("%w: line of sight %v of camera %v is unreachable from a spawn", ErrInvalidWorld, sight[0], m)
		}
		w.cameras = append(w.cameras, Camera{Name: CameraNames[i], Mount: m, LineOfSight: sight[0]})
	}

	var err error
	if w.outbound, err = ShortestRoute(g, w.endpointA, w.endpointB); err != nil {
		return nil, fmt.Errorf("outbound route: %w", err)
	}
	if w.returning, err = ShortestRoute(g, w.endpointB, w.endpointA); err != nil {
		return nil, fmt.Errorf("returning route: %w", err)
	}
	return w, nil
}

// Grid returns the underlying grid.
func (w *World) Grid() *Grid { return w.grid }

// EndpointA returns the start of the outbound route.
func (w *World) EndpointA() Cell { return w.endpointA }

// EndpointB returns the start of the returning route.
func (w *World) EndpointB() Cell { return w.endpointB }

// BleedOut returns the bleed-out cell.
func (w *World) BleedOut() Cell { return w.bleedOut }

// Graveyard returns the cell retired agents are parked on.
func (w *World) Graveyard() Cell { return w.graveyard }

// Cameras returns the camera placements in state-vector order.
func (w *World) Cameras() []Camera {
	out := make([]Camera, len(w.cameras))
	copy(out, w.cameras)
	return out
}

// Outbound returns the route from endpoint A to endpoint B. Callers must not
// modify the returned slice.
func (w *World) Outbound() []Cell { return w.outbound }

// Returning returns the route from endpoint B to endpoint A. Callers must not
// modify the returned slice.
func (w *World) Returning() []Cell { return w.returning }
