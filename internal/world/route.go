package world

import (
	"errors"
	"fmt"
)

// ErrNoRoute is returned when two cells are not connected by walkable cells.
var ErrNoRoute = errors.New("no route")

// distances runs a breadth-first layering over walkable cells from start and
// returns the hop count to every cell (-1 when unreachable).
func distances(g *Grid, start Cell) []int {
	dist := make([]int, g.Size())
	for i := range dist {
		dist[i] = -1
	}
	dist[g.Index(start)] = 0
	queue := []Cell{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[g.Index(cur)]
		for _, n := range neighbours(cur) {
			if !g.Walkable(n) || dist[g.Index(n)] >= 0 {
				continue
			}
			dist[g.Index(n)] = d + 1
			queue = append(queue, n)
		}
	}
	return dist
}

// ShortestRoute returns a shortest walkable route from start to end, both
// inclusive. The route is rebuilt backwards from end: at each layer the
// predecessor closest (squared Euclidean) to start is taken, and equal
// distances resolve to the first neighbour in down, up, right, left order, so
// the result is deterministic.
func ShortestRoute(g *Grid, start, end Cell) ([]Cell, error) {
	if !g.Walkable(start) || !g.Walkable(end) {
		return nil, fmt.Errorf("%w: %v to %v: endpoints must be walkable", ErrNoRoute, start, end)
	}
	dist := distances(g, start)
	length := dist[g.Index(end)]
	if length < 0 {
		return nil, fmt.Errorf("%w: %v is unreachable from %v", ErrNoRoute, end, start)
	}

	route := make([]Cell, length+1)
	route[length] = end
	cur := end
	for d := length - 1; d >= 0; d-- {
		best, bestDist := Cell{}, -1
		for _, n := range neighbours(cur) {
			if !g.InBounds(n) || dist[g.Index(n)] != d {
				continue
			}
			dr, dc := n.Row-start.Row, n.Col-start.Col
			if sq := dr*dr + dc*dc; bestDist < 0 || sq < bestDist {
				best, bestDist = n, sq
			}
		}
		route[d] = best
		cur = best
	}
	return route, nil
}

// Reachable reports whether to can be reached from any of the given cells.
func Reachable(g *Grid, to Cell, from ...Cell) bool {
	for _, f := range from {
		if !g.Walkable(f) {
			continue
		}
		if distances(g, f)[g.Index(to)] >= 0 {
			return true
		}
	}
	return false
}
