package world

import "strings"

// StreetWidth is the column count of the built-in street. The walkable strip
// between the two entrances has an even number of cells, so an outbound and a
// returning agent never share a cell at the same journey counter.
const StreetWidth = 42

// DefaultStreetRows is the built-in layout: a single east-west street with an
// entrance at each end, a bleed-out cell halfway, one camera near each
// entrance and the graveyard off-street.
func DefaultStreetRows() []string {
	n := StreetWidth
	wall := strings.Repeat("X", n)

	mounts := []byte(wall)
	mounts[5] = 'C'
	mounts[n-6] = 'C'

	street := []byte(wall)
	for c := 1; c < n-1; c++ {
		street[c] = 'R'
	}
	street[1] = 'E'
	street[n-2] = 'E'
	street[n/2] = 'B'

	floor := []byte(wall)
	floor[0] = 'G'

	return []string{wall, string(mounts), string(street), string(floor)}
}

// DefaultStreet returns the World built from DefaultStreetRows.
func DefaultStreet() *World {
	g, err := ParseGrid(DefaultStreetRows())
	if err != nil {
		panic(err)
	}
	w, err := New(g)
	if err != nil {
		panic(err)
	}
	return w
}
