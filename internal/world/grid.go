package world

import (
	"errors"
	"fmt"
)

// ErrInvalidWorld is wrapped by every grid or world construction failure.
var ErrInvalidWorld = errors.New("invalid world")

// CellKind classifies a grid cell.
type CellKind uint8

const (
	Blocked CellKind = iota
	Road
	Entrance
	BleedOut
	Graveyard
	CameraMount
)

func (k CellKind) String() string {
	switch k {
	case Blocked:
		return "blocked"
	case Road:
		return "road"
	case Entrance:
		return "entrance"
	case BleedOut:
		return "bleed-out"
	case Graveyard:
		return "graveyard"
	case CameraMount:
		return "camera"
	default:
		return fmt.Sprintf("CellKind(%d)", uint8(k))
	}
}

// Walkable reports whether agents may stand on a cell of this kind.
func (k CellKind) Walkable() bool {
	return k == Road || k == Entrance || k == BleedOut
}

// legend maps the single-character map notation onto cell kinds.
var legend = map[byte]CellKind{
	'X': Blocked,
	'R': Road,
	'E': Entrance,
	'B': BleedOut,
	'G': Graveyard,
	'C': CameraMount,
}

// Cell is a grid coordinate.
type Cell struct {
	Row int
	Col int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Grid is an immutable pre-classified map. Cells are stored row-major.
type Grid struct {
	width  int
	height int
	kinds  []CellKind
}

// ParseGrid builds a Grid from rows of legend characters. Every row must have
// the same width.
func ParseGrid(rows []string) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidWorld)
	}
	g := &Grid{
		width:  len(rows[0]),
		height: len(rows),
		kinds:  make([]CellKind, 0, len(rows)*len(rows[0])),
	}
	for r, row := range rows {
		if len(row) != g.width {
			return nil, fmt.Errorf("%w: row %d has width %d, want %d", ErrInvalidWorld, r, len(row), g.width)
		}
		for c := 0; c < len(row); c++ {
			kind, ok := legend[row[c]]
			if !ok {
				return nil, fmt.Errorf("%w: unknown cell %q at (%d,%d)", ErrInvalidWorld, row[c], r, c)
			}
			g.kinds = append(g.kinds, kind)
		}
	}
	return g, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Size returns the number of cells.
func (g *Grid) Size() int { return len(g.kinds) }

// InBounds reports whether c lies on the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < g.height && c.Col >= 0 && c.Col < g.width
}

// Index returns the linear row-major index of c. It is the position
// coordinate used in state vectors.
func (g *Grid) Index(c Cell) int {
	return c.Row*g.width + c.Col
}

// CellAt is the inverse of Index.
func (g *Grid) CellAt(index int) Cell {
	return Cell{Row: index / g.width, Col: index % g.width}
}

// Kind returns the classification of c. Off-grid cells are Blocked.
func (g *Grid) Kind(c Cell) CellKind {
	if !g.InBounds(c) {
		return Blocked
	}
	return g.kinds[g.Index(c)]
}

// Walkable reports whether c is on the grid and walkable.
func (g *Grid) Walkable(c Cell) bool {
	return g.Kind(c).Walkable()
}

// Find returns every cell of the given kind in row-major order.
func (g *Grid) Find(kind CellKind) []Cell {
	var out []Cell
	for i, k := range g.kinds {
		if k == kind {
			out = append(out, g.CellAt(i))
		}
	}
	return out
}

// neighbours returns the four orthogonal neighbours in the fixed search order
// down, up, right, left.
func neighbours(c Cell) [4]Cell {
	return [4]Cell{
		{Row: c.Row + 1, Col: c.Col},
		{Row: c.Row - 1, Col: c.Col},
		{Row: c.Row, Col: c.Col + 1},
		{Row: c.Row, Col: c.Col - 1},
	}
}
