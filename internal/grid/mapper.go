package grid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNotCoincident indicates a high-resolution node that does not sit on a
	// regular grid node.
	ErrNotCoincident = errors.New("grid: node does not coincide with a regular grid node")

	// ErrDuplicateNode indicates two high-resolution nodes claiming the same
	// regular grid node.
	ErrDuplicateNode = errors.New("grid: regular grid node claimed twice")
)

// DefaultTolerance is the distance under which a high-resolution node is
// considered to sit on a regular grid node.
const DefaultTolerance = 1e-6

// Mapper resolves between a high-resolution node set and a regular grid. It
// is built once from rest geometry and is read-only afterwards.
type Mapper struct {
	grid            *RegularGrid
	cellNodes       [][8]int
	sparseToRegular []int
	restShape       []r3.Vec
}

// NewMapper indexes the grid cells and pairs every sparse rest node with the
// regular node it coincides with.
func NewMapper(g *RegularGrid, sparseRest []r3.Vec, tol float64) (*Mapper, error) {
	if tol <= 0 {
		tol = DefaultTolerance
	}

	m := &Mapper{
		grid:            g,
		cellNodes:       make([][8]int, g.CellCount()),
		sparseToRegular: make([]int, len(sparseRest)),
		restShape:       g.Positions(),
	}
	for cell := range m.cellNodes {
		m.cellNodes[cell] = g.NodeIndicesOf(cell)
	}

	owner := make(map[int]int, len(sparseRest))
	for i, p := range sparseRest {
		idx, dist, err := g.NearestNode(p)
		if err != nil {
			return nil, fmt.Errorf("sparse node %d: %w", i, err)
		}
		if dist > tol {
			return nil, fmt.Errorf("%w: sparse node %d at %v is %.3g away from node %d", ErrNotCoincident, i, p, dist, idx)
		}
		if prev, dup := owner[idx]; dup {
			return nil, fmt.Errorf("%w: regular node %d by sparse nodes %d and %d", ErrDuplicateNode, idx, prev, i)
		}
		owner[idx] = i
		m.sparseToRegular[i] = idx
	}
	return m, nil
}

func (m *Mapper) Grid() *RegularGrid { return m.grid }

func (m *Mapper) NodeCount() int { return m.grid.NodeCount() }

func (m *Mapper) CellIndexContaining(p r3.Vec) (int, error) {
	return m.grid.CellIndexContaining(p)
}

// NodeIndicesOf returns the precomputed corners of cell.
func (m *Mapper) NodeIndicesOf(cell int) [8]int {
	return m.cellNodes[cell]
}

// SparseToRegular maps each high-resolution node to its regular node. The
// returned slice must not be modified.
func (m *Mapper) SparseToRegular() []int {
	return m.sparseToRegular
}

// RestShape is the rest position of every regular node. The returned slice
// must not be modified.
func (m *Mapper) RestShape() []r3.Vec {
	return m.restShape
}
