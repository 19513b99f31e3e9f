package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrOutOfBounds indicates a point outside the lattice. Callers size the
	// lattice to the object's bounding box, so this is a setup error.
	ErrOutOfBounds = errors.New("grid: point outside regular grid")

	// ErrInvalidGrid indicates a lattice with no cells or a non-positive cell size.
	ErrInvalidGrid = errors.New("grid: invalid regular grid")
)

// RegularGrid is an axis-aligned uniform lattice. Cells and nodes are both
// numbered with x varying fastest, then y, then z.
type RegularGrid struct {
	Origin   r3.Vec
	CellSize r3.Vec
	Cells    [3]int

	nodes [3]int
}

// New returns a lattice of cells[0] x cells[1] x cells[2] cells starting at origin.
func New(origin, cellSize r3.Vec, cells [3]int) (*RegularGrid, error) {
	if cellSize.X <= 0 || cellSize.Y <= 0 || cellSize.Z <= 0 {
		return nil, fmt.Errorf("%w: cell size %v", ErrInvalidGrid, cellSize)
	}
	for axis, c := range cells {
		if c <= 0 {
			return nil, fmt.Errorf("%w: %d cells on axis %d", ErrInvalidGrid, c, axis)
		}
	}
	return &RegularGrid{
		Origin:   origin,
		CellSize: cellSize,
		Cells:    cells,
		nodes:    [3]int{cells[0] + 1, cells[1] + 1, cells[2] + 1},
	}, nil
}

// Covering returns the lattice with cubic cells of side cellSize that spans
// the bounding box of points, grown by margin cells on every side.
func Covering(points []r3.Vec, cellSize float64, margin int) (*RegularGrid, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points to cover", ErrInvalidGrid)
	}
	if margin < 0 {
		return nil, fmt.Errorf("%w: negative margin %d", ErrInvalidGrid, margin)
	}

	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}

	span := [3]float64{hi.X - lo.X, hi.Y - lo.Y, hi.Z - lo.Z}
	var cells [3]int
	for axis, s := range span {
		// a flat axis still needs one cell
		cells[axis] = int(math.Max(1, math.Ceil(s/cellSize-1e-9))) + 2*margin
	}
	m := float64(margin) * cellSize
	origin := r3.Vec{X: lo.X - m, Y: lo.Y - m, Z: lo.Z - m}
	return New(origin, r3.Vec{X: cellSize, Y: cellSize, Z: cellSize}, cells)
}

func (g *RegularGrid) NodeDims() [3]int { return g.nodes }

func (g *RegularGrid) NodeCount() int { return g.nodes[0] * g.nodes[1] * g.nodes[2] }

func (g *RegularGrid) CellCount() int { return g.Cells[0] * g.Cells[1] * g.Cells[2] }

// Max returns the corner opposite Origin.
func (g *RegularGrid) Max() r3.Vec {
	return r3.Vec{
		X: g.Origin.X + float64(g.Cells[0])*g.CellSize.X,
		Y: g.Origin.Y + float64(g.Cells[1])*g.CellSize.Y,
		Z: g.Origin.Z + float64(g.Cells[2])*g.CellSize.Z,
	}
}

func (g *RegularGrid) NodeIndex(i, j, k int) int {
	return i + j*g.nodes[0] + k*g.nodes[0]*g.nodes[1]
}

func (g *RegularGrid) NodeCoords(idx int) (i, j, k int) {
	area := g.nodes[0] * g.nodes[1]
	return idx % g.nodes[0], (idx % area) / g.nodes[0], idx / area
}

func (g *RegularGrid) NodePosition(idx int) r3.Vec {
	i, j, k := g.NodeCoords(idx)
	return r3.Vec{
		X: g.Origin.X + float64(i)*g.CellSize.X,
		Y: g.Origin.Y + float64(j)*g.CellSize.Y,
		Z: g.Origin.Z + float64(k)*g.CellSize.Z,
	}
}

// Positions returns the rest position of every node, in node order.
func (g *RegularGrid) Positions() []r3.Vec {
	out := make([]r3.Vec, g.NodeCount())
	for idx := range out {
		out[idx] = g.NodePosition(idx)
	}
	return out
}

func (g *RegularGrid) CellIndex(i, j, k int) int {
	return i + j*g.Cells[0] + k*g.Cells[0]*g.Cells[1]
}

func (g *RegularGrid) CellCoords(cell int) (i, j, k int) {
	area := g.Cells[0] * g.Cells[1]
	return cell % g.Cells[0], (cell % area) / g.Cells[0], cell / area
}

// CellBounds returns the min and max corners of a cell.
func (g *RegularGrid) CellBounds(cell int) (lo, hi r3.Vec) {
	i, j, k := g.CellCoords(cell)
	lo = g.NodePosition(g.NodeIndex(i, j, k))
	hi = g.NodePosition(g.NodeIndex(i+1, j+1, k+1))
	return lo, hi
}

// CellIndexContaining buckets p into its cell by floor division. Points on
// the max faces of the lattice belong to the last cell on that axis.
func (g *RegularGrid) CellIndexContaining(p r3.Vec) (int, error) {
	i, iok := bucket(p.X, g.Origin.X, g.CellSize.X, g.Cells[0])
	j, jok := bucket(p.Y, g.Origin.Y, g.CellSize.Y, g.Cells[1])
	k, kok := bucket(p.Z, g.Origin.Z, g.CellSize.Z, g.Cells[2])
	if !iok || !jok || !kok {
		return -1, fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfBounds, p, g.Origin, g.Max())
	}
	return g.CellIndex(i, j, k), nil
}

// Contains reports whether p lies inside the lattice, faces included.
func (g *RegularGrid) Contains(p r3.Vec) bool {
	_, err := g.CellIndexContaining(p)
	return err == nil
}

// NodeIndicesOf returns the corners of cell in trilinear hexahedron order:
// (0,0,0) (1,0,0) (1,1,0) (0,1,0) (0,0,1) (1,0,1) (1,1,1) (0,1,1).
func (g *RegularGrid) NodeIndicesOf(cell int) [8]int {
	i, j, k := g.CellCoords(cell)
	return [8]int{
		g.NodeIndex(i, j, k),
		g.NodeIndex(i+1, j, k),
		g.NodeIndex(i+1, j+1, k),
		g.NodeIndex(i, j+1, k),
		g.NodeIndex(i, j, k+1),
		g.NodeIndex(i+1, j, k+1),
		g.NodeIndex(i+1, j+1, k+1),
		g.NodeIndex(i, j+1, k+1),
	}
}

// NearestNode returns the node closest to p and its distance.
func (g *RegularGrid) NearestNode(p r3.Vec) (int, float64, error) {
	i, iok := nearest(p.X, g.Origin.X, g.CellSize.X, g.nodes[0])
	j, jok := nearest(p.Y, g.Origin.Y, g.CellSize.Y, g.nodes[1])
	k, kok := nearest(p.Z, g.Origin.Z, g.CellSize.Z, g.nodes[2])
	if !iok || !jok || !kok {
		return -1, 0, fmt.Errorf("%w: %v", ErrOutOfBounds, p)
	}
	idx := g.NodeIndex(i, j, k)
	return idx, r3.Norm(r3.Sub(p, g.NodePosition(idx))), nil
}

func bucket(x, origin, size float64, cells int) (int, bool) {
	f := (x - origin) / size
	if math.IsNaN(f) || f < 0 || f > float64(cells) {
		return 0, false
	}
	c := int(math.Floor(f))
	if c == cells {
		c--
	}
	return c, true
}

func nearest(x, origin, size float64, nodes int) (int, bool) {
	f := math.Round((x - origin) / size)
	if math.IsNaN(f) || f < 0 || f >= float64(nodes) {
		return 0, false
	}
	return int(f), true
}
