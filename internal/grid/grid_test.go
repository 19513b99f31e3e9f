package grid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func unitGrid(t *testing.T, cells [3]int) *RegularGrid {
	t.Helper()
	g, err := New(r3.Vec{X: -1, Y: 0, Z: 2}, r3.Vec{X: 0.5, Y: 1, Z: 0.25}, cells)
	require.NoError(t, err)
	return g
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := New(r3.Vec{}, r3.Vec{X: 1, Y: 0, Z: 1}, [3]int{1, 1, 1})
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = New(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, [3]int{1, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestCounts(t *testing.T) {
	g := unitGrid(t, [3]int{4, 3, 2})
	assert.Equal(t, [3]int{5, 4, 3}, g.NodeDims())
	assert.Equal(t, 60, g.NodeCount())
	assert.Equal(t, 24, g.CellCount())
	assert.Equal(t, r3.Vec{X: 1, Y: 3, Z: 2.5}, g.Max())
}

func TestCellContainment(t *testing.T) {
	g := unitGrid(t, [3]int{4, 3, 2})
	lo, hi := g.Origin, g.Max()
	rng := rand.New(rand.NewSource(7))

	for n := 0; n < 1000; n++ {
		p := r3.Vec{
			X: lo.X + rng.Float64()*(hi.X-lo.X),
			Y: lo.Y + rng.Float64()*(hi.Y-lo.Y),
			Z: lo.Z + rng.Float64()*(hi.Z-lo.Z),
		}
		cell, err := g.CellIndexContaining(p)
		require.NoError(t, err)

		cmin, cmax := g.CellBounds(cell)
		require.True(t, cmin.X <= p.X && p.X <= cmax.X, "x %v not in [%v, %v]", p.X, cmin.X, cmax.X)
		require.True(t, cmin.Y <= p.Y && p.Y <= cmax.Y, "y %v not in [%v, %v]", p.Y, cmin.Y, cmax.Y)
		require.True(t, cmin.Z <= p.Z && p.Z <= cmax.Z, "z %v not in [%v, %v]", p.Z, cmin.Z, cmax.Z)
	}
}

func TestCellIndexContainingFaces(t *testing.T) {
	g := unitGrid(t, [3]int{4, 3, 2})

	cell, err := g.CellIndexContaining(g.Origin)
	require.NoError(t, err)
	assert.Equal(t, 0, cell)

	cell, err = g.CellIndexContaining(g.Max())
	require.NoError(t, err)
	assert.Equal(t, g.CellCount()-1, cell)
}

func TestCellIndexContainingOutOfBounds(t *testing.T) {
	g := unitGrid(t, [3]int{4, 3, 2})

	for _, p := range []r3.Vec{
		{X: -1.01, Y: 1, Z: 2.1},
		{X: 0, Y: 3.5, Z: 2.1},
		{X: 0, Y: 1, Z: 1.99},
	} {
		_, err := g.CellIndexContaining(p)
		assert.ErrorIs(t, err, ErrOutOfBounds, "%v", p)
		assert.False(t, g.Contains(p))
	}
}

func TestNodeIndicesOfOrder(t *testing.T) {
	g := unitGrid(t, [3]int{2, 2, 2})
	cell := g.CellIndex(1, 0, 1)
	corners := g.NodeIndicesOf(cell)

	expected := [8][3]int{
		{1, 0, 1}, {2, 0, 1}, {2, 1, 1}, {1, 1, 1},
		{1, 0, 2}, {2, 0, 2}, {2, 1, 2}, {1, 1, 2},
	}
	for n, ijk := range expected {
		assert.Equal(t, g.NodeIndex(ijk[0], ijk[1], ijk[2]), corners[n], "corner %d", n)
	}
}

func TestNodeCoordsRoundTrip(t *testing.T) {
	g := unitGrid(t, [3]int{3, 2, 4})
	for idx := 0; idx < g.NodeCount(); idx++ {
		i, j, k := g.NodeCoords(idx)
		require.Equal(t, idx, g.NodeIndex(i, j, k))
	}
	for cell := 0; cell < g.CellCount(); cell++ {
		i, j, k := g.CellCoords(cell)
		require.Equal(t, cell, g.CellIndex(i, j, k))
	}
}

func TestCovering(t *testing.T) {
	points := []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 1, Z: 0}}
	g, err := Covering(points, 0.5, 1)
	require.NoError(t, err)

	assert.Equal(t, [3]int{6, 4, 3}, g.Cells)
	assert.Equal(t, r3.Vec{X: -0.5, Y: -0.5, Z: -0.5}, g.Origin)
	for _, p := range points {
		assert.True(t, g.Contains(p))
	}

	_, err = Covering(nil, 0.5, 0)
	assert.ErrorIs(t, err, ErrInvalidGrid)
}
