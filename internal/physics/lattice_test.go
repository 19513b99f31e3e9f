package physics

import (
	"testing"

	"github.com/san-kum/deepsim/internal/dynamo"
	"github.com/san-kum/deepsim/internal/integrators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestLatticeTopology(t *testing.T) {
	l := NewElasticLattice(r3.Vec{}, 1.0, [3]int{1, 1, 1})

	assert.Equal(t, 8, l.NodeCount())
	// a single cube: 12 edges + 12 face diagonals + 4 body diagonals
	assert.Len(t, l.Springs, 28)
	assert.Len(t, l.SurfaceNodes(), 8)
	assert.Len(t, l.SurfaceTriangles(), 12)
	assert.Equal(t, 48, l.StateDim())
	assert.Equal(t, 24, l.ControlDim())
}

func TestLatticeIndexRoundTrip(t *testing.T) {
	l := NewElasticLattice(r3.Vec{X: 1, Y: 2, Z: 3}, 0.5, [3]int{3, 2, 4})
	for idx := 0; idx < l.NodeCount(); idx++ {
		i, j, k := l.Coords(idx)
		require.Equal(t, idx, l.Index(i, j, k))
	}
	assert.Equal(t, r3.Vec{X: 2.5, Y: 3, Z: 5}, l.Rest[l.Index(3, 2, 4)])
}

func TestLatticeRestIsEquilibrium(t *testing.T) {
	l := NewElasticLattice(r3.Vec{}, 1.0, [3]int{2, 1, 1})
	d := l.Derive(l.InitialState(), nil, 0)
	for i, v := range d {
		assert.InDelta(t, 0, v, 1e-12, "component %d", i)
	}
}

func TestLatticeFixedNodesDoNotMove(t *testing.T) {
	l := NewElasticLattice(r3.Vec{}, 1.0, [3]int{3, 1, 1})
	pinned := l.FixWhere(func(p r3.Vec) bool { return p.X == 0 })
	require.Equal(t, 4, pinned)

	u := make(dynamo.Control, l.ControlDim())
	for i := range u {
		u[i] = -1
	}
	x := l.InitialState()
	integ := integrators.NewRK4()
	for step := 0; step < 50; step++ {
		x = integ.Step(l, x, u, float64(step)*0.01, 0.01)
	}

	pos := l.Positions(x)
	for i, p := range pos {
		if l.Fixed[i] {
			assert.Equal(t, l.Rest[i], p)
		}
	}
	tip := l.Index(3, 0, 0)
	assert.Less(t, pos[tip].Y, l.Rest[tip].Y, "free end should sag under the load")
}

func TestLatticeDampingDissipates(t *testing.T) {
	l := NewElasticLattice(r3.Vec{}, 1.0, [3]int{2, 1, 1})
	l.FixWhere(func(p r3.Vec) bool { return p.X == 0 })

	x := l.InitialState()
	tip := l.Index(2, 1, 1)
	x[3*tip+1] += 0.2
	start := l.Energy(x)

	integ := integrators.NewRK4()
	for step := 0; step < 500; step++ {
		x = integ.Step(l, x, nil, float64(step)*0.01, 0.01)
	}
	assert.True(t, x.IsValid())
	assert.Less(t, l.Energy(x), start)
}
