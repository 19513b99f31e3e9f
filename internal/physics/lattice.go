package physics

import (
	"github.com/san-kum/deepsim/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 100.0
	DefaultDamping   = 2.0
)

// Spring connects two lattice nodes.
type Spring struct {
	A, B int
	Rest float64
}

// ElasticLattice is a hexahedral mass-spring lattice. Every node is tied to
// its 26 neighbours (edges, face and body diagonals) so the lattice resists
// shear as well as stretch.
// State: [x0, y0, z0, ..., xN, yN, zN, vx0, vy0, vz0, ...]
// Control: the external force on every node, [fx0, fy0, fz0, ...]
type ElasticLattice struct {
	Rest      []r3.Vec
	Springs   []Spring
	Fixed     []bool
	Mass      float64
	Stiffness float64
	Damping   float64

	dims [3]int
}

func NewElasticLattice(origin r3.Vec, spacing float64, cells [3]int) *ElasticLattice {
	dims := [3]int{cells[0] + 1, cells[1] + 1, cells[2] + 1}
	l := &ElasticLattice{
		Mass:      DefaultMass,
		Stiffness: DefaultStiffness,
		Damping:   DefaultDamping,
		dims:      dims,
	}

	n := dims[0] * dims[1] * dims[2]
	l.Rest = make([]r3.Vec, n)
	l.Fixed = make([]bool, n)
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				l.Rest[l.Index(i, j, k)] = r3.Vec{
					X: origin.X + float64(i)*spacing,
					Y: origin.Y + float64(j)*spacing,
					Z: origin.Z + float64(k)*spacing,
				}
			}
		}
	}

	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				a := l.Index(i, j, k)
				for _, off := range forwardOffsets {
					ni, nj, nk := i+off[0], j+off[1], k+off[2]
					if !l.inside(ni, nj, nk) {
						continue
					}
					b := l.Index(ni, nj, nk)
					l.Springs = append(l.Springs, Spring{A: a, B: b, Rest: r3.Norm(r3.Sub(l.Rest[b], l.Rest[a]))})
				}
			}
		}
	}
	return l
}

// forwardOffsets lists the 13 neighbour offsets whose first non-zero
// component is positive, so each spring is created once.
var forwardOffsets = func() [][3]int {
	var offs [][3]int
	for dk := -1; dk <= 1; dk++ {
		for dj := -1; dj <= 1; dj++ {
			for di := -1; di <= 1; di++ {
				o := [3]int{di, dj, dk}
				for _, c := range []int{dk, dj, di} {
					if c > 0 {
						offs = append(offs, o)
					}
					if c != 0 {
						break
					}
				}
			}
		}
	}
	return offs
}()

func (l *ElasticLattice) inside(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < l.dims[0] && j < l.dims[1] && k < l.dims[2]
}

func (l *ElasticLattice) Index(i, j, k int) int {
	return i + j*l.dims[0] + k*l.dims[0]*l.dims[1]
}

func (l *ElasticLattice) Coords(idx int) (i, j, k int) {
	area := l.dims[0] * l.dims[1]
	return idx % l.dims[0], (idx % area) / l.dims[0], idx / area
}

func (l *ElasticLattice) NodeDims() [3]int { return l.dims }
func (l *ElasticLattice) NodeCount() int   { return len(l.Rest) }
func (l *ElasticLattice) StateDim() int    { return 6 * len(l.Rest) }
func (l *ElasticLattice) ControlDim() int  { return 3 * len(l.Rest) }

// FixWhere pins every node whose rest position satisfies pred and returns the
// number of pinned nodes.
func (l *ElasticLattice) FixWhere(pred func(p r3.Vec) bool) int {
	count := 0
	for i, p := range l.Rest {
		if pred(p) {
			l.Fixed[i] = true
			count++
		}
	}
	return count
}

func (l *ElasticLattice) Derive(x dynamo.State, u dynamo.Control, _ float64) dynamo.State {
	n := len(l.Rest)
	deriv := make(dynamo.State, 6*n)
	copy(deriv[:3*n], x[3*n:])
	acc := deriv[3*n:]

	for _, s := range l.Springs {
		pa := nodeVec(x, s.A)
		pb := nodeVec(x, s.B)
		delta := r3.Sub(pb, pa)
		length := r3.Norm(delta)
		if length < 1e-12 {
			continue
		}
		f := r3.Scale(l.Stiffness*(length-s.Rest)/length, delta)
		addVec(acc, s.A, f)
		addVec(acc, s.B, r3.Scale(-1, f))
	}

	for i := 0; i < n; i++ {
		if l.Fixed[i] {
			setVec(deriv[:3*n], i, r3.Vec{})
			setVec(acc, i, r3.Vec{})
			continue
		}
		f := nodeVec(acc, i)
		if len(u) == 3*n {
			f = r3.Add(f, nodeVec(u, i))
		}
		f = r3.Sub(f, r3.Scale(l.Damping, nodeVec(x[3*n:], i)))
		setVec(acc, i, r3.Scale(1/l.Mass, f))
	}
	return deriv
}

// InitialState returns the lattice at rest.
func (l *ElasticLattice) InitialState() dynamo.State {
	x := make(dynamo.State, 6*len(l.Rest))
	for i, p := range l.Rest {
		setVec(x, i, p)
	}
	return x
}

// Positions extracts the node positions from a state.
func (l *ElasticLattice) Positions(x dynamo.State) []r3.Vec {
	out := make([]r3.Vec, len(l.Rest))
	for i := range out {
		out[i] = nodeVec(x, i)
	}
	return out
}

// Energy is kinetic plus elastic potential energy.
func (l *ElasticLattice) Energy(x dynamo.State) float64 {
	n := len(l.Rest)
	e := 0.0
	for i := 0; i < n; i++ {
		e += 0.5 * l.Mass * r3.Norm2(nodeVec(x[3*n:], i))
	}
	for _, s := range l.Springs {
		stretch := r3.Norm(r3.Sub(nodeVec(x, s.B), nodeVec(x, s.A))) - s.Rest
		e += 0.5 * l.Stiffness * stretch * stretch
	}
	return e
}

// SurfaceNodes returns the indices of the nodes on the lattice boundary, in
// ascending order.
func (l *ElasticLattice) SurfaceNodes() []int {
	var out []int
	for idx := range l.Rest {
		i, j, k := l.Coords(idx)
		if i == 0 || j == 0 || k == 0 || i == l.dims[0]-1 || j == l.dims[1]-1 || k == l.dims[2]-1 {
			out = append(out, idx)
		}
	}
	return out
}

// SurfaceTriangles triangulates the six boundary faces, two triangles per
// boundary quad, in lattice node indices.
func (l *ElasticLattice) SurfaceTriangles() [][3]int {
	var tris [][3]int
	for axis := 0; axis < 3; axis++ {
		b, c := (axis+1)%3, (axis+2)%3
		for _, side := range []int{0, l.dims[axis] - 1} {
			for q := 0; q < l.dims[c]-1; q++ {
				for p := 0; p < l.dims[b]-1; p++ {
					corner := func(dp, dq int) int {
						var ijk [3]int
						ijk[axis] = side
						ijk[b] = p + dp
						ijk[c] = q + dq
						return l.Index(ijk[0], ijk[1], ijk[2])
					}
					v00, v10, v11, v01 := corner(0, 0), corner(1, 0), corner(1, 1), corner(0, 1)
					tris = append(tris, [3]int{v00, v10, v11}, [3]int{v00, v11, v01})
				}
			}
		}
	}
	return tris
}

func nodeVec(s []float64, i int) r3.Vec {
	return r3.Vec{X: s[3*i], Y: s[3*i+1], Z: s[3*i+2]}
}

func setVec(s []float64, i int, v r3.Vec) {
	s[3*i], s[3*i+1], s[3*i+2] = v.X, v.Y, v.Z
}

func addVec(s []float64, i int, v r3.Vec) {
	s[3*i] += v.X
	s[3*i+1] += v.Y
	s[3*i+2] += v.Z
}
