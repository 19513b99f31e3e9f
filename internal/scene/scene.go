package scene

import (
	"context"

	"github.com/san-kum/deepsim/internal/grid"
	"gonum.org/v1/gonum/spatial/r3"
)

// MechanicalObject is a node collection with live and rest positions.
type MechanicalObject struct {
	Position     []r3.Vec
	RestPosition []r3.Vec
}

func NewMechanicalObject(rest []r3.Vec) *MechanicalObject {
	m := &MechanicalObject{
		Position:     make([]r3.Vec, len(rest)),
		RestPosition: make([]r3.Vec, len(rest)),
	}
	copy(m.Position, rest)
	copy(m.RestPosition, rest)
	return m
}

func (m *MechanicalObject) Len() int { return len(m.RestPosition) }

// Reset moves every node back to its rest position.
func (m *MechanicalObject) Reset() {
	copy(m.Position, m.RestPosition)
}

// ForceField is one external force application on surface nodes. Indices
// refer to the force surface. When Forces is set it carries one value per
// index and takes precedence over the shared Force.
type ForceField struct {
	Indices []int
	Force   r3.Vec
	Forces  []r3.Vec
}

// At returns the force applied to the n-th index of the field.
func (f ForceField) At(n int) r3.Vec {
	if f.Forces != nil {
		return f.Forces[n]
	}
	return f.Force
}

// ModelSet selects the sub-models a scene creates.
//
//   - Physics creates the simulated model. It provides the force surface and
//     the ground-truth deformation; without it samples carry a zero ground truth.
//   - Network creates the prediction model that receives applied predictions;
//     without it predictions cannot be applied.
type ModelSet struct {
	Physics bool `yaml:"physics"`
	Network bool `yaml:"network"`
}

// Models exposes the node collections of a scene. Unused models are nil.
type Models struct {
	Surface        *MechanicalObject
	SparseGrid     *MechanicalObject
	NetworkSurface *MechanicalObject
	NetworkGrid    *MechanicalObject

	// Grid is the regular grid the network reads and writes. Nil when the
	// network works on the sparse grid nodes directly.
	Grid *grid.RegularGrid
}

// ForceSurface is the surface the force fields index into: the physical one
// when it exists, the network one otherwise.
func (m Models) ForceSurface() *MechanicalObject {
	if m.Surface != nil {
		return m.Surface
	}
	return m.NetworkSurface
}

// ShapeSource is the high-resolution model whose node count fixes the
// ground-truth shape.
func (m Models) ShapeSource() *MechanicalObject {
	if m.SparseGrid != nil {
		return m.SparseGrid
	}
	return m.NetworkGrid
}

// Mesh is a triangle surface with fixed topology.
type Mesh struct {
	Positions []r3.Vec
	Triangles [][3]int
}

// Scene is a simulation definition as seen by the sample pipeline. Step
// advances exactly one timestep.
type Scene interface {
	Init(ctx context.Context) error
	Step(ctx context.Context) error
	Models() Models
	ForceFields() []ForceField
	Visual() Mesh
	Close() error
}
