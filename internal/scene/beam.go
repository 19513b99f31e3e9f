package scene

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/deepsim/internal/dynamo"
	"github.com/san-kum/deepsim/internal/grid"
	"github.com/san-kum/deepsim/internal/integrators"
	"github.com/san-kum/deepsim/internal/physics"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrInvalidConfig = errors.New("scene: invalid configuration")

// BeamConfig describes a cantilever beam clamped at its minimum x face and
// pushed by random surface force fields.
type BeamConfig struct {
	Cells      [3]int  `yaml:"cells"`
	Spacing    float64 `yaml:"spacing"`
	Integrator string  `yaml:"integrator"`
	Dt         float64 `yaml:"dt"`
	Substeps   int     `yaml:"substeps"`

	Mass      float64 `yaml:"mass"`
	Stiffness float64 `yaml:"stiffness"`
	Damping   float64 `yaml:"damping"`

	ForceFields    int     `yaml:"force_fields"`
	ForceMagnitude float64 `yaml:"force_magnitude"`
	ForceRadius    float64 `yaml:"force_radius"`
	ForcePeriod    int     `yaml:"force_period"`

	// GridMapped makes the network work on a regular grid covering the beam
	// with GridMargin extra cells on each side.
	GridMapped bool `yaml:"grid_mapped"`
	GridMargin int  `yaml:"grid_margin"`

	Models ModelSet `yaml:"models"`
	Seed   int64    `yaml:"seed"`
}

func DefaultBeamConfig() BeamConfig {
	return BeamConfig{
		Cells:          [3]int{8, 2, 2},
		Spacing:        0.25,
		Integrator:     "rk4",
		Dt:             0.01,
		Substeps:       2,
		Mass:           physics.DefaultMass,
		Stiffness:      physics.DefaultStiffness,
		Damping:        physics.DefaultDamping,
		ForceFields:    1,
		ForceMagnitude: 5,
		ForceRadius:    0.3,
		ForcePeriod:    50,
		GridMargin:     1,
		Models:         ModelSet{Physics: true, Network: true},
		Seed:           1,
	}
}

func (c BeamConfig) Validate() error {
	for _, n := range c.Cells {
		if n < 1 {
			return fmt.Errorf("%w: cells %v", ErrInvalidConfig, c.Cells)
		}
	}
	if c.Spacing <= 0 || c.Dt <= 0 || c.Substeps < 1 {
		return fmt.Errorf("%w: spacing, dt and substeps must be positive", ErrInvalidConfig)
	}
	if c.Mass <= 0 || c.Stiffness < 0 || c.Damping < 0 {
		return fmt.Errorf("%w: mass must be positive, stiffness and damping non-negative", ErrInvalidConfig)
	}
	if c.ForceFields < 0 || c.ForcePeriod < 1 || c.ForceRadius < 0 {
		return fmt.Errorf("%w: bad force field settings", ErrInvalidConfig)
	}
	if c.GridMargin < 0 {
		return fmt.Errorf("%w: grid margin %d", ErrInvalidConfig, c.GridMargin)
	}
	if !c.Models.Physics && !c.Models.Network {
		return fmt.Errorf("%w: no model enabled", ErrInvalidConfig)
	}
	if _, err := integrators.New(c.Integrator); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Beam is an elastic beam scene. The physical model is an ElasticLattice
// whose nodes form the sparse grid; its boundary nodes form the surface.
type Beam struct {
	cfg BeamConfig

	lattice   *physics.ElasticLattice
	integ     dynamo.Integrator
	state     dynamo.State
	control   dynamo.Control
	surface   []int
	triangles [][3]int

	models Models
	fields []ForceField
	rng    *rand.Rand
	t      float64
	step   int
}

// NewBeam validates cfg. The lattice is built by Init.
func NewBeam(cfg BeamConfig) (*Beam, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Beam{cfg: cfg}, nil
}

func (b *Beam) Config() BeamConfig { return b.cfg }

func (b *Beam) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := b.cfg
	l := physics.NewElasticLattice(r3.Vec{}, cfg.Spacing, cfg.Cells)
	l.Mass = cfg.Mass
	l.Stiffness = cfg.Stiffness
	l.Damping = cfg.Damping
	l.FixWhere(func(p r3.Vec) bool { return p.X == 0 })

	integ, err := integrators.New(cfg.Integrator)
	if err != nil {
		return err
	}

	b.lattice = l
	b.integ = integ
	b.state = l.InitialState()
	b.control = make(dynamo.Control, l.ControlDim())
	b.surface = l.SurfaceNodes()
	b.triangles = l.SurfaceTriangles()
	b.rng = rand.New(rand.NewSource(cfg.Seed))
	b.t = 0
	b.step = 0

	surfaceRest := make([]r3.Vec, len(b.surface))
	for i, n := range b.surface {
		surfaceRest[i] = l.Rest[n]
	}

	b.models = Models{}
	if cfg.Models.Physics {
		b.models.Surface = NewMechanicalObject(surfaceRest)
		b.models.SparseGrid = NewMechanicalObject(l.Rest)
	}
	if cfg.Models.Network {
		b.models.NetworkSurface = NewMechanicalObject(surfaceRest)
		b.models.NetworkGrid = NewMechanicalObject(l.Rest)
	}
	if cfg.GridMapped {
		g, err := grid.Covering(l.Rest, cfg.Spacing, cfg.GridMargin)
		if err != nil {
			return fmt.Errorf("grid: %w", err)
		}
		b.models.Grid = g
	}

	b.resampleForces()
	return nil
}

// Step advances the beam by one timestep. Force fields are resampled every
// ForcePeriod steps.
func (b *Beam) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.lattice == nil {
		return fmt.Errorf("beam: step before init")
	}
	if b.step > 0 && b.step%b.cfg.ForcePeriod == 0 {
		b.resampleForces()
	}
	b.syncNetworkSurface()

	if b.cfg.Models.Physics {
		b.fillControl()
		if err := dynamo.CheckDims(b.lattice, b.state, b.control); err != nil {
			return &dynamo.SimulationError{Step: b.step + 1, Time: b.t, Wrapped: err}
		}
		h := b.cfg.Dt / float64(b.cfg.Substeps)
		for s := 0; s < b.cfg.Substeps; s++ {
			b.state = b.integ.Step(b.lattice, b.state, b.control, b.t, h)
			b.t += h
		}
		if !b.state.IsValid() {
			return &dynamo.SimulationError{Step: b.step + 1, Time: b.t, Wrapped: dynamo.ErrInvalidState}
		}
		pos := b.lattice.Positions(b.state)
		copy(b.models.SparseGrid.Position, pos)
		for i, n := range b.surface {
			b.models.Surface.Position[i] = pos[n]
		}
	} else {
		b.t += b.cfg.Dt
	}
	b.step++
	return nil
}

func (b *Beam) Models() Models { return b.models }

func (b *Beam) ForceFields() []ForceField { return b.fields }

// Visual is the beam boundary. It follows the physical model when there is
// one, the prediction model otherwise.
func (b *Beam) Visual() Mesh {
	src := b.models.ShapeSource()
	if src == nil {
		return Mesh{}
	}
	pos := make([]r3.Vec, len(src.Position))
	copy(pos, src.Position)
	return Mesh{Positions: pos, Triangles: b.triangles}
}

func (b *Beam) Close() error {
	b.lattice = nil
	b.state = nil
	b.control = nil
	b.fields = nil
	return nil
}

// resampleForces draws new force fields. Each field pushes the free surface
// nodes within ForceRadius of a random free surface node, all in one random
// direction.
func (b *Beam) resampleForces() {
	var free []int
	for i, n := range b.surface {
		if !b.lattice.Fixed[n] {
			free = append(free, i)
		}
	}
	b.fields = nil
	if len(free) == 0 {
		return
	}
	for f := 0; f < b.cfg.ForceFields; f++ {
		center := b.lattice.Rest[b.surface[free[b.rng.Intn(len(free))]]]
		var indices []int
		for _, i := range free {
			if r3.Norm(r3.Sub(b.lattice.Rest[b.surface[i]], center)) <= b.cfg.ForceRadius {
				indices = append(indices, i)
			}
		}
		mag := b.cfg.ForceMagnitude * (0.5 + 0.5*b.rng.Float64())
		b.fields = append(b.fields, ForceField{
			Indices: indices,
			Force:   r3.Scale(mag, b.randomDirection()),
		})
	}
}

func (b *Beam) randomDirection() r3.Vec {
	for {
		v := r3.Vec{X: 2*b.rng.Float64() - 1, Y: 2*b.rng.Float64() - 1, Z: 2*b.rng.Float64() - 1}
		n := r3.Norm(v)
		if n > 1e-3 && n <= 1 {
			return r3.Scale(1/n, v)
		}
	}
}

func (b *Beam) fillControl() {
	for i := range b.control {
		b.control[i] = 0
	}
	for _, f := range b.fields {
		for n, idx := range f.Indices {
			node := b.surface[idx]
			v := f.At(n)
			b.control[3*node] += v.X
			b.control[3*node+1] += v.Y
			b.control[3*node+2] += v.Z
		}
	}
}

// syncNetworkSurface copies the surface nodes of the prediction model so the
// network surface follows the last applied prediction.
func (b *Beam) syncNetworkSurface() {
	if b.models.NetworkGrid == nil {
		return
	}
	for i, n := range b.surface {
		b.models.NetworkSurface.Position[i] = b.models.NetworkGrid.Position[n]
	}
}

// MaxDisplacement is the largest node displacement of the physical model.
func (b *Beam) MaxDisplacement() float64 {
	if b.models.SparseGrid == nil {
		return 0
	}
	m := 0.0
	for i, p := range b.models.SparseGrid.Position {
		m = math.Max(m, r3.Norm(r3.Sub(p, b.models.SparseGrid.RestPosition[i])))
	}
	return m
}
