package sample

import (
	"fmt"

	"github.com/san-kum/deepsim/internal/grid"
	"github.com/san-kum/deepsim/internal/scene"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

type Options struct {
	Encoding      Encoding
	Fill          Fill
	GridTolerance float64
}

// Extractor turns scene state into samples. In direct mode arrays follow the
// scene nodes one to one; when the scene has a regular grid the arrays live on
// the grid nodes and the Mapper translates between the two.
type Extractor struct {
	models   scene.Models
	mapper   *grid.Mapper
	encoding Encoding
	fill     Fill
	in, out  Shape
}

// NewExtractor fixes the input and output shapes from the scene models. They
// never change afterwards.
func NewExtractor(models scene.Models, opts Options) (*Extractor, error) {
	force := models.ForceSurface()
	src := models.ShapeSource()
	if force == nil || src == nil || force.Len() == 0 || src.Len() == 0 {
		return nil, fmt.Errorf("%w: scene has no nodes", ErrShapeMismatch)
	}
	if models.SparseGrid != nil && models.NetworkGrid != nil && models.SparseGrid.Len() != models.NetworkGrid.Len() {
		return nil, fmt.Errorf("%w: physical grid has %d nodes, prediction grid %d",
			ErrShapeMismatch, models.SparseGrid.Len(), models.NetworkGrid.Len())
	}

	e := &Extractor{models: models, encoding: opts.Encoding, fill: opts.Fill}
	if models.Grid == nil {
		e.in = Shape{Nodes: force.Len()}
		e.out = Shape{Nodes: src.Len()}
		return e, nil
	}

	tol := opts.GridTolerance
	if tol <= 0 {
		tol = grid.DefaultTolerance
	}
	m, err := grid.NewMapper(models.Grid, src.RestPosition, tol)
	if err != nil {
		return nil, err
	}
	e.mapper = m
	e.in = Shape{Nodes: m.NodeCount()}
	e.out = e.in
	return e, nil
}

func (e *Extractor) InputShape() Shape { return e.in }

func (e *Extractor) OutputShape() Shape { return e.out }

// Mapper is nil in direct mode.
func (e *Extractor) Mapper() *grid.Mapper { return e.mapper }

func (e *Extractor) Encoding() Encoding { return e.encoding }

func (e *Extractor) Fill() Fill { return e.fill }

// ComputeInput encodes the force fields. In direct mode each force lands on
// its surface node. In grid mode it lands on the eight corners of the cell
// that contains the node at rest, and the first force written to a corner
// wins.
func (e *Extractor) ComputeInput(fields []scene.ForceField) (*mat.Dense, error) {
	in := mat.NewDense(e.in.Nodes, 3, nil)
	surface := e.models.ForceSurface()

	if e.mapper == nil {
		for _, f := range fields {
			if err := checkField(f, surface.Len()); err != nil {
				return nil, err
			}
			for n, idx := range f.Indices {
				setRow(in, idx, f.At(n))
			}
		}
		return in, nil
	}

	written := make([]bool, e.in.Nodes)
	for _, f := range fields {
		if err := checkField(f, surface.Len()); err != nil {
			return nil, err
		}
		for n, idx := range f.Indices {
			cell, err := e.mapper.CellIndexContaining(surface.RestPosition[idx])
			if err != nil {
				return nil, fmt.Errorf("force node %d: %w", idx, err)
			}
			force := f.At(n)
			for _, node := range e.mapper.NodeIndicesOf(cell) {
				switch e.encoding {
				case FirstSet:
					if written[node] {
						continue
					}
					written[node] = true
				default:
					if r3.Norm(row(in, node)) != 0 {
						continue
					}
				}
				setRow(in, node, force)
			}
		}
	}
	return in, nil
}

// ComputeOutput is the ground-truth displacement of the physical model. A
// scene without a physical model yields zeros.
func (e *Extractor) ComputeOutput() *mat.Dense {
	out := mat.NewDense(e.out.Nodes, 3, nil)
	src := e.models.SparseGrid
	if src == nil {
		return out
	}

	if e.mapper == nil {
		for i, p := range src.Position {
			setRow(out, i, r3.Sub(p, src.RestPosition[i]))
		}
		return out
	}

	rest := e.mapper.RestShape()
	actual := make([]r3.Vec, len(rest))
	if e.fill == FillRest {
		copy(actual, rest)
	}
	for i, node := range e.mapper.SparseToRegular() {
		actual[node] = src.Position[i]
	}
	for i := range actual {
		setRow(out, i, r3.Sub(actual[i], rest[i]))
	}
	return out
}

// Extract builds the sample of the given step.
func (e *Extractor) Extract(step int, fields []scene.ForceField) (Sample, error) {
	in, err := e.ComputeInput(fields)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Step: step, Input: in, GroundTruth: e.ComputeOutput()}, nil
}

func checkField(f scene.ForceField, n int) error {
	if f.Forces != nil && len(f.Forces) != len(f.Indices) {
		return fmt.Errorf("%w: %d forces for %d indices", ErrShapeMismatch, len(f.Forces), len(f.Indices))
	}
	for _, idx := range f.Indices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: force index %d outside surface of %d nodes", ErrShapeMismatch, idx, n)
		}
	}
	return nil
}

func row(m *mat.Dense, i int) r3.Vec {
	r := m.RawRowView(i)
	return r3.Vec{X: r[0], Y: r[1], Z: r[2]}
}

func setRow(m *mat.Dense, i int, v r3.Vec) {
	r := m.RawRowView(i)
	r[0], r[1], r[2] = v.X, v.Y, v.Z
}
