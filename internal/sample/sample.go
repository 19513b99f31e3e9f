package sample

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShapeMismatch is a configuration error: models, force indices or
	// arrays disagree with the shapes fixed at init.
	ErrShapeMismatch = errors.New("sample: shape mismatch")

	// ErrPredictionLength means a prediction does not have the size of the
	// output shape. The two ends of the session disagree on the data layout.
	ErrPredictionLength = errors.New("sample: prediction length mismatch")

	ErrNoPredictionModel = errors.New("sample: scene has no prediction model")
)

// Shape is the layout of a sample array: Nodes rows of three components.
type Shape struct {
	Nodes int `json:"nodes"`
}

func (s Shape) Len() int { return 3 * s.Nodes }

func (s Shape) Dims() []int { return []int{s.Nodes, 3} }

// Sample is one (input, ground truth) pair produced at the end of a step.
type Sample struct {
	Step        int
	Input       *mat.Dense
	GroundTruth *mat.Dense
}

// Encoding decides when a grid node counts as already written while forces
// are encoded on a regular grid. The first writer wins either way.
type Encoding int

const (
	// FirstNonZero treats a node as written once its force is non-zero. A
	// zero force written first is overwritten by a later one.
	FirstNonZero Encoding = iota
	// FirstSet marks a node as written by any force, zero included.
	FirstSet
)

func (e Encoding) String() string {
	switch e {
	case FirstNonZero:
		return "first-nonzero"
	case FirstSet:
		return "first-set"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "first-nonzero":
		return FirstNonZero, nil
	case "first-set":
		return FirstSet, nil
	default:
		return 0, fmt.Errorf("sample: unknown encoding %q", s)
	}
}

// Fill decides what the ground truth holds at grid nodes that no simulated
// node maps to.
type Fill int

const (
	// FillZero starts the grid positions at the origin, so unreached nodes
	// report minus their rest position.
	FillZero Fill = iota
	// FillRest starts the grid positions at the rest shape, so unreached
	// nodes report no displacement.
	FillRest
)

func (f Fill) String() string {
	switch f {
	case FillZero:
		return "zero"
	case FillRest:
		return "rest"
	default:
		return fmt.Sprintf("Fill(%d)", int(f))
	}
}

func ParseFill(s string) (Fill, error) {
	switch s {
	case "", "zero":
		return FillZero, nil
	case "rest":
		return FillRest, nil
	default:
		return 0, fmt.Errorf("sample: unknown output fill %q", s)
	}
}

// Flatten returns the row-major contents of m.
func Flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// FromFlat wraps data as an array of the given shape.
func FromFlat(s Shape, data []float64) (*mat.Dense, error) {
	if s.Nodes <= 0 || len(data) != s.Len() {
		return nil, fmt.Errorf("%w: %d values for %d nodes", ErrShapeMismatch, len(data), s.Nodes)
	}
	return mat.NewDense(s.Nodes, 3, data), nil
}
