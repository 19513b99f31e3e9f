package sample

import (
	"fmt"

	"github.com/san-kum/deepsim/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// Applier writes predicted displacements into the prediction model.
type Applier struct {
	target *scene.MechanicalObject
	table  []int
	out    Shape
}

// NewApplier shares the output shape and grid table of e.
func NewApplier(models scene.Models, e *Extractor) *Applier {
	a := &Applier{target: models.NetworkGrid, out: e.OutputShape()}
	if m := e.Mapper(); m != nil {
		a.table = m.SparseToRegular()
	}
	return a
}

// Apply sets every prediction model node to rest + U. On a grid, U is read at
// the grid node the model node maps to.
func (a *Applier) Apply(prediction []float64) error {
	if len(prediction) != a.out.Len() {
		return fmt.Errorf("%w: got %d values, want %d", ErrPredictionLength, len(prediction), a.out.Len())
	}
	if a.target == nil {
		return ErrNoPredictionModel
	}
	for i, rest := range a.target.RestPosition {
		src := i
		if a.table != nil {
			src = a.table[i]
		}
		u := r3.Vec{X: prediction[3*src], Y: prediction[3*src+1], Z: prediction[3*src+2]}
		a.target.Position[i] = r3.Add(rest, u)
	}
	return nil
}
