package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control carries the external input of a system for one step. For the
// elastic models it is the flattened per-node external force.
type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// CheckDims reports a state or control whose length does not fit sys.
func CheckDims(sys System, x State, u Control) error {
	if len(x) != sys.StateDim() {
		return fmt.Errorf("%w: state has %d values, want %d", ErrDimensionMismatch, len(x), sys.StateDim())
	}
	if len(u) != sys.ControlDim() {
		return fmt.Errorf("%w: control has %d values, want %d", ErrDimensionMismatch, len(u), sys.ControlDim())
	}
	return nil
}
