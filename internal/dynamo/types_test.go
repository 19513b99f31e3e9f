package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

type twoBody struct{}

func (twoBody) Derive(x State, _ Control, _ float64) State { return make(State, len(x)) }
func (twoBody) StateDim() int                              { return 4 }
func (twoBody) ControlDim() int                            { return 2 }

func TestCheckDims(t *testing.T) {
	tests := []struct {
		name string
		x    State
		u    Control
		ok   bool
	}{
		{"fits", make(State, 4), make(Control, 2), true},
		{"short state", make(State, 3), make(Control, 2), false},
		{"long control", make(State, 4), make(Control, 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDims(twoBody{}, tt.x, tt.u)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("expected dimension mismatch, got %v", err)
			}
		})
	}
}
