package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/deepsim/internal/dynamo"
)

// oscillator is x'' = -x laid out as [x, v].
type oscillator struct{}

func (o *oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (o *oscillator) StateDim() int   { return 2 }
func (o *oscillator) ControlDim() int { return 0 }

func integrate(integ dynamo.Integrator, steps int, dt float64) dynamo.State {
	x := dynamo.State{1.0, 0.0}
	for i := 0; i < steps; i++ {
		x = integ.Step(&oscillator{}, x, nil, float64(i)*dt, dt)
	}
	return x
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name string
		tol  float64
	}{
		{"rk4", 1e-6},
		{"verlet", 1e-3},
		{"euler", 2e-2},
	}

	dt := 0.01
	steps := 100
	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integ, err := New(tt.name)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.name, err)
			}
			x := integrate(integ, steps, dt)
			if math.Abs(x[0]-expectedX) > tt.tol {
				t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
			}
			if math.Abs(x[1]-expectedV) > tt.tol {
				t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
			}
		})
	}
}

func TestEulerBoundedEnergy(t *testing.T) {
	x := integrate(NewEuler(), 10000, 0.05)
	energy := 0.5 * (x[0]*x[0] + x[1]*x[1])
	if energy > 0.6 || energy < 0.4 {
		t.Errorf("semi-implicit euler drifted: energy %.4f", energy)
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := New("leapfrog4")
	if !errors.Is(err, dynamo.ErrUnknownIntegrator) {
		t.Errorf("expected ErrUnknownIntegrator, got %v", err)
	}
	if len(Names()) != 3 {
		t.Errorf("expected 3 integrators, got %v", Names())
	}
}
