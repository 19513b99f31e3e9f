package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/deepsim/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

var steppers = map[string]func() dynamo.Integrator{
	"euler":  func() dynamo.Integrator { return NewEuler() },
	"rk4":    func() dynamo.Integrator { return NewRK4() },
	"verlet": func() dynamo.Integrator { return NewVerlet() },
}

// New returns a fresh stepper registered under name.
func New(name string) (dynamo.Integrator, error) {
	fn, ok := steppers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownIntegrator, name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(steppers))
	for name := range steppers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Euler is the semi-implicit Euler stepper. Velocities are advanced first and
// positions are advanced with the new velocities, which keeps stiff spring
// lattices bounded where the explicit scheme blows up.
// The state must be laid out as [positions..., velocities...].
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	half := len(x) / 2
	dx := dyn.Derive(x, u, t)

	next := make(dynamo.State, len(x))
	floats.AddScaledTo(next[half:], x[half:], dt, dx[half:])
	floats.AddScaledTo(next[:half], x[:half], dt, next[half:])
	return next
}

type RK4 struct {
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	if len(r.scratch) != len(x) {
		r.scratch = make(dynamo.State, len(x))
	}
	halfDt := dt * 0.5

	k1 := dyn.Derive(x, u, t)
	floats.AddScaledTo(r.scratch, x, halfDt, k1)
	k2 := dyn.Derive(r.scratch, u, t+halfDt)
	floats.AddScaledTo(r.scratch, x, halfDt, k2)
	k3 := dyn.Derive(r.scratch, u, t+halfDt)
	floats.AddScaledTo(r.scratch, x, dt, k3)
	k4 := dyn.Derive(r.scratch, u, t+dt)

	next := x.Clone()
	floats.AddScaled(next, dt/6, k1)
	floats.AddScaled(next, dt/3, k2)
	floats.AddScaled(next, dt/3, k3)
	floats.AddScaled(next, dt/6, k4)
	return next
}

// Verlet is velocity Verlet over a [positions..., velocities...] state.
type Verlet struct {
	scratch dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	half := n / 2
	if len(v.scratch) != n {
		v.scratch = make(dynamo.State, n)
	}

	dx := dyn.Derive(x, u, t)
	next := make(dynamo.State, n)

	// x(t+dt) = x + v dt + a dt^2/2
	floats.AddScaledTo(next[:half], x[:half], dt, x[half:])
	floats.AddScaled(next[:half], 0.5*dt*dt, dx[half:])

	copy(v.scratch[:half], next[:half])
	copy(v.scratch[half:], x[half:])
	dxNew := dyn.Derive(v.scratch, u, t+dt)

	floats.AddScaledTo(next[half:], x[half:], 0.5*dt, dx[half:])
	floats.AddScaled(next[half:], 0.5*dt, dxNew[half:])
	return next
}
