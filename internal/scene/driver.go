package scene

import (
	"context"
	"fmt"
)

// Listener receives the lifecycle notifications of a running scene.
type Listener interface {
	OnInitDone(ctx context.Context, sc Scene) error
	OnStepEnd(ctx context.Context, sc Scene, step int) error
}

// Driver advances a scene and notifies its listener at the matching
// lifecycle points, synchronously and in order.
type Driver struct {
	scene    Scene
	listener Listener
	steps    int
	ready    bool
}

func NewDriver(sc Scene, l Listener) *Driver {
	return &Driver{scene: sc, listener: l}
}

func (d *Driver) Init(ctx context.Context) error {
	if err := d.scene.Init(ctx); err != nil {
		return fmt.Errorf("scene init: %w", err)
	}
	d.ready = true
	return d.listener.OnInitDone(ctx, d.scene)
}

// Step advances the scene by one timestep, then reports the step end.
func (d *Driver) Step(ctx context.Context) error {
	if !d.ready {
		return fmt.Errorf("scene step before init")
	}
	if err := d.scene.Step(ctx); err != nil {
		return fmt.Errorf("scene step %d: %w", d.steps+1, err)
	}
	d.steps++
	return d.listener.OnStepEnd(ctx, d.scene, d.steps)
}

// Steps is the number of completed timesteps.
func (d *Driver) Steps() int { return d.steps }

func (d *Driver) Scene() Scene { return d.scene }
