package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
	steps  []int
	fail   error
}

func (r *recorder) OnInitDone(_ context.Context, _ Scene) error {
	r.events = append(r.events, "init")
	return r.fail
}

func (r *recorder) OnStepEnd(_ context.Context, _ Scene, step int) error {
	r.events = append(r.events, "step")
	r.steps = append(r.steps, step)
	return r.fail
}

func TestDriverOrder(t *testing.T) {
	b := smallBeam(t, nil)
	rec := &recorder{}
	d := NewDriver(b, rec)
	ctx := context.Background()

	require.NoError(t, d.Init(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Step(ctx))
	}
	assert.Equal(t, []string{"init", "step", "step", "step"}, rec.events)
	assert.Equal(t, []int{1, 2, 3}, rec.steps)
	assert.Equal(t, 3, d.Steps())
}

func TestDriverStepBeforeInit(t *testing.T) {
	d := NewDriver(smallBeam(t, nil), &recorder{})
	assert.Error(t, d.Step(context.Background()))
}

func TestDriverListenerError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDriver(smallBeam(t, nil), &recorder{fail: boom})
	assert.ErrorIs(t, d.Init(context.Background()), boom)
}
