package visual

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/deepsim/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrUnknownObject = errors.New("visual: unknown object")
	ErrVertexCount   = errors.New("visual: vertex count changed")
)

// Object is a mesh registered with a Factory.
type Object struct {
	ID        int
	Color     string
	Positions []r3.Vec
	Triangles [][3]int
}

// Update lists the vertices of an object that moved since the last update.
type Update struct {
	ObjectID  int
	Indices   []int
	Positions []r3.Vec
}

func (u Update) Empty() bool { return len(u.Indices) == 0 }

// Sink receives the meshes of one worker instance.
type Sink interface {
	Init(ctx context.Context, instanceID int, objects []Object) error
	Update(ctx context.Context, instanceID int, updates []Update) error
	Close() error
}

// Factory tracks the last published positions of every mesh so updates only
// carry moved vertices. Object ids are assigned from 0 in AddMesh order.
type Factory struct {
	objects []Object
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) AddMesh(m scene.Mesh, color string) int {
	id := len(f.objects)
	f.objects = append(f.objects, Object{
		ID:        id,
		Color:     color,
		Positions: append([]r3.Vec(nil), m.Positions...),
		Triangles: m.Triangles,
	})
	return id
}

// Objects returns a snapshot of every registered mesh.
func (f *Factory) Objects() []Object {
	out := make([]Object, len(f.objects))
	for i, o := range f.objects {
		o.Positions = append([]r3.Vec(nil), o.Positions...)
		out[i] = o
	}
	return out
}

// UpdateMesh records new positions for object id and returns the delta.
func (f *Factory) UpdateMesh(id int, positions []r3.Vec) (Update, error) {
	if id < 0 || id >= len(f.objects) {
		return Update{}, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	obj := &f.objects[id]
	if len(positions) != len(obj.Positions) {
		return Update{}, fmt.Errorf("%w: object %d has %d vertices, got %d", ErrVertexCount, id, len(obj.Positions), len(positions))
	}

	u := Update{ObjectID: id}
	for i, p := range positions {
		if p != obj.Positions[i] {
			u.Indices = append(u.Indices, i)
			u.Positions = append(u.Positions, p)
			obj.Positions[i] = p
		}
	}
	return u, nil
}

// Flatten packs positions as x0, y0, z0, x1, ...
func Flatten(ps []r3.Vec) []float64 {
	out := make([]float64, 0, 3*len(ps))
	for _, p := range ps {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

func Unflatten(data []float64) ([]r3.Vec, error) {
	if len(data)%3 != 0 {
		return nil, fmt.Errorf("%d values do not form 3d positions", len(data))
	}
	out := make([]r3.Vec, len(data)/3)
	for i := range out {
		out[i] = r3.Vec{X: data[3*i], Y: data[3*i+1], Z: data[3*i+2]}
	}
	return out, nil
}
