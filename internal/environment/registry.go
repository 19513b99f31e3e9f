package environment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/deepsim/internal/config"
	"github.com/san-kum/deepsim/internal/scene"
)

var ErrUnknownEnvironment = errors.New("environment: unknown environment")

// Factory builds the scene of one worker instance.
type Factory func(cfg scene.BeamConfig) (scene.Scene, error)

type Info struct {
	Name        string
	Description string
}

type entry struct {
	info Info
	fn   Factory
}

// Registry maps environment class names to scene factories.
type Registry struct {
	envs map[string]entry
}

// NewRegistry returns a registry holding the built-in environments.
func NewRegistry() *Registry {
	r := &Registry{envs: make(map[string]entry)}

	r.Register("BeamTraining", "beam, network reads the lattice nodes directly",
		func(cfg scene.BeamConfig) (scene.Scene, error) {
			cfg.GridMapped = false
			cfg.Models = scene.ModelSet{Physics: true, Network: true}
			return scene.NewBeam(cfg)
		})
	r.Register("BeamGridTraining", "beam, network works on a regular grid around it",
		func(cfg scene.BeamConfig) (scene.Scene, error) {
			cfg.GridMapped = true
			cfg.Models = scene.ModelSet{Physics: true, Network: true}
			return scene.NewBeam(cfg)
		})
	r.Register("BeamPrediction", "beam driven by predictions only, no ground truth",
		func(cfg scene.BeamConfig) (scene.Scene, error) {
			cfg.Models = scene.ModelSet{Network: true}
			return scene.NewBeam(cfg)
		})
	return r
}

// Register adds or replaces an environment.
func (r *Registry) Register(name, description string, fn Factory) {
	r.envs[name] = entry{info: Info{Name: name, Description: description}, fn: fn}
}

// New builds the scene for instanceID. Instances draw different forces from
// the same configuration.
func (r *Registry) New(name string, cfg *config.Config, instanceID int) (scene.Scene, error) {
	e, ok := r.envs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}
	sc := cfg.Scene
	sc.Seed += int64(instanceID)
	return e.fn(sc)
}

func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.envs))
	for _, e := range r.envs {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
