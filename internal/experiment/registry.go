package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/rolltune/internal/control"
	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/integrators"
)

type Registry struct {
	integrators map[string]func() dynamo.Integrator
	controllers map[string]func(control.Config) FinController
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
		controllers: make(map[string]func(control.Config) FinController),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	r.controllers["roll"] = func(cfg control.Config) FinController { return control.NewRoll(cfg) }
	r.controllers["none"] = func(cfg control.Config) FinController { return control.NewNone(cfg.StartTime) }

	return r
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetController(name string, cfg control.Config) (FinController, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	return fn(cfg), nil
}

func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }

func (r *Registry) ListControllers() []string { return sortedKeys(r.controllers) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
