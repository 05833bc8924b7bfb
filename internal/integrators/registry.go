package integrators

import (
	"fmt"
	"sort"

	"github.com/myth/coroner/internal/dynamo"
)

const Default = "rk4"

var registry = map[string]func() dynamo.Integrator{
	"rk4":    func() dynamo.Integrator { return NewRK4() },
	"dopri5": func() dynamo.Integrator { return NewDOPRI5() },
	"euler":  func() dynamo.Integrator { return NewEuler() },
}

// New returns a fresh integrator for name.
func New(name string) (dynamo.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", dynamo.ErrUnknownIntegrator, name, Names())
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
