// Package registry holds the job runners available to a grid. Runner modules
// self-register at startup; the grid references them by name.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/asyncgridgo/internal/config"
)

// Module is the interface all runner modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Runner holds the compiled Go parts of a job runner: an input factory and
// the handler invoked for every job using this runner.
type Runner struct {
	// NewInput returns a pointer to a fresh input struct the job's arguments
	// are decoded into. Nil input means the runner takes no arguments.
	NewInput func() any
	// Fn executes one job with its decoded input.
	Fn func(ctx context.Context, input any) error
}

// Registry maps runner names to their handlers for one application instance.
type Registry struct {
	runners map[string]*Runner
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{runners: make(map[string]*Runner)}
}

// RegisterRunner registers a runner handler. Registering the same name twice
// is a programmer error.
func (r *Registry) RegisterRunner(name string, runner *Runner) {
	if _, exists := r.runners[name]; exists {
		panic(fmt.Sprintf("runner with name '%s' already registered", name))
	}
	slog.Debug("Registering runner.", "name", name)
	r.runners[name] = runner
}

// Runner looks up a handler by name.
func (r *Registry) Runner(name string) (*Runner, bool) {
	runner, ok := r.runners[name]
	return runner, ok
}

// Validate checks the integrity of a grid against the registry: every job
// must reference a registered runner and every dependency must name a job
// that exists in the grid.
func (r *Registry) Validate(model *config.Model) error {
	if model == nil || model.Grid == nil {
		return fmt.Errorf("no grid loaded")
	}
	names := make(map[string]bool, len(model.Grid.Jobs))
	for _, spec := range model.Grid.Jobs {
		names[spec.Name] = true
	}
	for _, spec := range model.Grid.Jobs {
		if _, ok := r.runners[spec.Runner]; !ok {
			return fmt.Errorf("job %q uses unknown runner %q", spec.Name, spec.Runner)
		}
		for _, dep := range spec.DependsOn {
			if !names[dep] {
				return fmt.Errorf("job %q depends on undefined job %q", spec.Name, dep)
			}
			if dep == spec.Name {
				return fmt.Errorf("job %q depends on itself", spec.Name)
			}
		}
	}
	return nil
}
