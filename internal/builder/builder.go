// Package builder turns a validated grid model into loader jobs.
package builder

import (
	"context"
	"fmt"

	"github.com/gammazero/toposort"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/asyncgridgo/internal/config"
	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/loader"
	"github.com/vk/asyncgridgo/internal/registry"
)

// Build instantiates a loader job for every grid job. Dependency sets are
// fixed at job construction, so jobs are created in topological order; the
// loader re-checks acyclicity with precise diagnostics at schedule time.
func Build(ctx context.Context, model *config.Model, reg *registry.Registry) ([]*loader.Job, error) {
	logger := ctxlog.FromContext(ctx)

	if err := reg.Validate(model); err != nil {
		return nil, err
	}

	specs := make(map[string]*config.JobSpec, len(model.Grid.Jobs))
	var edges []toposort.Edge
	for _, spec := range model.Grid.Jobs {
		specs[spec.Name] = spec
		if len(spec.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, spec.Name})
			continue
		}
		for _, dep := range spec.DependsOn {
			edges = append(edges, toposort.Edge{dep, spec.Name})
		}
	}

	order, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("grid contains a dependency cycle: %w", err)
	}

	byName := make(map[string]*loader.Job, len(specs))
	jobs := make([]*loader.Job, 0, len(specs))
	for _, id := range order {
		if id == nil {
			continue
		}
		spec := specs[id.(string)]
		job, err := buildJob(ctx, spec, reg, byName)
		if err != nil {
			return nil, err
		}
		byName[spec.Name] = job
		jobs = append(jobs, job)
	}
	logger.Debug("Grid jobs built.", "count", len(jobs))
	return jobs, nil
}

// buildJob resolves one spec into a loader job bound to its runner. Every
// dependency is already present in byName thanks to the topological order.
func buildJob(ctx context.Context, spec *config.JobSpec, reg *registry.Registry, byName map[string]*loader.Job) (*loader.Job, error) {
	runner, _ := reg.Runner(spec.Runner)

	var input any
	if runner.NewInput != nil {
		input = runner.NewInput()
		if spec.Arguments != nil {
			if diags := gohcl.DecodeBody(spec.Arguments, nil, input); diags.HasErrors() {
				return nil, fmt.Errorf("arguments of job %q: %w", spec.Name, diags)
			}
		}
	}

	fn := func(self *loader.Job) error {
		logger := ctxlog.FromContext(ctx).With("job", self.Name, "runner", spec.Runner)
		logger.Info("▶️ Starting job")
		if err := runner.Fn(ctx, input); err != nil {
			logger.Error("Job runner failed.", "error", err)
			return err
		}
		logger.Info("✅ Job finished")
		return nil
	}

	deps := make([]*loader.Job, 0, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		deps = append(deps, byName[dep])
	}
	return loader.NewJobWithPriority(deps, spec.Name, spec.Priority, fn), nil
}
