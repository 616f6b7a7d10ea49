// Package sleep provides the 'sleep' job runner: it blocks for a duration.
// Handy for shaping grid timing in demos and tests.
package sleep

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the sleep runner.
type Input struct {
	Duration string `hcl:"duration"`
}

// OnRunSleep is the handler for the 'sleep' runner.
func OnRunSleep(ctx context.Context, input any) error {
	in := input.(*Input)
	d, err := time.ParseDuration(in.Duration)
	if err != nil {
		return fmt.Errorf("failed to parse duration: %w", err)
	}

	ctxlog.FromContext(ctx).Info("Sleeping", "duration", d.String())
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("sleep", &registry.Runner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunSleep,
	})
}
