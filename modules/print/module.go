// Package print provides the 'print' job runner: it writes its arguments to
// standard output. Useful for smoke-testing a grid.
package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print runner.
type Input struct {
	Message string            `hcl:"message,optional"`
	Values  map[string]string `hcl:"values,optional"`
}

// OnRunPrint is the handler for the 'print' runner.
func OnRunPrint(ctx context.Context, input any) error {
	in := input.(*Input)
	ctxlog.FromContext(ctx).Debug("Printing input")

	if in.Message != "" {
		fmt.Println(in.Message)
	}

	// Sort keys for consistent output.
	keys := make([]string, 0, len(in.Values))
	for k := range in.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("      %s = %q\n", k, in.Values[k])
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("print", &registry.Runner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunPrint,
	})
}
