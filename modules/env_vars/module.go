// Package env_vars provides the 'env_vars' job runner: it reports the
// process environment, optionally filtered by prefix.
package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the env_vars runner.
type Input struct {
	Prefix string `hcl:"prefix,optional"`
}

// OnRunEnvVars is the handler for the 'env_vars' runner.
func OnRunEnvVars(ctx context.Context, input any) error {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx)

	matched := 0
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 {
			continue
		}
		if in.Prefix != "" && !strings.HasPrefix(pair[0], in.Prefix) {
			continue
		}
		matched++
		logger.Info("Environment variable", "name", pair[0], "value", pair[1])
	}
	logger.Info("Environment scanned", "matched", matched, "prefix", in.Prefix)
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("env_vars", &registry.Runner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunEnvVars,
	})
}
