package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/asyncgridgo/internal/config"
	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/registry"
	"github.com/vk/asyncgridgo/modules/env_vars"
	"github.com/vk/asyncgridgo/modules/http_request"
	"github.com/vk/asyncgridgo/modules/print"
	"github.com/vk/asyncgridgo/modules/sleep"
	"github.com/vk/asyncgridgo/modules/socketio"
)

// coreModules are the job runners shipped with the binary.
var coreModules = []registry.Module{
	&print.Module{},
	&env_vars.Module{},
	&sleep.Module{},
	&http_request.Module{},
	&socketio.Module{},
}

// App encapsulates the application's dependencies, configuration and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
	model    *config.Model
}

// NewApp constructs the application: isolated logger, populated registry and
// a loaded, validated grid model. Configuration problems are fatal startup
// errors and panic; the caller recovers to produce a clean exit.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.GridPath)
	if err != nil {
		panic(fmt.Errorf("failed to load grid: %w", err))
	}
	logger.Debug("Grid configuration loaded.", "jobs", len(model.Grid.Jobs))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("Runner modules registered.", "count", len(modules))

	if err := reg.Validate(model); err != nil {
		panic(fmt.Errorf("grid validation failed: %w", err))
	}
	logger.Debug("Grid validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   appConfig,
		model:    model,
	}
}

// Registry returns the application's registry. Primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
