package config

import "context"

// Loader turns configuration sources into the unified model. Implementations
// own the concrete format; the rest of the application only sees the model.
type Loader interface {
	// Load reads every grid file reachable from the given paths (files or
	// directories) and merges them into a single model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
