// Package hcl loads job grids written in HCL and translates them into the
// format-agnostic config model.
package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"golang.org/x/sync/errgroup"

	"github.com/vk/asyncgridgo/internal/config"
	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// gridFile mirrors the top-level structure of a single .hcl grid file.
type gridFile struct {
	Jobs []*jobBlock `hcl:"job,block"`
}

// jobBlock mirrors a `job "<runner>" "<name>" { ... }` block.
type jobBlock struct {
	Runner    string          `hcl:"runner,label"`
	Name      string          `hcl:"name,label"`
	Priority  *int64          `hcl:"priority,optional"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Arguments *argumentsBlock `hcl:"arguments,block"`
	DeclRange hcl.Range
}

// argumentsBlock keeps the runner arguments as a raw body; it is decoded
// against the runner's input struct only when the job is built.
type argumentsBlock struct {
	Remain hcl.Body `hcl:",remain"`
}

// Load implements config.Loader. Grid files are parsed concurrently and
// merged into a single model; duplicate job names across files are an error.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		found, err := fsutil.CollectFiles(path, ".hcl")
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	logger.Debug("Collected grid files.", "count", len(files))
	if len(files) == 0 {
		return nil, fmt.Errorf("no grid files found under %v", paths)
	}

	parsed := make([]*gridFile, len(files))
	g, _ := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			gf, err := parseFile(file)
			if err != nil {
				return err
			}
			parsed[i] = gf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grid := &config.Grid{}
	seen := make(map[string]hcl.Range)
	for _, gf := range parsed {
		for _, jb := range gf.Jobs {
			if prev, dup := seen[jb.Name]; dup {
				return nil, fmt.Errorf("duplicate job %q at %s, first defined at %s", jb.Name, jb.DeclRange, prev)
			}
			seen[jb.Name] = jb.DeclRange
			grid.Jobs = append(grid.Jobs, translateJob(jb))
		}
	}
	logger.Debug("Grid model assembled.", "jobs", len(grid.Jobs))

	return &config.Model{Grid: grid}, nil
}

// parseFile reads and decodes one grid file. Each call owns its parser, so
// files can be processed concurrently.
func parseFile(path string) (*gridFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}

	var gf gridFile
	if diags := gohcl.DecodeBody(file.Body, nil, &gf); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", path, diags)
	}

	// Stamp declaration ranges for diagnostics.
	content, _, _ := file.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "job", LabelNames: []string{"runner", "name"}}},
	})
	for _, block := range content.Blocks {
		for _, jb := range gf.Jobs {
			if jb.Runner == block.Labels[0] && jb.Name == block.Labels[1] && jb.DeclRange == (hcl.Range{}) {
				jb.DeclRange = block.DefRange
				break
			}
		}
	}
	return &gf, nil
}

func translateJob(jb *jobBlock) *config.JobSpec {
	spec := &config.JobSpec{
		Runner:    jb.Runner,
		Name:      jb.Name,
		DependsOn: jb.DependsOn,
		DeclRange: jb.DeclRange,
	}
	if jb.Priority != nil {
		spec.Priority = *jb.Priority
	}
	if jb.Arguments != nil {
		spec.Arguments = jb.Arguments.Remain
	}
	return spec
}
