package config

import "github.com/hashicorp/hcl/v2"

// Model is the format-agnostic representation of the loaded configuration.
type Model struct {
	Grid *Grid
}

// Grid is the user's declarative job graph.
type Grid struct {
	Jobs []*JobSpec
}

// JobSpec is the format-agnostic representation of a `job` block.
type JobSpec struct {
	// Runner names the registered handler that executes this job.
	Runner string
	// Name is the unique job name, also used in depends_on references.
	Name string
	// Priority is the declared scheduling priority; higher is more urgent.
	Priority int64
	// DependsOn lists the names of jobs that must finish OK first.
	DependsOn []string
	// Arguments is the raw body of the `arguments` block, decoded into the
	// runner's input struct when the job is built. Nil when absent.
	Arguments hcl.Body
	// DeclRange points at the block for diagnostics.
	DeclRange hcl.Range
}
