// Package config defines the format-agnostic model of a job grid: the units
// of work, their runners, priorities and dependency edges.
package config
