// Package metrics provides the counters the loader's worker pool reports
// into: one gauge for alive worker threads and one for threads actively
// running a job.
package metrics

import "sync/atomic"

// Gauge is an integer metric with atomic increment and decrement.
type Gauge struct {
	value atomic.Int64
}

// Inc adds one to the gauge.
func (g *Gauge) Inc() {
	g.value.Add(1)
}

// Dec subtracts one from the gauge.
func (g *Gauge) Dec() {
	g.value.Add(-1)
}

// Value returns the current reading.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}
