// Package loader implements an asynchronous job loader: a concurrent
// scheduler that executes a DAG of named jobs on a bounded worker pool,
// honoring declared dependencies, priorities with inheritance across
// dependency edges, and graceful cancellation.
package loader

import (
	"log/slog"
	"sync"

	"github.com/vk/asyncgridgo/internal/metrics"
)

// Loader owns the dependency graph, the priority-ordered ready queue and the
// worker pool. A single mutex protects all of its state; job functions run
// with the mutex released.
type Loader struct {
	mu     sync.Mutex
	ready  *sync.Cond // workers sleep here when the queue is empty
	idle   *sync.Cond // Wait sleeps here until no ready or in-flight work
	joined *sync.Cond // Stop sleeps here until every worker has exited

	queue      *readyQueue
	scheduled  map[*Job]struct{}
	dependents map[*Job][]*Job

	started    bool
	stopping   bool
	maxThreads int
	workers    int // worker goroutines currently alive
	executing  int // jobs currently running a function

	totalThreads  *metrics.Gauge
	activeThreads *metrics.Gauge
	logFailures   bool
	logger        *slog.Logger
}

// New creates a stopped loader. The gauges are updated as worker threads
// spawn and exit (totalThreads) and as jobs start and finish (activeThreads).
func New(totalThreads, activeThreads *metrics.Gauge, maxThreads int, logFailures bool) *Loader {
	l := &Loader{
		queue:         newReadyQueue(),
		scheduled:     make(map[*Job]struct{}),
		dependents:    make(map[*Job][]*Job),
		maxThreads:    maxThreads,
		totalThreads:  totalThreads,
		activeThreads: activeThreads,
		logFailures:   logFailures,
		logger:        slog.Default(),
	}
	l.ready = sync.NewCond(&l.mu)
	l.idle = sync.NewCond(&l.mu)
	l.joined = sync.NewCond(&l.mu)
	return l
}

// SetLogger replaces the logger used for failure reporting.
func (l *Loader) SetLogger(logger *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

// Start brings the worker pool up to the configured size. Idempotent.
func (l *Loader) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	l.spawnLocked()
}

// Stop signals shutdown, waits for in-flight jobs to finish naturally, and
// joins every worker. Ready jobs stay queued and resume on the next Start.
func (l *Loader) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	l.stopping = true
	l.ready.Broadcast()
	for l.workers > 0 {
		l.joined.Wait()
	}
	l.stopping = false
	l.started = false
}

// Wait blocks until the loader has no ready or in-flight work.
func (l *Loader) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.queue.len() > 0 || l.executing > 0 {
		l.idle.Wait()
	}
}

// SetMaxThreads reshapes the pool. Growth spawns workers immediately when the
// pool is started; surplus workers exit after finishing their current job.
func (l *Loader) SetMaxThreads(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxThreads = n
	l.spawnLocked()
	l.ready.Broadcast()
}

// MaxThreads returns the pool's target size.
func (l *Loader) MaxThreads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxThreads
}

// ScheduledJobCount returns the number of jobs currently owned by the loader,
// pending or running. Callers use it for backpressure.
func (l *Loader) ScheduledJobCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scheduled)
}

// spawnLocked brings the worker count up to the current target.
func (l *Loader) spawnLocked() {
	if !l.started || l.stopping {
		return
	}
	for l.workers < l.maxThreads {
		l.workers++
		l.totalThreads.Inc()
		go l.worker()
	}
}

// worker is the processing loop of a single pool thread.
func (l *Loader) worker() {
	l.mu.Lock()
	for {
		if l.stopping || l.workers > l.maxThreads {
			break
		}
		j, ok := l.queue.pop()
		if !ok {
			l.ready.Wait()
			continue
		}
		j.executing = true
		l.executing++
		l.activeThreads.Inc()
		l.mu.Unlock()

		err := j.run()

		l.mu.Lock()
		l.activeThreads.Dec()
		l.executing--
		j.executing = false
		if err == nil {
			l.finishLocked(j, StatusOK, nil)
		} else {
			if l.logFailures {
				l.logger.Error("Job failed.", "job", j.Name, "error", err)
			}
			l.finishLocked(j, StatusFailed, newError(ErrFailed, "job %q failed: %s", j.Name, err.Error()))
		}
	}
	l.workers--
	l.totalThreads.Dec()
	l.joined.Broadcast()
	l.mu.Unlock()
}

// enqueueLocked makes a job ready and wakes one worker.
func (l *Loader) enqueueLocked(j *Job) {
	l.queue.push(j, j.effective.Load())
	l.ready.Signal()
}

// notifyIfIdleLocked wakes Wait callers once all work has drained.
func (l *Loader) notifyIfIdleLocked() {
	if l.queue.len() == 0 && l.executing == 0 {
		l.idle.Broadcast()
	}
}
