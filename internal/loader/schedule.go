package loader

import (
	"fmt"
	"strings"
)

// schedule atomically inserts a batch of jobs. On a cycle, nothing from the
// batch enters the graph. Jobs already owned by the loader gain this task as
// a co-owner, except those whose stake the task already holds (absorbed via
// Merge); jobs already terminal are skipped.
func (l *Loader) schedule(jobs []*Job, owned map[*Job]bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var batch []*Job
	var coOwned []*Job
	members := make(map[*Job]bool, len(jobs))
	for _, j := range jobs {
		if j == nil || members[j] {
			continue
		}
		if j.scheduled {
			if !owned[j] {
				coOwned = append(coOwned, j)
			}
			continue
		}
		if j.statusLocked() != StatusPending {
			continue
		}
		members[j] = true
		batch = append(batch, j)
	}

	// Validate before mutating anything.
	for _, j := range batch {
		for _, d := range j.deps {
			if members[d] || d.scheduled || d.statusLocked() != StatusPending {
				continue
			}
			return fmt.Errorf("dependency %q of job %q is not scheduled", d.Name, j.Name)
		}
	}
	if err := l.detectCycleLocked(batch); err != nil {
		return err
	}

	for _, j := range coOwned {
		j.ownerCount++
	}
	for _, j := range batch {
		l.scheduled[j] = struct{}{}
		j.scheduled = true
		j.ownerCount++
	}

	// Count unresolved dependencies and register reverse edges. Dependencies
	// that are already OK count as resolved; terminal non-OK dependencies
	// cancel the new job below, before schedule returns.
	var doomed []*Job
	for _, j := range batch {
		for _, d := range j.deps {
			switch d.statusLocked() {
			case StatusPending:
				j.pendingDeps++
				l.dependents[d] = append(l.dependents[d], j)
			case StatusOK:
			default:
				doomed = append(doomed, j)
			}
		}
	}
	for _, j := range doomed {
		if j.statusLocked() != StatusPending {
			continue // already canceled through another bad dependency
		}
		cause := firstBadDependency(j)
		l.finishLocked(j, StatusCanceled, newError(ErrCanceled, "job %q canceled: %s", j.Name, cause.err.Message))
	}

	for _, j := range batch {
		if j.scheduled && j.pendingDeps == 0 && j.statusLocked() == StatusPending {
			l.enqueueLocked(j)
		}
	}

	// Propagate each new job's priority backward along its dependency edges.
	for _, j := range batch {
		p := j.effective.Load()
		for _, d := range j.deps {
			l.raisePriorityLocked(d, p)
		}
	}
	return nil
}

// firstBadDependency returns the first FAILED or CANCELED dependency of j.
// Call only while holding the loader mutex.
func firstBadDependency(j *Job) *Job {
	for _, d := range j.deps {
		if s := d.statusLocked(); s == StatusFailed || s == StatusCanceled {
			return d
		}
	}
	return nil
}

// detectCycleLocked runs an iterative three-color DFS over the provisional
// graph: the batch plus the transitive closure of dependencies already in the
// loader. A back edge to a gray node reveals a cycle; the diagnostic names
// exactly the jobs on it.
func (l *Loader) detectCycleLocked(batch []*Job) error {
	const (
		white = iota
		gray
		black
	)
	type frame struct {
		j    *Job
		next int
	}
	color := make(map[*Job]int8)
	var stack []frame

	for _, root := range batch {
		if color[root] != white {
			continue
		}
		color[root] = gray
		stack = append(stack[:0], frame{j: root})
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next >= len(f.j.deps) {
				color[f.j] = black
				stack = stack[:len(stack)-1]
				continue
			}
			d := f.j.deps[f.next]
			f.next++
			if d.statusLocked() != StatusPending {
				continue // terminal jobs cannot be on a cycle
			}
			switch color[d] {
			case white:
				color[d] = gray
				stack = append(stack, frame{j: d})
			case gray:
				// The cycle is the gray stack from d up to the current frame.
				start := 0
				for i := range stack {
					if stack[i].j == d {
						start = i
						break
					}
				}
				names := make([]string, 0, len(stack)-start+1)
				for _, fr := range stack[start:] {
					names = append(names, fr.j.Name)
				}
				names = append(names, d.Name)
				return newError(ErrCycle, "dependency cycle detected: %s", strings.Join(names, " -> "))
			}
		}
	}
	return nil
}

// Prioritize raises a job's declared priority to at least the given value and
// propagates the effective priority backward over its dependencies. Priorities
// are never lowered.
func (l *Loader) Prioritize(j *Job, priority int64) {
	if j == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if priority > j.declared {
		j.declared = priority
	}
	l.raisePriorityLocked(j, priority)
}

// raisePriorityLocked raises j's effective priority to at least p, relocating
// its ready-queue entry and recursing into its dependencies.
func (l *Loader) raisePriorityLocked(j *Job, p int64) {
	if j.statusLocked() != StatusPending || j.effective.Load() >= p {
		return
	}
	j.effective.Store(p)
	if j.queued {
		l.queue.relocate(j, p)
	}
	for _, d := range j.deps {
		l.raisePriorityLocked(d, p)
	}
}

// finishLocked moves a job to a terminal state. An OK job resolves its
// dependents, enqueueing the newly ready ones; a failed or canceled job
// cancels its pending dependents breadth-first, each carrying the originating
// cause in its error message.
func (l *Loader) finishLocked(j *Job, status Status, jerr *Error) {
	if status == StatusOK {
		deps := l.terminateLocked(j, StatusOK, nil)
		for i := len(deps) - 1; i >= 0; i-- {
			d := deps[i]
			if d.statusLocked() != StatusPending {
				continue
			}
			d.pendingDeps--
			if d.pendingDeps == 0 {
				l.enqueueLocked(d)
			}
		}
		l.notifyIfIdleLocked()
		return
	}

	type edge struct{ j, cause *Job }
	var frontier []edge
	deps := l.terminateLocked(j, status, jerr)
	for i := len(deps) - 1; i >= 0; i-- {
		frontier = append(frontier, edge{deps[i], j})
	}
	for len(frontier) > 0 {
		e := frontier[0]
		frontier = frontier[1:]
		d := e.j
		if d.statusLocked() != StatusPending {
			continue
		}
		derr := newError(ErrCanceled, "job %q canceled: %s", d.Name, e.cause.err.Message)
		more := l.terminateLocked(d, StatusCanceled, derr)
		for i := len(more) - 1; i >= 0; i-- {
			frontier = append(frontier, edge{more[i], d})
		}
	}
	l.notifyIfIdleLocked()
}

// terminateLocked performs the terminal transition itself: it stamps the
// status and error, signals waiters, removes the job from the ready queue and
// the graph, and returns the reverse edges for the caller to resolve.
func (l *Loader) terminateLocked(j *Job, status Status, jerr *Error) []*Job {
	j.mu.Lock()
	j.status = status
	j.err = jerr
	close(j.finished)
	j.mu.Unlock()

	if j.queued {
		l.queue.remove(j)
	}
	delete(l.scheduled, j)
	j.scheduled = false
	deps := l.dependents[j]
	delete(l.dependents, j)
	return deps
}

// cancelLocked cancels a single pending job and propagates to its dependents.
// Jobs currently executing are left alone.
func (l *Loader) cancelLocked(j *Job, jerr *Error) {
	if !j.scheduled || j.executing || j.statusLocked() != StatusPending {
		return
	}
	l.finishLocked(j, StatusCanceled, jerr)
}
