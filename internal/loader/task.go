package loader

import "sync"

// Task is a caller-owned handle over a set of jobs, used for lifecycle
// control. Jobs may be shared between tasks; a shared job is canceled only
// when its last owning task removes it. A task that is no longer needed must
// be either Removed (cancels pending members) or Detached (jobs continue on
// their own).
type Task struct {
	mu     sync.Mutex
	loader *Loader
	jobs   []*Job
	// owned marks the jobs this task holds an ownership stake in: the jobs
	// it scheduled itself plus stakes absorbed through Merge. Remove and
	// Detach release exactly these stakes, once each.
	owned     map[*Job]bool
	scheduled bool
}

// mergeMu serializes Merge calls so that two tasks being merged into each
// other concurrently cannot interleave between the per-task mutexes.
var mergeMu sync.Mutex

// NewTask bundles jobs into a task on the given loader. The jobs are not
// scheduled until Schedule is called.
func NewTask(l *Loader, jobs []*Job) *Task {
	return &Task{loader: l, jobs: append([]*Job(nil), jobs...)}
}

// Schedule atomically hands the task's jobs to the loader. On a cycle the
// returned error carries code CYCLE and the graph is left untouched. Jobs
// whose stake was already absorbed through Merge are not counted again.
func (t *Task) Schedule() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scheduled || t.loader == nil {
		return nil
	}
	if err := t.loader.schedule(t.jobs, t.owned); err != nil {
		return err
	}
	if t.owned == nil {
		t.owned = make(map[*Job]bool, len(t.jobs))
	}
	for _, j := range t.jobs {
		t.owned[j] = true
	}
	t.scheduled = true
	return nil
}

// Detach relinquishes every ownership stake without canceling anything; the
// jobs continue independently and the task becomes inert.
func (t *Task) Detach() {
	t.mu.Lock()
	l, owned := t.loader, t.owned
	t.loader, t.jobs, t.owned = nil, nil, nil
	t.mu.Unlock()
	if l == nil || len(owned) == 0 {
		return
	}
	l.mu.Lock()
	for j := range owned {
		if j.scheduled {
			j.ownerCount--
		}
	}
	l.mu.Unlock()
}

// Remove releases the task's stake in every member and cancels the members
// that are still pending once their last stake is gone. Members currently
// executing are not interrupted; Remove waits for them to reach their
// natural terminal state before returning.
func (t *Task) Remove() {
	t.mu.Lock()
	l, owned := t.loader, t.owned
	t.loader, t.jobs, t.owned = nil, nil, nil
	t.mu.Unlock()
	if l == nil || len(owned) == 0 {
		return
	}

	l.mu.Lock()
	var executing []*Job
	for j := range owned {
		if !j.scheduled {
			continue
		}
		j.ownerCount--
		if j.ownerCount > 0 {
			continue
		}
		if j.executing {
			executing = append(executing, j)
			continue
		}
		l.cancelLocked(j, newError(ErrCanceled, "job %q canceled", j.Name))
	}
	l.mu.Unlock()

	for _, j := range executing {
		_ = j.Wait()
	}
}

// Merge transfers the other task's jobs and ownership stakes into this one,
// leaving the other inert. No stake is created or dropped: the receiving
// task takes over, and a later Schedule on it will not count them again.
func (t *Task) Merge(other *Task) {
	if other == nil || other == t {
		return
	}
	mergeMu.Lock()
	defer mergeMu.Unlock()

	other.mu.Lock()
	jobs, owned := other.jobs, other.owned
	other.loader, other.jobs, other.owned = nil, nil, nil
	other.mu.Unlock()

	t.mu.Lock()
	t.jobs = append(t.jobs, jobs...)
	if len(owned) > 0 {
		if t.owned == nil {
			t.owned = make(map[*Job]bool, len(owned))
		}
		for j := range owned {
			t.owned[j] = true
		}
	}
	t.mu.Unlock()
}
