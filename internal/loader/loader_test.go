package loader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/asyncgridgo/internal/metrics"
)

// testLoader bundles a loader with its gauges for tests.
type testLoader struct {
	total  metrics.Gauge
	active metrics.Gauge
	loader *Loader
}

func newTestLoader(t *testing.T, maxThreads int) *testLoader {
	t.Helper()
	tl := &testLoader{}
	tl.loader = New(&tl.total, &tl.active, maxThreads, false)
	t.Cleanup(tl.loader.Stop)
	return tl
}

func (tl *testLoader) schedule(t *testing.T, jobs ...*Job) *Task {
	t.Helper()
	task := NewTask(tl.loader, jobs)
	require.NoError(t, task.Schedule())
	return task
}

// chainJobs builds a linear chain of n jobs, each depending on the previous.
func chainJobs(n int, prefix string, fn JobFunc) []*Job {
	jobs := make([]*Job, 0, n)
	jobs = append(jobs, NewJob(nil, prefix+"0", fn))
	for i := 1; i < n; i++ {
		jobs = append(jobs, NewJob([]*Job{jobs[i-1]}, fmt.Sprintf("%s%d", prefix, i), fn))
	}
	return jobs
}

// barrier is a reusable synchronization point for n participants.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}

func TestSmoke(t *testing.T) {
	tl := newTestLoader(t, 2)

	const lowPriority = -1
	var jobsDone, lowPriorityJobsDone atomic.Int64

	fn := func(self *Job) error {
		jobsDone.Add(1)
		if self.Priority() == lowPriority {
			lowPriorityJobsDone.Add(1)
		}
		return nil
	}

	job1 := NewJob(nil, "job1", fn)
	job2 := NewJob([]*Job{job1}, "job2", fn)
	task1 := tl.schedule(t, job1, job2)

	job3 := NewJob([]*Job{job2}, "job3", fn)
	job4 := NewJob([]*Job{job2}, "job4", fn)
	task2 := tl.schedule(t, job3, job4)
	job5 := NewJobWithPriority([]*Job{job3, job4}, "job5", lowPriority, fn)
	task2.Merge(tl.schedule(t, job5))

	waiterDone := make(chan error, 1)
	go func() { waiterDone <- job5.Wait() }()

	tl.loader.Start()

	require.NoError(t, job3.Wait())
	tl.loader.Wait()
	require.NoError(t, job4.Wait())
	require.NoError(t, <-waiterDone)

	assert.Equal(t, StatusOK, job1.Status())
	assert.Equal(t, StatusOK, job2.Status())
	assert.Equal(t, int64(5), jobsDone.Load())
	assert.Equal(t, int64(1), lowPriorityJobsDone.Load())

	task1.Detach()
	task2.Detach()
	tl.loader.Stop()
}

func TestCycleDetection(t *testing.T) {
	tl := newTestLoader(t, 1)

	fn := func(*Job) error { return nil }

	jobs := make([]*Job, 0, 16)
	jobs = append(jobs, NewJob(nil, "job0", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[0]}, "job1", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[0], jobs[1]}, "job2", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[0], jobs[2]}, "job3", fn))

	// Dependency sets are fixed at construction, so close the cycle
	// job1 -> job3 -> job2 -> job1 from inside the package.
	jobs[1].deps = append(jobs[1].deps, jobs[3])

	// A couple of connected jobs off the cycle.
	jobs = append(jobs, NewJob([]*Job{jobs[1]}, "job4", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[4]}, "job5", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[3]}, "job6", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[1], jobs[2], jobs[3], jobs[4], jobs[5], jobs[6]}, "job7", fn))

	// And some not connected at all.
	jobs = append(jobs, NewJob(nil, "job8", fn))
	jobs = append(jobs, NewJob(nil, "job9", fn))
	jobs = append(jobs, NewJob([]*Job{jobs[9]}, "job10", fn))

	task := NewTask(tl.loader, jobs)
	err := task.Schedule()
	require.Error(t, err)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrCycle, lerr.Code)

	present := []bool{false, true, true, true, false, false, false, false, false, false, false}
	for i, want := range present {
		assert.Equal(t, want, strings.Contains(lerr.Message, fmt.Sprintf("job%d", i)), "job%d", i)
	}

	// Nothing from the batch entered the graph.
	assert.Equal(t, 0, tl.loader.ScheduledJobCount())
	for _, j := range jobs {
		assert.Equal(t, StatusPending, j.Status())
	}
}

func TestCancelPendingJob(t *testing.T) {
	tl := newTestLoader(t, 1)

	job := NewJob(nil, "job", func(*Job) error { return nil })
	task := tl.schedule(t, job)

	task.Remove() // the loader was never started, so the job is still pending

	assert.Equal(t, StatusCanceled, job.Status())

	err := job.Wait()
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrCanceled, lerr.Code)
}

func TestCancelPendingTask(t *testing.T) {
	tl := newTestLoader(t, 1)

	fn := func(*Job) error { return nil }
	job1 := NewJob(nil, "job1", fn)
	job2 := NewJob([]*Job{job1}, "job2", fn)
	task := tl.schedule(t, job1, job2)

	task.Remove()

	assert.Equal(t, StatusCanceled, job1.Status())
	assert.Equal(t, StatusCanceled, job2.Status())

	for _, j := range []*Job{job1, job2} {
		err := j.Wait()
		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, ErrCanceled, lerr.Code)
	}
}

func TestCancelPendingDependency(t *testing.T) {
	tl := newTestLoader(t, 1)

	fn := func(*Job) error { return nil }
	job1 := NewJob(nil, "job1", fn)
	job2 := NewJob([]*Job{job1}, "job2", fn)
	task1 := tl.schedule(t, job1)
	task2 := tl.schedule(t, job2)

	task1.Remove() // cancels job2 as well, through the dependency

	assert.Equal(t, StatusCanceled, job1.Status())
	assert.Equal(t, StatusCanceled, job2.Status())

	for _, j := range []*Job{job1, job2} {
		err := j.Wait()
		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, ErrCanceled, lerr.Code)
	}
	task2.Remove()
}

func TestJobFailure(t *testing.T) {
	tl := newTestLoader(t, 1)
	tl.loader.Start()

	job := NewJob(nil, "job", func(*Job) error {
		return errors.New("test job failure")
	})
	task := tl.schedule(t, job)
	defer task.Detach()

	tl.loader.Wait()

	assert.Equal(t, StatusFailed, job.Status())

	err := job.Wait()
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrFailed, lerr.Code)
	assert.Contains(t, lerr.Message, "test job failure")
}

func TestJobPanic(t *testing.T) {
	tl := newTestLoader(t, 1)
	tl.loader.Start()

	job := NewJob(nil, "job", func(*Job) error {
		panic("test job panic")
	})
	task := tl.schedule(t, job)
	defer task.Detach()

	tl.loader.Wait()

	assert.Equal(t, StatusFailed, job.Status())

	err := job.Wait()
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrFailed, lerr.Code)
	assert.Contains(t, lerr.Message, "test job panic")
}

func TestScheduleJobWithFailedDependencies(t *testing.T) {
	tl := newTestLoader(t, 1)
	tl.loader.Start()

	failedJob := NewJob(nil, "failed_job", func(*Job) error {
		return errors.New("test job failure")
	})
	failedTask := tl.schedule(t, failedJob)
	defer failedTask.Detach()

	tl.loader.Wait()

	fn := func(*Job) error { return nil }
	job1 := NewJob([]*Job{failedJob}, "job1", fn)
	job2 := NewJob([]*Job{job1}, "job2", fn)
	task := tl.schedule(t, job1, job2)
	defer task.Detach()

	tl.loader.Wait()

	assert.Equal(t, StatusCanceled, job1.Status())
	assert.Equal(t, StatusCanceled, job2.Status())

	for _, j := range []*Job{job1, job2} {
		err := j.Wait()
		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, ErrCanceled, lerr.Code)
		assert.Contains(t, lerr.Message, "test job failure")
	}
}

func TestScheduleJobWithCanceledDependencies(t *testing.T) {
	tl := newTestLoader(t, 1)

	canceledJob := NewJob(nil, "canceled_job", func(*Job) error { return nil })
	canceledTask := tl.schedule(t, canceledJob)
	canceledTask.Remove()

	tl.loader.Start()

	fn := func(*Job) error { return nil }
	job1 := NewJob([]*Job{canceledJob}, "job1", fn)
	job2 := NewJob([]*Job{job1}, "job2", fn)
	task := tl.schedule(t, job1, job2)
	defer task.Detach()

	tl.loader.Wait()

	assert.Equal(t, StatusCanceled, job1.Status())
	assert.Equal(t, StatusCanceled, job2.Status())

	for _, j := range []*Job{job1, job2} {
		err := j.Wait()
		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, ErrCanceled, lerr.Code)
	}
}

func TestScheduleUnknownDependency(t *testing.T) {
	tl := newTestLoader(t, 1)

	fn := func(*Job) error { return nil }
	dep := NewJob(nil, "dep", fn)
	job := NewJob([]*Job{dep}, "job", fn)

	// dep is neither part of the batch nor scheduled nor terminal.
	task := NewTask(tl.loader, []*Job{job})
	err := task.Schedule()
	require.Error(t, err)
	assert.Equal(t, 0, tl.loader.ScheduledJobCount())
}

func TestErrorFormat(t *testing.T) {
	err := newError(ErrFailed, "job %q failed: %s", "x", "boom")
	assert.Equal(t, `FAILED: job "x" failed: boom`, err.Error())
}
