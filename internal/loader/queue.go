package loader

import "sort"

// readyQueue is the multi-level ready set: a map from effective priority to a
// FIFO of ready jobs. Pop takes the oldest entry of the highest non-empty
// level. Entries keep their enqueue sequence number when they migrate between
// levels, so FIFO order within a level is stable under reprioritization.
type readyQueue struct {
	levels  map[int64][]*Job // per level, sorted by ascending queueSeq
	order   []int64          // non-empty levels, sorted descending
	nextSeq uint64
	size    int
}

func newReadyQueue() *readyQueue {
	return &readyQueue{levels: make(map[int64][]*Job)}
}

func (q *readyQueue) len() int {
	return q.size
}

// push enqueues a job at the given priority level and assigns its sequence
// number.
func (q *readyQueue) push(j *Job, priority int64) {
	j.queueSeq = q.nextSeq
	q.nextSeq++
	q.insert(j, priority)
	q.size++
}

// pop removes and returns the oldest job of the highest non-empty level.
func (q *readyQueue) pop() (*Job, bool) {
	if q.size == 0 {
		return nil, false
	}
	level := q.order[0]
	fifo := q.levels[level]
	j := fifo[0]
	q.detach(j, level, fifo, 0)
	return j, true
}

// remove takes a queued job out of the queue, wherever it is.
func (q *readyQueue) remove(j *Job) {
	if !j.queued {
		return
	}
	fifo := q.levels[j.queueLevel]
	for i, e := range fifo {
		if e == j {
			q.detach(j, j.queueLevel, fifo, i)
			return
		}
	}
}

// relocate moves a queued job to a higher level, keeping its sequence number.
func (q *readyQueue) relocate(j *Job, priority int64) {
	if !j.queued || j.queueLevel == priority {
		return
	}
	q.remove(j)
	q.insert(j, priority)
	q.size++
}

func (q *readyQueue) insert(j *Job, priority int64) {
	fifo, exists := q.levels[priority]
	// Sequence numbers are monotonic, so a fresh push appends; only a
	// relocated entry needs to find its place.
	at := len(fifo)
	for at > 0 && fifo[at-1].queueSeq > j.queueSeq {
		at--
	}
	fifo = append(fifo, nil)
	copy(fifo[at+1:], fifo[at:])
	fifo[at] = j
	q.levels[priority] = fifo
	if !exists {
		at := sort.Search(len(q.order), func(i int) bool { return q.order[i] < priority })
		q.order = append(q.order, 0)
		copy(q.order[at+1:], q.order[at:])
		q.order[at] = priority
	}
	j.queued = true
	j.queueLevel = priority
}

func (q *readyQueue) detach(j *Job, level int64, fifo []*Job, i int) {
	fifo = append(fifo[:i], fifo[i+1:]...)
	if len(fifo) == 0 {
		delete(q.levels, level)
		for k, lv := range q.order {
			if lv == level {
				q.order = append(q.order[:k], q.order[k+1:]...)
				break
			}
		}
	} else {
		q.levels[level] = fifo
	}
	j.queued = false
	q.size--
}
