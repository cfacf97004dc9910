// Package queue implements the admission-controlled priority queue of
// pending tasks.
package queue

import (
	"container/heap"
	"sync"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// AdmissionCheck decides whether a specific task may be released for
// execution right now. A nil return admits; an error defers the task in
// place with a reason.
type AdmissionCheck func(task *models.Task) error

// item is a heap entry. seq preserves enqueue order within a priority tier.
type item struct {
	task *models.Task
	seq  uint64
}

// items implements heap.Interface ordered by (priority, seq): lower priority
// values and earlier sequence numbers both sort first.
type items []*item

func (h items) Len() int { return len(h) }

func (h items) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h items) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *items) Push(x interface{}) { *h = append(*h, x.(*item)) }

func (h *items) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a thread-safe priority queue of pending tasks. Dequeue re-checks
// admission per candidate, so a perpetually blocked high-priority task never
// starves admittable lower-priority work.
type Queue struct {
	mu     sync.Mutex
	heap   items
	seq    uint64
	onSkip func(task *models.Task, reason error)
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// SetSkipHook installs an observer called once per skipped candidate during
// PopAdmittable, with the admission error as the reason. Used for logging.
func (q *Queue) SetSkipHook(fn func(task *models.Task, reason error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onSkip = fn
}

// Push enqueues a task.
func (q *Queue) Push(task *models.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.heap, &item{task: task, seq: q.seq})
}

// PopAdmittable scans candidates best-first and returns the first task the
// check admits. Skipped candidates are restored untouched, keeping their
// original tier position. Returns false when no task is admittable; callers
// back off and poll again rather than blocking.
func (q *Queue) PopAdmittable(check AdmissionCheck) (*models.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []*item
	var admitted *models.Task

	for q.heap.Len() > 0 {
		it := heap.Pop(&q.heap).(*item)
		if err := check(it.task); err != nil {
			if q.onSkip != nil {
				q.onSkip(it.task, err)
			}
			skipped = append(skipped, it)
			continue
		}
		admitted = it.task
		break
	}

	// Restore skipped candidates with their original sequence numbers.
	for _, it := range skipped {
		heap.Push(&q.heap, it)
	}

	return admitted, admitted != nil
}

// Remove deletes the queued task with the given ID, if present. Backs task
// cancellation before dispatch.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.heap {
		if it.task.ID == id {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Snapshot returns clones of all queued tasks in dequeue order, for
// best-effort persistence. The queue is not modified.
func (q *Queue) Snapshot() []*models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	cp := make(items, len(q.heap))
	copy(cp, q.heap)
	heap.Init(&cp)

	out := make([]*models.Task, 0, len(cp))
	for cp.Len() > 0 {
		it := heap.Pop(&cp).(*item)
		out = append(out, it.task.Clone())
	}
	return out
}
