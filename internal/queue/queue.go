// Package queue implements the per-node task FIFO with blocking
// producer/consumer signaling and explicit shutdown.
package queue

import (
	"container/list"
	"sync"

	"taskmesh/internal/task"
)

// TaskQueue is a FIFO of tasks guarded by a single mutex, with a condition
// variable waking blocked poppers on push or close. All state transitions
// happen under mu; no blocking wait happens while mu is held.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

// New constructs an empty, open queue.
func New() *TaskQueue {
	q := &TaskQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends t to the tail and wakes exactly one blocked waiter.
// Push never blocks and is a no-op once the queue is closed.
func (q *TaskQueue) Push(t task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(t)
	q.cond.Signal()
}

// PushFront reinserts t at the head, used by the offload policy when a
// popped task cannot be sent to a peer and must not be lost.
func (q *TaskQueue) PushFront(t task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushFront(t)
	q.cond.Signal()
}

// PopBlocking suspends the caller until the queue is non-empty (returns the
// head, true) or closed and empty (returns the zero Task, false).
func (q *TaskQueue) PopBlocking() (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return task.Task{}, false
	}
	front := q.items.Remove(q.items.Front())
	return front.(task.Task), true
}

// TryPop removes and returns the head without blocking. It reports false if
// the queue is empty.
func (q *TaskQueue) TryPop() (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return task.Task{}, false
	}
	front := q.items.Remove(q.items.Front())
	return front.(task.Task), true
}

// Size returns the instantaneous depth under the same exclusion as Push/Pop.
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close marks the queue closed, discards any items still resident, and
// wakes every blocked waiter with absence. Callers that need a graceful
// drain must pop (or call Drain) until empty before calling Close.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items.Init()
	q.cond.Broadcast()
}

// Drain pops and returns every currently resident task without blocking,
// leaving the queue empty but open. The drained tasks are returned to the
// caller, not executed.
func (q *TaskQueue) Drain() []task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]task.Task, 0, q.items.Len())
	for q.items.Len() > 0 {
		front := q.items.Remove(q.items.Front())
		out = append(out, front.(task.Task))
	}
	return out
}
