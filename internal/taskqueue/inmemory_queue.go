package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryQueue is a Queue kept in process memory. It is safe for
// concurrent use. Tasks are ordered by NotBefore, then by enqueue order.
type InMemoryQueue struct {
	mu     sync.Mutex
	tasks  []queued
	seq    uint64
	notify chan struct{}
}

type queued struct {
	task Task
	seq  uint64
}

// NewInMemoryQueue creates a new empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{notify: make(chan struct{})}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t = stamp(t, time.Now())

	q.mu.Lock()
	q.seq++
	q.tasks = append(q.tasks, queued{task: t, seq: q.seq})
	sort.SliceStable(q.tasks, func(i, k int) bool {
		di, dk := q.tasks[i].task.due(), q.tasks[k].task.due()
		if di.Equal(dk) {
			return q.tasks[i].seq < q.tasks[k].seq
		}
		return di.Before(dk)
	})
	// Wake every waiting Dequeue; they re-check under the lock.
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		q.mu.Lock()
		notify := q.notify
		var wait time.Duration = -1
		if len(q.tasks) > 0 {
			head := q.tasks[0].task
			wait = time.Until(head.due())
			if wait <= 0 {
				q.tasks = q.tasks[1:]
				q.mu.Unlock()
				return &head, nil
			}
		}
		q.mu.Unlock()

		var timeout <-chan time.Time
		if wait > 0 {
			tmr.Reset(wait)
			timeout = tmr.C
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
			tmr.Stop()
		case <-timeout:
		}
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
