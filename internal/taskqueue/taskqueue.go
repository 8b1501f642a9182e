package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeExecuteJob runs one job of a triggered workflow.
	TaskTypeExecuteJob TaskType = "execute-job"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string   `json:"id"`
	Type TaskType `json:"type"`

	JobID         string `json:"jobId"`
	EnvironmentID string `json:"environmentId"`

	// Attempts counts the previous failed runs of this task.
	Attempts int `json:"attempts"`

	EnqueuedAt time.Time `json:"enqueuedAt"`

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately".
	NotBefore time.Time `json:"notBefore"`
}

// due reports when t becomes eligible.
func (t Task) due() time.Time {
	if t.NotBefore.IsZero() {
		return t.EnqueuedAt
	}
	return t.NotBefore
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next due task, blocking until one is
	// available or the context is cancelled. Tasks are returned in NotBefore
	// order.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, due or not.
	Len() int
}

// defaultPollInterval is how often polling queues look for due tasks.
const defaultPollInterval = 50 * time.Millisecond

// waitPoll sleeps for d on tmr or until ctx is done.
func waitPoll(ctx context.Context, tmr *time.Timer, d time.Duration) error {
	tmr.Reset(d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

// newStoppedTimer returns a reusable timer that has not fired.
func newStoppedTimer() *time.Timer {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	return tmr
}
