package herald

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/bridge"
	"github.com/petrijr/herald/pkg/worker"
)

// TriggerInput starts one workflow run.
type TriggerInput = worker.TriggerInput

// Run is the job chain of a triggered workflow.
type Run = worker.Run

// LocalRunner bundles an in-process Client, in-memory stores, an in-memory
// task queue and a Worker, so workflows can be triggered and run end to
// end without a remote bridge.
//
// Typical usage:
//
//	runner := herald.NewLocalRunner()
//	herald.New("welcome", welcome).MustRegister(runner.Client)
//
//	_ = runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//	run, _ := runner.Trigger(ctx, "welcome", herald.TriggerInput{...})
type LocalRunner struct {
	// Client is the engine workflows are registered on.
	Client Client

	// Store holds jobs, messages and execution details.
	Store persistence.Persistence

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue through Client.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner. opts configure the client.
func NewLocalRunner(opts ...ClientOption) *LocalRunner {
	client := NewClient(opts...)
	store := persistence.NewInMemoryPersistence()
	q := taskqueue.NewInMemoryQueue()
	ex := orchestrator.NewBridgeJobExecutor(store, bridge.NewLocalTransport(client))

	return &LocalRunner{
		Client: client,
		Store:  store,
		Queue:  q,
		Worker: worker.New(ex, store, q),
	}
}

// Trigger creates the job chain of workflowID and enqueues its first job.
func (r *LocalRunner) Trigger(ctx context.Context, workflowID string, in TriggerInput) (*Run, error) {
	return trigger(ctx, r.Client, r.Worker, workflowID, in)
}

func trigger(ctx context.Context, client Client, w *worker.Worker, workflowID string, in TriggerInput) (*Run, error) {
	for _, wf := range client.Discover().Workflows {
		if wf.WorkflowID == workflowID {
			return w.Trigger(ctx, &wf, in)
		}
	}
	return nil, fmt.Errorf("herald: workflow %q is not registered", workflowID)
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("herald: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// Cancellation is a clean shutdown.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A failed job must not stop the loop.
					slog.Warn("herald: local runner task failed", slog.Int("worker", i), slog.Any("error", err))
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Drain processes tasks in the calling goroutine until the queue is empty.
// Delayed tasks are waited for.
func (r *LocalRunner) Drain(ctx context.Context) error {
	var errs []error
	for r.Queue.Len() > 0 {
		processed, err := r.Worker.ProcessOne(ctx)
		if err != nil && !processed {
			return err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
