package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/api"
)

// Config holds worker retry settings.
type Config struct {
	// MaxAttempts is the number of times a task runs before its job is
	// marked failed. Zero or one disables retries.
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
	// MaxBackoff caps the retry delay. Zero means no cap.
	MaxBackoff time.Duration
	// PollTimeout bounds a single dequeue in Run. Zero blocks until ctx ends.
	PollTimeout time.Duration

	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and executes their jobs.
type Worker struct {
	executor orchestrator.JobExecutor
	store    persistence.Persistence
	queue    taskqueue.Queue
	waits    orchestrator.WaitDurationCalculator
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Worker that runs every task once.
func New(executor orchestrator.JobExecutor, store persistence.Persistence, queue taskqueue.Queue) *Worker {
	return NewWithConfig(executor, store, queue, Config{})
}

// NewWithConfig creates a Worker with explicit retry settings.
func NewWithConfig(executor orchestrator.JobExecutor, store persistence.Persistence, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{
		executor: executor,
		store:    store,
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// EnqueueJob enqueues job for immediate processing.
func (w *Worker) EnqueueJob(ctx context.Context, job *persistence.Job) error {
	return w.EnqueueJobAt(ctx, job, time.Time{})
}

// EnqueueJobAt enqueues job to run no earlier than at.
func (w *Worker) EnqueueJobAt(ctx context.Context, job *persistence.Job, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:            uuid.NewString(),
		Type:          taskqueue.TaskTypeExecuteJob,
		JobID:         job.ID,
		EnvironmentID: job.EnvironmentID,
		EnqueuedAt:    w.now(),
		NotBefore:     at,
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error
//   - processed == true: a task was processed; err reports whether its job
//     succeeded. A failed task may have been re-enqueued for a retry.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	if task.Type != taskqueue.TaskTypeExecuteJob {
		return true, fmt.Errorf("unknown task type: %s", task.Type)
	}
	return true, w.processJob(ctx, task)
}

// Run processes tasks with the given number of goroutines until ctx is
// cancelled. Task failures are logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				pctx, cancel := ctx, context.CancelFunc(func() {})
				if w.cfg.PollTimeout > 0 {
					pctx, cancel = context.WithTimeout(ctx, w.cfg.PollTimeout)
				}
				processed, err := w.ProcessOne(pctx)
				cancel()
				if err != nil && processed {
					w.logger.Warn("task_failed", slog.Int("worker", i), slog.Any("error", err))
				}
				if err != nil && !processed && ctx.Err() == nil &&
					!errors.Is(err, context.DeadlineExceeded) {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) processJob(ctx context.Context, task *taskqueue.Task) error {
	job, err := w.store.Jobs.FindJob(ctx, task.EnvironmentID, task.JobID)
	if err != nil {
		return fmt.Errorf("load job %q: %w", task.JobID, err)
	}
	switch job.Status {
	case persistence.JobStatusCompleted, persistence.JobStatusCanceled, persistence.JobStatusMerged:
		w.logger.Debug("job_already_done", slog.String("job", job.ID), slog.String("status", string(job.Status)))
		return nil
	}

	job.Status = persistence.JobStatusRunning
	job.Attempts = task.Attempts + 1
	job.UpdatedAt = w.now()
	if err := w.store.Jobs.UpdateJob(ctx, job); err != nil {
		return err
	}

	start := w.now()
	out, runErr := w.executor.Execute(ctx, orchestrator.ExecuteJobCommand{
		EnvironmentID: job.EnvironmentID,
		Job:           job,
	})
	if runErr != nil {
		return w.fail(ctx, task, job, runErr)
	}

	skipped := out.Options != nil && out.Options.Skip
	job.Status = persistence.JobStatusCompleted
	job.Error = ""
	job.StepOutput = out.Outputs
	job.UpdatedAt = w.now()
	if err := w.store.Jobs.UpdateJob(ctx, job); err != nil {
		return err
	}
	w.logger.Info("job_completed",
		slog.String("job", job.ID),
		slog.String("workflow", job.WorkflowID),
		slog.String("step", job.StepID),
		slog.Bool("skipped", skipped),
		slog.Duration("duration", w.now().Sub(start)),
	)

	if job.Type.IsChannel() && !skipped {
		if err := w.createMessage(ctx, job, out); err != nil {
			return err
		}
	}
	return w.enqueueNext(ctx, job, out, skipped)
}

func (w *Worker) fail(ctx context.Context, task *taskqueue.Task, job *persistence.Job, runErr error) error {
	job.Error = runErr.Error()
	job.UpdatedAt = w.now()

	attempt := task.Attempts + 1
	if attempt < w.cfg.MaxAttempts {
		job.Status = persistence.JobStatusQueued
		if err := w.store.Jobs.UpdateJob(ctx, job); err != nil {
			return errors.Join(runErr, err)
		}
		retry := *task
		retry.Attempts = attempt
		retry.EnqueuedAt = w.now()
		retry.NotBefore = w.now().Add(w.backoff(attempt))
		if err := w.queue.Enqueue(ctx, retry); err != nil {
			return errors.Join(runErr, err)
		}
		w.logger.Warn("job_retry_scheduled",
			slog.String("job", job.ID),
			slog.Int("attempt", attempt),
			slog.Time("not_before", retry.NotBefore),
			slog.Any("error", runErr),
		)
		return runErr
	}

	job.Status = persistence.JobStatusFailed
	if err := w.store.Jobs.UpdateJob(ctx, job); err != nil {
		return errors.Join(runErr, err)
	}
	w.logger.Error("job_failed",
		slog.String("job", job.ID),
		slog.String("workflow", job.WorkflowID),
		slog.String("step", job.StepID),
		slog.Int("attempts", attempt),
		slog.Any("error", runErr),
	)
	return runErr
}

// backoff returns the delay before retry number attempt (1-based).
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.Backoff
	for i := 1; i < attempt && d > 0; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
		} else {
			d *= 2
		}
		if w.cfg.MaxBackoff > 0 && d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
		if d == math.MaxInt64 {
			break
		}
	}
	return d
}

func (w *Worker) createMessage(ctx context.Context, job *persistence.Job, out *api.ExecutionOutput) error {
	if w.store.Messages == nil {
		return nil
	}
	subscriberID, _ := job.Subscriber["subscriberId"].(string)
	return w.store.Messages.CreateMessage(ctx, &persistence.Message{
		ID:            uuid.NewString(),
		EnvironmentID: job.EnvironmentID,
		JobID:         job.ID,
		TransactionID: job.TransactionID,
		SubscriberID:  subscriberID,
		Channel:       job.Type,
		Content:       out.Outputs,
		CreatedAt:     w.now(),
	})
}

// enqueueNext schedules the child job of job, if the run has one.
func (w *Worker) enqueueNext(ctx context.Context, job *persistence.Job, out *api.ExecutionOutput, skipped bool) error {
	jobs, err := w.store.Jobs.ListJobs(ctx, persistence.JobFilter{
		EnvironmentID: job.EnvironmentID,
		TransactionID: job.TransactionID,
	})
	if err != nil {
		return err
	}
	var next *persistence.Job
	for _, j := range jobs {
		if j.ParentID == job.ID {
			next = j
			break
		}
	}
	if next == nil {
		return nil
	}

	var wait time.Duration
	if !skipped && (job.Type == api.StepTypeDelay || job.Type == api.StepTypeDigest) {
		wait, err = w.waits.CalculateDelay(job.Metadata, job.Payload, job.Overrides, out.Outputs)
		if err != nil {
			return fmt.Errorf("compute wait after job %q: %w", job.ID, err)
		}
	}

	next.Status = persistence.JobStatusQueued
	if wait > 0 {
		next.Status = persistence.JobStatusDelayed
	}
	next.UpdatedAt = w.now()
	if err := w.store.Jobs.UpdateJob(ctx, next); err != nil {
		return err
	}

	var at time.Time
	if wait > 0 {
		at = w.now().Add(wait)
	}
	return w.EnqueueJobAt(ctx, next, at)
}
