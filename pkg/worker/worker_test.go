package worker

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/internal/engine"
	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/internal/taskqueue"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/bridge"
)

func chainJobs(steps ...api.StepType) []*persistence.Job {
	now := time.Now()
	var jobs []*persistence.Job
	parent := ""
	for i, typ := range steps {
		id := string(typ)
		j := &persistence.Job{
			ID:            id,
			EnvironmentID: "env",
			TransactionID: "tx",
			ParentID:      parent,
			WorkflowID:    "onboarding",
			StepID:        id,
			Type:          typ,
			Status:        persistence.JobStatusPending,
			Payload:       map[string]any{"name": "Ada"},
			Subscriber:    map[string]any{"subscriberId": "sub-1"},
			CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
		}
		if typ == api.StepTypeDelay {
			j.Metadata = &persistence.StepMetadata{Type: orchestrator.TypeRegular}
		}
		jobs = append(jobs, j)
		parent = id
	}
	return jobs
}

func onboardingClient(t *testing.T) api.Client {
	t.Helper()
	c := engine.NewClient()
	require.NoError(t, c.AddWorkflows(api.WorkflowDefinition{
		ID: "onboarding",
		Fn: func(ctx context.Context, wf *api.WorkflowContext) error {
			if _, err := wf.Step.InApp(ctx, "in_app", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
				return map[string]any{"body": "Welcome " + wf.Payload["name"].(string)}, nil
			}); err != nil {
				return err
			}
			if _, err := wf.Step.Delay(ctx, "delay", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
				return map[string]any{"type": "regular", "amount": 0.1, "unit": "seconds"}, nil
			}); err != nil {
				return err
			}
			_, err := wf.Step.Email(ctx, "email", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
				return map[string]any{"subject": "Hi", "body": "Still there?"}, nil
			})
			return err
		},
	}))
	return c
}

func TestWorker_RunsJobChainWithDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	ex := orchestrator.NewBridgeJobExecutor(store, bridge.NewLocalTransport(onboardingClient(t)))
	w := New(ex, store, queue)

	jobs := chainJobs(api.StepTypeInApp, api.StepTypeDelay, api.StepTypeEmail)
	for _, j := range jobs {
		require.NoError(t, store.Jobs.CreateJob(ctx, j))
	}
	require.NoError(t, w.EnqueueJob(ctx, jobs[0]))

	var delayDone time.Time
	for i := 0; i < 3; i++ {
		processed, err := w.ProcessOne(ctx)
		require.True(t, processed)
		require.NoError(t, err)
		if i == 1 {
			delayDone = time.Now()
			next, err := store.Jobs.FindJob(ctx, "env", "email")
			require.NoError(t, err)
			assert.Equal(t, persistence.JobStatusDelayed, next.Status)
		}
	}
	assert.GreaterOrEqual(t, time.Since(delayDone), 90*time.Millisecond, "email must wait for the delay")
	assert.Equal(t, 0, queue.Len())

	for _, id := range []string{"in_app", "delay", "email"} {
		j, err := store.Jobs.FindJob(ctx, "env", id)
		require.NoError(t, err)
		assert.Equal(t, persistence.JobStatusCompleted, j.Status, id)
		assert.Equal(t, 1, j.Attempts, id)
	}

	inbox, err := store.Messages.FindMessageByJob(ctx, "env", "in_app")
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada", inbox.Content["body"])
	assert.Equal(t, "sub-1", inbox.SubscriberID)

	_, err = store.Messages.FindMessageByJob(ctx, "env", "delay")
	assert.True(t, errors.Is(err, persistence.ErrMessageNotFound), "delay steps deliver nothing")

	details, err := store.Details.ListExecutionDetails(ctx, "env", "email")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, orchestrator.DetailBridgeResponseReceived, details[0].Detail)
}

type flakyExecutor struct {
	calls    atomic.Int32
	failures int32
}

func (f *flakyExecutor) Execute(ctx context.Context, cmd orchestrator.ExecuteJobCommand) (*api.ExecutionOutput, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("temporary failure")
	}
	return &api.ExecutionOutput{Outputs: map[string]any{"result": "ok"}}, nil
}

func TestWorker_RetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	ex := &flakyExecutor{failures: 1}
	backoff := 30 * time.Millisecond
	w := NewWithConfig(ex, store, queue, Config{MaxAttempts: 3, Backoff: backoff})

	job := chainJobs(api.StepTypeCustom)[0]
	require.NoError(t, store.Jobs.CreateJob(ctx, job))
	require.NoError(t, w.EnqueueJob(ctx, job))

	processed, err := w.ProcessOne(ctx)
	require.True(t, processed)
	require.Error(t, err)

	queued, err := store.Jobs.FindJob(ctx, "env", job.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusQueued, queued.Status)
	assert.Equal(t, "temporary failure", queued.Error)
	assert.Equal(t, 1, queue.Len())

	start := time.Now()
	processed, err = w.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), backoff-5*time.Millisecond)

	done, err := store.Jobs.FindJob(ctx, "env", job.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusCompleted, done.Status)
	assert.Equal(t, 2, done.Attempts)
	assert.Empty(t, done.Error)
	assert.Equal(t, "ok", done.StepOutput["result"])
}

func TestWorker_MarksJobFailedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	ex := &flakyExecutor{failures: 100}
	w := NewWithConfig(ex, store, queue, Config{MaxAttempts: 2, Backoff: time.Millisecond})

	jobs := chainJobs(api.StepTypeCustom, api.StepTypeEmail)
	for _, j := range jobs {
		require.NoError(t, store.Jobs.CreateJob(ctx, j))
	}
	require.NoError(t, w.EnqueueJob(ctx, jobs[0]))

	for i := 0; i < 2; i++ {
		processed, err := w.ProcessOne(ctx)
		require.True(t, processed)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), ex.calls.Load())
	assert.Equal(t, 0, queue.Len())

	failed, err := store.Jobs.FindJob(ctx, "env", jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusFailed, failed.Status)

	next, err := store.Jobs.FindJob(ctx, "env", jobs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusPending, next.Status, "the run stops at the failed job")
}

func TestWorker_SkipsFinishedJobsAndUnknownTasks(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	ex := &flakyExecutor{}
	w := New(ex, store, queue)

	job := chainJobs(api.StepTypeCustom)[0]
	job.Status = persistence.JobStatusCompleted
	require.NoError(t, store.Jobs.CreateJob(ctx, job))
	require.NoError(t, w.EnqueueJob(ctx, job))

	processed, err := w.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)
	assert.Zero(t, ex.calls.Load())

	require.NoError(t, queue.Enqueue(ctx, taskqueue.Task{ID: "x", Type: "signal"}))
	processed, err = w.ProcessOne(ctx)
	assert.True(t, processed)
	assert.Error(t, err)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	processed, err = w.ProcessOne(cctx)
	assert.False(t, processed)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	ex := &flakyExecutor{}
	w := New(ex, store, queue)

	job := chainJobs(api.StepTypeCustom)[0]
	require.NoError(t, store.Jobs.CreateJob(ctx, job))
	require.NoError(t, w.EnqueueJob(ctx, job))

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 2) }()

	require.Eventually(t, func() bool { return ex.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	w := NewWithConfig(nil, persistence.Persistence{}, nil, Config{Backoff: 10 * time.Millisecond, MaxBackoff: 35 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, w.backoff(1))
	assert.Equal(t, 20*time.Millisecond, w.backoff(2))
	assert.Equal(t, 35*time.Millisecond, w.backoff(3))
}

func TestBackoff_UncappedSaturatesInsteadOfOverflowing(t *testing.T) {
	w := NewWithConfig(nil, persistence.Persistence{}, nil, Config{Backoff: time.Second})
	assert.Equal(t, 4*time.Second, w.backoff(3))
	for _, attempt := range []int{40, 64, 100} {
		if d := w.backoff(attempt); d <= 0 {
			t.Fatalf("backoff(%d) = %v, want positive", attempt, d)
		}
	}
	assert.Equal(t, time.Duration(math.MaxInt64), w.backoff(100))
}

func TestWorker_TriggerCreatesLinkedJobChain(t *testing.T) {
	ctx := context.Background()
	client := onboardingClient(t)
	store := persistence.NewInMemoryPersistence()
	queue := taskqueue.NewInMemoryQueue()
	w := New(orchestrator.NewBridgeJobExecutor(store, bridge.NewLocalTransport(client)), store, queue)

	disc := client.Discover()
	require.Len(t, disc.Workflows, 1)

	run, err := w.Trigger(ctx, &disc.Workflows[0], TriggerInput{
		EnvironmentID: "env",
		Subscriber:    map[string]any{"subscriberId": "sub-9"},
		Payload:       map[string]any{"name": "Grace"},
		Overrides:     map[string]map[string]any{"delay": {"delay": map[string]any{"amount": 1, "unit": "seconds"}}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.TransactionID)
	require.Len(t, run.Jobs, 3)

	assert.Empty(t, run.Jobs[0].ParentID)
	assert.Equal(t, run.Jobs[0].ID, run.Jobs[1].ParentID)
	assert.Equal(t, run.Jobs[1].ID, run.Jobs[2].ParentID)
	assert.Equal(t, persistence.JobStatusQueued, run.Jobs[0].Status)
	require.NotNil(t, run.Jobs[1].Metadata)
	assert.Equal(t, orchestrator.TypeRegular, run.Jobs[1].Metadata.Type)
	assert.Nil(t, run.Jobs[2].Metadata)
	assert.NotNil(t, run.Jobs[1].Overrides["delay"])
	assert.Equal(t, 1, queue.Len())

	stored, err := store.Jobs.ListJobs(ctx, persistence.JobFilter{TransactionID: run.TransactionID})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "in_app", stored[0].StepID)
	assert.Equal(t, "email", stored[2].StepID)
}

func TestWorker_TriggerRejectsEmptyWorkflow(t *testing.T) {
	w := New(&flakyExecutor{}, persistence.NewInMemoryPersistence(), taskqueue.NewInMemoryQueue())
	_, err := w.Trigger(context.Background(), &api.DiscoverWorkflowOutput{WorkflowID: "empty"}, TriggerInput{})
	require.Error(t, err)
}
