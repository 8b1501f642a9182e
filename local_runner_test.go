package herald

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/internal/persistence"
)

func seatsWorkflow(ctx context.Context, wf *WorkflowContext) error {
	lookup, err := wf.Step.Custom(ctx, "lookup", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"seats": 3}, nil
	})
	if err != nil {
		return err
	}
	if _, err := wf.Step.Delay(ctx, "pause", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"type": "regular", "amount": 0.02, "unit": "seconds"}, nil
	}); err != nil {
		return err
	}
	_, err = wf.Step.InApp(ctx, "inbox", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
		return map[string]any{"body": fmt.Sprintf("%v has %v seats", controls["name"], lookup["seats"])}, nil
	}, ControlSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "default": "{{payload.name}}"},
		},
	}))
	return err
}

// TestLocalRunner_TriggerRunsChain verifies that a triggered workflow is
// executed job by job, with earlier outputs replayed into later steps.
func TestLocalRunner_TriggerRunsChain(t *testing.T) {
	runner := NewLocalRunner()
	New("seats", seatsWorkflow).MustRegister(runner.Client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := runner.Trigger(ctx, "seats", TriggerInput{
		EnvironmentID: "dev",
		Subscriber:    map[string]any{"subscriberId": "sub-1"},
		Payload:       map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	require.Len(t, run.Jobs, 3)

	require.NoError(t, runner.Drain(ctx))

	for _, j := range run.Jobs {
		got, err := runner.Store.Jobs.FindJob(ctx, "dev", j.ID)
		require.NoError(t, err)
		if got.Status != persistence.JobStatusCompleted {
			t.Fatalf("job %s (%s): expected completed, got %s (%s)", j.ID, j.StepID, got.Status, got.Error)
		}
	}

	msg, err := runner.Store.Messages.FindMessageByJob(ctx, "dev", run.Jobs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada has 3 seats", msg.Content["body"])
}

func TestLocalRunner_StartWorkersAndStop(t *testing.T) {
	runner := NewLocalRunner()
	New("greet", smsWorkflow).MustRegister(runner.Client)

	ctx := context.Background()
	require.NoError(t, runner.StartWorkers(ctx, 2))
	if err := runner.StartWorkers(ctx, 1); err == nil {
		t.Fatalf("expected error when starting twice")
	}

	run, err := runner.Trigger(ctx, "greet", TriggerInput{
		EnvironmentID: "dev",
		Payload:       map[string]any{"name": "Grace"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msg, err := runner.Store.Messages.FindMessageByJob(ctx, "dev", run.Jobs[0].ID)
		return err == nil && msg.Content["body"] == "Hello Grace"
	}, 2*time.Second, 10*time.Millisecond)

	runner.Stop()
	runner.Stop()
}

func TestLocalRunner_TriggerUnknownWorkflow(t *testing.T) {
	runner := NewLocalRunner()
	_, err := runner.Trigger(context.Background(), "missing", TriggerInput{})
	require.Error(t, err)
}
