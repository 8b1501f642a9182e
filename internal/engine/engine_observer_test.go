package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/herald/pkg/api"
)

// fakeObserver records all calls from the engine so we can assert on them.
type fakeObserver struct {
	mu sync.Mutex

	workflowStarts    []string
	workflowCompletes []string
	workflowFails     []error

	stepStarts     []string
	stepCompletes  []stepEvent
	invalidOutputs [][]api.ValidationIssue
}

type stepEvent struct {
	StepID   string
	Type     api.StepType
	Err      error
	Duration time.Duration
}

func (o *fakeObserver) OnWorkflowStart(ctx context.Context, ev *api.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workflowStarts = append(o.workflowStarts, ev.WorkflowID)
}

func (o *fakeObserver) OnWorkflowCompleted(ctx context.Context, ev *api.Event, out *api.ExecutionOutput) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workflowCompletes = append(o.workflowCompletes, ev.WorkflowID)
}

func (o *fakeObserver) OnWorkflowFailed(ctx context.Context, ev *api.Event, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workflowFails = append(o.workflowFails, err)
}

func (o *fakeObserver) OnStepStart(ctx context.Context, ev *api.Event, stepID string, t api.StepType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts = append(o.stepStarts, stepID)
}

func (o *fakeObserver) OnStepCompleted(ctx context.Context, ev *api.Event, stepID string, t api.StepType, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes = append(o.stepCompletes, stepEvent{StepID: stepID, Type: t, Err: err, Duration: d})
}

func (o *fakeObserver) OnStepOutputInvalid(ctx context.Context, ev *api.Event, stepID string, issues []api.ValidationIssue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidOutputs = append(o.invalidOutputs, issues)
}

func TestObserver_SuccessfulExecution(t *testing.T) {
	obs := &fakeObserver{}
	c := NewClientWithConfig(Config{Observer: obs})
	mustAdd(t, c, api.WorkflowDefinition{
		ID: "wf",
		Fn: func(ctx context.Context, wf *api.WorkflowContext) error {
			if _, err := wf.Step.Custom(ctx, "first", staticHandler(map[string]any{})); err != nil {
				return err
			}
			_, err := wf.Step.Email(ctx, "second", staticHandler(map[string]any{"subject": "s", "body": "b"}))
			return err
		},
	})

	if _, err := c.ExecuteWorkflow(context.Background(), executeEvent("wf", "second")); err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	if len(obs.workflowStarts) != 1 || len(obs.workflowCompletes) != 1 || len(obs.workflowFails) != 0 {
		t.Fatalf("unexpected workflow events: starts=%v completes=%v fails=%v",
			obs.workflowStarts, obs.workflowCompletes, obs.workflowFails)
	}
	if len(obs.stepStarts) != 1 || obs.stepStarts[0] != "second" {
		t.Fatalf("expected only the target step to start, got %v", obs.stepStarts)
	}
	if len(obs.stepCompletes) != 1 {
		t.Fatalf("expected 1 step completion, got %d", len(obs.stepCompletes))
	}
	sc := obs.stepCompletes[0]
	if sc.StepID != "second" || sc.Type != api.StepTypeEmail || sc.Err != nil {
		t.Fatalf("unexpected step completion: %+v", sc)
	}
	if sc.Duration < 0 {
		t.Fatalf("negative duration: %v", sc.Duration)
	}
}

func TestObserver_FailedExecution(t *testing.T) {
	boom := errors.New("boom")
	obs := &fakeObserver{}
	c := NewClientWithConfig(Config{Observer: obs})
	mustAdd(t, c, api.WorkflowDefinition{
		ID: "wf",
		Fn: func(ctx context.Context, wf *api.WorkflowContext) error {
			_, err := wf.Step.Custom(ctx, "step", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
				return nil, boom
			})
			return err
		},
	})

	if _, err := c.ExecuteWorkflow(context.Background(), executeEvent("wf", "step")); err == nil {
		t.Fatalf("expected error")
	}

	if len(obs.workflowFails) != 1 || !errors.Is(obs.workflowFails[0], api.ErrStepExecutionFailed) {
		t.Fatalf("expected one StepExecutionFailedError, got %v", obs.workflowFails)
	}
	if len(obs.workflowCompletes) != 0 {
		t.Fatalf("expected no completions, got %v", obs.workflowCompletes)
	}
	if len(obs.stepCompletes) != 1 || !errors.Is(obs.stepCompletes[0].Err, boom) {
		t.Fatalf("expected step completion carrying the handler error, got %+v", obs.stepCompletes)
	}
}

func TestObserver_LenientInvalidOutputIsReported(t *testing.T) {
	obs := &fakeObserver{}
	c := NewClientWithConfig(Config{Observer: obs})
	mustAdd(t, c, api.WorkflowDefinition{
		ID: "wf",
		Fn: func(ctx context.Context, wf *api.WorkflowContext) error {
			_, err := wf.Step.SMS(ctx, "sms", staticHandler(map[string]any{"text": "wrong key"}))
			return err
		},
	})

	if _, err := c.ExecuteWorkflow(context.Background(), executeEvent("wf", "sms")); err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if len(obs.invalidOutputs) != 1 || len(obs.invalidOutputs[0]) == 0 {
		t.Fatalf("expected one invalid output report, got %v", obs.invalidOutputs)
	}
}
