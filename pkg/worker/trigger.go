package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/internal/persistence"
	"github.com/petrijr/herald/pkg/api"
)

// TriggerInput starts a workflow run for one subscriber.
type TriggerInput struct {
	EnvironmentID string
	// TransactionID identifies the run; generated when empty.
	TransactionID string
	Subscriber    map[string]any
	Payload       map[string]any
	// Controls holds per-step control values keyed by step ID.
	Controls map[string]map[string]any
	// Overrides holds per-step overrides keyed by step ID, e.g.
	// {"delay": {"delay": {"amount": 5, "unit": "minutes"}}}.
	Overrides map[string]map[string]any
	// BridgeURL is recorded on each job for diagnostics.
	BridgeURL string
}

// Run is the job chain created by Trigger, in step order.
type Run struct {
	TransactionID string
	Jobs          []*persistence.Job
}

// Trigger creates one job per step of wf, links them parent to child and
// enqueues the first one.
func (w *Worker) Trigger(ctx context.Context, wf *api.DiscoverWorkflowOutput, in TriggerInput) (*Run, error) {
	if wf == nil {
		return nil, errors.New("trigger: nil workflow")
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("trigger: workflow %q has no steps", wf.WorkflowID)
	}
	if in.TransactionID == "" {
		in.TransactionID = uuid.NewString()
	}
	if in.Subscriber == nil {
		in.Subscriber = map[string]any{}
	}
	if in.Payload == nil {
		in.Payload = map[string]any{}
	}

	now := w.now()
	run := &Run{TransactionID: in.TransactionID}
	parent := ""
	for i, step := range wf.Steps {
		if step.Type == api.StepTypeTrigger {
			continue
		}
		job := &persistence.Job{
			ID:            uuid.NewString(),
			EnvironmentID: in.EnvironmentID,
			TransactionID: in.TransactionID,
			ParentID:      parent,
			WorkflowID:    wf.WorkflowID,
			StepID:        step.StepID,
			Type:          step.Type,
			BridgeURL:     in.BridgeURL,
			Status:        persistence.JobStatusPending,
			Payload:       in.Payload,
			Subscriber:    in.Subscriber,
			Controls:      in.Controls[step.StepID],
			Overrides:     in.Overrides[step.StepID],
			CreatedAt:     now.Add(time.Duration(i)),
			UpdatedAt:     now,
		}
		if step.Type == api.StepTypeDelay || step.Type == api.StepTypeDigest {
			job.Metadata = &persistence.StepMetadata{Type: orchestrator.TypeRegular}
		}
		if err := w.store.Jobs.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("trigger: create job for step %q: %w", step.StepID, err)
		}
		run.Jobs = append(run.Jobs, job)
		parent = job.ID
	}
	if len(run.Jobs) == 0 {
		return nil, fmt.Errorf("trigger: workflow %q has no executable steps", wf.WorkflowID)
	}

	first := run.Jobs[0]
	first.Status = persistence.JobStatusQueued
	if err := w.store.Jobs.UpdateJob(ctx, first); err != nil {
		return nil, err
	}
	if err := w.EnqueueJob(ctx, first); err != nil {
		return nil, err
	}
	w.logger.Info("workflow_triggered",
		slog.String("workflow", wf.WorkflowID),
		slog.String("transaction", in.TransactionID),
		slog.Int("jobs", len(run.Jobs)),
	)
	return run, nil
}
