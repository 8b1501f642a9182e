package engine

import (
	"context"
	"fmt"

	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/schema"
)

// discoveryStep records step declarations without running handlers.
type discoveryStep struct {
	steps []*StepDescriptor
}

func (d *discoveryStep) declare(_ context.Context, t api.StepType, stepID string, fn api.StepHandler, opts []api.StepOption) (map[string]any, error) {
	for _, s := range d.steps {
		if s.StepID == stepID {
			return nil, fmt.Errorf("duplicate step id %q", stepID)
		}
	}
	desc, err := newStepDescriptor(stepID, t, fn, opts)
	if err != nil {
		return nil, err
	}
	desc.recordSource()
	d.steps = append(d.steps, desc)
	return schema.Mock(desc.results), nil
}

// discoverWorkflow runs def.Fn once against mock inputs and records its steps.
func discoverWorkflow(ctx context.Context, def api.WorkflowDefinition) (wf *registeredWorkflow, err error) {
	if def.ID == "" {
		return nil, fmt.Errorf("workflow id is required")
	}
	if def.Fn == nil {
		return nil, fmt.Errorf("workflow %q: function is required", def.ID)
	}

	payloadSchema, err := schema.ToJSONSchema(def.PayloadSchema)
	if err != nil {
		return nil, fmt.Errorf("workflow %q payload schema: %w", def.ID, err)
	}

	rec := &discoveryStep{}
	wctx := &api.WorkflowContext{
		Step:       stepAPI{d: rec},
		Payload:    schema.Mock(payloadSchema),
		Subscriber: map[string]any{},
	}

	defer func() {
		if r := recover(); r != nil {
			wf, err = nil, fmt.Errorf("workflow %q: panic during discovery: %v", def.ID, r)
		}
	}()
	if err := def.Fn(ctx, wctx); err != nil {
		return nil, fmt.Errorf("discover workflow %q: %w", def.ID, err)
	}

	return &registeredWorkflow{
		def:           def,
		payloadSchema: payloadSchema,
		steps:         rec.steps,
		code:          funcSource(def.Fn),
	}, nil
}

func (w *registeredWorkflow) discover() api.DiscoverWorkflowOutput {
	steps := make([]api.DiscoverStepOutput, 0, len(w.steps))
	for _, s := range w.steps {
		steps = append(steps, s.discover())
	}
	return api.DiscoverWorkflowOutput{
		WorkflowID:  w.def.ID,
		Name:        w.def.Name,
		Description: w.def.Description,
		Tags:        w.def.Tags,
		Preferences: w.def.Preferences,
		Code:        w.code,
		Payload:     api.SchemaOutput{Schema: w.payloadSchema},
		Steps:       steps,
	}
}
