package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/schema"
)

// errHalt is returned to the workflow function once the requested step has
// run. It never leaves the engine.
var errHalt = errors.New("engine: requested step reached")

// executionStep replays prior steps from the event state and runs the
// requested one.
type executionStep struct {
	e          *engineImpl
	ev         *api.Event
	wf         *registeredWorkflow
	payload    map[string]any
	subscriber map[string]any

	reached bool
	out     *api.ExecutionOutput
	err     error
	// replayErr fails the run even when the workflow function drops it.
	replayErr error
}

func (x *executionStep) preview() bool { return x.ev.Action == api.ActionPreview }

func (x *executionStep) declare(ctx context.Context, t api.StepType, stepID string, fn api.StepHandler, opts []api.StepOption) (map[string]any, error) {
	if x.reached {
		return nil, errHalt
	}
	if x.replayErr != nil {
		return nil, x.replayErr
	}
	// Handlers close over values of this run, so the descriptor is rebuilt
	// from the current declaration rather than taken from discovery.
	desc, err := newStepDescriptor(stepID, t, fn, opts)
	if err != nil {
		return nil, err
	}

	if stepID == x.ev.StepID {
		x.reached = true
		x.out, x.err = x.e.runTarget(ctx, x, desc)
		return nil, errHalt
	}
	out, err := x.replayed(desc)
	if err != nil {
		x.replayErr = err
		return nil, err
	}
	return out, nil
}

// replayed returns the result of a step that ran in an earlier execution.
// A skip predicate whose controls cannot be resolved fails the run.
func (x *executionStep) replayed(desc *StepDescriptor) (map[string]any, error) {
	if desc.Skip != nil {
		controls, err := x.e.resolveControls(desc, nil, x.payload, x.subscriber)
		if err != nil {
			return nil, err
		}
		if desc.Skip(api.SkipInput{Payload: x.payload, Subscriber: x.subscriber, Controls: controls}) {
			return map[string]any{}, nil
		}
	}
	for _, st := range x.ev.State {
		if st.StepID == desc.StepID {
			if st.Outputs == nil {
				return map[string]any{}, nil
			}
			return schema.Clone(st.Outputs), nil
		}
	}
	if x.preview() {
		return schema.Mock(desc.results), nil
	}
	return map[string]any{}, nil
}

// replay runs the workflow function up to the requested step.
func (e *engineImpl) replay(ctx context.Context, wf *registeredWorkflow, ev *api.Event, payload map[string]any) (*api.ExecutionOutput, error) {
	subscriber := ev.Subscriber
	if subscriber == nil {
		subscriber = map[string]any{}
	}
	x := &executionStep{e: e, ev: ev, wf: wf, payload: payload, subscriber: subscriber}
	wctx := &api.WorkflowContext{
		Step:       stepAPI{d: x},
		Payload:    payload,
		Subscriber: subscriber,
	}

	fnErr := callWorkflow(ctx, wf.def.Fn, wctx)
	if x.replayErr != nil {
		return nil, x.replayErr
	}
	if x.reached {
		return x.out, x.err
	}
	if fnErr != nil {
		if apiErr, ok := api.AsError(fnErr); ok {
			return nil, apiErr
		}
		return nil, api.NewStepExecutionFailedError(ev.StepID, ev.Action, fnErr)
	}
	// The step exists but this run took a path that never declared it.
	return nil, api.NewExecutionStateCorruptError(ev.WorkflowID, ev.StepID)
}

func callWorkflow(ctx context.Context, fn api.WorkflowFunc, wctx *api.WorkflowContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, wctx)
}

func callHandler(ctx context.Context, fn api.StepHandler, controls map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, controls)
}

func callProvider(ctx context.Context, fn api.ProviderFunc, in api.ProviderInput) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, in)
}
