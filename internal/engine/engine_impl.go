package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/sanitize"
	"github.com/petrijr/herald/pkg/schema"
	"github.com/petrijr/herald/pkg/template"
)

const tracerName = "github.com/petrijr/herald/internal/engine"

// engineImpl is the in-process replay engine.
type engineImpl struct {
	registry *workflowRegistry
	observer api.Observer
	policy   api.ExecutionPolicy
	tracer   trace.Tracer
}

var _ api.Client = (*engineImpl)(nil)

// Config describes how to construct an engine.
type Config struct {
	Observer api.Observer
	// Policy defaults to api.OutputValidationLenient.
	Policy api.ExecutionPolicy
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// NewClientWithConfig creates a new Client using the given configuration.
func NewClientWithConfig(cfg Config) api.Client {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	policy := cfg.Policy
	if policy == "" {
		policy = api.OutputValidationLenient
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return &engineImpl{
		registry: newWorkflowRegistry(),
		observer: obs,
		policy:   policy,
		tracer:   tracer,
	}
}

// NewClient returns a Client with the default configuration.
func NewClient() api.Client {
	return NewClientWithConfig(Config{})
}

func (e *engineImpl) AddWorkflows(defs ...api.WorkflowDefinition) error {
	wfs := make([]*registeredWorkflow, 0, len(defs))
	for _, def := range defs {
		wf, err := discoverWorkflow(context.Background(), def)
		if err != nil {
			return err
		}
		wfs = append(wfs, wf)
	}
	e.registry.Register(wfs...)
	return nil
}

func (e *engineImpl) Discover() *api.DiscoverOutput {
	all := e.registry.All()
	out := &api.DiscoverOutput{Workflows: make([]api.DiscoverWorkflowOutput, 0, len(all))}
	for _, wf := range all {
		out.Workflows = append(out.Workflows, wf.discover())
	}
	return out
}

func (e *engineImpl) GetCode(workflowID, stepID string) (*api.CodeResult, error) {
	wf, ok := e.registry.Get(workflowID)
	if !ok {
		return nil, api.NewWorkflowNotFoundError(workflowID)
	}
	if stepID == "" {
		return &api.CodeResult{Code: wf.code}, nil
	}
	step, ok := wf.step(stepID)
	if !ok {
		return nil, api.NewStepNotFoundError(workflowID, stepID)
	}
	return &api.CodeResult{Code: step.code}, nil
}

func (e *engineImpl) HealthCheck() *api.HealthCheck {
	all := e.registry.All()
	steps := 0
	for _, wf := range all {
		steps += len(wf.steps)
	}
	return &api.HealthCheck{
		Status:           "ok",
		Discovered:       api.DiscoveredCounts{Workflows: len(all), Steps: steps},
		FrameworkVersion: FrameworkVersion,
		SDKVersion:       SDKVersion,
	}
}

func (e *engineImpl) ExecuteWorkflow(ctx context.Context, ev *api.Event) (out *api.ExecutionOutput, err error) {
	if ev == nil {
		return nil, api.NewWorkflowNotFoundError("")
	}
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "herald.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("herald.workflow.id", ev.WorkflowID),
			attribute.String("herald.step.id", ev.StepID),
			attribute.String("herald.action", string(ev.Action)),
		),
	)
	defer span.End()

	e.observer.OnWorkflowStart(ctx, ev)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.observer.OnWorkflowFailed(ctx, ev, err)
			return
		}
		span.SetStatus(codes.Ok, "")
		e.observer.OnWorkflowCompleted(ctx, ev, out)
	}()

	out, err = e.execute(ctx, ev)
	if err != nil {
		return nil, err
	}
	out.Metadata = api.ExecutionMetadata{
		Status:   "success",
		Error:    false,
		Duration: float64(time.Since(start).Microseconds()) / 1000,
	}
	return out, nil
}

func (e *engineImpl) execute(ctx context.Context, ev *api.Event) (*api.ExecutionOutput, error) {
	wf, ok := e.registry.Get(ev.WorkflowID)
	if ev.WorkflowID == "" || !ok {
		return nil, api.NewWorkflowNotFoundError(ev.WorkflowID)
	}
	if ev.Action != api.ActionExecute && ev.Action != api.ActionPreview {
		return nil, api.NewInvalidActionError(ev.Action)
	}
	if _, ok := wf.step(ev.StepID); !ok {
		return nil, api.NewExecutionStateCorruptError(ev.WorkflowID, ev.StepID)
	}

	payload, err := e.resolvePayload(wf, ev)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.replay(ctx, wf, ev, payload)
}

func (e *engineImpl) resolvePayload(wf *registeredWorkflow, ev *api.Event) (map[string]any, error) {
	if ev.Action == api.ActionPreview {
		return mergeMaps(schema.Mock(wf.payloadSchema), schema.Clone(ev.Payload)), nil
	}
	if ev.Payload == nil {
		return nil, api.NewExecutionEventPayloadInvalidError(ev.WorkflowID)
	}
	res, err := schema.Validate(ev.Payload, wf.def.PayloadSchema)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, api.NewWorkflowPayloadInvalidError(ev.WorkflowID, res.Issues)
	}
	return res.Data, nil
}

// runTarget executes the requested step: controls, skip, handler, output
// validation, providers and sanitization.
func (e *engineImpl) runTarget(ctx context.Context, x *executionStep, desc *StepDescriptor) (*api.ExecutionOutput, error) {
	ev := x.ev
	controls, err := e.resolveControls(desc, ev.Controls, x.payload, x.subscriber)
	if err != nil {
		return nil, err
	}

	if !x.preview() && desc.Skip != nil &&
		desc.Skip(api.SkipInput{Payload: x.payload, Subscriber: x.subscriber, Controls: controls}) {
		return &api.ExecutionOutput{
			Outputs:   map[string]any{},
			Providers: map[string]map[string]any{},
			Options:   &api.ExecutionOptions{Skip: true},
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stepCtx, span := e.tracer.Start(ctx, "herald.step",
		trace.WithAttributes(
			attribute.String("herald.step.id", desc.StepID),
			attribute.String("herald.step.type", string(desc.Type)),
		),
	)
	e.observer.OnStepStart(stepCtx, ev, desc.StepID, desc.Type)
	start := time.Now()
	outputs, err := callHandler(stepCtx, desc.Handler, controls)
	e.observer.OnStepCompleted(stepCtx, ev, desc.StepID, desc.Type, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, api.NewStepExecutionFailedError(desc.StepID, ev.Action, err)
	}
	span.End()

	outputs, err = e.validateOutputs(ctx, ev, desc.StepID, desc.OutputSchema, outputs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	providers, err := e.runProviders(ctx, ev, desc, controls, outputs)
	if err != nil {
		return nil, err
	}

	if desc.Type.IsChannel() && !desc.DisableOutputSanitization {
		outputs = sanitize.Map(outputs)
	}
	return &api.ExecutionOutput{
		Outputs:   outputs,
		Providers: providers,
		Options:   &api.ExecutionOptions{Skip: false},
	}, nil
}

// resolveControls merges controls over the schema defaults, compiles
// templates against the payload and subscriber and validates the result.
func (e *engineImpl) resolveControls(desc *StepDescriptor, controls, payload, subscriber map[string]any) (map[string]any, error) {
	src := schema.Clone(controls)
	if src == nil {
		src = controls
	}
	merged := mergeMaps(schema.Defaults(desc.controls), src)

	compiled, err := template.CompileValue(merged, map[string]any{
		"payload":    payload,
		"subscriber": subscriber,
	})
	if err != nil {
		return nil, api.NewStepControlValidationError(desc.StepID, []api.ValidationIssue{{Message: err.Error()}})
	}

	res, err := schema.Validate(compiled, desc.ControlSchema)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, api.NewStepControlValidationError(desc.StepID, res.Issues)
	}
	return res.Data, nil
}

func (e *engineImpl) validateOutputs(ctx context.Context, ev *api.Event, stepID string, s any, outputs map[string]any) (map[string]any, error) {
	res, err := schema.Validate(outputs, s)
	if err != nil {
		return nil, err
	}
	if res.Success {
		return res.Data, nil
	}
	if e.policy == api.OutputValidationStrict {
		return nil, api.NewStepOutputInvalidError(stepID, res.Issues)
	}
	e.observer.OnStepOutputInvalid(ctx, ev, stepID, res.Issues)
	if outputs == nil {
		return map[string]any{}, nil
	}
	return outputs, nil
}

// runProviders runs the step's providers concurrently and waits for all of
// them.
func (e *engineImpl) runProviders(ctx context.Context, ev *api.Event, desc *StepDescriptor, controls, outputs map[string]any) (map[string]map[string]any, error) {
	results := make(map[string]map[string]any, len(desc.Providers))
	if len(desc.Providers) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range desc.Providers {
		g.Go(func() error {
			out, err := callProvider(gctx, p.Fn, api.ProviderInput{
				Controls: schema.Clone(controls),
				Outputs:  schema.Clone(outputs),
			})
			if err != nil {
				return api.NewProviderExecutionFailedError(p.ID, ev.Action, err)
			}
			out, err = e.providerResult(gctx, ev, desc.StepID, p, out)
			if err != nil {
				return err
			}
			mu.Lock()
			results[p.ID] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *engineImpl) providerResult(ctx context.Context, ev *api.Event, stepID string, p ProviderDescriptor, out map[string]any) (map[string]any, error) {
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out[api.PassthroughKey]; ok || p.OutputSchema == nil {
		return out, nil
	}
	res, err := e.validateOutputs(ctx, ev, stepID, p.OutputSchema, out)
	if err != nil {
		return nil, api.NewProviderExecutionFailedError(p.ID, ev.Action, err)
	}
	return res, nil
}

// mergeMaps copies src over dst, merging nested objects.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = mergeMaps(dv, sv)
			continue
		}
		dst[k] = v
	}
	return dst
}

// FrameworkVersion is the bridge protocol version reported by health checks.
const FrameworkVersion = "2024-06-26"

// SDKVersion is overridden at build time with -ldflags.
var SDKVersion = "0.1.0"
