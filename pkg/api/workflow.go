package api

import (
	"context"
)

// StepType enumerates the kinds of steps a workflow can declare.
type StepType string

const (
	StepTypeEmail   StepType = "email"
	StepTypeSMS     StepType = "sms"
	StepTypeChat    StepType = "chat"
	StepTypePush    StepType = "push"
	StepTypeInApp   StepType = "in_app"
	StepTypeDigest  StepType = "digest"
	StepTypeDelay   StepType = "delay"
	StepTypeCustom  StepType = "custom"
	StepTypeTrigger StepType = "trigger"
)

// IsChannel reports whether the step renders content for a delivery channel.
// Channel step outputs are sanitized before they leave the engine.
func (t StepType) IsChannel() bool {
	switch t {
	case StepTypeEmail, StepTypeSMS, StepTypeChat, StepTypePush, StepTypeInApp:
		return true
	}
	return false
}

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeEmail, StepTypeSMS, StepTypeChat, StepTypePush, StepTypeInApp,
		StepTypeDigest, StepTypeDelay, StepTypeCustom, StepTypeTrigger:
		return true
	}
	return false
}

// Action is the bridge action requested by the caller.
type Action string

const (
	ActionExecute     Action = "execute"
	ActionPreview     Action = "preview"
	ActionDiscover    Action = "discover"
	ActionHealthCheck Action = "health-check"
	ActionCode        Action = "code"
)

// Event is the inbound request to execute or preview a single step.
//
// State carries the resolved results of steps that precede StepID. The
// engine trusts it and never re-derives it.
type Event struct {
	WorkflowID string         `json:"workflowId"`
	StepID     string         `json:"stepId"`
	Action     Action         `json:"action"`
	Payload    map[string]any `json:"payload"`
	Subscriber map[string]any `json:"subscriber"`
	State      []State        `json:"state"`
	Controls   map[string]any `json:"controls"`
}

// StepStatus is the persisted status of a previously executed step.
type StepStatus struct {
	Status string `json:"status"`
	Error  any    `json:"error,omitempty"`
}

// State is a replay record for one prior step.
type State struct {
	StepID  string         `json:"stepId"`
	Outputs map[string]any `json:"outputs"`
	State   StepStatus     `json:"state"`
}

// ExecutionMetadata describes how an execution went. Duration is in
// milliseconds.
type ExecutionMetadata struct {
	Status   string  `json:"status"`
	Error    bool    `json:"error"`
	Duration float64 `json:"duration"`
}

// ExecutionOptions reports step level decisions taken during execution.
type ExecutionOptions struct {
	Skip bool `json:"skip"`
}

// ExecutionOutput is the result of executing or previewing a step.
type ExecutionOutput struct {
	Outputs   map[string]any            `json:"outputs"`
	Providers map[string]map[string]any `json:"providers"`
	Options   *ExecutionOptions         `json:"options,omitempty"`
	Metadata  ExecutionMetadata         `json:"metadata"`
}

// StepHandler computes a step's outputs from its resolved controls.
type StepHandler func(ctx context.Context, controls map[string]any) (map[string]any, error)

// SkipInput is what a skip predicate gets to look at.
type SkipInput struct {
	Payload    map[string]any
	Subscriber map[string]any
	Controls   map[string]any
}

// SkipFunc decides whether a step is skipped.
type SkipFunc func(in SkipInput) bool

// ProviderInput is passed to provider transforms.
type ProviderInput struct {
	Controls map[string]any
	Outputs  map[string]any
}

// ProviderFunc shapes a step's validated outputs for a specific delivery
// provider.
type ProviderFunc func(ctx context.Context, in ProviderInput) (map[string]any, error)

// PassthroughKey marks a provider result that is forwarded verbatim.
const PassthroughKey = "_passthrough"

// Passthrough is the raw request fragment a provider may hand to the
// delivery layer.
type Passthrough struct {
	Body    map[string]any `json:"body,omitempty"`
	Headers map[string]any `json:"headers,omitempty"`
	Query   map[string]any `json:"query,omitempty"`
}

// Result wraps p in the envelope recognised by the engine.
func (p Passthrough) Result() map[string]any {
	env := map[string]any{}
	if p.Body != nil {
		env["body"] = p.Body
	}
	if p.Headers != nil {
		env["headers"] = p.Headers
	}
	if p.Query != nil {
		env["query"] = p.Query
	}
	return map[string]any{PassthroughKey: env}
}

// Step is handed to workflow functions. Each method declares one step and
// returns that step's result: the replayed outputs of an earlier execution,
// or a mock while the workflow is being discovered.
//
// A non-nil error must be returned from the workflow function as is; it is
// how the engine stops the walk once the requested step has run.
type Step interface {
	Email(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	SMS(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	Chat(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	Push(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	InApp(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	Digest(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	Delay(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
	Custom(ctx context.Context, stepID string, fn StepHandler, opts ...StepOption) (map[string]any, error)
}

// WorkflowContext is the argument of a WorkflowFunc.
type WorkflowContext struct {
	Step       Step
	Payload    map[string]any
	Subscriber map[string]any
}

// WorkflowFunc declares a workflow's steps in order.
type WorkflowFunc func(ctx context.Context, wf *WorkflowContext) error

// WorkflowDefinition describes a workflow to register.
type WorkflowDefinition struct {
	ID            string
	Fn            WorkflowFunc
	PayloadSchema any

	Name        string
	Description string
	Tags        []string
	// Preferences are the default subscriber channel preferences,
	// e.g. {"channels": {"email": {"enabled": false}}}.
	Preferences map[string]any
}
