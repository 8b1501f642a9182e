package herald

import (
	"github.com/petrijr/herald/internal/engine"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/bridge"

	// Struct schemas are available to every program that imports herald.
	_ "github.com/petrijr/herald/pkg/schema/structschema"
	"go.opentelemetry.io/otel/trace"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Client             = api.Client
	Event              = api.Event
	State              = api.State
	StepStatus         = api.StepStatus
	ExecutionOutput    = api.ExecutionOutput
	ExecutionPolicy    = api.ExecutionPolicy
	WorkflowDefinition = api.WorkflowDefinition
	WorkflowContext    = api.WorkflowContext
	WorkflowFunc       = api.WorkflowFunc
	Step               = api.Step
	StepType           = api.StepType
	StepHandler        = api.StepHandler
	StepOption         = api.StepOption
	SkipInput          = api.SkipInput
	SkipFunc           = api.SkipFunc
	ProviderInput      = api.ProviderInput
	ProviderFunc       = api.ProviderFunc
	Passthrough        = api.Passthrough
	Action             = api.Action
	Error              = api.Error
	ErrorCode          = api.ErrorCode

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	AsError              = api.AsError
)

const (
	StepTypeEmail   = api.StepTypeEmail
	StepTypeSMS     = api.StepTypeSMS
	StepTypeChat    = api.StepTypeChat
	StepTypePush    = api.StepTypePush
	StepTypeInApp   = api.StepTypeInApp
	StepTypeDigest  = api.StepTypeDigest
	StepTypeDelay   = api.StepTypeDelay
	StepTypeCustom  = api.StepTypeCustom
	StepTypeTrigger = api.StepTypeTrigger

	ActionExecute     = api.ActionExecute
	ActionPreview     = api.ActionPreview
	ActionDiscover    = api.ActionDiscover
	ActionHealthCheck = api.ActionHealthCheck
	ActionCode        = api.ActionCode

	OutputValidationLenient = api.OutputValidationLenient
	OutputValidationStrict  = api.OutputValidationStrict
)

// ClientOption configures NewClient.
type ClientOption func(*engine.Config)

// WithObserver sets the observer notified of executions.
func WithObserver(obs Observer) ClientOption {
	return func(c *engine.Config) { c.Observer = obs }
}

// WithOutputValidation selects how handler output schema violations are
// treated. The default is OutputValidationLenient.
func WithOutputValidation(p ExecutionPolicy) ClientOption {
	return func(c *engine.Config) { c.Policy = p }
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *engine.Config) { c.Tracer = t }
}

// NewClient returns an in-process engine with no workflows registered.
func NewClient(opts ...ClientOption) Client {
	var cfg engine.Config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return engine.NewClientWithConfig(cfg)
}

// Bridge handler options.

type HandlerOption = bridge.HandlerOption

var (
	WithSecretKey            = bridge.WithSecretKey
	WithStrictAuthentication = bridge.WithStrictAuthentication
	WithHandlerLogger        = bridge.WithLogger
)

// NewHandler returns the HTTP bridge endpoint serving client.
func NewHandler(client Client, opts ...HandlerOption) *bridge.Handler {
	return bridge.NewHandler(client, opts...)
}
