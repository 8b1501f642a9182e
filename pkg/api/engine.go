package api

import (
	"context"
)

// Client is the workflow execution engine: a catalog of registered
// workflows plus the replay interpreter that executes one step at a time.
type Client interface {
	// AddWorkflows registers definitions, running each workflow function
	// once in discovery mode to record its steps. Registering an ID that
	// already exists replaces the previous definition.
	AddWorkflows(defs ...WorkflowDefinition) error

	// ExecuteWorkflow replays ev.State up to ev.StepID and executes or
	// previews that step.
	ExecuteWorkflow(ctx context.Context, ev *Event) (*ExecutionOutput, error)

	// Discover describes every registered workflow and its steps.
	Discover() *DiscoverOutput

	// GetCode returns the source of a workflow function, or of a single
	// step handler when stepID is not empty.
	GetCode(workflowID, stepID string) (*CodeResult, error)

	// HealthCheck summarizes what has been discovered.
	HealthCheck() *HealthCheck
}

// ExecutionPolicy controls how strictly handler outputs are checked.
type ExecutionPolicy string

const (
	// OutputValidationLenient reports output schema violations to the
	// observer and returns the raw output.
	OutputValidationLenient ExecutionPolicy = "lenient"
	// OutputValidationStrict fails the execution with StepOutputInvalidError.
	OutputValidationStrict ExecutionPolicy = "strict"
)
