package api

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaOutput wraps a canonical JSON schema for discovery responses.
type SchemaOutput struct {
	Schema *jsonschema.Schema `json:"schema"`
}

// DiscoverProviderOutput describes a provider attached to a step.
type DiscoverProviderOutput struct {
	ProviderID string       `json:"providerId"`
	Code       string       `json:"code"`
	Outputs    SchemaOutput `json:"outputs"`
}

// DiscoverStepOptions mirrors the declaration time options of a step.
type DiscoverStepOptions struct {
	HasSkip                   bool `json:"hasSkip"`
	DisableOutputSanitization bool `json:"disableOutputSanitization"`
}

// DiscoverStepOutput describes one step.
type DiscoverStepOutput struct {
	StepID    string                   `json:"stepId"`
	Type      StepType                 `json:"type"`
	Code      string                   `json:"code"`
	Controls  SchemaOutput             `json:"controls"`
	Outputs   SchemaOutput             `json:"outputs"`
	Results   SchemaOutput             `json:"results"`
	Options   DiscoverStepOptions      `json:"options"`
	Providers []DiscoverProviderOutput `json:"providers"`
}

// DiscoverWorkflowOutput describes one workflow.
type DiscoverWorkflowOutput struct {
	WorkflowID  string               `json:"workflowId"`
	Name        string               `json:"name,omitempty"`
	Description string               `json:"description,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
	Preferences map[string]any       `json:"preferences,omitempty"`
	Code        string               `json:"code"`
	Payload     SchemaOutput         `json:"payload"`
	Steps       []DiscoverStepOutput `json:"steps"`
}

// DiscoverOutput lists the registered workflows in registration order.
type DiscoverOutput struct {
	Workflows []DiscoverWorkflowOutput `json:"workflows"`
}

// CodeResult is returned by Client.GetCode.
type CodeResult struct {
	Code string `json:"code"`
}

// DiscoveredCounts is part of HealthCheck.
type DiscoveredCounts struct {
	Workflows int `json:"workflows"`
	Steps     int `json:"steps"`
}

// HealthCheck is returned by Client.HealthCheck.
type HealthCheck struct {
	Status           string           `json:"status"`
	Discovered       DiscoveredCounts `json:"discovered"`
	FrameworkVersion string           `json:"frameworkVersion"`
	SDKVersion       string           `json:"sdkVersion"`
}
