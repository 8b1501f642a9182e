package herald

import (
	"fmt"

	"github.com/petrijr/herald/pkg/api"
)

// WorkflowBuilder provides a fluent API for declaring workflows:
//
//	wf := herald.New("welcome", func(ctx context.Context, w *herald.WorkflowContext) error {
//	    _, err := w.Step.Email(ctx, "send-email", func(ctx context.Context, controls map[string]any) (map[string]any, error) {
//	        return map[string]any{"subject": "Hi", "body": "Welcome!"}, nil
//	    })
//	    return err
//	}).
//	    Name("Welcome").
//	    Tags("onboarding")
//
//	if err := wf.Register(client); err != nil {
//	    log.Fatal(err)
//	}
type WorkflowBuilder struct {
	def api.WorkflowDefinition
}

// New creates a workflow builder. It panics if id is empty or fn is nil.
func New(id string, fn WorkflowFunc) *WorkflowBuilder {
	if id == "" {
		panic("herald: workflow id must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("herald: workflow %q has nil function", id))
	}
	return &WorkflowBuilder{
		def: api.WorkflowDefinition{ID: id, Fn: fn},
	}
}

// ID returns the workflow ID.
func (b *WorkflowBuilder) ID() string {
	return b.def.ID
}

// Definition returns the underlying WorkflowDefinition.
func (b *WorkflowBuilder) Definition() WorkflowDefinition {
	def := b.def
	def.Tags = append([]string(nil), b.def.Tags...)
	return def
}

// PayloadSchema sets the schema trigger payloads are validated against.
func (b *WorkflowBuilder) PayloadSchema(schema any) *WorkflowBuilder {
	b.def.PayloadSchema = schema
	return b
}

// Name sets the display name.
func (b *WorkflowBuilder) Name(name string) *WorkflowBuilder {
	b.def.Name = name
	return b
}

// Description sets the description.
func (b *WorkflowBuilder) Description(desc string) *WorkflowBuilder {
	b.def.Description = desc
	return b
}

// Tags appends tags.
func (b *WorkflowBuilder) Tags(tags ...string) *WorkflowBuilder {
	b.def.Tags = append(b.def.Tags, tags...)
	return b
}

// Preferences sets the workflow's default channel preferences.
func (b *WorkflowBuilder) Preferences(prefs map[string]any) *WorkflowBuilder {
	b.def.Preferences = prefs
	return b
}

// Register adds the workflow to client. Registering an existing ID
// replaces it.
func (b *WorkflowBuilder) Register(client Client) error {
	return client.AddWorkflows(b.Definition())
}

// MustRegister is like Register but panics on error.
func (b *WorkflowBuilder) MustRegister(client Client) {
	if err := b.Register(client); err != nil {
		panic(err)
	}
}

// Step options.

// ControlSchema sets the schema a step's controls are validated against.
func ControlSchema(schema any) StepOption { return api.WithControlSchema(schema) }

// OutputSchema overrides the schema a step's handler output is validated
// against.
func OutputSchema(schema any) StepOption { return api.WithOutputSchema(schema) }

// Skip sets a step's skip predicate.
func Skip(fn SkipFunc) StepOption { return api.WithSkip(fn) }

// Provider attaches a provider transform.
func Provider(id string, fn ProviderFunc) StepOption { return api.WithProvider(id, fn) }

// ProviderWithSchema attaches a provider transform whose result is
// validated against schema.
func ProviderWithSchema(id string, fn ProviderFunc, schema any) StepOption {
	return api.WithProviderSchema(id, fn, schema)
}

// DisableOutputSanitization keeps a channel step's output as is.
func DisableOutputSanitization() StepOption { return api.WithDisableOutputSanitization(true) }
