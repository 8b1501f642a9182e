package api

// ProviderDefinition binds a provider transform to a step.
type ProviderDefinition struct {
	ID string
	Fn ProviderFunc
	// OutputSchema optionally validates (and fills defaults on) the provider
	// result. Passthrough results bypass it.
	OutputSchema any
}

// StepOptions collects everything a step declaration can configure.
type StepOptions struct {
	ControlSchema             any
	OutputSchema              any
	Skip                      SkipFunc
	Providers                 []ProviderDefinition
	DisableOutputSanitization bool
}

// StepOption configures a step declaration.
type StepOption func(*StepOptions)

// BuildStepOptions applies opts in order.
func BuildStepOptions(opts ...StepOption) StepOptions {
	var o StepOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithControlSchema sets the schema the step's controls are validated
// against. Any schema format understood by the schema package is accepted.
func WithControlSchema(schema any) StepOption {
	return func(o *StepOptions) { o.ControlSchema = schema }
}

// WithOutputSchema overrides the schema the handler output is validated
// against.
func WithOutputSchema(schema any) StepOption {
	return func(o *StepOptions) { o.OutputSchema = schema }
}

// WithSkip sets the step's skip predicate.
func WithSkip(fn SkipFunc) StepOption {
	return func(o *StepOptions) { o.Skip = fn }
}

// WithProvider adds a provider transform. Declaring the same id twice keeps
// the last one.
func WithProvider(id string, fn ProviderFunc) StepOption {
	return WithProviderSchema(id, fn, nil)
}

// WithProviderSchema is WithProvider with an output schema for the provider
// result.
func WithProviderSchema(id string, fn ProviderFunc, schema any) StepOption {
	return func(o *StepOptions) {
		def := ProviderDefinition{ID: id, Fn: fn, OutputSchema: schema}
		for i := range o.Providers {
			if o.Providers[i].ID == id {
				o.Providers[i] = def
				return
			}
		}
		o.Providers = append(o.Providers, def)
	}
}

// WithDisableOutputSanitization turns off output sanitization for a channel
// step.
func WithDisableOutputSanitization(disable bool) StepOption {
	return func(o *StepOptions) { o.DisableOutputSanitization = disable }
}
