package engine

import (
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/schema"
)

// StepDescriptor is what discovery records about a step declaration.
type StepDescriptor struct {
	StepID string
	Type   api.StepType

	// ControlSchema and OutputSchema are the schema values used for
	// validation, as declared or defaulted for the step type.
	ControlSchema any
	OutputSchema  any

	Handler                   api.StepHandler
	Skip                      api.SkipFunc
	Providers                 []ProviderDescriptor
	DisableOutputSanitization bool

	controls *jsonschema.Schema
	outputs  *jsonschema.Schema
	results  *jsonschema.Schema
	code     string
}

// ProviderDescriptor is a provider transform attached to a step.
type ProviderDescriptor struct {
	ID           string
	Fn           api.ProviderFunc
	OutputSchema any

	outputs *jsonschema.Schema
	code    string
}

func newStepDescriptor(stepID string, t api.StepType, fn api.StepHandler, opts []api.StepOption) (*StepDescriptor, error) {
	if stepID == "" {
		return nil, errors.New("step id is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("step %q: handler is required", stepID)
	}
	o := api.BuildStepOptions(opts...)

	d := &StepDescriptor{
		StepID:                    stepID,
		Type:                      t,
		ControlSchema:             o.ControlSchema,
		OutputSchema:              o.OutputSchema,
		Handler:                   fn,
		Skip:                      o.Skip,
		DisableOutputSanitization: o.DisableOutputSanitization,
	}

	var err error
	if d.controls, err = schema.ToJSONSchema(o.ControlSchema); err != nil {
		return nil, fmt.Errorf("step %q control schema: %w", stepID, err)
	}
	if o.OutputSchema == nil {
		if d.outputs, err = outputSchemaFor(t); err != nil {
			return nil, err
		}
		d.OutputSchema = d.outputs
	} else if d.outputs, err = schema.ToJSONSchema(o.OutputSchema); err != nil {
		return nil, fmt.Errorf("step %q output schema: %w", stepID, err)
	}
	if d.results, err = resultSchemaFor(t, d.outputs); err != nil {
		return nil, err
	}

	for _, p := range o.Providers {
		if p.ID == "" || p.Fn == nil {
			return nil, fmt.Errorf("step %q: provider needs an id and a function", stepID)
		}
		pd := ProviderDescriptor{ID: p.ID, Fn: p.Fn, OutputSchema: p.OutputSchema}
		if pd.outputs, err = schema.ToJSONSchema(p.OutputSchema); err != nil {
			return nil, fmt.Errorf("step %q provider %q schema: %w", stepID, p.ID, err)
		}
		d.Providers = append(d.Providers, pd)
	}
	return d, nil
}

// recordSource looks up the handler and provider source text for discovery.
func (d *StepDescriptor) recordSource() {
	d.code = funcSource(d.Handler)
	for i := range d.Providers {
		d.Providers[i].code = funcSource(d.Providers[i].Fn)
	}
}

func (d *StepDescriptor) discover() api.DiscoverStepOutput {
	providers := make([]api.DiscoverProviderOutput, 0, len(d.Providers))
	for _, p := range d.Providers {
		providers = append(providers, api.DiscoverProviderOutput{
			ProviderID: p.ID,
			Code:       p.code,
			Outputs:    api.SchemaOutput{Schema: p.outputs},
		})
	}
	return api.DiscoverStepOutput{
		StepID:   d.StepID,
		Type:     d.Type,
		Code:     d.code,
		Controls: api.SchemaOutput{Schema: d.controls},
		Outputs:  api.SchemaOutput{Schema: d.outputs},
		Results:  api.SchemaOutput{Schema: d.results},
		Options: api.DiscoverStepOptions{
			HasSkip:                   d.Skip != nil,
			DisableOutputSanitization: d.DisableOutputSanitization,
		},
		Providers: providers,
	}
}
