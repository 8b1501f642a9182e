package engine

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/schema"
)

var timeUnits = []string{"seconds", "minutes", "hours", "days", "weeks", "months"}

func action() *schema.Builder {
	return schema.Object().
		Field("label", schema.String()).
		Field("redirect", redirect().Optional())
}

func redirect() *schema.Builder {
	return schema.Object().
		Field("url", schema.String()).
		Field("target", schema.Enum("_self", "_blank", "_parent", "_top", "_unfencedTop").Optional())
}

// builtinOutputs are the output schemas of steps declared without one.
var builtinOutputs = map[api.StepType]*schema.Builder{
	api.StepTypeEmail: schema.Object().
		Field("subject", schema.String()).
		Field("body", schema.String()),
	api.StepTypeSMS: schema.Object().
		Field("body", schema.String()),
	api.StepTypeChat: schema.Object().
		Field("body", schema.String()),
	api.StepTypePush: schema.Object().
		Field("subject", schema.String()).
		Field("body", schema.String()),
	api.StepTypeInApp: schema.Object().
		Field("subject", schema.String().Optional()).
		Field("body", schema.String()).
		Field("avatar", schema.String().Format("uri").Optional()).
		Field("primaryAction", action().Optional()).
		Field("secondaryAction", action().Optional()).
		Field("data", schema.Object().Optional()).
		Field("redirect", redirect().Optional()),
	api.StepTypeDelay: schema.Object().
		Field("type", schema.Enum("regular", "scheduled").Default("regular")).
		Field("amount", schema.Number().Min(0).Optional()).
		Field("unit", schema.Enum(timeUnits...).Optional()).
		Field("delayPath", schema.String().Optional()),
	api.StepTypeDigest: schema.Object().
		Field("type", schema.Enum("regular", "timed").Default("regular")).
		Field("amount", schema.Number().Min(0).Optional()).
		Field("unit", schema.Enum(timeUnits...).Optional()).
		Field("cron", schema.String().Optional()).
		Field("digestKey", schema.String().Optional()).
		Field("lookBackWindow", schema.Object().
			Field("amount", schema.Number().Min(0)).
			Field("unit", schema.Enum(timeUnits...)).
			Optional()),
}

// builtinResults describe what a step hands to the steps after it.
var builtinResults = map[api.StepType]*schema.Builder{
	api.StepTypeInApp: schema.Object().
		Field("seen", schema.Boolean()).
		Field("read", schema.Boolean()).
		Field("lastSeenDate", schema.String().Format("date-time").Nullable()).
		Field("lastReadDate", schema.String().Format("date-time").Nullable()),
	api.StepTypeDigest: schema.Object().
		Field("events", schema.Array(schema.Object().
			Field("id", schema.String()).
			Field("time", schema.String()).
			Field("payload", schema.Object()))),
	api.StepTypeDelay: schema.Object().
		Field("duration", schema.Number()),
}

// outputSchemaFor returns the default output schema of a step type.
func outputSchemaFor(t api.StepType) (*jsonschema.Schema, error) {
	b, ok := builtinOutputs[t]
	if !ok {
		return schema.Open(), nil
	}
	s, err := b.JSONSchema()
	if err != nil {
		return nil, fmt.Errorf("%s output schema: %w", t, err)
	}
	return s, nil
}

// resultSchemaFor returns the result schema of a step type. Custom steps
// hand their outputs on, so their results are their outputs.
func resultSchemaFor(t api.StepType, outputs *jsonschema.Schema) (*jsonschema.Schema, error) {
	if t == api.StepTypeCustom {
		return outputs, nil
	}
	b, ok := builtinResults[t]
	if !ok {
		return &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}}, nil
	}
	s, err := b.JSONSchema()
	if err != nil {
		return nil, fmt.Errorf("%s result schema: %w", t, err)
	}
	return s, nil
}
