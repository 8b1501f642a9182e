package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Builder is a fluent schema description.
//
//	schema.Object().
//		Field("name", schema.String().Default("default_name")).
//		Field("age", schema.Integer().Min(0).Optional())
//
// Builders are values under construction; do not share one between
// goroutines while it is still being modified.
type Builder struct {
	typ         string
	description string

	fields []field
	items  *Builder
	strict bool

	enum     []any
	min, max *float64
	minLen   *int
	maxLen   *int
	pattern  string
	format   string
	optional bool
	hasDef   bool
	def      any
	nullable bool
}

type field struct {
	name string
	b    *Builder
}

// Object starts an object schema. Unknown properties are allowed unless
// Strict is called.
func Object() *Builder { return &Builder{typ: "object"} }

// String starts a string schema.
func String() *Builder { return &Builder{typ: "string"} }

// Number starts a number schema.
func Number() *Builder { return &Builder{typ: "number"} }

// Integer starts an integer schema.
func Integer() *Builder { return &Builder{typ: "integer"} }

// Boolean starts a boolean schema.
func Boolean() *Builder { return &Builder{typ: "boolean"} }

// Array starts an array schema whose items match items.
func Array(items *Builder) *Builder { return &Builder{typ: "array", items: items} }

// Any accepts every value.
func Any() *Builder { return &Builder{} }

// Enum starts a string schema restricted to values.
func Enum(values ...string) *Builder {
	b := String()
	for _, v := range values {
		b.enum = append(b.enum, v)
	}
	return b
}

// Field adds a property to an object schema. Adding the same name twice
// replaces the earlier definition.
func (b *Builder) Field(name string, fb *Builder) *Builder {
	if fb == nil {
		panic("schema: field builder must not be nil")
	}
	for i := range b.fields {
		if b.fields[i].name == name {
			b.fields[i].b = fb
			return b
		}
	}
	b.fields = append(b.fields, field{name: name, b: fb})
	return b
}

// Strict rejects objects carrying properties that were not declared.
func (b *Builder) Strict() *Builder { b.strict = true; return b }

// Optional marks the value as not required in its parent object.
func (b *Builder) Optional() *Builder { b.optional = true; return b }

// Nullable also accepts null.
func (b *Builder) Nullable() *Builder { b.nullable = true; return b }

// Default sets the value used when the property is missing. A property with
// a default is never required.
func (b *Builder) Default(v any) *Builder {
	b.hasDef = true
	b.def = v
	return b
}

// Describe sets the description.
func (b *Builder) Describe(d string) *Builder { b.description = d; return b }

// Min sets the minimum for numbers, the minimum length for strings and the
// minimum item count for arrays.
func (b *Builder) Min(n float64) *Builder {
	switch b.typ {
	case "string", "array":
		v := int(n)
		b.minLen = &v
	default:
		b.min = &n
	}
	return b
}

// Max is the upper bound counterpart of Min.
func (b *Builder) Max(n float64) *Builder {
	switch b.typ {
	case "string", "array":
		v := int(n)
		b.maxLen = &v
	default:
		b.max = &n
	}
	return b
}

// Pattern restricts strings to a regular expression.
func (b *Builder) Pattern(re string) *Builder { b.pattern = re; return b }

// Format sets the string format, e.g. "email" or "date-time".
func (b *Builder) Format(f string) *Builder { b.format = f; return b }

// JSONSchema renders the builder as a JSON schema.
func (b *Builder) JSONSchema() (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{Description: b.description, Pattern: b.pattern, Format: b.format}
	switch {
	case b.typ != "" && b.nullable:
		s.Types = []string{b.typ, "null"}
	case b.typ != "":
		s.Type = b.typ
	}
	if len(b.enum) > 0 {
		s.Enum = append([]any(nil), b.enum...)
	}
	s.Minimum, s.Maximum = b.min, b.max

	switch b.typ {
	case "string":
		s.MinLength, s.MaxLength = b.minLen, b.maxLen
	case "array":
		s.MinItems, s.MaxItems = b.minLen, b.maxLen
		if b.items != nil {
			items, err := b.items.JSONSchema()
			if err != nil {
				return nil, err
			}
			s.Items = items
		}
	case "object":
		s.Properties = make(map[string]*jsonschema.Schema, len(b.fields))
		for _, f := range b.fields {
			fs, err := f.b.JSONSchema()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.name, err)
			}
			s.Properties[f.name] = fs
			s.PropertyOrder = append(s.PropertyOrder, f.name)
			if !f.b.optional && !f.b.hasDef {
				s.Required = append(s.Required, f.name)
			}
		}
		if b.strict {
			s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		}
	}

	if b.hasDef {
		raw, err := json.Marshal(b.def)
		if err != nil {
			return nil, fmt.Errorf("encode default: %w", err)
		}
		s.Default = raw
	}
	return s, nil
}

// builderAdapter handles *Builder schemas.
type builderAdapter struct{}

func (builderAdapter) Name() string { return "builder" }

func (builderAdapter) CanHandle(s any) bool {
	b, ok := s.(*Builder)
	return ok && b != nil
}

func (a builderAdapter) Validate(data any, s any) (Result, error) {
	c, err := a.ToJSONSchema(s)
	if err != nil {
		return Result{}, err
	}
	return validateCanonical(data, c)
}

func (builderAdapter) ToJSONSchema(s any) (*jsonschema.Schema, error) {
	b, ok := s.(*Builder)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSchema, s)
	}
	return b.JSONSchema()
}
