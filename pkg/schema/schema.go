package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/petrijr/herald/pkg/api"
)

// ErrUnsupportedSchema is returned when no adapter claims a schema value.
var ErrUnsupportedSchema = errors.New("schema: unsupported schema value")

// Result is the outcome of validating data against a schema.
//
// On success Data is a fresh copy of the input with declared defaults
// filled in. On failure Issues lists what was wrong.
type Result struct {
	Success bool
	Data    map[string]any
	Issues  []api.ValidationIssue
}

// Adapter handles one schema flavour.
type Adapter interface {
	// Name identifies the adapter in error messages and discovery.
	Name() string
	// CanHandle reports whether the adapter understands s. It never panics.
	CanHandle(s any) bool
	// Validate checks data against s.
	Validate(data any, s any) (Result, error)
	// ToJSONSchema converts s to the canonical representation.
	ToJSONSchema(s any) (*jsonschema.Schema, error)
}

// adapters are consulted in order; the first match wins.
var adapters = []Adapter{
	structAdapter{},
	jsonAdapter{},
	builderAdapter{},
}

// Lookup returns the adapter that handles s.
func Lookup(s any) (Adapter, error) {
	for _, a := range adapters {
		if a.CanHandle(s) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedSchema, s)
}

// Open returns the schema used when none was declared: any object.
func Open() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

// ToJSONSchema converts any supported schema value to its canonical form.
// A nil schema is an open object.
func ToJSONSchema(s any) (*jsonschema.Schema, error) {
	if s == nil {
		return Open(), nil
	}
	a, err := Lookup(s)
	if err != nil {
		return nil, err
	}
	return a.ToJSONSchema(s)
}

// Validate validates data against any supported schema value. A nil schema
// accepts any object.
func Validate(data any, s any) (Result, error) {
	if s == nil {
		return validateCanonical(data, Open())
	}
	a, err := Lookup(s)
	if err != nil {
		return Result{}, err
	}
	return a.Validate(data, s)
}

// validateCanonical copies data, fills defaults from c and validates the copy.
func validateCanonical(data any, c *jsonschema.Schema) (Result, error) {
	instance, err := normalize(data)
	if err != nil {
		return Result{}, err
	}
	if instance == nil {
		instance = map[string]any{}
	}

	resolved, err := c.Resolve(nil)
	if err != nil {
		return Result{}, fmt.Errorf("resolve schema: %w", err)
	}
	if err := resolved.ApplyDefaults(&instance); err != nil {
		return Result{}, fmt.Errorf("apply defaults: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return Result{Issues: collectIssues(c, instance, err)}, nil
	}

	obj, ok := instance.(map[string]any)
	if !ok {
		return Result{Issues: []api.ValidationIssue{{Message: fmt.Sprintf("expected an object, got %T", instance)}}}, nil
	}
	return Result{Success: true, Data: obj}, nil
}

// collectIssues reports one issue per failing property plus any failure of
// the object itself (required, additional properties). The validator stops
// at the first error, so each property is checked against a schema holding
// only that property. first is used when nothing narrower fails.
func collectIssues(s *jsonschema.Schema, instance any, first error) []api.ValidationIssue {
	obj, ok := instance.(map[string]any)
	if !ok || len(s.Properties) == 0 {
		return []api.ValidationIssue{issueFromError(first)}
	}

	var issues []api.ValidationIssue
	shell := s.CloneSchemas()
	for name := range shell.Properties {
		shell.Properties[name] = &jsonschema.Schema{}
	}
	if err := validateWith(shell, obj); err != nil {
		issues = append(issues, issueFromError(err))
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, present := obj[name]
		if !present {
			continue
		}
		one := s.CloneSchemas()
		one.Properties = map[string]*jsonschema.Schema{name: s.Properties[name]}
		one.Required = nil
		one.AdditionalProperties = nil
		one.PatternProperties = nil
		one.AllOf, one.AnyOf, one.OneOf, one.Not = nil, nil, nil, nil
		one.If, one.Then, one.Else = nil, nil, nil
		if err := validateWith(one, map[string]any{name: v}); err != nil {
			issues = append(issues, issueFromError(err))
		}
	}

	if len(issues) == 0 {
		return []api.ValidationIssue{issueFromError(first)}
	}
	return issues
}

func validateWith(s *jsonschema.Schema, instance any) error {
	r, err := s.Resolve(nil)
	if err != nil {
		return err
	}
	return r.Validate(instance)
}

// normalize deep copies v through its JSON encoding so that every value is a
// plain JSON type (map[string]any, []any, float64, string, bool, nil).
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// Clone returns a deep copy of m made of plain JSON values.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	v, err := normalize(m)
	if err != nil {
		return nil
	}
	out, _ := v.(map[string]any)
	return out
}

// issueFromError turns a jsonschema validation error chain into an issue.
// The chain reads "validating root: validating /properties/a: type: ...";
// the innermost schema pointer becomes the instance path.
func issueFromError(err error) api.ValidationIssue {
	msg := err.Error()
	path := ""
	for {
		i := strings.Index(msg, "validating ")
		if i != 0 {
			break
		}
		rest := msg[len("validating "):]
		j := strings.Index(rest, ": ")
		if j < 0 {
			break
		}
		if ptr := rest[:j]; strings.HasPrefix(ptr, "/") {
			path = instancePath(ptr)
		}
		msg = rest[j+2:]
	}
	return api.ValidationIssue{Path: path, Message: msg}
}

func instancePath(schemaPtr string) string {
	parts := strings.Split(strings.TrimPrefix(schemaPtr, "/"), "/")
	out := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		if parts[i] == "properties" && i+1 < len(parts) {
			out = append(out, parts[i+1])
			i++
			continue
		}
		out = append(out, parts[i])
	}
	return "/" + strings.Join(out, "/")
}

// canonicalize clones s and removes properties that carry a default from the
// required lists, recursively. That is the unvalidated view of a schema:
// callers may omit anything that has a default.
func canonicalize(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return nil
	}
	c := s.CloneSchemas()
	relaxRequired(c)
	return c
}

func relaxRequired(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	if len(s.Required) > 0 && len(s.Properties) > 0 {
		kept := s.Required[:0:0]
		for _, name := range s.Required {
			if p, ok := s.Properties[name]; ok && p != nil && p.Default != nil {
				continue
			}
			kept = append(kept, name)
		}
		if len(kept) == 0 {
			kept = nil
		}
		s.Required = kept
	}
	for _, p := range s.Properties {
		relaxRequired(p)
	}
	relaxRequired(s.Items)
	for _, sub := range s.AllOf {
		relaxRequired(sub)
	}
	for _, sub := range s.AnyOf {
		relaxRequired(sub)
	}
	for _, sub := range s.OneOf {
		relaxRequired(sub)
	}
	for _, sub := range s.Defs {
		relaxRequired(sub)
	}
	for _, sub := range s.Definitions {
		relaxRequired(sub)
	}
}
