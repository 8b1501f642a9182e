package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/petrijr/herald/pkg/api"
)

// Names of the optional modules the struct adapter depends on.
const (
	ModuleJSONSchemaReflect = "jsonschema-reflect"
	ModuleStructDecode      = "struct-decode"
)

// ForTypeFunc is the "ForType" export of the jsonschema-reflect module.
type ForTypeFunc func(t reflect.Type) (*jsonschema.Schema, error)

// DecodeFunc is the "Decode" export of the struct-decode module. It decodes
// a plain JSON value into out, which is a pointer to a struct.
type DecodeFunc func(input any, out any) error

var structRequirements = []Requirement{
	{Name: ModuleJSONSchemaReflect, Exports: []string{"ForType"}},
	{Name: ModuleStructDecode, Exports: []string{"Decode"}},
}

// Class is a struct type used as a schema.
type Class struct {
	t reflect.Type
}

// ClassOf returns the schema described by the struct type T.
//
//	type Payload struct {
//		Name string `json:"name" default:"default_name"`
//	}
//	herald.New("greet", fn).PayloadSchema(schema.ClassOf[Payload]())
func ClassOf[T any]() Class {
	return Class{t: reflect.TypeFor[T]()}
}

// Type returns the struct type.
func (c Class) Type() reflect.Type { return c.t }

// structAdapter derives schemas from Go struct types.
type structAdapter struct{}

func (structAdapter) Name() string { return "struct" }

func (structAdapter) CanHandle(s any) bool {
	return structType(s) != nil
}

func structType(s any) reflect.Type {
	var t reflect.Type
	switch v := s.(type) {
	case Class:
		t = v.t
	case reflect.Type:
		t = v
	default:
		return nil
	}
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

func (a structAdapter) Validate(data any, s any) (Result, error) {
	if err := CheckRequirements(structRequirements, "struct schema"); err != nil {
		return Result{}, err
	}
	t := structType(s)
	c, err := a.ToJSONSchema(s)
	if err != nil {
		return Result{}, err
	}

	instance, err := normalize(data)
	if err != nil {
		return Result{}, err
	}
	stripUnknown(instance, c)

	res, err := validateCanonical(instance, c)
	if err != nil || !res.Success {
		return res, err
	}

	decode, ok := decodeExport()
	if !ok {
		return Result{}, api.NewMissingDependencyError("struct schema", []string{ModuleStructDecode})
	}
	out := reflect.New(t)
	if err := decode(res.Data, out.Interface()); err != nil {
		return Result{Issues: []api.ValidationIssue{{Message: err.Error()}}}, nil
	}

	plain, err := normalize(out.Interface())
	if err != nil {
		return Result{}, err
	}
	obj, _ := plain.(map[string]any)
	return Result{Success: true, Data: obj}, nil
}

func (structAdapter) ToJSONSchema(s any) (*jsonschema.Schema, error) {
	if err := CheckRequirements(structRequirements, "struct schema"); err != nil {
		return nil, err
	}
	t := structType(s)
	if t == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSchema, s)
	}
	forType, ok := forTypeExport()
	if !ok {
		return nil, api.NewMissingDependencyError("struct schema", []string{ModuleJSONSchemaReflect})
	}

	js, err := forType(t)
	if err != nil {
		return nil, fmt.Errorf("derive schema for %s: %w", t, err)
	}
	if err := applyDefaultTags(t, js); err != nil {
		return nil, err
	}
	relaxRequired(js)
	return js, nil
}

func forTypeExport() (ForTypeFunc, bool) {
	exp, _ := LookupExport(ModuleJSONSchemaReflect, "ForType")
	switch f := exp.(type) {
	case ForTypeFunc:
		return f, true
	case func(reflect.Type) (*jsonschema.Schema, error):
		return f, true
	}
	return nil, false
}

func decodeExport() (DecodeFunc, bool) {
	exp, _ := LookupExport(ModuleStructDecode, "Decode")
	switch f := exp.(type) {
	case DecodeFunc:
		return f, true
	case func(any, any) error:
		return f, true
	}
	return nil, false
}

// applyDefaultTags copies `default:"..."` struct tags into the schema.
// Non-string fields take the tag as a JSON literal.
func applyDefaultTags(t reflect.Type, s *jsonschema.Schema) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s == nil {
		return nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return applyDefaultTags(t.Elem(), s.Items)
	case reflect.Struct:
	default:
		return nil
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, skip := jsonFieldName(f)
		if skip {
			continue
		}
		if name == "" && f.Anonymous {
			if err := applyDefaultTags(f.Type, s); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		prop := s.Properties[name]
		if prop == nil {
			continue
		}
		if tag, ok := f.Tag.Lookup("default"); ok {
			raw, err := defaultLiteral(f.Type, tag)
			if err != nil {
				return fmt.Errorf("default tag on %s.%s: %w", t, f.Name, err)
			}
			prop.Default = raw
		}
		if err := applyDefaultTags(f.Type, prop); err != nil {
			return err
		}
	}
	return nil
}

func jsonFieldName(f reflect.StructField) (name string, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	return name, false
}

func defaultLiteral(t reflect.Type, tag string) (json.RawMessage, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.String {
		return json.Marshal(tag)
	}
	if !json.Valid([]byte(tag)) {
		return nil, fmt.Errorf("%q is not a JSON literal", tag)
	}
	return json.RawMessage(tag), nil
}

// stripUnknown drops keys that a closed object schema does not declare.
func stripUnknown(v any, s *jsonschema.Schema) {
	if s == nil {
		return
	}
	switch val := v.(type) {
	case map[string]any:
		closed := isFalseSchema(s.AdditionalProperties)
		for k, child := range val {
			prop, ok := s.Properties[k]
			if !ok {
				if closed && len(s.Properties) > 0 {
					delete(val, k)
				}
				continue
			}
			stripUnknown(child, prop)
		}
	case []any:
		for _, item := range val {
			stripUnknown(item, s.Items)
		}
	}
}

func isFalseSchema(s *jsonschema.Schema) bool {
	return s != nil && s.Not != nil && reflect.DeepEqual(*s.Not, jsonschema.Schema{})
}
