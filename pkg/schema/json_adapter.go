package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// schemaKeywords mark a map as a JSON schema rather than plain data.
var schemaKeywords = []string{"type", "properties", "$ref", "anyOf", "oneOf", "allOf", "enum"}

// jsonAdapter handles schemas written as JSON Schema documents.
type jsonAdapter struct{}

func (jsonAdapter) Name() string { return "json-schema" }

func (jsonAdapter) CanHandle(s any) bool {
	switch v := s.(type) {
	case *jsonschema.Schema:
		return v != nil
	case jsonschema.Schema:
		return true
	case json.RawMessage:
		return isSchemaDocument(v)
	case []byte:
		return isSchemaDocument(v)
	case map[string]any:
		return hasSchemaKeyword(v)
	}
	return false
}

func (a jsonAdapter) Validate(data any, s any) (Result, error) {
	c, err := a.ToJSONSchema(s)
	if err != nil {
		return Result{}, err
	}
	return validateCanonical(data, c)
}

func (jsonAdapter) ToJSONSchema(s any) (*jsonschema.Schema, error) {
	var raw []byte
	switch v := s.(type) {
	case *jsonschema.Schema:
		return canonicalize(v), nil
	case jsonschema.Schema:
		return canonicalize(&v), nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json schema: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSchema, s)
	}

	var parsed jsonschema.Schema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode json schema: %w", err)
	}
	relaxRequired(&parsed)
	return &parsed, nil
}

func isSchemaDocument(b []byte) bool {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return false
	}
	return hasSchemaKeyword(m)
}

func hasSchemaKeyword(m map[string]any) bool {
	for _, k := range schemaKeywords {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
