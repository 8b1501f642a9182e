package schema

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Placeholder is the mock value generated for string properties.
const Placeholder = "[placeholder]"

// Defaults returns the defaults declared by an object schema as a nested map.
// Objects without a default of their own contribute the defaults of their
// properties. Properties without any default are absent.
func Defaults(s *jsonschema.Schema) map[string]any {
	out := map[string]any{}
	if s == nil {
		return out
	}
	for name, prop := range s.Properties {
		if prop == nil {
			continue
		}
		if v, ok := decodeDefault(prop); ok {
			out[name] = v
			continue
		}
		if len(prop.Properties) > 0 {
			if nested := Defaults(prop); len(nested) > 0 {
				out[name] = nested
			}
		}
	}
	return out
}

// Mock generates a value that satisfies the shape of s, for previews and
// discovery. Declared defaults win; otherwise the first enum value, then a
// per-type placeholder: "[placeholder]" for strings, the minimum or 0 for
// numbers, false for booleans and an empty array for arrays.
func Mock(s *jsonschema.Schema) map[string]any {
	v, _ := mockValue(s, 0).(map[string]any)
	if v == nil {
		return map[string]any{}
	}
	return v
}

const maxMockDepth = 8

func mockValue(s *jsonschema.Schema, depth int) any {
	if s == nil {
		return nil
	}
	if v, ok := decodeDefault(s); ok {
		return v
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}
	if s.Const != nil {
		return *s.Const
	}

	typ := s.Type
	if typ == "" {
		for _, t := range s.Types {
			if t != "null" {
				typ = t
				break
			}
		}
	}
	if typ == "" && len(s.Properties) > 0 {
		typ = "object"
	}
	if typ == "" {
		for _, alts := range [][]*jsonschema.Schema{s.AnyOf, s.OneOf, s.AllOf} {
			if len(alts) > 0 {
				return mockValue(alts[0], depth+1)
			}
		}
	}

	switch typ {
	case "object":
		out := map[string]any{}
		if depth >= maxMockDepth {
			return out
		}
		for name, prop := range s.Properties {
			out[name] = mockValue(prop, depth+1)
		}
		return out
	case "array":
		return []any{}
	case "string":
		return Placeholder
	case "number", "integer":
		if s.Minimum != nil {
			return *s.Minimum
		}
		return 0
	case "boolean":
		return false
	}
	return nil
}

func decodeDefault(s *jsonschema.Schema) (any, bool) {
	if s.Default == nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(s.Default, &v); err != nil {
		return nil, false
	}
	return v, true
}
