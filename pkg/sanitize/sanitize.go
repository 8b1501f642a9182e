// Package sanitize strips unsafe markup from rendered step outputs.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy keeps user generated content markup (links, formatting, images)
// and drops scripts, styles and event handlers together with their content.
var policy = bluemonday.UGCPolicy()

// String sanitizes a single string. Strings without markup are returned
// verbatim so that plain text such as "Smith's" is never entity encoded.
func String(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return policy.Sanitize(s)
}

// Value returns a copy of v with every string leaf sanitized. Maps and
// slices are walked recursively; other values are returned unchanged.
func Value(v any) any {
	switch val := v.(type) {
	case string:
		return String(val)
	case map[string]any:
		return Map(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Value(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = String(item)
		}
		return out
	}
	return v
}

// Map is Value for the common case of a step output.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}
