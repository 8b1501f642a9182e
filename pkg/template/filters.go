package template

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type filterFunc func(v any, args []any) (any, error)

var filters map[string]filterFunc

func init() {
	filters = map[string]filterFunc{
		"json":       jsonFilter,
		"default":    defaultFilter,
		"upcase":     stringFilter(strings.ToUpper),
		"downcase":   stringFilter(strings.ToLower),
		"capitalize": stringFilter(capitalize),
		"strip":      stringFilter(strings.TrimSpace),
		"size":       sizeFilter,
		"join":       joinFilter,
		"first":      firstFilter,
		"last":       lastFilter,
		"append":     appendFilter,
		"prepend":    prependFilter,
	}
}

// maxJSONIndent matches the JSON.stringify cap on indentation.
const maxJSONIndent = 10

func jsonFilter(v any, args []any) (any, error) {
	indent := 0
	if len(args) > 0 {
		n, ok := args[0].(float64)
		if !ok || n < 0 {
			return nil, fmt.Errorf("indent must be a non-negative number, got %v", args[0])
		}
		indent = int(min(n, maxJSONIndent))
	}
	return encodeComposite(v, indent)
}

func defaultFilter(v any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("default needs a value")
	}
	switch val := v.(type) {
	case nil:
		return args[0], nil
	case string:
		if val == "" {
			return args[0], nil
		}
	case bool:
		if !val {
			return args[0], nil
		}
	}
	return v, nil
}

func stringFilter(fn func(string) string) filterFunc {
	return func(v any, _ []any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return fn(stringify(v)), nil
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func sizeFilter(v any, _ []any) (any, error) {
	switch val := v.(type) {
	case string:
		return utf8.RuneCountInString(val), nil
	case []any:
		return len(val), nil
	case map[string]any:
		return len(val), nil
	}
	return 0, nil
}

func joinFilter(v any, args []any) (any, error) {
	sep := " "
	if len(args) > 0 && args[0] != nil {
		sep = plain(args[0])
	}
	items, ok := v.([]any)
	if !ok {
		return v, nil
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = plain(item)
	}
	return strings.Join(parts, sep), nil
}

func firstFilter(v any, _ []any) (any, error) {
	switch val := v.(type) {
	case []any:
		if len(val) > 0 {
			return val[0], nil
		}
	case string:
		if r, _ := utf8.DecodeRuneInString(val); r != utf8.RuneError {
			return string(r), nil
		}
	}
	return nil, nil
}

func lastFilter(v any, _ []any) (any, error) {
	switch val := v.(type) {
	case []any:
		if len(val) > 0 {
			return val[len(val)-1], nil
		}
	case string:
		if r, _ := utf8.DecodeLastRuneInString(val); r != utf8.RuneError {
			return string(r), nil
		}
	}
	return nil, nil
}

func appendFilter(v any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("append needs a value")
	}
	return plain(v) + plain(args[0]), nil
}

func prependFilter(v any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("prepend needs a value")
	}
	return plain(args[0]) + plain(v), nil
}

// plain is stringify with nil as the empty string.
func plain(v any) string {
	if v == nil {
		return ""
	}
	return stringify(v)
}
