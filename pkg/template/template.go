package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// Undefined is what a reference to a missing or null value renders as.
const Undefined = "undefined"

// Template is a parsed template. It is immutable and safe for concurrent
// use.
type Template struct {
	src   string
	nodes []node
}

// Parse parses src.
func Parse(src string) (*Template, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	p := &parser{toks: toks}
	nodes, _, err := p.parseNodes()
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	return &Template{src: src, nodes: nodes}, nil
}

// Source returns the text the template was parsed from.
func (t *Template) Source() string { return t.src }

// Render executes the template against data.
func (t *Template) Render(data map[string]any) (string, error) {
	scope, err := normalizeScope(data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := render(&b, t.nodes, scope); err != nil {
		return "", err
	}
	return b.String(), nil
}

// HasTags reports whether s contains any template markup.
func HasTags(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// Compile parses and renders src in one go. Strings without markup are
// returned unchanged.
func Compile(src string, data map[string]any) (string, error) {
	if !HasTags(src) {
		return src, nil
	}
	t, err := Parse(src)
	if err != nil {
		return "", err
	}
	return t.Render(data)
}

// CompileValue walks maps and slices and compiles every string leaf. The
// input is not modified.
func CompileValue(v any, data map[string]any) (any, error) {
	scope, err := normalizeScope(data)
	if err != nil {
		return nil, err
	}
	return compileValue(v, scope)
}

func compileValue(v any, scope map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if !HasTags(val) {
			return val, nil
		}
		t, err := Parse(val)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		if err := render(&b, t.nodes, scope); err != nil {
			return nil, err
		}
		return b.String(), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			c, err := compileValue(child, scope)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			c, err := compileValue(child, scope)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	return v, nil
}

func normalizeScope(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("template: encode data: %w", err)
	}
	var scope map[string]any
	if err := json.Unmarshal(b, &scope); err != nil {
		return nil, fmt.Errorf("template: decode data: %w", err)
	}
	return scope, nil
}

func render(b *strings.Builder, nodes []node, scope map[string]any) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case textNode:
			b.WriteString(n.text)
		case outputNode:
			v := n.value.eval(scope)
			for _, f := range n.filters {
				args := make([]any, len(f.args))
				for i, a := range f.args {
					args[i] = a.eval(scope)
				}
				out, err := filters[f.name](v, args)
				if err != nil {
					return fmt.Errorf("template: filter %s: %w", f.name, err)
				}
				v = out
			}
			b.WriteString(stringify(v))
		case *forNode:
			items, _ := n.source.resolve(scope).([]any)
			for i, item := range items {
				child := make(map[string]any, len(scope)+2)
				for k, v := range scope {
					child[k] = v
				}
				child[n.variable] = item
				child["forloop"] = map[string]any{
					"index":  i + 1,
					"index0": i,
					"first":  i == 0,
					"last":   i == len(items)-1,
					"length": len(items),
				}
				if err := render(b, n.body, child); err != nil {
					return err
				}
			}
		case *ifNode:
			branch := n.els
			if out, err := expr.Run(n.cond, scope); err == nil && truthy(out) {
				branch = n.then
			}
			if err := render(b, branch, scope); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o operand) eval(scope map[string]any) any {
	if o.path != nil {
		return o.path.resolve(scope)
	}
	return o.literal
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	}
	return true
}

// stringify renders a value for output. Composite values are JSON with
// single quotes.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return Undefined
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case map[string]any, []any:
		s, err := encodeComposite(val, 0)
		if err != nil {
			return fmt.Sprint(val)
		}
		return s
	}
	return fmt.Sprint(v)
}

func encodeComposite(v any, indent int) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.ReplaceAll(strings.TrimRight(buf.String(), "\n"), `"`, "'"), nil
}

func parseNumber(s string) (float64, bool) {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
