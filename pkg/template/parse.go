package template

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type node interface{}

type textNode struct{ text string }

type outputNode struct {
	value   operand
	filters []filterCall
}

type forNode struct {
	variable string
	source   *path
	body     []node
}

type ifNode struct {
	cond *vm.Program
	src  string
	then []node
	els  []node
}

// operand is either a path or a literal.
type operand struct {
	path    *path
	literal any
}

type filterCall struct {
	name string
	args []operand
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokOutput
	tokTag
)

type token struct {
	kind tokenKind
	body string
}

func lex(src string) ([]token, error) {
	var toks []token
	for len(src) > 0 {
		out := strings.Index(src, "{{")
		tag := strings.Index(src, "{%")
		start, open, closer, kind := -1, "", "", tokText
		switch {
		case out >= 0 && (tag < 0 || out < tag):
			start, open, closer, kind = out, "{{", "}}", tokOutput
		case tag >= 0:
			start, open, closer, kind = tag, "{%", "%}", tokTag
		}
		if start < 0 {
			toks = append(toks, token{kind: tokText, body: src})
			break
		}
		if start > 0 {
			toks = append(toks, token{kind: tokText, body: src[:start]})
		}
		rest := src[start+len(open):]
		end := strings.Index(rest, closer)
		if end < 0 {
			return nil, fmt.Errorf("unclosed %s", open)
		}
		body := strings.TrimSpace(strings.Trim(rest[:end], "-"))
		toks = append(toks, token{kind: kind, body: body})
		src = rest[end+len(closer):]
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

// parseNodes parses until one of the stop tags (e.g. "endfor") and returns
// the nodes plus the tag that stopped it.
func (p *parser) parseNodes(stop ...string) ([]node, string, error) {
	var nodes []node
	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		p.pos++
		switch t.kind {
		case tokText:
			nodes = append(nodes, textNode{text: t.body})
		case tokOutput:
			n, err := parseOutput(t.body)
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, n)
		case tokTag:
			name, args, _ := strings.Cut(t.body, " ")
			args = strings.TrimSpace(args)
			for _, s := range stop {
				if name == s {
					return nodes, name, nil
				}
			}
			switch name {
			case "for":
				n, err := p.parseFor(args)
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, n)
			case "if":
				n, err := p.parseIf(args)
				if err != nil {
					return nil, "", err
				}
				nodes = append(nodes, n)
			default:
				return nil, "", fmt.Errorf("unknown tag %q", name)
			}
		}
	}
	if len(stop) > 0 {
		return nil, "", fmt.Errorf("missing {%% %s %%}", stop[len(stop)-1])
	}
	return nodes, "", nil
}

func (p *parser) parseFor(args string) (node, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 || fields[1] != "in" {
		return nil, fmt.Errorf("for: expected \"x in path\", got %q", args)
	}
	src, err := compilePath(fields[2])
	if err != nil {
		return nil, err
	}
	body, _, err := p.parseNodes("endfor")
	if err != nil {
		return nil, err
	}
	return &forNode{variable: fields[0], source: src, body: body}, nil
}

func (p *parser) parseIf(cond string) (node, error) {
	if cond == "" {
		return nil, fmt.Errorf("if: missing condition")
	}
	prog, err := expr.Compile(liquidToExpr(cond), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("if %q: %w", cond, err)
	}
	n := &ifNode{cond: prog, src: cond}
	body, stop, err := p.parseNodes("else", "endif")
	if err != nil {
		return nil, err
	}
	n.then = body
	if stop == "else" {
		n.els, _, err = p.parseNodes("endif")
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// liquidToExpr maps the Liquid spellings of boolean operators to expr's.
func liquidToExpr(cond string) string {
	r := strings.NewReplacer(" and ", " && ", " or ", " || ")
	return r.Replace(cond)
}

func parseOutput(body string) (node, error) {
	parts := splitOutside(body, '|')
	if strings.TrimSpace(parts[0]) == "" {
		return nil, fmt.Errorf("empty output tag")
	}
	value, err := parseOperand(parts[0])
	if err != nil {
		return nil, err
	}
	n := outputNode{value: value}
	for _, raw := range parts[1:] {
		name, argSrc, hasArgs := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if _, ok := filters[name]; !ok {
			return nil, fmt.Errorf("unknown filter %q", name)
		}
		call := filterCall{name: name}
		if hasArgs {
			for _, a := range splitOutside(argSrc, ',') {
				op, err := parseOperand(a)
				if err != nil {
					return nil, err
				}
				call.args = append(call.args, op)
			}
		}
		n.filters = append(n.filters, call)
	}
	return n, nil
}

func parseOperand(src string) (operand, error) {
	s := strings.TrimSpace(src)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return operand{literal: s[1 : len(s)-1]}, nil
	}
	switch s {
	case "true":
		return operand{literal: true}, nil
	case "false":
		return operand{literal: false}, nil
	case "nil", "null":
		return operand{}, nil
	}
	if n, ok := parseNumber(s); ok {
		return operand{literal: n}, nil
	}
	if !isPath(s) {
		return operand{}, fmt.Errorf("invalid operand %q", s)
	}
	p, err := compilePath(s)
	if err != nil {
		return operand{}, err
	}
	return operand{path: p}, nil
}

// splitOutside splits s on sep, ignoring separators inside quotes.
func splitOutside(s string, sep byte) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
