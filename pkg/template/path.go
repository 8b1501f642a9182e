package template

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
)

// path is a compiled variable reference such as payload.comments[0].text.
type path struct {
	src  string
	code *gojq.Code
}

var pathCache sync.Map // string -> *path

// compilePath turns a dotted path into a jq query and compiles it.
func compilePath(src string) (*path, error) {
	if p, ok := pathCache.Load(src); ok {
		return p.(*path), nil
	}
	segs, err := splitPath(src)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteByte('.')
	for _, s := range segs {
		if s.isIndex {
			fmt.Fprintf(&b, "[%d]", s.index)
			continue
		}
		b.WriteString("[")
		b.WriteString(strconv.Quote(s.key))
		b.WriteString("]")
	}
	q, err := gojq.Parse(b.String())
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", src, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile path %q: %w", src, err)
	}
	p := &path{src: src, code: code}
	pathCache.Store(src, p)
	return p, nil
}

// resolve looks the path up in scope. Anything that cannot be resolved,
// including indexing into a scalar, yields nil.
func (p *path) resolve(scope map[string]any) any {
	iter := p.code.Run(scope)
	v, ok := iter.Next()
	if !ok {
		return nil
	}
	if _, isErr := v.(error); isErr {
		return nil
	}
	return v
}

type segment struct {
	key     string
	index   int
	isIndex bool
}

func splitPath(src string) ([]segment, error) {
	var segs []segment
	s := strings.TrimSpace(src)
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '.':
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated [ in path %q", src)
			}
			inner := strings.TrimSpace(s[i+1 : i+end])
			i += end + 1
			if n, err := strconv.Atoi(inner); err == nil {
				segs = append(segs, segment{index: n, isIndex: true})
				continue
			}
			if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0] {
				segs = append(segs, segment{key: inner[1 : len(inner)-1]})
				continue
			}
			return nil, fmt.Errorf("invalid index %q in path %q", inner, src)
		case isIdentChar(c):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			segs = append(segs, segment{key: s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected %q in path %q", c, src)
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty path %q", src)
	}
	return segs, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isPath reports whether s looks like a variable reference rather than a
// literal.
func isPath(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
