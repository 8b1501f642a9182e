package engine

import (
	"strings"
	"testing"
)

func namedHandlerForSource() string {
	return "named handler marker"
}

//go:noinline
func sameLineHandlers() (func() string, func() string) {
	return func() string { return "first marker" }, func() string { return "second marker" }
}

func TestFuncSource_SameLineClosures(t *testing.T) {
	first, second := sameLineHandlers()

	if got := funcSource(first); !strings.Contains(got, "first marker") || strings.Contains(got, "second marker") {
		t.Fatalf("unexpected source for first closure: %q", got)
	}
	if got := funcSource(second); !strings.Contains(got, "second marker") || strings.Contains(got, "first marker") {
		t.Fatalf("unexpected source for second closure: %q", got)
	}
}

func TestClosureByName(t *testing.T) {
	pf := loadFile("source_test.go")
	if pf == nil {
		t.Fatal("cannot parse source_test.go")
	}
	n := closureByName(pf.file, "github.com/petrijr/herald/internal/engine.sameLineHandlers.func2")
	if n == nil {
		t.Fatal("closure not found")
	}
	if src := string(pf.src[pf.fset.Position(n.Pos()).Offset:pf.fset.Position(n.End()).Offset]); !strings.Contains(src, "second marker") {
		t.Fatalf("wrong closure: %q", src)
	}
	if closureByName(pf.file, "github.com/petrijr/herald/internal/engine.sameLineHandlers.func3") != nil {
		t.Fatal("expected no third closure")
	}
}

func TestFuncSource(t *testing.T) {
	src := funcSource(namedHandlerForSource)
	if !strings.HasPrefix(src, "func namedHandlerForSource()") || !strings.Contains(src, "named handler marker") {
		t.Fatalf("unexpected source: %q", src)
	}

	lit := func() string { return "literal marker" }
	if got := funcSource(lit); !strings.Contains(got, "literal marker") {
		t.Fatalf("unexpected literal source: %q", got)
	}

	if got := funcSource(nil); got != "" {
		t.Fatalf("expected empty source for nil, got %q", got)
	}
	if got := funcSource(strings.ToUpper); got != "" && !strings.Contains(got, "ToUpper") {
		t.Fatalf("unexpected stdlib source: %q", got)
	}
}
