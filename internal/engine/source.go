package engine

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
)

type parsedFile struct {
	fset *token.FileSet
	file *ast.File
	src  []byte
}

var sourceCache sync.Map // filename -> *parsedFile (nil when unreadable)

// funcSource returns the source text of fn, or "" when the source file is
// not available.
func funcSource(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	filename, line := f.FileLine(f.Entry())

	pf := loadFile(filename)
	if pf == nil {
		return ""
	}

	var candidates []ast.Node
	ast.Inspect(pf.file, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FuncLit, *ast.FuncDecl:
			start := pf.fset.Position(n.Pos()).Line
			end := pf.fset.Position(n.End()).Line
			if line < start || line > end {
				return false
			}
			if start == line {
				candidates = append(candidates, n)
			}
		}
		return true
	})
	if len(candidates) == 0 {
		return ""
	}
	// Line information cannot tell apart functions declared on the same
	// line; the compiler's closure name can.
	best := candidates[0]
	if len(candidates) > 1 {
		if n := closureByName(pf.file, f.Name()); n != nil && pf.fset.Position(n.Pos()).Line == line {
			best = n
		}
	}
	start := pf.fset.Position(best.Pos()).Offset
	end := pf.fset.Position(best.End()).Offset
	if start < 0 || end > len(pf.src) || start >= end {
		return ""
	}
	return string(pf.src[start:end])
}

// closureByName finds the function literal the compiler named name, e.g.
// "example.com/pkg.(*T).Run.func2.1": the first literal nested in the
// second literal of method Run. Numbering follows source order.
func closureByName(file *ast.File, name string) ast.Node {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	_, name, ok := strings.Cut(name, ".")
	if !ok || strings.Contains(name, "[") {
		return nil
	}
	parts := strings.Split(name, ".")

	k := slices.IndexFunc(parts, func(p string) bool {
		n, ok := strings.CutPrefix(p, "func")
		return ok && isDigits(n)
	})
	var recv, fn string
	switch k {
	case 1:
		fn = parts[0]
	case 2:
		recv, fn = strings.Trim(parts[0], "(*)"), parts[1]
	default:
		return nil
	}

	var node ast.Node
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if ok && fd.Name.Name == fn && receiverName(fd) == recv && fd.Body != nil {
			node = fd.Body
			break
		}
	}
	if node == nil {
		return nil
	}

	indexes := append([]string{strings.TrimPrefix(parts[k], "func")}, parts[k+1:]...)
	for _, idx := range indexes {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 1 {
			return nil
		}
		node = nthFuncLit(node, n)
		if node == nil {
			return nil
		}
	}
	return node
}

// nthFuncLit returns the n-th function literal directly inside root,
// not counting literals nested in other literals.
func nthFuncLit(root ast.Node, n int) ast.Node {
	var found ast.Node
	seen := 0
	ast.Inspect(root, func(x ast.Node) bool {
		if found != nil {
			return false
		}
		lit, ok := x.(*ast.FuncLit)
		if !ok || x == root {
			return true
		}
		seen++
		if seen == n {
			found = lit
		}
		return false
	})
	return found
}

func receiverName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return ""
	}
	t := fd.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch tt := t.(type) {
	case *ast.Ident:
		return tt.Name
	case *ast.IndexExpr:
		if id, ok := tt.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func loadFile(filename string) *parsedFile {
	if v, ok := sourceCache.Load(filename); ok {
		pf, _ := v.(*parsedFile)
		return pf
	}
	var pf *parsedFile
	if src, err := os.ReadFile(filename); err == nil {
		fset := token.NewFileSet()
		if file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution); err == nil {
			pf = &parsedFile{fset: fset, file: file, src: src}
		}
	}
	sourceCache.Store(filename, pf)
	return pf
}
