// Package analyze finds mutex acquisitions that can leak their hold.
//
// It parses Go source with go/parser and walks each function body,
// including function literals, on its own:
//
//   - x.Lock() or x.RLock() with no deferred x.Unlock() or x.RUnlock() in
//     the same function. A Lock whose Unlock is not deferred stays held if
//     anything in between panics, and with a recursive mutex an early
//     return that skips one Unlock keeps the whole depth held.
//   - g, err := lock.Scope(m) where g is never released with defer
//     g.Release(), or is discarded.
//
// The checks are syntactic. Receivers are compared by their source text,
// so defer m.Unlock() pairs with m.Lock() but not with (*m).Lock().
package analyze

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"sort"
	"strconv"
)

// LockPackagePath is the import path whose Scope results are tracked.
const LockPackagePath = "github.com/kolkov/reclock/lock"

// Stats counts what a check looked at.
type Stats struct {
	Functions int `json:"functions"`
	Locks     int `json:"locks"`
	Scopes    int `json:"scopes"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Functions += other.Functions
	s.Locks += other.Locks
	s.Scopes += other.Scopes
}

// Result holds the findings for one file.
type Result struct {
	Findings []*Finding
	Stats    Stats
}

// File checks a single Go source file.
//
// src is passed to go/parser: nil reads filename, otherwise a string,
// []byte or io.Reader holding the source.
func File(filename string, src any) (*Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filename, err)
	}
	return Check(fset, file), nil
}

// Check runs the checks over a parsed file.
func Check(fset *token.FileSet, file *ast.File) *Result {
	c := &checker{
		fset:     fset,
		lockName: lockImportName(file),
		result:   &Result{},
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		c.function(fn.Body)
	}
	sort.SliceStable(c.result.Findings, func(i, j int) bool {
		a, b := c.result.Findings[i], c.result.Findings[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return c.result
}

// lockImportName returns the local name of LockPackagePath in file, or ""
// if the file does not import it.
func lockImportName(file *ast.File) string {
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil || path != LockPackagePath {
			continue
		}
		if imp.Name != nil {
			if imp.Name.Name == "_" || imp.Name.Name == "." {
				return ""
			}
			return imp.Name.Name
		}
		return "lock"
	}
	return ""
}

type checker struct {
	fset     *token.FileSet
	lockName string
	result   *Result
}

// scope tracks one function body.
type scope struct {
	locks    []acquisition
	guards   []acquisition
	deferred map[string]bool // released by defer, keyed by release call text
	released map[string]bool // released without defer
}

type acquisition struct {
	pos     token.Pos
	recv    string // receiver or guard expression
	acquire string // "Lock", "RLock" or "Scope"
}

var releaseFor = map[string]string{
	"Lock":  "Unlock",
	"RLock": "RUnlock",
}

func (c *checker) function(body *ast.BlockStmt) {
	c.result.Stats.Functions++
	s := &scope{
		deferred: make(map[string]bool),
		released: make(map[string]bool),
	}

	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			c.function(n.Body)
			return false
		case *ast.DeferStmt:
			c.deferStmt(s, n)
			return false
		case *ast.ExprStmt:
			c.exprStmt(s, n)
		case *ast.AssignStmt:
			c.assignStmt(s, n)
		}
		return true
	})

	c.report(s)
}

func (c *checker) deferStmt(s *scope, d *ast.DeferStmt) {
	if lit, ok := d.Call.Fun.(*ast.FuncLit); ok {
		// defer func() { ...; x.Unlock() }()
		ast.Inspect(lit.Body, func(n ast.Node) bool {
			if _, nested := n.(*ast.FuncLit); nested {
				return false
			}
			if call, ok := n.(*ast.CallExpr); ok {
				if key, ok := releaseKey(call); ok {
					s.deferred[key] = true
				}
			}
			return true
		})
		return
	}
	if key, ok := releaseKey(d.Call); ok {
		s.deferred[key] = true
	}
}

func (c *checker) exprStmt(s *scope, stmt *ast.ExprStmt) {
	call, ok := stmt.X.(*ast.CallExpr)
	if !ok || len(call.Args) != 0 {
		return
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return
	}
	switch sel.Sel.Name {
	case "Lock", "RLock":
		c.result.Stats.Locks++
		s.locks = append(s.locks, acquisition{
			pos:     call.Pos(),
			recv:    types.ExprString(sel.X),
			acquire: sel.Sel.Name,
		})
	case "Unlock", "RUnlock", "Release":
		s.released[types.ExprString(sel.X)+"."+sel.Sel.Name] = true
	}
}

func (c *checker) assignStmt(s *scope, stmt *ast.AssignStmt) {
	if c.lockName == "" || len(stmt.Rhs) != 1 || len(stmt.Lhs) == 0 {
		return
	}
	call, ok := stmt.Rhs[0].(*ast.CallExpr)
	if !ok {
		return
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Scope" {
		return
	}
	if pkg, ok := sel.X.(*ast.Ident); !ok || pkg.Name != c.lockName {
		return
	}

	c.result.Stats.Scopes++
	s.guards = append(s.guards, acquisition{
		pos:     call.Pos(),
		recv:    types.ExprString(stmt.Lhs[0]),
		acquire: "Scope",
	})
}

// releaseKey returns "recv.Method" for x.Unlock(), x.RUnlock() and
// x.Release() calls.
func releaseKey(call *ast.CallExpr) (string, bool) {
	if len(call.Args) != 0 {
		return "", false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	switch sel.Sel.Name {
	case "Unlock", "RUnlock", "Release":
		return types.ExprString(sel.X) + "." + sel.Sel.Name, true
	}
	return "", false
}

func (c *checker) report(s *scope) {
	for _, l := range s.locks {
		rel := l.recv + "." + releaseFor[l.acquire]
		if s.deferred[rel] {
			continue
		}
		if s.released[rel] {
			c.add(l.pos, KindNoDefer,
				fmt.Sprintf("%s.%s() is released by %s() without defer; a panic or early return in between leaves it held",
					l.recv, l.acquire, rel),
				fmt.Sprintf("Follow the lock with defer %s(), or acquire with lock.Scope and defer the guard's Release", rel))
			continue
		}
		c.add(l.pos, KindUnreleased,
			fmt.Sprintf("%s.%s() is never released in this function", l.recv, l.acquire),
			fmt.Sprintf("Add defer %s() right after the lock, or document that the caller releases it", rel))
	}

	for _, g := range s.guards {
		if g.recv == "_" {
			c.add(g.pos, KindGuardDiscarded,
				c.lockName+".Scope guard is discarded; the mutex can never be released",
				"Keep the guard: g, err := "+c.lockName+".Scope(m); then defer g.Release()")
			continue
		}
		if s.deferred[g.recv+".Release"] {
			continue
		}
		c.add(g.pos, KindGuardNotDeferred,
			fmt.Sprintf("%s.Scope guard %s is not released by defer", c.lockName, g.recv),
			fmt.Sprintf("Add defer %s.Release() after checking the error", g.recv))
	}
}

func (c *checker) add(pos token.Pos, kind Kind, msg, suggestion string) {
	c.result.Findings = append(c.result.Findings, NewFinding(c.fset, pos, kind, msg, suggestion))
}
