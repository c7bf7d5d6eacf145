// Package stdlib registers the Python standard library surface the compiler
// understands: built-in functions, methods of str, list and dict, and the json,
// http, asyncio, math, os, time and sys modules.
//
// Straight call mappings are declared as callpattern descriptors; anything
// needing per-argument decisions is a hand-written handler.
package stdlib

import (
	"fmt"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/callpattern"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

var (
	allocReqs = analyzer.RequirementSet{NeedsAllocator: true}
	stdReqs   = analyzer.RequirementSet{NeedsStd: true}
)

// Register adds the whole surface to r.
func Register(r *registry.Registry) error {
	for _, table := range [][]registry.Entry{
		builtinEntries(),
		stringEntries(),
		listEntries(),
		dictEntries(),
		moduleEntries(),
	} {
		if err := callpattern.Register(r, table...); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRegistry returns a registry populated with the full surface.
func DefaultRegistry() *registry.Registry {
	r := registry.NewRegistry()
	if err := Register(r); err != nil {
		panic(fmt.Sprintf("stdlib: %v", err))
	}
	return r
}

// Global is the shared default registry. It is read-only after init and safe
// for concurrent compilations.
var Global = DefaultRegistry()

// Modules lists the importable module names with registered symbols.
func Modules() []string {
	return []string{"asyncio", "http", "json", "math", "os", "os.path", "sys", "time"}
}

// ---- helpers shared by the hand-written handlers ----

// stringArg returns the value of a str literal argument.
func stringArg(symbol string, e pyast.Expr) (string, error) {
	c, ok := e.(*pyast.Constant)
	if !ok || c.Type != pyast.ConstStr {
		return "", pyerr.NewSemanticErrorAt(e.Pos(), fmt.Sprintf("%s expects a string literal, got %s", symbol, e.Kind()))
	}
	return c.Value.(string), nil
}

// emitFloat lowers e converted to f64.
func emitFloat(st *emit.State, e pyast.Expr) error {
	switch st.Infer(e) {
	case infer.Float:
		return st.EmitExpr(e)
	case infer.Int:
		st.Write("@as(f64, @floatFromInt(")
		if err := st.EmitExpr(e); err != nil {
			return err
		}
		st.Write("))")
		return nil
	}
	st.Write("@as(f64, ")
	if err := st.EmitExpr(e); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// emitUsize wraps e as `@intCast(e)` for index and length parameters.
func emitUsize(st *emit.State, e pyast.Expr) error {
	st.Write("@intCast(")
	if err := st.EmitExpr(e); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// emitInt64 wraps a usize-valued emission as i64.
func emitInt64(st *emit.State, fn func() error) error {
	st.Write("@as(i64, @intCast(")
	if err := fn(); err != nil {
		return err
	}
	st.Write("))")
	return nil
}

// template emits text with %s placeholders replaced, in order, by the given
// argument emitters.
func template(st *emit.State, format string, parts ...func() error) error {
	rest, i := format, 0
	for len(rest) > 0 {
		j := indexVerb(rest)
		if j < 0 {
			st.Write(rest)
			break
		}
		st.Write(rest[:j])
		rest = rest[j+2:]
		if i >= len(parts) {
			return fmt.Errorf("template %q: missing argument %d", format, i)
		}
		if err := parts[i](); err != nil {
			return err
		}
		i++
	}
	return nil
}

func indexVerb(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 's' {
			return i
		}
	}
	return -1
}

// expr adapts an argument node to a template part.
func expr(st *emit.State, e pyast.Expr) func() error {
	return func() error { return st.EmitExpr(e) }
}

// slice adapts an iterable argument to a template part.
func slice(st *emit.State, e pyast.Expr) func() error {
	return func() error { return st.EmitSlice(e) }
}

// text adapts a literal to a template part.
func text(st *emit.State, s string) func() error {
	return func() error {
		st.Write(s)
		return nil
	}
}
