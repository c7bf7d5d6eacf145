// Package codegen lowers a Python module to Zig source.
//
// Generation runs in three passes over the module. The declaration pass
// collects imports, module constants, functions and classes and builds the
// class layouts. The typing pass walks every body with a scope to settle
// declaration types, which names are reassigned, and which functions need an
// allocator or can fail. The emission pass then writes the Zig source through
// an emit.State, dispatching calls to user code or to the handler registry.
package codegen

import (
	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/compiler/stdlib"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// AllocatorKind selects the allocator main() sets up.
type AllocatorKind string

const (
	ArenaAllocator AllocatorKind = "arena"
	GPAAllocator   AllocatorKind = "gpa"
)

// Options configure a Generator.
type Options struct {
	Indent    string
	Allocator AllocatorKind
	// Imports maps a runtime module name (json, http, ...) to the path
	// passed to @import.
	Imports map[string]string
	Format  bool
}

// Option mutates Options.
type Option func(*Options)

// WithIndent sets the indentation unit of the output.
func WithIndent(unit string) Option {
	return func(o *Options) { o.Indent = unit }
}

// WithAllocator selects the allocator strategy of the generated main.
func WithAllocator(kind AllocatorKind) Option {
	return func(o *Options) {
		if kind != "" {
			o.Allocator = kind
		}
	}
}

// WithImportPath overrides the @import path of a runtime module.
func WithImportPath(module, path string) Option {
	return func(o *Options) {
		if path != "" {
			o.Imports[module] = path
		}
	}
}

// WithFormat toggles the final whitespace normalization.
func WithFormat(enabled bool) Option {
	return func(o *Options) { o.Format = enabled }
}

// Generator turns modules into Zig source. It is safe for concurrent use;
// every call to Generate works on its own state.
type Generator struct {
	reg  *registry.Registry
	opts Options
}

// NewGenerator creates a Generator resolving calls against reg, or the
// default stdlib registry when reg is nil.
func NewGenerator(reg *registry.Registry, opts ...Option) *Generator {
	if reg == nil {
		reg = stdlib.Global
	}
	o := Options{
		Indent:    "    ",
		Allocator: ArenaAllocator,
		Imports:   map[string]string{},
		Format:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Generator{reg: reg, opts: o}
}

// Result is a generated module.
type Result struct {
	Source       string
	Requirements analyzer.RequirementSet
	Gaps         []*pyerr.AnalysisGap
	Labels       int
	Enters       int
	Exits        int
}

// Generate lowers mod. Nothing is returned on error.
func (g *Generator) Generate(mod *pyast.Module) (*Result, error) {
	if mod == nil {
		return nil, pyerr.NewSemanticError("nil module")
	}
	m := newModuleGen(g, mod)

	an := analyzer.New()
	reqs := an.Module(mod)

	if err := m.declare(); err != nil {
		return nil, err
	}
	if err := m.check(); err != nil {
		return nil, err
	}

	st, err := m.emit()
	if err != nil {
		return nil, err
	}
	if !st.Balanced() {
		return nil, pyerr.NewSemanticError("unbalanced indentation after emission")
	}

	reqs = reqs.Merge(st.Requirements())
	src := m.preamble(reqs) + st.String()
	if g.opts.Format {
		src = Format(src)
	}
	return &Result{
		Source:       src,
		Requirements: reqs,
		Gaps:         an.Gaps(),
		Labels:       st.Labels(),
		Enters:       st.Enters(),
		Exits:        st.Exits(),
	}, nil
}

// moduleGen is the state of one Generate call.
type moduleGen struct {
	g   *Generator
	reg *registry.Registry
	mod *pyast.Module

	imports map[string]string // bound name -> qualified module or symbol
	globals []*pyast.Assign
	funcs   map[string]*funcSig
	order   []*funcSig
	classes map[string]*classInfo
	layout  []*classInfo
	main    *funcSig
	// spelled holds every identifier of the source; generated names avoid it.
	spelled map[string]bool

	current  *scope
	frame    *frame
	inferrer *infer.Inferrer
	elemHint Annotation
	// retry is set when emission learned that a signature needs an
	// allocator or an error union it was emitted without.
	retry bool
}

func newModuleGen(g *Generator, mod *pyast.Module) *moduleGen {
	m := &moduleGen{
		g:       g,
		reg:     g.reg,
		mod:     mod,
		imports: map[string]string{},
		funcs:   map[string]*funcSig{},
		classes: map[string]*classInfo{},
		spelled: spelledNames(mod),
	}
	m.inferrer = infer.NewInferrer(m)
	m.pushScope()
	return m
}

// ---- emit.Dispatcher ----

func (m *moduleGen) EmitExpr(st *emit.State, e pyast.Expr) error {
	return m.expr(st, e)
}

func (m *moduleGen) Infer(e pyast.Expr) infer.Type {
	if t := m.annotate(e).Kind(); t != infer.Unknown {
		return t
	}
	return m.inferrer.Infer(e)
}

func (m *moduleGen) ElementType(e pyast.Expr) infer.Type {
	if t := m.annotate(e).Elem().Kind(); t != infer.Unknown {
		return t
	}
	return m.inferrer.ElementType(e)
}

func (m *moduleGen) Repr(e pyast.Expr) emit.Repr {
	switch n := e.(type) {
	case *pyast.Name:
		if sym, ok := m.lookup(n.ID); ok {
			return sym.repr
		}
		return emit.ReprValue
	case *pyast.List:
		if analyzer.IsFixedList(n) {
			return emit.ReprArray
		}
		return emit.ReprList
	case *pyast.ListComp:
		return emit.ReprList
	case *pyast.Subscript:
		if _, ok := n.Index.(*pyast.Slice); ok {
			return emit.ReprValue
		}
	case *pyast.BinOp, *pyast.Tuple, *pyast.IfExp:
		return emit.ReprValue
	}
	if m.annotate(e).Kind() == infer.Sequence {
		return emit.ReprList
	}
	return emit.ReprValue
}

// ---- infer.Env ----

func (m *moduleGen) VarType(name string) (infer.Type, bool) {
	sym, ok := m.lookup(name)
	if !ok {
		return infer.Unknown, false
	}
	return sym.ann.Kind(), true
}

func (m *moduleGen) CallType(call *pyast.Call) (infer.Type, bool) {
	t := m.annotate(call).Kind()
	return t, t != infer.Unknown
}
