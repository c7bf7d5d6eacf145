// Package analyzer computes, ahead of emission, which runtime capabilities a
// module needs (allocation, hash maps, JSON, HTTP, async, string utilities).
//
// The pass is a structural recursion over the tree: statements delegate to the
// expression visitor and every construct contributes a RequirementSet that is
// OR-merged into its parent's. Node kinds the pass does not recognize require
// nothing; each one is recorded as an AnalysisGap so the under-approximation is
// auditable.
package analyzer

import (
	"fmt"
	"unicode"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// Analyzer walks a module and accumulates analysis gaps. The zero value is
// ready to use; an Analyzer must not be shared between goroutines.
type Analyzer struct {
	gaps []*pyerr.AnalysisGap
}

// New creates an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze computes the requirements of a module, discarding gaps.
func Analyze(mod *pyast.Module) RequirementSet {
	return New().Module(mod)
}

// Module computes the requirements of every top-level statement.
func (a *Analyzer) Module(mod *pyast.Module) RequirementSet {
	if mod == nil {
		return RequirementSet{}
	}
	return a.Statements(mod.Body)
}

// Gaps returns the unrecognized nodes seen so far, in visit order.
func (a *Analyzer) Gaps() []*pyerr.AnalysisGap {
	return a.gaps
}

func (a *Analyzer) gap(n pyast.Node) RequirementSet {
	a.gaps = append(a.gaps, pyerr.NewAnalysisGap(n.Kind(), n.Pos()))
	return RequirementSet{}
}

// Statements merges the requirements of a statement list.
func (a *Analyzer) Statements(body []pyast.Stmt) RequirementSet {
	var req RequirementSet
	for _, s := range body {
		req = req.Merge(a.Statement(s))
	}
	return req
}

// Statement computes the requirements of a single statement including nested bodies.
func (a *Analyzer) Statement(s pyast.Stmt) RequirementSet {
	switch n := s.(type) {
	case *pyast.FunctionDef:
		req := a.Statements(n.Body)
		for _, p := range n.Params {
			req = req.Merge(a.optional(p.Default))
		}
		return req
	case *pyast.ClassDef:
		return a.Statements(n.Body)
	case *pyast.Assign:
		req := a.Expr(n.Value)
		for _, t := range n.Targets {
			req = req.Merge(a.Expr(t))
		}
		return req
	case *pyast.AugAssign:
		req := a.Expr(n.Target).Merge(a.Expr(n.Value))
		if n.Op == "+" && pyast.IsStringConstant(n.Value) {
			req = req.Merge(allocReqs)
		}
		return req
	case *pyast.Return:
		return a.optional(n.Value)
	case *pyast.If:
		return a.Expr(n.Test).Merge(a.Statements(n.Body)).Merge(a.Statements(n.Orelse))
	case *pyast.For:
		return a.Expr(n.Iter).Merge(a.Expr(n.Target)).Merge(a.Statements(n.Body))
	case *pyast.While:
		return a.Expr(n.Test).Merge(a.Statements(n.Body))
	case *pyast.Try:
		req := a.Statements(n.Body).Merge(a.Statements(n.Orelse)).Merge(a.Statements(n.Finally))
		for _, h := range n.Handlers {
			req = req.Merge(a.Statements(h.Body))
		}
		return req
	case *pyast.ExprStmt:
		return a.Expr(n.Value)
	case *pyast.Assert:
		return a.Expr(n.Test).Merge(a.optional(n.Msg))
	case *pyast.Pass, *pyast.Break, *pyast.Continue, *pyast.Import, *pyast.ImportFrom:
		return RequirementSet{}
	case nil:
		return RequirementSet{}
	}
	return a.gap(s)
}

func (a *Analyzer) optional(e pyast.Expr) RequirementSet {
	if e == nil {
		return RequirementSet{}
	}
	return a.Expr(e)
}

func (a *Analyzer) exprs(list []pyast.Expr) RequirementSet {
	var req RequirementSet
	for _, e := range list {
		req = req.Merge(a.optional(e))
	}
	return req
}

// Expr computes the requirements of an expression.
func (a *Analyzer) Expr(e pyast.Expr) RequirementSet {
	switch n := e.(type) {
	case *pyast.Name, *pyast.Constant:
		return RequirementSet{}
	case *pyast.Call:
		return a.call(n)
	case *pyast.BinOp:
		req := a.Expr(n.Left).Merge(a.Expr(n.Right))
		if n.Op == "+" && (pyast.IsStringConstant(n.Left) || pyast.IsStringConstant(n.Right)) {
			req = req.Merge(allocReqs)
		}
		return req
	case *pyast.BoolOp:
		return a.exprs(n.Values)
	case *pyast.Compare:
		return a.Expr(n.Left).Merge(a.exprs(n.Comparators))
	case *pyast.UnaryOp:
		return a.Expr(n.Operand)
	case *pyast.IfExp:
		return a.Expr(n.Test).Merge(a.Expr(n.Body)).Merge(a.Expr(n.Orelse))
	case *pyast.Attribute:
		return a.Expr(n.Value)
	case *pyast.Subscript:
		return a.Expr(n.Value).Merge(a.Expr(n.Index))
	case *pyast.Slice:
		return a.optional(n.Lower).Merge(a.optional(n.Upper)).Merge(a.optional(n.Step))
	case *pyast.List:
		req := a.exprs(n.Elts)
		if !IsFixedList(n) {
			req = req.Merge(allocReqs)
		}
		return req
	case *pyast.Tuple:
		return a.exprs(n.Elts)
	case *pyast.Dict:
		return mapReqs.Merge(a.exprs(n.Keys)).Merge(a.exprs(n.Values))
	case *pyast.ListComp:
		return allocReqs.Merge(a.Expr(n.Elt)).Merge(a.generators(n.Generators))
	case *pyast.DictComp:
		return mapReqs.Merge(a.Expr(n.Key)).Merge(a.Expr(n.Value)).Merge(a.generators(n.Generators))
	case *pyast.FString:
		req := allocReqs
		for _, p := range n.Parts {
			req = req.Merge(a.optional(p.Expr))
		}
		return req
	case nil:
		return RequirementSet{}
	}
	return a.gap(e)
}

func (a *Analyzer) generators(gens []*pyast.Comprehension) RequirementSet {
	var req RequirementSet
	for _, g := range gens {
		req = req.Merge(a.Expr(g.Target)).Merge(a.Expr(g.Iter)).Merge(a.exprs(g.Ifs))
	}
	return req
}

func (a *Analyzer) call(c *pyast.Call) RequirementSet {
	req := a.exprs(c.Args)
	for _, kw := range c.Keywords {
		req = req.Merge(a.Expr(kw.Value))
	}

	switch fn := c.Func.(type) {
	case *pyast.Name:
		if r, ok := builtinRequirements[fn.ID]; ok {
			req = req.Merge(r)
		}
		if isTypeConstructor(fn.ID) {
			req = req.Merge(allocReqs)
		}
	case *pyast.Attribute:
		req = req.Merge(a.Expr(fn.Value))
		if mod, ok := fn.Value.(*pyast.Name); ok {
			if r, ok := moduleRequirements[mod.ID]; ok {
				req = req.Merge(r)
			}
		}
		if r, ok := methodRequirements[fn.Attr]; ok {
			req = req.Merge(r)
		}
	default:
		req = req.Merge(a.Expr(c.Func))
	}
	return req
}

// isTypeConstructor treats any capitalized callee as a class instantiation.
func isTypeConstructor(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

// IsFixedList reports whether a list literal can be lowered to a fixed-size,
// non-allocating array: it must be non-empty and hold constants of a single
// scalar kind.
func IsFixedList(l *pyast.List) bool {
	_, ok := FixedListKind(l)
	return ok
}

// FixedListKind returns the shared scalar kind of a fixed list literal.
func FixedListKind(l *pyast.List) (pyast.ConstKind, bool) {
	if l == nil || len(l.Elts) == 0 {
		return 0, false
	}
	var kind pyast.ConstKind
	for i, e := range l.Elts {
		c, ok := e.(*pyast.Constant)
		if !ok {
			return 0, false
		}
		if i == 0 {
			kind = c.Type
		} else if c.Type != kind {
			return 0, false
		}
	}
	return kind, true
}

// Describe formats gaps for logging.
func Describe(gaps []*pyerr.AnalysisGap) []string {
	out := make([]string, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, fmt.Sprintf("line %d: %s", g.Line, g.Node))
	}
	return out
}
