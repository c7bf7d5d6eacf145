package codegen

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

const mainKey = "__main__"

// funcSig is a user function, method or the synthesized main.
type funcSig struct {
	name   string
	zig    string
	owner  *classInfo
	def    *pyast.FunctionDef
	body   []pyast.Stmt
	params []*pyast.Param // self excluded
	anns   []Annotation
	static bool

	returns  Annotation
	declared bool // returns comes from an annotation
	void     bool
	alloc    bool
	fallible bool

	// discardAlloc marks an allocator parameter the body never touches.
	discardAlloc bool
	frame        *frame
}

func (s *funcSig) isMain() bool { return s.name == mainKey }

func (s *funcSig) isInit() bool { return s.owner != nil && s.name == "__init__" }

// symbol names the function for diagnostics.
func (s *funcSig) symbol() string {
	if s.owner != nil {
		return s.owner.name + "." + s.name
	}
	return s.name
}

// minArgs is the number of parameters without a default.
func (s *funcSig) minArgs() int {
	n := 0
	for _, p := range s.params {
		if p.Default == nil {
			n++
		}
	}
	return n
}

func newFuncSig(def *pyast.FunctionDef) (*funcSig, error) {
	if def.IsAsync {
		return nil, pyerr.NewSemanticErrorAt(def.Pos(), fmt.Sprintf("async function %s is not supported", def.Name))
	}
	sig := &funcSig{
		name:   def.Name,
		zig:    zigIdent(def.Name),
		def:    def,
		body:   def.Body,
		params: def.Params,
	}
	sig.initAnnotations()
	return sig, nil
}

func newMethodSig(c *classInfo, def *pyast.FunctionDef) (*funcSig, error) {
	sig, err := newFuncSig(def)
	if err != nil {
		return nil, err
	}
	sig.owner = c
	for _, d := range def.Decorators {
		name, _ := pyast.DottedName(d)
		switch name {
		case "staticmethod":
			sig.static = true
		case "property":
		default:
			return nil, pyerr.NewSemanticErrorAt(def.Pos(), fmt.Sprintf("%s.%s: decorator %s is not supported", c.name, def.Name, name))
		}
	}
	if !sig.static {
		if len(def.Params) == 0 {
			return nil, pyerr.NewSemanticErrorAt(def.Pos(), fmt.Sprintf("method %s.%s has no self parameter", c.name, def.Name))
		}
		sig.params = def.Params[1:]
	}
	if def.Name == "__init__" {
		sig.zig = "setup"
	}
	sig.initAnnotations()
	return sig, nil
}

func (s *funcSig) initAnnotations() {
	s.anns = make([]Annotation, len(s.params))
	for i, p := range s.params {
		s.anns[i] = AnnotationOf(p.Annotation)
	}
	if s.def != nil && s.def.Returns != nil {
		s.returns = AnnotationOf(s.def.Returns)
		s.declared = true
		s.void = s.returns.Base == "None"
	}
}

// declare is the declaration pass: imports, module constants, functions and
// classes. Every other top-level statement becomes the body of main.
func (m *moduleGen) declare() error {
	var (
		body      []pyast.Stmt
		classDefs []*pyast.ClassDef
	)
	for _, s := range m.mod.Body {
		switch n := s.(type) {
		case *pyast.Import:
			m.addImport(n)
		case *pyast.ImportFrom:
			m.addImportFrom(n)
		case *pyast.FunctionDef:
			sig, err := newFuncSig(n)
			if err != nil {
				return err
			}
			if _, dup := m.funcs[n.Name]; dup {
				return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("function %s is defined twice", n.Name))
			}
			m.funcs[n.Name] = sig
			m.order = append(m.order, sig)
		case *pyast.ClassDef:
			classDefs = append(classDefs, n)
		case *pyast.If:
			if isMainGuard(n) {
				body = append(body, n.Body...)
				continue
			}
			body = append(body, s)
		default:
			body = append(body, s)
		}
	}

	if err := m.buildLayouts(classDefs); err != nil {
		return err
	}

	counts := bindingCounts(body)
	var rest []pyast.Stmt
	for _, s := range body {
		if a, ok := s.(*pyast.Assign); ok && isModuleConstant(a, counts) {
			m.globals = append(m.globals, a)
			continue
		}
		rest = append(rest, s)
	}
	m.main = &funcSig{name: mainKey, zig: "main", body: rest, void: true}
	return nil
}

// isMainGuard matches `if __name__ == "__main__":` without an else branch.
func isMainGuard(n *pyast.If) bool {
	if len(n.Orelse) > 0 {
		return false
	}
	cmp, ok := n.Test.(*pyast.Compare)
	if !ok || len(cmp.Ops) != 1 || cmp.Ops[0] != "==" {
		return false
	}
	name, ok := cmp.Left.(*pyast.Name)
	if !ok || name.ID != "__name__" {
		return false
	}
	c, ok := cmp.Comparators[0].(*pyast.Constant)
	return ok && c.Value == "__main__"
}

// isModuleConstant matches a top-level name bound exactly once to a scalar
// literal. Those become container-level constants visible to functions.
func isModuleConstant(a *pyast.Assign, counts map[string]int) bool {
	name, ok := singleName(a.Targets)
	if !ok || counts[name] != 1 {
		return false
	}
	c, ok := a.Value.(*pyast.Constant)
	return ok && c.Type != pyast.ConstNone
}

// bindingCounts counts how often each name is bound in body, nested blocks
// included. Augmented assignment counts twice so it always reads as a
// rebinding.
func bindingCounts(body []pyast.Stmt) map[string]int {
	counts := map[string]int{}
	walkStmts(body, func(s pyast.Stmt) {
		switch n := s.(type) {
		case *pyast.Assign:
			for _, t := range n.Targets {
				for _, name := range targetNames(t) {
					counts[name]++
				}
			}
		case *pyast.AugAssign:
			if name, ok := n.Target.(*pyast.Name); ok {
				counts[name.ID] += 2
			}
		case *pyast.For:
			for _, name := range targetNames(n.Target) {
				counts[name]++
			}
		}
	})
	return counts
}

func targetNames(e pyast.Expr) []string {
	switch n := e.(type) {
	case *pyast.Name:
		return []string{n.ID}
	case *pyast.Tuple:
		var out []string
		for _, elt := range n.Elts {
			out = append(out, targetNames(elt)...)
		}
		return out
	case *pyast.List:
		var out []string
		for _, elt := range n.Elts {
			out = append(out, targetNames(elt)...)
		}
		return out
	}
	return nil
}

// ignoredModules only carry annotations or interpreter switches.
var ignoredModules = map[string]bool{
	"typing":      true,
	"__future__":  true,
	"dataclasses": true,
	"abc":         true,
}

func (m *moduleGen) addImport(n *pyast.Import) {
	for _, a := range n.Names {
		if a.AsName != "" {
			m.imports[a.AsName] = a.Name
			continue
		}
		root, _, _ := strings.Cut(a.Name, ".")
		m.imports[root] = root
	}
}

func (m *moduleGen) addImportFrom(n *pyast.ImportFrom) {
	if ignoredModules[n.Module] {
		return
	}
	for _, a := range n.Names {
		m.imports[a.Bound()] = n.Module + "." + a.Name
	}
}

// allSigs lists every body the typing pass visits: functions, methods, main.
func (m *moduleGen) allSigs() []*funcSig {
	out := append([]*funcSig{}, m.order...)
	for _, c := range m.layout {
		out = append(out, c.order...)
	}
	return append(out, m.main)
}

// walkStmts visits every statement of body and of nested blocks. Function and
// class bodies are not entered.
func walkStmts(body []pyast.Stmt, fn func(pyast.Stmt)) {
	for _, s := range body {
		fn(s)
		switch n := s.(type) {
		case *pyast.If:
			walkStmts(n.Body, fn)
			walkStmts(n.Orelse, fn)
		case *pyast.For:
			walkStmts(n.Body, fn)
		case *pyast.While:
			walkStmts(n.Body, fn)
		case *pyast.Try:
			walkStmts(n.Body, fn)
			for _, h := range n.Handlers {
				walkStmts(h.Body, fn)
			}
			walkStmts(n.Orelse, fn)
			walkStmts(n.Finally, fn)
		}
	}
}
