package codegen

import (
	"fmt"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// typingRounds is how often every body is re-typed. Parameter types learned
// from call sites and return types of callees feed the next round.
const typingRounds = 3

// mutators need a `var` receiver in generated code.
var mutators = map[string]bool{
	"list.append": true,
	"list.extend": true,
	"list.insert": true,
	"list.pop":    true,
	"list.remove": true,
	"list.clear":  true,
	"dict.pop":    true,
	"dict.clear":  true,
}

// frame is what the typing pass learns about one body.
type frame struct {
	sig   *funcSig
	scope *scope

	assigns map[string]int
	grown   map[string]bool
	stored  map[string]bool
	reads   map[string]bool
	params  map[string]bool
	returns []Annotation

	alloc    bool
	fallible bool
	// calls maps each callee to whether some call of it can raise past
	// every handler.
	calls map[*funcSig]bool
	// guarded counts enclosing try bodies with a catch-all handler.
	guarded int

	// Block bookkeeping for hoisting. Every block gets an id; a path is the
	// chain of ids from the body root.
	path    []int
	blocks  map[int]pyast.Stmt
	next    int
	first   map[string][]int
	uses    map[string][][]int
	order   []string
	hoist   map[pyast.Stmt][]string
	hoisted map[string]bool
}

func newFrame(sig *funcSig) *frame {
	return &frame{
		sig:     sig,
		assigns: map[string]int{},
		grown:   map[string]bool{},
		stored:  map[string]bool{},
		reads:   map[string]bool{},
		params:  map[string]bool{},
		calls:   map[*funcSig]bool{},
		blocks:  map[int]pyast.Stmt{},
		first:   map[string][]int{},
		uses:    map[string][][]int{},
		hoist:   map[pyast.Stmt][]string{},
		hoisted: map[string]bool{},
	}
}

func (f *frame) enterBlock(body []pyast.Stmt) {
	id := f.next
	f.next++
	if len(body) > 0 {
		f.blocks[id] = body[0]
	}
	f.path = append(f.path, id)
}

func (f *frame) exitBlock() {
	f.path = f.path[:len(f.path)-1]
}

func (f *frame) here() []int {
	return append([]int(nil), f.path...)
}

func (f *frame) bindName(name string) {
	f.assigns[name]++
	if _, seen := f.first[name]; !seen {
		f.first[name] = f.here()
		f.order = append(f.order, name)
	}
	f.uses[name] = append(f.uses[name], f.here())
}

func (f *frame) read(name string) {
	f.reads[name] = true
	f.uses[name] = append(f.uses[name], f.here())
}

// mutable reports whether a local needs `var`.
func (f *frame) mutable(name string, repr emit.Repr) bool {
	if f.hoisted[name] || f.assigns[name] > 1 || f.grown[name] {
		return true
	}
	return f.stored[name] && repr != emit.ReprList
}

// settleHoisting finds names whose first binding sits in a nested block but
// which are bound or read outside it. Those are declared up front in the
// innermost block enclosing every use.
func (f *frame) settleHoisting() {
	for _, name := range f.order {
		if f.params[name] {
			continue
		}
		first := f.first[name]
		lca := first
		for _, p := range f.uses[name] {
			lca = commonPrefix(lca, p)
		}
		if len(lca) == 0 || len(lca) >= len(first) {
			continue
		}
		key, ok := f.blocks[lca[len(lca)-1]]
		if !ok {
			continue
		}
		f.hoist[key] = append(f.hoist[key], name)
		f.hoisted[name] = true
	}
}

func commonPrefix(a, b []int) []int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return a[:n]
}

// check is the typing pass over every body.
func (m *moduleGen) check() error {
	sigs := m.allSigs()
	for _, g := range m.globals {
		name, _ := singleName(g.Targets)
		ann := AnnotationOf(g.Annotation)
		if ann.IsZero() {
			ann = m.annotate(g.Value)
		}
		m.bind(name, ann, false)
	}
	for _, c := range m.layout {
		for _, f := range c.ownFields() {
			if f.ann.IsZero() && f.def != nil {
				f.ann = m.annotate(f.def)
			}
		}
	}
	for _, s := range sigs {
		for i, p := range s.params {
			if s.anns[i].IsZero() && p.Default != nil {
				s.anns[i] = m.annotate(p.Default)
			}
		}
	}

	hints := map[*funcSig][]Annotation{}
	for round := 0; round < typingRounds; round++ {
		for _, s := range sigs {
			if err := m.typeBody(s, hints); err != nil {
				return err
			}
		}
		for s, hs := range hints {
			for i, h := range hs {
				if s.anns[i].IsZero() && !h.IsZero() {
					s.anns[i] = h
				}
			}
		}
	}

	an := analyzer.New()
	for _, s := range sigs {
		s.alloc = s.frame.alloc || an.Statements(s.body).NeedsAllocator
		s.fallible = s.alloc || s.frame.fallible
	}
	m.propagate()
	return nil
}

// propagate spreads allocator and error-union needs from callees to callers
// until nothing changes.
func (m *moduleGen) propagate() {
	sigs := m.allSigs()
	for changed := true; changed; {
		changed = false
		for _, s := range sigs {
			if s.frame == nil {
				continue
			}
			for callee, exposed := range s.frame.calls {
				if callee.alloc && !s.alloc {
					s.alloc = true
					changed = true
				}
				if (exposed && callee.fallible || s.alloc) && !s.fallible {
					s.fallible = true
					changed = true
				}
			}
		}
	}
}

func (m *moduleGen) typeBody(sig *funcSig, hints map[*funcSig][]Annotation) error {
	f := newFrame(sig)
	saved := m.frame
	m.frame = f
	defer func() { m.frame = saved }()

	return m.withScope(func() error {
		f.scope = m.current
		m.bindParams(sig)
		for _, p := range sig.params {
			f.params[p.Name] = true
		}
		f.enterBlock(sig.body)
		err := m.typeStmts(sig.body, hints)
		f.exitBlock()
		if err != nil {
			return err
		}
		f.settleHoisting()
		if !sig.declared && !sig.isMain() {
			sig.returns, sig.void = returnType(f.returns)
		}
		sig.frame = f
		return nil
	})
}

// bindParams declares self and the parameters of sig in the current scope.
// List parameters are borrowed slices.
func (m *moduleGen) bindParams(sig *funcSig) {
	if sig.owner != nil && !sig.static {
		m.bind("self", Annotation{Base: sig.owner.name}, false)
	}
	for i, p := range sig.params {
		sym := m.bind(p.Name, sig.anns[i], false)
		sym.repr = emit.ReprValue
		sym.zig = zigIdent(p.Name)
	}
}

// returnType joins the annotations of every `return value`. No value at all
// means void; a mix of None and values is optional.
func returnType(rets []Annotation) (Annotation, bool) {
	var values []Annotation
	sawNone := false
	for _, r := range rets {
		if r.Base == "None" {
			sawNone = true
			continue
		}
		values = append(values, r)
	}
	if len(values) == 0 {
		return Annotation{Base: "None"}, true
	}
	ann := values[0]
	kinds := []infer.Type{ann.Kind()}
	for _, v := range values[1:] {
		if v.String() != ann.String() {
			ann = Annotation{}
		}
		kinds = append(kinds, v.Kind())
	}
	if ann.IsZero() {
		ann = annotationFor(infer.JoinAll(kinds...), infer.Unknown)
	}
	if sawNone && !ann.IsZero() {
		ann = Annotation{Base: "Optional", Params: []Annotation{ann}}
	}
	return ann, false
}

func (m *moduleGen) typeStmts(body []pyast.Stmt, hints map[*funcSig][]Annotation) error {
	for _, s := range body {
		if err := m.typeStmt(s, hints); err != nil {
			return err
		}
	}
	return nil
}

func (m *moduleGen) typeBlock(body []pyast.Stmt, hints map[*funcSig][]Annotation) error {
	m.frame.enterBlock(body)
	defer m.frame.exitBlock()
	return m.typeStmts(body, hints)
}

func (m *moduleGen) typeStmt(s pyast.Stmt, hints map[*funcSig][]Annotation) error {
	f := m.frame
	switch n := s.(type) {
	case *pyast.Assign:
		m.typeExpr(n.Value, hints)
		ann := AnnotationOf(n.Annotation)
		for _, t := range n.Targets {
			if err := m.typeTarget(t, n.Value, ann, hints); err != nil {
				return err
			}
		}
	case *pyast.AugAssign:
		m.typeExpr(n.Target, hints)
		m.typeExpr(n.Value, hints)
		if k := m.annotate(n.Target).Kind(); k == infer.String || k == infer.Sequence {
			f.alloc = true
		}
		switch t := n.Target.(type) {
		case *pyast.Name:
			f.bindName(t.ID)
			f.assigns[t.ID]++
		case *pyast.Subscript:
			if base, ok := t.Value.(*pyast.Name); ok {
				f.stored[base.ID] = true
			}
		}
	case *pyast.Return:
		if n.Value == nil {
			return nil
		}
		m.typeExpr(n.Value, hints)
		f.returns = append(f.returns, m.annotate(n.Value))
		if _, ok := n.Value.(*pyast.List); ok {
			f.alloc = true
		}
	case *pyast.If:
		m.typeExpr(n.Test, hints)
		if err := m.typeBlock(n.Body, hints); err != nil {
			return err
		}
		if elif, ok := elifOf(n); ok {
			return m.typeStmt(elif, hints)
		}
		return m.typeBlock(n.Orelse, hints)
	case *pyast.While:
		m.typeExpr(n.Test, hints)
		return m.typeBlock(n.Body, hints)
	case *pyast.Try:
		guard := catchesAll(n)
		if guard {
			f.guarded++
		}
		err := m.typeBlock(n.Body, hints)
		if guard {
			f.guarded--
		}
		if err != nil {
			return err
		}
		blocks := [][]pyast.Stmt{n.Orelse, n.Finally}
		for _, h := range n.Handlers {
			blocks = append(blocks, h.Body)
		}
		for _, b := range blocks {
			if err := m.typeBlock(b, hints); err != nil {
				return err
			}
		}
	case *pyast.For:
		m.typeExpr(n.Iter, hints)
		f.enterBlock(n.Body)
		defer f.exitBlock()
		return m.withScope(func() error {
			m.bindTarget(n.Target, n.Iter)
			return m.typeStmts(n.Body, hints)
		})
	case *pyast.ExprStmt:
		m.typeExpr(n.Value, hints)
	case *pyast.Assert:
		m.typeExpr(n.Test, hints)
		m.typeExpr(n.Msg, hints)
	case *pyast.Import:
		m.addImport(n)
	case *pyast.ImportFrom:
		m.addImportFrom(n)
	case *pyast.Pass, *pyast.Break, *pyast.Continue:
	case *pyast.FunctionDef:
		return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("nested function %s is not supported", n.Name))
	case *pyast.ClassDef:
		return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("nested class %s is not supported", n.Name))
	default:
		return pyerr.NewSemanticErrorAt(s.Pos(), fmt.Sprintf("unsupported statement: %s", s.Kind()))
	}
	return nil
}

// elifOf reports an else branch made of a single if statement, which lowers
// to `else if` without a block of its own.
func elifOf(n *pyast.If) (*pyast.If, bool) {
	if len(n.Orelse) != 1 {
		return nil, false
	}
	elif, ok := n.Orelse[0].(*pyast.If)
	return elif, ok
}

func (m *moduleGen) typeTarget(t, value pyast.Expr, ann Annotation, hints map[*funcSig][]Annotation) error {
	f := m.frame
	if ann.IsZero() && value != nil {
		ann = m.annotate(value)
	}
	switch n := t.(type) {
	case *pyast.Name:
		f.bindName(n.ID)
		if sym, ok := f.scope.syms[n.ID]; ok {
			switch {
			case sym.ann.IsZero(), len(sym.ann.Params) > 0 && sym.ann.Elem().IsZero():
				sym.ann = ann
			case sym.ann.Base == "int" && ann.Base == "float":
				sym.ann = ann
			}
			return nil
		}
		sym := &symbol{ann: ann}
		if ann.Kind() == infer.Sequence {
			sym.repr = emit.ReprList
		}
		f.scope.syms[n.ID] = sym
	case *pyast.Attribute:
		m.typeExpr(n.Value, hints)
		if attr, ok := selfAttr(n); ok && f.sig.owner != nil {
			if err := m.recordField(f.sig.owner, attr, ann, n.Pos()); err != nil {
				return err
			}
		}
		if _, ok := value.(*pyast.List); ok {
			f.alloc = true
		}
	case *pyast.Subscript:
		m.typeExpr(n.Value, hints)
		m.typeExpr(n.Index, hints)
		if base, ok := n.Value.(*pyast.Name); ok {
			f.stored[base.ID] = true
			if sym, ok := m.lookup(base.ID); ok && sym.ann.Kind() == infer.Mapping && sym.ann.Value().IsZero() {
				sym.ann = dictOf(m.annotate(n.Index), ann)
			}
		}
	case *pyast.Tuple, *pyast.List:
		elts := targetElts(t)
		tuple, _ := value.(*pyast.Tuple)
		for i, elt := range elts {
			var v pyast.Expr
			if tuple != nil && len(tuple.Elts) == len(elts) {
				v = tuple.Elts[i]
			}
			if err := m.typeTarget(elt, v, Annotation{}, hints); err != nil {
				return err
			}
		}
	default:
		return pyerr.NewSemanticErrorAt(t.Pos(), fmt.Sprintf("cannot assign to %s", t.Kind()))
	}
	return nil
}

func targetElts(t pyast.Expr) []pyast.Expr {
	switch n := t.(type) {
	case *pyast.Tuple:
		return n.Elts
	case *pyast.List:
		return n.Elts
	}
	return nil
}

// typeExpr records reads, calls and allocation needs of an expression tree.
func (m *moduleGen) typeExpr(e pyast.Expr, hints map[*funcSig][]Annotation) {
	if e == nil {
		return
	}
	f := m.frame
	switch n := e.(type) {
	case *pyast.Name:
		f.read(n.ID)
	case *pyast.Call:
		m.typeCall(n, hints)
	case *pyast.Attribute:
		m.typeExpr(n.Value, hints)
	case *pyast.Subscript:
		m.typeExpr(n.Value, hints)
		m.typeExpr(n.Index, hints)
	case *pyast.Slice:
		m.typeExpr(n.Lower, hints)
		m.typeExpr(n.Upper, hints)
		m.typeExpr(n.Step, hints)
	case *pyast.BinOp:
		m.typeExpr(n.Left, hints)
		m.typeExpr(n.Right, hints)
		if k := m.Infer(n); (n.Op == "+" || n.Op == "*") && (k == infer.String || k == infer.Sequence) {
			f.alloc = true
		}
	case *pyast.BoolOp:
		for _, v := range n.Values {
			m.typeExpr(v, hints)
		}
	case *pyast.Compare:
		m.typeExpr(n.Left, hints)
		for _, c := range n.Comparators {
			m.typeExpr(c, hints)
		}
	case *pyast.UnaryOp:
		m.typeExpr(n.Operand, hints)
	case *pyast.IfExp:
		m.typeExpr(n.Test, hints)
		m.typeExpr(n.Body, hints)
		m.typeExpr(n.Orelse, hints)
	case *pyast.List:
		for _, elt := range n.Elts {
			m.typeExpr(elt, hints)
		}
		if !analyzer.IsFixedList(n) {
			f.alloc = true
		}
	case *pyast.Tuple:
		for _, elt := range n.Elts {
			m.typeExpr(elt, hints)
		}
	case *pyast.Dict:
		for i := range n.Keys {
			m.typeExpr(n.Keys[i], hints)
			m.typeExpr(n.Values[i], hints)
		}
		f.alloc = true
	case *pyast.ListComp:
		f.alloc = true
		m.typeComprehension(n.Generators, hints, n.Elt)
	case *pyast.DictComp:
		f.alloc = true
		m.typeComprehension(n.Generators, hints, n.Key, n.Value)
	case *pyast.FString:
		f.alloc = true
		for _, p := range n.Parts {
			m.typeExpr(p.Expr, hints)
		}
	}
}

func (m *moduleGen) typeComprehension(gens []*pyast.Comprehension, hints map[*funcSig][]Annotation, elts ...pyast.Expr) {
	for _, g := range gens {
		m.typeExpr(g.Iter, hints)
	}
	_ = m.withComprehension(gens, func() error {
		for _, g := range gens {
			for _, cond := range g.Ifs {
				m.typeExpr(cond, hints)
			}
		}
		for _, e := range elts {
			m.typeExpr(e, hints)
		}
		return nil
	})
}

func (m *moduleGen) typeCall(c *pyast.Call, hints map[*funcSig][]Annotation) {
	f := m.frame
	if attr, ok := c.Func.(*pyast.Attribute); ok {
		_, module := m.moduleSymbol(attr)
		switch {
		case isSuperCall(attr.Value):
			f.read("self")
		case !module:
			m.typeExpr(attr.Value, hints)
		}
	}
	for _, a := range c.Args {
		m.typeExpr(a, hints)
	}
	for _, kw := range c.Keywords {
		m.typeExpr(kw.Value, hints)
	}

	t, err := m.resolveCall(c)
	if err != nil {
		return
	}
	var callee *funcSig
	switch t.kind {
	case targetFunc, targetMethod, targetSuper:
		callee = t.fn
	case targetCtor:
		f.alloc = true
		if init, ok := t.class.method("__init__"); ok {
			callee = init
		}
	case targetEntry:
		if t.entry.Requires.NeedsAllocator {
			f.alloc = true
		}
		if t.entry.Fallible && f.guarded == 0 {
			f.fallible = true
		}
		recv, ok := t.recv.(*pyast.Name)
		if !ok {
			return
		}
		if mutators[t.entry.Symbol] {
			f.grown[recv.ID] = true
		}
		if t.entry.Symbol == "list.append" && len(c.Args) == 1 {
			if sym, ok := m.lookup(recv.ID); ok && sym.ann.Elem().IsZero() {
				sym.ann = listOf(m.annotate(c.Args[0]))
			}
		}
		return
	}
	if callee == nil {
		return
	}
	f.calls[callee] = f.calls[callee] || f.guarded == 0
	args, err := userArgs(callee, c)
	if err != nil {
		return
	}
	hs := hints[callee]
	if hs == nil {
		hs = make([]Annotation, len(callee.params))
		hints[callee] = hs
	}
	for i, a := range args {
		if a == callee.params[i].Default || !hs[i].IsZero() {
			continue
		}
		hs[i] = m.annotate(a)
	}
}
