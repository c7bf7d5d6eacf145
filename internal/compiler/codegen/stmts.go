package codegen

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// block emits body in a fresh scope. Names the typing pass hoisted to this
// block are declared first.
func (m *moduleGen) block(st *emit.State, body []pyast.Stmt) error {
	return m.withScope(func() error {
		if len(body) > 0 && m.frame != nil {
			for _, name := range m.frame.hoist[body[0]] {
				m.declareHoisted(st, name)
			}
		}
		for _, s := range body {
			if err := m.stmt(st, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// frameAnn is the type the typing pass settled for a local.
func (m *moduleGen) frameAnn(name string) Annotation {
	if m.frame == nil || m.frame.scope == nil {
		return Annotation{}
	}
	if sym, ok := m.frame.scope.syms[name]; ok {
		return sym.ann
	}
	return Annotation{}
}

func (m *moduleGen) declareHoisted(st *emit.State, name string) {
	ann := m.frameAnn(name)
	typ, ok := m.zigType(st, ann, storageSlot)
	if !ok || typ == "void" {
		typ = "i64"
	}
	zig := m.localName(st, name)
	st.Linef("var %s: %s = undefined;", zig, typ)
	if !m.frame.reads[name] {
		st.Linef("_ = &%s;", zig)
	}
	sym := m.bind(name, ann, true)
	sym.zig = zig
}

// localName picks the Zig identifier of a new local. Zig forbids shadowing,
// so names already visible get a fresh suffix.
func (m *moduleGen) localName(st *emit.State, name string) string {
	if _, ok := m.lookup(name); ok {
		return st.NewLabel(name)
	}
	return zigIdent(name)
}

// isLocal reports whether name is bound below the module scope.
func (m *moduleGen) isLocal(name string) bool {
	return m.declaredLocally(name)
}

func (m *moduleGen) stmt(st *emit.State, s pyast.Stmt) error {
	switch n := s.(type) {
	case *pyast.Assign:
		return m.assign(st, n)
	case *pyast.AugAssign:
		return m.augAssign(st, n)
	case *pyast.Return:
		return m.ret(st, n)
	case *pyast.If:
		return m.ifStmt(st, n)
	case *pyast.While:
		st.Write("while (")
		if err := m.condition(st, n.Test); err != nil {
			return err
		}
		st.Line(") {")
		if err := st.Block(func() error { return m.block(st, n.Body) }); err != nil {
			return err
		}
		st.Line("}")
	case *pyast.Try:
		return m.tryStmt(st, n)
	case *pyast.For:
		reads := readsIn(n.Body)
		return m.loop(st, n.Target, n.Iter, reads, func() error {
			return m.block(st, n.Body)
		})
	case *pyast.ExprStmt:
		return m.exprStmt(st, n)
	case *pyast.Assert:
		st.Write("std.debug.assert(")
		if err := m.condition(st, n.Test); err != nil {
			return err
		}
		st.Line(");")
	case *pyast.Pass:
	case *pyast.Break:
		st.Line("break;")
	case *pyast.Continue:
		st.Line("continue;")
	case *pyast.Import:
		m.addImport(n)
	case *pyast.ImportFrom:
		m.addImportFrom(n)
	default:
		return pyerr.NewSemanticErrorAt(s.Pos(), fmt.Sprintf("unsupported statement: %s", s.Kind()))
	}
	return nil
}

// rhs is the right-hand side of an assignment: an expression, or generated
// text when a tuple is unpacked.
type rhs struct {
	expr pyast.Expr
	text string
}

func (m *moduleGen) writeRHS(st *emit.State, r rhs, want Annotation, owned bool) error {
	if r.expr == nil {
		st.Write(r.text)
		return nil
	}
	return m.value(st, r.expr, want, owned)
}

func (m *moduleGen) assign(st *emit.State, n *pyast.Assign) error {
	if len(n.Targets) == 0 {
		return pyerr.NewSemanticErrorAt(n.Pos(), "assignment without a target")
	}
	first := n.Targets[0]
	if err := m.assignTo(st, first, rhs{expr: n.Value}, AnnotationOf(n.Annotation)); err != nil {
		return err
	}
	// a = b = value binds the later targets to the first one.
	for _, t := range n.Targets[1:] {
		if _, ok := first.(*pyast.Name); !ok {
			return pyerr.NewSemanticErrorAt(n.Pos(), "chained assignment needs a plain name first")
		}
		if err := m.assignTo(st, t, rhs{expr: first}, Annotation{}); err != nil {
			return err
		}
	}
	return nil
}

func (m *moduleGen) assignTo(st *emit.State, target pyast.Expr, value rhs, ann Annotation) error {
	switch t := target.(type) {
	case *pyast.Name:
		return m.assignName(st, t, value, ann)
	case *pyast.Attribute:
		want := m.annotate(t)
		if err := m.attribute(st, t); err != nil {
			return err
		}
		st.Write(" = ")
		if err := m.writeRHS(st, value, want, true); err != nil {
			return err
		}
		st.Line(";")
		return nil
	case *pyast.Subscript:
		return m.assignItem(st, t, value)
	case *pyast.Tuple, *pyast.List:
		return m.unpack(st, targetElts(t), value)
	}
	return pyerr.NewSemanticErrorAt(target.Pos(), fmt.Sprintf("cannot assign to %s", target.Kind()))
}

func (m *moduleGen) assignName(st *emit.State, t *pyast.Name, value rhs, ann Annotation) error {
	name := t.ID
	if sym, ok := m.lookup(name); ok && m.isLocal(name) {
		zig := sym.zig
		if zig == "" {
			zig = zigIdent(name)
		}
		st.Write(zig + " = ")
		if value.expr == nil && value.text == "" {
			st.Write("undefined")
		} else if err := m.writeRHS(st, value, sym.ann, sym.repr == emit.ReprList); err != nil {
			return err
		}
		st.Line(";")
		return nil
	}

	f := m.frame
	if ann.IsZero() {
		ann = m.frameAnn(name)
	}
	if ann.IsZero() && value.expr != nil {
		ann = m.annotate(value.expr)
	}
	owned := f.grown[name] || f.assigns[name] > 1 || f.hoisted[name]
	listy := ann.Kind() == infer.Sequence && ann.Base != "tuple" && ann.Base != "Tuple"

	repr := emit.ReprValue
	switch {
	case listy && owned:
		repr = emit.ReprList
	case value.expr != nil:
		repr = m.Repr(value.expr)
	}
	mutable := f.mutable(name, repr) || (value.expr == nil && value.text == "")

	typ := ""
	if repr != emit.ReprArray && (!listy || repr == emit.ReprList) {
		if z, ok := m.zigType(st, ann, storageSlot); ok && z != "void" {
			typ = z
		}
	}

	zig := m.localName(st, name)
	kw := "const"
	if mutable {
		kw = "var"
	}
	st.Write(kw + " " + zig)
	if typ != "" {
		st.Write(": " + typ)
	}
	st.Write(" = ")
	if value.expr == nil && value.text == "" {
		st.Write("undefined")
	} else if err := m.writeRHS(st, value, ann, repr == emit.ReprList); err != nil {
		return err
	}
	st.Line(";")
	if !f.reads[name] {
		if mutable {
			st.Linef("_ = &%s;", zig)
		} else {
			st.Linef("_ = %s;", zig)
		}
	}

	m.declareSym(name, &symbol{ann: ann, repr: repr, mutable: mutable, zig: zig})
	return nil
}

// assignItem lowers d[k] = v and xs[i] = v.
func (m *moduleGen) assignItem(st *emit.State, t *pyast.Subscript, value rhs) error {
	if _, ok := t.Index.(*pyast.Slice); ok {
		return pyerr.NewSemanticErrorAt(t.Pos(), "assignment to a slice is not supported")
	}
	base := m.annotate(t.Value)
	if base.Kind() == infer.Mapping {
		st.Write(st.Try())
		if err := m.expr(st, t.Value); err != nil {
			return err
		}
		st.Write(".put(")
		if err := m.expr(st, t.Index); err != nil {
			return err
		}
		st.Write(", ")
		if err := m.writeRHS(st, value, base.Value(), true); err != nil {
			return err
		}
		st.Line(")" + st.EndTry() + ";")
		return nil
	}
	if err := m.expr(st, t.Value); err != nil {
		return err
	}
	if m.Repr(t.Value) == emit.ReprList {
		st.Write(".items")
	}
	st.Write("[")
	if err := m.index(st, t.Value, t.Index); err != nil {
		return err
	}
	st.Write("] = ")
	if err := m.writeRHS(st, value, base.Elem(), true); err != nil {
		return err
	}
	st.Line(";")
	return nil
}

// unpack lowers a, b = value through a temporary so swaps read the old
// values.
func (m *moduleGen) unpack(st *emit.State, elts []pyast.Expr, value rhs) error {
	label := st.NewLabel("unpack")
	st.Writef("const %s = ", label)
	access := "%s[%d]"
	if tuple, ok := value.expr.(*pyast.Tuple); ok && len(tuple.Elts) == len(elts) {
		st.Write(".{ ")
		for i, v := range tuple.Elts {
			if i > 0 {
				st.Write(", ")
			}
			if err := m.expr(st, v); err != nil {
				return err
			}
		}
		st.Write(" }")
	} else {
		if value.expr != nil && m.Repr(value.expr) == emit.ReprList {
			access = "%s.items[%d]"
		}
		if err := m.writeRHS(st, value, Annotation{}, false); err != nil {
			return err
		}
	}
	st.Line(";")
	for i, elt := range elts {
		if err := m.assignTo(st, elt, rhs{text: fmt.Sprintf(access, label, i)}, Annotation{}); err != nil {
			return err
		}
	}
	return nil
}

func (m *moduleGen) augAssign(st *emit.State, n *pyast.AugAssign) error {
	if n.Op == "+" && m.Infer(n.Target) == infer.Sequence && m.Repr(n.Target) == emit.ReprList {
		st.Write(st.Try())
		if err := m.expr(st, n.Target); err != nil {
			return err
		}
		st.Write(".appendSlice(")
		if err := st.EmitSlice(n.Value); err != nil {
			return err
		}
		st.Line(")" + st.EndTry() + ";")
		return nil
	}
	value := &pyast.BinOp{Left: n.Target, Op: n.Op, Right: n.Value}
	value.Position = pyast.Position{Line: n.Pos()}
	return m.assignTo(st, n.Target, rhs{expr: value}, Annotation{})
}

func (m *moduleGen) ret(st *emit.State, n *pyast.Return) error {
	sig := m.frame.sig
	if n.Value == nil || (isNone(n.Value) && sig.void) {
		st.Line("return;")
		return nil
	}
	st.Write("return ")
	if err := m.value(st, n.Value, sig.returns, true); err != nil {
		return err
	}
	st.Line(";")
	return nil
}

func (m *moduleGen) ifStmt(st *emit.State, n *pyast.If) error {
	st.Write("if (")
	for {
		if err := m.condition(st, n.Test); err != nil {
			return err
		}
		st.Line(") {")
		if err := st.Block(func() error { return m.block(st, n.Body) }); err != nil {
			return err
		}
		elif, ok := elifOf(n)
		if !ok {
			break
		}
		st.Write("} else if (")
		n = elif
	}
	if len(n.Orelse) > 0 {
		st.Line("} else {")
		if err := st.Block(func() error { return m.block(st, n.Orelse) }); err != nil {
			return err
		}
	}
	st.Line("}")
	return nil
}

func (m *moduleGen) exprStmt(st *emit.State, n *pyast.ExprStmt) error {
	switch v := n.Value.(type) {
	case *pyast.Constant:
		// docstrings and bare literals have no effect
		return nil
	case *pyast.Call:
		t, err := m.resolveCall(v)
		if err != nil {
			return err
		}
		out, err := st.Capture(func() error { return m.emitCall(st, v) })
		if err != nil {
			return err
		}
		if !t.void() {
			st.Write("_ = ")
			st.Write(out)
			st.Line(";")
			return nil
		}
		st.Write(out)
		if strings.HasSuffix(out, "}") {
			st.Newline()
		} else {
			st.Line(";")
		}
		return nil
	}
	st.Write("_ = ")
	if err := m.expr(st, n.Value); err != nil {
		return err
	}
	st.Line(";")
	return nil
}
