package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// expr lowers one expression at the current position.
func (m *moduleGen) expr(st *emit.State, e pyast.Expr) error {
	switch n := e.(type) {
	case *pyast.Constant:
		return m.constant(st, n)
	case *pyast.Name:
		return m.name(st, n)
	case *pyast.Attribute:
		return m.attribute(st, n)
	case *pyast.Subscript:
		return m.subscript(st, n)
	case *pyast.Call:
		return m.emitCall(st, n)
	case *pyast.BinOp:
		return m.binOp(st, n)
	case *pyast.BoolOp:
		return m.boolOp(st, n)
	case *pyast.UnaryOp:
		return m.unaryOp(st, n)
	case *pyast.Compare:
		return m.compare(st, n)
	case *pyast.IfExp:
		return m.ifExp(st, n)
	case *pyast.List:
		return m.list(st, n, m.annotate(n), false)
	case *pyast.Tuple:
		st.Write(".{ ")
		if err := st.EmitArgs(n.Elts); err != nil {
			return err
		}
		st.Write(" }")
		return nil
	case *pyast.Dict:
		return m.dict(st, n, m.annotate(n))
	case *pyast.ListComp:
		return m.listComp(st, n)
	case *pyast.DictComp:
		return m.dictComp(st, n)
	case *pyast.FString:
		return m.fstring(st, n)
	case *pyast.Slice:
		return pyerr.NewSemanticErrorAt(n.Pos(), "slice outside of a subscript")
	case nil:
		return pyerr.NewSemanticError("missing expression")
	}
	return pyerr.NewSemanticErrorAt(e.Pos(), fmt.Sprintf("unsupported expression: %s", e.Kind()))
}

func (m *moduleGen) constant(st *emit.State, c *pyast.Constant) error {
	switch c.Type {
	case pyast.ConstNone:
		st.Write("null")
	case pyast.ConstBool:
		st.Write(strconv.FormatBool(c.Value.(bool)))
	case pyast.ConstInt:
		st.Write(fmt.Sprint(c.Value))
	case pyast.ConstFloat:
		st.Write(floatLiteral(c.Value.(float64)))
	case pyast.ConstStr:
		st.Write(zigString(c.Value.(string)))
	}
	return nil
}

func (m *moduleGen) name(st *emit.State, n *pyast.Name) error {
	if sym, ok := m.lookup(n.ID); ok {
		if sym.zig != "" {
			st.Write(sym.zig)
		} else {
			st.Write(zigIdent(n.ID))
		}
		return nil
	}
	switch n.ID {
	case "True":
		st.Write("true")
		return nil
	case "False":
		st.Write("false")
		return nil
	case "None":
		st.Write("null")
		return nil
	}
	if q, ok := m.imports[n.ID]; ok {
		if e, ok := m.reg.Lookup(q); ok && e.MaxArgs == 0 {
			return e.Invoke(st, nil)
		}
	}
	if _, ok := m.funcs[n.ID]; ok {
		return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("function %s used as a value", n.ID))
	}
	return pyerr.NewUnresolvedSymbol(n.ID, n.Pos())
}

func (m *moduleGen) attribute(st *emit.State, n *pyast.Attribute) error {
	if symbol, ok := m.moduleSymbol(n); ok {
		e, ok := m.reg.Lookup(symbol)
		if !ok {
			return pyerr.NewUnresolvedSymbol(symbol, n.Pos())
		}
		return e.Invoke(st, nil)
	}
	cls := m.classOf(n.Value)
	if cls != nil {
		if _, ok := cls.field(n.Attr); !ok {
			if _, isMethod := cls.method(n.Attr); isMethod {
				return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("bound method %s.%s used as a value", cls.name, n.Attr))
			}
			return pyerr.NewUnresolvedSymbol(cls.name+"."+n.Attr, n.Pos())
		}
	} else if root, ok := rootName(n.Value); ok && !m.bound(root) {
		dotted, _ := pyast.DottedName(n)
		return pyerr.NewUnresolvedSymbol(dotted, n.Pos())
	}
	if err := m.expr(st, n.Value); err != nil {
		return err
	}
	if cls != nil {
		st.Write("." + cls.fieldPath(n.Attr))
		return nil
	}
	st.Write("." + zigIdent(n.Attr))
	return nil
}

// intConst matches an integer literal, negated ones included.
func intConst(e pyast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *pyast.Constant:
		if v, ok := n.Value.(int64); ok && n.Type == pyast.ConstInt {
			return v, true
		}
	case *pyast.UnaryOp:
		if n.Op == "-" {
			if v, ok := intConst(n.Operand); ok {
				return -v, true
			}
		}
	}
	return 0, false
}

// lengthOf writes the element count of base as a usize.
func (m *moduleGen) lengthOf(st *emit.State, base pyast.Expr) error {
	if err := m.expr(st, base); err != nil {
		return err
	}
	if m.Repr(base) == emit.ReprList {
		st.Write(".items.len")
	} else {
		st.Write(".len")
	}
	return nil
}

// index writes a usize position into base. Negative literals count from the
// end.
func (m *moduleGen) index(st *emit.State, base, idx pyast.Expr) error {
	if v, ok := intConst(idx); ok {
		if v >= 0 {
			st.Write(strconv.FormatInt(v, 10))
			return nil
		}
		if err := m.lengthOf(st, base); err != nil {
			return err
		}
		st.Write(" - " + strconv.FormatInt(-v, 10))
		return nil
	}
	st.Write("@intCast(")
	if err := m.expr(st, idx); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

func (m *moduleGen) subscript(st *emit.State, n *pyast.Subscript) error {
	if sl, ok := n.Index.(*pyast.Slice); ok {
		return m.slice(st, n.Value, sl)
	}
	base := m.annotate(n.Value)
	switch base.Kind() {
	case infer.Mapping:
		if err := m.expr(st, n.Value); err != nil {
			return err
		}
		st.Write(".get(")
		if err := m.expr(st, n.Index); err != nil {
			return err
		}
		st.Write(").?")
		return nil
	case infer.String:
		if err := m.expr(st, n.Value); err != nil {
			return err
		}
		st.Write("[")
		if err := m.index(st, n.Value, n.Index); err != nil {
			return err
		}
		st.Write("..][0..1]")
		return nil
	}
	if err := m.expr(st, n.Value); err != nil {
		return err
	}
	if m.Repr(n.Value) == emit.ReprList {
		st.Write(".items")
	}
	st.Write("[")
	if err := m.index(st, n.Value, n.Index); err != nil {
		return err
	}
	st.Write("]")
	return nil
}

// slice lowers base[lower:upper]. Steps have no slice counterpart.
func (m *moduleGen) slice(st *emit.State, base pyast.Expr, sl *pyast.Slice) error {
	if sl.Step != nil {
		return pyerr.NewSemanticErrorAt(sl.Pos(), "slice steps are not supported")
	}
	if err := m.expr(st, base); err != nil {
		return err
	}
	if m.Repr(base) == emit.ReprList {
		st.Write(".items")
	}
	st.Write("[")
	if sl.Lower == nil {
		st.Write("0")
	} else if err := m.index(st, base, sl.Lower); err != nil {
		return err
	}
	st.Write("..")
	if sl.Upper != nil {
		if err := m.index(st, base, sl.Upper); err != nil {
			return err
		}
	}
	st.Write("]")
	return nil
}

// emitFloat writes e as an f64, widening integers.
func (m *moduleGen) emitFloat(st *emit.State, e pyast.Expr) error {
	if v, ok := intConst(e); ok {
		st.Write(floatLiteral(float64(v)))
		return nil
	}
	if m.Infer(e) != infer.Int {
		return m.expr(st, e)
	}
	st.Write("@as(f64, @floatFromInt(")
	if err := m.expr(st, e); err != nil {
		return err
	}
	st.Write("))")
	return nil
}

// operands writes "l<op>r" with both sides widened to f64 when either is a
// float.
func (m *moduleGen) operands(st *emit.State, l pyast.Expr, op string, r pyast.Expr, float bool) error {
	side := m.expr
	if float {
		side = m.emitFloat
	}
	if err := side(st, l); err != nil {
		return err
	}
	st.Write(op)
	return side(st, r)
}

// concatOperands flattens a left-leaning chain of string + into its
// operands.
func (m *moduleGen) concatOperands(n *pyast.BinOp) []pyast.Expr {
	if l, ok := n.Left.(*pyast.BinOp); ok && l.Op == "+" && m.Infer(l) == infer.String {
		return append(m.concatOperands(l), n.Right)
	}
	return []pyast.Expr{n.Left, n.Right}
}

func (m *moduleGen) binOp(st *emit.State, n *pyast.BinOp) error {
	l, r := m.Infer(n.Left), m.Infer(n.Right)
	float := l == infer.Float || r == infer.Float
	both := func(t infer.Type) bool { return l == t && r == t }

	switch n.Op {
	case "+":
		if l == infer.String || r == infer.String {
			return m.concat(st, "u8", m.concatOperands(n), m.expr)
		}
		if l == infer.Sequence && r == infer.Sequence {
			elem, ok := m.zigType(st, m.annotate(n.Left).Elem(), storageSlot)
			if !ok {
				elem = emit.ElemType(m.ElementType(n.Left))
			}
			return m.concat(st, elem, []pyast.Expr{n.Left, n.Right}, func(st *emit.State, e pyast.Expr) error {
				return st.EmitSlice(e)
			})
		}
	case "*":
		if l == infer.String && r == infer.Int {
			return m.repeat(st, n.Left, n.Right)
		}
		if l == infer.Int && r == infer.String {
			return m.repeat(st, n.Right, n.Left)
		}
	case "/":
		st.Write("(")
		if err := m.operands(st, n.Left, " / ", n.Right, true); err != nil {
			return err
		}
		st.Write(")")
		return nil
	case "//":
		if both(infer.Int) {
			return m.builtinCall(st, "@divFloor", n.Left, n.Right, false)
		}
		st.Write("@floor(")
		if err := m.operands(st, n.Left, " / ", n.Right, true); err != nil {
			return err
		}
		st.Write(")")
		return nil
	case "%":
		if l == infer.String {
			return pyerr.NewSemanticErrorAt(n.Pos(), "printf-style formatting is not supported, use an f-string")
		}
		return m.builtinCall(st, "@mod", n.Left, n.Right, float)
	case "**":
		if float {
			return m.builtinCall(st, "std.math.pow", n.Left, n.Right, true)
		}
		st.Write("std.math.pow(i64, ")
		if err := m.operands(st, n.Left, ", ", n.Right, false); err != nil {
			return err
		}
		st.Write(")")
		return nil
	case "<<", ">>":
		st.Write("(")
		if err := m.expr(st, n.Left); err != nil {
			return err
		}
		st.Write(" " + n.Op + " @intCast(")
		if err := m.expr(st, n.Right); err != nil {
			return err
		}
		st.Write("))")
		return nil
	case "@":
		return pyerr.NewSemanticErrorAt(n.Pos(), "matrix multiplication is not supported")
	}
	st.Write("(")
	if err := m.operands(st, n.Left, " "+n.Op+" ", n.Right, float); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// builtinCall writes fn(l, r); std.math.pow takes the element type first.
func (m *moduleGen) builtinCall(st *emit.State, fn string, l, r pyast.Expr, float bool) error {
	st.Write(fn + "(")
	if fn == "std.math.pow" {
		st.Write("f64, ")
	}
	if err := m.operands(st, l, ", ", r, float); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// concat joins operands into one freshly allocated slice.
func (m *moduleGen) concat(st *emit.State, elem string, parts []pyast.Expr, each func(*emit.State, pyast.Expr) error) error {
	st.Require(allocReqs)
	st.Writef("%sstd.mem.concat(%s, %s, &.{ ", st.Try(), st.Allocator(), elem)
	for i, p := range parts {
		if i > 0 {
			st.Write(", ")
		}
		if err := each(st, p); err != nil {
			return err
		}
	}
	st.Write(" })" + st.EndTry())
	return nil
}

// repeat lowers s * n:
//
//	repeat_1: {
//	    var repeat_1_out = std.ArrayList(u8).init(allocator);
//	    var repeat_1_i: i64 = 0;
//	    while (repeat_1_i < n) : (repeat_1_i += 1) try repeat_1_out.appendSlice(s);
//	    break :repeat_1 repeat_1_out.items;
//	}
func (m *moduleGen) repeat(st *emit.State, s, count pyast.Expr) error {
	st.Require(allocReqs)
	label := st.NewLabel("repeat")
	out, i := label+"_out", label+"_i"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s = std.ArrayList(u8).init(%s);", out, st.Allocator())
		st.Linef("var %s: i64 = 0;", i)
		st.Writef("while (%s < ", i)
		if err := m.expr(st, count); err != nil {
			return err
		}
		st.Writef(") : (%s += 1) %s%s.appendSlice(", i, st.Try(), out)
		if err := m.expr(st, s); err != nil {
			return err
		}
		st.Line(")" + st.EndTry() + ";")
		st.Linef("break :%s %s.items;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

func (m *moduleGen) boolOp(st *emit.State, n *pyast.BoolOp) error {
	op := " and "
	if n.Op == "or" {
		op = " or "
	}
	allBool := true
	for _, v := range n.Values {
		if !m.isCondition(v) {
			allBool = false
		}
	}
	if allBool || len(n.Values) != 2 {
		st.Write("(")
		for i, v := range n.Values {
			if i > 0 {
				st.Write(op)
			}
			if err := m.condition(st, v); err != nil {
				return err
			}
		}
		st.Write(")")
		return nil
	}
	// `a or b` yields a value, not a bool.
	a, b := n.Values[0], n.Values[1]
	st.Write("(if (")
	if err := m.condition(st, a); err != nil {
		return err
	}
	st.Write(") ")
	first, second := a, b
	if n.Op == "and" {
		first, second = b, a
	}
	if err := m.expr(st, first); err != nil {
		return err
	}
	st.Write(" else ")
	if err := m.expr(st, second); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// isCondition reports whether e already lowers to a bool.
func (m *moduleGen) isCondition(e pyast.Expr) bool {
	switch n := e.(type) {
	case *pyast.Compare:
		return true
	case *pyast.UnaryOp:
		return n.Op == "not"
	case *pyast.Constant:
		return n.Type == pyast.ConstBool
	case *pyast.BoolOp:
		for _, v := range n.Values {
			if !m.isCondition(v) {
				return false
			}
		}
		return true
	}
	return m.annotate(e).Base == "bool"
}

// condition writes e as a bool following Python truthiness.
func (m *moduleGen) condition(st *emit.State, e pyast.Expr) error {
	if m.isCondition(e) {
		return m.expr(st, e)
	}
	ann := m.annotate(e)
	if ann.Base == "Optional" {
		st.Write("(")
		if err := m.expr(st, e); err != nil {
			return err
		}
		st.Write(" != null)")
		return nil
	}
	switch ann.Kind() {
	case infer.Int, infer.Float:
		st.Write("(")
		if err := m.expr(st, e); err != nil {
			return err
		}
		st.Write(" != 0)")
	case infer.String, infer.Sequence:
		st.Write("(")
		if err := m.lengthOf(st, e); err != nil {
			return err
		}
		st.Write(" != 0)")
	case infer.Mapping:
		st.Write("(")
		if err := m.expr(st, e); err != nil {
			return err
		}
		st.Write(".count() != 0)")
	default:
		if _, ok := m.classes[ann.Base]; ok {
			st.Write("true")
			return nil
		}
		return m.expr(st, e)
	}
	return nil
}

func (m *moduleGen) unaryOp(st *emit.State, n *pyast.UnaryOp) error {
	switch n.Op {
	case "not":
		st.Write("!")
		if m.isCondition(n.Operand) {
			st.Write("(")
			if err := m.expr(st, n.Operand); err != nil {
				return err
			}
			st.Write(")")
			return nil
		}
		return m.condition(st, n.Operand)
	case "+":
		return m.expr(st, n.Operand)
	case "-", "~":
		st.Write(n.Op)
		if _, ok := n.Operand.(*pyast.Constant); ok {
			return m.expr(st, n.Operand)
		}
		if _, ok := n.Operand.(*pyast.Name); ok {
			return m.expr(st, n.Operand)
		}
		st.Write("(")
		if err := m.expr(st, n.Operand); err != nil {
			return err
		}
		st.Write(")")
		return nil
	}
	return pyerr.NewSemanticErrorAt(n.Pos(), "unsupported unary operator "+n.Op)
}

func isNone(e pyast.Expr) bool {
	c, ok := e.(*pyast.Constant)
	return ok && c.Type == pyast.ConstNone
}

// compare lowers a comparison chain; a < b < c becomes (a < b and b < c).
func (m *moduleGen) compare(st *emit.State, n *pyast.Compare) error {
	if len(n.Ops) == 1 {
		return m.comparePair(st, n.Left, n.Ops[0], n.Comparators[0])
	}
	st.Write("(")
	left := n.Left
	for i, op := range n.Ops {
		if i > 0 {
			st.Write(" and ")
		}
		if err := m.comparePair(st, left, op, n.Comparators[i]); err != nil {
			return err
		}
		left = n.Comparators[i]
	}
	st.Write(")")
	return nil
}

var orderOps = map[string]string{
	"<":  "== .lt",
	">":  "== .gt",
	"<=": "!= .gt",
	">=": "!= .lt",
}

func (m *moduleGen) comparePair(st *emit.State, l pyast.Expr, op string, r pyast.Expr) error {
	lt, rt := m.Infer(l), m.Infer(r)
	switch op {
	case "in", "not in":
		if op == "not in" {
			st.Write("!")
		}
		return m.contains(st, r, l)
	case "is", "is not":
		if op == "is" {
			op = "=="
		} else {
			op = "!="
		}
	}
	if isNone(l) {
		l, r = r, l
	}
	if isNone(r) {
		st.Write("(")
		if err := m.expr(st, l); err != nil {
			return err
		}
		st.Write(" " + op + " null)")
		return nil
	}
	if lt == infer.String || rt == infer.String {
		switch op {
		case "==", "!=":
			if op == "!=" {
				st.Write("!")
			}
			st.Write("std.mem.eql(u8, ")
			if err := m.operands(st, l, ", ", r, false); err != nil {
				return err
			}
			st.Write(")")
			return nil
		}
		if rel, ok := orderOps[op]; ok {
			st.Write("(std.mem.order(u8, ")
			if err := m.operands(st, l, ", ", r, false); err != nil {
				return err
			}
			st.Write(") " + rel + ")")
			return nil
		}
	}
	st.Write("(")
	if err := m.operands(st, l, " "+op+" ", r, lt == infer.Float || rt == infer.Float); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// contains lowers `item in container`.
func (m *moduleGen) contains(st *emit.State, container, item pyast.Expr) error {
	switch m.Infer(container) {
	case infer.String:
		st.Write("(std.mem.indexOf(u8, ")
		if err := m.operands(st, container, ", ", item, false); err != nil {
			return err
		}
		st.Write(") != null)")
		return nil
	case infer.Mapping:
		if err := m.expr(st, container); err != nil {
			return err
		}
		st.Write(".contains(")
		if err := m.expr(st, item); err != nil {
			return err
		}
		st.Write(")")
		return nil
	}
	if m.ElementType(container) == infer.String || m.Infer(item) == infer.String {
		label := st.NewLabel("in")
		st.Write(label + ": {")
		st.Newline()
		err := st.Block(func() error {
			st.Write("for (")
			if err := st.EmitSlice(container); err != nil {
				return err
			}
			st.Writef(") |%s_v| if (std.mem.eql(u8, %s_v, ", label, label)
			if err := m.expr(st, item); err != nil {
				return err
			}
			st.Linef(")) break :%s true;", label)
			st.Linef("break :%s false;", label)
			return nil
		})
		if err != nil {
			return err
		}
		st.Write("}")
		return nil
	}
	elem, ok := m.zigType(st, m.annotate(container).Elem(), storageSlot)
	if !ok {
		elem = emit.ElemType(m.ElementType(container))
	}
	st.Writef("(std.mem.indexOfScalar(%s, ", elem)
	if err := st.EmitSlice(container); err != nil {
		return err
	}
	st.Write(", ")
	if err := m.expr(st, item); err != nil {
		return err
	}
	st.Write(") != null)")
	return nil
}

func (m *moduleGen) ifExp(st *emit.State, n *pyast.IfExp) error {
	float := m.join(n.Body, n.Orelse).Kind() == infer.Float
	side := m.expr
	if float {
		side = m.emitFloat
	}
	st.Write("(if (")
	if err := m.condition(st, n.Test); err != nil {
		return err
	}
	st.Write(") ")
	if err := side(st, n.Body); err != nil {
		return err
	}
	st.Write(" else ")
	if err := side(st, n.Orelse); err != nil {
		return err
	}
	st.Write(")")
	return nil
}

// value writes e for a slot of annotation want. List literals become owned
// lists when owned is set, slices become owned lists when want is a list,
// ints widen to floats.
func (m *moduleGen) value(st *emit.State, e pyast.Expr, want Annotation, owned bool) error {
	saved := m.elemHint
	defer func() { m.elemHint = saved }()
	if want.Kind() == infer.Mapping {
		m.elemHint = want.Value()
	} else {
		m.elemHint = want.Elem()
	}

	switch n := e.(type) {
	case *pyast.List:
		ann := m.annotate(n)
		if want.Kind() == infer.Sequence && !want.Elem().IsZero() {
			ann = want
		}
		return m.list(st, n, ann, owned)
	case *pyast.Dict:
		ann := m.annotate(n)
		if want.Kind() == infer.Mapping && !want.Value().IsZero() {
			ann = want
		}
		return m.dict(st, n, ann)
	}
	switch want.Kind() {
	case infer.Float:
		if m.Infer(e) == infer.Int {
			return m.emitFloat(st, e)
		}
	case infer.Sequence:
		if owned && m.Repr(e) != emit.ReprList && want.Base != "tuple" && want.Base != "Tuple" {
			return m.ownedCopy(st, e, want)
		}
	}
	return m.expr(st, e)
}

// ownedCopy copies a slice or array into a fresh ArrayList.
func (m *moduleGen) ownedCopy(st *emit.State, e pyast.Expr, want Annotation) error {
	elem, ok := m.zigType(st, want.Elem(), storageSlot)
	if !ok {
		elem = emit.ElemType(m.ElementType(e))
	}
	st.Require(allocReqs)
	label := st.NewLabel("copy")
	out := label + "_out"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s = std.ArrayList(%s).init(%s);", out, elem, st.Allocator())
		st.Writef("%s%s.appendSlice(", st.Try(), out)
		if err := st.EmitSlice(e); err != nil {
			return err
		}
		st.Line(")" + st.EndTry() + ";")
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

func (m *moduleGen) elemZig(st *emit.State, ann Annotation) string {
	if z, ok := m.zigType(st, ann.Elem(), storageSlot); ok && z != "void" {
		return z
	}
	return "i64"
}

// list lowers a list literal. Constant literals that are not owned become
// fixed arrays; everything else is built in a labeled block:
//
//	list_1: {
//	    var list_1_out = std.ArrayList(i64).init(allocator);
//	    try list_1_out.append(x);
//	    break :list_1 list_1_out;
//	}
func (m *moduleGen) list(st *emit.State, n *pyast.List, ann Annotation, owned bool) error {
	elem := m.elemZig(st, ann)
	if !owned && analyzer.IsFixedList(n) {
		st.Writef("[_]%s{ ", elem)
		for i, elt := range n.Elts {
			if i > 0 {
				st.Write(", ")
			}
			if err := m.value(st, elt, ann.Elem(), true); err != nil {
				return err
			}
		}
		st.Write(" }")
		return nil
	}
	st.Require(allocReqs)
	if len(n.Elts) == 0 {
		st.Writef("std.ArrayList(%s).init(%s)", elem, st.Allocator())
		return nil
	}
	label := st.NewLabel("list")
	out := label + "_out"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s = std.ArrayList(%s).init(%s);", out, elem, st.Allocator())
		for _, elt := range n.Elts {
			st.Writef("%s%s.append(", st.Try(), out)
			if err := m.value(st, elt, ann.Elem(), true); err != nil {
				return err
			}
			st.Line(")" + st.EndTry() + ";")
		}
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

// mapType spells the hash map type of a dict annotation.
func (m *moduleGen) mapType(st *emit.State, ann Annotation) string {
	if ann.Elem().IsZero() {
		ann = dictOf(strAnn, ann.Value())
	}
	z, ok := m.zigType(st, ann, storageSlot)
	if !ok {
		st.Require(mapReqs)
		return "hashmap_helper.StringHashMap(i64)"
	}
	return z
}

// dict lowers a dict literal into a labeled block filling a hash map.
func (m *moduleGen) dict(st *emit.State, n *pyast.Dict, ann Annotation) error {
	typ := m.mapType(st, ann)
	if len(n.Keys) == 0 {
		st.Writef("%s.init(%s)", typ, st.Allocator())
		return nil
	}
	label := st.NewLabel("dict")
	out := label + "_out"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s = %s.init(%s);", out, typ, st.Allocator())
		for i := range n.Keys {
			if n.Keys[i] == nil {
				return pyerr.NewSemanticErrorAt(n.Pos(), "dict unpacking is not supported")
			}
			st.Writef("%s%s.put(", st.Try(), out)
			if err := m.expr(st, n.Keys[i]); err != nil {
				return err
			}
			st.Write(", ")
			if err := m.value(st, n.Values[i], ann.Value(), true); err != nil {
				return err
			}
			st.Line(")" + st.EndTry() + ";")
		}
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

// comprehension writes the labeled block shared by list and dict
// comprehensions. init declares the output, add stores one item.
func (m *moduleGen) comprehension(st *emit.State, gens []*pyast.Comprehension, init func(out string), add func(out string) error, reads map[string]bool) error {
	st.Require(allocReqs)
	label := st.NewLabel("comp")
	out := label + "_out"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		init(out)
		if err := m.withScope(func() error {
			return m.generators(st, gens, reads, func() error { return add(out) })
		}); err != nil {
			return err
		}
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

// generators nests one loop per generator and guards the innermost body with
// the filters.
func (m *moduleGen) generators(st *emit.State, gens []*pyast.Comprehension, reads map[string]bool, body func() error) error {
	if len(gens) == 0 {
		return body()
	}
	g := gens[0]
	return m.loop(st, g.Target, g.Iter, reads, func() error {
		for _, cond := range g.Ifs {
			st.Write("if (")
			if err := m.condition(st, cond); err != nil {
				return err
			}
			st.Write(") {")
			st.Newline()
			st.Indent()
		}
		err := m.generators(st, gens[1:], reads, body)
		for range g.Ifs {
			if derr := st.Dedent(); err == nil {
				err = derr
			}
			st.Line("}")
		}
		return err
	})
}

func (m *moduleGen) listComp(st *emit.State, n *pyast.ListComp) error {
	ann := m.annotate(n)
	elem := m.elemZig(st, ann)
	reads := readsIn(nil, append([]pyast.Expr{n.Elt}, comprehensionExprs(n.Generators)...)...)
	return m.comprehension(st, n.Generators,
		func(out string) {
			st.Linef("var %s = std.ArrayList(%s).init(%s);", out, elem, st.Allocator())
		},
		func(out string) error {
			st.Writef("%s%s.append(", st.Try(), out)
			if err := m.value(st, n.Elt, ann.Elem(), true); err != nil {
				return err
			}
			st.Line(")" + st.EndTry() + ";")
			return nil
		}, reads)
}

func (m *moduleGen) dictComp(st *emit.State, n *pyast.DictComp) error {
	ann := m.annotate(n)
	typ := m.mapType(st, ann)
	reads := readsIn(nil, append([]pyast.Expr{n.Key, n.Value}, comprehensionExprs(n.Generators)...)...)
	return m.comprehension(st, n.Generators,
		func(out string) {
			st.Linef("var %s = %s.init(%s);", out, typ, st.Allocator())
		},
		func(out string) error {
			st.Writef("%s%s.put(", st.Try(), out)
			if err := m.expr(st, n.Key); err != nil {
				return err
			}
			st.Write(", ")
			if err := m.value(st, n.Value, ann.Value(), true); err != nil {
				return err
			}
			st.Line(")" + st.EndTry() + ";")
			return nil
		}, reads)
}

func comprehensionExprs(gens []*pyast.Comprehension) []pyast.Expr {
	var out []pyast.Expr
	for _, g := range gens {
		out = append(out, g.Iter)
		out = append(out, g.Ifs...)
	}
	return out
}

// fstring lowers to std.fmt.allocPrint. Literal-only f-strings are plain
// string literals.
func (m *moduleGen) fstring(st *emit.State, n *pyast.FString) error {
	var (
		format strings.Builder
		args   []pyast.Expr
		text   strings.Builder
	)
	for _, p := range n.Parts {
		if p.Expr == nil {
			format.WriteString(formatText(p.Literal))
			text.WriteString(p.Literal)
			continue
		}
		format.WriteString(m.placeholder(p.Expr, p.Spec))
		args = append(args, p.Expr)
	}
	if len(args) == 0 {
		st.Write(zigString(text.String()))
		return nil
	}
	st.Require(allocReqs)
	st.Writef(`%sstd.fmt.allocPrint(%s, "%s", .{ `, st.Try(), st.Allocator(), format.String())
	for i, a := range args {
		if i > 0 {
			st.Write(", ")
		}
		if err := st.EmitSlice(a); err != nil {
			return err
		}
	}
	st.Write(" })" + st.EndTry())
	return nil
}

// placeholder maps a Python format spec, [[fill]align][0][width][.prec][type],
// to a std.fmt placeholder.
func (m *moduleGen) placeholder(e pyast.Expr, spec string) string {
	t := m.Infer(e)
	verb := strings.Trim(emit.FormatVerb(t), "{}")
	if m.Repr(e) != emit.ReprValue || m.annotate(e).Base == "bool" {
		verb = "any"
	}
	if spec == "" {
		return "{" + verb + "}"
	}

	var fill, align, width, prec string
	rest := spec
	isAlign := func(c byte) bool { return c == '<' || c == '>' || c == '^' }
	switch {
	case len(rest) >= 2 && isAlign(rest[1]):
		fill, align, rest = rest[:1], rest[1:2], rest[2:]
	case len(rest) >= 1 && isAlign(rest[0]):
		align, rest = rest[:1], rest[1:]
	}
	if strings.HasPrefix(rest, "0") && align == "" {
		fill, align, rest = "0", ">", rest[1:]
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	width, rest = rest[:i], rest[i:]
	if strings.HasPrefix(rest, ".") {
		j := 1
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		prec, rest = rest[1:j], rest[j:]
	}
	switch rest {
	case "f", "F":
		verb = "d"
		if prec == "" {
			prec = "6"
		}
	case "d", "n":
		verb = "d"
	case "s":
		verb = "s"
	case "x", "X", "e", "b", "o":
		verb = rest
	}

	opts := ""
	if align != "" || width != "" {
		if align == "" {
			align = ">"
			if t == infer.String {
				align = "<"
			}
		}
		if fill == "" {
			fill = " "
		}
		opts = fill + align + width
	}
	if prec != "" {
		opts += "." + prec
	}
	if opts == "" {
		return "{" + verb + "}"
	}
	return "{" + verb + ":" + opts + "}"
}
