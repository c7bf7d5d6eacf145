package codegen

import (
	"fmt"

	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// loop lowers `for target in iter` around body. reads holds the names body
// loads, so unused loop variables become `_` captures.
func (m *moduleGen) loop(st *emit.State, target, iter pyast.Expr, reads map[string]bool, body func() error) error {
	return m.withScope(func() error {
		elts := targetElts(target)
		if c, ok := iter.(*pyast.Call); ok {
			switch fn := c.Func.(type) {
			case *pyast.Name:
				if m.bound(fn.ID) {
					break
				}
				switch {
				case fn.ID == "range":
					return m.rangeLoop(st, target, c, body)
				case fn.ID == "enumerate" && len(c.Args) == 1 && len(elts) == 2:
					return m.enumerateLoop(st, elts, c.Args[0], reads, body)
				case fn.ID == "zip" && len(c.Args) > 1 && len(elts) == len(c.Args):
					return m.zipLoop(st, elts, c.Args, reads, body)
				}
			case *pyast.Attribute:
				if fn.Attr == "items" && len(c.Args) == 0 && len(elts) == 2 && m.Infer(fn.Value) == infer.Mapping {
					return m.itemsLoop(st, elts, fn.Value, reads, body)
				}
			}
		}
		switch m.Infer(iter) {
		case infer.Mapping:
			return m.keysLoop(st, target, iter, reads, body)
		case infer.String:
			return m.charsLoop(st, target, iter, reads, body)
		}
		return m.itemsOfLoop(st, target, iter, reads, body)
	})
}

// loopVar binds a loop variable and returns its Zig name, or "" when the
// body never reads it.
func (m *moduleGen) loopVar(st *emit.State, target pyast.Expr, ann Annotation, reads map[string]bool) (string, error) {
	n, ok := target.(*pyast.Name)
	if !ok {
		return "", pyerr.NewSemanticErrorAt(target.Pos(), fmt.Sprintf("cannot bind a loop variable to %s", target.Kind()))
	}
	if n.ID == "_" || !reads[n.ID] {
		return "", nil
	}
	zig := m.localName(st, n.ID)
	sym := m.bind(n.ID, ann, false)
	sym.zig = zig
	return zig, nil
}

func capture(zig string) string {
	if zig == "" {
		return "_"
	}
	return zig
}

// element writes base[idx] for a generated usize index.
func (m *moduleGen) element(st *emit.State, base pyast.Expr, idx string) error {
	if err := m.expr(st, base); err != nil {
		return err
	}
	switch {
	case m.Infer(base) == infer.String:
		st.Writef("[%s..][0..1]", idx)
	case m.Repr(base) == emit.ReprList:
		st.Writef(".items[%s]", idx)
	default:
		st.Writef("[%s]", idx)
	}
	return nil
}

// loopBody writes `header {`, the body one level deeper, and the closing
// brace.
func loopBody(st *emit.State, header string, body func() error) error {
	st.Line(header + " {")
	if err := st.Block(body); err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// rangeLoop lowers range(start, stop, step) to a counted while loop:
//
//	{
//	    var i: i64 = 0;
//	    while (i < n) : (i += 1) {
//	    }
//	}
func (m *moduleGen) rangeLoop(st *emit.State, target pyast.Expr, c *pyast.Call, body func() error) error {
	if len(c.Args) == 0 || len(c.Args) > 3 || len(c.Keywords) > 0 {
		return pyerr.NewArityError("range", len(c.Args)+len(c.Keywords), 1, 3)
	}
	n, ok := target.(*pyast.Name)
	if !ok {
		return pyerr.NewSemanticErrorAt(target.Pos(), "range() loop needs a single loop variable")
	}
	var start, stop, step pyast.Expr
	switch len(c.Args) {
	case 1:
		stop = c.Args[0]
	case 2:
		start, stop = c.Args[0], c.Args[1]
	default:
		start, stop, step = c.Args[0], c.Args[1], c.Args[2]
	}

	var zig string
	if n.ID == "_" {
		zig = st.NewLabel("range")
	} else {
		zig = m.localName(st, n.ID)
	}
	st.Line("{")
	err := st.Block(func() error {
		stopText, err := st.CaptureExpr(stop)
		if err != nil {
			return err
		}
		if _, simple := stop.(*pyast.Constant); !simple {
			if _, name := stop.(*pyast.Name); !name {
				st.Linef("const %s_stop: i64 = %s;", zig, stopText)
				stopText = zig + "_stop"
			}
		}
		startText := "0"
		if start != nil {
			if startText, err = st.CaptureExpr(start); err != nil {
				return err
			}
		}
		stepText := "1"
		if step != nil {
			if stepText, err = st.CaptureExpr(step); err != nil {
				return err
			}
		}
		st.Linef("var %s: i64 = %s;", zig, startText)

		cond := fmt.Sprintf("%s < %s", zig, stopText)
		if step != nil {
			v, constant := intConst(step)
			switch {
			case constant && v == 0:
				return pyerr.NewSemanticErrorAt(c.Pos(), "range() step must not be zero")
			case constant && v < 0:
				cond = fmt.Sprintf("%s > %s", zig, stopText)
			case !constant:
				cond = fmt.Sprintf("(%s > 0 and %s < %s) or (%s < 0 and %s > %s)", stepText, zig, stopText, stepText, zig, stopText)
			}
		}
		if n.ID != "_" {
			sym := m.bind(n.ID, intAnn, true)
			sym.zig = zig
		}
		return loopBody(st, fmt.Sprintf("while (%s) : (%s += %s)", cond, zig, stepText), body)
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// enumerateLoop lowers `for i, x in enumerate(xs)` to a for with an index
// capture.
func (m *moduleGen) enumerateLoop(st *emit.State, elts []pyast.Expr, seq pyast.Expr, reads map[string]bool, body func() error) error {
	idx, err := m.loopVar(st, elts[0], intAnn, reads)
	if err != nil {
		return err
	}
	val, err := m.loopVar(st, elts[1], m.iterElem(seq), reads)
	if err != nil {
		return err
	}
	label := st.NewLabel("enum")
	idxCapture := "_"
	if idx != "" || m.Infer(seq) == infer.String {
		idxCapture = label + "_idx"
	}

	if m.Infer(seq) == infer.String {
		text, err := st.CaptureExpr(seq)
		if err != nil {
			return err
		}
		return loopBody(st, fmt.Sprintf("for (0..%s.len) |%s|", text, idxCapture), func() error {
			if val != "" {
				st.Linef("const %s = %s[%s..][0..1];", val, text, idxCapture)
			}
			if idx != "" {
				st.Linef("const %s: i64 = @intCast(%s);", idx, idxCapture)
			}
			return body()
		})
	}

	items, err := st.Capture(func() error { return st.EmitSlice(seq) })
	if err != nil {
		return err
	}
	return loopBody(st, fmt.Sprintf("for (%s, 0..) |%s, %s|", items, capture(val), idxCapture), func() error {
		if idx != "" {
			st.Linef("const %s: i64 = @intCast(%s);", idx, idxCapture)
		}
		return body()
	})
}

// zipLoop walks several sequences up to the shortest one.
func (m *moduleGen) zipLoop(st *emit.State, elts, seqs []pyast.Expr, reads map[string]bool, body func() error) error {
	label := st.NewLabel("zip")
	i := label + "_i"
	names := make([]string, len(elts))
	for k, elt := range elts {
		name, err := m.loopVar(st, elt, m.iterElem(seqs[k]), reads)
		if err != nil {
			return err
		}
		names[k] = name
	}

	st.Line("{")
	err := st.Block(func() error {
		st.Writef("const %s_len = @min(", label)
		for k, s := range seqs {
			if k > 0 {
				st.Write(", ")
			}
			if err := m.lengthOf(st, s); err != nil {
				return err
			}
		}
		st.Line(");")
		st.Linef("var %s: usize = 0;", i)
		return loopBody(st, fmt.Sprintf("while (%s < %s_len) : (%s += 1)", i, label, i), func() error {
			for k, name := range names {
				if name == "" {
					continue
				}
				st.Writef("const %s = ", name)
				if err := m.element(st, seqs[k], i); err != nil {
					return err
				}
				st.Line(";")
			}
			return body()
		})
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// itemsLoop lowers `for k, v in d.items()` to a hash map iterator.
func (m *moduleGen) itemsLoop(st *emit.State, elts []pyast.Expr, d pyast.Expr, reads map[string]bool, body func() error) error {
	ann := m.annotate(d)
	key, err := m.loopVar(st, elts[0], ann.Elem(), reads)
	if err != nil {
		return err
	}
	val, err := m.loopVar(st, elts[1], ann.Value(), reads)
	if err != nil {
		return err
	}
	label := st.NewLabel("it")
	entry := label + "_entry"
	if key == "" && val == "" {
		entry = "_"
	}
	mapText, err := st.CaptureExpr(d)
	if err != nil {
		return err
	}
	st.Line("{")
	err = st.Block(func() error {
		st.Linef("var %s = %s.iterator();", label, mapText)
		return loopBody(st, fmt.Sprintf("while (%s.next()) |%s|", label, entry), func() error {
			if key != "" {
				st.Linef("const %s = %s.key_ptr.*;", key, entry)
			}
			if val != "" {
				st.Linef("const %s = %s.value_ptr.*;", val, entry)
			}
			return body()
		})
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// keysLoop iterates the keys of a dict.
func (m *moduleGen) keysLoop(st *emit.State, target, d pyast.Expr, reads map[string]bool, body func() error) error {
	key, err := m.loopVar(st, target, m.annotate(d).Elem(), reads)
	if err != nil {
		return err
	}
	label := st.NewLabel("keys")
	ptr := "_"
	if key != "" {
		ptr = label + "_ptr"
	}
	mapText, err := st.CaptureExpr(d)
	if err != nil {
		return err
	}
	st.Line("{")
	err = st.Block(func() error {
		st.Linef("var %s = %s.keyIterator();", label, mapText)
		return loopBody(st, fmt.Sprintf("while (%s.next()) |%s|", label, ptr), func() error {
			if key != "" {
				st.Linef("const %s = %s.*;", key, ptr)
			}
			return body()
		})
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// charsLoop yields one-character strings.
func (m *moduleGen) charsLoop(st *emit.State, target, s pyast.Expr, reads map[string]bool, body func() error) error {
	char, err := m.loopVar(st, target, strAnn, reads)
	if err != nil {
		return err
	}
	label := st.NewLabel("str")
	text, err := st.CaptureExpr(s)
	if err != nil {
		return err
	}
	st.Line("{")
	err = st.Block(func() error {
		st.Linef("const %s = %s;", label, text)
		idx := "_"
		if char != "" {
			idx = label + "_i"
		}
		return loopBody(st, fmt.Sprintf("for (0..%s.len) |%s|", label, idx), func() error {
			if char != "" {
				st.Linef("const %s = %s[%s..][0..1];", char, label, idx)
			}
			return body()
		})
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// itemsOfLoop iterates the elements of a list, array or slice. Tuple targets
// unpack each element.
func (m *moduleGen) itemsOfLoop(st *emit.State, target, seq pyast.Expr, reads map[string]bool, body func() error) error {
	items, err := st.Capture(func() error { return st.EmitSlice(seq) })
	if err != nil {
		return err
	}
	elts := targetElts(target)
	if elts == nil {
		item, err := m.loopVar(st, target, m.iterElem(seq), reads)
		if err != nil {
			return err
		}
		return loopBody(st, fmt.Sprintf("for (%s) |%s|", items, capture(item)), body)
	}

	names := make([]string, len(elts))
	for k, elt := range elts {
		name, err := m.loopVar(st, elt, Annotation{}, reads)
		if err != nil {
			return err
		}
		names[k] = name
	}
	label := st.NewLabel("item")
	used := false
	for _, n := range names {
		used = used || n != ""
	}
	if !used {
		label = "_"
	}
	return loopBody(st, fmt.Sprintf("for (%s) |%s|", items, label), func() error {
		for k, name := range names {
			if name != "" {
				st.Linef("const %s = %s[%d];", name, label, k)
			}
		}
		return body()
	})
}
