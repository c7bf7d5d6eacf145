package codegen

import (
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
)

var (
	intAnn   = Annotation{Base: "int"}
	floatAnn = Annotation{Base: "float"}
	strAnn   = Annotation{Base: "str"}
	boolAnn  = Annotation{Base: "bool"}
)

func listOf(elem Annotation) Annotation {
	return Annotation{Base: "list", Params: []Annotation{elem}}
}

func dictOf(key, value Annotation) Annotation {
	return Annotation{Base: "dict", Params: []Annotation{key, value}}
}

// annotate is the static type of e as far as the current scope can tell. It
// is richer than infer.Type: it keeps element types and user classes.
func (m *moduleGen) annotate(e pyast.Expr) Annotation {
	switch n := e.(type) {
	case *pyast.Constant:
		switch n.Type {
		case pyast.ConstInt:
			return intAnn
		case pyast.ConstFloat:
			return floatAnn
		case pyast.ConstStr:
			return strAnn
		case pyast.ConstBool:
			return boolAnn
		}
		return Annotation{Base: "None"}
	case *pyast.Name:
		if sym, ok := m.lookup(n.ID); ok {
			return sym.ann
		}
	case *pyast.List:
		if len(n.Elts) == 0 {
			return listOf(m.elemHint)
		}
		return listOf(m.join(n.Elts...))
	case *pyast.Dict:
		if len(n.Keys) == 0 {
			return dictOf(strAnn, m.elemHint)
		}
		return dictOf(m.join(n.Keys...), m.join(n.Values...))
	case *pyast.ListComp:
		var elt Annotation
		_ = m.withComprehension(n.Generators, func() error {
			elt = m.annotate(n.Elt)
			return nil
		})
		return listOf(elt)
	case *pyast.DictComp:
		var k, v Annotation
		_ = m.withComprehension(n.Generators, func() error {
			k, v = m.annotate(n.Key), m.annotate(n.Value)
			return nil
		})
		return dictOf(k, v)
	case *pyast.FString:
		return strAnn
	case *pyast.Compare:
		return boolAnn
	case *pyast.BoolOp:
		return m.join(n.Values...)
	case *pyast.UnaryOp:
		if n.Op == "not" {
			return boolAnn
		}
		return m.annotate(n.Operand)
	case *pyast.IfExp:
		return m.join(n.Body, n.Orelse)
	case *pyast.BinOp:
		if n.Op == "+" {
			if l := m.annotate(n.Left); l.Kind() == infer.Sequence {
				return l
			}
		}
		return annotationFor(m.inferrer.Infer(n), infer.Unknown)
	case *pyast.Subscript:
		base := m.annotate(n.Value)
		if _, ok := n.Index.(*pyast.Slice); ok {
			return base
		}
		switch base.Kind() {
		case infer.String:
			return strAnn
		case infer.Sequence:
			return base.Elem()
		case infer.Mapping:
			return base.Value()
		}
	case *pyast.Attribute:
		if cls := m.classOf(n.Value); cls != nil {
			if f, ok := cls.field(n.Attr); ok {
				return f.ann
			}
			return Annotation{}
		}
		if symbol, ok := m.moduleSymbol(n); ok {
			if e, ok := m.reg.Lookup(symbol); ok {
				return annotationFor(e.Returns, infer.Unknown)
			}
		}
	case *pyast.Call:
		return m.callAnnotation(n)
	}
	return Annotation{}
}

// join is the common annotation of several expressions: the shared one when
// they agree, the joined classification otherwise.
func (m *moduleGen) join(es ...pyast.Expr) Annotation {
	if len(es) == 0 {
		return Annotation{}
	}
	first := m.annotate(es[0])
	kinds := []infer.Type{first.Kind()}
	same := true
	for _, e := range es[1:] {
		a := m.annotate(e)
		if a.String() != first.String() {
			same = false
		}
		kinds = append(kinds, a.Kind())
	}
	if same {
		return first
	}
	return annotationFor(infer.JoinAll(kinds...), infer.Unknown)
}

func (m *moduleGen) callAnnotation(c *pyast.Call) Annotation {
	t, err := m.resolveCall(c)
	if err != nil {
		return Annotation{}
	}
	switch t.kind {
	case targetFunc, targetMethod, targetSuper:
		return t.fn.returns
	case targetCtor:
		return Annotation{Base: t.class.name}
	}

	arg := func(i int) Annotation {
		args, err := entryArgs(t.entry, t.recv, c)
		if err != nil || i >= len(args) {
			return Annotation{}
		}
		return m.annotate(args[i])
	}
	switch t.entry.Symbol {
	case "builtins.sorted", "builtins.reversed", "list.copy":
		a := arg(0)
		if a.Kind() == infer.String {
			return listOf(strAnn)
		}
		return listOf(a.Elem())
	case "str.split":
		return listOf(strAnn)
	case "dict.keys":
		return listOf(arg(0).Elem())
	case "dict.get", "dict.pop":
		return arg(0).Value()
	case "list.pop":
		return arg(0).Elem()
	case "builtins.min", "builtins.max", "builtins.sum", "builtins.abs":
		args, _ := entryArgs(t.entry, t.recv, c)
		if len(args) == 1 {
			if a := arg(0); a.Kind() == infer.Sequence {
				return a.Elem()
			}
		}
		return m.join(args...)
	case "builtins.bool", "builtins.isinstance", "builtins.hasattr", "os.path.exists",
		"str.startswith", "str.endswith", "str.isdigit", "str.isalpha", "str.isalnum",
		"str.isspace", "str.isupper", "str.islower":
		return boolAnn
	case "os.path.dirname":
		return Annotation{Base: "Optional", Params: []Annotation{strAnn}}
	}
	return annotationFor(t.entry.Returns, infer.Unknown)
}

// withComprehension binds the targets of gens in a scratch scope while fn
// runs.
func (m *moduleGen) withComprehension(gens []*pyast.Comprehension, fn func() error) error {
	return m.withScope(func() error {
		for _, g := range gens {
			m.bindTarget(g.Target, g.Iter)
		}
		return fn()
	})
}

// bindTarget declares the loop variables of `for target in iter`.
func (m *moduleGen) bindTarget(target, iter pyast.Expr) {
	switch t := target.(type) {
	case *pyast.Name:
		m.bind(t.ID, m.iterElem(iter), false)
	case *pyast.Tuple:
		elems := m.iterTuple(iter, len(t.Elts))
		for i, elt := range t.Elts {
			if n, ok := elt.(*pyast.Name); ok {
				m.bind(n.ID, elems[i], false)
			}
		}
	}
}

// iterElem is the annotation of the items of iter.
func (m *moduleGen) iterElem(iter pyast.Expr) Annotation {
	if c, ok := iter.(*pyast.Call); ok {
		if n, ok := c.Func.(*pyast.Name); ok && !m.bound(n.ID) {
			switch n.ID {
			case "range":
				return intAnn
			}
		}
	}
	a := m.annotate(iter)
	switch a.Kind() {
	case infer.String:
		return strAnn
	case infer.Sequence, infer.Mapping:
		return a.Elem()
	}
	return annotationFor(m.inferrer.ElementType(iter), infer.Unknown)
}

// iterTuple is the per-position annotation of unpacked loop items:
// enumerate(xs) yields (int, elem), d.items() yields (key, value).
func (m *moduleGen) iterTuple(iter pyast.Expr, n int) []Annotation {
	out := make([]Annotation, n)
	c, ok := iter.(*pyast.Call)
	if !ok {
		return out
	}
	switch fn := c.Func.(type) {
	case *pyast.Name:
		if fn.ID == "enumerate" && len(c.Args) == 1 && n == 2 {
			out[0], out[1] = intAnn, m.iterElem(c.Args[0])
		}
		if fn.ID == "zip" && len(c.Args) == n {
			for i, a := range c.Args {
				out[i] = m.iterElem(a)
			}
		}
	case *pyast.Attribute:
		if fn.Attr == "items" && n == 2 {
			d := m.annotate(fn.Value)
			out[0], out[1] = d.Elem(), d.Value()
		}
	}
	return out
}
