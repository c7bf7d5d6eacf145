package codegen

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

type targetKind int

const (
	targetFunc   targetKind = iota + 1 // module function or static method
	targetCtor                         // class instantiation
	targetMethod                       // method of a user class instance
	targetSuper                        // super().method(...)
	targetEntry                        // registry handler
)

// callTarget is what a call expression resolves to.
type callTarget struct {
	kind  targetKind
	fn    *funcSig
	class *classInfo
	entry *registry.Entry
	recv  pyast.Expr
}

// void reports whether the call produces no value.
func (t callTarget) void() bool {
	switch t.kind {
	case targetFunc, targetMethod, targetSuper:
		return t.fn.void
	case targetEntry:
		return t.entry.Void
	}
	return false
}

// resolveCall finds the callee of c. The order is: user functions, classes,
// names imported from modules, builtins, module functions, super(), methods
// of user instances, then methods of the inferred receiver type.
func (m *moduleGen) resolveCall(c *pyast.Call) (callTarget, error) {
	line := c.Pos()
	switch fn := c.Func.(type) {
	case *pyast.Name:
		name := fn.ID
		if _, shadowed := m.lookup(name); shadowed {
			return callTarget{}, pyerr.NewSemanticErrorAt(line, fmt.Sprintf("%s is a variable, calling it is not supported", name))
		}
		if sig, ok := m.funcs[name]; ok {
			return callTarget{kind: targetFunc, fn: sig}, nil
		}
		if cls, ok := m.classes[name]; ok {
			return callTarget{kind: targetCtor, class: cls}, nil
		}
		if q, ok := m.imports[name]; ok {
			if e, ok := m.reg.Lookup(q); ok {
				return callTarget{kind: targetEntry, entry: e}, nil
			}
			return callTarget{}, pyerr.NewUnresolvedSymbol(q, line)
		}
		if e, ok := m.reg.Lookup("builtins." + name); ok {
			return callTarget{kind: targetEntry, entry: e}, nil
		}
		return callTarget{}, pyerr.NewUnresolvedSymbol(name, line)

	case *pyast.Attribute:
		if isSuperCall(fn.Value) {
			return m.resolveSuper(fn.Attr, line)
		}
		if base, ok := fn.Value.(*pyast.Name); ok {
			if cls, ok := m.classes[base.ID]; ok {
				if _, shadowed := m.lookup(base.ID); !shadowed {
					sig, ok := cls.method(fn.Attr)
					if !ok || !sig.static {
						return callTarget{}, pyerr.NewUnresolvedSymbol(cls.name+"."+fn.Attr, line)
					}
					return callTarget{kind: targetFunc, fn: sig, class: cls}, nil
				}
			}
		}
		if symbol, ok := m.moduleSymbol(fn); ok {
			if e, ok := m.reg.Lookup(symbol); ok {
				return callTarget{kind: targetEntry, entry: e}, nil
			}
			return callTarget{}, pyerr.NewUnresolvedSymbol(symbol, line)
		}
		if cls := m.classOf(fn.Value); cls != nil {
			sig, ok := cls.method(fn.Attr)
			if !ok {
				return callTarget{}, pyerr.NewUnresolvedSymbol(cls.name+"."+fn.Attr, line)
			}
			return callTarget{kind: targetMethod, fn: sig, class: cls, recv: fn.Value}, nil
		}
		if root, ok := rootName(fn.Value); ok && !m.bound(root) {
			dotted, _ := pyast.DottedName(fn)
			return callTarget{}, pyerr.NewUnresolvedSymbol(dotted, line)
		}
		t := m.Infer(fn.Value)
		if e, ok := m.reg.LookupMethod(t, fn.Attr); ok {
			return callTarget{kind: targetEntry, entry: e, recv: fn.Value}, nil
		}
		symbol := fn.Attr
		if recv := registry.ReceiverName(t); recv != "" {
			symbol = recv + "." + fn.Attr
		} else if dotted, ok := pyast.DottedName(fn); ok {
			symbol = dotted
		}
		return callTarget{}, pyerr.NewUnresolvedSymbol(symbol, line)
	}
	return callTarget{}, pyerr.NewSemanticErrorAt(line, fmt.Sprintf("calling a %s is not supported", c.Func.Kind()))
}

// moduleSymbol maps a dotted attribute chain rooted at an imported module (or
// an unbound name the registry knows as a module) to its registry symbol.
func (m *moduleGen) moduleSymbol(e pyast.Expr) (string, bool) {
	dotted, ok := pyast.DottedName(e)
	if !ok {
		return "", false
	}
	root, rest, ok := strings.Cut(dotted, ".")
	if !ok {
		return "", false
	}
	if _, local := m.lookup(root); local {
		return "", false
	}
	if q, ok := m.imports[root]; ok {
		return q + "." + rest, true
	}
	if _, isClass := m.classes[root]; !isClass && m.reg.HasModule(root) {
		return dotted, true
	}
	return "", false
}

// bound reports whether name refers to anything in the module.
func (m *moduleGen) bound(name string) bool {
	if _, ok := m.lookup(name); ok {
		return true
	}
	if _, ok := m.imports[name]; ok {
		return true
	}
	if _, ok := m.classes[name]; ok {
		return true
	}
	_, ok := m.funcs[name]
	return ok
}

func rootName(e pyast.Expr) (string, bool) {
	for {
		switch n := e.(type) {
		case *pyast.Name:
			return n.ID, true
		case *pyast.Attribute:
			e = n.Value
		default:
			return "", false
		}
	}
}

func isSuperCall(e pyast.Expr) bool {
	c, ok := e.(*pyast.Call)
	if !ok || len(c.Args) != 0 {
		return false
	}
	n, ok := c.Func.(*pyast.Name)
	return ok && n.ID == "super"
}

// resolveSuper binds super().name to the parent of the class whose method is
// being lowered.
func (m *moduleGen) resolveSuper(name string, line int) (callTarget, error) {
	cls := m.currentClass()
	if cls == nil {
		return callTarget{}, pyerr.NewSemanticErrorAt(line, "super() outside of a method")
	}
	if cls.parent == nil {
		return callTarget{}, pyerr.NewSemanticErrorAt(line, fmt.Sprintf("super() in class %s, which has no parent", cls.name))
	}
	sig, ok := cls.parent.method(name)
	if !ok {
		return callTarget{}, pyerr.NewUnresolvedSymbol(cls.parent.name+"."+name, line)
	}
	return callTarget{kind: targetSuper, fn: sig, class: cls.parent}, nil
}

// classOf returns the user class of an instance-valued expression.
func (m *moduleGen) classOf(e pyast.Expr) *classInfo {
	a := m.annotate(e)
	if a.Base == "Optional" {
		a = a.Elem()
	}
	return m.classes[a.Base]
}

func (m *moduleGen) currentClass() *classInfo {
	if m.frame == nil || m.frame.sig == nil {
		return nil
	}
	return m.frame.sig.owner
}

// ---- argument placement ----

// userArgs matches call arguments to the parameters of a user function,
// filling defaults.
func userArgs(sig *funcSig, c *pyast.Call) ([]pyast.Expr, error) {
	params := sig.params
	got := len(c.Args) + len(c.Keywords)
	if len(c.Args) > len(params) {
		return nil, pyerr.NewArityError(sig.symbol(), got, sig.minArgs(), len(params))
	}
	out := make([]pyast.Expr, len(params))
	copy(out, c.Args)
	for _, kw := range c.Keywords {
		idx := -1
		for i, p := range params {
			if p.Name == kw.Name {
				idx = i
			}
		}
		if idx < 0 {
			return nil, pyerr.NewSemanticErrorAt(c.Pos(), fmt.Sprintf("%s got an unexpected keyword argument %s", sig.symbol(), kw.Name))
		}
		if out[idx] != nil {
			return nil, pyerr.NewSemanticErrorAt(c.Pos(), fmt.Sprintf("%s got multiple values for argument %s", sig.symbol(), kw.Name))
		}
		out[idx] = kw.Value
	}
	for i, p := range params {
		if out[i] != nil {
			continue
		}
		if p.Default == nil {
			return nil, pyerr.NewArityError(sig.symbol(), got, sig.minArgs(), len(params))
		}
		out[i] = p.Default
	}
	return out, nil
}

// entryArgs places keyword arguments of a registry call by the entry's
// parameter names. recv, when set, is the receiver and comes first.
func entryArgs(e *registry.Entry, recv pyast.Expr, c *pyast.Call) ([]pyast.Expr, error) {
	var args []pyast.Expr
	if recv != nil {
		args = append(args, recv)
	}
	args = append(args, c.Args...)
	if len(c.Keywords) == 0 {
		return args, nil
	}
	for _, kw := range c.Keywords {
		idx, ok := e.ParamIndex(kw.Name)
		if !ok {
			return nil, pyerr.NewSemanticErrorAt(c.Pos(), fmt.Sprintf("%s got an unexpected keyword argument %s", e.Symbol, kw.Name))
		}
		for len(args) <= idx {
			args = append(args, nil)
		}
		if args[idx] != nil {
			return nil, pyerr.NewSemanticErrorAt(c.Pos(), fmt.Sprintf("%s got multiple values for argument %s", e.Symbol, kw.Name))
		}
		args[idx] = kw.Value
	}
	for i, a := range args {
		if a == nil {
			return nil, pyerr.NewSemanticErrorAt(c.Pos(), fmt.Sprintf("%s is missing argument %s", e.Symbol, e.Params[i]))
		}
	}
	return args, nil
}

// ---- emission ----

func (m *moduleGen) emitCall(st *emit.State, c *pyast.Call) error {
	t, err := m.resolveCall(c)
	if err != nil {
		return err
	}
	switch t.kind {
	case targetEntry:
		args, err := entryArgs(t.entry, t.recv, c)
		if err != nil {
			return err
		}
		return t.entry.Invoke(st, args)

	case targetFunc:
		name := t.fn.zig
		if t.fn.owner != nil {
			name = t.fn.owner.name + "." + t.fn.zig
		}
		return m.emitUserCall(st, t.fn, name, "", c)

	case targetMethod:
		recv, err := st.CaptureExpr(t.recv)
		if err != nil {
			return err
		}
		return m.emitUserCall(st, t.fn, recv+"."+t.fn.zig, "", c)

	case targetCtor:
		return m.emitConstructor(st, t.class, c)

	case targetSuper:
		return m.emitSuper(st, t, c)
	}
	return pyerr.NewSemanticErrorAt(c.Pos(), "unresolvable call")
}

// emitUserCall writes `[try ]callee([allocator, ][self, ]args...)`.
func (m *moduleGen) emitUserCall(st *emit.State, sig *funcSig, callee, self string, c *pyast.Call) error {
	args, err := userArgs(sig, c)
	if err != nil {
		return err
	}
	if sig.fallible {
		st.Write(st.Try())
	}
	st.Write(callee + "(")
	sep := ""
	if self != "" {
		st.Write(self)
		sep = ", "
	}
	if sig.alloc {
		st.Write(sep + st.Allocator())
		sep = ", "
	}
	for i, a := range args {
		st.Write(sep)
		sep = ", "
		if err := m.emitArg(st, a, sig.anns[i]); err != nil {
			return err
		}
	}
	st.Write(")")
	if sig.fallible {
		st.Write(st.EndTry())
	}
	return nil
}

// emitArg lowers an argument for a parameter of annotation want: lists are
// passed as slices, ints widen to floats.
func (m *moduleGen) emitArg(st *emit.State, a pyast.Expr, want Annotation) error {
	switch want.Kind() {
	case infer.Sequence:
		return st.EmitSlice(a)
	case infer.Float:
		if m.Infer(a) == infer.Int {
			return m.emitFloat(st, a)
		}
	}
	return m.expr(st, a)
}

// A class is instantiated through its generated init, which allocates the
// instance and runs __init__.
func (m *moduleGen) emitConstructor(st *emit.State, cls *classInfo, c *pyast.Call) error {
	st.Require(allocReqs)
	init, ok := cls.method("__init__")
	if !ok {
		if len(c.Args)+len(c.Keywords) > 0 {
			return pyerr.NewArityError(cls.name, len(c.Args)+len(c.Keywords), 0, 0)
		}
		st.Write(st.Try() + cls.name + ".init(" + st.Allocator() + ")" + st.EndTry())
		return nil
	}
	args, err := userArgs(init, c)
	if err != nil {
		return err
	}
	st.Write(st.Try() + cls.name + ".init(" + st.Allocator())
	for i, a := range args {
		st.Write(", ")
		if err := m.emitArg(st, a, init.anns[i]); err != nil {
			return err
		}
	}
	st.Write(")" + st.EndTry())
	return nil
}

// emitSuper lowers super().name(args) to a labeled block that takes the
// embedded parent and calls the parent's method directly:
//
//	super_1: {
//	    const super_1_self = &self.base;
//	    break :super_1 Parent.name(super_1_self, args);
//	}
func (m *moduleGen) emitSuper(st *emit.State, t callTarget, c *pyast.Call) error {
	ctx, ok := st.CurrentClass()
	if !ok || ctx.Parent == "" {
		return pyerr.NewSemanticErrorAt(c.Pos(), "super() outside of a subclass method")
	}
	label := st.NewLabel("super")
	self := label + "_self"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("const %s = &self.%s;", self, baseField)
		st.Write("break :" + label + " ")
		if err := m.emitUserCall(st, t.fn, ctx.Parent+"."+t.fn.zig, self, c); err != nil {
			return err
		}
		st.Line(";")
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}
