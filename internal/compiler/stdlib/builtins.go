package stdlib

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
)

func builtinEntries() []registry.Entry {
	return []registry.Entry{
		{Symbol: "builtins.print", Handler: emitPrint, MaxArgs: registry.Variadic, Void: true, Requires: stdReqs},
		{Symbol: "builtins.len", Handler: emitLen, MinArgs: 1, MaxArgs: 1, Returns: infer.Int, Params: []string{"obj"}},
		{Symbol: "builtins.abs", Handler: emitAbs, MinArgs: 1, MaxArgs: 1, Params: []string{"x"}},
		{Symbol: "builtins.min", Handler: extremum("min"), MinArgs: 1, MaxArgs: registry.Variadic},
		{Symbol: "builtins.max", Handler: extremum("max"), MinArgs: 1, MaxArgs: registry.Variadic},
		{Symbol: "builtins.int", Handler: emitInt, MinArgs: 1, MaxArgs: 1, Returns: infer.Int, Fallible: true},
		{Symbol: "builtins.float", Handler: emitFloatCall, MinArgs: 1, MaxArgs: 1, Returns: infer.Float, Fallible: true},
		{Symbol: "builtins.str", Handler: emitStr, MinArgs: 1, MaxArgs: 1, Returns: infer.String, Fallible: true, Requires: allocReqs},
		{Symbol: "builtins.bool", Handler: emitBool, MinArgs: 1, MaxArgs: 1},
		{Symbol: "builtins.sorted", Handler: emitSorted, MinArgs: 1, MaxArgs: 1, Returns: infer.Sequence, Fallible: true, Requires: allocReqs},
		{Symbol: "builtins.reversed", Handler: emitReversed, MinArgs: 1, MaxArgs: 1, Returns: infer.Sequence, Fallible: true, Requires: allocReqs},
		{Symbol: "builtins.sum", Handler: emitSum, MinArgs: 1, MaxArgs: 1},
		{Symbol: "builtins.isinstance", Handler: emitIsinstance, MinArgs: 2, MaxArgs: 2},
		{Symbol: "builtins.hasattr", Handler: emitHasattr, MinArgs: 2, MaxArgs: 2},
		{Symbol: "builtins.getattr", Handler: emitGetattr, MinArgs: 2, MaxArgs: 3},
	}
}

// print(a, b) -> pyPrint("{d} {s}\n", .{ a, b })
func emitPrint(st *emit.State, args []pyast.Expr) error {
	verbs := make([]string, len(args))
	for i, a := range args {
		if st.Repr(a) != emit.ReprValue {
			verbs[i] = "{any}"
			continue
		}
		verbs[i] = emit.FormatVerb(st.Infer(a))
	}
	st.Writef(`pyPrint("%s\n", .{`, strings.Join(verbs, " "))
	for i, a := range args {
		if i > 0 {
			st.Write(",")
		}
		st.Write(" ")
		if err := st.EmitSlice(a); err != nil {
			return err
		}
	}
	if len(args) > 0 {
		st.Write(" ")
	}
	st.Write("})")
	return nil
}

func emitLen(st *emit.State, args []pyast.Expr) error {
	x := args[0]
	return emitInt64(st, func() error {
		if err := st.EmitExpr(x); err != nil {
			return err
		}
		switch {
		case st.Allocated(x):
			st.Write(".items.len")
		case st.Infer(x) == infer.Mapping:
			st.Write(".count()")
		default:
			st.Write(".len")
		}
		return nil
	})
}

func emitAbs(st *emit.State, args []pyast.Expr) error {
	if st.Infer(args[0]) == infer.Int {
		return template(st, "@as(i64, @intCast(@abs(%s)))", expr(st, args[0]))
	}
	return template(st, "@abs(%s)", expr(st, args[0]))
}

// extremum lowers min/max over either several arguments or one iterable.
func extremum(name string) registry.Handler {
	return func(st *emit.State, args []pyast.Expr) error {
		if len(args) == 1 {
			elem := emit.ElemType(st.ElementType(args[0]))
			return template(st, "std.mem."+name+"("+elem+", %s)", slice(st, args[0]))
		}
		st.Write("@" + name + "(")
		if err := st.EmitArgs(args); err != nil {
			return err
		}
		st.Write(")")
		return nil
	}
}

func emitInt(st *emit.State, args []pyast.Expr) error {
	x := args[0]
	switch st.Infer(x) {
	case infer.Int:
		return st.EmitExpr(x)
	case infer.String:
		return template(st, st.Try()+"std.fmt.parseInt(i64, %s, 10)"+st.EndTry(), expr(st, x))
	case infer.Float:
		return template(st, "@as(i64, @intFromFloat(%s))", expr(st, x))
	}
	return template(st, "@as(i64, %s)", expr(st, x))
}

func emitFloatCall(st *emit.State, args []pyast.Expr) error {
	if st.Infer(args[0]) == infer.String {
		return template(st, st.Try()+"std.fmt.parseFloat(f64, %s)"+st.EndTry(), expr(st, args[0]))
	}
	return emitFloat(st, args[0])
}

func emitStr(st *emit.State, args []pyast.Expr) error {
	x := args[0]
	t := st.Infer(x)
	if t == infer.String {
		return st.EmitExpr(x)
	}
	return template(st, st.Try()+`std.fmt.allocPrint(`+st.Allocator()+`, "`+emit.FormatVerb(t)+`", .{%s})`+st.EndTry(), expr(st, x))
}

func emitBool(st *emit.State, args []pyast.Expr) error {
	x := args[0]
	switch st.Infer(x) {
	case infer.Int, infer.Float:
		return template(st, "(%s != 0)", expr(st, x))
	case infer.String, infer.Sequence, infer.Mapping:
		st.Write("(")
		if err := emitLen(st, args); err != nil {
			return err
		}
		st.Write(" != 0)")
		return nil
	}
	return st.EmitExpr(x)
}

// copyList lowers a fresh ArrayList holding the elements of src, then runs
// post against the copy's items.
func copyList(st *emit.State, prefix string, src pyast.Expr, post func(items string)) error {
	elem := emit.ElemType(st.ElementType(src))
	label := st.NewLabel(prefix)
	out := label + "_out"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Writef("var %s = std.ArrayList(%s).init(%s);", out, elem, st.Allocator())
		st.Newline()
		if err := template(st, st.Try()+out+".appendSlice(%s)"+st.EndTry()+";", slice(st, src)); err != nil {
			return err
		}
		st.Newline()
		post(out + ".items")
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

func emitSorted(st *emit.State, args []pyast.Expr) error {
	elem := emit.ElemType(st.ElementType(args[0]))
	return copyList(st, "sorted", args[0], func(items string) {
		if elem == "[]const u8" {
			st.Linef("std.mem.sort(%s, %s, {}, struct {", elem, items)
			st.Line("    fn lt(_: void, a: []const u8, b: []const u8) bool {")
			st.Line("        return std.mem.lessThan(u8, a, b);")
			st.Line("    }")
			st.Line("}.lt);")
			return
		}
		st.Linef("std.mem.sort(%s, %s, {}, std.sort.asc(%s));", elem, items, elem)
	})
}

func emitReversed(st *emit.State, args []pyast.Expr) error {
	elem := emit.ElemType(st.ElementType(args[0]))
	return copyList(st, "reversed", args[0], func(items string) {
		st.Linef("std.mem.reverse(%s, %s);", elem, items)
	})
}

func emitSum(st *emit.State, args []pyast.Expr) error {
	elem := emit.ElemType(st.ElementType(args[0]))
	if elem != "f64" {
		elem = "i64"
	}
	label := st.NewLabel("sum")
	acc, v := label+"_acc", label+"_v"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s: %s = 0;", acc, elem)
		if err := template(st, "for (%s) |"+v+"| "+acc+" += "+v+";", slice(st, args[0])); err != nil {
			return err
		}
		st.Newline()
		st.Linef("break :%s %s;", label, acc)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

// isinstance is decided statically from the inferred classification. An
// unclassified value or a class name is assumed to match.
func emitIsinstance(st *emit.State, args []pyast.Expr) error {
	value := "true"
	if name, ok := pyast.DottedName(args[1]); ok {
		want, got := infer.FromAnnotation(name), st.Infer(args[0])
		if want != infer.Unknown && got != infer.Unknown && want != got {
			value = "false"
		}
	}
	return st.Discard(args[:1], value)
}

func emitHasattr(st *emit.State, args []pyast.Expr) error {
	field, err := stringArg("hasattr", args[1])
	if err != nil {
		return err
	}
	obj, err := st.CaptureExpr(args[0])
	if err != nil {
		return err
	}
	return st.Discard(args[:1], fmt.Sprintf("@hasField(std.meta.Child(@TypeOf(%s)), %q)", obj, field))
}

func emitGetattr(st *emit.State, args []pyast.Expr) error {
	field, err := stringArg("getattr", args[1])
	if err != nil {
		return err
	}
	obj, err := st.CaptureExpr(args[0])
	if err != nil {
		return err
	}
	return st.Discard(args[2:], obj+"."+field)
}
