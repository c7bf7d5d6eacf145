package stdlib

import (
	"metal0/pyaot/internal/compiler/callpattern"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
)

func listEntries() []registry.Entry {
	return []registry.Entry{
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "list.append", Target: "append", MinArgs: 2,
			Receiver: true, Fallible: true, Void: true, Requires: allocReqs,
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "list.copy", Target: "clone", MinArgs: 1,
			Receiver: true, Fallible: true, Returns: infer.Sequence, Requires: allocReqs,
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "list.clear", Target: "clearRetainingCapacity", MinArgs: 1,
			Receiver: true, Void: true,
		}),
		{Symbol: "list.extend", Handler: emitExtend, MinArgs: 2, MaxArgs: 2, Void: true, Fallible: true, Requires: allocReqs},
		{Symbol: "list.insert", Handler: emitInsert, MinArgs: 3, MaxArgs: 3, Void: true, Fallible: true, Requires: allocReqs},
		{Symbol: "list.pop", Handler: emitPop, MinArgs: 1, MaxArgs: 2},
		{Symbol: "list.remove", Handler: emitRemove, MinArgs: 2, MaxArgs: 2, Void: true},
		{Symbol: "list.index", Handler: emitIndex, MinArgs: 2, MaxArgs: 2, Returns: infer.Int},
		{Symbol: "list.reverse", Handler: emitReverse, MinArgs: 1, MaxArgs: 1, Void: true},
		{Symbol: "list.sort", Handler: emitSort, MinArgs: 1, MaxArgs: 1, Void: true},
	}
}

func dictEntries() []registry.Entry {
	return []registry.Entry{
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "dict.clear", Target: "clearRetainingCapacity", MinArgs: 1,
			Receiver: true, Void: true,
		}),
		{Symbol: "dict.get", Handler: emitDictGet, MinArgs: 2, MaxArgs: 3, Params: []string{"self", "key", "default"}},
		{Symbol: "dict.pop", Handler: emitDictPop, MinArgs: 2, MaxArgs: 2},
		{
			Symbol: "dict.keys", Handler: emitDictKeys, MinArgs: 1, MaxArgs: 1,
			Returns: infer.Sequence, Fallible: true, Requires: allocReqs,
		},
	}
}

func elemOf(st *emit.State, list pyast.Expr) string {
	return emit.ElemType(st.ElementType(list))
}

func emitExtend(st *emit.State, args []pyast.Expr) error {
	return template(st, st.Try()+"%s.appendSlice(%s)"+st.EndTry(), expr(st, args[0]), slice(st, args[1]))
}

func emitInsert(st *emit.State, args []pyast.Expr) error {
	return template(st, st.Try()+"%s.insert(%s, %s)"+st.EndTry(),
		expr(st, args[0]), func() error { return emitUsize(st, args[1]) }, expr(st, args[2]))
}

func emitPop(st *emit.State, args []pyast.Expr) error {
	if len(args) == 1 {
		return template(st, "%s.pop()", expr(st, args[0]))
	}
	return template(st, "%s.orderedRemove(%s)", expr(st, args[0]), func() error { return emitUsize(st, args[1]) })
}

// xs.remove(v) drops the first element equal to v.
func emitRemove(st *emit.State, args []pyast.Expr) error {
	idx := st.NewLabel("remove") + "_i"
	err := template(st, "if (std.mem.indexOfScalar("+elemOf(st, args[0])+", %s, %s)) |"+idx+"| {",
		slice(st, args[0]), expr(st, args[1]))
	if err != nil {
		return err
	}
	st.Newline()
	err = st.Block(func() error {
		if err := template(st, "_ = %s.orderedRemove("+idx+");", expr(st, args[0])); err != nil {
			return err
		}
		st.Newline()
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

func emitIndex(st *emit.State, args []pyast.Expr) error {
	return emitInt64(st, func() error {
		return template(st, "std.mem.indexOfScalar("+elemOf(st, args[0])+", %s, %s).?", slice(st, args[0]), expr(st, args[1]))
	})
}

func emitReverse(st *emit.State, args []pyast.Expr) error {
	return template(st, "std.mem.reverse("+elemOf(st, args[0])+", %s)", slice(st, args[0]))
}

func emitSort(st *emit.State, args []pyast.Expr) error {
	elem := elemOf(st, args[0])
	return template(st, "std.mem.sort("+elem+", %s, {}, std.sort.asc("+elem+"))", slice(st, args[0]))
}

// d.get(k) unwraps, d.get(k, default) falls back.
func emitDictGet(st *emit.State, args []pyast.Expr) error {
	if len(args) == 3 {
		return template(st, "(%s.get(%s) orelse %s)", expr(st, args[0]), expr(st, args[1]), expr(st, args[2]))
	}
	return template(st, "%s.get(%s).?", expr(st, args[0]), expr(st, args[1]))
}

func emitDictPop(st *emit.State, args []pyast.Expr) error {
	return template(st, "%s.fetchRemove(%s).?.value", expr(st, args[0]), expr(st, args[1]))
}

func emitDictKeys(st *emit.State, args []pyast.Expr) error {
	key := elemOf(st, args[0])
	label := st.NewLabel("keys")
	out, it, k := label+"_out", label+"_it", label+"_k"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s = std.ArrayList(%s).init(%s);", out, key, st.Allocator())
		if err := template(st, "var "+it+" = %s.keyIterator();", expr(st, args[0])); err != nil {
			return err
		}
		st.Newline()
		st.Linef("while (%s.next()) |%s| %s%s.append(%s.*)%s;", it, k, st.Try(), out, k, st.EndTry())
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}
