package stdlib

import (
	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/callpattern"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
)

const whitespace = `" \t\r\n"`

var caseReqs = analyzer.RequirementSet{NeedsStringUtils: true}

func stringEntries() []registry.Entry {
	return []registry.Entry{
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "str.upper", Target: "strutil.upper", MinArgs: 1,
			Allocator: true, Fallible: true, Returns: infer.String, Requires: caseReqs,
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "str.lower", Target: "strutil.lower", MinArgs: 1,
			Allocator: true, Fallible: true, Returns: infer.String, Requires: caseReqs,
		}),
		{Symbol: "str.strip", Handler: trim("trim"), MinArgs: 1, MaxArgs: 2, Returns: infer.String},
		{Symbol: "str.lstrip", Handler: trim("trimLeft"), MinArgs: 1, MaxArgs: 2, Returns: infer.String},
		{Symbol: "str.rstrip", Handler: trim("trimRight"), MinArgs: 1, MaxArgs: 2, Returns: infer.String},
		{Symbol: "str.startswith", Handler: memPredicate("startsWith"), MinArgs: 2, MaxArgs: 2},
		{Symbol: "str.endswith", Handler: memPredicate("endsWith"), MinArgs: 2, MaxArgs: 2},
		{
			Symbol: "str.replace", Handler: emitReplace, MinArgs: 3, MaxArgs: 3,
			Returns: infer.String, Fallible: true, Requires: allocReqs,
		},
		{
			Symbol: "str.split", Handler: emitSplit, MinArgs: 1, MaxArgs: 2,
			Returns: infer.Sequence, Fallible: true, Requires: allocReqs, Params: []string{"self", "sep"},
		},
		{
			Symbol: "str.join", Handler: emitJoin, MinArgs: 2, MaxArgs: 2,
			Returns: infer.String, Fallible: true, Requires: allocReqs,
		},
		{Symbol: "str.find", Handler: emitFind, MinArgs: 2, MaxArgs: 2, Returns: infer.Int},
		{Symbol: "str.count", Handler: emitCount, MinArgs: 2, MaxArgs: 2, Returns: infer.Int},
		{Symbol: "str.isdigit", Handler: asciiAll("isDigit"), MinArgs: 1, MaxArgs: 1},
		{Symbol: "str.isalpha", Handler: asciiAll("isAlphabetic"), MinArgs: 1, MaxArgs: 1},
		{Symbol: "str.isalnum", Handler: asciiAll("isAlphanumeric"), MinArgs: 1, MaxArgs: 1},
		{Symbol: "str.isspace", Handler: asciiAll("isWhitespace"), MinArgs: 1, MaxArgs: 1},
		{Symbol: "str.isupper", Handler: asciiAll("isUpper"), MinArgs: 1, MaxArgs: 1},
		{Symbol: "str.islower", Handler: asciiAll("isLower"), MinArgs: 1, MaxArgs: 1},
	}
}

// s.strip([chars]) -> std.mem.trim(u8, s, chars)
func trim(fn string) registry.Handler {
	return func(st *emit.State, args []pyast.Expr) error {
		chars := text(st, whitespace)
		if len(args) == 2 {
			chars = expr(st, args[1])
		}
		return template(st, "std.mem."+fn+"(u8, %s, %s)", expr(st, args[0]), chars)
	}
}

// s.startswith(p) -> std.mem.startsWith(u8, s, p)
func memPredicate(fn string) registry.Handler {
	return func(st *emit.State, args []pyast.Expr) error {
		return template(st, "std.mem."+fn+"(u8, %s, %s)", expr(st, args[0]), expr(st, args[1]))
	}
}

func emitReplace(st *emit.State, args []pyast.Expr) error {
	return template(st, st.Try()+"std.mem.replaceOwned(u8, "+st.Allocator()+", %s, %s, %s)"+st.EndTry(),
		expr(st, args[0]), expr(st, args[1]), expr(st, args[2]))
}

// s.split() splits on runs of whitespace, s.split(sep) on every occurrence of
// sep. Either way the result is a fresh list.
func emitSplit(st *emit.State, args []pyast.Expr) error {
	label := st.NewLabel("split")
	out, it, part := label+"_out", label+"_it", label+"_part"
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		st.Linef("var %s = std.ArrayList([]const u8).init(%s);", out, st.Allocator())
		var err error
		if len(args) == 2 {
			err = template(st, "var "+it+" = std.mem.splitSequence(u8, %s, %s);", expr(st, args[0]), expr(st, args[1]))
		} else {
			err = template(st, "var "+it+" = std.mem.tokenizeAny(u8, %s, "+whitespace+");", expr(st, args[0]))
		}
		if err != nil {
			return err
		}
		st.Newline()
		st.Linef("while (%s.next()) |%s| %s%s.append(%s)%s;", it, part, st.Try(), out, part, st.EndTry())
		st.Linef("break :%s %s;", label, out)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

// sep.join(xs) -> try std.mem.join(allocator, sep, xs.items)
func emitJoin(st *emit.State, args []pyast.Expr) error {
	return template(st, st.Try()+"std.mem.join("+st.Allocator()+", %s, %s)"+st.EndTry(), expr(st, args[0]), slice(st, args[1]))
}

// s.find(sub) is the index of the first occurrence, -1 when absent.
func emitFind(st *emit.State, args []pyast.Expr) error {
	label := st.NewLabel("find")
	idx := label + "_i"
	return template(st, "(if (std.mem.indexOf(u8, %s, %s)) |"+idx+"| @as(i64, @intCast("+idx+")) else -1)",
		expr(st, args[0]), expr(st, args[1]))
}

func emitCount(st *emit.State, args []pyast.Expr) error {
	return emitInt64(st, func() error {
		return template(st, "std.mem.count(u8, %s, %s)", expr(st, args[0]), expr(st, args[1]))
	})
}

// asciiAll lowers the str.is* predicates: true when s is non-empty and every
// byte satisfies std.ascii.<fn>.
func asciiAll(fn string) registry.Handler {
	return func(st *emit.State, args []pyast.Expr) error {
		label := st.NewLabel(fn)
		s, c := label+"_s", label+"_c"
		st.Write(label + ": {")
		st.Newline()
		err := st.Block(func() error {
			if err := template(st, "const "+s+" = %s;", expr(st, args[0])); err != nil {
				return err
			}
			st.Newline()
			st.Linef("if (%s.len == 0) break :%s false;", s, label)
			st.Linef("for (%s) |%s| if (!std.ascii.%s(%s)) break :%s false;", s, c, fn, c, label)
			st.Linef("break :%s true;", label)
			return nil
		})
		if err != nil {
			return err
		}
		st.Write("}")
		return nil
	}
}
