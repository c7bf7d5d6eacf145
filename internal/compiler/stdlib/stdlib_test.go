package stdlib

import (
	"fmt"
	"strconv"
	"testing"

	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv lowers names, constants and calls to names, classifying names from
// fixed tables.
type fakeEnv struct {
	types map[string]infer.Type
	elems map[string]infer.Type
	reprs map[string]emit.Repr
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		types: map[string]infer.Type{
			"n": infer.Int, "f": infer.Float, "s": infer.String, "sep": infer.String,
			"xs": infer.Sequence, "arr": infer.Sequence, "names": infer.Sequence, "d": infer.Mapping,
		},
		elems: map[string]infer.Type{"xs": infer.Int, "arr": infer.Int, "names": infer.String, "d": infer.String},
		reprs: map[string]emit.Repr{"xs": emit.ReprList, "names": emit.ReprList, "arr": emit.ReprArray},
	}
}

func (f *fakeEnv) EmitExpr(st *emit.State, e pyast.Expr) error {
	switch n := e.(type) {
	case *pyast.Name:
		st.Write(n.ID)
	case *pyast.Constant:
		if n.Type == pyast.ConstStr {
			st.Write(strconv.Quote(n.Value.(string)))
		} else {
			st.Write(fmt.Sprint(n.Value))
		}
	case *pyast.Call:
		name, ok := pyast.DottedName(n.Func)
		if !ok {
			return fmt.Errorf("callee is not a name")
		}
		st.Write(name + "()")
	default:
		return fmt.Errorf("cannot emit %s", e.Kind())
	}
	return nil
}

func (f *fakeEnv) Infer(e pyast.Expr) infer.Type {
	switch n := e.(type) {
	case *pyast.Name:
		return f.types[n.ID]
	case *pyast.Constant:
		return infer.NewInferrer(nil).Infer(n)
	}
	return infer.Unknown
}

func (f *fakeEnv) ElementType(e pyast.Expr) infer.Type {
	if n, ok := e.(*pyast.Name); ok {
		return f.elems[n.ID]
	}
	return infer.Unknown
}

func (f *fakeEnv) Repr(e pyast.Expr) emit.Repr {
	if n, ok := e.(*pyast.Name); ok {
		return f.reprs[n.ID]
	}
	return emit.ReprValue
}

func newState() *emit.State {
	st := emit.NewState()
	st.SetDispatcher(newFakeEnv())
	return st
}

// invoke runs symbol from the default registry.
func invoke(t *testing.T, symbol string, args ...pyast.Expr) (string, *emit.State, error) {
	t.Helper()
	st := newState()
	err := Global.Invoke(st, symbol, args, 1)
	return st.String(), st, err
}

func TestDefaultRegistrySurface(t *testing.T) {
	r := DefaultRegistry()
	for _, sym := range []string{
		"builtins.print", "builtins.len", "builtins.isinstance", "builtins.hasattr", "builtins.getattr",
		"str.upper", "str.split", "str.find", "list.append", "dict.get",
		"json.loads", "json.dumps", "http.get", "asyncio.run", "math.sqrt", "os.getenv",
		"os.path.join", "time.time", "sys.platform",
	} {
		_, ok := r.Lookup(sym)
		assert.True(t, ok, sym)
	}
	for _, m := range Modules() {
		assert.True(t, r.HasModule(m), m)
	}
	assert.Equal(t, r.Symbols(), Global.Symbols())
}

func TestRegisterTwiceConflicts(t *testing.T) {
	r := DefaultRegistry()
	assert.Error(t, Register(r))
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		args   []pyast.Expr
		want   string
	}{
		{"print mixed", "builtins.print", []pyast.Expr{pyast.Str("n ="), pyast.Ident("n")}, `pyPrint("{s} {d}\n", .{ "n =", n })`},
		{"print empty", "builtins.print", nil, `pyPrint("\n", .{})`},
		{"print list", "builtins.print", []pyast.Expr{pyast.Ident("xs")}, `pyPrint("{any}\n", .{ xs.items })`},
		{"len string", "builtins.len", []pyast.Expr{pyast.Ident("s")}, "@as(i64, @intCast(s.len))"},
		{"len list", "builtins.len", []pyast.Expr{pyast.Ident("xs")}, "@as(i64, @intCast(xs.items.len))"},
		{"len array", "builtins.len", []pyast.Expr{pyast.Ident("arr")}, "@as(i64, @intCast(arr.len))"},
		{"len dict", "builtins.len", []pyast.Expr{pyast.Ident("d")}, "@as(i64, @intCast(d.count()))"},
		{"int of string", "builtins.int", []pyast.Expr{pyast.Ident("s")}, "try std.fmt.parseInt(i64, s, 10)"},
		{"int of float", "builtins.int", []pyast.Expr{pyast.Ident("f")}, "@as(i64, @intFromFloat(f))"},
		{"float of int", "builtins.float", []pyast.Expr{pyast.Ident("n")}, "@as(f64, @floatFromInt(n))"},
		{"str of int", "builtins.str", []pyast.Expr{pyast.Ident("n")}, `try std.fmt.allocPrint(allocator, "{d}", .{n})`},
		{"str of str", "builtins.str", []pyast.Expr{pyast.Ident("s")}, "s"},
		{"bool of int", "builtins.bool", []pyast.Expr{pyast.Ident("n")}, "(n != 0)"},
		{"abs int", "builtins.abs", []pyast.Expr{pyast.Ident("n")}, "@as(i64, @intCast(@abs(n)))"},
		{"max args", "builtins.max", []pyast.Expr{pyast.Ident("n"), pyast.Int(3)}, "@max(n, 3)"},
		{"min iterable", "builtins.min", []pyast.Expr{pyast.Ident("xs")}, "std.mem.min(i64, xs.items)"},
		{"isinstance match", "builtins.isinstance", []pyast.Expr{pyast.Ident("n"), pyast.Ident("int")}, "true"},
		{"isinstance mismatch", "builtins.isinstance", []pyast.Expr{pyast.Ident("s"), pyast.Ident("int")}, "false"},
		{"getattr", "builtins.getattr", []pyast.Expr{pyast.Ident("p"), pyast.Str("x")}, "p.x"},
		{
			"hasattr", "builtins.hasattr", []pyast.Expr{pyast.Ident("p"), pyast.Str("x")},
			`@hasField(std.meta.Child(@TypeOf(p)), "x")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := invoke(t, tt.symbol, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscardKeepsCallSideEffects(t *testing.T) {
	t.Run("isinstance", func(t *testing.T) {
		got, st, err := invoke(t, "builtins.isinstance", pyast.CallName("make"), pyast.Ident("int"))
		require.NoError(t, err)
		assert.Equal(t, "discard_1: {\n    _ = make();\n    break :discard_1 true;\n}", got)
		assert.True(t, st.Balanced())
	})

	t.Run("hasattr evaluates once", func(t *testing.T) {
		got, _, err := invoke(t, "builtins.hasattr", pyast.CallName("make"), pyast.Str("x"))
		require.NoError(t, err)
		assert.Contains(t, got, "_ = make();")
		assert.Contains(t, got, `@hasField(std.meta.Child(@TypeOf(make())), "x")`)
	})

	t.Run("getattr default", func(t *testing.T) {
		got, _, err := invoke(t, "builtins.getattr", pyast.Ident("p"), pyast.Str("x"), pyast.CallName("fallback"))
		require.NoError(t, err)
		assert.Contains(t, got, "_ = fallback();")
		assert.Contains(t, got, "break :discard_1 p.x;")
	})
}

func TestAttributeNameMustBeLiteral(t *testing.T) {
	_, _, err := invoke(t, "builtins.getattr", pyast.Ident("p"), pyast.Ident("name"))
	var semantic *pyerr.SemanticError
	assert.ErrorAs(t, err, &semantic)
}

func TestLabeledBuilders(t *testing.T) {
	t.Run("sorted", func(t *testing.T) {
		got, st, err := invoke(t, "builtins.sorted", pyast.Ident("xs"))
		require.NoError(t, err)
		assert.Equal(t, "sorted_1: {\n"+
			"    var sorted_1_out = std.ArrayList(i64).init(allocator);\n"+
			"    try sorted_1_out.appendSlice(xs.items);\n"+
			"    std.mem.sort(i64, sorted_1_out.items, {}, std.sort.asc(i64));\n"+
			"    break :sorted_1 sorted_1_out;\n"+
			"}", got)
		assert.True(t, st.Requirements().NeedsAllocator)
	})

	t.Run("sum", func(t *testing.T) {
		got, _, err := invoke(t, "builtins.sum", pyast.Ident("arr"))
		require.NoError(t, err)
		assert.Contains(t, got, "var sum_1_acc: i64 = 0;")
		assert.Contains(t, got, "for (&arr) |sum_1_v| sum_1_acc += sum_1_v;")
	})

	t.Run("split", func(t *testing.T) {
		got, _, err := invoke(t, "str.split", pyast.Ident("s"), pyast.Str(","))
		require.NoError(t, err)
		assert.Contains(t, got, `var split_1_it = std.mem.splitSequence(u8, s, ",");`)
		assert.Contains(t, got, "break :split_1 split_1_out;")
	})

	t.Run("split on whitespace", func(t *testing.T) {
		got, _, err := invoke(t, "str.split", pyast.Ident("s"))
		require.NoError(t, err)
		assert.Contains(t, got, `std.mem.tokenizeAny(u8, s, " \t\r\n")`)
	})

	t.Run("labels never repeat", func(t *testing.T) {
		st := newState()
		require.NoError(t, Global.Invoke(st, "str.isdigit", []pyast.Expr{pyast.Ident("s")}, 1))
		st.Newline()
		require.NoError(t, Global.Invoke(st, "str.isdigit", []pyast.Expr{pyast.Ident("s")}, 1))
		assert.Contains(t, st.String(), "isDigit_1:")
		assert.Contains(t, st.String(), "isDigit_2:")
	})
}

func TestStringMethods(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		args   []pyast.Expr
		want   string
	}{
		{"upper", "str.upper", []pyast.Expr{pyast.Ident("s")}, "try strutil.upper(allocator, s)"},
		{"strip", "str.strip", []pyast.Expr{pyast.Ident("s")}, `std.mem.trim(u8, s, " \t\r\n")`},
		{"strip chars", "str.rstrip", []pyast.Expr{pyast.Ident("s"), pyast.Str("x")}, `std.mem.trimRight(u8, s, "x")`},
		{"startswith", "str.startswith", []pyast.Expr{pyast.Ident("s"), pyast.Str("a")}, `std.mem.startsWith(u8, s, "a")`},
		{"replace", "str.replace", []pyast.Expr{pyast.Ident("s"), pyast.Str("a"), pyast.Str("b")}, `try std.mem.replaceOwned(u8, allocator, s, "a", "b")`},
		{"join", "str.join", []pyast.Expr{pyast.Ident("sep"), pyast.Ident("names")}, "try std.mem.join(allocator, sep, names.items)"},
		{"find", "str.find", []pyast.Expr{pyast.Ident("s"), pyast.Str("a")}, `(if (std.mem.indexOf(u8, s, "a")) |find_1_i| @as(i64, @intCast(find_1_i)) else -1)`},
		{"count", "str.count", []pyast.Expr{pyast.Ident("s"), pyast.Str("a")}, `@as(i64, @intCast(std.mem.count(u8, s, "a")))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := invoke(t, tt.symbol, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectionMethods(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		args   []pyast.Expr
		want   string
	}{
		{"append", "list.append", []pyast.Expr{pyast.Ident("xs"), pyast.Int(1)}, "try xs.append(1)"},
		{"extend", "list.extend", []pyast.Expr{pyast.Ident("xs"), pyast.Ident("arr")}, "try xs.appendSlice(&arr)"},
		{"insert", "list.insert", []pyast.Expr{pyast.Ident("xs"), pyast.Int(0), pyast.Int(5)}, "try xs.insert(@intCast(0), 5)"},
		{"pop", "list.pop", []pyast.Expr{pyast.Ident("xs")}, "xs.pop()"},
		{"pop index", "list.pop", []pyast.Expr{pyast.Ident("xs"), pyast.Int(0)}, "xs.orderedRemove(@intCast(0))"},
		{"sort", "list.sort", []pyast.Expr{pyast.Ident("xs")}, "std.mem.sort(i64, xs.items, {}, std.sort.asc(i64))"},
		{"remove", "list.remove", []pyast.Expr{pyast.Ident("xs"), pyast.Int(3)}, "if (std.mem.indexOfScalar(i64, xs.items, 3)) |remove_1_i| {\n    _ = xs.orderedRemove(remove_1_i);\n}"},
		{"clear", "list.clear", []pyast.Expr{pyast.Ident("xs")}, "xs.clearRetainingCapacity()"},
		{"dict get", "dict.get", []pyast.Expr{pyast.Ident("d"), pyast.Str("k")}, `d.get("k").?`},
		{"dict get default", "dict.get", []pyast.Expr{pyast.Ident("d"), pyast.Str("k"), pyast.Int(0)}, `(d.get("k") orelse 0)`},
		{"dict pop", "dict.pop", []pyast.Expr{pyast.Ident("d"), pyast.Str("k")}, `d.fetchRemove("k").?.value`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := invoke(t, tt.symbol, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModules(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		args   []pyast.Expr
		want   string
	}{
		{"json.loads", "json.loads", []pyast.Expr{pyast.Ident("s")}, "(try json.parse(allocator, s)).value"},
		{"json.dumps", "json.dumps", []pyast.Expr{pyast.Ident("d")}, "try json.stringify(allocator, d)"},
		{"http.get", "http.get", []pyast.Expr{pyast.Ident("s")}, "(try http.get(allocator, s)).body"},
		{"http.request default body", "http.request", []pyast.Expr{pyast.Str("GET"), pyast.Ident("s")}, `try http.request(allocator, "GET", s, "")`},
		{"asyncio.gather", "asyncio.gather", []pyast.Expr{pyast.Ident("a"), pyast.Ident("b")}, "try asyncio.gather(allocator, a, b)"},
		{"math.sqrt int", "math.sqrt", []pyast.Expr{pyast.Ident("n")}, "@sqrt(@as(f64, @floatFromInt(n)))"},
		{"math.floor", "math.floor", []pyast.Expr{pyast.Ident("f")}, "@as(i64, @intFromFloat(@floor(f)))"},
		{"math.pow", "math.pow", []pyast.Expr{pyast.Ident("f"), pyast.Int(2)}, "std.math.pow(f64, f, @as(f64, @floatFromInt(2)))"},
		{"math.pi", "math.pi", nil, "std.math.pi"},
		{"os.getenv", "os.getenv", []pyast.Expr{pyast.Str("HOME")}, `(std.posix.getenv("HOME") orelse "")`},
		{"os.getcwd", "os.getcwd", nil, "try std.process.getCwdAlloc(allocator)"},
		{"os.path.join", "os.path.join", []pyast.Expr{pyast.Ident("s"), pyast.Str("x")}, `try std.fs.path.join(allocator, &.{ s, "x" })`},
		{"sys.exit default", "sys.exit", nil, "std.process.exit(0)"},
		{"time.sleep", "time.sleep", []pyast.Expr{pyast.Ident("f")}, "std.time.sleep(@as(u64, @intFromFloat(f * 1e9)))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := invoke(t, tt.symbol, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlatformSwitch(t *testing.T) {
	got, st, err := invoke(t, "sys.platform")
	require.NoError(t, err)
	assert.Contains(t, got, `switch (@import("builtin").os.tag) {`)
	assert.Contains(t, got, `    .linux => "linux",`)
	assert.Contains(t, got, `    else => "unknown",`)
	assert.True(t, st.Balanced())
}

func TestRequirementsRecorded(t *testing.T) {
	tests := []struct {
		symbol string
		args   []pyast.Expr
		check  func(t *testing.T, st *emit.State)
	}{
		{"json.dumps", []pyast.Expr{pyast.Ident("d")}, func(t *testing.T, st *emit.State) {
			assert.True(t, st.Requirements().NeedsJSON)
			assert.True(t, st.Requirements().NeedsAllocator)
		}},
		{"http.get", []pyast.Expr{pyast.Ident("s")}, func(t *testing.T, st *emit.State) {
			assert.True(t, st.Requirements().NeedsHTTP)
			assert.True(t, st.Requirements().NeedsRuntime)
		}},
		{"str.upper", []pyast.Expr{pyast.Ident("s")}, func(t *testing.T, st *emit.State) {
			assert.True(t, st.Requirements().NeedsStringUtils)
		}},
		{"builtins.print", nil, func(t *testing.T, st *emit.State) {
			assert.True(t, st.Requirements().NeedsStd)
		}},
		{"math.sqrt", []pyast.Expr{pyast.Ident("f")}, func(t *testing.T, st *emit.State) {
			assert.True(t, st.Requirements().IsEmpty())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			_, st, err := invoke(t, tt.symbol, tt.args...)
			require.NoError(t, err)
			tt.check(t, st)
		})
	}
}

func TestArityFailsFast(t *testing.T) {
	tests := []struct {
		symbol string
		args   []pyast.Expr
	}{
		{"builtins.len", nil},
		{"builtins.isinstance", []pyast.Expr{pyast.Ident("x")}},
		{"json.loads", nil},
		{"str.replace", []pyast.Expr{pyast.Ident("s"), pyast.Str("a")}},
		{"math.pi", []pyast.Expr{pyast.Int(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, _, err := invoke(t, tt.symbol, tt.args...)
			var arity *pyerr.ArityError
			require.ErrorAs(t, err, &arity)
			assert.Equal(t, tt.symbol, arity.Symbol)
			assert.Empty(t, got)
		})
	}
}
