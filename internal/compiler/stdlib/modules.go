package stdlib

import (
	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/callpattern"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/pyast"
)

var (
	jsonReqs  = analyzer.RequirementSet{NeedsJSON: true}
	httpReqs  = analyzer.RequirementSet{NeedsHTTP: true, NeedsRuntime: true}
	asyncReqs = analyzer.RequirementSet{NeedsAsync: true, NeedsRuntime: true}
)

func moduleEntries() []registry.Entry {
	var entries []registry.Entry
	for _, group := range [][]registry.Entry{jsonEntries(), httpEntries(), asyncioEntries(), mathEntries(), osEntries(), timeEntries(), sysEntries()} {
		entries = append(entries, group...)
	}
	return entries
}

func jsonEntries() []registry.Entry {
	return []registry.Entry{
		callpattern.Projecting(callpattern.Descriptor{
			Symbol: "json.loads", Target: "json.parse", MinArgs: 1, Field: "value",
			Allocator: true, Fallible: true, Requires: jsonReqs, Params: []string{"s"},
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "json.dumps", Target: "json.stringify", MinArgs: 1,
			Allocator: true, Fallible: true, Returns: infer.String, Requires: jsonReqs, Params: []string{"obj"},
		}),
	}
}

func httpEntries() []registry.Entry {
	return []registry.Entry{
		callpattern.Projecting(callpattern.Descriptor{
			Symbol: "http.get", Target: "http.get", MinArgs: 1, Field: "body",
			Allocator: true, Fallible: true, Returns: infer.String, Requires: httpReqs, Params: []string{"url"},
		}),
		callpattern.Projecting(callpattern.Descriptor{
			Symbol: "http.post", Target: "http.post", MinArgs: 2, Field: "body",
			Allocator: true, Fallible: true, Returns: infer.String, Requires: httpReqs, Params: []string{"url", "data"},
		}),
		callpattern.Variadic(callpattern.Descriptor{
			Symbol: "http.request", Target: "http.request", MinArgs: 2, Defaults: []string{`""`},
			Allocator: true, Fallible: true, Requires: httpReqs, Params: []string{"method", "url", "data"},
		}),
	}
}

func asyncioEntries() []registry.Entry {
	return []registry.Entry{
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "asyncio.run", Target: "asyncio.run", MinArgs: 1,
			Allocator: true, Fallible: true, Requires: asyncReqs,
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "asyncio.sleep", Target: "asyncio.sleep", MinArgs: 1,
			Fallible: true, Void: true, Requires: asyncReqs,
		}),
		callpattern.Variadic(callpattern.Descriptor{
			Symbol: "asyncio.gather", Target: "asyncio.gather", MinArgs: 1, MaxArgs: registry.Variadic,
			Allocator: true, Fallible: true, Returns: infer.Sequence, Requires: asyncReqs,
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "asyncio.create_task", Target: "asyncio.spawn", MinArgs: 1,
			Allocator: true, Fallible: true, Requires: asyncReqs,
		}),
	}
}

func mathEntries() []registry.Entry {
	entries := []registry.Entry{
		{Symbol: "math.pi", Handler: constant("std.math.pi"), Returns: infer.Float},
		{Symbol: "math.e", Handler: constant("std.math.e"), Returns: infer.Float},
		{Symbol: "math.inf", Handler: constant("std.math.inf(f64)"), Returns: infer.Float},
		{Symbol: "math.floor", Handler: rounding("@floor"), MinArgs: 1, MaxArgs: 1, Returns: infer.Int},
		{Symbol: "math.ceil", Handler: rounding("@ceil"), MinArgs: 1, MaxArgs: 1, Returns: infer.Int},
		{Symbol: "math.pow", Handler: emitPow, MinArgs: 2, MaxArgs: 2, Returns: infer.Float},
	}
	for _, fn := range []struct{ py, zig string }{
		{"sqrt", "@sqrt"},
		{"sin", "@sin"},
		{"cos", "@cos"},
		{"tan", "@tan"},
		{"exp", "@exp"},
		{"log", "@log"},
		{"log2", "@log2"},
		{"log10", "@log10"},
		{"fabs", "@abs"},
	} {
		entries = append(entries, registry.Entry{
			Symbol: "math." + fn.py, Handler: floatCall(fn.zig), MinArgs: 1, MaxArgs: 1, Returns: infer.Float,
		})
	}
	return entries
}

func osEntries() []registry.Entry {
	return []registry.Entry{
		{Symbol: "os.getenv", Handler: emitGetenv, MinArgs: 1, MaxArgs: 2, Returns: infer.String, Params: []string{"key", "default"}},
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "os.getcwd", Target: "std.process.getCwdAlloc",
			Allocator: true, Fallible: true, Returns: infer.String,
		}),
		{Symbol: "os.path.exists", Handler: emitExists, MinArgs: 1, MaxArgs: 1},
		{
			Symbol: "os.path.join", Handler: emitPathJoin, MinArgs: 1, MaxArgs: registry.Variadic,
			Returns: infer.String, Fallible: true, Requires: allocReqs,
		},
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "os.path.basename", Target: "std.fs.path.basename", MinArgs: 1, Returns: infer.String,
		}),
		callpattern.Fixed(callpattern.Descriptor{
			Symbol: "os.path.dirname", Target: "std.fs.path.dirname", MinArgs: 1,
		}),
	}
}

func timeEntries() []registry.Entry {
	return []registry.Entry{
		{Symbol: "time.time", Handler: constant("(@as(f64, @floatFromInt(std.time.milliTimestamp())) / 1000.0)"), Returns: infer.Float},
		{Symbol: "time.perf_counter", Handler: constant("(@as(f64, @floatFromInt(std.time.nanoTimestamp())) / 1e9)"), Returns: infer.Float},
		{Symbol: "time.sleep", Handler: emitSleep, MinArgs: 1, MaxArgs: 1, Void: true},
	}
}

func sysEntries() []registry.Entry {
	return []registry.Entry{
		{Symbol: "sys.platform", Handler: emitPlatform, Returns: infer.String},
		callpattern.Variadic(callpattern.Descriptor{
			Symbol: "sys.exit", Target: "std.process.exit", Defaults: []string{"0"}, Void: true,
		}),
	}
}

// constant emits a fixed snippet; used for module attributes.
func constant(snippet string) registry.Handler {
	return func(st *emit.State, _ []pyast.Expr) error {
		st.Write(snippet)
		return nil
	}
}

// floatCall applies a float builtin, widening ints first.
func floatCall(fn string) registry.Handler {
	return func(st *emit.State, args []pyast.Expr) error {
		return template(st, fn+"(%s)", func() error { return emitFloat(st, args[0]) })
	}
}

// rounding lowers math.floor/ceil, which return ints in Python.
func rounding(fn string) registry.Handler {
	return func(st *emit.State, args []pyast.Expr) error {
		if st.Infer(args[0]) == infer.Int {
			return st.EmitExpr(args[0])
		}
		return template(st, "@as(i64, @intFromFloat("+fn+"(%s)))", func() error { return emitFloat(st, args[0]) })
	}
}

func emitPow(st *emit.State, args []pyast.Expr) error {
	return template(st, "std.math.pow(f64, %s, %s)",
		func() error { return emitFloat(st, args[0]) },
		func() error { return emitFloat(st, args[1]) })
}

func emitGetenv(st *emit.State, args []pyast.Expr) error {
	fallback := text(st, `""`)
	if len(args) == 2 {
		fallback = expr(st, args[1])
	}
	return template(st, "(std.posix.getenv(%s) orelse %s)", expr(st, args[0]), fallback)
}

func emitExists(st *emit.State, args []pyast.Expr) error {
	label := st.NewLabel("exists")
	st.Write(label + ": {")
	st.Newline()
	err := st.Block(func() error {
		if err := template(st, "std.fs.cwd().access(%s, .{}) catch break :"+label+" false;", expr(st, args[0])); err != nil {
			return err
		}
		st.Newline()
		st.Linef("break :%s true;", label)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}

func emitPathJoin(st *emit.State, args []pyast.Expr) error {
	st.Write(st.Try() + "std.fs.path.join(" + st.Allocator() + ", &.{ ")
	if err := st.EmitArgs(args); err != nil {
		return err
	}
	st.Write(" })" + st.EndTry())
	return nil
}

func emitSleep(st *emit.State, args []pyast.Expr) error {
	return template(st, "std.time.sleep(@as(u64, @intFromFloat(%s * 1e9)))", func() error { return emitFloat(st, args[0]) })
}

// sys.platform is resolved at compile time of the generated program.
func emitPlatform(st *emit.State, _ []pyast.Expr) error {
	st.Write("switch (@import(\"builtin\").os.tag) {")
	st.Newline()
	err := st.Block(func() error {
		st.Line(`.linux => "linux",`)
		st.Line(`.macos => "darwin",`)
		st.Line(`.windows => "win32",`)
		st.Line(`.freebsd => "freebsd",`)
		st.Line(`else => "unknown",`)
		return nil
	})
	if err != nil {
		return err
	}
	st.Write("}")
	return nil
}
