package codegen

import (
	"errors"
	"testing"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handler(body []pyast.Stmt, types ...string) *pyast.ExceptHandler {
	h := &pyast.ExceptHandler{Body: body}
	for _, t := range types {
		h.Types = append(h.Types, pyast.Ident(t))
	}
	return h
}

func parseInt(name string) pyast.Expr {
	return pyast.CallName("int", pyast.Ident(name))
}

func TestTryMatchesHandlers(t *testing.T) {
	res := mustGenerate(t,
		pyast.AssignTo("s", pyast.Str("12")),
		&pyast.Try{
			Body:     []pyast.Stmt{pyast.AssignTo("n", parseInt("s"))},
			Handlers: []*pyast.ExceptHandler{handler([]pyast.Stmt{pyast.AssignTo("n", pyast.Int(0))}, "ValueError")},
		},
		printOf(pyast.Ident("n")),
	)

	assert.Contains(t, res.Source, "pub fn main() !void {")
	assert.Contains(t, res.Source, "var n: i64 = undefined;")
	assert.Contains(t, res.Source, "    try_1: {\n"+
		"        const try_1_err: anyerror = try_1_body: {\n"+
		"            n = (std.fmt.parseInt(i64, s, 10) catch |try_1_e| break :try_1_body try_1_e);\n"+
		"            break :try_1;\n"+
		"        };\n"+
		"        if (try_1_err == error.InvalidCharacter or try_1_err == error.Overflow or try_1_err == error.SyntaxError or try_1_err == error.UnexpectedToken) {\n"+
		"            n = 0;\n"+
		"        } else {\n"+
		"            return try_1_err;\n"+
		"        }\n"+
		"    }\n")
}

func TestTryHandlerTypes(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  string
	}{
		{
			name:  "tuple of classes",
			types: []string{"ZeroDivisionError", "MemoryError"},
			want:  "if (try_1_err == error.DivisionByZero or try_1_err == error.OutOfMemory) {",
		},
		{
			name:  "unmapped class keeps its name",
			types: []string{"KeyError"},
			want:  "if (try_1_err == error.KeyError) {",
		},
		{
			name:  "os errors",
			types: []string{"OSError"},
			want:  "if (try_1_err == error.FileNotFound or try_1_err == error.AccessDenied) {",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustGenerate(t,
				pyast.AssignTo("s", pyast.Str("1")),
				&pyast.Try{
					Body:     []pyast.Stmt{printOf(parseInt("s"))},
					Handlers: []*pyast.ExceptHandler{handler([]pyast.Stmt{&pyast.Pass{}}, tt.types...)},
				},
			)
			assert.Contains(t, res.Source, tt.want)
		})
	}
}

func TestCatchAllHandlerMakesFunctionInfallible(t *testing.T) {
	intAnn := pyast.Ident("int")
	for _, catchAll := range [][]string{nil, {"Exception"}} {
		res := mustGenerate(t,
			def("parse", []*pyast.Param{param("s", pyast.Ident("str"))}, intAnn,
				&pyast.Try{
					Body:     []pyast.Stmt{ret(parseInt("s"))},
					Handlers: []*pyast.ExceptHandler{handler([]pyast.Stmt{ret(pyast.Int(0))}, catchAll...)},
				}),
			printOf(pyast.CallName("parse", pyast.Str("7"))),
		)

		assert.Contains(t, res.Source, "fn parse(s: []const u8) i64 {\n"+
			"    {\n"+
			"        const try_1_err: anyerror = try_1_body: {\n"+
			"            return (std.fmt.parseInt(i64, s, 10) catch |try_1_e| break :try_1_body try_1_e);\n"+
			"        };\n"+
			"        _ = try_1_err;\n"+
			"        return 0;\n"+
			"    }\n"+
			"}")
		assert.Contains(t, res.Source, "pub fn main() void {")
		assert.Contains(t, res.Source, `pyPrint("{d}\n", .{ parse("7") });`)
	}
}

func TestTryWithoutFallibleCalls(t *testing.T) {
	res := mustGenerate(t,
		&pyast.Try{
			Body:     []pyast.Stmt{pyast.AssignTo("x", pyast.Int(1))},
			Handlers: []*pyast.ExceptHandler{handler([]pyast.Stmt{&pyast.Pass{}}, "ValueError")},
			Orelse:   []pyast.Stmt{&pyast.AugAssign{Target: pyast.Ident("x"), Op: "+", Value: pyast.Int(1)}},
		},
		printOf(pyast.Ident("x")),
	)

	assert.Contains(t, res.Source, "pub fn main() void {")
	assert.Contains(t, res.Source, "    {\n        x = 1;\n        x = (x + 1);\n    }\n")
	assert.NotContains(t, res.Source, "anyerror")
	assert.NotContains(t, res.Source, "try_1")
}

func TestFinallyBecomesDefer(t *testing.T) {
	intAnn := pyast.Ident("int")
	res := mustGenerate(t,
		def("read", []*pyast.Param{param("s", pyast.Ident("str"))}, intAnn,
			pyast.AssignTo("n", pyast.Int(0)),
			&pyast.Try{
				Body:    []pyast.Stmt{pyast.AssignTo("n", parseInt("s"))},
				Finally: []pyast.Stmt{printOf(pyast.Str("done"))},
			},
			ret(pyast.Ident("n"))),
		printOf(pyast.CallName("read", pyast.Str("3"))),
	)

	assert.Contains(t, res.Source, "fn read(s: []const u8) !i64 {")
	assert.Contains(t, res.Source, "    try_1: {\n"+
		"        defer {\n"+
		"            pyPrint(\"{s}\\n\", .{ \"done\" });\n"+
		"        }\n"+
		"        const try_1_err: anyerror = try_1_body: {\n")
	assert.Contains(t, res.Source, "        };\n        return try_1_err;\n    }\n")
}

func TestNestedTryPropagatesToOuterBody(t *testing.T) {
	res := mustGenerate(t,
		pyast.AssignTo("s", pyast.Str("1")),
		&pyast.Try{
			Body: []pyast.Stmt{&pyast.Try{
				Body:     []pyast.Stmt{printOf(parseInt("s"))},
				Handlers: []*pyast.ExceptHandler{handler([]pyast.Stmt{&pyast.Pass{}}, "KeyError")},
			}},
			Handlers: []*pyast.ExceptHandler{handler([]pyast.Stmt{&pyast.Pass{}})},
		},
	)

	assert.Contains(t, res.Source, "catch |try_2_e| break :try_2_body try_2_e")
	assert.Contains(t, res.Source, "break :try_1_body try_2_err;")
	assert.Contains(t, res.Source, "_ = try_1_err;")
	assert.Contains(t, res.Source, "pub fn main() void {")
}

func TestTryRejected(t *testing.T) {
	fallible := []pyast.Stmt{printOf(parseInt("s"))}
	tests := []struct {
		name string
		try  *pyast.Try
		want string
	}{
		{
			name: "binding",
			try: &pyast.Try{Body: fallible, Handlers: []*pyast.ExceptHandler{
				{Types: []pyast.Expr{pyast.Ident("ValueError")}, Name: "err", Body: []pyast.Stmt{&pyast.Pass{}}},
			}},
			want: "except ... as err is not supported",
		},
		{
			name: "catch-all before others",
			try: &pyast.Try{Body: fallible, Handlers: []*pyast.ExceptHandler{
				handler([]pyast.Stmt{&pyast.Pass{}}),
				handler([]pyast.Stmt{&pyast.Pass{}}, "ValueError"),
			}},
			want: "catch-all except clause must be last",
		},
		{
			name: "fallible finally",
			try:  &pyast.Try{Body: []pyast.Stmt{&pyast.Pass{}}, Finally: fallible},
			want: "finally clause cannot call fallible functions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := generate(t, nil, pyast.AssignTo("s", pyast.Str("1")), tt.try)
			assert.Nil(t, res)
			var semantic *pyerr.SemanticError
			require.True(t, errors.As(err, &semantic))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
