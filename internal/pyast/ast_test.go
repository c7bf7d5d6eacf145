package pyast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDottedName(t *testing.T) {
	tests := []struct {
		name   string
		expr   Expr
		want   string
		wantOK bool
	}{
		{"simple name", Ident("json"), "json", true},
		{"two levels", Attr(Ident("json"), "loads"), "json.loads", true},
		{"three levels", Attr(Ident("os"), "path", "join"), "os.path.join", true},
		{"call receiver", Attr(CallName("f"), "x"), "", false},
		{"constant", Int(1), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DottedName(tt.expr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAliasBound(t *testing.T) {
	assert.Equal(t, "json", Alias{Name: "json"}.Bound())
	assert.Equal(t, "np", Alias{Name: "numpy", AsName: "np"}.Bound())
}

func TestKinds(t *testing.T) {
	assert.Equal(t, "JoinedStr", (&FString{}).Kind())
	assert.Equal(t, "Lambda", (&OpaqueExpr{Name: "Lambda"}).Kind())
	assert.Equal(t, "With", (&OpaqueStmt{Name: "With"}).Kind())
	assert.Equal(t, "Try", (&Try{}).Kind())
	assert.True(t, IsStringConstant(Str("a")))
	assert.False(t, IsStringConstant(Int(1)))
	assert.Equal(t, "str", ConstStr.String())
}

func TestExprString(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"binop", Add(Ident("a"), Int(2)), "(a + 2)"},
		{"call with keyword", &Call{Func: Ident("f"), Args: []Expr{Str("x")}, Keywords: []*Keyword{{Name: "k", Value: Bool(true)}}}, `f("x", k=True)`},
		{"method", CallMethod(Ident("xs"), "append", Float(1)), "xs.append(1.0)"},
		{"single tuple", &Tuple{Elts: []Expr{Int(1)}}, "(1,)"},
		{"slice", &Subscript{Value: Ident("s"), Index: &Slice{Upper: Int(3)}}, "s[:3]"},
		{"unary not", &UnaryOp{Op: "not", Operand: Ident("x")}, "(not x)"},
		{"unary minus", &UnaryOp{Op: "-", Operand: Int(5)}, "(-5)"},
		{"compare chain", &Compare{Left: Ident("a"), Ops: []string{"<", "not in"}, Comparators: []Expr{Ident("b"), Ident("c")}}, "(a < b not in c)"},
		{"fstring", &FString{Parts: []FStringPart{{Literal: "n={"}, {Expr: Ident("n"), Spec: ".2f"}}}, `f"n={{{n:.2f}"`},
		{"opaque", &OpaqueExpr{Name: "Lambda"}, "<Lambda>"},
		{"none", None(), "None"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExprString(tt.expr))
		})
	}
}

func TestDump(t *testing.T) {
	mod := &Module{Body: []Stmt{
		&FunctionDef{
			Name:    "f",
			Params:  []*Param{{Name: "x", Annotation: Ident("int"), Default: Int(0)}},
			Returns: Ident("int"),
			Body: []Stmt{&If{
				Test:   Ident("x"),
				Body:   []Stmt{&Return{Value: Ident("x")}},
				Orelse: []Stmt{&If{Test: Ident("y"), Body: []Stmt{&Pass{}}, Orelse: []Stmt{&Return{}}}},
			}},
		},
		&Import{Names: []Alias{{Name: "numpy", AsName: "np"}}},
		&AugAssign{Target: Ident("n"), Op: "+", Value: Int(1)},
		&Try{
			Body: []Stmt{&Pass{}},
			Handlers: []*ExceptHandler{
				{Types: []Expr{Ident("ValueError")}, Name: "e"},
				{},
			},
			Finally: []Stmt{&Break{}},
		},
	}}
	want := "def f(x: int=0) -> int:\n" +
		"    if x:\n" +
		"        return x\n" +
		"    elif y:\n" +
		"        pass\n" +
		"    else:\n" +
		"        return\n" +
		"import numpy as np\n" +
		"n += 1\n" +
		"try:\n" +
		"    pass\n" +
		"except ValueError as e:\n" +
		"    pass\n" +
		"except:\n" +
		"    pass\n" +
		"finally:\n" +
		"    break\n"
	assert.Equal(t, want, Dump(mod))
}
