package codegen

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(name string, ann pyast.Expr) *pyast.Param {
	return &pyast.Param{Name: name, Annotation: ann}
}

func def(name string, params []*pyast.Param, returns pyast.Expr, body ...pyast.Stmt) *pyast.FunctionDef {
	return &pyast.FunctionDef{Name: name, Params: params, Returns: returns, Body: body}
}

func class(name string, bases []pyast.Expr, body ...pyast.Stmt) *pyast.ClassDef {
	return &pyast.ClassDef{Name: name, Bases: bases, Body: body}
}

func ret(v pyast.Expr) *pyast.Return { return &pyast.Return{Value: v} }

func setAttr(recv, attr string, v pyast.Expr) *pyast.Assign {
	return &pyast.Assign{Targets: []pyast.Expr{pyast.Attr(pyast.Ident(recv), attr)}, Value: v}
}

func printOf(args ...pyast.Expr) pyast.Stmt {
	return pyast.ExprOf(pyast.CallName("print", args...))
}

func superCall(method string, args ...pyast.Expr) *pyast.Call {
	return pyast.CallMethod(pyast.CallName("super"), method, args...)
}

func generate(t *testing.T, opts []Option, body ...pyast.Stmt) (*Result, error) {
	t.Helper()
	return NewGenerator(nil, opts...).Generate(&pyast.Module{Path: "test.py", Body: body})
}

func mustGenerate(t *testing.T, body ...pyast.Stmt) *Result {
	t.Helper()
	res, err := generate(t, nil, body...)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, res.Enters, res.Exits, "indentation must balance")
	return res
}

// animals is a two-level hierarchy where the child calls the parent through
// super() twice.
func animals() []pyast.Stmt {
	str := pyast.Ident("str")
	return []pyast.Stmt{
		class("Animal", nil,
			def("__init__", []*pyast.Param{param("self", nil), param("name", str)}, nil,
				setAttr("self", "name", pyast.Ident("name"))),
			def("speak", []*pyast.Param{param("self", nil)}, str,
				ret(pyast.Attr(pyast.Ident("self"), "name"))),
		),
		class("Dog", []pyast.Expr{pyast.Ident("Animal")},
			def("__init__", []*pyast.Param{param("self", nil), param("name", str)}, nil,
				pyast.ExprOf(superCall("__init__", pyast.Ident("name"))),
				setAttr("self", "tricks", pyast.Int(0))),
			def("speak", []*pyast.Param{param("self", nil)}, str,
				ret(superCall("speak"))),
		),
		pyast.AssignTo("d", pyast.CallName("Dog", pyast.Str("rex"))),
		printOf(pyast.CallMethod(pyast.Ident("d"), "speak")),
	}
}

func TestGenerateFunction(t *testing.T) {
	intAnn := pyast.Ident("int")
	res := mustGenerate(t,
		def("add", []*pyast.Param{param("a", intAnn), param("b", intAnn)}, intAnn,
			ret(pyast.Add(pyast.Ident("a"), pyast.Ident("b")))),
		printOf(pyast.CallName("add", pyast.Int(1), pyast.Int(2))),
	)

	assert.Contains(t, res.Source, "const std = @import(\"std\");\n")
	assert.Contains(t, res.Source, "fn pyPrint(comptime fmt: []const u8, args: anytype) void {")
	assert.Contains(t, res.Source, "fn add(a: i64, b: i64) i64 {\n    return (a + b);\n}")
	assert.Contains(t, res.Source, "pub fn main() void {\n    pyPrint(\"{d}\\n\", .{ add(1, 2) });\n}")
	assert.NotContains(t, res.Source, "arena")
	assert.NotContains(t, res.Source, "hashmap_helper")
	assert.True(t, res.Requirements.NeedsStd)
	assert.False(t, res.Requirements.NeedsAllocator)
}

func TestStringConcatNeedsAllocator(t *testing.T) {
	str := pyast.Ident("str")
	res := mustGenerate(t,
		def("greet", []*pyast.Param{param("name", str)}, str,
			ret(pyast.Add(pyast.Str("Hello, "), pyast.Ident("name")))),
		printOf(pyast.CallName("greet", pyast.Str("World"))),
	)

	assert.Contains(t, res.Source, "fn greet(allocator: std.mem.Allocator, name: []const u8) ![]const u8 {")
	assert.Contains(t, res.Source, `return try std.mem.concat(allocator, u8, &.{ "Hello, ", name });`)
	assert.Contains(t, res.Source, "pub fn main() !void {")
	assert.Contains(t, res.Source, "var arena = std.heap.ArenaAllocator.init(std.heap.page_allocator);")
	assert.Contains(t, res.Source, `try greet(allocator, "World")`)
	assert.True(t, res.Requirements.NeedsAllocator)
}

func TestAllocatorStrategy(t *testing.T) {
	body := []pyast.Stmt{
		pyast.AssignTo("s", pyast.Add(pyast.Str("a"), pyast.Str("b"))),
		printOf(pyast.Ident("s")),
	}
	res, err := generate(t, []Option{WithAllocator(GPAAllocator)}, body...)
	require.NoError(t, err)
	assert.Contains(t, res.Source, "var gpa = std.heap.GeneralPurposeAllocator(.{}){};")
	assert.Contains(t, res.Source, "defer _ = gpa.deinit();")
	assert.NotContains(t, res.Source, "ArenaAllocator")
}

func TestFStringAllocPrint(t *testing.T) {
	res := mustGenerate(t,
		pyast.AssignTo("name", pyast.Str("x")),
		pyast.AssignTo("n", pyast.Float(3.5)),
		printOf(&pyast.FString{Parts: []pyast.FStringPart{
			{Expr: pyast.Ident("name")},
			{Literal: " has {"},
			{Expr: pyast.Ident("n"), Spec: ".2f"},
		}}),
	)

	assert.Contains(t, res.Source, "const name: []const u8 = \"x\";")
	assert.Contains(t, res.Source, "const n: f64 = 3.5;")
	assert.Contains(t, res.Source, `try std.fmt.allocPrint(allocator, "{s} has {{{d:.2}", .{ name, n })`)
}

func TestLiteralFStringIsPlainString(t *testing.T) {
	res := mustGenerate(t, printOf(&pyast.FString{Parts: []pyast.FStringPart{{Literal: "plain"}}}))
	assert.Contains(t, res.Source, `pyPrint("{s}\n", .{ "plain" });`)
	assert.NotContains(t, res.Source, "allocPrint")
}

func TestDictLiteralNeedsHashmapHelper(t *testing.T) {
	counts := pyast.Ident("counts")
	res := mustGenerate(t,
		pyast.AssignTo("counts", &pyast.Dict{Keys: []pyast.Expr{pyast.Str("a")}, Values: []pyast.Expr{pyast.Int(1)}}),
		&pyast.Assign{Targets: []pyast.Expr{&pyast.Subscript{Value: counts, Index: pyast.Str("b")}}, Value: pyast.Int(2)},
		printOf(pyast.CallName("len", counts)),
	)

	assert.Contains(t, res.Source, "const hashmap_helper = @import(\"hashmap_helper\");")
	assert.Contains(t, res.Source, "var counts: hashmap_helper.StringHashMap(i64) = dict_1: {")
	assert.Contains(t, res.Source, "var dict_1_out = hashmap_helper.StringHashMap(i64).init(allocator);")
	assert.Contains(t, res.Source, `try dict_1_out.put("a", 1);`)
	assert.Contains(t, res.Source, `try counts.put("b", 2);`)
	assert.True(t, res.Requirements.NeedsHashmapHelper)
}

func TestListComprehension(t *testing.T) {
	x := pyast.Ident("x")
	res := mustGenerate(t,
		pyast.AssignTo("squares", &pyast.ListComp{
			Elt:        &pyast.BinOp{Left: x, Op: "*", Right: x},
			Generators: []*pyast.Comprehension{{Target: x, Iter: pyast.CallName("range", pyast.Int(5))}},
		}),
		printOf(pyast.CallName("len", pyast.Ident("squares"))),
	)

	assert.Contains(t, res.Source, "comp_1: {")
	assert.Contains(t, res.Source, "var comp_1_out = std.ArrayList(i64).init(allocator);")
	assert.Contains(t, res.Source, "while (x < 5) : (x += 1) {")
	assert.Contains(t, res.Source, "try comp_1_out.append((x * x));")
	assert.Contains(t, res.Source, "break :comp_1 comp_1_out;")
}

func TestRangeLoopAccumulates(t *testing.T) {
	total := pyast.Ident("total")
	res := mustGenerate(t,
		pyast.AssignTo("total", pyast.Int(0)),
		&pyast.For{Target: pyast.Ident("i"), Iter: pyast.CallName("range", pyast.Int(10)), Body: []pyast.Stmt{
			&pyast.AugAssign{Target: total, Op: "+", Value: pyast.Ident("i")},
		}},
		printOf(total),
	)

	assert.Contains(t, res.Source, "var total: i64 = 0;")
	assert.Contains(t, res.Source, "var i: i64 = 0;")
	assert.Contains(t, res.Source, "while (i < 10) : (i += 1) {")
	assert.Contains(t, res.Source, "total = (total + i);")
}

func TestBranchLocalsAreHoisted(t *testing.T) {
	res := mustGenerate(t,
		&pyast.If{
			Test:   pyast.Bool(true),
			Body:   []pyast.Stmt{pyast.AssignTo("y", pyast.Int(1))},
			Orelse: []pyast.Stmt{pyast.AssignTo("y", pyast.Int(2))},
		},
		printOf(pyast.Ident("y")),
	)

	assert.Contains(t, res.Source, "var y: i64 = undefined;\n    if (true) {\n        y = 1;\n    } else {\n        y = 2;\n    }")
}

func TestStringComparison(t *testing.T) {
	str := pyast.Ident("str")
	res := mustGenerate(t,
		def("is_admin", []*pyast.Param{param("name", str)}, pyast.Ident("bool"),
			ret(&pyast.Compare{Left: pyast.Ident("name"), Ops: []string{"=="}, Comparators: []pyast.Expr{pyast.Str("root")}})),
		printOf(pyast.CallName("is_admin", pyast.Str("bob"))),
	)
	assert.Contains(t, res.Source, `return std.mem.eql(u8, name, "root");`)
}

func TestSuperUsesEmbeddedParent(t *testing.T) {
	res := mustGenerate(t, animals()...)

	assert.Contains(t, res.Source, "const super_1_self = &self.base;")
	assert.Contains(t, res.Source, "break :super_1 Animal.setup(super_1_self, name);")
	assert.Contains(t, res.Source, "return super_2: {")
	assert.Contains(t, res.Source, "break :super_2 Animal.speak(super_2_self);")
	assert.NotContains(t, res.Source, "@ptrCast")
}

// section returns src from the line holding head up to the brace that closes
// it at the same indentation.
func section(t *testing.T, src, head string) string {
	t.Helper()
	start := strings.Index(src, head)
	require.GreaterOrEqual(t, start, 0, "missing %q", head)
	indent := src[strings.LastIndex(src[:start], "\n")+1 : start]
	end := strings.Index(src[start:], "\n"+indent+"}\n")
	require.GreaterOrEqual(t, end, 0, "unclosed %q", head)
	return src[start : start+end]
}

func TestSuperCallsGetDistinctLabels(t *testing.T) {
	intAnn := pyast.Ident("int")
	res := mustGenerate(t,
		class("Counter", nil,
			def("get", []*pyast.Param{param("self", nil)}, intAnn, ret(pyast.Int(1)))),
		class("Twice", []pyast.Expr{pyast.Ident("Counter")},
			def("get", []*pyast.Param{param("self", nil)}, intAnn,
				ret(pyast.Add(superCall("get"), superCall("get"))))),
		pyast.AssignTo("c", pyast.CallName("Twice")),
		printOf(pyast.CallMethod(pyast.Ident("c"), "get")),
	)

	body := section(t, res.Source, "pub fn get(self: *Twice) i64 {")
	labels := regexp.MustCompile(`super_(\d+): \{`).FindAllStringSubmatch(body, -1)
	require.Len(t, labels, 2)
	first, second := labels[0][1], labels[1][1]
	assert.NotEqual(t, first, second)
	for _, n := range []string{first, second} {
		assert.Contains(t, body, "const super_"+n+"_self = &self.base;")
		assert.Contains(t, body, "break :super_"+n+" Counter.get(super_"+n+"_self);")
	}
}

func TestClassLayout(t *testing.T) {
	res := mustGenerate(t, animals()...)

	assert.Contains(t, res.Source, "const Dog = struct {\n    base: Animal,\n    tricks: i64,\n")
	assert.Contains(t, res.Source, "const Animal = struct {\n    name: []const u8,\n")
	assert.Contains(t, res.Source, "pub fn init(allocator: std.mem.Allocator, name: []const u8) !*Dog {")
	assert.Contains(t, res.Source, "const self = try allocator.create(Dog);")
	assert.Contains(t, res.Source, "pub fn deinit(self: *Dog, allocator: std.mem.Allocator) void {\n        allocator.destroy(self);\n    }")
	assert.Contains(t, res.Source, "pub fn deinit(self: *Animal, allocator: std.mem.Allocator) void {")
	assert.Contains(t, res.Source, "const d: *Dog = try Dog.init(allocator, \"rex\");")
	assert.Contains(t, res.Source, "pyPrint(\"{s}\\n\", .{ d.speak() });")

	mod := &pyast.Module{Body: animals()}
	m := newModuleGen(NewGenerator(nil), mod)
	require.NoError(t, m.declare())
	require.NoError(t, m.check())
	animal, dog := m.classes["Animal"], m.classes["Dog"]
	require.Len(t, dog.fields, 2)
	assert.Same(t, animal.fields[0], dog.fields[0], "parent layout is a prefix")
	assert.Equal(t, "tricks", dog.ownFields()[0].name)
}

func TestInheritedMethodsForward(t *testing.T) {
	res := mustGenerate(t,
		class("Base", nil,
			def("hello", []*pyast.Param{param("self", nil)}, pyast.Ident("int"), ret(pyast.Int(1)))),
		class("Child", []pyast.Expr{pyast.Ident("Base")}, &pyast.Pass{}),
		pyast.AssignTo("c", pyast.CallName("Child")),
		printOf(pyast.CallMethod(pyast.Ident("c"), "hello")),
	)
	assert.Contains(t, res.Source, "pub fn hello(self: *Child) i64 {\n        return Base.hello(&self.base);\n    }")
}

func TestInheritedFieldsGoThroughBase(t *testing.T) {
	str := pyast.Ident("str")
	res := mustGenerate(t,
		class("Named", nil,
			def("__init__", []*pyast.Param{param("self", nil), param("name", str)}, nil,
				setAttr("self", "name", pyast.Ident("name")))),
		class("Tagged", []pyast.Expr{pyast.Ident("Named")},
			def("label", []*pyast.Param{param("self", nil)}, str,
				ret(pyast.Attr(pyast.Ident("self"), "name")))),
		class("Deep", []pyast.Expr{pyast.Ident("Tagged")}, &pyast.Pass{}),
		pyast.AssignTo("d", pyast.CallName("Deep", pyast.Str("x"))),
		printOf(pyast.Attr(pyast.Ident("d"), "name")),
	)

	assert.Contains(t, res.Source, "const Deep = struct {\n    base: Tagged,\n")
	assert.Contains(t, res.Source, "return self.base.name;")
	assert.Contains(t, res.Source, "self.name = name;")
	assert.Contains(t, res.Source, "d.base.base.name")
	assert.NotContains(t, res.Source, "@ptrCast")
}

func TestReservedClassNames(t *testing.T) {
	tests := []struct {
		name string
		body []pyast.Stmt
		want string
	}{
		{
			name: "base attribute in a subclass",
			body: []pyast.Stmt{
				class("A", nil, &pyast.Pass{}),
				class("B", []pyast.Expr{pyast.Ident("A")},
					def("__init__", []*pyast.Param{param("self", nil)}, nil, setAttr("self", "base", pyast.Int(1)))),
			},
			want: "attribute base is reserved",
		},
		{
			name: "deinit method",
			body: []pyast.Stmt{
				class("A", nil, def("deinit", []*pyast.Param{param("self", nil)}, nil, &pyast.Pass{})),
			},
			want: "method name deinit is reserved",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := generate(t, nil, tt.body...)
			assert.Nil(t, res)
			var semantic *pyerr.SemanticError
			require.True(t, errors.As(err, &semantic))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMultipleInheritanceRejected(t *testing.T) {
	res, err := generate(t, nil,
		class("A", nil, &pyast.Pass{}),
		class("B", nil, &pyast.Pass{}),
		class("C", []pyast.Expr{pyast.Ident("A"), pyast.Ident("B")}, &pyast.Pass{}),
	)
	assert.Nil(t, res)
	var semantic *pyerr.SemanticError
	require.True(t, errors.As(err, &semantic))
}

func TestUnresolvedAttributeCall(t *testing.T) {
	res, err := generate(t, nil, pyast.ExprOf(pyast.CallMethod(pyast.Ident("foo"), "bar")))
	assert.Nil(t, res)
	var unresolved *pyerr.UnresolvedSymbolError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "foo.bar", unresolved.Symbol)
}

func TestUserArityChecked(t *testing.T) {
	res, err := generate(t, nil,
		def("one", []*pyast.Param{param("a", pyast.Ident("int"))}, nil, &pyast.Pass{}),
		pyast.ExprOf(pyast.CallName("one", pyast.Int(1), pyast.Int(2))),
	)
	assert.Nil(t, res)
	var arity *pyerr.ArityError
	require.True(t, errors.As(err, &arity))
	assert.Equal(t, 2, arity.Got)
}

func TestJSONRequirements(t *testing.T) {
	res, err := generate(t, []Option{WithImportPath("json", "runtime/json.zig")},
		&pyast.Import{Names: []pyast.Alias{{Name: "json"}}},
		pyast.AssignTo("raw", pyast.Str("{}")),
		pyast.AssignTo("data", pyast.CallOf(pyast.Attr(pyast.Ident("json"), "loads"), pyast.Ident("raw"))),
		printOf(pyast.Ident("data")),
	)
	require.NoError(t, err)
	assert.True(t, res.Requirements.NeedsJSON)
	assert.True(t, res.Requirements.NeedsAllocator)
	assert.Contains(t, res.Source, `const json = @import("runtime/json.zig");`)
	assert.Contains(t, res.Source, "const data = (try json.parse(allocator, raw)).value;")
}

func TestPreambleGating(t *testing.T) {
	res := mustGenerate(t, pyast.AssignTo("x", pyast.Add(pyast.Int(1), pyast.Int(2))))

	assert.Equal(t, "const std = @import(\"std\");\n\npub fn main() void {\n    const x: i64 = (1 + 2);\n    _ = x;\n}\n", res.Source)
	assert.True(t, res.Requirements.IsEmpty())
}

func TestFormatCanBeDisabled(t *testing.T) {
	res, err := generate(t, []Option{WithFormat(false), WithIndent("\t")}, printOf(pyast.Int(1)))
	require.NoError(t, err)
	assert.Contains(t, res.Source, "\tpyPrint(\"{d}\\n\", .{ 1 });\n")
	assert.True(t, strings.HasSuffix(res.Source, "}\n"))
}

func TestGenerateNilModule(t *testing.T) {
	res, err := NewGenerator(nil).Generate(nil)
	assert.Nil(t, res)
	assert.Error(t, err)
}

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int", "int"},
		{"list[int]", "list[int]"},
		{"dict[str, list[float]]", "dict[str, list[float]]"},
		{"typing.List[str]", "List[str]"},
		{"int | None", "Optional[int]"},
		{"None | str", "Optional[str]"},
		{"Optional[Dog]", "Optional[Dog]"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAnnotation(tt.in).String())
		})
	}
}

func TestAnnotationOf(t *testing.T) {
	sub := &pyast.Subscript{
		Value: pyast.Ident("dict"),
		Index: &pyast.Tuple{Elts: []pyast.Expr{pyast.Ident("str"), pyast.Ident("int")}},
	}
	ann := AnnotationOf(sub)
	assert.Equal(t, "dict[str, int]", ann.String())
	assert.Equal(t, "int", ann.Value().String())

	opt := AnnotationOf(&pyast.BinOp{Left: pyast.Ident("str"), Op: "|", Right: pyast.None()})
	assert.Equal(t, "Optional[str]", opt.String())
	assert.True(t, AnnotationOf(nil).IsZero())
}

func TestZigIdent(t *testing.T) {
	assert.Equal(t, `@"type"`, zigIdent("type"))
	assert.Equal(t, "count", zigIdent("count"))
	assert.Equal(t, `"a\"b\n"`, zigString("a\"b\n"))
	assert.Equal(t, "1.0", floatLiteral(1))
	assert.Equal(t, "2.5", floatLiteral(2.5))
}

func TestGeneratedNamesAvoidUserNames(t *testing.T) {
	x := pyast.Ident("x")
	res := mustGenerate(t,
		def("f", nil, nil,
			pyast.AssignTo("x_1", pyast.Int(10)),
			pyast.AssignTo("x_2", pyast.Int(20)),
			pyast.AssignTo("x", pyast.Int(1)),
			pyast.AssignTo("ys", &pyast.ListComp{
				Elt:        &pyast.BinOp{Left: x, Op: "*", Right: pyast.Int(2)},
				Generators: []*pyast.Comprehension{{Target: x, Iter: pyast.CallName("range", pyast.Int(3))}},
			}),
			printOf(pyast.Ident("x_1"), pyast.Ident("x_2"), x, pyast.CallName("len", pyast.Ident("ys")))),
		pyast.ExprOf(pyast.CallName("f")),
		pyast.AssignTo("list_1", pyast.Int(5)),
		pyast.AssignTo("xs", &pyast.List{Elts: []pyast.Expr{pyast.Ident("list_1"), pyast.Int(2)}}),
		pyast.ExprOf(pyast.CallMethod(pyast.Ident("xs"), "append", pyast.Int(3))),
		printOf(pyast.CallName("len", pyast.Ident("xs"))),
	)

	assert.Equal(t, 1, strings.Count(res.Source, " x_1: i64 = "))
	assert.Equal(t, 1, strings.Count(res.Source, " x_2: i64 = "))
	loopVar := regexp.MustCompile(`var (x_\d+): i64 = 0;\n\s*while \((x_\d+) < 3\)`).FindStringSubmatch(res.Source)
	require.Len(t, loopVar, 3)
	assert.Equal(t, loopVar[1], loopVar[2])
	assert.NotContains(t, []string{"x_1", "x_2"}, loopVar[1])

	assert.NotContains(t, res.Source, "list_1: {")
	assert.Regexp(t, `= list_\d+: \{`, res.Source)
	assert.Contains(t, res.Source, "list_1: i64 = 5;")
}

func TestStringLiteralsDoNotMakeFunctionsFallible(t *testing.T) {
	str := pyast.Ident("str")
	res := mustGenerate(t,
		def("hint", nil, str, ret(pyast.Str("try again"))),
		printOf(pyast.CallName("hint")),
	)

	assert.Contains(t, res.Source, "fn hint() []const u8 {\n    return \"try again\";\n}")
	assert.Contains(t, res.Source, "pub fn main() void {")
	assert.Contains(t, res.Source, `pyPrint("{s}\n", .{ hint() });`)
}
