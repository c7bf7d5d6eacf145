package frontend

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// opaqueNames maps tree-sitter node types the compiler does not model to the
// names used in diagnostics.
var opaqueNames = map[string]string{
	"with_statement":     "With",
	"raise_statement":    "Raise",
	"global_statement":   "Global",
	"nonlocal_statement": "Nonlocal",
	"delete_statement":   "Delete",
	"match_statement":    "Match",
	"print_statement":    "Print",
	"exec_statement":     "Exec",
	"lambda":             "Lambda",
	"await":              "Await",
	"yield":              "Yield",
	"set":                "Set",
	"set_comprehension":  "SetComp",
	"list_splat":         "Starred",
	"dictionary_splat":   "Starred",
	"named_expression":   "NamedExpr",
	"ellipsis":           "Ellipsis",
}

// converter lowers one tree-sitter tree into pyast.
type converter struct {
	src  []byte
	path string
}

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func pos(n *sitter.Node) pyast.Position { return pyast.Position{Line: line(n)} }

// named returns the named children of n without comments.
func named(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" || child.Type() == "line_continuation" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func opaqueName(kind string) string {
	if name, ok := opaqueNames[kind]; ok {
		return name
	}
	var b strings.Builder
	for _, part := range strings.Split(strings.TrimSuffix(kind, "_statement"), "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func (c *converter) errorf(n *sitter.Node, format string, args ...any) error {
	return pyerr.NewSemanticErrorAt(line(n), fmt.Sprintf(format, args...))
}

// block lowers the statements of a module or block node.
func (c *converter) block(n *sitter.Node) ([]pyast.Stmt, error) {
	var out []pyast.Stmt
	for _, child := range named(n) {
		s, err := c.stmt(child)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// stmt lowers a single statement. Bare annotations return nil.
func (c *converter) stmt(n *sitter.Node) (pyast.Stmt, error) {
	p := pos(n)
	switch n.Type() {
	case "expression_statement":
		return c.exprStmt(n)
	case "return_statement":
		r := &pyast.Return{Position: p}
		if kids := named(n); len(kids) > 0 {
			v, err := c.expr(kids[0])
			if err != nil {
				return nil, err
			}
			r.Value = v
		}
		return r, nil
	case "pass_statement":
		return &pyast.Pass{Position: p}, nil
	case "break_statement":
		return &pyast.Break{Position: p}, nil
	case "continue_statement":
		return &pyast.Continue{Position: p}, nil
	case "if_statement":
		return c.ifStmt(n)
	case "for_statement":
		return c.forStmt(n)
	case "while_statement":
		if n.ChildByFieldName("alternative") != nil {
			return &pyast.OpaqueStmt{Position: p, Name: "WhileElse"}, nil
		}
		test, err := c.expr(n.ChildByFieldName("condition"))
		if err != nil {
			return nil, err
		}
		body, err := c.block(n.ChildByFieldName("body"))
		if err != nil {
			return nil, err
		}
		return &pyast.While{Position: p, Test: test, Body: body}, nil
	case "try_statement":
		return c.tryStmt(n)
	case "function_definition":
		return c.function(n, nil)
	case "decorated_definition":
		return c.decorated(n)
	case "class_definition":
		return c.class(n)
	case "import_statement":
		return &pyast.Import{Position: p, Names: c.aliases(named(n))}, nil
	case "import_from_statement", "future_import_statement":
		return c.importFrom(n), nil
	case "assert_statement":
		kids := named(n)
		a := &pyast.Assert{Position: p}
		var err error
		if a.Test, err = c.expr(kids[0]); err != nil {
			return nil, err
		}
		if len(kids) > 1 {
			if a.Msg, err = c.expr(kids[1]); err != nil {
				return nil, err
			}
		}
		return a, nil
	}
	return &pyast.OpaqueStmt{Position: p, Name: opaqueName(n.Type())}, nil
}

func (c *converter) exprStmt(n *sitter.Node) (pyast.Stmt, error) {
	kids := named(n)
	if len(kids) == 1 {
		switch kids[0].Type() {
		case "assignment":
			return c.assign(kids[0])
		case "augmented_assignment":
			return c.augAssign(kids[0])
		}
	}
	var value pyast.Expr
	if len(kids) == 1 {
		v, err := c.expr(kids[0])
		if err != nil {
			return nil, err
		}
		value = v
	} else {
		elts, err := c.exprs(kids)
		if err != nil {
			return nil, err
		}
		value = &pyast.Tuple{Position: pos(n), Elts: elts}
	}
	return &pyast.ExprStmt{Position: pos(n), Value: value}, nil
}

// assign lowers plain, chained and annotated assignment. `a = b = v` nests
// assignments on the right-hand side.
func (c *converter) assign(n *sitter.Node) (pyast.Stmt, error) {
	a := &pyast.Assign{Position: pos(n)}
	for cur := n; ; {
		target, err := c.expr(cur.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		a.Targets = append(a.Targets, target)
		if typ := cur.ChildByFieldName("type"); typ != nil && a.Annotation == nil {
			if a.Annotation, err = c.expr(typ); err != nil {
				return nil, err
			}
		}
		right := cur.ChildByFieldName("right")
		if right == nil {
			return nil, nil
		}
		switch right.Type() {
		case "assignment":
			cur = right
			continue
		case "augmented_assignment":
			return nil, c.errorf(right, "augmented assignment cannot be chained")
		}
		if a.Value, err = c.expr(right); err != nil {
			return nil, err
		}
		return a, nil
	}
}

func (c *converter) augAssign(n *sitter.Node) (pyast.Stmt, error) {
	target, err := c.expr(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}
	value, err := c.expr(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}
	op := strings.TrimSuffix(c.text(n.ChildByFieldName("operator")), "=")
	return &pyast.AugAssign{Position: pos(n), Target: target, Op: op, Value: value}, nil
}

// ifStmt folds elif clauses into nested If nodes in Orelse.
func (c *converter) ifStmt(n *sitter.Node) (pyast.Stmt, error) {
	root, err := c.branch(n, "consequence")
	if err != nil {
		return nil, err
	}
	cur := root
	for _, alt := range named(n) {
		switch alt.Type() {
		case "elif_clause":
			next, err := c.branch(alt, "consequence")
			if err != nil {
				return nil, err
			}
			cur.Orelse = []pyast.Stmt{next}
			cur = next
		case "else_clause":
			if cur.Orelse, err = c.block(alt.ChildByFieldName("body")); err != nil {
				return nil, err
			}
		}
	}
	return root, nil
}

func (c *converter) branch(n *sitter.Node, bodyField string) (*pyast.If, error) {
	test, err := c.expr(n.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	body, err := c.block(n.ChildByFieldName(bodyField))
	if err != nil {
		return nil, err
	}
	return &pyast.If{Position: pos(n), Test: test, Body: body}, nil
}

func (c *converter) forStmt(n *sitter.Node) (pyast.Stmt, error) {
	p := pos(n)
	if first := n.Child(0); first != nil && first.Type() == "async" {
		return &pyast.OpaqueStmt{Position: p, Name: "AsyncFor"}, nil
	}
	if n.ChildByFieldName("alternative") != nil {
		return &pyast.OpaqueStmt{Position: p, Name: "ForElse"}, nil
	}
	target, err := c.expr(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}
	iter, err := c.expr(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}
	body, err := c.block(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	return &pyast.For{Position: p, Target: target, Iter: iter, Body: body}, nil
}

func (c *converter) decorated(n *sitter.Node) (pyast.Stmt, error) {
	var decorators []pyast.Expr
	for _, child := range named(n) {
		if child.Type() != "decorator" {
			continue
		}
		kids := named(child)
		if len(kids) == 0 {
			continue
		}
		d, err := c.expr(kids[0])
		if err != nil {
			return nil, err
		}
		decorators = append(decorators, d)
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return nil, c.errorf(n, "decorator without definition")
	}
	if def.Type() == "class_definition" {
		return &pyast.OpaqueStmt{Position: pos(def), Name: "DecoratedClass"}, nil
	}
	return c.function(def, decorators)
}

func (c *converter) function(n *sitter.Node, decorators []pyast.Expr) (pyast.Stmt, error) {
	def := &pyast.FunctionDef{
		Position:   pos(n),
		Name:       c.text(n.ChildByFieldName("name")),
		Decorators: decorators,
	}
	if first := n.Child(0); first != nil && first.Type() == "async" {
		def.IsAsync = true
	}
	var err error
	if def.Params, err = c.params(n.ChildByFieldName("parameters")); err != nil {
		return nil, err
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		if def.Returns, err = c.expr(rt); err != nil {
			return nil, err
		}
	}
	if def.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	return def, nil
}

func (c *converter) params(n *sitter.Node) ([]*pyast.Param, error) {
	var out []*pyast.Param
	for _, p := range named(n) {
		param := &pyast.Param{}
		var err error
		switch p.Type() {
		case "identifier":
			param.Name = c.text(p)
		case "typed_parameter":
			kids := named(p)
			if len(kids) == 0 || kids[0].Type() != "identifier" {
				return nil, c.errorf(p, "variadic parameters are not supported")
			}
			param.Name = c.text(kids[0])
			if param.Annotation, err = c.expr(p.ChildByFieldName("type")); err != nil {
				return nil, err
			}
		case "default_parameter", "typed_default_parameter":
			param.Name = c.text(p.ChildByFieldName("name"))
			if typ := p.ChildByFieldName("type"); typ != nil {
				if param.Annotation, err = c.expr(typ); err != nil {
					return nil, err
				}
			}
			if param.Default, err = c.expr(p.ChildByFieldName("value")); err != nil {
				return nil, err
			}
		case "keyword_separator", "positional_separator":
			continue
		default:
			return nil, c.errorf(p, "variadic parameters are not supported")
		}
		out = append(out, param)
	}
	return out, nil
}

func (c *converter) class(n *sitter.Node) (pyast.Stmt, error) {
	cls := &pyast.ClassDef{Position: pos(n), Name: c.text(n.ChildByFieldName("name"))}
	for _, base := range named(n.ChildByFieldName("superclasses")) {
		if base.Type() == "keyword_argument" {
			return nil, c.errorf(base, "class keyword arguments are not supported")
		}
		b, err := c.expr(base)
		if err != nil {
			return nil, err
		}
		cls.Bases = append(cls.Bases, b)
	}
	body, err := c.block(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	cls.Body = body
	return cls, nil
}

func (c *converter) aliases(nodes []*sitter.Node) []pyast.Alias {
	var out []pyast.Alias
	for _, n := range nodes {
		switch n.Type() {
		case "dotted_name", "identifier":
			out = append(out, pyast.Alias{Name: c.text(n)})
		case "aliased_import":
			out = append(out, pyast.Alias{
				Name:   c.text(n.ChildByFieldName("name")),
				AsName: c.text(n.ChildByFieldName("alias")),
			})
		case "wildcard_import":
			out = append(out, pyast.Alias{Name: "*"})
		}
	}
	return out
}

func (c *converter) importFrom(n *sitter.Node) pyast.Stmt {
	imp := &pyast.ImportFrom{Position: pos(n), Module: "__future__"}
	kids := named(n)
	if mod := n.ChildByFieldName("module_name"); mod != nil {
		imp.Module = c.text(mod)
		var rest []*sitter.Node
		for _, k := range kids {
			if k.StartByte() != mod.StartByte() {
				rest = append(rest, k)
			}
		}
		kids = rest
	}
	imp.Names = c.aliases(kids)
	return imp
}

// ---- expressions ----

func (c *converter) exprs(nodes []*sitter.Node) ([]pyast.Expr, error) {
	out := make([]pyast.Expr, 0, len(nodes))
	for _, n := range nodes {
		e, err := c.expr(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *converter) expr(n *sitter.Node) (pyast.Expr, error) {
	if n == nil {
		return nil, pyerr.NewSemanticError("missing expression")
	}
	p := pos(n)
	switch n.Type() {
	case "identifier":
		return &pyast.Name{Position: p, ID: c.text(n)}, nil
	case "integer":
		return c.integer(n)
	case "float":
		return c.float(n)
	case "true", "false":
		return &pyast.Constant{Position: p, Value: n.Type() == "true", Type: pyast.ConstBool}, nil
	case "none":
		return &pyast.Constant{Position: p, Type: pyast.ConstNone}, nil
	case "string":
		return c.str(n)
	case "concatenated_string":
		return c.concatenated(n)
	case "type", "parenthesized_expression":
		kids := named(n)
		if len(kids) != 1 {
			return nil, c.errorf(n, "unexpected %s", n.Type())
		}
		return c.expr(kids[0])
	case "binary_operator":
		return c.binOp(n)
	case "boolean_operator":
		return c.boolOp(n)
	case "not_operator":
		operand, err := c.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return &pyast.UnaryOp{Position: p, Op: "not", Operand: operand}, nil
	case "unary_operator":
		operand, err := c.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return &pyast.UnaryOp{Position: p, Op: c.text(n.ChildByFieldName("operator")), Operand: operand}, nil
	case "comparison_operator":
		return c.compare(n)
	case "call":
		return c.call(n)
	case "attribute":
		value, err := c.expr(n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		return &pyast.Attribute{Position: p, Value: value, Attr: c.text(n.ChildByFieldName("attribute"))}, nil
	case "subscript":
		return c.subscript(n)
	case "slice":
		return c.slice(n)
	case "list", "list_pattern":
		elts, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		return &pyast.List{Position: p, Elts: elts}, nil
	case "tuple", "expression_list", "pattern_list", "tuple_pattern":
		elts, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		return &pyast.Tuple{Position: p, Elts: elts}, nil
	case "dictionary":
		return c.dict(n)
	case "list_comprehension", "generator_expression":
		return c.listComp(n)
	case "dictionary_comprehension":
		return c.dictComp(n)
	case "conditional_expression":
		kids, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		if len(kids) != 3 {
			return nil, c.errorf(n, "malformed conditional expression")
		}
		return &pyast.IfExp{Position: p, Body: kids[0], Test: kids[1], Orelse: kids[2]}, nil
	case "generic_type":
		return c.genericType(n)
	case "union_type":
		kids, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		if len(kids) != 2 {
			return nil, c.errorf(n, "malformed union type")
		}
		return &pyast.BinOp{Position: p, Left: kids[0], Op: "|", Right: kids[1]}, nil
	case "member_type":
		kids := named(n)
		if len(kids) != 2 {
			return nil, c.errorf(n, "malformed type")
		}
		value, err := c.expr(kids[0])
		if err != nil {
			return nil, err
		}
		return &pyast.Attribute{Position: p, Value: value, Attr: c.text(kids[1])}, nil
	case "keyword_argument":
		return nil, c.errorf(n, "keyword argument outside a call")
	}
	return &pyast.OpaqueExpr{Position: p, Name: opaqueName(n.Type())}, nil
}

func (c *converter) integer(n *sitter.Node) (pyast.Expr, error) {
	text := strings.ToLower(c.text(n))
	if strings.HasSuffix(text, "j") {
		return &pyast.OpaqueExpr{Position: pos(n), Name: "Complex"}, nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64)
	if err != nil {
		return nil, c.errorf(n, "integer literal %s out of range", text)
	}
	return &pyast.Constant{Position: pos(n), Value: v, Type: pyast.ConstInt}, nil
}

func (c *converter) float(n *sitter.Node) (pyast.Expr, error) {
	text := strings.ToLower(c.text(n))
	if strings.HasSuffix(text, "j") {
		return &pyast.OpaqueExpr{Position: pos(n), Name: "Complex"}, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return nil, c.errorf(n, "invalid float literal %s", text)
	}
	return &pyast.Constant{Position: pos(n), Value: v, Type: pyast.ConstFloat}, nil
}

func (c *converter) binOp(n *sitter.Node) (pyast.Expr, error) {
	left, err := c.expr(n.ChildByFieldName("left"))
	if err != nil {
		return nil, err
	}
	right, err := c.expr(n.ChildByFieldName("right"))
	if err != nil {
		return nil, err
	}
	op := c.text(n.ChildByFieldName("operator"))
	return &pyast.BinOp{Position: pos(n), Left: left, Op: op, Right: right}, nil
}

// boolOp flattens `a and b and c` into one node.
func (c *converter) boolOp(n *sitter.Node) (pyast.Expr, error) {
	op := c.text(n.ChildByFieldName("operator"))
	out := &pyast.BoolOp{Position: pos(n), Op: op}
	for _, side := range []*sitter.Node{n.ChildByFieldName("left"), n.ChildByFieldName("right")} {
		e, err := c.expr(side)
		if err != nil {
			return nil, err
		}
		if inner, ok := e.(*pyast.BoolOp); ok && inner.Op == op && side.Type() == "boolean_operator" {
			out.Values = append(out.Values, inner.Values...)
			continue
		}
		out.Values = append(out.Values, e)
	}
	return out, nil
}

// compare collects operands and operators of a chained comparison. The
// two-word operators arrive as separate tokens in some grammar versions.
func (c *converter) compare(n *sitter.Node) (pyast.Expr, error) {
	out := &pyast.Compare{Position: pos(n)}
	lastOp := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		if child.IsNamed() {
			e, err := c.expr(child)
			if err != nil {
				return nil, err
			}
			if out.Left == nil {
				out.Left = e
			} else {
				out.Comparators = append(out.Comparators, e)
			}
			lastOp = false
			continue
		}
		op := strings.Join(strings.Fields(c.text(child)), " ")
		if lastOp {
			prev := out.Ops[len(out.Ops)-1]
			out.Ops[len(out.Ops)-1] = prev + " " + op
			continue
		}
		out.Ops = append(out.Ops, op)
		lastOp = true
	}
	if out.Left == nil || len(out.Ops) != len(out.Comparators) {
		return nil, c.errorf(n, "malformed comparison")
	}
	return out, nil
}

func (c *converter) call(n *sitter.Node) (pyast.Expr, error) {
	fn, err := c.expr(n.ChildByFieldName("function"))
	if err != nil {
		return nil, err
	}
	call := &pyast.Call{Position: pos(n), Func: fn}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call, nil
	}
	if args.Type() == "generator_expression" {
		gen, err := c.listComp(args)
		if err != nil {
			return nil, err
		}
		call.Args = []pyast.Expr{gen}
		return call, nil
	}
	for _, a := range named(args) {
		if a.Type() == "keyword_argument" {
			value, err := c.expr(a.ChildByFieldName("value"))
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, &pyast.Keyword{
				Name:  c.text(a.ChildByFieldName("name")),
				Value: value,
			})
			continue
		}
		e, err := c.expr(a)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, e)
	}
	return call, nil
}

func (c *converter) subscript(n *sitter.Node) (pyast.Expr, error) {
	value, err := c.expr(n.ChildByFieldName("value"))
	if err != nil {
		return nil, err
	}
	kids := named(n)
	if len(kids) < 2 {
		return nil, c.errorf(n, "empty subscript")
	}
	idx, err := c.exprs(kids[1:])
	if err != nil {
		return nil, err
	}
	out := &pyast.Subscript{Position: pos(n), Value: value, Index: idx[0]}
	if len(idx) > 1 {
		out.Index = &pyast.Tuple{Position: pos(kids[1]), Elts: idx}
	}
	return out, nil
}

// slice reads `lower:upper:step`; colons separate the optional parts.
func (c *converter) slice(n *sitter.Node) (pyast.Expr, error) {
	var parts [3]pyast.Expr
	idx := 0
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		if !child.IsNamed() {
			if c.text(child) == ":" && idx < 2 {
				idx++
			}
			continue
		}
		e, err := c.expr(child)
		if err != nil {
			return nil, err
		}
		parts[idx] = e
	}
	return &pyast.Slice{Position: pos(n), Lower: parts[0], Upper: parts[1], Step: parts[2]}, nil
}

func (c *converter) dict(n *sitter.Node) (pyast.Expr, error) {
	d := &pyast.Dict{Position: pos(n)}
	for _, child := range named(n) {
		if child.Type() != "pair" {
			value, err := c.expr(child)
			if err != nil {
				return nil, err
			}
			d.Keys = append(d.Keys, nil)
			d.Values = append(d.Values, value)
			continue
		}
		key, err := c.expr(child.ChildByFieldName("key"))
		if err != nil {
			return nil, err
		}
		value, err := c.expr(child.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		d.Keys = append(d.Keys, key)
		d.Values = append(d.Values, value)
	}
	return d, nil
}

// generators reads the for/if clauses of a comprehension. An if clause
// filters the generator before it.
func (c *converter) generators(n *sitter.Node) ([]*pyast.Comprehension, error) {
	var out []*pyast.Comprehension
	for _, clause := range named(n) {
		switch clause.Type() {
		case "for_in_clause":
			if first := clause.Child(0); first != nil && first.Type() == "async" {
				return nil, c.errorf(clause, "async comprehensions are not supported")
			}
			target, err := c.expr(clause.ChildByFieldName("left"))
			if err != nil {
				return nil, err
			}
			iter, err := c.expr(clause.ChildByFieldName("right"))
			if err != nil {
				return nil, err
			}
			out = append(out, &pyast.Comprehension{Target: target, Iter: iter})
		case "if_clause":
			if len(out) == 0 {
				return nil, c.errorf(clause, "if clause before for clause")
			}
			kids := named(clause)
			if len(kids) == 0 {
				return nil, c.errorf(clause, "empty if clause")
			}
			cond, err := c.expr(kids[0])
			if err != nil {
				return nil, err
			}
			last := out[len(out)-1]
			last.Ifs = append(last.Ifs, cond)
		}
	}
	if len(out) == 0 {
		return nil, c.errorf(n, "comprehension without for clause")
	}
	return out, nil
}

func (c *converter) listComp(n *sitter.Node) (pyast.Expr, error) {
	elt, err := c.expr(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	gens, err := c.generators(n)
	if err != nil {
		return nil, err
	}
	return &pyast.ListComp{Position: pos(n), Elt: elt, Generators: gens}, nil
}

func (c *converter) dictComp(n *sitter.Node) (pyast.Expr, error) {
	body := n.ChildByFieldName("body")
	if body == nil || body.Type() != "pair" {
		return nil, c.errorf(n, "malformed dict comprehension")
	}
	key, err := c.expr(body.ChildByFieldName("key"))
	if err != nil {
		return nil, err
	}
	value, err := c.expr(body.ChildByFieldName("value"))
	if err != nil {
		return nil, err
	}
	gens, err := c.generators(n)
	if err != nil {
		return nil, err
	}
	return &pyast.DictComp{Position: pos(n), Key: key, Value: value, Generators: gens}, nil
}

// genericType lowers `list[int]` in annotation position into a subscript.
func (c *converter) genericType(n *sitter.Node) (pyast.Expr, error) {
	kids := named(n)
	if len(kids) != 2 {
		return nil, c.errorf(n, "malformed generic type")
	}
	base, err := c.expr(kids[0])
	if err != nil {
		return nil, err
	}
	params, err := c.exprs(named(kids[1]))
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return base, nil
	}
	out := &pyast.Subscript{Position: pos(n), Value: base, Index: params[0]}
	if len(params) > 1 {
		out.Index = &pyast.Tuple{Position: pos(kids[1]), Elts: params}
	}
	return out, nil
}

// tryStmt lowers try/except/else/finally. `except*` groups stay opaque.
func (c *converter) tryStmt(n *sitter.Node) (pyast.Stmt, error) {
	body, err := c.block(n.ChildByFieldName("body"))
	if err != nil {
		return nil, err
	}
	t := &pyast.Try{Position: pos(n), Body: body}
	for _, child := range named(n) {
		switch child.Type() {
		case "except_clause":
			h, err := c.handler(child)
			if err != nil {
				return nil, err
			}
			t.Handlers = append(t.Handlers, h)
		case "except_group_clause":
			return &pyast.OpaqueStmt{Position: pos(n), Name: "TryStar"}, nil
		case "else_clause":
			if t.Orelse, err = c.block(child.ChildByFieldName("body")); err != nil {
				return nil, err
			}
		case "finally_clause":
			if t.Finally, err = c.block(lastBlock(child)); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// handler lowers `except [T [as name]]:`. A tuple of types catches any of
// them.
func (c *converter) handler(n *sitter.Node) (*pyast.ExceptHandler, error) {
	h := &pyast.ExceptHandler{Position: pos(n)}
	var clause []*sitter.Node
	for _, child := range named(n) {
		if child.Type() == "block" {
			body, err := c.block(child)
			if err != nil {
				return nil, err
			}
			h.Body = body
			continue
		}
		clause = append(clause, child)
	}
	if len(clause) == 1 && clause[0].Type() == "as_pattern" {
		clause = named(clause[0])
	}
	if len(clause) > 2 {
		return nil, c.errorf(n, "malformed except clause")
	}
	if len(clause) == 2 {
		h.Name = c.text(clause[1])
	}
	if len(clause) > 0 {
		typ, err := c.expr(clause[0])
		if err != nil {
			return nil, err
		}
		if tuple, ok := typ.(*pyast.Tuple); ok {
			h.Types = tuple.Elts
		} else {
			h.Types = []pyast.Expr{typ}
		}
	}
	return h, nil
}

func lastBlock(n *sitter.Node) *sitter.Node {
	kids := named(n)
	for i := len(kids) - 1; i >= 0; i-- {
		if kids[i].Type() == "block" {
			return kids[i]
		}
	}
	return nil
}
