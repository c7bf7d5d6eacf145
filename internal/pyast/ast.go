// Package pyast defines the Python syntax tree consumed by the compiler.
//
// The tree is produced by the frontend and treated as read-only by every later
// phase. Statements and expressions are closed sets of pointer types that
// implement Stmt and Expr respectively.
package pyast

import "fmt"

// Node is implemented by every syntax node.
type Node interface {
	Pos() int // 1-based source line, 0 when unknown
	Kind() string
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Position carries the source line of a node.
type Position struct {
	Line int
}

func (p Position) Pos() int { return p.Line }

// Module is a parsed source file.
type Module struct {
	Path string
	Body []Stmt
}

// ---- statements ----

// Param is a function parameter.
type Param struct {
	Name       string
	Annotation Expr
	Default    Expr
}

type FunctionDef struct {
	Position
	Name       string
	Params     []*Param
	Returns    Expr
	Body       []Stmt
	Decorators []Expr
	IsAsync    bool
}

type ClassDef struct {
	Position
	Name  string
	Bases []Expr
	Body  []Stmt
}

// Assign covers plain, chained and annotated assignment. Annotation is only set
// for `x: T = v`.
type Assign struct {
	Position
	Targets    []Expr
	Value      Expr
	Annotation Expr
}

type AugAssign struct {
	Position
	Target Expr
	Op     string
	Value  Expr
}

type Return struct {
	Position
	Value Expr
}

type If struct {
	Position
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type For struct {
	Position
	Target Expr
	Iter   Expr
	Body   []Stmt
}

type While struct {
	Position
	Test Expr
	Body []Stmt
}

type ExprStmt struct {
	Position
	Value Expr
}

type Pass struct{ Position }

type Break struct{ Position }

type Continue struct{ Position }

// Alias is one name of an import statement.
type Alias struct {
	Name   string
	AsName string
}

// Bound returns the name the import binds in the module namespace.
func (a Alias) Bound() string {
	if a.AsName != "" {
		return a.AsName
	}
	return a.Name
}

type Import struct {
	Position
	Names []Alias
}

type ImportFrom struct {
	Position
	Module string
	Names  []Alias
}

type Assert struct {
	Position
	Test Expr
	Msg  Expr
}

// Try is try/except with optional else and finally clauses.
type Try struct {
	Position
	Body     []Stmt
	Handlers []*ExceptHandler
	Orelse   []Stmt
	Finally  []Stmt
}

// ExceptHandler is one except clause. Types is empty for a bare `except:`;
// Name is the `as` binding, empty when absent.
type ExceptHandler struct {
	Position
	Types []Expr
	Name  string
	Body  []Stmt
}

// OpaqueStmt is a statement the frontend recognized but the core does not model
// (with, raise, global, ...).
type OpaqueStmt struct {
	Position
	Name string
}

// ---- expressions ----

type Name struct {
	Position
	ID string
}

// ConstKind is the scalar kind of a literal constant.
type ConstKind int

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstStr
)

func (k ConstKind) String() string {
	switch k {
	case ConstBool:
		return "bool"
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstStr:
		return "str"
	}
	return "None"
}

// Constant is a literal. Value holds int64, float64, string, bool or nil.
type Constant struct {
	Position
	Value any
	Type  ConstKind
}

type Attribute struct {
	Position
	Value Expr
	Attr  string
}

type Subscript struct {
	Position
	Value Expr
	Index Expr
}

type Slice struct {
	Position
	Lower Expr
	Upper Expr
	Step  Expr
}

type Keyword struct {
	Name  string
	Value Expr
}

type Call struct {
	Position
	Func     Expr
	Args     []Expr
	Keywords []*Keyword
}

type BinOp struct {
	Position
	Left  Expr
	Op    string
	Right Expr
}

// BoolOp is `and` / `or` over two or more operands.
type BoolOp struct {
	Position
	Op     string
	Values []Expr
}

// Compare is a possibly chained comparison: Left Ops[0] Comparators[0] ...
type Compare struct {
	Position
	Left        Expr
	Ops         []string
	Comparators []Expr
}

type UnaryOp struct {
	Position
	Op      string
	Operand Expr
}

type IfExp struct {
	Position
	Test   Expr
	Body   Expr
	Orelse Expr
}

type List struct {
	Position
	Elts []Expr
}

type Tuple struct {
	Position
	Elts []Expr
}

// Dict keeps keys and values in parallel slices.
type Dict struct {
	Position
	Keys   []Expr
	Values []Expr
}

// Comprehension is one `for target in iter if ...` clause.
type Comprehension struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

type ListComp struct {
	Position
	Elt        Expr
	Generators []*Comprehension
}

type DictComp struct {
	Position
	Key        Expr
	Value      Expr
	Generators []*Comprehension
}

// FStringPart is either literal text or an embedded expression with an
// optional format spec.
type FStringPart struct {
	Literal string
	Expr    Expr
	Spec    string
}

type FString struct {
	Position
	Parts []FStringPart
}

// OpaqueExpr is an expression the frontend recognized but the core does not
// model (lambda, await, yield, set literals, ...).
type OpaqueExpr struct {
	Position
	Name string
}

func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*Return) stmtNode()      {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*ExprStmt) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Assert) stmtNode()      {}
func (*Try) stmtNode()         {}
func (*OpaqueStmt) stmtNode()  {}

func (*Name) exprNode()       {}
func (*Constant) exprNode()   {}
func (*Attribute) exprNode()  {}
func (*Subscript) exprNode()  {}
func (*Slice) exprNode()      {}
func (*Call) exprNode()       {}
func (*BinOp) exprNode()      {}
func (*BoolOp) exprNode()     {}
func (*Compare) exprNode()    {}
func (*UnaryOp) exprNode()    {}
func (*IfExp) exprNode()      {}
func (*List) exprNode()       {}
func (*Tuple) exprNode()      {}
func (*Dict) exprNode()       {}
func (*ListComp) exprNode()   {}
func (*DictComp) exprNode()   {}
func (*FString) exprNode()    {}
func (*OpaqueExpr) exprNode() {}

func (*FunctionDef) Kind() string  { return "FunctionDef" }
func (*ClassDef) Kind() string     { return "ClassDef" }
func (*Assign) Kind() string       { return "Assign" }
func (*AugAssign) Kind() string    { return "AugAssign" }
func (*Return) Kind() string       { return "Return" }
func (*If) Kind() string           { return "If" }
func (*For) Kind() string          { return "For" }
func (*While) Kind() string        { return "While" }
func (*ExprStmt) Kind() string     { return "Expr" }
func (*Pass) Kind() string         { return "Pass" }
func (*Break) Kind() string        { return "Break" }
func (*Continue) Kind() string     { return "Continue" }
func (*Import) Kind() string       { return "Import" }
func (*ImportFrom) Kind() string   { return "ImportFrom" }
func (*Assert) Kind() string       { return "Assert" }
func (*Try) Kind() string          { return "Try" }
func (s *OpaqueStmt) Kind() string { return s.Name }

func (*Name) Kind() string         { return "Name" }
func (*Constant) Kind() string     { return "Constant" }
func (*Attribute) Kind() string    { return "Attribute" }
func (*Subscript) Kind() string    { return "Subscript" }
func (*Slice) Kind() string        { return "Slice" }
func (*Call) Kind() string         { return "Call" }
func (*BinOp) Kind() string        { return "BinOp" }
func (*BoolOp) Kind() string       { return "BoolOp" }
func (*Compare) Kind() string      { return "Compare" }
func (*UnaryOp) Kind() string      { return "UnaryOp" }
func (*IfExp) Kind() string        { return "IfExp" }
func (*List) Kind() string         { return "List" }
func (*Tuple) Kind() string        { return "Tuple" }
func (*Dict) Kind() string         { return "Dict" }
func (*ListComp) Kind() string     { return "ListComp" }
func (*DictComp) Kind() string     { return "DictComp" }
func (*FString) Kind() string      { return "JoinedStr" }
func (e *OpaqueExpr) Kind() string { return e.Name }

// DottedName flattens a Name/Attribute chain such as `os.path.join` into its
// dotted form. It reports false for any other shape.
func DottedName(e Expr) (string, bool) {
	switch n := e.(type) {
	case *Name:
		return n.ID, true
	case *Attribute:
		base, ok := DottedName(n.Value)
		if !ok {
			return "", false
		}
		return base + "." + n.Attr, true
	}
	return "", false
}

// IsStringConstant reports whether e is a str literal.
func IsStringConstant(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Type == ConstStr
}

// String renders a short description of the node for diagnostics.
func String(n Node) string {
	if n == nil {
		return "<nil>"
	}
	switch v := n.(type) {
	case *Name:
		return v.ID
	case *Constant:
		return fmt.Sprintf("%v", v.Value)
	case *Attribute:
		if name, ok := DottedName(v); ok {
			return name
		}
	}
	return n.Kind()
}
