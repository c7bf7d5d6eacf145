package pyast

// Constructors used by tests and by handlers that synthesize nodes. They leave
// the source position at zero.

func Ident(id string) *Name { return &Name{ID: id} }

func Int(v int64) *Constant { return &Constant{Value: v, Type: ConstInt} }

func Float(v float64) *Constant { return &Constant{Value: v, Type: ConstFloat} }

func Str(v string) *Constant { return &Constant{Value: v, Type: ConstStr} }

func Bool(v bool) *Constant { return &Constant{Value: v, Type: ConstBool} }

func None() *Constant { return &Constant{Type: ConstNone} }

// Attr builds a dotted attribute chain: Attr(Ident("os"), "path", "join").
func Attr(value Expr, names ...string) Expr {
	for _, n := range names {
		value = &Attribute{Value: value, Attr: n}
	}
	return value
}

// CallOf builds a positional call.
func CallOf(fn Expr, args ...Expr) *Call {
	return &Call{Func: fn, Args: args}
}

// CallName builds `name(args...)`.
func CallName(name string, args ...Expr) *Call {
	return CallOf(Ident(name), args...)
}

// CallMethod builds `recv.method(args...)`.
func CallMethod(recv Expr, method string, args ...Expr) *Call {
	return CallOf(&Attribute{Value: recv, Attr: method}, args...)
}

// ExprOf wraps an expression as a statement.
func ExprOf(e Expr) *ExprStmt { return &ExprStmt{Value: e} }

// AssignTo builds `name = value`.
func AssignTo(name string, value Expr) *Assign {
	return &Assign{Targets: []Expr{Ident(name)}, Value: value}
}

func ListOf(elts ...Expr) *List { return &List{Elts: elts} }

func Add(l, r Expr) *BinOp { return &BinOp{Left: l, Op: "+", Right: r} }
