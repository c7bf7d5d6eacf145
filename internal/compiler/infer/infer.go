// Package infer is a best-effort classifier for expressions. Code generation
// consults it to pick representations (declaration types, format verbs,
// whether an iterable needs an `.items` projection); it is never authoritative
// and never fails, every unanswerable question yields Unknown.
package infer

import (
	"metal0/pyaot/internal/pyast"
)

// Env answers the questions the inferrer cannot decide structurally.
type Env interface {
	// VarType returns the classification bound to a variable in scope.
	VarType(name string) (Type, bool)
	// CallType returns the result classification of a resolved call.
	CallType(call *pyast.Call) (Type, bool)
}

// Inferrer classifies expressions against an Env.
type Inferrer struct {
	env Env
}

// NewInferrer creates an Inferrer. env may be nil, in which case names and
// calls classify as Unknown.
func NewInferrer(env Env) *Inferrer {
	return &Inferrer{env: env}
}

// Infer classifies e.
func (inf *Inferrer) Infer(e pyast.Expr) Type {
	switch n := e.(type) {
	case *pyast.Constant:
		return constType(n.Type)
	case *pyast.Name:
		if inf.env != nil {
			if t, ok := inf.env.VarType(n.ID); ok {
				return t
			}
		}
		return Unknown
	case *pyast.BinOp:
		return binOpType(n.Op, inf.Infer(n.Left), inf.Infer(n.Right))
	case *pyast.UnaryOp:
		if n.Op == "not" {
			return Unknown
		}
		if t := inf.Infer(n.Operand); t.IsNumeric() {
			return t
		}
		return Unknown
	case *pyast.BoolOp:
		ts := make([]Type, len(n.Values))
		for i, v := range n.Values {
			ts[i] = inf.Infer(v)
		}
		return JoinAll(ts...)
	case *pyast.IfExp:
		return Join(inf.Infer(n.Body), inf.Infer(n.Orelse))
	case *pyast.List, *pyast.ListComp:
		return Sequence
	case *pyast.Dict, *pyast.DictComp:
		return Mapping
	case *pyast.FString:
		return String
	case *pyast.Subscript:
		return inf.subscript(n)
	case *pyast.Call:
		if inf.env != nil {
			if t, ok := inf.env.CallType(n); ok {
				return t
			}
		}
		return Unknown
	}
	return Unknown
}

// ElementType classifies the items produced by iterating e.
func (inf *Inferrer) ElementType(e pyast.Expr) Type {
	switch n := e.(type) {
	case *pyast.List:
		ts := make([]Type, len(n.Elts))
		for i, elt := range n.Elts {
			ts[i] = inf.Infer(elt)
		}
		return JoinAll(ts...)
	case *pyast.Call:
		if name, ok := n.Func.(*pyast.Name); ok && name.ID == "range" {
			return Int
		}
	}
	if inf.Infer(e) == String {
		return String
	}
	return Unknown
}

func (inf *Inferrer) subscript(n *pyast.Subscript) Type {
	base := inf.Infer(n.Value)
	_, isSlice := n.Index.(*pyast.Slice)
	switch base {
	case String:
		return String
	case Sequence:
		if isSlice {
			return Sequence
		}
		if l, ok := n.Value.(*pyast.List); ok {
			return inf.ElementType(l)
		}
	}
	return Unknown
}

func constType(k pyast.ConstKind) Type {
	switch k {
	case pyast.ConstInt:
		return Int
	case pyast.ConstFloat:
		return Float
	case pyast.ConstStr:
		return String
	}
	return Unknown
}

func binOpType(op string, l, r Type) Type {
	switch op {
	case "+":
		if l == String || r == String {
			return String
		}
		if l == Sequence && r == Sequence {
			return Sequence
		}
		if l.IsNumeric() && r.IsNumeric() {
			return Join(l, r)
		}
	case "*":
		if (l == String && r == Int) || (l == Int && r == String) {
			return String
		}
		if (l == Sequence && r == Int) || (l == Int && r == Sequence) {
			return Sequence
		}
		if l.IsNumeric() && r.IsNumeric() {
			return Join(l, r)
		}
	case "/":
		if l.IsNumeric() && r.IsNumeric() {
			return Float
		}
	case "-", "//", "%", "**":
		if l.IsNumeric() && r.IsNumeric() {
			return Join(l, r)
		}
	case "&", "|", "^", "<<", ">>":
		if l == Int && r == Int {
			return Int
		}
	}
	return Unknown
}
