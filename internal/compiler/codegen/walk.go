package codegen

import "metal0/pyaot/internal/pyast"

// walkExpr calls fn on e and every expression nested in it.
func walkExpr(e pyast.Expr, fn func(pyast.Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *pyast.Attribute:
		walkExpr(n.Value, fn)
	case *pyast.Subscript:
		walkExpr(n.Value, fn)
		walkExpr(n.Index, fn)
	case *pyast.Slice:
		walkExpr(n.Lower, fn)
		walkExpr(n.Upper, fn)
		walkExpr(n.Step, fn)
	case *pyast.Call:
		walkExpr(n.Func, fn)
		for _, a := range n.Args {
			walkExpr(a, fn)
		}
		for _, kw := range n.Keywords {
			walkExpr(kw.Value, fn)
		}
	case *pyast.BinOp:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *pyast.BoolOp:
		for _, v := range n.Values {
			walkExpr(v, fn)
		}
	case *pyast.Compare:
		walkExpr(n.Left, fn)
		for _, c := range n.Comparators {
			walkExpr(c, fn)
		}
	case *pyast.UnaryOp:
		walkExpr(n.Operand, fn)
	case *pyast.IfExp:
		walkExpr(n.Test, fn)
		walkExpr(n.Body, fn)
		walkExpr(n.Orelse, fn)
	case *pyast.List:
		for _, elt := range n.Elts {
			walkExpr(elt, fn)
		}
	case *pyast.Tuple:
		for _, elt := range n.Elts {
			walkExpr(elt, fn)
		}
	case *pyast.Dict:
		for i := range n.Keys {
			walkExpr(n.Keys[i], fn)
			walkExpr(n.Values[i], fn)
		}
	case *pyast.ListComp:
		walkExpr(n.Elt, fn)
		walkGenerators(n.Generators, fn)
	case *pyast.DictComp:
		walkExpr(n.Key, fn)
		walkExpr(n.Value, fn)
		walkGenerators(n.Generators, fn)
	case *pyast.FString:
		for _, p := range n.Parts {
			walkExpr(p.Expr, fn)
		}
	}
}

func walkGenerators(gens []*pyast.Comprehension, fn func(pyast.Expr)) {
	for _, g := range gens {
		walkExpr(g.Iter, fn)
		for _, cond := range g.Ifs {
			walkExpr(cond, fn)
		}
	}
}

// stmtExprs lists the expressions a statement evaluates itself, nested blocks
// excluded.
func stmtExprs(s pyast.Stmt) []pyast.Expr {
	switch n := s.(type) {
	case *pyast.Assign:
		out := []pyast.Expr{n.Value}
		for _, t := range n.Targets {
			if _, ok := t.(*pyast.Name); !ok {
				out = append(out, t)
			}
		}
		return out
	case *pyast.AugAssign:
		return []pyast.Expr{n.Target, n.Value}
	case *pyast.Return:
		return []pyast.Expr{n.Value}
	case *pyast.If:
		return []pyast.Expr{n.Test}
	case *pyast.While:
		return []pyast.Expr{n.Test}
	case *pyast.For:
		return []pyast.Expr{n.Iter}
	case *pyast.ExprStmt:
		return []pyast.Expr{n.Value}
	case *pyast.Assert:
		return []pyast.Expr{n.Test, n.Msg}
	}
	return nil
}

// readsIn collects every name loaded by body and extra.
func readsIn(body []pyast.Stmt, extra ...pyast.Expr) map[string]bool {
	reads := map[string]bool{}
	visit := func(e pyast.Expr) {
		if n, ok := e.(*pyast.Name); ok {
			reads[n.ID] = true
		}
	}
	walkStmts(body, func(s pyast.Stmt) {
		for _, e := range stmtExprs(s) {
			walkExpr(e, visit)
		}
	})
	for _, e := range extra {
		walkExpr(e, visit)
	}
	return reads
}

// spelledNames collects every identifier mod spells: loaded and bound names,
// parameters, functions, classes, attributes and import bindings. Generated
// names stay clear of all of them.
func spelledNames(mod *pyast.Module) map[string]bool {
	seen := map[string]bool{}
	var visit func(e pyast.Expr)
	visit = func(e pyast.Expr) {
		switch n := e.(type) {
		case *pyast.Name:
			seen[n.ID] = true
		case *pyast.Attribute:
			seen[n.Attr] = true
		case *pyast.ListComp:
			for _, g := range n.Generators {
				walkExpr(g.Target, visit)
			}
		case *pyast.DictComp:
			for _, g := range n.Generators {
				walkExpr(g.Target, visit)
			}
		case *pyast.Call:
			for _, kw := range n.Keywords {
				seen[kw.Name] = true
			}
		}
	}
	var body func(stmts []pyast.Stmt)
	body = func(stmts []pyast.Stmt) {
		for _, s := range stmts {
			for _, e := range stmtExprs(s) {
				walkExpr(e, visit)
			}
			switch n := s.(type) {
			case *pyast.FunctionDef:
				seen[n.Name] = true
				for _, p := range n.Params {
					seen[p.Name] = true
				}
				body(n.Body)
			case *pyast.ClassDef:
				seen[n.Name] = true
				body(n.Body)
			case *pyast.Assign:
				for _, t := range n.Targets {
					walkExpr(t, visit)
				}
			case *pyast.For:
				walkExpr(n.Target, visit)
				body(n.Body)
			case *pyast.If:
				body(n.Body)
				body(n.Orelse)
			case *pyast.While:
				body(n.Body)
			case *pyast.Try:
				body(n.Body)
				for _, h := range n.Handlers {
					if h.Name != "" {
						seen[h.Name] = true
					}
					body(h.Body)
				}
				body(n.Orelse)
				body(n.Finally)
			case *pyast.Import:
				for _, a := range n.Names {
					seen[a.Bound()] = true
				}
			case *pyast.ImportFrom:
				for _, a := range n.Names {
					seen[a.Bound()] = true
				}
			}
		}
	}
	if mod != nil {
		body(mod.Body)
	}
	return seen
}
