package pyast

import (
	"strconv"
	"strings"
)

// ExprString renders e back to Python-like source. Binary, boolean and
// comparison operations are fully parenthesized so grouping is visible.
func ExprString(e Expr) string {
	var b strings.Builder
	writeExpr(&b, e)
	return b.String()
}

// Dump renders a module as indented Python-like source, one statement per
// line.
func Dump(mod *Module) string {
	var b strings.Builder
	writeBody(&b, mod.Body, 0)
	return b.String()
}

func writeBody(b *strings.Builder, body []Stmt, depth int) {
	if len(body) == 0 {
		writeLine(b, depth, "pass")
		return
	}
	for _, s := range body {
		writeStmt(b, s, depth)
	}
}

func writeLine(b *strings.Builder, depth int, text string) {
	b.WriteString(strings.Repeat("    ", depth))
	b.WriteString(text)
	b.WriteByte('\n')
}

func writeStmt(b *strings.Builder, s Stmt, depth int) {
	switch n := s.(type) {
	case *FunctionDef:
		for _, d := range n.Decorators {
			writeLine(b, depth, "@"+ExprString(d))
		}
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = p.Name
			if p.Annotation != nil {
				params[i] += ": " + ExprString(p.Annotation)
			}
			if p.Default != nil {
				params[i] += "=" + ExprString(p.Default)
			}
		}
		head := "def " + n.Name + "(" + strings.Join(params, ", ") + ")"
		if n.IsAsync {
			head = "async " + head
		}
		if n.Returns != nil {
			head += " -> " + ExprString(n.Returns)
		}
		writeLine(b, depth, head+":")
		writeBody(b, n.Body, depth+1)
	case *ClassDef:
		head := "class " + n.Name
		if len(n.Bases) > 0 {
			head += "(" + joinExprs(n.Bases) + ")"
		}
		writeLine(b, depth, head+":")
		writeBody(b, n.Body, depth+1)
	case *Assign:
		var parts []string
		for i, t := range n.Targets {
			target := ExprString(t)
			if i == 0 && n.Annotation != nil {
				target += ": " + ExprString(n.Annotation)
			}
			parts = append(parts, target)
		}
		writeLine(b, depth, strings.Join(parts, " = ")+" = "+ExprString(n.Value))
	case *AugAssign:
		writeLine(b, depth, ExprString(n.Target)+" "+n.Op+"= "+ExprString(n.Value))
	case *Return:
		if n.Value == nil {
			writeLine(b, depth, "return")
		} else {
			writeLine(b, depth, "return "+ExprString(n.Value))
		}
	case *If:
		writeIf(b, n, depth, "if ")
	case *For:
		writeLine(b, depth, "for "+ExprString(n.Target)+" in "+ExprString(n.Iter)+":")
		writeBody(b, n.Body, depth+1)
	case *While:
		writeLine(b, depth, "while "+ExprString(n.Test)+":")
		writeBody(b, n.Body, depth+1)
	case *ExprStmt:
		writeLine(b, depth, ExprString(n.Value))
	case *Pass:
		writeLine(b, depth, "pass")
	case *Break:
		writeLine(b, depth, "break")
	case *Continue:
		writeLine(b, depth, "continue")
	case *Import:
		writeLine(b, depth, "import "+joinAliases(n.Names))
	case *ImportFrom:
		writeLine(b, depth, "from "+n.Module+" import "+joinAliases(n.Names))
	case *Assert:
		text := "assert " + ExprString(n.Test)
		if n.Msg != nil {
			text += ", " + ExprString(n.Msg)
		}
		writeLine(b, depth, text)
	case *Try:
		writeLine(b, depth, "try:")
		writeBody(b, n.Body, depth+1)
		for _, h := range n.Handlers {
			head := "except"
			switch len(h.Types) {
			case 0:
			case 1:
				head += " " + ExprString(h.Types[0])
			default:
				head += " (" + joinExprs(h.Types) + ")"
			}
			if h.Name != "" {
				head += " as " + h.Name
			}
			writeLine(b, depth, head+":")
			writeBody(b, h.Body, depth+1)
		}
		if len(n.Orelse) > 0 {
			writeLine(b, depth, "else:")
			writeBody(b, n.Orelse, depth+1)
		}
		if len(n.Finally) > 0 {
			writeLine(b, depth, "finally:")
			writeBody(b, n.Finally, depth+1)
		}
	case *OpaqueStmt:
		writeLine(b, depth, "<"+n.Name+">")
	}
}

func writeIf(b *strings.Builder, n *If, depth int, keyword string) {
	writeLine(b, depth, keyword+ExprString(n.Test)+":")
	writeBody(b, n.Body, depth+1)
	if len(n.Orelse) == 0 {
		return
	}
	if elif, ok := n.Orelse[0].(*If); ok && len(n.Orelse) == 1 {
		writeIf(b, elif, depth, "elif ")
		return
	}
	writeLine(b, depth, "else:")
	writeBody(b, n.Orelse, depth+1)
}

func joinAliases(names []Alias) string {
	parts := make([]string, len(names))
	for i, a := range names {
		parts[i] = a.Name
		if a.AsName != "" {
			parts[i] += " as " + a.AsName
		}
	}
	return strings.Join(parts, ", ")
}

func joinExprs(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = ExprString(e)
	}
	return strings.Join(parts, ", ")
}

func writeExpr(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
	case *Name:
		b.WriteString(n.ID)
	case *Constant:
		b.WriteString(constantString(n))
	case *Attribute:
		writeExpr(b, n.Value)
		b.WriteString("." + n.Attr)
	case *Subscript:
		writeExpr(b, n.Value)
		b.WriteByte('[')
		if t, ok := n.Index.(*Tuple); ok {
			b.WriteString(joinExprs(t.Elts))
		} else {
			writeExpr(b, n.Index)
		}
		b.WriteByte(']')
	case *Slice:
		writeExpr(b, n.Lower)
		b.WriteByte(':')
		writeExpr(b, n.Upper)
		if n.Step != nil {
			b.WriteByte(':')
			writeExpr(b, n.Step)
		}
	case *Call:
		writeExpr(b, n.Func)
		args := make([]string, 0, len(n.Args)+len(n.Keywords))
		for _, a := range n.Args {
			args = append(args, ExprString(a))
		}
		for _, k := range n.Keywords {
			args = append(args, k.Name+"="+ExprString(k.Value))
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	case *BinOp:
		b.WriteString("(" + ExprString(n.Left) + " " + n.Op + " " + ExprString(n.Right) + ")")
	case *BoolOp:
		parts := make([]string, len(n.Values))
		for i, v := range n.Values {
			parts[i] = ExprString(v)
		}
		b.WriteString("(" + strings.Join(parts, " "+n.Op+" ") + ")")
	case *Compare:
		b.WriteString("(" + ExprString(n.Left))
		for i, op := range n.Ops {
			b.WriteString(" " + op + " " + ExprString(n.Comparators[i]))
		}
		b.WriteByte(')')
	case *UnaryOp:
		sep := ""
		if n.Op == "not" {
			sep = " "
		}
		b.WriteString("(" + n.Op + sep + ExprString(n.Operand) + ")")
	case *IfExp:
		b.WriteString("(" + ExprString(n.Body) + " if " + ExprString(n.Test) + " else " + ExprString(n.Orelse) + ")")
	case *List:
		b.WriteString("[" + joinExprs(n.Elts) + "]")
	case *Tuple:
		if len(n.Elts) == 1 {
			b.WriteString("(" + ExprString(n.Elts[0]) + ",)")
		} else {
			b.WriteString("(" + joinExprs(n.Elts) + ")")
		}
	case *Dict:
		parts := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			if k == nil {
				parts[i] = "**" + ExprString(n.Values[i])
			} else {
				parts[i] = ExprString(k) + ": " + ExprString(n.Values[i])
			}
		}
		b.WriteString("{" + strings.Join(parts, ", ") + "}")
	case *ListComp:
		b.WriteString("[" + ExprString(n.Elt) + generatorsString(n.Generators) + "]")
	case *DictComp:
		b.WriteString("{" + ExprString(n.Key) + ": " + ExprString(n.Value) + generatorsString(n.Generators) + "}")
	case *FString:
		b.WriteString("f\"")
		for _, p := range n.Parts {
			if p.Expr == nil {
				lit := strconv.Quote(p.Literal)
				lit = strings.NewReplacer("{", "{{", "}", "}}").Replace(lit[1 : len(lit)-1])
				b.WriteString(lit)
				continue
			}
			b.WriteString("{" + ExprString(p.Expr))
			if p.Spec != "" {
				b.WriteString(":" + p.Spec)
			}
			b.WriteByte('}')
		}
		b.WriteByte('"')
	case *OpaqueExpr:
		b.WriteString("<" + n.Name + ">")
	}
}

func generatorsString(gens []*Comprehension) string {
	var b strings.Builder
	for _, g := range gens {
		b.WriteString(" for " + ExprString(g.Target) + " in " + ExprString(g.Iter))
		for _, cond := range g.Ifs {
			b.WriteString(" if " + ExprString(cond))
		}
	}
	return b.String()
}

func constantString(c *Constant) string {
	switch v := c.Value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(v)
	case bool:
		if v {
			return "True"
		}
		return "False"
	}
	return "None"
}
