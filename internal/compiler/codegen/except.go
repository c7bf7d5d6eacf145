package codegen

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// exceptionErrors maps Python exception classes to the Zig errors the lowered
// calls fail with. Other class names match the Zig error of the same name.
var exceptionErrors = map[string][]string{
	"ValueError":        {"InvalidCharacter", "Overflow", "SyntaxError", "UnexpectedToken"},
	"OverflowError":     {"Overflow"},
	"ZeroDivisionError": {"DivisionByZero"},
	"MemoryError":       {"OutOfMemory"},
	"FileNotFoundError": {"FileNotFound"},
	"PermissionError":   {"AccessDenied"},
	"OSError":           {"FileNotFound", "AccessDenied"},
	"IOError":           {"FileNotFound", "AccessDenied"},
}

// catchAll names the classes every error matches.
var catchAll = map[string]bool{"Exception": true, "BaseException": true}

// catchesAll reports whether some clause of n matches every error.
func catchesAll(n *pyast.Try) bool {
	for _, h := range n.Handlers {
		if len(h.Types) == 0 {
			return true
		}
		for _, t := range h.Types {
			if name, ok := t.(*pyast.Name); ok && catchAll[name.ID] {
				return true
			}
		}
	}
	return false
}

// handlerCond is the Zig condition of one except clause; empty for a clause
// that matches everything.
func handlerCond(errVar string, h *pyast.ExceptHandler) (string, error) {
	if h.Name != "" {
		return "", pyerr.NewSemanticErrorAt(h.Pos(), fmt.Sprintf("except ... as %s is not supported", h.Name))
	}
	var alts []string
	for _, t := range h.Types {
		name, ok := t.(*pyast.Name)
		if !ok {
			return "", pyerr.NewSemanticErrorAt(h.Pos(), fmt.Sprintf("unsupported exception type %s", pyast.ExprString(t)))
		}
		if catchAll[name.ID] {
			return "", nil
		}
		errs, ok := exceptionErrors[name.ID]
		if !ok {
			errs = []string{name.ID}
		}
		for _, e := range errs {
			alts = append(alts, fmt.Sprintf("%s == error.%s", errVar, e))
		}
	}
	return strings.Join(alts, " or "), nil
}

// terminates reports whether body ends by leaving the enclosing block.
func terminates(body []pyast.Stmt) bool {
	if len(body) == 0 {
		return false
	}
	switch body[len(body)-1].(type) {
	case *pyast.Return, *pyast.Break, *pyast.Continue:
		return true
	}
	return false
}

// tryStmt lowers try/except/else/finally. Fallible calls in the body break out
// of an inner block with their error and the handlers match it by name:
//
//	try_1: {
//	    defer { ...finally... }
//	    const try_1_err: anyerror = try_1_body: {
//	        x = (std.fmt.parseInt(i64, s, 10) catch |try_1_e| break :try_1_body try_1_e);
//	        ...else...
//	        break :try_1;
//	    };
//	    if (try_1_err == error.InvalidCharacter or try_1_err == error.Overflow) {
//	        ...
//	    } else {
//	        return try_1_err;
//	    }
//	}
//
// A body without fallible calls cannot raise, so the handlers are dropped.
func (m *moduleGen) tryStmt(st *emit.State, n *pyast.Try) error {
	label := st.NewLabel("try")
	errVar := label + "_err"

	conds := make([]string, len(n.Handlers))
	for i, h := range n.Handlers {
		cond, err := handlerCond(errVar, h)
		if err != nil {
			return err
		}
		if cond == "" && i < len(n.Handlers)-1 {
			return pyerr.NewSemanticErrorAt(h.Pos(), "a catch-all except clause must be last")
		}
		conds[i] = cond
	}

	var (
		caught int
		broke  bool
	)
	body, err := st.CaptureLines(func() error {
		return st.Block(func() error {
			return st.Block(func() error {
				st.EnterTry(label)
				err := m.block(st, n.Body)
				caught = st.ExitTry()
				if err != nil {
					return err
				}
				if terminates(n.Body) {
					return nil
				}
				if len(n.Orelse) > 0 {
					if err := m.block(st, n.Orelse); err != nil {
						return err
					}
				}
				if !terminates(n.Orelse) && caught > 0 {
					st.Linef("break :%s;", label)
					broke = true
				}
				return nil
			})
		})
	})
	if err != nil {
		return err
	}

	if caught == 0 {
		st.Line("{")
		if err := st.Block(func() error { return m.finally(st, n.Finally) }); err != nil {
			return err
		}
		st.Splice(body, 1)
		st.Line("}")
		return nil
	}

	if broke {
		st.Write(label + ": ")
	}
	st.Line("{")
	err = st.Block(func() error {
		if err := m.finally(st, n.Finally); err != nil {
			return err
		}
		st.Linef("const %s: anyerror = %s_body: {", errVar, label)
		st.Splice(body, 0)
		st.Line("};")
		return m.handlers(st, n.Handlers, conds, errVar)
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// handlers writes the if chain that dispatches on the caught error. Errors no
// clause matches propagate.
func (m *moduleGen) handlers(st *emit.State, hs []*pyast.ExceptHandler, conds []string, errVar string) error {
	if len(hs) > 0 && conds[0] == "" {
		st.Linef("_ = %s;", errVar)
		return m.block(st, hs[0].Body)
	}
	for i, h := range hs {
		if conds[i] == "" {
			st.Line("} else {")
		} else if i == 0 {
			st.Linef("if (%s) {", conds[i])
		} else {
			st.Linef("} else if (%s) {", conds[i])
		}
		if err := st.Block(func() error { return m.block(st, h.Body) }); err != nil {
			return err
		}
	}
	if len(hs) == 0 || conds[len(conds)-1] != "" {
		if len(hs) > 0 {
			st.Line("} else {")
			st.Indent()
		}
		st.Line(st.Propagate(errVar))
		if len(hs) > 0 {
			if err := st.Dedent(); err != nil {
				return err
			}
		}
	}
	if len(hs) > 0 {
		st.Line("}")
	}
	return nil
}

// finally lowers a finally clause to a defer at the top of the try block so
// it runs however the block is left. Zig forbids fallible calls in a defer.
func (m *moduleGen) finally(st *emit.State, body []pyast.Stmt) error {
	if len(body) == 0 {
		return nil
	}
	before := st.Tries() + st.Caught()
	st.Line("defer {")
	if err := st.Block(func() error { return m.block(st, body) }); err != nil {
		return err
	}
	st.Line("}")
	if st.Tries()+st.Caught() != before {
		return pyerr.NewSemanticErrorAt(body[0].Pos(), "finally clause cannot call fallible functions")
	}
	return nil
}
