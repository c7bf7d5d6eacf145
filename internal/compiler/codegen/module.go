package codegen

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// maxEmitAttempts bounds how often emission restarts after a signature
// changed. Flags only move one way, so a few rounds settle any module.
const maxEmitAttempts = 8

// runtimeImports lists the runtime modules in preamble order with the flag
// that pulls each in.
var runtimeImports = []struct {
	name string
	on   func(analyzer.RequirementSet) bool
}{
	{"runtime", func(r analyzer.RequirementSet) bool { return r.NeedsRuntime }},
	{"json", func(r analyzer.RequirementSet) bool { return r.NeedsJSON }},
	{"http", func(r analyzer.RequirementSet) bool { return r.NeedsHTTP }},
	{"asyncio", func(r analyzer.RequirementSet) bool { return r.NeedsAsync }},
	{"strutil", func(r analyzer.RequirementSet) bool { return r.NeedsStringUtils }},
	{"hashmap_helper", func(r analyzer.RequirementSet) bool { return r.NeedsHashmapHelper }},
}

// preamble is the import block and the print helper.
func (m *moduleGen) preamble(reqs analyzer.RequirementSet) string {
	var b strings.Builder
	b.WriteString("const std = @import(\"std\");\n")
	for _, imp := range runtimeImports {
		if !imp.on(reqs) {
			continue
		}
		path := imp.name
		if p, ok := m.g.opts.Imports[imp.name]; ok {
			path = p
		}
		fmt.Fprintf(&b, "const %s = @import(%s);\n", imp.name, zigString(path))
	}
	if reqs.NeedsStd {
		b.WriteString("\nfn pyPrint(comptime fmt: []const u8, args: anytype) void {\n")
		b.WriteString(m.g.opts.Indent + "std.io.getStdOut().writer().print(fmt, args) catch {};\n")
		b.WriteString("}\n")
	}
	b.WriteString("\n")
	return b.String()
}

// emit runs the emission pass until every signature is stable and returns
// the final state.
func (m *moduleGen) emit() (*emit.State, error) {
	for attempt := 0; attempt < maxEmitAttempts; attempt++ {
		st := emit.NewState(emit.WithIndent(m.g.opts.Indent))
		st.SetDispatcher(m)
		for name := range m.spelled {
			st.Reserve(name)
		}
		m.retry = false
		if err := m.emitBody(st); err != nil {
			return nil, err
		}
		if !m.retry {
			return st, nil
		}
		m.propagate()
	}
	return nil, pyerr.NewSemanticError("function signatures did not settle")
}

func (m *moduleGen) emitBody(st *emit.State) error {
	for _, g := range m.globals {
		if err := m.emitGlobal(st, g); err != nil {
			return err
		}
	}
	if len(m.globals) > 0 {
		st.Line("")
	}
	for _, c := range m.layout {
		if err := m.emitClass(st, c); err != nil {
			return err
		}
		st.Line("")
	}
	for _, sig := range m.order {
		if err := m.emitFunction(st, sig, ""); err != nil {
			return err
		}
		st.Line("")
	}
	return m.emitMain(st)
}

// emitGlobal writes a module constant as a container-level const.
func (m *moduleGen) emitGlobal(st *emit.State, g *pyast.Assign) error {
	name, _ := singleName(g.Targets)
	sym, _ := m.lookup(name)
	st.Write("const " + zigIdent(name))
	if typ, ok := m.zigType(st, sym.ann, storageSlot); ok {
		st.Write(": " + typ)
	}
	st.Write(" = ")
	if err := m.expr(st, g.Value); err != nil {
		return err
	}
	st.Line(";")
	return nil
}

// paramType spells a parameter type; unannotated parameters are generic.
func (m *moduleGen) paramType(st *emit.State, a Annotation) string {
	if z, ok := m.zigType(st, a, paramSlot); ok && z != "void" {
		return z
	}
	return "anytype"
}

// returnZig spells the return type of sig, error union included.
func (m *moduleGen) returnZig(st *emit.State, sig *funcSig) string {
	ret := "void"
	if !sig.void {
		ret = "i64"
		if z, ok := m.zigType(st, sig.returns, storageSlot); ok {
			ret = z
		}
	}
	if sig.fallible {
		return "!" + ret
	}
	return ret
}

// reassignedParam reports a parameter the body rebinds. Zig parameters are
// immutable, so it arrives under another name and is copied into a var.
func reassignedParam(f *frame, name string) bool {
	return f != nil && f.assigns[name] > 0
}

// argName is the parameter name a reassigned parameter arrives under. It
// is lengthened until no source identifier spells it.
func (m *moduleGen) argName(name string) string {
	alias := name + "_arg"
	for m.spelled[alias] {
		alias += "_"
	}
	return alias
}

// header spells `name(params) ret`. selfType is the receiver of methods;
// forwarders pass the child class.
func (m *moduleGen) header(st *emit.State, sig *funcSig, selfType string) string {
	var params []string
	if sig.owner != nil && !sig.static {
		params = append(params, "self: *"+selfType)
	}
	if sig.alloc {
		params = append(params, st.AllocatorName()+": std.mem.Allocator")
	}
	for i, p := range sig.params {
		name := zigIdent(p.Name)
		if reassignedParam(sig.frame, p.Name) {
			name = m.argName(p.Name)
		}
		params = append(params, name+": "+m.paramType(st, sig.anns[i]))
	}
	return fmt.Sprintf("%s(%s) %s", sig.zig, strings.Join(params, ", "), m.returnZig(st, sig))
}

// emitFunction writes a module function or a method. After the body it
// checks what the body actually needed and schedules a retry when the
// signature was wrong.
func (m *moduleGen) emitFunction(st *emit.State, sig *funcSig, selfType string) error {
	f := sig.frame
	saved := m.frame
	m.frame = f
	defer func() { m.frame = saved }()

	return m.withScope(func() error {
		m.bindParams(sig)

		prefix := "fn "
		if sig.owner != nil {
			prefix = "pub fn "
		}
		st.Line(prefix + m.header(st, sig, selfType) + " {")

		uses, tries := st.AllocatorUses(), st.Tries()
		err := st.Block(func() error {
			if sig.discardAlloc {
				st.Linef("_ = %s;", st.AllocatorName())
			}
			if sig.owner != nil && !sig.static && !f.reads["self"] {
				st.Line("_ = self;")
			}
			for i, p := range sig.params {
				zig := zigIdent(p.Name)
				switch {
				case reassignedParam(f, p.Name):
					typ := m.paramType(st, sig.anns[i])
					if typ == "anytype" {
						st.Linef("var %s = %s;", zig, m.argName(p.Name))
					} else {
						st.Linef("var %s: %s = %s;", zig, typ, m.argName(p.Name))
					}
					if !f.reads[p.Name] {
						st.Linef("_ = &%s;", zig)
					}
				case !f.reads[p.Name]:
					st.Linef("_ = %s;", zig)
				}
			}
			return m.block(st, sig.body)
		})
		if err != nil {
			return err
		}
		st.Line("}")

		m.settle(sig, st.AllocatorUses() > uses, st.Tries() > tries)
		return nil
	})
}

// settle reconciles the signature of sig with what its emitted body used.
func (m *moduleGen) settle(sig *funcSig, usedAlloc, tries bool) {
	switch {
	case usedAlloc && !sig.alloc:
		sig.alloc, sig.fallible, sig.discardAlloc = true, true, false
		m.retry = true
	case sig.alloc && !usedAlloc && !sig.discardAlloc:
		sig.discardAlloc = true
		m.retry = true
	case usedAlloc && sig.discardAlloc:
		sig.discardAlloc = false
		m.retry = true
	}
	if tries && !sig.fallible {
		sig.fallible = true
		m.retry = true
	}
}

// emitMain writes the entry point around the top-level statements. The
// allocator is set up only when the body uses one.
func (m *moduleGen) emitMain(st *emit.State) error {
	sig := m.main
	saved := m.frame
	m.frame = sig.frame
	defer func() { m.frame = saved }()

	ret := "void"
	if sig.fallible {
		ret = "!void"
	}
	st.Linef("pub fn main() %s {", ret)
	uses, tries := st.AllocatorUses(), st.Tries()
	err := st.Block(func() error {
		if sig.alloc {
			m.allocatorSetup(st)
		}
		return m.block(st, sig.body)
	})
	if err != nil {
		return err
	}
	st.Line("}")

	used := st.AllocatorUses() > uses
	if used != sig.alloc {
		sig.alloc = used
		m.retry = true
	}
	if st.Tries() > tries && !sig.fallible {
		sig.fallible = true
		m.retry = true
	}
	return nil
}

func (m *moduleGen) allocatorSetup(st *emit.State) {
	name := st.AllocatorName()
	switch m.g.opts.Allocator {
	case GPAAllocator:
		st.Line("var gpa = std.heap.GeneralPurposeAllocator(.{}){};")
		st.Line("defer _ = gpa.deinit();")
		st.Linef("const %s = gpa.allocator();", name)
	default:
		st.Line("var arena = std.heap.ArenaAllocator.init(std.heap.page_allocator);")
		st.Line("defer arena.deinit();")
		st.Linef("const %s = arena.allocator();", name)
	}
	st.Line("")
}
