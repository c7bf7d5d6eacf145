package codegen

import (
	"strings"

	"metal0/pyaot/internal/compiler/emit"
)

// emitClass writes a user class as a struct. A subclass embeds its parent as
// the first field; inherited slots are reached through it and the parent's
// methods receive `&self.base`:
//
//	const Dog = struct {
//	    base: Animal,
//	    breed: []const u8,
//
//	    pub fn init(allocator: std.mem.Allocator, name: []const u8) !*Dog { ... }
//	    pub fn deinit(self: *Dog, allocator: std.mem.Allocator) void { ... }
//	    pub fn setup(self: *Dog, name: []const u8) void { ... }
//	    pub fn speak(self: *Dog) []const u8 { ... }
//	};
func (m *moduleGen) emitClass(st *emit.State, c *classInfo) error {
	parent := ""
	if c.parent != nil {
		parent = c.parent.name
	}
	st.EnterClass(c.name, parent)
	defer st.ExitClass()

	st.Linef("const %s = struct {", c.name)
	err := st.Block(func() error {
		if c.parent != nil {
			st.Linef("%s: %s,", baseField, c.parent.name)
		}
		for _, f := range c.ownFields() {
			typ, ok := m.zigType(st, f.ann, storageSlot)
			if !ok || typ == "void" {
				typ = "i64"
			}
			st.Linef("%s: %s,", zigIdent(f.name), typ)
		}
		if len(c.fields) > 0 || c.parent != nil {
			st.Line("")
		}
		if err := m.emitInit(st, c); err != nil {
			return err
		}
		st.Line("")
		m.emitDeinit(st, c)
		for _, sig := range c.order {
			st.Line("")
			if err := m.emitFunction(st, sig, c.name); err != nil {
				return err
			}
		}
		for _, sig := range c.inherited() {
			st.Line("")
			m.emitForwarder(st, c, sig)
		}
		return nil
	})
	if err != nil {
		return err
	}
	st.Line("};")
	return nil
}

// emitInit writes the allocating constructor: it creates the instance, fills
// class-level defaults and runs __init__ when the class has one.
func (m *moduleGen) emitInit(st *emit.State, c *classInfo) error {
	alloc := st.AllocatorName()
	params := []string{alloc + ": std.mem.Allocator"}
	var args []string
	setup, hasSetup := c.method("__init__")
	if hasSetup {
		if setup.alloc {
			args = append(args, alloc)
		}
		for i, p := range setup.params {
			name := zigIdent(p.Name)
			params = append(params, name+": "+m.paramType(st, setup.anns[i]))
			args = append(args, name)
		}
	}

	st.Linef("pub fn init(%s) !*%s {", strings.Join(params, ", "), c.name)
	err := st.Block(func() error {
		st.Linef("const self = %s%s.create(%s)%s;", st.Try(), alloc, c.name, st.EndTry())
		for _, f := range c.fields {
			if f.def == nil {
				continue
			}
			st.Writef("self.%s = ", c.fieldPath(f.name))
			if err := m.value(st, f.def, f.ann, true); err != nil {
				return err
			}
			st.Line(";")
		}
		if hasSetup {
			call := "self.setup(" + strings.Join(args, ", ") + ")"
			if setup.fallible {
				call = st.Try() + call + st.EndTry()
			}
			st.Line(call + ";")
		}
		st.Line("return self;")
		return nil
	})
	if err != nil {
		return err
	}
	st.Line("}")
	return nil
}

// emitDeinit writes the destructor that frees what init created. The
// embedded parent lives inside the same allocation.
func (m *moduleGen) emitDeinit(st *emit.State, c *classInfo) {
	alloc := st.AllocatorName()
	st.Linef("pub fn deinit(self: *%s, %s: std.mem.Allocator) void {", c.name, alloc)
	_ = st.Block(func() error {
		st.Linef("%s.destroy(self);", alloc)
		return nil
	})
	st.Line("}")
}

// emitForwarder writes an inherited method on the child. It hands the
// embedded parent to the parent's version.
func (m *moduleGen) emitForwarder(st *emit.State, c *classInfo, sig *funcSig) {
	parent := c.parent.name
	var args []string
	if !sig.static {
		args = append(args, "&self."+baseField)
	}
	if sig.alloc {
		args = append(args, st.AllocatorName())
	}
	for _, p := range sig.params {
		name := zigIdent(p.Name)
		if reassignedParam(sig.frame, p.Name) {
			name = m.argName(p.Name)
		}
		args = append(args, name)
	}
	st.Linef("pub fn %s {", m.header(st, sig, c.name))
	_ = st.Block(func() error {
		st.Linef("return %s.%s(%s);", parent, sig.zig, strings.Join(args, ", "))
		return nil
	})
	st.Line("}")
}
