package codegen

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// baseField names the slot a subclass embeds its parent in. It comes first,
// so the parent's layout is a prefix of the child's and `&self.base` is the
// upcast.
const baseField = "base"

// field is one slot of a class layout.
type field struct {
	name  string
	ann   Annotation
	def   pyast.Expr // class-level default
	owner *classInfo
}

// classInfo is a user class: its place in the hierarchy, its flattened field
// layout and its own methods.
type classInfo struct {
	name    string
	parent  *classInfo
	def     *pyast.ClassDef
	fields  []*field
	methods map[string]*funcSig
	order   []*funcSig
}

// field looks a slot up by name, inherited slots included.
func (c *classInfo) field(name string) (*field, bool) {
	for _, f := range c.fields {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// fieldPath spells the access path of a slot from an instance of c.
// Inherited slots are reached through the embedded parents: `base.base.name`.
func (c *classInfo) fieldPath(name string) string {
	var b strings.Builder
	if f, ok := c.field(name); ok {
		for k := c; k != nil && k != f.owner; k = k.parent {
			b.WriteString(baseField + ".")
		}
	}
	b.WriteString(zigIdent(name))
	return b.String()
}

// method resolves name along the parent chain.
func (c *classInfo) method(name string) (*funcSig, bool) {
	for k := c; k != nil; k = k.parent {
		if sig, ok := k.methods[name]; ok {
			return sig, true
		}
	}
	return nil, false
}

// inherited lists the ancestor methods c does not override, nearest ancestor
// first, each name once.
func (c *classInfo) inherited() []*funcSig {
	seen := map[string]bool{}
	for name := range c.methods {
		seen[name] = true
	}
	var out []*funcSig
	for k := c.parent; k != nil; k = k.parent {
		for _, sig := range k.order {
			if seen[sig.name] {
				continue
			}
			seen[sig.name] = true
			out = append(out, sig)
		}
	}
	return out
}

// ownFields are the slots c adds after its parent's prefix.
func (c *classInfo) ownFields() []*field {
	if c.parent == nil {
		return c.fields
	}
	return c.fields[len(c.parent.fields):]
}

// buildLayouts resolves the class hierarchy and flattens every class's fields,
// parent slots first. Only single inheritance is accepted, so every parent
// layout is a prefix of its children's. The emitted struct keeps that prefix
// by embedding the parent as its first field.
func (m *moduleGen) buildLayouts(defs []*pyast.ClassDef) error {
	for _, d := range defs {
		if _, dup := m.classes[d.Name]; dup {
			return pyerr.NewSemanticErrorAt(d.Pos(), fmt.Sprintf("class %s is defined twice", d.Name))
		}
		if _, clash := m.funcs[d.Name]; clash {
			return pyerr.NewSemanticErrorAt(d.Pos(), fmt.Sprintf("class %s shadows a function of the same name", d.Name))
		}
		m.classes[d.Name] = &classInfo{name: d.Name, def: d, methods: map[string]*funcSig{}}
	}

	for _, d := range defs {
		parent, err := m.parentOf(d)
		if err != nil {
			return err
		}
		m.classes[d.Name].parent = parent
	}

	state := map[*classInfo]int{}
	var visit func(c *classInfo) error
	visit = func(c *classInfo) error {
		switch state[c] {
		case 1:
			return pyerr.NewSemanticErrorAt(c.def.Pos(), fmt.Sprintf("inheritance cycle through class %s", c.name))
		case 2:
			return nil
		}
		state[c] = 1
		if c.parent != nil {
			if err := visit(c.parent); err != nil {
				return err
			}
		}
		state[c] = 2
		m.layout = append(m.layout, c)
		return nil
	}
	for _, d := range defs {
		if err := visit(m.classes[d.Name]); err != nil {
			return err
		}
	}

	for _, c := range m.layout {
		if err := m.layoutClass(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *moduleGen) parentOf(d *pyast.ClassDef) (*classInfo, error) {
	var bases []pyast.Expr
	for _, b := range d.Bases {
		if n, ok := b.(*pyast.Name); ok && n.ID == "object" {
			continue
		}
		bases = append(bases, b)
	}
	switch len(bases) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, pyerr.NewSemanticErrorAt(d.Pos(), fmt.Sprintf("class %s: multiple inheritance is not supported", d.Name))
	}
	n, ok := bases[0].(*pyast.Name)
	if !ok {
		return nil, pyerr.NewSemanticErrorAt(d.Pos(), fmt.Sprintf("class %s: parent must be a class name", d.Name))
	}
	parent, ok := m.classes[n.ID]
	if !ok {
		return nil, pyerr.NewSemanticErrorAt(d.Pos(), fmt.Sprintf("class %s: unknown parent class %s", d.Name, n.ID))
	}
	return parent, nil
}

// generatedMethods are the struct functions every class gets.
var generatedMethods = map[string]bool{"init": true, "deinit": true, "setup": true}

// layoutClass copies the parent prefix and appends the class's own slots:
// class-level attributes, every `self.x = ...` target of __init__, then those
// of the other methods.
func (m *moduleGen) layoutClass(c *classInfo) error {
	if c.parent != nil {
		c.fields = append(c.fields, c.parent.fields...)
	}
	add := func(name string, ann Annotation, def pyast.Expr) {
		if f, ok := c.field(name); ok {
			if f.ann.IsZero() {
				f.ann = ann
			}
			return
		}
		c.fields = append(c.fields, &field{name: name, ann: ann, def: def, owner: c})
	}

	var (
		initDef *pyast.FunctionDef
		others  []*pyast.FunctionDef
	)
	for _, s := range c.def.Body {
		switch n := s.(type) {
		case *pyast.FunctionDef:
			if generatedMethods[n.Name] {
				return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("class %s: method name %s is reserved", c.name, n.Name))
			}
			sig, err := newMethodSig(c, n)
			if err != nil {
				return err
			}
			if _, dup := c.methods[n.Name]; !dup {
				c.order = append(c.order, sig)
			}
			c.methods[n.Name] = sig
			if n.Name == "__init__" {
				initDef = n
			} else {
				others = append(others, n)
			}
		case *pyast.Assign:
			name, ok := singleName(n.Targets)
			if !ok {
				return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("class %s: unsupported class attribute", c.name))
			}
			add(name, AnnotationOf(n.Annotation), n.Value)
		case *pyast.Pass:
		case *pyast.ExprStmt:
			if !pyast.IsStringConstant(n.Value) {
				return pyerr.NewSemanticErrorAt(n.Pos(), fmt.Sprintf("class %s: unsupported statement in class body", c.name))
			}
		default:
			return pyerr.NewSemanticErrorAt(s.Pos(), fmt.Sprintf("class %s: unsupported %s in class body", c.name, s.Kind()))
		}
	}

	if initDef != nil {
		others = append([]*pyast.FunctionDef{initDef}, others...)
	}

	for _, def := range others {
		walkStmts(def.Body, func(s pyast.Stmt) {
			a, ok := s.(*pyast.Assign)
			if !ok {
				return
			}
			for _, t := range a.Targets {
				if attr, ok := selfAttr(t); ok {
					add(attr, AnnotationOf(a.Annotation), nil)
				}
			}
		})
	}
	if f, ok := c.field(baseField); ok && c.parent != nil && f.owner == c {
		return pyerr.NewSemanticErrorAt(c.def.Pos(), fmt.Sprintf(
			"class %s: attribute %s is reserved for the embedded parent %s", c.name, baseField, c.parent.name))
	}
	return nil
}

// selfAttr matches `self.<name>`.
func selfAttr(e pyast.Expr) (string, bool) {
	attr, ok := e.(*pyast.Attribute)
	if !ok {
		return "", false
	}
	if n, ok := attr.Value.(*pyast.Name); ok && n.ID == "self" {
		return attr.Attr, true
	}
	return "", false
}

func singleName(targets []pyast.Expr) (string, bool) {
	if len(targets) != 1 {
		return "", false
	}
	n, ok := targets[0].(*pyast.Name)
	if !ok {
		return "", false
	}
	return n.ID, true
}

// recordField settles the type of a slot assigned in a method body. A slot
// inherited from a parent keeps the parent's type; assigning it a different
// one would break the prefix layout.
func (m *moduleGen) recordField(c *classInfo, name string, ann Annotation, line int) error {
	f, ok := c.field(name)
	if !ok || ann.IsZero() {
		return nil
	}
	if f.ann.IsZero() {
		f.ann = ann
		return nil
	}
	if f.owner != c && !sameType(f.ann, ann) {
		return pyerr.NewSemanticErrorAt(line, fmt.Sprintf(
			"class %s redeclares field %s of %s as %s, parent layout has %s",
			c.name, name, f.owner.name, ann, f.ann))
	}
	return nil
}
