package codegen

import (
	"metal0/pyaot/internal/compiler/emit"
	"metal0/pyaot/internal/compiler/infer"
)

// symbol is a name bound in generated code.
type symbol struct {
	ann     Annotation
	repr    emit.Repr
	mutable bool
	// zig is the identifier in generated code when it differs from the
	// Python name.
	zig string
}

type scope struct {
	syms   map[string]*symbol
	parent *scope
}

func (m *moduleGen) pushScope() {
	m.current = &scope{
		syms:   make(map[string]*symbol),
		parent: m.current,
	}
}

func (m *moduleGen) popScope() {
	if m.current != nil {
		m.current = m.current.parent
	}
}

// withScope runs fn in a fresh child scope.
func (m *moduleGen) withScope(fn func() error) error {
	m.pushScope()
	defer m.popScope()
	return fn()
}

func (m *moduleGen) declareSym(name string, sym *symbol) {
	if m.current != nil {
		m.current.syms[name] = sym
	}
}

// bind declares name with the representation its annotation implies.
func (m *moduleGen) bind(name string, ann Annotation, mutable bool) *symbol {
	sym := &symbol{ann: ann, mutable: mutable}
	if ann.Kind() == infer.Sequence {
		sym.repr = emit.ReprList
	}
	m.declareSym(name, sym)
	return sym
}

func (m *moduleGen) lookup(name string) (*symbol, bool) {
	s := m.current
	for s != nil {
		if sym, ok := s.syms[name]; ok {
			return sym, true
		}
		s = s.parent
	}
	return nil, false
}

// declaredLocally reports whether name is bound in the current scope or one
// of its ancestors below the module scope.
func (m *moduleGen) declaredLocally(name string) bool {
	s := m.current
	for s != nil && s.parent != nil {
		if _, ok := s.syms[name]; ok {
			return true
		}
		s = s.parent
	}
	return false
}
