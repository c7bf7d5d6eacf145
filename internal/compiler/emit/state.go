// Package emit holds the mutable state of one emission: the output buffer, the
// indentation stack, the hygienic label counter and the enclosing class.
//
// A State is single-owner and not reentrant. Compiling several modules at once
// needs one State per module.
package emit

import (
	"fmt"
	"strings"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/infer"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// Dispatcher lowers expressions into a State. The code generator installs
// itself as the dispatcher so handlers can emit their argument nodes.
type Dispatcher interface {
	EmitExpr(st *State, e pyast.Expr) error
	Infer(e pyast.Expr) infer.Type
	// ElementType classifies the items produced by iterating e.
	ElementType(e pyast.Expr) infer.Type
	// Repr reports how the value of e is laid out.
	Repr(e pyast.Expr) Repr
}

// Repr is the target representation of a value.
type Repr int

const (
	// ReprValue is used as is: scalars, strings, slices, maps, instances.
	ReprValue Repr = iota
	// ReprList is a growable std.ArrayList; its elements live behind .items.
	ReprList
	// ReprArray is a fixed-size array.
	ReprArray
)

// ClassContext is the class whose body is being emitted and its resolved parent.
type ClassContext struct {
	Name   string
	Parent string
}

// State is the emission context threaded through every handler.
type State struct {
	buf         *strings.Builder
	indentUnit  string
	depth       int
	atLineStart bool
	enters      int
	exits       int
	labels      int
	classes     []ClassContext
	allocator   string
	allocUses   int
	tries       int
	caught      int
	catches     []*catchScope
	reserved    map[string]bool
	dispatcher  Dispatcher
	reqs        analyzer.RequirementSet
}

// Option configures a State.
type Option func(*State)

// WithIndent sets the text written once per indentation level.
func WithIndent(unit string) Option {
	return func(s *State) {
		if unit != "" {
			s.indentUnit = unit
		}
	}
}

// WithAllocatorName sets the identifier generated code uses for the allocator.
func WithAllocatorName(name string) Option {
	return func(s *State) {
		if name != "" {
			s.allocator = name
		}
	}
}

// NewState creates an empty State.
func NewState(opts ...Option) *State {
	s := &State{
		buf:         &strings.Builder{},
		indentUnit:  "    ",
		atLineStart: true,
		allocator:   "allocator",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDispatcher installs the expression lowerer.
func (s *State) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Write appends text, indenting first when at the start of a line.
func (s *State) Write(text string) {
	if text == "" {
		return
	}
	if s.atLineStart {
		s.buf.WriteString(strings.Repeat(s.indentUnit, s.depth))
		s.atLineStart = false
	}
	s.buf.WriteString(text)
}

// Writef appends formatted text.
func (s *State) Writef(format string, args ...any) {
	s.Write(fmt.Sprintf(format, args...))
}

// Newline ends the current line.
func (s *State) Newline() {
	s.buf.WriteByte('\n')
	s.atLineStart = true
}

// Line writes a complete line. An empty text writes a blank line without
// trailing indentation.
func (s *State) Line(text string) {
	s.Write(text)
	s.Newline()
}

// Linef writes a complete formatted line.
func (s *State) Linef(format string, args ...any) {
	s.Line(fmt.Sprintf(format, args...))
}

// Indent enters one indentation level.
func (s *State) Indent() {
	s.depth++
	s.enters++
}

// Dedent leaves one indentation level.
func (s *State) Dedent() error {
	if s.depth == 0 {
		return pyerr.NewSemanticError("unbalanced indentation: dedent at top level")
	}
	s.depth--
	s.exits++
	return nil
}

// Block runs fn one indentation level deeper and always restores the level.
func (s *State) Block(fn func() error) error {
	s.Indent()
	err := fn()
	if derr := s.Dedent(); err == nil {
		err = derr
	}
	return err
}

// Depth is the current indentation level.
func (s *State) Depth() int { return s.depth }

// Enters counts Indent calls.
func (s *State) Enters() int { return s.enters }

// Exits counts successful Dedent calls.
func (s *State) Exits() int { return s.exits }

// Balanced reports whether every entered level has been left.
func (s *State) Balanced() bool {
	return s.depth == 0 && s.enters == s.exits
}

// Reserve marks identifiers generated names must not take, usually every
// name the source module binds.
func (s *State) Reserve(names ...string) {
	if s.reserved == nil {
		s.reserved = make(map[string]bool, len(names))
	}
	for _, n := range names {
		s.reserved[n] = true
	}
}

// NewLabel returns a fresh block label. Suffixes increase monotonically for
// the lifetime of the State so labels never collide with each other. A
// suffix is skipped when the label, or a name derived from it as
// `<label>_<x>`, is reserved.
func (s *State) NewLabel(prefix string) string {
	for {
		s.labels++
		label := fmt.Sprintf("%s_%d", prefix, s.labels)
		if !s.taken(label) {
			return label
		}
	}
}

func (s *State) taken(label string) bool {
	if s.reserved[label] {
		return true
	}
	derived := label + "_"
	for name := range s.reserved {
		if strings.HasPrefix(name, derived) {
			return true
		}
	}
	return false
}

// Labels is the number of labels handed out so far.
func (s *State) Labels() int { return s.labels }

// EnterClass pushes the class whose methods are being emitted.
func (s *State) EnterClass(name, parent string) {
	s.classes = append(s.classes, ClassContext{Name: name, Parent: parent})
}

// ExitClass pops the innermost class.
func (s *State) ExitClass() {
	if len(s.classes) > 0 {
		s.classes = s.classes[:len(s.classes)-1]
	}
}

// CurrentClass returns the innermost enclosing class.
func (s *State) CurrentClass() (ClassContext, bool) {
	if len(s.classes) == 0 {
		return ClassContext{}, false
	}
	return s.classes[len(s.classes)-1], true
}

// Allocator is the identifier of the allocator in generated code. Every call
// counts as a use.
func (s *State) Allocator() string {
	s.allocUses++
	return s.allocator
}

// AllocatorName is the allocator identifier without counting a use. Function
// headers declare it with this.
func (s *State) AllocatorName() string { return s.allocator }

// AllocatorUses is how many times generated code referenced the allocator.
func (s *State) AllocatorUses() int { return s.allocUses }

// catchScope is an enclosing Python try body. Fallible calls inside it break
// out of `<label>_body` with their error instead of returning it.
type catchScope struct {
	label  string
	caught int
}

// Try opens a fallible call. Outside a try body it returns the `try ` prefix
// and counts it: the enclosing function needs an error union whenever the
// count moved while its body was emitted. Inside a try body it opens the
// parenthesized call that EndTry closes with a catch.
func (s *State) Try() string {
	if c := s.catchScope(); c != nil {
		c.caught++
		s.caught++
		return "("
	}
	s.tries++
	return "try "
}

// EndTry closes the call Try opened. It is empty outside a try body.
func (s *State) EndTry() string {
	c := s.catchScope()
	if c == nil {
		return ""
	}
	return fmt.Sprintf(" catch |%s_e| break :%s_body %s_e)", c.label, c.label, c.label)
}

// Propagate is the statement that passes err on: a break to the enclosing
// try body, or a return from the function, counted like Try.
func (s *State) Propagate(err string) string {
	if c := s.catchScope(); c != nil {
		c.caught++
		s.caught++
		return fmt.Sprintf("break :%s_body %s;", c.label, err)
	}
	s.tries++
	return "return " + err + ";"
}

// EnterTry makes label the innermost try body.
func (s *State) EnterTry(label string) {
	s.catches = append(s.catches, &catchScope{label: label})
}

// ExitTry leaves the innermost try body and reports how many fallible calls
// it caught.
func (s *State) ExitTry() int {
	n := len(s.catches)
	if n == 0 {
		return 0
	}
	c := s.catches[n-1]
	s.catches = s.catches[:n-1]
	return c.caught
}

func (s *State) catchScope() *catchScope {
	if len(s.catches) == 0 {
		return nil
	}
	return s.catches[len(s.catches)-1]
}

// Tries is how many `try` prefixes generated code has written.
func (s *State) Tries() int { return s.tries }

// Caught is how many fallible calls were routed to an enclosing try body.
func (s *State) Caught() int { return s.caught }

// EmitExpr lowers e at the current position.
func (s *State) EmitExpr(e pyast.Expr) error {
	if s.dispatcher == nil {
		return pyerr.NewSemanticError("no expression dispatcher installed")
	}
	return s.dispatcher.EmitExpr(s, e)
}

// EmitArgs lowers args separated by ", ".
func (s *State) EmitArgs(args []pyast.Expr) error {
	for i, a := range args {
		if i > 0 {
			s.Write(", ")
		}
		if err := s.EmitExpr(a); err != nil {
			return err
		}
	}
	return nil
}

// Infer classifies e, Unknown when no dispatcher is installed.
func (s *State) Infer(e pyast.Expr) infer.Type {
	if s.dispatcher == nil {
		return infer.Unknown
	}
	return s.dispatcher.Infer(e)
}

// ElementType classifies the items of iterable e.
func (s *State) ElementType(e pyast.Expr) infer.Type {
	if s.dispatcher == nil {
		return infer.Unknown
	}
	return s.dispatcher.ElementType(e)
}

// Repr reports how the value of e is laid out, ReprValue without a
// dispatcher.
func (s *State) Repr(e pyast.Expr) Repr {
	if s.dispatcher == nil {
		return ReprValue
	}
	return s.dispatcher.Repr(e)
}

// Allocated reports whether e is a growable list.
func (s *State) Allocated(e pyast.Expr) bool {
	return s.Repr(e) == ReprList
}

// EmitSlice lowers e as a slice of its elements: `.items` of a growable
// list, the address of a fixed array, the value itself otherwise.
func (s *State) EmitSlice(e pyast.Expr) error {
	switch s.Repr(e) {
	case ReprList:
		if err := s.EmitExpr(e); err != nil {
			return err
		}
		s.Write(".items")
		return nil
	case ReprArray:
		s.Write("&")
	}
	return s.EmitExpr(e)
}

// Capture runs fn against a scratch buffer and returns what it wrote, indented
// for splicing at the current position. Labels and requirements recorded by fn
// are kept.
func (s *State) Capture(fn func() error) (string, error) {
	saved, savedStart := s.buf, s.atLineStart
	s.buf, s.atLineStart = &strings.Builder{}, false
	err := fn()
	out := s.buf.String()
	s.buf, s.atLineStart = saved, savedStart
	return out, err
}

// CaptureExpr returns the lowering of e as text.
func (s *State) CaptureExpr(e pyast.Expr) (string, error) {
	return s.Capture(func() error { return s.EmitExpr(e) })
}

// CaptureLines runs fn against a scratch buffer starting on a fresh line at
// the current depth and returns the complete lines it wrote.
func (s *State) CaptureLines(fn func() error) (string, error) {
	saved, savedStart := s.buf, s.atLineStart
	s.buf, s.atLineStart = &strings.Builder{}, true
	err := fn()
	out := s.buf.String()
	s.buf, s.atLineStart = saved, savedStart
	return out, err
}

// Splice writes lines returned by CaptureLines, removing outdent levels of
// indentation from each.
func (s *State) Splice(lines string, outdent int) {
	if lines == "" {
		return
	}
	prefix := strings.Repeat(s.indentUnit, outdent)
	for _, l := range strings.SplitAfter(lines, "\n") {
		if l == "" {
			continue
		}
		s.buf.WriteString(strings.TrimPrefix(l, prefix))
	}
	s.atLineStart = strings.HasSuffix(lines, "\n")
}

// Require records capabilities the emitted code depends on beyond what the
// requirement analysis found.
func (s *State) Require(r analyzer.RequirementSet) {
	s.reqs = s.reqs.Merge(r)
}

// Requirements returns everything recorded with Require.
func (s *State) Requirements() analyzer.RequirementSet { return s.reqs }

// Discard writes value while still evaluating every call-valued argument for
// its side effects. Handlers that only inspect their arguments statically
// (isinstance, hasattr, getattr) use it so that no call is dropped and no
// value is left unused.
func (s *State) Discard(args []pyast.Expr, value string) error {
	var calls []pyast.Expr
	for _, a := range args {
		if _, ok := a.(*pyast.Call); ok {
			calls = append(calls, a)
		}
	}
	if len(calls) == 0 {
		s.Write(value)
		return nil
	}

	label := s.NewLabel("discard")
	s.Write(label + ": {")
	s.Newline()
	err := s.Block(func() error {
		for _, c := range calls {
			s.Write("_ = ")
			if err := s.EmitExpr(c); err != nil {
				return err
			}
			s.Line(";")
		}
		s.Linef("break :%s %s;", label, value)
		return nil
	})
	if err != nil {
		return err
	}
	s.Write("}")
	return nil
}

// String returns the buffer contents.
func (s *State) String() string { return s.buf.String() }

// Len is the buffer length in bytes.
func (s *State) Len() int { return s.buf.Len() }
