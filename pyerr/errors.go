// Package pyerr defines the error taxonomy shared by every compiler phase.
package pyerr

import (
	"fmt"
	"strings"
)

// ErrorType defines the category of the error.
type ErrorType string

const (
	TypeSyntax           ErrorType = "SyntaxError"
	TypeSemantic         ErrorType = "SemanticError"
	TypeUnresolvedSymbol ErrorType = "UnresolvedSymbol"
	TypeArityMismatch    ErrorType = "ArityMismatch"
	TypeAnalysisGap      ErrorType = "AnalysisGap"
)

// CompileError is the interface for all compiler errors.
type CompileError interface {
	error
	Type() ErrorType
}

// BaseError provides common fields for compiler errors.
type BaseError struct {
	Msg     string
	ErrType ErrorType
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.ErrType, e.Msg)
}

func (e *BaseError) Type() ErrorType {
	return e.ErrType
}

// SyntaxError is reported by the frontend when the source does not parse.
type SyntaxError struct {
	BaseError
	Line     int
	Column   int
	FilePath string
}

func (e *SyntaxError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("[%s] %s:%d:%d %s", e.ErrType, e.FilePath, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("[%s] line %d:%d %s", e.ErrType, e.Line, e.Column, e.Msg)
}

// SemanticError represents a construct the compiler understands but cannot lower.
type SemanticError struct {
	BaseError
	Line int
}

func (e *SemanticError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", e.ErrType, e.Line, e.Msg)
	}
	return fmt.Sprintf("[%s] %s", e.ErrType, e.Msg)
}

// UnresolvedSymbolError is raised when a call or attribute has no registered handler.
// It aborts emission of the enclosing module.
type UnresolvedSymbolError struct {
	BaseError
	Symbol string
	Line   int
}

func (e *UnresolvedSymbolError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: no handler registered for %s", e.ErrType, e.Line, e.Symbol)
	}
	return fmt.Sprintf("[%s] no handler registered for %s", e.ErrType, e.Symbol)
}

// ArityError is raised when a handler receives an argument count outside its declared range.
// Max < 0 means the handler accepts any number of trailing arguments.
type ArityError struct {
	BaseError
	Symbol string
	Got    int
	Min    int
	Max    int
}

func (e *ArityError) Error() string {
	var want string
	switch {
	case e.Max < 0:
		want = fmt.Sprintf("at least %d", e.Min)
	case e.Min == e.Max:
		want = fmt.Sprintf("%d", e.Min)
	default:
		want = fmt.Sprintf("%d to %d", e.Min, e.Max)
	}
	return fmt.Sprintf("[%s] %s takes %s argument(s), got %d", e.ErrType, e.Symbol, want, e.Got)
}

// AnalysisGap records an AST shape the requirement analyzer did not recognize.
// It is a warning: the analyzer treats the node as requiring nothing.
type AnalysisGap struct {
	BaseError
	Node string
	Line int
}

func (e *AnalysisGap) Error() string {
	return fmt.Sprintf("[%s] line %d: unrecognized node %s treated as requiring nothing", e.ErrType, e.Line, e.Node)
}

// MultiError collects multiple compiler errors.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error(s) occurred:\n", len(m.Errors)))
	for _, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("- %v\n", err))
	}
	return sb.String()
}

func (m *MultiError) Type() ErrorType {
	if len(m.Errors) > 0 {
		if ce, ok := m.Errors[0].(CompileError); ok {
			return ce.Type()
		}
	}
	return "MultiError"
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// NewSyntaxError creates a new SyntaxError.
func NewSyntaxError(line, column int, msg string) *SyntaxError {
	return &SyntaxError{
		BaseError: BaseError{Msg: msg, ErrType: TypeSyntax},
		Line:      line,
		Column:    column,
	}
}

// NewSyntaxErrorInFile creates a SyntaxError carrying the source path.
func NewSyntaxErrorInFile(filePath string, line, column int, msg string) *SyntaxError {
	err := NewSyntaxError(line, column, msg)
	err.FilePath = filePath
	return err
}

// NewSemanticError creates a new SemanticError.
func NewSemanticError(msg string) *SemanticError {
	return &SemanticError{
		BaseError: BaseError{Msg: msg, ErrType: TypeSemantic},
	}
}

// NewSemanticErrorAt creates a SemanticError with a source line.
func NewSemanticErrorAt(line int, msg string) *SemanticError {
	err := NewSemanticError(msg)
	err.Line = line
	return err
}

// NewUnresolvedSymbol creates an UnresolvedSymbolError for the qualified symbol.
func NewUnresolvedSymbol(symbol string, line int) *UnresolvedSymbolError {
	return &UnresolvedSymbolError{
		BaseError: BaseError{Msg: "unresolved symbol " + symbol, ErrType: TypeUnresolvedSymbol},
		Symbol:    symbol,
		Line:      line,
	}
}

// NewArityError creates an ArityError.
func NewArityError(symbol string, got, min, max int) *ArityError {
	return &ArityError{
		BaseError: BaseError{Msg: "arity mismatch for " + symbol, ErrType: TypeArityMismatch},
		Symbol:    symbol,
		Got:       got,
		Min:       min,
		Max:       max,
	}
}

// NewAnalysisGap creates an AnalysisGap warning for the named node kind.
func NewAnalysisGap(node string, line int) *AnalysisGap {
	return &AnalysisGap{
		BaseError: BaseError{Msg: "unrecognized node " + node, ErrType: TypeAnalysisGap},
		Node:      node,
		Line:      line,
	}
}
