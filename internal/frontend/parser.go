// Package frontend turns Python source into the pyast tree.
//
// Parsing is done by tree-sitter's Python grammar. The concrete syntax tree is
// then lowered into pyast for the subset the compiler models. Statements and
// expressions outside that subset become OpaqueStmt and OpaqueExpr nodes so
// later phases can report them with a line number.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

const (
	// DefaultMaxFileSize is the largest source file accepted by default.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which parsing logs a warning.
	WarnFileSize = 1024 * 1024
)

var (
	ErrFileTooLarge   = errors.New("file too large")
	ErrInvalidContent = errors.New("invalid content")
)

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize sets the maximum accepted source size. Non-positive values
// are ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger used for parse warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.log = l
		}
	}
}

// Parser parses Python source with tree-sitter.
//
// A Parser is safe for concurrent use: every Parse call creates its own
// tree-sitter parser.
type Parser struct {
	maxFileSize int64
	log         *slog.Logger
}

// New creates a Parser with the given options.
func New(opts ...Option) *Parser {
	p := &Parser{
		maxFileSize: DefaultMaxFileSize,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extensions returns the file extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".py"}
}

// Parse parses src and lowers it into a module. Syntax errors are reported
// as *pyerr.SyntaxError carrying the position of the first error node.
func (p *Parser) Parse(ctx context.Context, src []byte, path string) (*pyast.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(src)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(src), p.maxFileSize)
	}
	if len(src) > WarnFileSize {
		p.log.Warn("parsing large file", slog.String("file", path), slog.Int("size_bytes", len(src)))
	}
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidContent, path)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("%w: %s produced no syntax tree", ErrInvalidContent, path)
	}
	if root.HasError() {
		return nil, syntaxError(root, src, path)
	}

	c := &converter{src: src, path: path}
	body, err := c.block(root)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after conversion: %w", err)
	}
	return &pyast.Module{Path: path, Body: body}, nil
}

// syntaxError locates the first error or missing node below n.
func syntaxError(n *sitter.Node, src []byte, path string) error {
	bad := firstError(n)
	if bad == nil {
		bad = n
	}
	pt := bad.StartPoint()
	msg := "invalid syntax"
	switch {
	case bad.IsMissing():
		msg = fmt.Sprintf("expected %q", bad.Type())
	case bad.IsError():
		if text := bad.Content(src); text != "" && len(text) <= 40 {
			msg = fmt.Sprintf("invalid syntax near %q", text)
		}
	}
	return pyerr.NewSyntaxErrorInFile(path, int(pt.Row)+1, int(pt.Column)+1, msg)
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}
