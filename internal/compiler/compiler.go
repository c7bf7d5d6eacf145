// Package compiler wires the Python frontend to the Zig generator.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/compiler/codegen"
	"metal0/pyaot/internal/config"
	"metal0/pyaot/internal/frontend"
	"metal0/pyaot/internal/pyast"
	"metal0/pyaot/pyerr"
)

// Parser parses Python source into a module.
type Parser interface {
	Parse(ctx context.Context, src []byte, path string) (*pyast.Module, error)
}

// Generator lowers a parsed module to Zig source.
type Generator interface {
	Generate(mod *pyast.Module) (*codegen.Result, error)
}

// Compiler defines the high-level interface for the Python to Zig conversion.
type Compiler interface {
	Compile(ctx context.Context, src []byte, path string) (*codegen.Result, error)
}

// PythonToZigCompiler orchestrates the compilation process.
type PythonToZigCompiler struct {
	parser    Parser
	generator Generator
	log       *slog.Logger
}

// NewPythonToZigCompiler creates a compiler from its dependencies. A nil
// logger uses slog's default.
func NewPythonToZigCompiler(parser Parser, generator Generator, log *slog.Logger) *PythonToZigCompiler {
	if log == nil {
		log = slog.Default()
	}
	return &PythonToZigCompiler{parser: parser, generator: generator, log: log}
}

// New builds the tree-sitter frontend and the stdlib-backed generator from
// cfg.
func New(cfg *config.Config, log *slog.Logger) *PythonToZigCompiler {
	if log == nil {
		log = slog.Default()
	}
	return NewPythonToZigCompiler(
		frontend.New(frontend.WithLogger(log)),
		codegen.NewGenerator(nil, cfg.CodegenOptions()...),
		log,
	)
}

// Compile executes the full pipeline. Errors after parsing are prefixed with
// path; analysis gaps are logged as warnings.
func (c *PythonToZigCompiler) Compile(ctx context.Context, src []byte, path string) (*codegen.Result, error) {
	mod, err := c.parse(ctx, src, path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.generator.Generate(mod)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.log.Debug("generated", "file", path, "bytes", len(res.Source), "labels", res.Labels, "elapsed", time.Since(start))
	c.warnGaps(path, res.Gaps)
	return res, nil
}

// Analyze parses src and reports its requirements without generating code.
func (c *PythonToZigCompiler) Analyze(ctx context.Context, src []byte, path string) (analyzer.RequirementSet, []*pyerr.AnalysisGap, error) {
	mod, err := c.parse(ctx, src, path)
	if err != nil {
		return analyzer.RequirementSet{}, nil, err
	}
	an := analyzer.New()
	reqs := an.Module(mod)
	return reqs, an.Gaps(), nil
}

func (c *PythonToZigCompiler) parse(ctx context.Context, src []byte, path string) (*pyast.Module, error) {
	start := time.Now()
	mod, err := c.parser.Parse(ctx, src, path)
	if err != nil {
		return nil, err
	}
	c.log.Debug("parsed", "file", path, "statements", len(mod.Body), "elapsed", time.Since(start))
	return mod, nil
}

func (c *PythonToZigCompiler) warnGaps(path string, gaps []*pyerr.AnalysisGap) {
	for _, g := range gaps {
		c.log.Warn("unrecognized node treated as requiring nothing", "file", path, "node", g.Node, "line", g.Line)
	}
}

var _ Compiler = (*PythonToZigCompiler)(nil)
