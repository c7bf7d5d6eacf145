package compiler

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"metal0/pyaot/internal/compiler/codegen"
	"metal0/pyaot/pyerr"
)

// FileResult is the outcome of compiling one file.
type FileResult struct {
	Path   string
	Result *codegen.Result
	Err    error
}

// CompileFiles compiles paths with at most jobs files in flight. Results come
// back in input order. Per-file compile errors are collected into a
// *pyerr.MultiError; emit runs for each successful file and its error aborts
// the batch.
func CompileFiles(ctx context.Context, c Compiler, paths []string, jobs int, emit func(FileResult) error) ([]FileResult, error) {
	if jobs < 1 {
		jobs = 1
	}
	results := make([]FileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = compileFile(ctx, c, path)
			if results[i].Err != nil || emit == nil {
				return nil
			}
			return emit(results[i])
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var failed []error
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Err)
		}
	}
	if len(failed) > 0 {
		return results, &pyerr.MultiError{Errors: failed}
	}
	return results, nil
}

func compileFile(ctx context.Context, c Compiler, path string) FileResult {
	src, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: path, Err: fmt.Errorf("reading source: %w", err)}
	}
	res, err := c.Compile(ctx, src, path)
	return FileResult{Path: path, Result: res, Err: err}
}
