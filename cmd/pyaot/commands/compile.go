package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"metal0/pyaot/internal/compiler"
	"metal0/pyaot/internal/logger"
)

var (
	compileOutput    string
	compileOutDir    string
	compileJobs      int
	compileAllocator string
)

var compileCmd = &cobra.Command{
	Use:   "compile file.py [file.py...]",
	Short: "Compile Python source files to Zig",
	Long: `Compile Python source files to Zig source.

Each input is written to a .zig file next to it, or into --out-dir when set.
Files compile concurrently; every failing file is reported.

Examples:
  pyaot compile main.py                 # writes main.zig
  pyaot compile main.py -o -            # prints to stdout
  pyaot compile src/*.py -d build -j 8  # writes build/<name>.zig`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func init() {
	addCompileFlags(compileCmd)
}

func addCompileFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Output .zig file for a single input, - for stdout")
	cmd.Flags().StringVarP(&compileOutDir, "out-dir", "d", "", "Directory receiving the generated files")
	cmd.Flags().IntVarP(&compileJobs, "jobs", "j", 0, "Files compiled concurrently (default from config)")
	cmd.Flags().StringVar(&compileAllocator, "allocator", "", "Allocator set up by main: arena or gpa")
}

func runCompile(cmd *cobra.Command, args []string) error {
	if compileOutput != "" && len(args) > 1 {
		return errors.New("--output requires a single input file")
	}
	if compileAllocator != "" {
		cfg.Allocator = compileAllocator
	}
	if compileJobs > 0 {
		cfg.Jobs = compileJobs
	}
	if compileOutDir != "" {
		cfg.OutDir = compileOutDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	write := func(r compiler.FileResult) error {
		if compileOutput == "-" {
			_, err := io.WriteString(out, r.Result.Source)
			return err
		}
		path := compileOutput
		if path == "" {
			path = cfg.OutputPath(r.Path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(r.Result.Source), 0o644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s -> %s\n", r.Path, path)
		return nil
	}

	c := compiler.New(cfg, logger.Get())
	_, err := compiler.CompileFiles(cmd.Context(), c, args, cfg.Jobs, write)
	return err
}
