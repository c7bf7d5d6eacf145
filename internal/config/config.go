// Package config holds compiler settings: defaults, environment overrides and
// the optional pyaot.yaml project file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"metal0/pyaot/internal/compiler/codegen"
)

// FileName is the project file looked up in the working directory.
const FileName = "pyaot.yaml"

// RuntimeModules are the Zig modules generated code may import.
var RuntimeModules = []string{"runtime", "json", "http", "asyncio", "strutil", "hashmap_helper"}

// Config holds configuration for a compilation run.
type Config struct {
	// Home is the root directory for pyaot data.
	// Defaults to PYAOT_HOME, then ~/.pyaot
	Home string `yaml:"-"`

	// RuntimePath is the directory holding the Zig runtime modules. When set,
	// imports point at RuntimePath/<module>.zig instead of bare module names.
	// Defaults to PYAOT_RUNTIME_PATH
	RuntimePath string `yaml:"runtime_path"`

	// Imports overrides the import path of single runtime modules.
	Imports map[string]string `yaml:"imports"`

	// OutDir receives generated files. Empty means next to the source.
	OutDir string `yaml:"out_dir"`

	// Indent is the number of spaces per indentation level.
	Indent int `yaml:"indent"`

	// Allocator is the allocator main() sets up: arena or gpa.
	Allocator string `yaml:"allocator"`

	// Jobs bounds how many files compile concurrently.
	Jobs int `yaml:"jobs"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns the default configuration with environment overrides
// applied.
func DefaultConfig() *Config {
	return &Config{
		Home:        defaultHome(),
		RuntimePath: os.Getenv("PYAOT_RUNTIME_PATH"),
		Imports:     map[string]string{},
		Indent:      4,
		Allocator:   string(codegen.ArenaAllocator),
		Jobs:        runtime.NumCPU(),
		LogLevel:    "warn",
		LogFormat:   "text",
	}
}

// defaultHome uses PYAOT_HOME if set, otherwise ~/.pyaot.
func defaultHome() string {
	if dir := os.Getenv("PYAOT_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pyaot")
	}
	return filepath.Join(homeDir, ".pyaot")
}

// Load returns the defaults overlaid with the project file at path. An empty
// path looks for pyaot.yaml in the working directory and tolerates its
// absence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = FileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return cfg, nil
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c and validates the result. Unknown keys
// are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return c.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch codegen.AllocatorKind(c.Allocator) {
	case codegen.ArenaAllocator, codegen.GPAAllocator:
	default:
		return fmt.Errorf("allocator must be %q or %q, got %q", codegen.ArenaAllocator, codegen.GPAAllocator, c.Allocator)
	}
	if c.Indent < 1 || c.Indent > 8 {
		return fmt.Errorf("indent must be between 1 and 8, got %d", c.Indent)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	known := make(map[string]bool, len(RuntimeModules))
	for _, m := range RuntimeModules {
		known[m] = true
	}
	var unknown []string
	for name := range c.Imports {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown runtime modules in imports: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// ImportPath returns the import path for a runtime module.
func (c *Config) ImportPath(module string) string {
	if p, ok := c.Imports[module]; ok {
		return p
	}
	if c.RuntimePath != "" {
		return filepath.ToSlash(filepath.Join(c.RuntimePath, module+".zig"))
	}
	return module
}

// CodegenOptions translates the configuration into generator options.
func (c *Config) CodegenOptions() []codegen.Option {
	opts := []codegen.Option{
		codegen.WithIndent(strings.Repeat(" ", c.Indent)),
		codegen.WithAllocator(codegen.AllocatorKind(c.Allocator)),
	}
	for _, m := range RuntimeModules {
		if p := c.ImportPath(m); p != m {
			opts = append(opts, codegen.WithImportPath(m, p))
		}
	}
	return opts
}

// OutputPath returns where the Zig file for src is written.
func (c *Config) OutputPath(src string) string {
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".zig"
	if c.OutDir != "" {
		return filepath.Join(c.OutDir, name)
	}
	return filepath.Join(filepath.Dir(src), name)
}
