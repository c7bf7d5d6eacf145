package commands

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"metal0/pyaot/internal/compiler/stdlib"
	"metal0/pyaot/internal/config"
)

// Build stamps, set with -ldflags "-X metal0/pyaot/cmd/pyaot/commands.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	versionShort  bool
	versionFormat string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the compiler version and what it targets",
	Long: `Print the pyaot release, the commit and date it was built from and the Go
toolchain that built it. The report also lists the Python modules the compiler
can lower and the Zig runtime modules generated code may import, resolved
against the configured runtime path.

With --short only the release is printed.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the release")
	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format: text or yaml")
}

// buildReport is everything `pyaot version` prints.
type buildReport struct {
	Version        string   `yaml:"version"`
	Commit         string   `yaml:"commit,omitempty"`
	Built          string   `yaml:"built,omitempty"`
	Go             string   `yaml:"go"`
	PythonModules  []string `yaml:"python_modules"`
	RuntimeModules []string `yaml:"runtime_modules"`
}

func newBuildReport() buildReport {
	r := buildReport{
		Version:       Version,
		Go:            runtime.Version(),
		PythonModules: stdlib.Modules(),
	}
	if GitCommit != "unknown" {
		r.Commit = GitCommit
	}
	if BuildDate != "unknown" {
		r.Built = BuildDate
	}
	for _, m := range config.RuntimeModules {
		if path := cfg.ImportPath(m); path != m {
			m += " (" + path + ")"
		}
		r.RuntimeModules = append(r.RuntimeModules, m)
	}
	return r
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if versionShort {
		fmt.Fprintln(out, Version)
		return nil
	}
	r := newBuildReport()
	switch versionFormat {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(r)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", versionFormat)
	}

	fmt.Fprintf(out, "pyaot %s (%s)\n", r.Version, r.Go)
	if r.Commit != "" {
		fmt.Fprintf(out, "commit:  %s\n", r.Commit)
	}
	if r.Built != "" {
		fmt.Fprintf(out, "built:   %s\n", r.Built)
	}
	fmt.Fprintf(out, "python:  %s\n", strings.Join(r.PythonModules, ", "))
	fmt.Fprintf(out, "runtime: %s\n", strings.Join(r.RuntimeModules, ", "))
	return nil
}
