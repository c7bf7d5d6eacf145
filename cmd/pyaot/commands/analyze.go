package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"metal0/pyaot/internal/compiler"
	"metal0/pyaot/internal/compiler/analyzer"
	"metal0/pyaot/internal/logger"
)

var analyzeFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze file.py [file.py...]",
	Short: "Report the runtime capabilities Python files need",
	Long: `Report which runtime modules and whether an allocator the generated Zig
code for each file needs, plus any syntax the analysis did not recognize.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "text", "Output format: text or yaml")
}

// analysis is one file's report.
type analysis struct {
	File         string                  `yaml:"file"`
	Requirements analyzer.RequirementSet `yaml:"requirements"`
	Gaps         []string                `yaml:"gaps,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeFormat != "text" && analyzeFormat != "yaml" {
		return fmt.Errorf("unknown format %q", analyzeFormat)
	}
	c := compiler.New(cfg, logger.Get())

	var reports []analysis
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		reqs, gaps, err := c.Analyze(cmd.Context(), src, path)
		if err != nil {
			return err
		}
		reports = append(reports, analysis{File: path, Requirements: reqs, Gaps: analyzer.Describe(gaps)})
	}

	out := cmd.OutOrStdout()
	if analyzeFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(reports)
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%s: %s\n", r.File, r.Requirements)
		for _, g := range r.Gaps {
			fmt.Fprintf(out, "  %s\n", g)
		}
	}
	return nil
}
