// Package commands provides the CLI commands for the pyaot tool.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"metal0/pyaot/internal/config"
	"metal0/pyaot/internal/logger"
)

var (
	configPath string
	verbose    bool
	logFormat  string

	// cfg is loaded before any command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pyaot [file.py...]",
	Short: "Ahead-of-time compiler from Python to Zig",
	Long: `pyaot compiles a statically typable subset of Python to Zig source.

Usage:
  pyaot main.py -o -              Compile a file and print the Zig source
  pyaot compile a.py b.py -j 4    Compile several files next to their sources
  pyaot analyze main.py           Show the runtime capabilities a file needs
  pyaot symbols json              List the supported json functions
  pyaot ast main.py               Print the parsed syntax tree
  pyaot version                   Print version

Settings are read from pyaot.yaml in the working directory when present.`,
	Args:              cobra.ArbitraryArgs,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	// Compile by default when .py files are given.
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		for _, a := range args {
			if !strings.HasSuffix(a, ".py") {
				return fmt.Errorf("unknown command %q for \"pyaot\"\nRun 'pyaot --help' for usage", a)
			}
		}
		return runCompile(cmd, args)
	},
}

// setup loads the configuration and initializes logging.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		c.LogLevel = "debug"
	}
	if logFormat != "" {
		c.LogFormat = logFormat
	}
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: level, Format: c.LogFormat, Output: cmd.ErrOrStderr()}); err != nil {
		return err
	}
	cfg = c
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(astCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the project file (default ./pyaot.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	// Mirror the compile flags for the shorthand form.
	addCompileFlags(rootCmd)
}
