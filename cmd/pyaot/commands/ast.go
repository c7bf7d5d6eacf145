package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"metal0/pyaot/internal/frontend"
	"metal0/pyaot/internal/logger"
	"metal0/pyaot/internal/pyast"
)

var astCmd = &cobra.Command{
	Use:   "ast file.py",
	Short: "Print the syntax tree the compiler sees",
	Long: `Parse a Python file and print the tree the compiler works on. Grouping is
made explicit with parentheses; constructs the compiler does not model are
shown as <Name>.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		mod, err := frontend.New(frontend.WithLogger(logger.Get())).Parse(cmd.Context(), src, args[0])
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), pyast.Dump(mod))
		return err
	},
}
