package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"metal0/pyaot/internal/compiler/registry"
	"metal0/pyaot/internal/compiler/stdlib"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [module]",
	Short: "List the library functions the compiler supports",
	Long: `List the registered Python symbols with their accepted argument counts
and result types. Pass a module (json, str, builtins, ...) to filter.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSymbols,
}

func runSymbols(cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) == 1 {
		prefix = args[0] + "."
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	found := 0
	for _, sym := range stdlib.Global.Symbols() {
		if !strings.HasPrefix(sym, prefix) {
			continue
		}
		e, _ := stdlib.Global.Lookup(sym)
		returns := e.Returns.String()
		if e.Void {
			returns = "None"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sym, arity(e), returns, e.Requires)
		found++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("no symbols registered for module %q", args[0])
	}
	return nil
}

func arity(e *registry.Entry) string {
	switch {
	case e.MaxArgs == registry.Variadic:
		return fmt.Sprintf("%d+", e.MinArgs)
	case e.MinArgs == e.MaxArgs:
		return fmt.Sprint(e.MinArgs)
	default:
		return fmt.Sprintf("%d-%d", e.MinArgs, e.MaxArgs)
	}
}
