package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schemstat",
		Short:         "Rate ship schematics and inspect the analysis history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to analyser.yaml (optional)")

	root.AddCommand(newAnalyzeCmd(), newHistoryCmd(), newTopCmd())
	return root
}
