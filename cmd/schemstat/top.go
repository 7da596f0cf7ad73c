package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shipscore.ai/internal/persistence/indexdb"
)

func newTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top <analysis-id>",
		Short: "Show the largest block counts of one analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  runTop,
	}
	cmd.Flags().String("db", "", "index database path (overrides index_db)")
	cmd.Flags().Int("limit", 10, "maximum rows")
	return cmd
}

func runTop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.IndexDB
	}
	limit, _ := cmd.Flags().GetInt("limit")

	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	rows, err := idx.TopBlocks(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no block counts for analysis %s", args[0])
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tMATERIAL\tCOUNT")
	for _, r := range rows {
		mat := r.Material
		if mat == "" {
			mat = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Block, mat, r.Count)
	}
	return tw.Flush()
}
