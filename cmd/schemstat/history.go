package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/persistence/indexdb"
	persistlog "shipscore.ai/internal/persistence/log"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analyses",
		Long: `Lists analyses newest first from the sqlite index. With --journal the
compressed report journal is scanned instead, which works when the index
is disabled or was rebuilt.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
	cmd.Flags().String("db", "", "index database path (overrides index_db)")
	cmd.Flags().Int("limit", 20, "maximum rows")
	cmd.Flags().String("digest", "", "only analyses of this file digest")
	cmd.Flags().Bool("journal", false, "read the report journal instead of the index")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	digest, _ := cmd.Flags().GetString("digest")
	fromJournal, _ := cmd.Flags().GetBool("journal")

	var rows []indexdb.Analysis
	if fromJournal {
		rows, err = journalHistory(cfg.JournalDir, digest, limit)
	} else {
		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			dbPath = cfg.IndexDB
		}
		rows, err = indexHistory(cmd, dbPath, digest, limit)
	}
	if err != nil {
		return err
	}
	printAnalyses(cmd.OutOrStdout(), rows)
	return nil
}

func indexHistory(cmd *cobra.Command, dbPath, digest string, limit int) ([]indexdb.Analysis, error) {
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()
	if digest != "" {
		rows, err := idx.ByDigest(cmd.Context(), digest)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil
	}
	return idx.Recent(cmd.Context(), limit)
}

// journalHistory keeps the newest limit reports across all journal files.
func journalHistory(dir, digest string, limit int) ([]indexdb.Analysis, error) {
	files, err := persistlog.JournalFiles(dir)
	if err != nil {
		return nil, err
	}
	var rows []indexdb.Analysis
	for _, f := range files {
		err := persistlog.ReadReports(f, func(r *analysis.Report) error {
			if digest != "" && r.Digest != digest {
				return nil
			}
			rows = append(rows, indexdb.Analysis{
				ID:          r.ID,
				Source:      r.Source,
				Digest:      r.Digest,
				Grids:       r.Stats.GridCount,
				Entities:    r.Stats.EntityCount,
				Blocks:      r.Stats.TotalBlockCount,
				Power:       r.Stats.TotalPower,
				ScoreDigest: r.ScoreDigest,
				AnalyzedAt:  r.AnalyzedAt,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	// Files are hourly and lines are appended in order, so reversing gives
	// newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func printAnalyses(w io.Writer, rows []indexdb.Analysis) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tGRIDS\tENTITIES\tBLOCKS\tPOWER\tANALYZED")
	for _, a := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			a.ID, a.Source, a.Grids, a.Entities, a.Blocks, a.Power, a.AnalyzedAt.UTC().Format(time.RFC3339))
	}
	_ = tw.Flush()
}
