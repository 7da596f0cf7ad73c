package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/config"
	"shipscore.ai/internal/persistence/indexdb"
	persistlog "shipscore.ai/internal/persistence/log"
	"shipscore.ai/internal/vschem/materials"
	"shipscore.ai/internal/vschem/scoring"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Rate one or more schematic files",
		Long: `Decodes each file, counts its blocks and camouflage materials, and prints
the rating summary. Files are analysed in parallel; output keeps argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyze,
	}
	cmd.Flags().String("scores", "", "score table path (overrides score_table)")
	cmd.Flags().Bool("json", false, "print full reports as JSON lines")
	cmd.Flags().Bool("counts", false, "print every leaf count after the summary")
	cmd.Flags().Bool("record", false, "journal and index the reports like the server does")
	return cmd
}

type fileResult struct {
	path   string
	report *analysis.Report
	err    error
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if s, _ := cmd.Flags().GetString("scores"); s != "" {
		cfg.ScoreTable = s
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	showCounts, _ := cmd.Flags().GetBool("counts")
	record, _ := cmd.Flags().GetBool("record")

	table, err := scoring.Load(cfg.ScoreTable)
	if err != nil {
		return fmt.Errorf("load score table: %w", err)
	}
	a := &analysis.Analyzer{
		Mapper:          materials.Default(),
		Scores:          analysis.Static{T: table},
		Prefixes:        cfg.NamespacePrefixes,
		HeaderMaxLength: cfg.HeaderMaxLength,
	}

	results := make([]fileResult, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.NumCPU())
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			results[i].path = path
			data, err := os.ReadFile(path)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].report, results[i].err = a.Analyze(ctx, filepath.Base(path), data)
			return nil
		})
	}
	_ = g.Wait()

	var (
		journal *persistlog.ReportLogger
		idx     *indexdb.SQLiteIndex
	)
	if record {
		journal = persistlog.NewReportLogger(cfg.JournalDir)
		defer journal.Close()
		if !cfg.DisableDB {
			idx, err = indexdb.OpenSQLite(cfg.IndexDB)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer idx.Close()
		}
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %v\n", r.path, analysis.Failure(""), r.err)
			continue
		}
		if journal != nil {
			if err := journal.WriteReport(r.report); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
		}
		if idx != nil {
			idx.RecordAnalysis(r.report)
		}
		if asJSON {
			if err := enc.Encode(r.report); err != nil {
				return err
			}
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(out, "== %s\n", r.path)
		}
		fmt.Fprint(out, analysis.Summary("", r.report.Stats))
		if showCounts {
			r.report.Counts.Leaves(func(key string, n uint64) {
				fmt.Fprintf(out, "  %-48s %d\n", key, n)
			})
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
