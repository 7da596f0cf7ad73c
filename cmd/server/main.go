package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/config"
	persistlog "shipscore.ai/internal/persistence/log"
	"shipscore.ai/internal/scorewatch"
	"shipscore.ai/internal/transport/ws"
	"shipscore.ai/internal/vschem/materials"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/scoring"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "", "path to analyser.yaml (optional)")
		scoresPath = flag.String("scores", "", "score table path (overrides score_table)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides data_dir)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite analysis index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if s := strings.TrimSpace(*scoresPath); s != "" {
		cfg.ScoreTable = s
	}
	if d := strings.TrimSpace(*dataDir); d != "" {
		cfg.DataDir = d
		cfg.JournalDir = ""
		cfg.IndexDB = ""
		cfg.Normalize()
	}
	if *disableDB {
		cfg.DisableDB = true
	}

	table, err := scoring.Load(cfg.ScoreTable)
	if err != nil {
		logger.Fatalf("load score table: %v", err)
	}
	logger.Printf("score table %s rules=%d", cfg.ScoreTable, len(table.Rules))
	holder := scorewatch.NewHolder(table)

	idx, err := openIndex(cfg, logger)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	// The mirror closes after the journal so the final file is uploaded.
	mirror, err := openMirror(cfg, log.New(os.Stdout, "[mirror] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("journal mirror: %v", err)
	}
	if mirror != nil {
		defer mirror.Close()
	}

	journal := persistlog.NewReportLogger(cfg.JournalDir)
	defer journal.Close()
	if mirror != nil {
		journal.OnRotate(mirror.Enqueue)
	}

	analyzer := &analysis.Analyzer{
		Mapper:          materials.Default(),
		Scores:          holder,
		Prefixes:        cfg.NamespacePrefixes,
		HeaderMaxLength: cfg.HeaderMaxLength,
		OnGrid: func(g *model.ShipGrid) {
			if g.Bounds.Empty {
				return
			}
			sz := g.Bounds.Size()
			if sz[0] > 4096 || sz[1] > 4096 || sz[2] > 4096 {
				logger.Printf("grid %s spans %dx%dx%d", g.ID, sz[0], sz[1], sz[2])
			}
		},
	}

	opts := ws.Options{
		Analyzer:       analyzer,
		Journal:        journal,
		Logger:         log.New(os.Stdout, "[rate] ", log.LstdFlags|log.Lmicroseconds),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	if idx != nil {
		opts.Index = idx
	}
	srv := ws.NewServer(opts)

	mux := http.NewServeMux()
	srv.Routes(mux)
	mux.HandleFunc("/metrics", metricsHandler(srv, holder, idx, mirror))

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSrv.RegisterOnShutdown(srv.CloseSessions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.WatchScoreTable {
		w, err := scorewatch.NewWatcher(cfg.ScoreTable, holder, log.New(os.Stdout, "[scores] ", log.LstdFlags|log.Lmicroseconds))
		if err != nil {
			logger.Fatalf("watch score table: %v", err)
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		// Sessions must be gone before the deferred journal.Close.
		if werr := srv.WaitSessions(shutdownCtx); werr != nil {
			logger.Printf("websocket sessions still open: %v", werr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Printf("server stopped: %v", err)
	}
}
