package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"shipscore.ai/internal/analysis"
)

// SQLiteIndex is a queryable history of analyses. Writes are queued and
// applied by a single writer goroutine; the report journal stays the source
// of truth, so a full queue drops rows instead of blocking callers.
type SQLiteIndex struct {
	db *sql.DB

	mu     sync.RWMutex
	ch     chan *analysis.Report
	closed bool
	wg     sync.WaitGroup
	once   sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

// Stats reports queue health.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	WrittenTotal  uint64 `json:"written_total"`
}

// Analysis is one row of the analyses table.
// timeLayout is fixed width so analyzed_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Analysis struct {
	ID          string
	Source      string
	Digest      string
	Grids       int
	Entities    int
	Blocks      uint64
	Power       int64
	ScoreDigest string
	AnalyzedAt  time.Time
}

// BlockCount is one leaf of a stored count structure. Material is empty for
// flat entries.
type BlockCount struct {
	Block    string
	Material string
	Count    uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 4096)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan *analysis.Report, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			digest TEXT NOT NULL,
			size INTEGER NOT NULL,
			grids INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			contraptions INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			power INTEGER NOT NULL,
			score_digest TEXT NOT NULL,
			analyzed_at TEXT NOT NULL,
			counts_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_digest ON analyses(digest, analyzed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_time ON analyses(analyzed_at);`,
		`CREATE TABLE IF NOT EXISTS block_counts (
			analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			block TEXT NOT NULL,
			material TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (analysis_id, block, material)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_block_counts_block ON block_counts(block);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordAnalysis queues r for insertion.
func (s *SQLiteIndex) RecordAnalysis(r *analysis.Report) {
	if s == nil || r == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropped.Load(),
		WrittenTotal:  s.written.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	for r := range s.ch {
		if err := s.insert(ctx, r); err != nil {
			s.dropped.Add(1)
			continue
		}
		s.written.Add(1)
	}
}

func (s *SQLiteIndex) insert(ctx context.Context, r *analysis.Report) error {
	countsJSON, err := json.Marshal(r.Counts)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO analyses(id,source,digest,size,grids,entities,contraptions,blocks,power,score_digest,analyzed_at,counts_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID,
		r.Source,
		r.Digest,
		r.Size,
		r.Stats.GridCount,
		r.Stats.EntityCount,
		r.Contraptions,
		int64(r.Stats.TotalBlockCount),
		r.Stats.TotalPower,
		r.ScoreDigest,
		r.AnalyzedAt.UTC().Format(timeLayout),
		string(countsJSON),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO block_counts(analysis_id,block,material,count) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if r.Counts != nil {
		for _, name := range r.Counts.Names() {
			e, _ := r.Counts.Get(name)
			if !e.IsNested() {
				if _, err := stmt.ExecContext(ctx, r.ID, name, "", int64(e.Flat)); err != nil {
					return err
				}
				continue
			}
			for mat, n := range e.Nested {
				if _, err := stmt.ExecContext(ctx, r.ID, name, mat, int64(n)); err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

const analysisColumns = `id,source,digest,grids,entities,blocks,power,score_digest,analyzed_at`

func scanAnalyses(rows *sql.Rows) ([]Analysis, error) {
	defer rows.Close()
	var out []Analysis
	for rows.Next() {
		var (
			a      Analysis
			blocks int64
			at     string
		)
		if err := rows.Scan(&a.ID, &a.Source, &a.Digest, &a.Grids, &a.Entities, &blocks, &a.Power, &a.ScoreDigest, &at); err != nil {
			return nil, err
		}
		a.Blocks = uint64(blocks)
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("analysis %s: analyzed_at: %w", a.ID, err)
		}
		a.AnalyzedAt = t
		out = append(out, a)
	}
	return out, rows.Err()
}

// Recent returns the newest analyses first.
func (s *SQLiteIndex) Recent(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+analysisColumns+` FROM analyses ORDER BY analyzed_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanAnalyses(rows)
}

// ByDigest returns every analysis of the same file contents, newest first.
func (s *SQLiteIndex) ByDigest(ctx context.Context, digest string) ([]Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE digest=? ORDER BY analyzed_at DESC, id`, digest)
	if err != nil {
		return nil, err
	}
	return scanAnalyses(rows)
}

// TopBlocks returns the largest leaf counts of one analysis.
func (s *SQLiteIndex) TopBlocks(ctx context.Context, id string, limit int) ([]BlockCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT block,material,count FROM block_counts WHERE analysis_id=? ORDER BY count DESC, block, material LIMIT ?`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BlockCount
	for rows.Next() {
		var (
			b BlockCount
			n int64
		)
		if err := rows.Scan(&b.Block, &b.Material, &n); err != nil {
			return nil, err
		}
		b.Count = uint64(n)
		out = append(out, b)
	}
	return out, rows.Err()
}
