package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/scoring"
	"shipscore.ai/internal/vschem/tally"
)

func report(id string, blocks uint64) *analysis.Report {
	c := tally.NewCounts()
	c.Increment("minecraft:stone")
	c.AddNested("create:copycat", []*model.BlockState{{Name: "minecraft:oak_planks"}})
	return &analysis.Report{
		ID:     id,
		Source: id + ".vschem",
		Stats:  scoring.Stats{GridCount: 1, TotalBlockCount: blocks, TotalPower: int64(blocks) * 2},
		Counts: c,
	}
}

func TestReportLogger_RotatesAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewReportLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }
	var rotated []string
	l.OnRotate(func(p string) { rotated = append(rotated, filepath.Base(p)) })

	if err := l.WriteReport(report("a", 1)); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if err := l.WriteReport(report("b", 2)); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteReport(report("c", 3)); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := JournalFiles(dir)
	if err != nil {
		t.Fatalf("JournalFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files: %v", files)
	}
	if filepath.Base(files[0]) != "reports-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file: %s", files[0])
	}
	if len(rotated) != 2 || rotated[0] != "reports-2026-03-01-10.jsonl.zst" || rotated[1] != "reports-2026-03-01-11.jsonl.zst" {
		t.Fatalf("rotated: %v", rotated)
	}

	var ids []string
	var last *analysis.Report
	for _, f := range files {
		err := ReadReports(f, func(r *analysis.Report) error {
			ids = append(ids, r.ID)
			last = r
			return nil
		})
		if err != nil {
			t.Fatalf("ReadReports: %v", err)
		}
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("ids: %v", ids)
	}
	if last.Stats.TotalBlockCount != 3 {
		t.Fatalf("stats: %+v", last.Stats)
	}
	e, ok := last.Counts.Get("create:copycat")
	if !ok || e.Nested["minecraft:oak_planks"] != 1 {
		t.Fatalf("counts round trip: %+v", e)
	}
}

func TestReportLogger_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		l := NewReportLogger(dir)
		l.w.now = func() time.Time { return clock }
		if err := l.WriteReport(report(id, 1)); err != nil {
			t.Fatalf("WriteReport: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	files, _ := JournalFiles(dir)
	if len(files) != 1 {
		t.Fatalf("files: %v", files)
	}
	n := 0
	if err := ReadReports(files[0], func(*analysis.Report) error { n++; return nil }); err != nil {
		t.Fatalf("ReadReports: %v", err)
	}
	if n != 2 {
		t.Fatalf("reports: %d", n)
	}
}

func TestReportLogger_ReadableBeforeClose(t *testing.T) {
	dir := t.TempDir()
	l := NewReportLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	defer l.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := l.WriteReport(report(id, 1)); err != nil {
			t.Fatalf("WriteReport: %v", err)
		}
	}
	files, err := JournalFiles(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v err=%v", files, err)
	}
	var ids []string
	if err := ReadReports(files[0], func(r *analysis.Report) error { ids = append(ids, r.ID); return nil }); err != nil {
		t.Fatalf("ReadReports: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("ids before close: %v", ids)
	}
}

func TestReportLogger_WriteAfterClose(t *testing.T) {
	dir := t.TempDir()
	l := NewReportLogger(dir)
	if err := l.WriteReport(report("a", 1)); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.WriteReport(report("late", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	files, _ := JournalFiles(dir)
	n := 0
	for _, f := range files {
		if err := ReadReports(f, func(*analysis.Report) error { n++; return nil }); err != nil {
			t.Fatalf("ReadReports: %v", err)
		}
	}
	if n != 1 {
		t.Fatalf("reports: %d", n)
	}
}
