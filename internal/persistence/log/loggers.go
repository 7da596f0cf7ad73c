package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"shipscore.ai/internal/analysis"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("journal closed")

// JSONLZstdWriter appends JSON lines to hourly rotated zstd files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	// OnRotate, if set, receives the path of each file once it is complete.
	OnRotate func(path string)

	mu      sync.Mutex
	curHour string
	closed  bool
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Close finalizes the current file. Later writes fail with ErrClosed.
func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Each line ends a zstd block so readers and crashes see whole reports.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var (
		err1 error
		done string
	)
	if w.f != nil {
		done = w.pathForHour(w.curHour)
	}
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	if done != "" && err1 == nil && w.OnRotate != nil {
		w.OnRotate(done)
	}
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReportLogger journals every analysis report (compressed).
type ReportLogger struct{ w *JSONLZstdWriter }

func NewReportLogger(dir string) *ReportLogger {
	return &ReportLogger{w: NewJSONLZstdWriter(dir, "reports")}
}

// OnRotate registers fn for completed journal files.
func (l *ReportLogger) OnRotate(fn func(path string)) {
	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	l.w.OnRotate = fn
}

func (l *ReportLogger) WriteReport(r *analysis.Report) error { return l.w.Write(r) }
func (l *ReportLogger) Close() error                         { return l.w.Close() }

// ReadReports decodes every report in one journal file. Files appended to
// across restarts hold several zstd frames; the decoder reads them in turn.
// The current hour's file ends in an open frame, which reads as
// io.ErrUnexpectedEOF after the last flushed report.
func ReadReports(path string, fn func(r *analysis.Report) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 128*1024))
	for {
		var r analysis.Report
		if err := jd.Decode(&r); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
}

// JournalFiles lists the report journal files in dir, oldest first.
func JournalFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "reports-*.jsonl.zst"))
}
