package scorewatch

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"shipscore.ai/internal/vschem/scoring"
)

const debounce = 100 * time.Millisecond

// Reload reports one reload attempt. On error the holder keeps its table.
type Reload struct {
	Path   string
	Digest string
	Rules  int
	Err    error
}

// Watcher reloads a score table file into a Holder. It watches the parent
// directory so editors that replace the file by rename are still seen.
type Watcher struct {
	Path    string
	Reloads <-chan Reload

	holder  *Holder
	log     *log.Logger
	reloads chan Reload
	watcher *fsnotify.Watcher
}

func NewWatcher(path string, h *Holder, logger *log.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	ch := make(chan Reload, 8)
	return &Watcher{
		Path:    abs,
		Reloads: ch,
		holder:  h,
		log:     logger,
		reloads: ch,
		watcher: fw,
	}, nil
}

// Run blocks until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var pending time.Time
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.Path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case now := <-ticker.C:
			if pending.IsZero() || now.Sub(pending) < debounce {
				continue
			}
			pending = time.Time{}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logf("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	t, err := scoring.Load(w.Path)
	r := Reload{Path: w.Path, Err: err}
	if err != nil {
		w.logf("reload %s failed, keeping previous table: %v", filepath.Base(w.Path), err)
	} else {
		w.holder.Store(t)
		r.Digest = t.Digest
		r.Rules = len(t.Rules)
		w.logf("reloaded %s rules=%d digest=%s", filepath.Base(w.Path), r.Rules, shortDigest(t.Digest))
	}
	select {
	case w.reloads <- r:
	default:
	}
}

func (w *Watcher) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
