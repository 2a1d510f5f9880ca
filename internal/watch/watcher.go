// Package watch keeps the latest snapshot of a repository current by turning
// filesystem events into debounced deltas.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/discovery"
	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/lang"
	"github.com/starford/ansuz/internal/models"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 200 * time.Millisecond

// Locator finds the snapshot a delta should be applied to.
type Locator interface {
	FindLatestByRoot(root string) (*models.Snapshot, error)
}

// Applier applies a delta to a snapshot.
type Applier interface {
	ApplyDelta(ctx context.Context, req indexer.DeltaRequest) (indexer.Result, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before pending changes are applied.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExcludeDirs adds directory names that are never watched.
func WithExcludeDirs(names ...string) Option {
	return func(w *Watcher) {
		for _, n := range names {
			w.extraDenied[n] = struct{}{}
		}
	}
}

// Watcher feeds source file changes under one root into ApplyDelta.
type Watcher struct {
	root        string
	snaps       Locator
	applier     Applier
	logger      *slog.Logger
	debounce    time.Duration
	extraDenied map[string]struct{}
}

// New creates a watcher for root. root is made absolute so that it matches
// the root recorded by the indexer.
func New(root string, snaps Locator, applier Applier, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	w := &Watcher{
		root:        abs,
		snaps:       snaps,
		applier:     applier,
		logger:      logger,
		debounce:    DefaultDebounce,
		extraDenied: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.root }

// Run watches until ctx is cancelled. Changes that arrive while no snapshot
// exists for the root are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root, nil); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	p := newPending()
	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			return
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped", slog.String("root", w.root))
			return nil

		case <-fire:
			w.flush(ctx, p)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(fw, ev, p) {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle records ev in p and reports whether anything is now pending.
func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, p *pending) bool {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.deniedDir(rel) {
				return false
			}
			if err := w.addTree(fw, ev.Name, p); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", err.Error()))
			}
			return true
		}
	}

	if w.deniedDir(path.Dir(rel)) {
		return false
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if !lang.Known(rel) {
			return false
		}
		p.change(rel)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// Rename fires on the old path only; the new path arrives as Create.
		// A vanished path may have been a directory, so its prefix is kept
		// and expanded against the snapshot at flush time.
		if lang.Known(rel) {
			p.remove(rel)
		} else {
			p.removeDir(rel)
		}
	default:
		return false
	}
	return true
}

func (w *Watcher) flush(ctx context.Context, p *pending) {
	if p.empty() {
		return
	}
	defer p.reset()

	snap, err := w.snaps.FindLatestByRoot(w.root)
	if err != nil {
		w.logger.Debug("watcher: no snapshot for root, dropping changes",
			slog.String("root", w.root),
			slog.Int("changed", len(p.changed)),
			slog.Int("removed", len(p.removed)))
		return
	}

	req := indexer.DeltaRequest{
		SnapshotID:   snap.ID,
		ChangedFiles: p.changedFiles(),
		RemovedFiles: p.removedFiles(snap),
	}
	if len(req.ChangedFiles) == 0 && len(req.RemovedFiles) == 0 {
		return
	}
	res, err := w.applier.ApplyDelta(ctx, req)
	if err != nil {
		w.logger.Warn("watcher: apply delta failed",
			slog.String("snapshot_id", snap.ID),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("watcher: delta applied",
		slog.String("snapshot_id", snap.ID),
		slog.Int("changed", len(req.ChangedFiles)),
		slog.Int("removed", len(req.RemovedFiles)),
		slog.Int("skipped", res.SkippedFiles),
		slog.Int("parse_errors", res.ParseErrors),
		slog.Int64("took_ms", res.TookMs))
}

// addTree watches dir and every non-denied directory below it. When p is
// non-nil, source files already present are marked as changed.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, p *pending) error {
	return filepath.WalkDir(dir, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, ok := w.rel(abs)
		if d.IsDir() {
			if ok && w.deniedDir(rel) {
				return fs.SkipDir
			}
			return fw.Add(abs)
		}
		if p != nil && ok && d.Type().IsRegular() && lang.Known(rel) {
			p.change(rel)
		}
		return nil
	})
}

// rel returns the forward-slash path of abs relative to the root. The root
// itself and paths outside it are rejected.
func (w *Watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.root, abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// deniedDir reports whether any segment of the directory path rel is denied.
func (w *Watcher) deniedDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if discovery.IgnoredDir(seg) {
			return true
		}
		if _, ok := w.extraDenied[seg]; ok {
			return true
		}
	}
	return false
}

// pending accumulates root-relative paths between flushes. changed and
// removed are kept disjoint; the last event for a path wins.
type pending struct {
	changed map[string]struct{}
	removed map[string]struct{}
	dirs    map[string]struct{}
}

func newPending() *pending {
	p := &pending{}
	p.reset()
	return p
}

func (p *pending) reset() {
	p.changed = make(map[string]struct{})
	p.removed = make(map[string]struct{})
	p.dirs = make(map[string]struct{})
}

func (p *pending) empty() bool {
	return len(p.changed) == 0 && len(p.removed) == 0 && len(p.dirs) == 0
}

func (p *pending) change(rel string) {
	delete(p.removed, rel)
	p.changed[rel] = struct{}{}
}

func (p *pending) remove(rel string) {
	delete(p.changed, rel)
	p.removed[rel] = struct{}{}
}

func (p *pending) removeDir(rel string) {
	p.dirs[rel] = struct{}{}
}

func (p *pending) changedFiles() []string {
	return sortedKeys(p.changed)
}

// removedFiles returns the removed paths plus every snapshot file under a
// vanished directory that has not since been re-created.
func (p *pending) removedFiles(snap *models.Snapshot) []string {
	out := make(map[string]struct{}, len(p.removed))
	for f := range p.removed {
		out[f] = struct{}{}
	}
	for dir := range p.dirs {
		prefix := dir + "/"
		for f := range snap.Files {
			if !strings.HasPrefix(f, prefix) {
				continue
			}
			if _, ok := p.changed[f]; ok {
				continue
			}
			out[f] = struct{}{}
		}
	}
	return sortedKeys(out)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
