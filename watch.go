package docpress

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alnah/go-docpress/internal/fileutil"
)

// debounceDelay is how long the watcher waits after the last filesystem
// event before triggering a rebuild. Editors save in bursts; every new
// event pushes the deadline back.
const debounceDelay = time.Second

// Watcher rebuilds documents when sources or layouts change. Rebuilds are
// serialized: events arriving during a build are coalesced into the next
// one.
type Watcher struct {
	printer *Printer
	logger  *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending []string // nil means full rebuild
	armed   bool
}

// NewWatcher creates a watcher for the printer's input and layouts
// directories.
func NewWatcher(printer *Printer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{printer: printer, logger: logger}
}

// Run watches for changes and rebuilds until ctx is cancelled. The initial
// build is the caller's responsibility; Run only reacts to events.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range w.watchRoots() {
		if addErr := addDirsRecursive(fsw, root); addErr != nil {
			return addErr
		}
		w.logger.Info("watching", slog.String("root", root))
	}

	fire := make(chan []string, 1)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			w.logger.Info("watcher stopped")
			return ctx.Err()

		case scope := <-fire:
			w.rebuild(ctx, scope)

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			// New directories created at runtime join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fsw, ev.Name); addErr != nil {
						w.logger.Warn("could not watch new dir",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					w.schedule(fire, nil)
					continue
				}
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("change detected",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()))
			w.schedule(fire, w.eventScope(ev))

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// schedule merges the event's scope into the pending rebuild and arms (or
// pushes back) the debounce timer.
func (w *Watcher) schedule(fire chan<- []string, scope []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case !w.armed:
		w.pending = scope
	case w.pending == nil || scope == nil:
		// A full rebuild absorbs everything.
		w.pending = nil
	default:
		w.pending = mergeScopes(w.pending, scope)
	}
	w.armed = true

	if w.timer == nil {
		w.timer = time.AfterFunc(debounceDelay, func() { w.flush(fire) })
	} else {
		w.timer.Reset(debounceDelay)
	}
}

// flush hands the pending scope to the rebuild loop. An expired timer can
// be Reset by schedule while its callback waits on the lock; the earlier
// firing then consumes the scope and disarms, so the later one must not
// send a second, empty rebuild.
func (w *Watcher) flush(fire chan<- []string) {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return
	}
	scope := w.pending
	w.pending = nil
	w.armed = false
	w.mu.Unlock()

	select {
	case fire <- scope:
	default:
		// A rebuild is already queued; it will see a nil scope merged in
		// on the next event.
	}
}

func (w *Watcher) rebuild(ctx context.Context, scope []string) {
	start := time.Now()
	if scope == nil {
		w.logger.Info("rebuilding all documents")
	} else {
		w.logger.Info("rebuilding", slog.Int("sources", len(scope)))
	}
	if _, err := w.printer.Execute(ctx, scope); err != nil {
		w.logger.Error("rebuild failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("rebuild done", slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
}

// watchRoots returns the directories to watch: the input (or its parent for
// a single-file input) and the layouts directory when it exists.
func (w *Watcher) watchRoots() []string {
	input := w.printer.Input()
	if !fileutil.DirExists(input) {
		input = filepath.Dir(input)
	}
	roots := []string{input}

	layoutsDir := w.printer.opts.LayoutsDir
	if layoutsDir != "" && fileutil.DirExists(layoutsDir) {
		if abs, err := filepath.Abs(layoutsDir); err == nil {
			layoutsDir = abs
		}
		if layoutsDir != input {
			roots = append(roots, layoutsDir)
		}
	}
	return roots
}

// eventScope narrows a rebuild to a single Markdown source when safe. YAML
// sources, templates, layouts, and partials can affect any number of
// documents, so any other change forces a full rebuild (nil scope). A
// bundle contains every article, so bundle runs never narrow.
func (w *Watcher) eventScope(ev fsnotify.Event) []string {
	if w.printer.opts.Bundle {
		return nil
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return nil
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, "_") || !strings.EqualFold(filepath.Ext(base), ".md") {
		return nil
	}
	return []string{ev.Name}
}

func mergeScopes(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var merged []string
	for _, s := range append(a, b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	return merged
}

// addDirsRecursive adds dir and all its subdirectories to the watcher,
// skipping hidden directories.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != dir {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
