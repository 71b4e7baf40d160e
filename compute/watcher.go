package compute

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	veil "github.com/synth07/Veil"
)

// SourceWatcher observes a source tree on disk and records which programs
// changed, so a host can hot-reload them. It watches <root>/compute/ (the
// same naming scheme as ProgramPath) including subdirectories created
// later.
//
// The watcher never touches an environment by itself: filesystem events
// arrive on a background goroutine, but all cache mutation must stay on
// the owner goroutine. The owner calls Apply (or Pending + LoadProgram)
// at a point of its choosing, typically once per frame.
type SourceWatcher struct {
	root string
	fw   *fsnotify.Watcher
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
	dirty  map[string]struct{}

	done chan struct{}
}

// NewSourceWatcher starts watching the compute sources under root.
// The directory <root>/compute must exist.
func NewSourceWatcher(root string) (*SourceWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch compute sources: %w", err)
	}

	w := &SourceWatcher{
		root:  root,
		fw:    fw,
		log:   veil.Logger().With("root", root),
		dirty: make(map[string]struct{}),
		done:  make(chan struct{}),
	}

	// Watch the compute namespace and every directory below it; fsnotify
	// watches are not recursive.
	base := filepath.Join(root, sourceDir)
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
	if walkErr != nil {
		fw.Close()
		return nil, fmt.Errorf("watch compute sources: %w", walkErr)
	}

	go w.loop()
	return w, nil
}

// Pending drains and returns the logical names of programs whose source
// changed since the last call, sorted for determinism.
func (w *SourceWatcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.dirty) == 0 {
		return nil
	}
	names := make([]string, 0, len(w.dirty))
	for name := range w.dirty {
		names = append(names, name)
	}
	clear(w.dirty)
	sort.Strings(names)
	return names
}

// Apply reloads every pending program into env. Must be called from the
// environment's owner goroutine. Sources that vanished between the event
// and the reload are skipped; read failures are joined and returned after
// all remaining programs have been attempted.
func (w *SourceWatcher) Apply(env *Environment) error {
	var errs []error
	for _, name := range w.Pending() {
		p := filepath.Join(w.root, filepath.FromSlash(ProgramPath(name)))
		source, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.log.Debug("program source removed, keeping loaded version", "program", name)
				continue
			}
			errs = append(errs, fmt.Errorf("read program source %q: %w", name, err))
			continue
		}
		env.LoadProgram(name, string(source))
	}
	return errors.Join(errs...)
}

// Close stops the watcher and joins its background goroutine.
func (w *SourceWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fw.Close()
	<-w.done
	return err
}

func (w *SourceWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error("source watch error", "err", err)
		}
	}
}

func (w *SourceWatcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}

	// New directories under the namespace need their own watch.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fw.Add(ev.Name); err != nil {
				w.log.Error("failed to watch new source directory", "dir", ev.Name, "err", err)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	name, ok := ProgramName(filepath.ToSlash(rel))
	if !ok {
		return
	}

	w.mu.Lock()
	if !w.closed {
		w.dirty[name] = struct{}{}
	}
	w.mu.Unlock()
	w.log.Debug("program source changed", "program", name)
}
