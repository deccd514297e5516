// Package watch turns fsnotify events into coalesced change signals.
//
// A Watcher never carries event details to its reader: the reader rescans the
// directory (or rereads the file) after every signal, so any number of events
// that arrive between two reads collapse into one pending signal.
package watch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/arloliu/scanrelay/internal/logger"
	"github.com/arloliu/scanrelay/types"
)

// relevantOps are the operations that can make a new or updated file visible.
const relevantOps = fsnotify.Create | fsnotify.Write

// Watcher delivers a coalesced signal whenever a watched path changes.
type Watcher struct {
	fw     *fsnotify.Watcher
	match  func(fsnotify.Event) bool
	signal chan struct{}
	logger types.Logger
}

// NewDir watches dir for files being created or written.
//
// Parameters:
//   - dir: Directory to watch (not recursive)
//   - log: Logger for watcher errors (no-op when nil)
//
// Returns:
//   - *Watcher: Watcher whose C channel fires on changes under dir
//   - error: fsnotify setup failure
func NewDir(dir string, log types.Logger) (*Watcher, error) {
	return newWatcher(dir, log, func(ev fsnotify.Event) bool {
		return ev.Op&relevantOps != 0
	})
}

// NewFile watches a single file through its parent directory.
//
// Watching the directory keeps the watch alive when the file is replaced by
// rename, which is how most editors save.
func NewFile(path string, log types.Logger) (*Watcher, error) {
	target := filepath.Clean(path)

	return newWatcher(filepath.Dir(target), log, func(ev fsnotify.Event) bool {
		return filepath.Clean(ev.Name) == target && ev.Op&relevantOps != 0
	})
}

func newWatcher(dir string, log types.Logger, match func(fsnotify.Event) bool) (*Watcher, error) {
	if log == nil {
		log = logger.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		fw:     fw,
		match:  match,
		signal: make(chan struct{}, 1),
		logger: log,
	}, nil
}

// C returns the signal channel. At most one signal is pending at a time.
func (w *Watcher) C() <-chan struct{} {
	return w.signal
}

// Notify raises a signal as if a change had been observed.
func (w *Watcher) Notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Run pumps fsnotify events until ctx is cancelled or the watcher is closed.
//
// Run closes the underlying fsnotify watcher on return.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.match(ev) {
				w.logger.Debug("watched path changed", "path", ev.Name, "op", ev.Op.String())
				w.Notify()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops the watcher. It is safe to call after Run has returned.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
