// Package watcher signals when a log file changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/telhawk-systems/logship/common/logging"
)

// Watcher watches the directory holding a file so rotation (rename then
// create) keeps producing events for the new file.
type Watcher struct {
	fsw     *fsnotify.Watcher
	path    string
	changes chan struct{}
	logger  *logging.Logger
}

func New(path string, logger *logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		fsw:     fsw,
		path:    abs,
		changes: make(chan struct{}, 1),
		logger:  logger,
	}, nil
}

// Changes receives a value after the file is written, created, renamed
// or removed. Bursts of events collapse into one pending signal.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start forwards events until ctx is cancelled, then closes Changes.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.changes)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", logging.Error(err))
		}
	}
}
