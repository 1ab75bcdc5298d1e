// Package daemon runs the long-lived sync process: a recursive note
// watcher, a debounce window that coalesces edit bursts into single
// triggers, and the loop that hands each trigger to the sync engine.
package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/config"
)

// eventBuffer sizes the changed-path channel; a Logseq re-index can
// touch a few hundred files at once.
const eventBuffer = 256

// Watcher observes the note directory tree and emits the paths of
// changed .md files. It uses fsnotify, which watches directories, so
// the tree is walked at start and newly created subdirectories are
// added as they appear.
type Watcher struct {
	cfg    *config.Config
	fsw    *fsnotify.Watcher
	events chan string
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the configured note directory.
// Start must be called before any events are emitted.
func NewWatcher(cfg *config.Config, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		events: make(chan string, eventBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// Start adds watches for the whole directory tree and begins emitting
// events. An unreadable tree is a fatal error.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.addRecursive(w.cfg.WatchDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.WatchDir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()

	w.logger.Info().Str("dir", w.cfg.WatchDir).Msg("watching for note changes")
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
// The events and errors channels are closed afterwards.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	close(w.events)
	close(w.errs)
	return err
}

// Events returns the channel of changed .md file paths.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Errors returns the channel of fatal watcher errors. Anything arriving
// here means the watch is no longer trustworthy and the process should
// exit non-zero.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// addRecursive walks the tree and watches every directory, skipping
// hidden directories and ignore-glob matches.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || w.cfg.Ignored(path)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-w.done:
				return
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New directories need their own watch to keep the tree covered.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).
					Msg("could not watch new directory")
			}
			return
		}
	}

	if filepath.Ext(event.Name) != ".md" || w.cfg.Ignored(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("note changed")

	select {
	case w.events <- event.Name:
	case <-w.done:
	}
}
