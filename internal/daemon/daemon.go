package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/config"
	syncengine "github.com/epicsync/epicsync/internal/sync"
)

// neverFires parks the debounce timer until the first event resets it.
const neverFires = 24 * time.Hour

// Daemon ties the watcher and the sync engine together: an initial
// full scan establishes the baseline, then each debounced trigger runs
// one incremental pass over the changed files.
type Daemon struct {
	cfg     *config.Config
	engine  *syncengine.Engine
	watcher *Watcher
	clock   Clock
	logger  zerolog.Logger
}

// New creates a daemon with the real wall clock.
func New(cfg *config.Config, engine *syncengine.Engine, logger zerolog.Logger) (*Daemon, error) {
	watcher, err := NewWatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithClock(cfg, engine, watcher, RealClock{}, logger), nil
}

// NewWithClock creates a daemon with an injected watcher and clock.
// Tests use this to drive the debounce window deterministically.
func NewWithClock(cfg *config.Config, engine *syncengine.Engine, watcher *Watcher, clock Clock, logger zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:     cfg,
		engine:  engine,
		watcher: watcher,
		clock:   clock,
		logger:  logger.With().Str("component", "daemon").Logger(),
	}
}

// Run blocks until ctx is cancelled or the watcher fails. A sync pass
// that is in flight when ctx is cancelled finishes before Run returns
// (passes run inside this loop, so returning implies the pass is
// done). A watcher failure is fatal and comes back as an error.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().Msg("starting")

	// Passes run to completion even when ctx is cancelled mid-pass:
	// cancellation exits the loop below, it never aborts in-flight
	// remote operations.
	passCtx := context.WithoutCancel(ctx)

	// The watcher starts before the baseline so edits made during the
	// initial scan buffer up instead of being missed.
	if err := d.watcher.Start(); err != nil {
		return err
	}
	defer func() {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("error stopping watcher")
		}
	}()

	// Baseline: sync the whole workspace once so the mapping covers
	// epics that changed while the daemon was down.
	if _, err := d.engine.RunFull(passCtx); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	pending := make(map[string]struct{})
	timer := d.clock.NewTimer(neverFires)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("shutdown requested")
			return nil

		case path, ok := <-d.watcher.Events():
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			// Every raw event re-opens the quiet period; a burst of
			// edits lands in a single trigger.
			pending[path] = struct{}{}
			timer.Reset(d.cfg.Debounce)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			return fmt.Errorf("watcher failed: %w", err)

		case <-timer.C():
			if len(pending) == 0 {
				continue
			}
			paths := d.drainPending(pending)
			pending = make(map[string]struct{})
			if len(paths) == 0 {
				continue
			}
			// The pass runs inline, so triggers are serialized by
			// construction: events arriving meanwhile queue up in the
			// watcher channel and coalesce into the next window.
			d.engine.Run(passCtx, paths)
		}
	}
}

// drainPending turns the pending set into the file list for one pass.
// Files deleted since their event are dropped here: removed epics are
// never propagated as remote deletions.
func (d *Daemon) drainPending(pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for path := range pending {
		if _, err := os.Stat(path); err != nil {
			d.logger.Info().Str("path", path).
				Msg("note removed locally, leaving remote issues untouched")
			continue
		}
		paths = append(paths, path)
	}
	return paths
}
