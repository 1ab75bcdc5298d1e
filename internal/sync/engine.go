// Package sync runs one synchronization pass: parse changed note
// files, reconcile against remote state, and apply the resulting
// operations through the Jira adapter.
package sync

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/config"
	"github.com/epicsync/epicsync/internal/jira"
	"github.com/epicsync/epicsync/internal/notes"
	"github.com/epicsync/epicsync/internal/reconcile"
)

// Adapter is the outbound surface the engine needs from the Jira
// client. Tests substitute a mock that counts calls.
type Adapter interface {
	FindIssue(ctx context.Context, key string) (*jira.RemoteIssue, error)
	CreateEpic(ctx context.Context, record notes.EpicRecord) (string, error)
	UpdateIssue(ctx context.Context, key string, summary, description *string) error
	TransitionIssue(ctx context.Context, key, statusName string) error
}

// Store is the mapping persistence surface used during a pass.
type Store interface {
	Get(localID string) (string, bool, error)
	Put(localID, jiraKey string) error
	Forget(localID string) error
}

// Notifier observes pass lifecycle events. The dashboard implements
// this; a nil notifier is allowed.
type Notifier interface {
	PassStarted(files int)
	EpicSynced(outcome EpicOutcome)
	PassCompleted(result *Result)
}

// Engine drives the parse → reconcile → apply pipeline.
type Engine struct {
	cfg        *config.Config
	parser     *notes.Parser
	table      *notes.StatusTable
	store      Store
	adapter    Adapter
	reconciler *reconcile.Reconciler
	notifier   Notifier
	logger     zerolog.Logger
}

// New builds an engine. table may be nil for the default status table,
// notifier may be nil.
func New(cfg *config.Config, store Store, adapter Adapter, table *notes.StatusTable, notifier Notifier, logger zerolog.Logger) *Engine {
	if table == nil {
		table = notes.DefaultStatusTable()
	}
	return &Engine{
		cfg:        cfg,
		parser:     notes.NewParser(table),
		table:      table,
		store:      store,
		adapter:    adapter,
		reconciler: reconcile.New(store, adapter, table, logger),
		notifier:   notifier,
		logger:     logger.With().Str("component", "sync").Logger(),
	}
}

// RunFull scans the whole workspace and runs a pass over every note
// file. Used at startup to establish the baseline, and by the one-shot
// sync command.
func (e *Engine) RunFull(ctx context.Context) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(e.cfg.WatchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != e.cfg.WatchDir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" || e.cfg.Ignored(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.Run(ctx, paths), nil
}

// Run executes one pass over the given files. Failures in one file or
// one epic never abort the rest of the batch; everything that went
// wrong is reflected in the result and the log.
func (e *Engine) Run(ctx context.Context, paths []string) *Result {
	start := time.Now()
	result := &Result{}

	if e.notifier != nil {
		e.notifier.PassStarted(len(paths))
	}
	e.logger.Info().Int("files", len(paths)).Msg("sync pass started")

	records := e.parseFiles(paths, result)
	plan := e.reconciler.Plan(ctx, records)

	planned := make(map[string]bool, len(plan.Ops))
	for _, op := range plan.Ops {
		planned[op.LocalID] = true
	}

	for localID, err := range plan.Failures {
		e.record(result, EpicOutcome{LocalID: localID, Outcome: OutcomeFailed, Err: err})
	}
	for _, r := range records {
		if planned[r.LocalID] {
			continue
		}
		if _, failed := plan.Failures[r.LocalID]; failed {
			continue
		}
		if key, ok := plan.Adoptions[r.LocalID]; ok {
			// The epic matched an existing issue through an explicit
			// reference; persist the mapping even though the remote side
			// needed no change.
			if err := e.store.Put(r.LocalID, key); err != nil {
				e.record(result, EpicOutcome{LocalID: r.LocalID, Key: key, Outcome: OutcomeFailed, Err: err})
				continue
			}
			e.record(result, EpicOutcome{LocalID: r.LocalID, Key: key, Outcome: OutcomeUpToDate})
			continue
		}
		e.record(result, EpicOutcome{LocalID: r.LocalID, Outcome: OutcomeUpToDate})
	}

	// Operations apply strictly in order: one outstanding create or
	// update per local id at a time.
	for _, op := range plan.Ops {
		e.record(result, e.apply(ctx, op))
	}

	result.Duration = time.Since(start)
	e.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("up_to_date", result.UpToDate).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("sync pass complete")

	if e.notifier != nil {
		e.notifier.PassCompleted(result)
	}
	return result
}

// parseFiles runs the parser over each path, skipping files that fail
// to parse (the watcher may fire mid-edit). Duplicate local ids across
// files keep the last record seen, matching the note convention that a
// given epic lives in exactly one place.
func (e *Engine) parseFiles(paths []string, result *Result) []notes.EpicRecord {
	var records []notes.EpicRecord
	index := make(map[string]int)

	for _, path := range paths {
		parsed, err := e.parser.ParseFile(e.cfg.WatchDir, path)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("skipping unparseable file")
			result.ParseFailures = append(result.ParseFailures, path)
			result.Skipped++
			continue
		}
		for _, r := range parsed {
			if at, seen := index[r.LocalID]; seen {
				e.logger.Warn().Str("local_id", r.LocalID).
					Msg("duplicate epic in pass, keeping the latest")
				records[at] = r
				continue
			}
			index[r.LocalID] = len(records)
			records = append(records, r)
		}
	}
	return records
}

// apply executes one operation against the remote side and persists
// the mapping on success.
func (e *Engine) apply(ctx context.Context, op reconcile.Operation) EpicOutcome {
	switch op.Kind {
	case reconcile.KindCreate:
		return e.applyCreate(ctx, op)
	case reconcile.KindUpdate:
		return e.applyUpdate(ctx, op)
	default:
		return EpicOutcome{LocalID: op.LocalID, Outcome: OutcomeFailed}
	}
}

func (e *Engine) applyCreate(ctx context.Context, op reconcile.Operation) EpicOutcome {
	key, err := e.adapter.CreateEpic(ctx, op.Record)
	if err != nil {
		e.logOpError(op, err)
		return EpicOutcome{LocalID: op.LocalID, Outcome: OutcomeFailed, Err: err}
	}

	// The mapping row lands before anything else so a crash between
	// here and the transition can never double-create the issue.
	if err := e.store.Put(op.LocalID, key); err != nil {
		e.logger.Error().Err(err).Str("local_id", op.LocalID).Str("key", key).
			Msg("issue created but mapping not persisted")
		return EpicOutcome{LocalID: op.LocalID, Key: key, Outcome: OutcomeFailed, Err: err}
	}

	e.transition(ctx, key, op.Record.Status)
	return EpicOutcome{LocalID: op.LocalID, Key: key, Outcome: OutcomeCreated}
}

func (e *Engine) applyUpdate(ctx context.Context, op reconcile.Operation) EpicOutcome {
	if op.Diff.Summary != nil || op.Diff.Description != nil {
		if err := e.adapter.UpdateIssue(ctx, op.Key, op.Diff.Summary, op.Diff.Description); err != nil {
			e.logOpError(op, err)
			return EpicOutcome{LocalID: op.LocalID, Key: op.Key, Outcome: OutcomeFailed, Err: err}
		}
	}

	if op.Diff.Status != nil {
		name := e.table.RemoteName(*op.Diff.Status)
		if err := e.adapter.TransitionIssue(ctx, op.Key, name); err != nil {
			e.logOpError(op, err)
			return EpicOutcome{LocalID: op.LocalID, Key: op.Key, Outcome: OutcomeFailed, Err: err}
		}
	}

	// Upsert covers adoption of an explicit jira:: reference that had
	// no mapping row yet.
	if err := e.store.Put(op.LocalID, op.Key); err != nil {
		return EpicOutcome{LocalID: op.LocalID, Key: op.Key, Outcome: OutcomeFailed, Err: err}
	}

	return EpicOutcome{LocalID: op.LocalID, Key: op.Key, Outcome: OutcomeUpdated}
}

// transition moves a freshly created issue into its note status. A
// failed transition is logged but does not fail the create: the issue
// exists and the mapping is recorded, so the next pass will retry the
// status as an update.
func (e *Engine) transition(ctx context.Context, key string, status notes.Status) {
	if status == notes.StatusUnknown {
		return
	}
	name := e.table.RemoteName(status)
	if name == "" {
		return
	}
	if err := e.adapter.TransitionIssue(ctx, key, name); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Str("status", name).
			Msg("created issue but could not set status")
	}
}

func (e *Engine) record(result *Result, outcome EpicOutcome) {
	result.Add(outcome)
	if e.notifier != nil {
		e.notifier.EpicSynced(outcome)
	}
}

func (e *Engine) logOpError(op reconcile.Operation, err error) {
	evt := e.logger.Error()
	if !jira.IsFatal(err) {
		evt = e.logger.Warn()
	}
	evt.Err(err).
		Str("local_id", op.LocalID).
		Str("operation", op.Kind.String()).
		Str("key", op.Key).
		Msg("operation failed, continuing with remaining records")
}
