// Package reconcile diffs parsed epic records against remote issue
// state and produces the minimal set of create/update operations.
//
// Operations are plain data (a tagged variant), so a plan can be
// inspected in tests without touching the network.
package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/jira"
	"github.com/epicsync/epicsync/internal/notes"
)

// Kind discriminates the operation variants.
type Kind int

const (
	// KindCreate creates a new remote issue from the record.
	KindCreate Kind = iota
	// KindUpdate applies a field diff to an existing issue.
	KindUpdate
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// FieldDiff carries only the fields that differ from the remote issue.
// Nil members are unchanged and stay off the wire, so fields the remote
// side owns are never clobbered.
type FieldDiff struct {
	Summary     *string
	Description *string
	Status      *notes.Status
}

// Empty reports whether the diff changes nothing.
func (d FieldDiff) Empty() bool {
	return d.Summary == nil && d.Description == nil && d.Status == nil
}

// Operation is one unit of remote work. Create carries the full record;
// Update carries the issue key and the field diff.
type Operation struct {
	Kind    Kind
	LocalID string
	Record  notes.EpicRecord
	Key     string
	Diff    FieldDiff
}

// MappingStore is the subset of the mapping store the reconciler needs.
type MappingStore interface {
	Get(localID string) (string, bool, error)
	Forget(localID string) error
}

// RemoteReader fetches current issue state.
type RemoteReader interface {
	FindIssue(ctx context.Context, key string) (*jira.RemoteIssue, error)
}

// Plan is the outcome of one reconciliation: the operations to apply
// plus the records that could not be planned this pass (their remote
// lookups failed; they are retried on the next trigger).
//
// Adoptions are records that matched an existing remote issue through
// an explicit reference without having a mapping row yet. They need no
// remote work, but the mapping must still be persisted so a later pass
// without the reference does not create a duplicate.
type Plan struct {
	Ops       []Operation
	Adoptions map[string]string
	Failures  map[string]error
}

// Reconciler computes plans. It never touches the remote side except
// through read-only lookups.
type Reconciler struct {
	mapping MappingStore
	remote  RemoteReader
	table   *notes.StatusTable
	logger  zerolog.Logger
}

// New builds a reconciler. table may be nil for the default status
// table.
func New(mapping MappingStore, remote RemoteReader, table *notes.StatusTable, logger zerolog.Logger) *Reconciler {
	if table == nil {
		table = notes.DefaultStatusTable()
	}
	return &Reconciler{
		mapping: mapping,
		remote:  remote,
		table:   table,
		logger:  logger.With().Str("component", "reconcile").Logger(),
	}
}

// Plan walks the records in order and decides, per record, whether a
// create or an update (or nothing) is needed. Epics that were mapped in
// earlier passes but are absent from records are deliberately left
// alone: nothing is ever deleted remotely without an explicit request.
func (r *Reconciler) Plan(ctx context.Context, records []notes.EpicRecord) *Plan {
	plan := &Plan{
		Adoptions: make(map[string]string),
		Failures:  make(map[string]error),
	}

	for _, record := range records {
		op, err := r.planRecord(ctx, record, plan)
		if err != nil {
			r.logger.Warn().Err(err).Str("local_id", record.LocalID).
				Msg("could not plan record, leaving for next pass")
			plan.Failures[record.LocalID] = err
			continue
		}
		if op != nil {
			plan.Ops = append(plan.Ops, *op)
		}
	}

	return plan
}

func (r *Reconciler) planRecord(ctx context.Context, record notes.EpicRecord, plan *Plan) (*Operation, error) {
	key, mapped, err := r.mapping.Get(record.LocalID)
	if err != nil {
		return nil, err
	}

	// An explicit issue reference in the note links an unmapped epic to
	// an existing issue without creating a new one.
	adopted := false
	if !mapped && record.JiraKey != "" {
		key, mapped, adopted = record.JiraKey, true, true
	}

	if !mapped {
		return &Operation{Kind: KindCreate, LocalID: record.LocalID, Record: record}, nil
	}

	remote, err := r.remote.FindIssue(ctx, key)
	if errors.Is(err, jira.ErrNotFound) {
		// The mapped issue is gone on the remote side. Drop the stale
		// mapping and recreate, like the original tool did.
		r.logger.Warn().Str("local_id", record.LocalID).Str("key", key).
			Msg("mapped issue no longer exists, recreating")
		if err := r.mapping.Forget(record.LocalID); err != nil {
			return nil, err
		}
		return &Operation{Kind: KindCreate, LocalID: record.LocalID, Record: record}, nil
	}
	if err != nil {
		return nil, err
	}

	diff := r.diff(record, remote)
	if diff.Empty() {
		// An in-sync adoption still needs its mapping row written, or
		// removing the reference later would trigger a duplicate create.
		if adopted {
			plan.Adoptions[record.LocalID] = key
		}
		r.logger.Debug().Str("local_id", record.LocalID).Str("key", key).
			Msg("up to date")
		return nil, nil
	}

	return &Operation{Kind: KindUpdate, LocalID: record.LocalID, Record: record, Key: key, Diff: diff}, nil
}

// diff compares the tracked fields. Notes are the source of truth for
// this one-directional sync: when both sides changed, local wins.
func (r *Reconciler) diff(record notes.EpicRecord, remote *jira.RemoteIssue) FieldDiff {
	var diff FieldDiff

	if record.Title != remote.Summary {
		diff.Summary = &record.Title
	}

	rendered := record.RenderedDescription()
	if rendered != remote.Description {
		diff.Description = &rendered
	}

	if record.Status != notes.StatusUnknown {
		want := r.table.RemoteName(record.Status)
		if want != "" && !strings.EqualFold(want, remote.Status) {
			status := record.Status
			diff.Status = &status
		}
	}

	return diff
}
