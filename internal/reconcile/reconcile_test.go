package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/jira"
	"github.com/epicsync/epicsync/internal/notes"
)

type fakeMapping struct {
	entries   map[string]string
	forgotten []string
}

func (f *fakeMapping) Get(localID string) (string, bool, error) {
	key, ok := f.entries[localID]
	return key, ok, nil
}

func (f *fakeMapping) Forget(localID string) error {
	delete(f.entries, localID)
	f.forgotten = append(f.forgotten, localID)
	return nil
}

type fakeRemote struct {
	issues map[string]*jira.RemoteIssue
	err    error
	calls  int
}

func (f *fakeRemote) FindIssue(_ context.Context, key string) (*jira.RemoteIssue, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	issue, ok := f.issues[key]
	if !ok {
		return nil, jira.ErrNotFound
	}
	return issue, nil
}

func newTestReconciler(mapping *fakeMapping, remote *fakeRemote) *Reconciler {
	return New(mapping, remote, nil, zerolog.Nop())
}

func TestPlanCreatesUnmapped(t *testing.T) {
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{}},
		&fakeRemote{},
	)

	record := notes.EpicRecord{LocalID: "work.md/Launch", Title: "Launch", Status: notes.StatusInProgress}
	plan := r.Plan(context.Background(), []notes.EpicRecord{record})

	if len(plan.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(plan.Ops))
	}
	op := plan.Ops[0]
	if op.Kind != KindCreate {
		t.Errorf("Kind = %v, want create", op.Kind)
	}
	if op.Record.Title != "Launch" {
		t.Errorf("Record.Title = %q", op.Record.Title)
	}
}

func TestPlanNoOpWhenInSync(t *testing.T) {
	record := notes.EpicRecord{
		LocalID: "work.md/Launch",
		Title:   "Launch",
		Status:  notes.StatusInProgress,
	}
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{"work.md/Launch": "PROJ-42"}},
		&fakeRemote{issues: map[string]*jira.RemoteIssue{
			"PROJ-42": {Key: "PROJ-42", Summary: "Launch", Status: "In Progress"},
		}},
	)

	plan := r.Plan(context.Background(), []notes.EpicRecord{record})
	if len(plan.Ops) != 0 {
		t.Errorf("expected no ops for an in-sync record, got %v", plan.Ops)
	}
}

func TestPlanMinimalStatusDiff(t *testing.T) {
	record := notes.EpicRecord{
		LocalID: "work.md/Launch",
		Title:   "Launch",
		Status:  notes.StatusDone,
	}
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{"work.md/Launch": "PROJ-42"}},
		&fakeRemote{issues: map[string]*jira.RemoteIssue{
			"PROJ-42": {Key: "PROJ-42", Summary: "Launch", Status: "In Progress"},
		}},
	)

	plan := r.Plan(context.Background(), []notes.EpicRecord{record})
	if len(plan.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(plan.Ops))
	}

	diff := plan.Ops[0].Diff
	if diff.Status == nil || *diff.Status != notes.StatusDone {
		t.Errorf("Status diff = %v, want done", diff.Status)
	}
	if diff.Summary != nil {
		t.Errorf("Summary should be unchanged, got %q", *diff.Summary)
	}
	if diff.Description != nil {
		t.Errorf("Description should be unchanged, got %q", *diff.Description)
	}
}

func TestPlanTaskChangeShowsAsDescriptionDiff(t *testing.T) {
	record := notes.EpicRecord{
		LocalID: "work.md/Launch",
		Title:   "Launch",
		Status:  notes.StatusInProgress,
		Tasks:   []string{"Write docs"},
	}
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{"work.md/Launch": "PROJ-42"}},
		&fakeRemote{issues: map[string]*jira.RemoteIssue{
			"PROJ-42": {Key: "PROJ-42", Summary: "Launch", Status: "In Progress"},
		}},
	)

	plan := r.Plan(context.Background(), []notes.EpicRecord{record})
	if len(plan.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(plan.Ops))
	}

	diff := plan.Ops[0].Diff
	if diff.Description == nil {
		t.Fatal("expected description diff for changed task list")
	}
	if *diff.Description != "h3. Tasks\n* Write docs" {
		t.Errorf("Description = %q", *diff.Description)
	}
}

func TestPlanUnknownStatusNeverTransitions(t *testing.T) {
	record := notes.EpicRecord{
		LocalID: "work.md/Launch",
		Title:   "Launch",
		Status:  notes.StatusUnknown,
	}
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{"work.md/Launch": "PROJ-42"}},
		&fakeRemote{issues: map[string]*jira.RemoteIssue{
			"PROJ-42": {Key: "PROJ-42", Summary: "Launch", Status: "Done"},
		}},
	)

	plan := r.Plan(context.Background(), []notes.EpicRecord{record})
	if len(plan.Ops) != 0 {
		t.Errorf("unknown status produced ops: %v", plan.Ops)
	}
}

func TestPlanRecreatesWhenRemoteGone(t *testing.T) {
	mapping := &fakeMapping{entries: map[string]string{"work.md/Launch": "PROJ-42"}}
	r := newTestReconciler(mapping, &fakeRemote{issues: map[string]*jira.RemoteIssue{}})

	record := notes.EpicRecord{LocalID: "work.md/Launch", Title: "Launch"}
	plan := r.Plan(context.Background(), []notes.EpicRecord{record})

	if len(plan.Ops) != 1 || plan.Ops[0].Kind != KindCreate {
		t.Fatalf("expected a recreate, got %v", plan.Ops)
	}
	if len(mapping.forgotten) != 1 || mapping.forgotten[0] != "work.md/Launch" {
		t.Errorf("stale mapping not forgotten: %v", mapping.forgotten)
	}
}

func TestPlanAdoptsExplicitKey(t *testing.T) {
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{}},
		&fakeRemote{issues: map[string]*jira.RemoteIssue{
			"PROJ-7": {Key: "PROJ-7", Summary: "Old name", Status: "Backlog"},
		}},
	)

	record := notes.EpicRecord{
		LocalID: "work.md/Launch",
		Title:   "Launch",
		Status:  notes.StatusTodo,
		JiraKey: "PROJ-7",
	}
	plan := r.Plan(context.Background(), []notes.EpicRecord{record})

	if len(plan.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(plan.Ops))
	}
	op := plan.Ops[0]
	if op.Kind != KindUpdate || op.Key != "PROJ-7" {
		t.Errorf("op = %+v, want update against PROJ-7", op)
	}
	if op.Diff.Summary == nil || *op.Diff.Summary != "Launch" {
		t.Errorf("Summary diff = %v", op.Diff.Summary)
	}
}

func TestPlanRecordsInSyncAdoption(t *testing.T) {
	r := newTestReconciler(
		&fakeMapping{entries: map[string]string{}},
		&fakeRemote{issues: map[string]*jira.RemoteIssue{
			"PROJ-7": {Key: "PROJ-7", Summary: "Launch", Status: "Backlog"},
		}},
	)

	record := notes.EpicRecord{
		LocalID: "work.md/Launch",
		Title:   "Launch",
		Status:  notes.StatusTodo,
		JiraKey: "PROJ-7",
	}
	plan := r.Plan(context.Background(), []notes.EpicRecord{record})

	if len(plan.Ops) != 0 {
		t.Errorf("in-sync adoption produced ops: %v", plan.Ops)
	}
	if plan.Adoptions["work.md/Launch"] != "PROJ-7" {
		t.Errorf("adoption not surfaced in plan: %v", plan.Adoptions)
	}
}

func TestPlanIsolatesLookupFailures(t *testing.T) {
	boom := errors.New("network down")
	mapping := &fakeMapping{entries: map[string]string{"a.md/One": "PROJ-1"}}
	remote := &fakeRemote{err: boom}
	r := newTestReconciler(mapping, remote)

	records := []notes.EpicRecord{
		{LocalID: "a.md/One", Title: "One"},
		{LocalID: "b.md/Two", Title: "Two"},
	}
	plan := r.Plan(context.Background(), records)

	if !errors.Is(plan.Failures["a.md/One"], boom) {
		t.Errorf("failure not recorded: %v", plan.Failures)
	}
	if len(plan.Ops) != 1 || plan.Ops[0].LocalID != "b.md/Two" {
		t.Errorf("unaffected record not planned: %v", plan.Ops)
	}
}
