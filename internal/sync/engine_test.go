package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/epicsync/epicsync/internal/config"
	"github.com/epicsync/epicsync/internal/jira"
	"github.com/epicsync/epicsync/internal/mapping"
	"github.com/epicsync/epicsync/internal/notes"
)

// mockAdapter is an in-memory Jira that tracks call counts.
type mockAdapter struct {
	issues      map[string]*jira.RemoteIssue
	nextID      int
	creates     int
	updates     int
	transitions int
	createErr   error
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{issues: make(map[string]*jira.RemoteIssue)}
}

func (m *mockAdapter) FindIssue(_ context.Context, key string) (*jira.RemoteIssue, error) {
	issue, ok := m.issues[key]
	if !ok {
		return nil, jira.ErrNotFound
	}
	copy := *issue
	return &copy, nil
}

func (m *mockAdapter) CreateEpic(_ context.Context, record notes.EpicRecord) (string, error) {
	m.creates++
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	key := fmt.Sprintf("PROJ-%d", m.nextID+41)
	m.issues[key] = &jira.RemoteIssue{
		Key:         key,
		Summary:     record.Title,
		Description: record.RenderedDescription(),
		Status:      "Backlog",
	}
	return key, nil
}

func (m *mockAdapter) UpdateIssue(_ context.Context, key string, summary, description *string) error {
	m.updates++
	issue, ok := m.issues[key]
	if !ok {
		return jira.ErrNotFound
	}
	if summary != nil {
		issue.Summary = *summary
	}
	if description != nil {
		issue.Description = *description
	}
	return nil
}

func (m *mockAdapter) TransitionIssue(_ context.Context, key, statusName string) error {
	m.transitions++
	issue, ok := m.issues[key]
	if !ok {
		return jira.ErrNotFound
	}
	issue.Status = statusName
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *mockAdapter, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		WatchDir:       dir,
		JiraProjectKey: "PROJ",
	}

	store, err := mapping.Open(filepath.Join(t.TempDir(), "mapping.db"))
	if err != nil {
		t.Fatalf("opening mapping store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	adapter := newMockAdapter()
	return New(cfg, store, adapter, nil, nil, zerolog.Nop()), adapter, cfg
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing note: %v", err)
	}
	return path
}

func TestEndToEndScenario(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)
	ctx := context.Background()

	// First pass: a new epic in DOING.
	path := writeNote(t, cfg.WatchDir, "work.md", "- DOING Launch #epic\n")
	result := engine.Run(ctx, []string{path})

	if result.Created != 1 || result.Failed != 0 {
		t.Fatalf("first pass: %+v", result)
	}
	if adapter.creates != 1 {
		t.Errorf("creates = %d, want 1", adapter.creates)
	}

	issue := adapter.issues["PROJ-42"]
	if issue == nil {
		t.Fatal("issue PROJ-42 not created")
	}
	if issue.Summary != "Launch" {
		t.Errorf("Summary = %q", issue.Summary)
	}
	if issue.Status != "In Progress" {
		t.Errorf("Status = %q, want In Progress", issue.Status)
	}

	// Second pass: status flipped to DONE. Only a transition, no
	// create, no field update.
	writeNote(t, cfg.WatchDir, "work.md", "- DONE Launch #epic\n")
	createsBefore, updatesBefore := adapter.creates, adapter.updates

	result = engine.Run(ctx, []string{path})
	if result.Updated != 1 {
		t.Fatalf("second pass: %+v", result)
	}
	if adapter.creates != createsBefore {
		t.Errorf("second pass created an issue")
	}
	if adapter.updates != updatesBefore {
		t.Errorf("status-only change issued a field update")
	}
	if adapter.issues["PROJ-42"].Status != "Done" {
		t.Errorf("Status = %q, want Done", adapter.issues["PROJ-42"].Status)
	}
}

func TestIdempotentSecondPass(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)
	ctx := context.Background()

	path := writeNote(t, cfg.WatchDir, "work.md", strings.Join([]string{
		"- DOING Launch #epic",
		"  Ship the flow.",
		"  - TODO Write docs",
	}, "\n"))

	engine.Run(ctx, []string{path})
	creates, updates, transitions := adapter.creates, adapter.updates, adapter.transitions

	result := engine.Run(ctx, []string{path})
	if result.UpToDate != 1 {
		t.Fatalf("second pass: %+v", result)
	}
	if adapter.creates != creates || adapter.updates != updates || adapter.transitions != transitions {
		t.Errorf("second pass performed remote operations: creates %d->%d updates %d->%d transitions %d->%d",
			creates, adapter.creates, updates, adapter.updates, transitions, adapter.transitions)
	}
}

func TestCreateOnce(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)
	ctx := context.Background()

	path := writeNote(t, cfg.WatchDir, "work.md", "- TODO Launch #epic\n")

	engine.Run(ctx, []string{path})
	engine.Run(ctx, []string{path})

	if adapter.creates != 1 {
		t.Errorf("creates = %d, want exactly 1 across passes", adapter.creates)
	}
	if len(adapter.issues) != 1 {
		t.Errorf("%d issues exist for one epic", len(adapter.issues))
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)
	ctx := context.Background()

	good1 := writeNote(t, cfg.WatchDir, "a.md", "- TODO First #epic\n")
	// Nesting beyond sub-task level makes the file unparseable.
	bad := writeNote(t, cfg.WatchDir, "b.md", strings.Join([]string{
		"- TODO Broken #epic",
		"  - TODO x",
		"    - TODO y",
		"      - TODO z",
	}, "\n"))
	good2 := writeNote(t, cfg.WatchDir, "c.md", "- TODO Third #epic\n")

	result := engine.Run(ctx, []string{good1, bad, good2})

	if result.Created != 2 {
		t.Errorf("created = %d, want 2", result.Created)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if len(result.ParseFailures) != 1 || result.ParseFailures[0] != bad {
		t.Errorf("ParseFailures = %v", result.ParseFailures)
	}
	if adapter.creates != 2 {
		t.Errorf("creates = %d, want 2", adapter.creates)
	}
}

func TestFailedOperationDoesNotAbortBatch(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)
	ctx := context.Background()

	// Seed one mapped epic so the pass holds a create and an update.
	mapped := writeNote(t, cfg.WatchDir, "mapped.md", "- TODO Old #epic\n")
	engine.Run(ctx, []string{mapped})

	writeNote(t, cfg.WatchDir, "mapped.md", "- DOING Old #epic\n")
	fresh := writeNote(t, cfg.WatchDir, "fresh.md", "- TODO New #epic\n")

	adapter.createErr = &jira.APIError{StatusCode: 503, Body: "down"}
	result := engine.Run(ctx, []string{mapped, fresh})

	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	if result.Updated != 1 {
		t.Errorf("updated = %d, want 1 (update must survive the failed create)", result.Updated)
	}
}

func TestAdoptionPersistsMapping(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{WatchDir: dir, JiraProjectKey: "PROJ"}

	store, err := mapping.Open(filepath.Join(t.TempDir(), "mapping.db"))
	if err != nil {
		t.Fatalf("opening mapping store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	adapter := newMockAdapter()
	adapter.issues["PROJ-7"] = &jira.RemoteIssue{
		Key:     "PROJ-7",
		Summary: "Launch",
		Status:  "Backlog",
	}
	engine := New(cfg, store, adapter, nil, nil, zerolog.Nop())
	ctx := context.Background()

	// The note references an issue that already matches it exactly.
	path := writeNote(t, dir, "work.md", strings.Join([]string{
		"- TODO Launch #epic",
		"  jira:: PROJ-7",
	}, "\n"))

	result := engine.Run(ctx, []string{path})
	if result.UpToDate != 1 || result.Created != 0 {
		t.Fatalf("first pass: %+v", result)
	}

	key, ok, err := store.Get("work.md/Launch")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || key != "PROJ-7" {
		t.Fatalf("mapping not persisted after adoption: %q, %v", key, ok)
	}

	// With the reference gone, the persisted mapping must prevent a
	// duplicate create.
	writeNote(t, dir, "work.md", "- TODO Launch #epic\n")
	result = engine.Run(ctx, []string{path})
	if result.UpToDate != 1 {
		t.Fatalf("second pass: %+v", result)
	}
	if adapter.creates != 0 {
		t.Errorf("creates = %d, want 0 (adopted epic must never be recreated)", adapter.creates)
	}
}

func TestRunFullScansWorkspace(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)

	pages := filepath.Join(cfg.WatchDir, "pages")
	if err := os.MkdirAll(pages, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeNote(t, pages, "one.md", "- TODO One #epic\n")
	writeNote(t, cfg.WatchDir, "two.md", "- TODO Two #epic\n")
	writeNote(t, cfg.WatchDir, "notes.txt", "- TODO NotMarkdown #epic\n")

	result, err := engine.RunFull(context.Background())
	if err != nil {
		t.Fatalf("RunFull failed: %v", err)
	}
	if result.Created != 2 {
		t.Errorf("created = %d, want 2", result.Created)
	}
	if adapter.creates != 2 {
		t.Errorf("creates = %d, want 2 (.txt must be ignored)", adapter.creates)
	}
}

func TestRunFullHonorsIgnoreGlobs(t *testing.T) {
	engine, adapter, cfg := newTestEngine(t)
	cfg.IgnoreGlobs = []string{"bak/**"}

	bak := filepath.Join(cfg.WatchDir, "bak")
	if err := os.MkdirAll(bak, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeNote(t, bak, "old.md", "- TODO Stale #epic\n")
	writeNote(t, cfg.WatchDir, "live.md", "- TODO Live #epic\n")

	if _, err := engine.RunFull(context.Background()); err != nil {
		t.Fatalf("RunFull failed: %v", err)
	}
	if adapter.creates != 1 {
		t.Errorf("creates = %d, want 1 (bak/ must be ignored)", adapter.creates)
	}
}
