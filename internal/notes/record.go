// Package notes parses Logseq-style outline files into epic records.
//
// An epic is a top-level bullet tagged #epic. Its direct children with a
// status marker become child tasks; everything else nested under it is
// description text. Files are read in full per sync pass and records are
// never written back.
package notes

import (
	"fmt"
	"regexp"
	"strings"
)

// Status is the normalized workflow state of an epic or task.
type Status int

const (
	// StatusUnknown is the mapping for any marker the status table does
	// not recognize. It is not an error.
	StatusUnknown Status = iota
	// StatusTodo means not started.
	StatusTodo
	// StatusInProgress means actively being worked.
	StatusInProgress
	// StatusDone means finished.
	StatusDone
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusTodo:
		return "todo"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// EpicRecord is one #epic entry extracted from a note file.
// Records are immutable within a sync pass and never persisted.
type EpicRecord struct {
	// LocalID identifies the epic across passes: the file path relative
	// to the workspace root joined with the epic title.
	LocalID string

	// Title is the bullet text with the status marker and #epic tag
	// stripped.
	Title string

	Status      Status
	Description string

	// Tasks holds the ordered titles of direct children that carry a
	// status marker.
	Tasks []string

	// JiraKey is set when the note explicitly references an existing
	// issue via a "jira:: KEY" property line.
	JiraKey string
}

// ParseError reports a file that could not be parsed. The sync pass
// skips the file and continues; it never aborts on a ParseError.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RenderedDescription is the issue description written to Jira: the
// epic's description followed by its child tasks as a wiki-markup
// checklist. The reconciler diffs against this rendering, so a change
// to the task list shows up as a description change.
func (r EpicRecord) RenderedDescription() string {
	if len(r.Tasks) == 0 {
		return r.Description
	}

	var b strings.Builder
	if r.Description != "" {
		b.WriteString(r.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("h3. Tasks\n")
	for _, task := range r.Tasks {
		b.WriteString("* ")
		b.WriteString(task)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// ConvertLinks rewrites markdown links [text](url) into Jira wiki form
// [text|url] so descriptions render as links in Jira.
func ConvertLinks(text string) string {
	return markdownLink.ReplaceAllString(text, "[$1|$2]")
}
