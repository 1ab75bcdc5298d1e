package notes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StatusTable maps note status markers to normalized statuses and
// normalized statuses to the issue status names used by the remote
// workflow. The table is data, not code, so a workspace with unusual
// markers can override it from a YAML file.
type StatusTable struct {
	// Markers maps an upper-case bullet marker (TODO, DOING, ...) to a
	// Status. Markers absent from the table map to StatusUnknown.
	Markers map[string]Status

	// Remote maps a Status to the Jira workflow status name used when
	// transitioning issues.
	Remote map[Status]string
}

// DefaultStatusTable returns the mapping for stock Logseq markers.
// Markers mapped to StatusUnknown are still recognized as markers and
// stripped from titles, they just never drive a remote transition.
func DefaultStatusTable() *StatusTable {
	return &StatusTable{
		Markers: map[string]Status{
			"TODO":      StatusTodo,
			"LATER":     StatusTodo,
			"DOING":     StatusInProgress,
			"NOW":       StatusInProgress,
			"DONE":      StatusDone,
			"WAIT":      StatusUnknown,
			"WAITING":   StatusUnknown,
			"CANCELED":  StatusUnknown,
			"CANCELLED": StatusUnknown,
		},
		Remote: map[Status]string{
			StatusTodo:       "Backlog",
			StatusInProgress: "In Progress",
			StatusDone:       "Done",
		},
	}
}

// Lookup maps a marker to its Status. Unrecognized markers are
// StatusUnknown, never an error.
func (t *StatusTable) Lookup(marker string) Status {
	return t.Markers[marker]
}

// IsMarker reports whether word is a status marker the table knows.
// Upper-case words outside the table are ordinary title text.
func (t *StatusTable) IsMarker(word string) bool {
	_, ok := t.Markers[word]
	return ok
}

// RemoteName returns the remote workflow status name for s, or "" when
// s has no remote counterpart (StatusUnknown is never transitioned).
func (t *StatusTable) RemoteName(s Status) string {
	return t.Remote[s]
}

// statusTableFile is the YAML shape of a status table override.
type statusTableFile struct {
	Markers map[string]string `yaml:"markers"`
	Remote  map[string]string `yaml:"remote"`
}

// LoadStatusTable reads a status table override from a YAML file.
// Entries merge over the defaults; omitted sections keep the stock
// mapping.
func LoadStatusTable(path string) (*StatusTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading status table: %w", err)
	}

	var file statusTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing status table: %w", err)
	}

	table := DefaultStatusTable()
	for marker, name := range file.Markers {
		status, err := parseStatusName(name)
		if err != nil {
			return nil, fmt.Errorf("status table marker %q: %w", marker, err)
		}
		table.Markers[marker] = status
	}
	for name, remote := range file.Remote {
		status, err := parseStatusName(name)
		if err != nil {
			return nil, fmt.Errorf("status table remote %q: %w", name, err)
		}
		table.Remote[status] = remote
	}

	return table, nil
}

func parseStatusName(name string) (Status, error) {
	switch name {
	case "todo":
		return StatusTodo, nil
	case "in_progress", "doing":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	case "unknown":
		return StatusUnknown, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown status name %q", name)
	}
}
