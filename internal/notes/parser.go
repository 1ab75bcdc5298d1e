package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// EpicTag marks a top-level bullet as an epic.
	EpicTag = "#epic"

	// maxDepth bounds outline nesting: epic, task, sub-task. Anything
	// deeper means the file does not follow the convention.
	maxDepth = 3
)

var (
	jiraPropRe = regexp.MustCompile(`^jira::\s*([A-Z][A-Z0-9]*-\d+)\s*$`)
	jiraRefRe  = regexp.MustCompile(`^\[\[([A-Z][A-Z0-9]*-\d+)\]\]$`)
)

// issueRef extracts an explicit issue reference from a line: either a
// "jira:: KEY" property or a bare [[KEY]] page link.
func issueRef(line string) string {
	if m := jiraPropRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := jiraRefRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// Parser extracts epic records from note files.
type Parser struct {
	table *StatusTable
}

// NewParser returns a parser using the given status table, or the
// default table when table is nil.
func NewParser(table *StatusTable) *Parser {
	if table == nil {
		table = DefaultStatusTable()
	}
	return &Parser{table: table}
}

// ParseFile reads and parses one note file. root is the workspace
// directory; record LocalIDs are derived from the path relative to it.
// All failures come back as *ParseError so callers can skip the file.
func (p *Parser) ParseFile(root, path string) ([]EpicRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	source := path
	if rel, err := filepath.Rel(root, path); err == nil {
		source = filepath.ToSlash(rel)
	}

	records, err := p.Parse(string(data), source)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return records, nil
}

// outlineNode tracks one marked bullet while walking the indent stack.
type outlineNode struct {
	indent int
	level  int
}

// epicBuilder accumulates one epic while its subtree is being walked.
type epicBuilder struct {
	record      EpicRecord
	description []string
}

// Parse extracts epic records from outline text. source names the file
// for LocalID derivation.
//
// The walk mirrors the note convention: bullets with an upper-case
// status marker are outline nodes, indentation defines nesting, and
// :LOGBOOK: blocks are ignored. A top-level node is an epic only when
// it carries the #epic tag; its level-two children with markers become
// child tasks. Unmarked bullets and plain lines directly under the epic
// are description text.
func (p *Parser) Parse(content, source string) ([]EpicRecord, error) {
	var (
		records   []EpicRecord
		stack     []outlineNode
		current   *epicBuilder
		currLevel int
		inLogbook bool
	)

	flush := func() {
		if current == nil {
			return
		}
		if current.record.Title != "" {
			current.record.Description = ConvertLinks(
				strings.TrimSpace(strings.Join(current.description, "\n")))
			records = append(records, current.record)
		}
		current = nil
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.ReplaceAll(strings.TrimRight(raw, "\r"), "\t", "    ")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Logseq keeps clock history in :LOGBOOK: ... :END: blocks.
		if strings.Contains(trimmed, ":LOGBOOK:") {
			inLogbook = true
			continue
		}
		if strings.Contains(trimmed, ":END:") {
			inLogbook = false
			continue
		}
		if inLogbook {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " "))

		if !strings.HasPrefix(trimmed, "- ") {
			// Plain continuation line: an issue reference links the epic
			// to an existing issue, lines starting with # are relation
			// tags, everything else is description.
			if current == nil {
				continue
			}
			if key := issueRef(trimmed); key != "" {
				current.record.JiraKey = key
				continue
			}
			if strings.HasPrefix(trimmed, "#") {
				continue
			}
			if currLevel == 1 {
				current.description = append(current.description, trimmed)
			}
			continue
		}

		body := strings.TrimSpace(trimmed[2:])
		marker, rest := p.splitMarker(body)
		isEpic := indent == 0 && hasEpicTag(rest)

		if marker == "" && !isEpic {
			// Unmarked bullet: property or description of the current
			// node, never a new outline node.
			if current == nil {
				continue
			}
			if key := issueRef(body); key != "" {
				current.record.JiraKey = key
				continue
			}
			if currLevel == 1 {
				current.description = append(current.description, "- "+body)
			}
			continue
		}

		// A new outline node: find its nesting level.
		for len(stack) > 0 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}
		level := len(stack) + 1
		if level > maxDepth {
			flush()
			return nil, fmt.Errorf("outline nests deeper than sub-task level (indent %d)", indent)
		}
		stack = append(stack, outlineNode{indent: indent, level: level})
		currLevel = level

		title := strings.TrimSpace(stripEpicTag(rest))

		switch {
		case level == 1:
			flush()
			if !isEpic {
				continue
			}
			current = &epicBuilder{record: EpicRecord{
				LocalID: source + "/" + title,
				Title:   title,
				Status:  p.table.Lookup(marker),
			}}

		case level == 2 && current != nil && marker != "":
			current.record.Tasks = append(current.record.Tasks, title)
		}
	}

	flush()
	return records, nil
}

// splitMarker separates a leading status marker from the bullet body.
// Only words the status table knows count as markers; any other
// upper-case word ("API", "SQL") stays part of the title.
func (p *Parser) splitMarker(body string) (marker, rest string) {
	first, remainder, _ := strings.Cut(body, " ")
	if !p.table.IsMarker(first) {
		return "", body
	}
	return first, strings.TrimSpace(remainder)
}

func hasEpicTag(text string) bool {
	for _, field := range strings.Fields(text) {
		if field == EpicTag {
			return true
		}
	}
	return false
}

func stripEpicTag(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, field := range fields {
		if field != EpicTag {
			kept = append(kept, field)
		}
	}
	return strings.Join(kept, " ")
}
