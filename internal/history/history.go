// Package history keeps the recent CLI search queries. Interactive
// searches record here; MCP traffic never does.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MaxEntries bounds the history file; older queries fall off the end.
const MaxEntries = 50

// History is an ordered list of queries, newest first. Re-running a
// query moves it to the front instead of duplicating it.
type History struct {
	Queries []string `json:"queries"`

	path string
}

// Load reads the history file at path, returning an empty history when
// the file is missing or unreadable. History is a convenience, never a
// reason to fail a search.
func Load(path string) *History {
	h := &History{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return h
	}
	if err := json.Unmarshal(data, h); err != nil {
		h.Queries = nil
	}
	if len(h.Queries) > MaxEntries {
		h.Queries = h.Queries[:MaxEntries]
	}
	return h
}

// Add records a query at the front, deduplicating prior occurrences.
// Blank queries are ignored.
func (h *History) Add(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	h.Queries = slices.DeleteFunc(h.Queries, func(q string) bool { return q == query })
	h.Queries = append([]string{query}, h.Queries...)
	if len(h.Queries) > MaxEntries {
		h.Queries = h.Queries[:MaxEntries]
	}
}

// Recent returns up to n queries, newest first.
func (h *History) Recent(n int) []string {
	if n <= 0 || n > len(h.Queries) {
		n = len(h.Queries)
	}
	return slices.Clone(h.Queries[:n])
}

// Len returns the number of stored queries.
func (h *History) Len() int { return len(h.Queries) }

// Save writes the history file, creating the directory when needed.
func (h *History) Save() error {
	if h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0o644)
}

// Record is the one-shot path used by the search command: load, add,
// save, ignoring I/O problems.
func Record(path, query string) {
	h := Load(path)
	h.Add(query)
	_ = h.Save()
}
