package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCommand_ReportsCounts(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge Index Statistics")
	assert.Contains(t, out, "Repositories: 1")
	assert.Contains(t, out, "Total files:  2")
	assert.Contains(t, out, "markdown")
	assert.Contains(t, out, "Tags:  2")
	assert.Contains(t, out, "Links: 1")
	assert.Contains(t, out, "Database:")
}

func TestStatsCommand_JSONOutput(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes)
	require.NoError(t, err)

	out, err := runKdex(t, "--json", "stats")
	require.NoError(t, err)

	var result struct {
		TotalRepos int `json:"total_repos"`
		TotalFiles int `json:"total_files"`
		FileTypes  []struct {
			FileType string `json:"file_type"`
			Count    int    `json:"count"`
		} `json:"file_types"`
		TotalTags  int `json:"total_tags"`
		TotalLinks int `json:"total_links"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.TotalRepos)
	assert.Equal(t, 2, result.TotalFiles)
	require.Len(t, result.FileTypes, 1)
	assert.Equal(t, "markdown", result.FileTypes[0].FileType)
	assert.Equal(t, 2, result.TotalTags)
	assert.Equal(t, 1, result.TotalLinks)
}

func TestTagsCommand_ListsTagsByFrequency(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes)
	require.NoError(t, err)

	out, err := runKdex(t, "tags")
	require.NoError(t, err)
	assert.Contains(t, out, "#consensus (1)")
	assert.Contains(t, out, "#distributed (1)")
	assert.Contains(t, out, "2 unique tags")
	assert.Contains(t, out, "--tag <tagname>")
}

func TestTagsCommand_Empty(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	writeNote(t, dir, "plain.md", "# Plain\n\nNo tags here.\n")

	_, err := runKdex(t, "index", dir)
	require.NoError(t, err)

	out, err := runKdex(t, "tags")
	require.NoError(t, err)
	assert.Contains(t, out, "No tags found.")
	assert.Contains(t, out, "frontmatter")
}

func TestBacklinksCommand_FindsLinkingFiles(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "backlinks", "paxos")
	require.NoError(t, err)
	assert.Contains(t, out, "Backlinks to paxos")
	assert.Contains(t, out, "notes: raft.md")
	assert.Contains(t, out, "1 file links to this")
}

func TestBacklinksCommand_AcceptsPathArgument(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	// A path or a name with extension reduce to the same stem.
	out, err := runKdex(t, "backlinks", "sub/dir/PAXOS.md")
	require.NoError(t, err)
	assert.Contains(t, out, "notes: raft.md")
}

func TestBacklinksCommand_NoneFound(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes)
	require.NoError(t, err)

	out, err := runKdex(t, "backlinks", "raft")
	require.NoError(t, err)
	assert.Contains(t, out, "No backlinks found for: raft")
	assert.Contains(t, out, "[[raft]]")
}

func TestHealthCommand_ReportsBrokenLinksAndOrphans(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	writeNote(t, dir, "hub.md", "# Hub\n\nSee [[missing-note]] and [[leaf]].\n")
	writeNote(t, dir, "leaf.md", "# Leaf\n\nLinked from hub.\n")

	_, err := runKdex(t, "index", dir, "--name", "vault")
	require.NoError(t, err)

	out, err := runKdex(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge Index Health Report")
	assert.Contains(t, out, "1 broken link")
	assert.Contains(t, out, "missing-note")
	// hub.md is an orphan: nothing links to it.
	assert.Contains(t, out, "1 orphan file")
	assert.Contains(t, out, "hub.md")
	// 2 md files, 1 orphan (50 cap), 1 broken link (5): 100-50-5.
	assert.Contains(t, out, "Health Score: 45/100")
}

func TestHealthCommand_JSONOutput(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	writeNote(t, dir, "hub.md", "# Hub\n\nSee [[missing-note]] and [[leaf]].\n")
	writeNote(t, dir, "leaf.md", "# Leaf\n\nLinked from hub.\n")

	_, err := runKdex(t, "index", dir, "--name", "vault")
	require.NoError(t, err)

	out, err := runKdex(t, "--json", "health")
	require.NoError(t, err)

	var report struct {
		OrphanFiles []struct {
			File string `json:"file"`
			Repo string `json:"repo"`
		} `json:"orphan_files"`
		BrokenLinks []struct {
			File   string `json:"file"`
			Target string `json:"target"`
		} `json:"broken_links"`
		Summary struct {
			TotalOrphans     int `json:"total_orphans"`
			TotalBrokenLinks int `json:"total_broken_links"`
			HealthScore      int `json:"health_score"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.BrokenLinks, 1)
	assert.Equal(t, "hub.md", report.BrokenLinks[0].File)
	assert.Equal(t, "missing-note", report.BrokenLinks[0].Target)
	require.Len(t, report.OrphanFiles, 1)
	assert.Equal(t, "hub.md", report.OrphanFiles[0].File)
	assert.Equal(t, 45, report.Summary.HealthScore)
}

func TestHealthCommand_EmptyIndexIsHealthy(t *testing.T) {
	isolateConfig(t)

	out, err := runKdex(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Health Score: 100/100")
	assert.Contains(t, out, "No broken links found")
	assert.Contains(t, out, "No orphan files")
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name    string
		md      int
		orphans int
		broken  int
		want    int
	}{
		{"no markdown is healthy", 0, 5, 5, 100},
		{"clean graph", 10, 0, 0, 100},
		{"few orphans and one broken link", 10, 2, 1, 75},
		{"penalties cap at fifty each", 4, 4, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, healthScore(tt.md, tt.orphans, tt.broken))
		})
	}
}
