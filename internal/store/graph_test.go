package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathStem(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"docs/Guide.md", "guide"},
		{"README", "readme"},
		{"notes/My Note.md", "my note"},
		{"a/b/archive.tar.gz", "archive.tar"},
		{"UPPER.MD", "upper"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PathStem(tc.in), "PathStem(%q)", tc.in)
	}
}

func seedLinked(t *testing.T, s *Store, repoID int64, rel string, tags, links []string) {
	t.Helper()
	rec := textRecord(repoID, rel, "body of "+rel, "markdown")
	rec.Tags = tags
	rec.Links = links
	seedFile(t, s, rec)
}

func TestAllTags(t *testing.T) {
	s := newTestStore(t)
	repoID := seedRepo(t, s, "notes")
	seedLinked(t, s, repoID, "f1.md", []string{"go", "search"}, nil)
	seedLinked(t, s, repoID, "f2.md", []string{"go"}, nil)
	seedLinked(t, s, repoID, "f3.md", []string{"cli"}, nil)

	tags, err := s.AllTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TagCount{
		{Tag: "go", Count: 2},
		{Tag: "cli", Count: 1},
		{Tag: "search", Count: 1},
	}, tags)
}

func TestBacklinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s, "notes")
	seedLinked(t, s, repoID, "alpha.md", nil, []string{"beta"})
	seedLinked(t, s, repoID, "gamma.md", nil, []string{"beta", "delta"})
	seedLinked(t, s, repoID, "beta.md", nil, nil)

	edges, err := s.Backlinks(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "alpha.md", edges[0].SourcePath)
	assert.Equal(t, "gamma.md", edges[1].SourcePath)
	assert.Equal(t, "beta", edges[0].TargetStem)
	assert.Equal(t, "notes", edges[0].SourceRepo)

	// A full path reduces to the same stem.
	byPath, err := s.Backlinks(ctx, "docs/Beta.md")
	require.NoError(t, err)
	assert.Equal(t, edges, byPath)

	none, err := s.Backlinks(ctx, "zeta")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAllLinks(t *testing.T) {
	s := newTestStore(t)
	repoID := seedRepo(t, s, "notes")
	seedLinked(t, s, repoID, "alpha.md", nil, []string{"beta"})
	seedLinked(t, s, repoID, "gamma.md", nil, []string{"beta", "delta"})

	edges, err := s.AllLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, LinkEdge{SourcePath: "alpha.md", SourceRepo: "notes", TargetStem: "beta"}, edges[0])
	assert.Equal(t, "beta", edges[1].TargetStem)
	assert.Equal(t, "delta", edges[2].TargetStem)
}

func TestMarkdownStems(t *testing.T) {
	s := newTestStore(t)
	repoID := seedRepo(t, s, "notes")
	seedLinked(t, s, repoID, "docs/Alpha.md", nil, nil)
	seedLinked(t, s, repoID, "beta.md", nil, nil)
	seedFile(t, s, textRecord(repoID, "main.go", "package main", "go"))

	stems, err := s.MarkdownStems(context.Background())
	require.NoError(t, err)
	assert.Len(t, stems, 2)
	assert.Contains(t, stems, "alpha")
	assert.Contains(t, stems, "beta")
	assert.NotContains(t, stems, "main")
}

func TestOrphans(t *testing.T) {
	s := newTestStore(t)
	repoID := seedRepo(t, s, "notes")
	// alpha links to beta; nothing links to alpha or gamma.
	seedLinked(t, s, repoID, "alpha.md", nil, []string{"beta"})
	seedLinked(t, s, repoID, "beta.md", nil, nil)
	seedLinked(t, s, repoID, "gamma.md", nil, nil)
	seedFile(t, s, textRecord(repoID, "main.go", "package main", "go"))

	orphans, err := s.Orphans(context.Background())
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, "alpha.md", orphans[0].RelPath)
	assert.Equal(t, "gamma.md", orphans[1].RelPath)
	assert.Equal(t, "notes", orphans[0].RepoName)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	notes := seedRepo(t, s, "notes")
	code := seedRepo(t, s, "codebase")

	seedLinked(t, s, notes, "a.md", []string{"go", "go2"}, []string{"b"})
	seedFile(t, s, textRecord(code, "main.go", "package main", "go"))
	seedFile(t, s, textRecord(code, "LICENSE", "copyright", ""))
	seedChunk(t, s, notes, "b.md", "chunked text", []float32{1, 0})

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Repositories)
	assert.Equal(t, 4, st.Files)
	assert.Equal(t, map[string]int{"markdown": 2, "go": 1, "text": 1}, st.FilesByType)
	assert.Equal(t, 2, st.Tags)
	assert.Equal(t, 1, st.Links)
	assert.Equal(t, 1, st.EmbeddedFiles)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 3, st.SchemaVersion)
	assert.Zero(t, st.DBSizeBytes)
}
