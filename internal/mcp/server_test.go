package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdex-dev/kdex/internal/config"
	"github.com/kdex-dev/kdex/internal/search"
	"github.com/kdex-dev/kdex/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv, err := NewServer(st, search.New(st, nil), config.Default())
	require.NoError(t, err)
	return srv, st
}

func seedRepo(t *testing.T, st *store.Store, name string) int64 {
	t.Helper()
	id, err := st.UpsertRepository(context.Background(), &store.Repository{
		Name:   name,
		Path:   "/srv/" + name,
		Status: store.StatusPending,
		Source: store.SourceLocal,
		Vault:  "generic",
	})
	require.NoError(t, err)
	return id
}

func seedFile(t *testing.T, st *store.Store, repoID int64, rel, content string) {
	t.Helper()
	ctx := context.Background()
	batch, err := st.BeginBatch(ctx)
	require.NoError(t, err)
	_, err = batch.UpsertFile(ctx, &store.FileRecord{
		RepoID:   repoID,
		RelPath:  rel,
		Size:     int64(len(content)),
		ModTime:  1700000000,
		Hash:     "h-" + rel,
		FileType: "markdown",
		Content:  content,
	})
	require.NoError(t, err)
	require.NoError(t, batch.Commit())
}

func TestNewServer_RequiresStoreAndSearcher(t *testing.T) {
	st, err := store.Open(context.Background(), store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = NewServer(nil, search.New(st, nil), config.Default())
	assert.Error(t, err)

	_, err = NewServer(st, nil, config.Default())
	assert.Error(t, err)

	srv, err := NewServer(st, search.New(st, nil), nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.MCPServer())
}

func TestSearchHandler_ReturnsBracketedSnippets(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "ideas/raft.md", "notes about raft consensus and leader election")

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "raft"})
	require.NoError(t, err)

	require.Equal(t, 1, out.Total)
	r := out.Results[0]
	assert.Equal(t, "/srv/notes/ideas/raft.md", r.File)
	assert.Equal(t, "notes", r.Repo)
	assert.Contains(t, r.Snippet, "[raft]")
	assert.NotContains(t, r.Snippet, store.SnippetStart)
	assert.Equal(t, "lexical", out.Mode)
	assert.Equal(t, "raft", out.Query)
	assert.False(t, out.Truncated)
	assert.Empty(t, out.Hint)
}

func TestSearchHandler_RejectsBlankQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "  \t "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchHandler_TruncationSetsHint(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "a.md", "the kernel scheduler design")
	seedFile(t, st, repoID, "b.md", "more kernel scheduler notes")
	seedFile(t, st, repoID, "c.md", "kernel scheduler tuning")

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "kernel", Limit: 2})
	require.NoError(t, err)

	assert.Len(t, out.Results, 2)
	assert.True(t, out.Truncated)
	assert.Contains(t, out.Hint, "limit")
}

func TestSearchHandler_SemanticFallsBackToLexical(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "a.md", "observability with tracing spans")

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{
		Query: "tracing",
		Mode:  "semantic",
	})
	require.NoError(t, err)

	assert.Equal(t, "lexical", out.Mode)
	assert.Equal(t, 1, out.Total)
	assert.Contains(t, out.Hint, "Semantic search is unavailable")
}

func TestSearchHandler_RepoFilter(t *testing.T) {
	srv, st := newTestServer(t)
	alpha := seedRepo(t, st, "alpha")
	beta := seedRepo(t, st, "beta")
	seedFile(t, st, alpha, "doc.md", "shared deployment checklist")
	seedFile(t, st, beta, "doc.md", "shared deployment checklist")

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{
		Query: "deployment",
		Repo:  "beta",
	})
	require.NoError(t, err)

	require.Equal(t, 1, out.Total)
	assert.Equal(t, "beta", out.Results[0].Repo)
}

func TestListReposHandler(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	repoID := seedRepo(t, st, "wiki")
	seedRepo(t, st, "scratch")
	require.NoError(t, st.FinishIndexing(ctx, repoID, 12, 4096))

	_, out, err := srv.listReposHandler(ctx, nil, ListReposInput{})
	require.NoError(t, err)

	require.Equal(t, 2, out.Total)
	byName := map[string]RepoOutput{}
	for _, r := range out.Repositories {
		byName[r.Name] = r
	}

	wiki := byName["wiki"]
	assert.Equal(t, "/srv/wiki", wiki.Path)
	assert.Equal(t, int64(12), wiki.FileCount)
	assert.Equal(t, "ready", wiki.Status)
	assert.NotEmpty(t, wiki.LastIndexed)

	scratch := byName["scratch"]
	assert.Equal(t, "pending", scratch.Status)
	assert.Empty(t, scratch.LastIndexed)
}

func TestGetFileHandler_ReturnsContent(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "guide.md", "line one\nline two\n")

	_, out, err := srv.getFileHandler(context.Background(), nil, GetFileInput{Path: "guide.md"})
	require.NoError(t, err)

	assert.Equal(t, "/srv/notes/guide.md", out.Path)
	assert.Equal(t, "markdown", out.Type)
	assert.Equal(t, "line one\nline two\n", out.Content)
	assert.False(t, out.Truncated)
}

func TestGetFileHandler_TruncatesAtMaxChars(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "big.md", strings.Repeat("x", 200))

	_, out, err := srv.getFileHandler(context.Background(), nil, GetFileInput{Path: "big.md", MaxChars: 50})
	require.NoError(t, err)

	assert.Len(t, out.Content, 50)
	assert.True(t, out.Truncated)
}

func TestGetFileHandler_UnknownPath(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.getFileHandler(context.Background(), nil, GetFileInput{Path: "missing.md"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

func TestGetFileHandler_RequiresPath(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.getFileHandler(context.Background(), nil, GetFileInput{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestGetContextHandler_WindowsAroundLine(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	var b strings.Builder
	for i := 1; i <= 40; i++ {
		b.WriteString(strings.Repeat("word ", 3))
		b.WriteString("\n")
	}
	seedFile(t, st, repoID, "long.md", b.String())

	_, out, err := srv.getContextHandler(context.Background(), nil, GetContextInput{
		Path:         "long.md",
		Line:         20,
		ContextLines: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 18, out.StartLine)
	assert.Equal(t, 22, out.EndLine)
	require.Len(t, out.Lines, 5)
	assert.True(t, strings.HasPrefix(out.Lines[0], "  18 | "))
	assert.True(t, strings.HasPrefix(out.Lines[4], "  22 | "))
}

func TestGetContextHandler_SaturatesAtFileStart(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "short.md", "one\ntwo\nthree\nfour\n")

	_, out, err := srv.getContextHandler(context.Background(), nil, GetContextInput{
		Path: "short.md",
		Line: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.StartLine)
	assert.Equal(t, 4, out.EndLine)
	assert.Len(t, out.Lines, 4)
}

func TestGetContextHandler_LinePastEndSnapsToLastLine(t *testing.T) {
	srv, st := newTestServer(t)
	repoID := seedRepo(t, st, "notes")
	seedFile(t, st, repoID, "short.md", "one\ntwo\nthree\n")

	_, out, err := srv.getContextHandler(context.Background(), nil, GetContextInput{
		Path:         "short.md",
		Line:         500,
		ContextLines: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.StartLine)
	assert.Equal(t, 3, out.EndLine)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, "   3 | three", out.Lines[1])
}

func TestGetContextHandler_RejectsNonPositiveLine(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.getContextHandler(context.Background(), nil, GetContextInput{Path: "x.md", Line: 0})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 10, clampLimit(-3, 10, 1, 50))
	assert.Equal(t, 25, clampLimit(25, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(900, 10, 1, 50))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb"))
	assert.Equal(t, []string{"a", "", "b"}, splitLines("a\n\nb"))
	assert.Equal(t, []string{""}, splitLines(""))
}
