package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/search"
	"github.com/kdex-dev/kdex/internal/store"
	"github.com/kdex-dev/kdex/internal/watcher"
)

// recordingReindexer captures the scoped runs the watcher dispatches.
type recordingReindexer struct {
	mu    sync.Mutex
	calls []index.Options
}

func (r *recordingReindexer) IndexRepository(_ context.Context, repo *store.Repository, opts index.Options) (*index.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	return &index.Result{RepoName: repo.Name}, nil
}

func (r *recordingReindexer) snapshot() []index.Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]index.Options(nil), r.calls...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func TestWatcherCoalescesBurstIntoOneRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatcherDebounceMs = 250

	dir := t.TempDir()
	rec := &recordingReindexer{}

	w, err := watcher.New(cfg, rec)
	require.NoError(t, err)
	require.NoError(t, w.Add(&store.Repository{ID: 7, Name: "notes", Path: dir}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// An editor-style burst: three files written back to back should
	// land in a single debounce window and one scoped run.
	writeFile(t, dir, "a.md", "# A\n")
	writeFile(t, dir, "b.md", "# B\n")
	writeFile(t, dir, "c.md", "# C\n")

	ok := waitFor(t, 5*time.Second, func() bool {
		return len(rec.snapshot()) > 0
	})
	require.True(t, ok, "expected a dispatched run before timeout")

	// Allow a trailing window to flush, then stop.
	time.Sleep(400 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	calls := rec.snapshot()
	require.Len(t, calls, 1, "burst should coalesce into one run")
	paths := make(map[string]bool)
	for _, p := range calls[0].Paths {
		paths[p] = true
	}
	assert.True(t, paths["a.md"], "a.md should be in the change set")
	assert.True(t, paths["b.md"], "b.md should be in the change set")
	assert.True(t, paths["c.md"], "c.md should be in the change set")
}

func TestWatcherIgnoresFilteredPaths(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatcherDebounceMs = 150

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	rec := &recordingReindexer{}

	w, err := watcher.New(cfg, rec)
	require.NoError(t, err)
	require.NoError(t, w.Add(&store.Repository{ID: 1, Name: "notes", Path: dir}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, dir, "node_modules/dep.js", "module.exports = {}\n")
	writeFile(t, dir, "kept.md", "# Kept\n")

	ok := waitFor(t, 5*time.Second, func() bool {
		return len(rec.snapshot()) > 0
	})
	require.True(t, ok, "expected a dispatched run before timeout")
	cancel()
	require.NoError(t, <-done)

	for _, call := range rec.snapshot() {
		for _, p := range call.Paths {
			assert.NotContains(t, p, "node_modules")
		}
	}
}

func TestWatcherReindexesNewFile(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.WatcherDebounceMs = 150
	st := openTestStore(t, cfg)

	root := t.TempDir()
	writeFile(t, root, "existing.md", "# Existing\n\nAlready indexed.\n")

	ix, err := index.New(st, cfg, nil)
	require.NoError(t, err)
	repo, err := ix.Register(ctx, root, index.RegisterOptions{Name: "notes"})
	require.NoError(t, err)
	_, err = ix.IndexRepository(ctx, repo, index.Options{})
	require.NoError(t, err)

	w, err := watcher.New(cfg, ix)
	require.NoError(t, err)
	require.NoError(t, w.Add(repo))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	writeFile(t, root, "fresh.md", "# Fresh\n\nZanzibar authorization notes.\n")

	ok := waitFor(t, 5*time.Second, func() bool {
		paths, err := st.FilePaths(ctx, repo.ID)
		if err != nil {
			return false
		}
		for _, p := range paths {
			if p == "fresh.md" {
				return true
			}
		}
		return false
	})
	cancel()
	require.NoError(t, <-done)
	require.True(t, ok, "fresh.md should be indexed by the watcher")

	s := search.New(st, nil)
	results, err := s.Search(ctx, "zanzibar", search.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "fresh.md", results[0].RelPath)
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.WatcherDebounceMs = 150
	st := openTestStore(t, cfg)

	root := t.TempDir()
	writeFile(t, root, "keep.md", "# Keep\n")
	writeFile(t, root, "doomed.md", "# Doomed\n")

	ix, err := index.New(st, cfg, nil)
	require.NoError(t, err)
	repo, err := ix.Register(ctx, root, index.RegisterOptions{Name: "notes"})
	require.NoError(t, err)
	_, err = ix.IndexRepository(ctx, repo, index.Options{})
	require.NoError(t, err)

	w, err := watcher.New(cfg, ix)
	require.NoError(t, err)
	require.NoError(t, w.Add(repo))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.NoError(t, os.Remove(filepath.Join(root, "doomed.md")))

	ok := waitFor(t, 5*time.Second, func() bool {
		paths, err := st.FilePaths(ctx, repo.ID)
		if err != nil {
			return false
		}
		for _, p := range paths {
			if p == "doomed.md" {
				return false
			}
		}
		return true
	})
	cancel()
	require.NoError(t, <-done)
	require.True(t, ok, "doomed.md should be removed from the index")

	paths, err := st.FilePaths(ctx, repo.ID)
	require.NoError(t, err)
	assert.Contains(t, paths, "keep.md")
}

func TestWatcherAddMissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	w, err := watcher.New(cfg, &recordingReindexer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	err = w.Add(&store.Repository{ID: 1, Name: "ghost", Path: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}
