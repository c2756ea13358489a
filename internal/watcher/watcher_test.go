package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdex-dev/kdex/internal/config"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/store"
)

type fakeCall struct {
	repo  string
	paths []string
}

// fakeReindexer records every dispatch so tests can assert how windows
// translate into index runs.
type fakeReindexer struct {
	mu    sync.Mutex
	calls []fakeCall
	fail  map[string]error
}

func (f *fakeReindexer) IndexRepository(_ context.Context, repo *store.Repository, opts index.Options) (*index.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{repo: repo.Name, paths: append([]string(nil), opts.Paths...)})
	if err := f.fail[repo.Name]; err != nil {
		return nil, err
	}
	return &index.Result{RepoName: repo.Name}, nil
}

func (f *fakeReindexer) snapshot() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func newTestWatcher(t *testing.T, ix Reindexer) *Watcher {
	t.Helper()
	w, err := New(config.Default(), ix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWatcher_AddMissingPath(t *testing.T) {
	w := newTestWatcher(t, &fakeReindexer{})

	err := w.Add(&store.Repository{ID: 1, Name: "ghost", Path: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodePathNotFound))
}

func TestWatcher_AddSubscribesTree(t *testing.T) {
	w := newTestWatcher(t, &fakeReindexer{})

	root := t.TempDir()
	writeFile(t, root, "docs/guide.md", "x")
	writeFile(t, root, "notes/deep/leaf.md", "x")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")

	require.NoError(t, w.Add(&store.Repository{ID: 1, Name: "notes", Path: root}))

	w.mu.RLock()
	dirs := w.dirs
	w.mu.RUnlock()
	// root, docs, notes, notes/deep; .git is ignored.
	assert.Equal(t, 4, dirs)
}

func TestWatcher_ResolveLongestRoot(t *testing.T) {
	w := newTestWatcher(t, &fakeReindexer{})

	base := t.TempDir()
	outerRoot := filepath.Join(base, "outer")
	innerRoot := filepath.Join(base, "outer", "vendor", "inner")
	outer := &store.Repository{ID: 1, Name: "outer", Path: outerRoot}
	inner := &store.Repository{ID: 2, Name: "inner", Path: innerRoot}
	w.roots = []watchedRoot{
		{repo: inner, root: innerRoot},
		{repo: outer, root: outerRoot},
	}

	wr, rel := w.resolve(filepath.Join(outerRoot, "docs", "a.md"))
	require.NotNil(t, wr)
	assert.Equal(t, "outer", wr.repo.Name)
	assert.Equal(t, "docs/a.md", rel)

	wr, rel = w.resolve(filepath.Join(innerRoot, "b.md"))
	require.NotNil(t, wr)
	assert.Equal(t, "inner", wr.repo.Name)
	assert.Equal(t, "b.md", rel)

	wr, _ = w.resolve(filepath.Join(base, "elsewhere", "c.md"))
	assert.Nil(t, wr)

	// Sibling sharing a string prefix with a root is not inside it.
	wr, _ = w.resolve(outerRoot + "-archive" + string(filepath.Separator) + "d.md")
	assert.Nil(t, wr)
}

func TestWatcher_HandleClassifiesEvents(t *testing.T) {
	w := newTestWatcher(t, &fakeReindexer{})

	root := t.TempDir()
	repo := &store.Repository{ID: 1, Name: "notes", Path: root}
	w.roots = []watchedRoot{{repo: repo, root: root}}

	writeFile(t, root, "new.md", "# New\n")
	w.handle(fsnotify.Event{Name: filepath.Join(root, "new.md"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "old.md"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "gone.md"), Op: fsnotify.Remove})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "moved.md"), Op: fsnotify.Rename})
	w.handle(fsnotify.Event{Name: filepath.Join(root, "pic.png"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(root, ".git", "index.lock"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(t.TempDir(), "foreign.md"), Op: fsnotify.Write})

	changes := w.debouncer.Stop()
	require.Len(t, changes, 4)

	kinds := make(map[string]Kind, len(changes))
	for _, ch := range changes {
		kinds[ch.RelPath] = ch.Kind
	}
	assert.Equal(t, KindCreate, kinds["new.md"])
	assert.Equal(t, KindModify, kinds["old.md"])
	assert.Equal(t, KindDelete, kinds["gone.md"])
	assert.Equal(t, KindDelete, kinds["moved.md"])
}

func TestWatcher_BurstCoalescesToSingleRun(t *testing.T) {
	fake := &fakeReindexer{}
	w := newTestWatcher(t, fake)

	root := t.TempDir()
	repo := &store.Repository{ID: 1, Name: "notes", Path: root}
	w.roots = []watchedRoot{{repo: repo, root: root}}

	// A file created, edited, and deleted inside one window must produce
	// exactly one run whose surviving change is the deletion.
	path := writeFile(t, root, "burst.md", "draft")
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Remove})

	changes := w.debouncer.Stop()
	require.Len(t, changes, 1)
	assert.Equal(t, KindDelete, changes[0].Kind)

	w.dispatch(context.Background(), changes)
	calls := fake.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"burst.md"}, calls[0].paths)
}

func TestWatcher_DispatchGroupsByRepository(t *testing.T) {
	fake := &fakeReindexer{}
	w := newTestWatcher(t, fake)

	alpha := &store.Repository{ID: 1, Name: "alpha"}
	beta := &store.Repository{ID: 2, Name: "beta"}
	w.dispatch(context.Background(), []Change{
		{Repo: alpha, RelPath: "a.md", Kind: KindModify},
		{Repo: beta, RelPath: "b.md", Kind: KindCreate},
		{Repo: alpha, RelPath: "c.md", Kind: KindDelete},
	})

	calls := fake.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "alpha", calls[0].repo)
	assert.Equal(t, []string{"a.md", "c.md"}, calls[0].paths)
	assert.Equal(t, "beta", calls[1].repo)
	assert.Equal(t, []string{"b.md"}, calls[1].paths)
}

func TestWatcher_DispatchGitignoreRunsFullTree(t *testing.T) {
	fake := &fakeReindexer{}
	w := newTestWatcher(t, fake)

	repo := &store.Repository{ID: 1, Name: "notes"}
	w.dispatch(context.Background(), []Change{
		{Repo: repo, RelPath: "a.md", Kind: KindModify},
		{Repo: repo, RelPath: ".gitignore", Kind: KindModify},
	})

	calls := fake.snapshot()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].paths, "a .gitignore edit must widen the run to the whole tree")
}

func TestWatcher_DispatchContinuesAfterFailure(t *testing.T) {
	fake := &fakeReindexer{fail: map[string]error{"alpha": errors.New("boom")}}
	w := newTestWatcher(t, fake)

	alpha := &store.Repository{ID: 1, Name: "alpha"}
	beta := &store.Repository{ID: 2, Name: "beta"}
	w.dispatch(context.Background(), []Change{
		{Repo: alpha, RelPath: "a.md", Kind: KindModify},
		{Repo: beta, RelPath: "b.md", Kind: KindModify},
	})

	calls := fake.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "beta", calls[1].repo)
}

func TestWatcher_ReindexesOnChange(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	root := t.TempDir()
	writeFile(t, root, "seed.md", "# Seed\n")

	cfg := config.Default()
	cfg.WatcherDebounceMs = 50

	ix, err := index.New(st, cfg, nil)
	require.NoError(t, err)
	repo, err := ix.Register(ctx, root, index.RegisterOptions{})
	require.NoError(t, err)
	_, err = ix.IndexRepository(ctx, repo, index.Options{})
	require.NoError(t, err)

	w, err := New(cfg, ix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Add(repo))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	writeFile(t, repo.Path, "fresh.md", "# Fresh\n")

	require.Eventually(t, func() bool {
		snap, serr := st.FileSnapshot(ctx, repo.ID)
		if serr != nil {
			return false
		}
		_, ok := snap["fresh.md"]
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case rerr := <-done:
		require.NoError(t, rerr)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestInotifyBudget(t *testing.T) {
	if runtime.GOOS != "linux" {
		assert.Zero(t, inotifyBudget())
		return
	}
	data, err := os.ReadFile(maxUserWatchesPath)
	if err != nil {
		t.Skipf("cannot read %s: %v", maxUserWatchesPath, err)
	}
	want, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, inotifyBudget())
}
