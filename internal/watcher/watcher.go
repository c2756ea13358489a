package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kdex-dev/kdex/internal/config"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/scan"
	"github.com/kdex-dev/kdex/internal/store"
)

// Kind classifies a coalesced filesystem change.
type Kind int

const (
	KindCreate Kind = iota
	KindModify
	KindDelete
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one filesystem change attributed to a watched repository.
type Change struct {
	Repo    *store.Repository
	RelPath string
	Kind    Kind
}

// Reindexer consumes flushed change windows as scoped incremental runs.
// *index.Indexer satisfies it.
type Reindexer interface {
	IndexRepository(ctx context.Context, repo *store.Repository, opts index.Options) (*index.Result, error)
}

// maxUserWatchesPath is the Linux inotify subscription budget. Other
// platforms have no equivalent cap to check against.
const maxUserWatchesPath = "/proc/sys/fs/inotify/max_user_watches"

// watchedRoot binds a repository to its watched directory tree.
type watchedRoot struct {
	repo *store.Repository
	root string
}

// Watcher subscribes to filesystem events on repository roots and keeps
// their indexes fresh through debounced, path-scoped incremental runs.
type Watcher struct {
	cfg       *config.Config
	indexer   Reindexer
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	filter    *scan.Filter
	logger    *slog.Logger

	mu    sync.RWMutex
	roots []watchedRoot // sorted longest path first for prefix resolution
	dirs  int           // directories currently subscribed

	closeOnce sync.Once
	closeErr  error
}

// New creates a Watcher dispatching flushed windows to ix. The debounce
// window comes from watcher_debounce_ms.
func New(cfg *config.Config, ix Reindexer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, kerrors.Internal("cannot create filesystem watcher", err)
	}
	return &Watcher{
		cfg:       cfg,
		indexer:   ix,
		fsw:       fsw,
		debouncer: NewDebouncer(time.Duration(cfg.WatcherDebounceMs) * time.Millisecond),
		filter:    scan.NewFilter(cfg.IgnorePatterns),
		logger:    slog.Default().With(slog.String("component", "watcher")),
	}, nil
}

// Add subscribes to a repository root recursively. When the subscription
// count is likely to exceed the platform watch budget it returns
// WatcherLimitExceeded; watching continues with partial coverage.
func (w *Watcher) Add(repo *store.Repository) error {
	root := filepath.Clean(repo.Path)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return kerrors.PathNotFound(root)
	}

	added := w.watchTree(root, root)

	w.mu.Lock()
	w.roots = append(w.roots, watchedRoot{repo: repo, root: root})
	sort.Slice(w.roots, func(i, j int) bool {
		return len(w.roots[i].root) > len(w.roots[j].root)
	})
	w.dirs += added
	dirs := w.dirs
	w.mu.Unlock()

	w.logger.Info("watch_added",
		slog.String("repo", repo.Name),
		slog.String("path", root),
		slog.Int("directories", added))

	if budget := inotifyBudget(); budget > 0 && dirs >= budget {
		w.logger.Warn("watch_budget_exceeded",
			slog.Int("needed", dirs),
			slog.Int("limit", budget))
		return kerrors.WatcherLimit(dirs, budget)
	}
	return nil
}

// Run processes events until ctx is done. Each flushed window becomes one
// scoped incremental run per repository; the in-flight window is still
// processed on the way out.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch_started", slog.Int("repositories", len(w.roots)))
	for {
		select {
		case <-ctx.Done():
			if final := w.debouncer.Stop(); len(final) > 0 {
				w.dispatch(context.WithoutCancel(ctx), final)
			}
			return w.Close()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", slog.String("error", err.Error()))
		case <-w.debouncer.Ready():
			if changes := w.debouncer.Take(); len(changes) > 0 {
				w.dispatch(ctx, changes)
			}
		}
	}
}

// Close releases the filesystem subscriptions. Idempotent.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}

// handle filters and classifies one raw event into the debouncer.
func (w *Watcher) handle(ev fsnotify.Event) {
	abs := filepath.Clean(ev.Name)
	wr, rel := w.resolve(abs)
	if wr == nil || rel == "" || rel == "." {
		return
	}
	if w.filter.Ignored(rel) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Lstat(abs)
		if err != nil {
			return
		}
		if info.IsDir() {
			// fsnotify is not recursive: new subtrees need their own
			// subscriptions, and their contents one scoped walk.
			w.mu.Lock()
			w.dirs += w.watchTree(wr.root, abs)
			w.mu.Unlock()
			w.debouncer.Add(Change{Repo: wr.repo, RelPath: rel, Kind: KindCreate})
			return
		}
		if !info.Mode().IsRegular() || scan.IsBinaryExtension(rel) {
			return
		}
		w.debouncer.Add(Change{Repo: wr.repo, RelPath: rel, Kind: KindCreate})
	case ev.Op.Has(fsnotify.Write):
		if scan.IsBinaryExtension(rel) {
			return
		}
		w.debouncer.Add(Change{Repo: wr.repo, RelPath: rel, Kind: KindModify})
	case ev.Op.Has(fsnotify.Remove):
		w.debouncer.Add(Change{Repo: wr.repo, RelPath: rel, Kind: KindDelete})
	case ev.Op.Has(fsnotify.Rename):
		// Rename reports the old name; the new name arrives as a separate
		// create. Normalizing to delete+create lets the debouncer collapse
		// same-path replacements to modify.
		w.debouncer.Add(Change{Repo: wr.repo, RelPath: rel, Kind: KindDelete})
	}
}

// resolve maps an absolute event path to its watched repository and
// repo-relative slash path. Longest root wins so nested repositories
// attribute correctly.
func (w *Watcher) resolve(abs string) (*watchedRoot, string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i := range w.roots {
		r := &w.roots[i]
		if abs == r.root || strings.HasPrefix(abs, r.root+string(filepath.Separator)) {
			rel, err := filepath.Rel(r.root, abs)
			if err != nil {
				return nil, ""
			}
			return r, filepath.ToSlash(rel)
		}
	}
	return nil, ""
}

// watchTree subscribes to every non-ignored directory under subtree,
// returning how many subscriptions were established. Per-directory
// failures leave partial coverage rather than failing the watch.
func (w *Watcher) watchTree(root, subtree string) int {
	added := 0
	_ = filepath.WalkDir(subtree, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && w.filter.Ignored(rel) {
			return filepath.SkipDir
		}
		if aerr := w.fsw.Add(path); aerr != nil {
			w.logger.Debug("watch_subscribe_failed",
				slog.String("path", path),
				slog.String("error", aerr.Error()))
			return nil
		}
		added++
		return nil
	})
	return added
}

// dispatch runs one scoped incremental index per repository in the
// window. A .gitignore edit widens that repository's run to the full
// tree so newly ignored or unignored files reconcile. Failures are
// logged and watching continues.
func (w *Watcher) dispatch(ctx context.Context, changes []Change) {
	type group struct {
		repo  *store.Repository
		paths []string
		full  bool
	}
	groups := make(map[int64]*group)
	order := make([]int64, 0, 4)

	for _, ch := range changes {
		g, ok := groups[ch.Repo.ID]
		if !ok {
			g = &group{repo: ch.Repo}
			groups[ch.Repo.ID] = g
			order = append(order, ch.Repo.ID)
		}
		if filepath.Base(ch.RelPath) == ".gitignore" {
			g.full = true
		}
		g.paths = append(g.paths, ch.RelPath)
	}

	for _, id := range order {
		g := groups[id]
		opts := index.Options{Paths: g.paths}
		if g.full {
			opts.Paths = nil
		}
		res, err := w.indexer.IndexRepository(ctx, g.repo, opts)
		if err != nil {
			w.logger.Warn("watch_reindex_failed",
				slog.String("repo", g.repo.Name),
				slog.String("error", err.Error()))
			continue
		}
		w.logger.Info("watch_reindexed",
			slog.String("repo", g.repo.Name),
			slog.Int("changes", len(g.paths)),
			slog.Int("new", res.New),
			slog.Int("changed", res.Changed),
			slog.Int("deleted", res.Deleted))
	}
}

// inotifyBudget reads the inotify watch cap on Linux; zero means no
// enforceable budget.
func inotifyBudget() int {
	if runtime.GOOS != "linux" {
		return 0
	}
	data, err := os.ReadFile(maxUserWatchesPath)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return n
}
