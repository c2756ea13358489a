package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kdex-dev/kdex/internal/gitignore"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// matcherCacheSize bounds the number of parsed .gitignore files kept
// around. Watch mode re-walks repositories repeatedly; the cache keeps
// that from re-parsing the same files every window.
const matcherCacheSize = 1000

// Walker discovers candidates under repository roots and streams them.
type Walker struct {
	// matcherCache caches parsed gitignore matchers by file path and
	// mtime.
	matcherCache *lru.Cache[string, *gitignore.Matcher]
}

// NewWalker creates a Walker with a warm matcher cache.
func NewWalker() (*Walker, error) {
	cache, err := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, kerrors.Internal("cannot create gitignore cache", err)
	}
	return &Walker{matcherCache: cache}, nil
}

// Walk enumerates candidate files under opts.Root and streams them on the
// returned channel. Top-level subdirectories are walked in parallel; the
// channel is closed when every subtree finishes. Per-entry errors are
// skipped; only root-level failures surface as Result.Error.
func (w *Walker) Walk(ctx context.Context, opts Options) (<-chan Result, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, kerrors.PathNotFound(opts.Root)
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsPermission(err) {
			return nil, kerrors.PermissionDenied(root, err)
		}
		return nil, kerrors.PathNotFound(root)
	}
	if !info.IsDir() {
		return nil, kerrors.NotADirectory(root)
	}

	state := &walkState{
		root:     root,
		filter:   NewFilter(opts.IgnorePatterns),
		walker:   w,
		useGit:   opts.RespectGitignore,
		matchers: []*gitignore.Matcher{},
	}
	if opts.RespectGitignore {
		state.loadGitignore(root, "")
	}

	results := make(chan Result, 64)

	if len(opts.Paths) > 0 {
		go func() {
			defer close(results)
			walkScoped(ctx, state, opts.Paths, results)
		}()
		return results, nil
	}

	go func() {
		defer close(results)

		entries, err := os.ReadDir(root)
		if err != nil {
			emit(ctx, results, Result{Error: err})
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, entry := range entries {
			if entry.IsDir() {
				rel := entry.Name()
				if state.ignoredDir(rel) {
					continue
				}
				g.Go(func() error {
					return walkSubtree(gctx, state, filepath.Join(root, rel), results)
				})
				continue
			}
			if c := state.candidate(root, entry.Name(), entry); c != nil {
				if !emit(ctx, results, Result{File: c}) {
					return
				}
			}
		}
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			emit(ctx, results, Result{Error: err})
		}
	}()

	return results, nil
}

// walkState is the shared per-walk context: the root, configured ignore
// patterns, and the gitignore matchers discovered so far. Matcher rules
// are base-scoped, so a rule loaded from one subtree never leaks into a
// sibling even though the slice is shared.
type walkState struct {
	root   string
	filter *Filter
	walker *Walker
	useGit bool

	mu       sync.RWMutex
	matchers []*gitignore.Matcher
}

// loadGitignore parses <dir>/.gitignore scoped to base. Missing files are
// not an error. Parsed matchers are cached by path and mtime across
// walks, so watch mode picks up edits while unchanged files stay cached.
func (s *walkState) loadGitignore(dir, base string) {
	path := filepath.Join(dir, ".gitignore")
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s\x00%d", path, info.ModTime().UnixNano())
	if m, ok := s.walker.matcherCache.Get(key); ok {
		s.addMatcher(m)
		return
	}
	m := gitignore.NewMatcher()
	if err := m.AddFile(path, base); err != nil {
		return
	}
	s.walker.matcherCache.Add(key, m)
	s.addMatcher(m)
}

func (s *walkState) addMatcher(m *gitignore.Matcher) {
	s.mu.Lock()
	s.matchers = append(s.matchers, m)
	s.mu.Unlock()
}

// gitIgnored reports whether any discovered .gitignore rule ignores the
// relative path.
func (s *walkState) gitIgnored(rel string, isDir bool) bool {
	if !s.useGit {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.matchers {
		if m.Ignored(rel, isDir) {
			return true
		}
	}
	return false
}

func (s *walkState) ignoredDir(rel string) bool {
	return s.filter.Ignored(rel) || s.gitIgnored(rel, true)
}

// candidate filters and classifies one regular file, returning nil when
// it should not be indexed. Size and NUL sniffing happen later, in the
// pipeline, so skips can be counted.
func (s *walkState) candidate(dir, name string, entry fs.DirEntry) *Candidate {
	abs := filepath.Join(dir, name)
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)

	if entry.Type()&fs.ModeSymlink != 0 {
		return nil
	}
	if s.filter.Ignored(rel) || s.gitIgnored(rel, false) {
		return nil
	}
	if IsBinaryExtension(rel) {
		return nil
	}
	info, err := entry.Info()
	if err != nil {
		return nil
	}
	return &Candidate{
		RelPath:  rel,
		AbsPath:  abs,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		FileType: Classify(rel),
	}
}

// walkSubtree walks one top-level subtree, loading nested .gitignore
// files as directories are entered.
func walkSubtree(ctx context.Context, state *walkState, subtree string, results chan<- Result) error {
	return filepath.WalkDir(subtree, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, rerr := filepath.Rel(state.root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if state.ignoredDir(rel) {
				return filepath.SkipDir
			}
			if state.useGit {
				state.loadGitignore(path, rel)
			}
			return nil
		}

		if c := state.candidate(filepath.Dir(path), d.Name(), d); c != nil {
			if !emit(ctx, results, Result{File: c}) {
				return ctx.Err()
			}
		}
		return nil
	})
}

// walkScoped restricts discovery to an explicit relative path set, used
// by watcher-driven incremental runs. Missing paths are skipped silently:
// the indexer's deletion phase handles them.
func walkScoped(ctx context.Context, state *walkState, paths []string, results chan<- Result) {
	for _, rel := range paths {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rel = filepath.ToSlash(filepath.Clean(rel))
		abs := filepath.Join(state.root, rel)
		info, err := os.Lstat(abs)
		if err != nil {
			continue
		}
		if info.IsDir() {
			_ = walkSubtree(ctx, state, abs, results)
			continue
		}
		if state.filter.Ignored(rel) || state.gitIgnored(rel, false) || IsBinaryExtension(rel) {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		c := &Candidate{
			RelPath:  rel,
			AbsPath:  abs,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			FileType: Classify(rel),
		}
		if !emit(ctx, results, Result{File: c}) {
			return
		}
	}
}

// emit sends a result unless the context is done. Reports whether the
// send happened.
func emit(ctx context.Context, results chan<- Result, r Result) bool {
	select {
	case results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
