package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// Manager materializes clones under the repos directory and keeps them
// current. Clones are read-only mirrors: nothing local is ever merged
// back, so refreshing is fetch plus fast-forward and anything else is
// divergence.
type Manager struct {
	reposDir string
	logger   *slog.Logger
}

// NewManager returns a manager rooted at reposDir.
func NewManager(reposDir string) *Manager {
	return &Manager{reposDir: reposDir, logger: slog.Default()}
}

// ReposDir returns the root all clones live under.
func (m *Manager) ReposDir() string { return m.reposDir }

// Owns reports whether path sits inside the clone layout. Remove only
// deletes directories the manager owns.
func (m *Manager) Owns(path string) bool {
	rel, err := filepath.Rel(m.reposDir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// CloneOptions control how a repository is materialized.
type CloneOptions struct {
	// Branch overrides the remote's default branch.
	Branch string

	// Shallow truncates history to depth 1.
	Shallow bool
}

// CloneResult describes a finished clone.
type CloneResult struct {
	Path   string
	Branch string
	Commit string
}

// Clone fetches spec into <repos>/<owner>/<repo>. A failed clone removes
// the partial directory so the next attempt starts clean.
func (m *Manager) Clone(ctx context.Context, spec *Spec, opts CloneOptions) (*CloneResult, error) {
	target := spec.ClonePath(m.reposDir)
	if _, err := os.Stat(target); err == nil {
		// Never clean up a directory this call did not create.
		return nil, kerrors.InvalidInput(fmt.Sprintf("clone path already exists: %s", target)).
			WithSuggestion("run kdex sync to update it, or kdex remove to discard it")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, kerrors.CloneFailed(spec.URL, err)
	}

	auth, err := m.credentials(spec.URL, spec.SSH)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:          spec.URL,
		Auth:         auth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if opts.Shallow {
		cloneOpts.Depth = 1
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}

	m.logger.Info("clone_started",
		slog.String("url", spec.URL),
		slog.String("path", target),
		slog.Bool("shallow", opts.Shallow))

	repo, err := git.PlainCloneContext(ctx, target, false, cloneOpts)
	if err != nil {
		_ = os.RemoveAll(target)
		m.pruneOwnerDir(target)
		switch {
		case isAuthError(err):
			return nil, kerrors.AuthRequired(spec.URL)
		case ctx.Err() != nil:
			return nil, kerrors.Cancelled("clone")
		default:
			return nil, kerrors.CloneFailed(spec.URL, err)
		}
	}

	res := &CloneResult{Path: target, Branch: opts.Branch}
	if head, herr := repo.Head(); herr == nil {
		res.Commit = head.Hash().String()
		if res.Branch == "" {
			res.Branch = head.Name().Short()
		}
	}

	m.logger.Info("clone_finished",
		slog.String("url", spec.URL),
		slog.String("branch", res.Branch),
		slog.String("commit", res.Commit))
	return res, nil
}

// SyncResult describes one refresh of a clone.
type SyncResult struct {
	// Updated is false when the remote tip already matched.
	Updated bool
	Branch  string
	From    string
	To      string
}

// Sync fetches origin and fast-forwards the checkout to the remote tip.
// When the walk proves the local commit is no longer in the remote
// history the clone cannot be repaired in place and the caller is told
// to re-clone.
func (m *Manager) Sync(ctx context.Context, name, dir, branch string) (*SyncResult, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if _, serr := os.Stat(dir); serr != nil {
			return nil, kerrors.PathNotFound(dir).
				WithSuggestion("the clone is missing; remove and re-add the repository")
		}
		return nil, kerrors.Internal(fmt.Sprintf("open clone %s", dir), err)
	}

	remoteURL, sshRemote, err := originURL(repo)
	if err != nil {
		return nil, err
	}
	auth, err := m.credentials(remoteURL, sshRemote)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("resolve HEAD of %s", dir), err)
	}
	if branch == "" {
		branch = head.Name().Short()
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Tags:       git.NoTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		switch {
		case isAuthError(err):
			return nil, kerrors.AuthRequired(remoteURL)
		case ctx.Err() != nil:
			return nil, kerrors.Cancelled("sync")
		default:
			return nil, kerrors.New(kerrors.CodeCloneFailed, fmt.Sprintf("fetch failed: %s", name), err).
				WithDetail("url", remoteURL)
		}
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("resolve origin/%s", branch), err)
	}

	res := &SyncResult{Branch: branch, From: head.Hash().String(), To: ref.Hash().String()}
	if head.Hash() == ref.Hash() {
		m.logger.Debug("sync_up_to_date", slog.String("repo", name), slog.String("commit", res.To))
		return res, nil
	}

	reachable, complete := walkAncestry(repo, head.Hash(), ref.Hash())
	if !reachable && complete {
		return nil, kerrors.FetchDiverged(name, branch)
	}
	// A walk cut off at the shallow boundary cannot prove divergence;
	// the remote tip wins because the clone holds no local work.

	wt, err := repo.Worktree()
	if err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("open worktree of %s", dir), err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return nil, kerrors.Internal(fmt.Sprintf("fast-forward %s to %s", name, ref.Hash()), err)
	}

	res.Updated = true
	m.logger.Info("sync_updated",
		slog.String("repo", name),
		slog.String("branch", branch),
		slog.String("from", res.From),
		slog.String("to", res.To))
	return res, nil
}

// RemoveClone deletes a clone directory and prunes the owner directory
// when that leaves it empty. Paths outside the clone layout are refused
// so a mistaken repository row can never delete user files.
func (m *Manager) RemoveClone(path string) error {
	if !m.Owns(path) {
		return kerrors.InvalidInput(fmt.Sprintf("not a managed clone: %s", path))
	}
	if err := os.RemoveAll(path); err != nil {
		return kerrors.Internal(fmt.Sprintf("remove clone %s", path), err)
	}
	m.pruneOwnerDir(path)
	return nil
}

// pruneOwnerDir removes the <owner> level when its last clone is gone.
// os.Remove refuses non-empty directories, which is the emptiness check.
func (m *Manager) pruneOwnerDir(path string) {
	owner := filepath.Dir(path)
	if m.Owns(owner) {
		_ = os.Remove(owner)
	}
}

// credentials resolves auth in order: SSH agent for SSH remotes, then a
// GitHub token as x-access-token basic auth, then anonymous.
func (m *Manager) credentials(remoteURL string, sshRemote bool) (transport.AuthMethod, error) {
	if sshRemote {
		agent, err := gitssh.NewSSHAgentAuth(sshUser(remoteURL))
		if err != nil {
			return nil, kerrors.AuthRequired(remoteURL).
				WithDetail("cause", err.Error())
		}
		return agent, nil
	}
	if token := firstEnv("KDEX_GITHUB_TOKEN", "GITHUB_TOKEN"); token != "" {
		return &githttp.BasicAuth{Username: "x-access-token", Password: token}, nil
	}
	return nil, nil
}

// walkAncestry reports whether old is reachable from tip. complete is
// false when a parent was missing from the object store (the shallow
// boundary), in which case reachability is unknowable.
func walkAncestry(repo *git.Repository, old, tip plumbing.Hash) (reachable, complete bool) {
	complete = true
	seen := make(map[plumbing.Hash]struct{})
	queue := []plumbing.Hash{tip}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == old {
			return true, complete
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			complete = false
			continue
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, complete
}

func originURL(repo *git.Repository) (string, bool, error) {
	rem, err := repo.Remote("origin")
	if err != nil {
		return "", false, kerrors.Internal("resolve origin remote", err)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", false, kerrors.Internal("origin remote has no URL", nil)
	}
	u := urls[0]
	ssh := strings.HasPrefix(u, "git@") || strings.HasPrefix(u, "ssh://")
	return u, ssh, nil
}

// sshUser extracts the login from an SSH URL, defaulting to git.
func sshUser(raw string) string {
	if strings.HasPrefix(raw, "git@") {
		return "git"
	}
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		if name := u.User.Username(); name != "" {
			return name
		}
	}
	return "git"
}

func isAuthError(err error) bool {
	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
