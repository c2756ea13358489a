// Package remote materializes and refreshes cloned repositories: spec
// parsing, credential resolution, clone/fetch/fast-forward, and the
// clone directory layout under the config root.
package remote

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// Spec is a parsed remote repository reference.
type Spec struct {
	// URL is the normalized clone URL.
	URL string

	// Owner and Name are the last two path segments, which also form the
	// clone path under the repos directory.
	Owner string
	Name  string

	// SSH marks git@ and ssh:// URLs; they authenticate via the agent.
	SSH bool
}

// ParseSpec resolves a remote reference: `owner/repo` shorthand (assumed
// GitHub), an HTTP(S) URL, or an SSH URL in either scp-like or ssh://
// form.
func ParseSpec(raw string) (*Spec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, kerrors.InvalidInput("remote spec is empty")
	}

	switch {
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return parseHTTP(raw)
	case strings.HasPrefix(raw, "ssh://"):
		return parseSSHURL(raw)
	case strings.HasPrefix(raw, "git@"):
		return parseSCP(raw)
	}

	// owner/repo shorthand.
	parts := strings.Split(raw, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.ContainsAny(raw, ":@ ") {
		return nil, kerrors.InvalidInput(fmt.Sprintf("unrecognized remote spec: %q", raw)).
			WithSuggestion("use owner/repo, an https:// URL, or a git@ SSH URL")
	}
	name := strings.TrimSuffix(parts[1], ".git")
	return &Spec{
		URL:   "https://github.com/" + parts[0] + "/" + name,
		Owner: parts[0],
		Name:  name,
	}, nil
}

func parseHTTP(raw string) (*Spec, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, kerrors.InvalidInput(fmt.Sprintf("invalid remote URL: %q", raw))
	}
	owner, name, err := splitOwnerRepo(u.Path, raw)
	if err != nil {
		return nil, err
	}
	return &Spec{URL: strings.TrimSuffix(raw, "/"), Owner: owner, Name: name}, nil
}

func parseSSHURL(raw string) (*Spec, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, kerrors.InvalidInput(fmt.Sprintf("invalid remote URL: %q", raw))
	}
	owner, name, err := splitOwnerRepo(u.Path, raw)
	if err != nil {
		return nil, err
	}
	return &Spec{URL: raw, Owner: owner, Name: name, SSH: true}, nil
}

// parseSCP handles git@host:owner/repo.git.
func parseSCP(raw string) (*Spec, error) {
	rest := strings.TrimPrefix(raw, "git@")
	host, repoPath, ok := strings.Cut(rest, ":")
	if !ok || host == "" {
		return nil, kerrors.InvalidInput(fmt.Sprintf("invalid SSH remote: %q", raw))
	}
	owner, name, err := splitOwnerRepo(repoPath, raw)
	if err != nil {
		return nil, err
	}
	return &Spec{URL: raw, Owner: owner, Name: name, SSH: true}, nil
}

// splitOwnerRepo takes the last two segments of a repository path. Deeper
// paths (GitLab subgroups) keep only the final pair, which is what the
// clone layout keys on.
func splitOwnerRepo(p, raw string) (owner, name string, err error) {
	p = strings.Trim(path.Clean("/"+p), "/")
	segs := strings.Split(p, "/")
	if len(segs) < 2 || segs[len(segs)-1] == "" {
		return "", "", kerrors.InvalidInput(fmt.Sprintf("remote URL needs owner and repository segments: %q", raw))
	}
	owner = segs[len(segs)-2]
	name = strings.TrimSuffix(segs[len(segs)-1], ".git")
	if owner == "" || name == "" {
		return "", "", kerrors.InvalidInput(fmt.Sprintf("remote URL needs owner and repository segments: %q", raw))
	}
	return owner, name, nil
}

// ClonePath maps the spec into the clone layout: <repos>/<owner>/<repo>.
func (s *Spec) ClonePath(reposDir string) string {
	return filepath.Join(reposDir, s.Owner, s.Name)
}
