package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// PortableVersion is the only portable document version understood.
const PortableVersion = 1

// Portable is the machine-independent config document: settings plus the
// repository list, so a setup can be exported on one machine and replayed
// on another.
type Portable struct {
	Version      int            `yaml:"version"`
	Repositories []PortableRepo `yaml:"repositories"`
	Settings     Config         `yaml:"settings"`
}

// PortableRepo describes one repository entry.
type PortableRepo struct {
	Type   string `yaml:"type"`             // "remote" or "local"
	URL    string `yaml:"url,omitempty"`    // remote only
	Path   string `yaml:"path,omitempty"`   // local only
	Branch string `yaml:"branch,omitempty"` // remote only
}

// Export renders the portable YAML document for a config and its
// repositories.
func Export(cfg *Config, repos []PortableRepo) ([]byte, error) {
	p := Portable{
		Version:      PortableVersion,
		Repositories: repos,
		Settings:     *cfg,
	}
	data, err := yaml.Marshal(&p)
	if err != nil {
		return nil, kerrors.ConfigInvalid("cannot encode portable config", err)
	}
	return data, nil
}

// ParsePortable decodes and validates a portable document.
func ParsePortable(data []byte) (*Portable, error) {
	var p Portable
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, kerrors.ConfigInvalid("cannot parse portable config", err)
	}
	if p.Version != PortableVersion {
		return nil, kerrors.ConfigInvalid(fmt.Sprintf("unsupported portable config version %d (expected %d)", p.Version, PortableVersion), nil)
	}
	for i, r := range p.Repositories {
		switch r.Type {
		case "remote":
			if r.URL == "" {
				return nil, kerrors.ConfigInvalid(fmt.Sprintf("repositories[%d]: remote entry missing url", i), nil)
			}
		case "local":
			if r.Path == "" {
				return nil, kerrors.ConfigInvalid(fmt.Sprintf("repositories[%d]: local entry missing path", i), nil)
			}
		default:
			return nil, kerrors.ConfigInvalid(fmt.Sprintf("repositories[%d]: unknown type %q", i, r.Type), nil)
		}
	}
	return &p, nil
}

// ApplySettings folds the portable settings into c. With merge set, the
// existing values win and the portable document only documents intent;
// without it the portable settings replace the current ones.
func (c *Config) ApplySettings(p *Portable, merge bool) {
	if merge {
		return
	}
	dir := c.dir
	*c = p.Settings
	c.dir = dir
}

// MergeRepos appends newRepos to existing, deduplicating remote entries by
// (url, branch) and local entries by path.
func MergeRepos(existing, newRepos []PortableRepo) []PortableRepo {
	type remoteKey struct{ url, branch string }
	seenRemote := make(map[remoteKey]bool)
	seenLocal := make(map[string]bool)

	merged := make([]PortableRepo, 0, len(existing)+len(newRepos))
	add := func(r PortableRepo) {
		switch r.Type {
		case "remote":
			k := remoteKey{r.URL, r.Branch}
			if seenRemote[k] {
				return
			}
			seenRemote[k] = true
		case "local":
			if seenLocal[r.Path] {
				return
			}
			seenLocal[r.Path] = true
		}
		merged = append(merged, r)
	}

	for _, r := range existing {
		add(r)
	}
	for _, r := range newRepos {
		add(r)
	}
	return merged
}
