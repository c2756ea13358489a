package remote

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

func TestParseSpec_Shorthand(t *testing.T) {
	spec, err := ParseSpec("rust-lang/rust")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/rust-lang/rust", spec.URL)
	assert.Equal(t, "rust-lang", spec.Owner)
	assert.Equal(t, "rust", spec.Name)
	assert.False(t, spec.SSH)
}

func TestParseSpec_ShorthandTrimsGitSuffix(t *testing.T) {
	spec, err := ParseSpec("owner/repo.git")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/owner/repo", spec.URL)
	assert.Equal(t, "repo", spec.Name)
}

func TestParseSpec_HTTPS(t *testing.T) {
	for _, raw := range []string{
		"https://github.com/owner/repo",
		"https://github.com/owner/repo.git",
		"https://github.com/owner/repo/",
	} {
		spec, err := ParseSpec(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "owner", spec.Owner, raw)
		assert.Equal(t, "repo", spec.Name, raw)
		assert.False(t, spec.SSH, raw)
	}
}

func TestParseSpec_SubgroupKeepsLastPair(t *testing.T) {
	spec, err := ParseSpec("https://gitlab.com/group/subgroup/repo.git")
	require.NoError(t, err)
	assert.Equal(t, "subgroup", spec.Owner)
	assert.Equal(t, "repo", spec.Name)
}

func TestParseSpec_SCP(t *testing.T) {
	spec, err := ParseSpec("git@github.com:owner/repo.git")
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:owner/repo.git", spec.URL)
	assert.Equal(t, "owner", spec.Owner)
	assert.Equal(t, "repo", spec.Name)
	assert.True(t, spec.SSH)
}

func TestParseSpec_SSHURL(t *testing.T) {
	spec, err := ParseSpec("ssh://git@github.com/owner/repo.git")
	require.NoError(t, err)
	assert.Equal(t, "owner", spec.Owner)
	assert.Equal(t, "repo", spec.Name)
	assert.True(t, spec.SSH)
}

func TestParseSpec_Invalid(t *testing.T) {
	for _, raw := range []string{"", "repo", "owner/", "/repo", "a b/c", "git@github.com"} {
		_, err := ParseSpec(raw)
		require.Error(t, err, raw)
		assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput), raw)
	}
}

func TestClonePath(t *testing.T) {
	spec := &Spec{Owner: "owner", Name: "repo"}
	assert.Equal(t, filepath.Join("/tmp/repos", "owner", "repo"), spec.ClonePath("/tmp/repos"))
}
