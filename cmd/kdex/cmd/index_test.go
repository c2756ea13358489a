package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

func TestIndexCommand_IndexesDirectory(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	out, err := runKdex(t, "index", notes)
	require.NoError(t, err)

	assert.Contains(t, out, "Indexing "+notes)
	assert.Contains(t, out, "Indexed 2 files")
	assert.Contains(t, out, "Added:   2")
	assert.Contains(t, out, "What's next:")
}

func TestIndexCommand_SecondRunIsIncremental(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes)
	require.NoError(t, err)

	out, err := runKdex(t, "index", notes)
	require.NoError(t, err)
	assert.Contains(t, out, "already indexed")
	assert.Contains(t, out, "Indexed 2 files")
	assert.NotContains(t, out, "Added:")
}

func TestIndexCommand_JSONOutput(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	out, err := runKdex(t, "--json", "index", notes)
	require.NoError(t, err)

	var result struct {
		Success    bool   `json:"success"`
		Path       string `json:"path"`
		FilesAdded int    `json:"files_added"`
		TotalBytes int64  `json:"total_bytes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, notes, result.Path)
	assert.Equal(t, 2, result.FilesAdded)
	assert.Greater(t, result.TotalBytes, int64(0))
}

func TestIndexCommand_MissingPathFails(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "index", "/no/such/directory")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodePathNotFound))
	assert.Equal(t, 1, kerrors.ExitCode(err))
}

func TestUpdateCommand_RequiresNameOrAll(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "update")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput))
	assert.Equal(t, 2, kerrors.ExitCode(err))
}

func TestUpdateCommand_PicksUpNewFiles(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	writeNote(t, notes, "viewstamped.md", "# Viewstamped Replication\n\nAn older consensus protocol.\n")

	out, err := runKdex(t, "update", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "+1 added")
	assert.Contains(t, out, "2 unchanged")
}

func TestUpdateCommand_AllUpdatesEveryRepo(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "update", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Updating notes...")
	assert.Contains(t, out, "notes: +0 ~0 -0")
}

func TestUpdateCommand_UnknownRepoSuggestsClosest(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	_, err = runKdex(t, "update", "nots")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeRepoNotFound))
}
