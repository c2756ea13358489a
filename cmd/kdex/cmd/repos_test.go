package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

func TestListCommand_EmptyIndex(t *testing.T) {
	isolateConfig(t)

	out, err := runKdex(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No repositories indexed yet.")
	assert.Contains(t, out, "kdex add")
}

func TestListCommand_ShowsIndexedRepo(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "notes")
	assert.Contains(t, out, "2 files")
	assert.Contains(t, out, "1 local, 0 remote")
}

func TestListCommand_JSONOutput(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "--json", "list")
	require.NoError(t, err)

	var result struct {
		Repositories []struct {
			Name          string `json:"name"`
			Status        string `json:"status"`
			SourceType    string `json:"source_type"`
			FileCount     int64  `json:"file_count"`
			LastIndexedAt string `json:"last_indexed_at"`
		} `json:"repositories"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "notes", result.Repositories[0].Name)
	assert.Equal(t, "ready", result.Repositories[0].Status)
	assert.Equal(t, "local", result.Repositories[0].SourceType)
	assert.Equal(t, int64(2), result.Repositories[0].FileCount)
	assert.NotEmpty(t, result.Repositories[0].LastIndexedAt)
}

func TestRemoveCommand_DeclinedLeavesRepo(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdexIn(t, "n\n", "remove", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	out, err = runKdex(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "notes")
}

func TestRemoveCommand_ConfirmedRemovesRepo(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdexIn(t, "y\n", "remove", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, `Removed "notes" (2 files)`)
	assert.Contains(t, out, "The actual files were not affected.")

	out, err = runKdex(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No repositories indexed yet.")
}

func TestRemoveCommand_ForceSkipsPrompt(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "remove", "notes", "--force")
	require.NoError(t, err)
	assert.NotContains(t, out, "[y/N]")
	assert.Contains(t, out, `Removed "notes"`)
}

func TestRemoveCommand_UnknownRepo(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "remove", "ghost", "--force")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeRepoNotFound))
	assert.Equal(t, 1, kerrors.ExitCode(err))
}

func TestSyncCommand_NoRemotes(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes)
	require.NoError(t, err)

	out, err := runKdex(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "No remote repositories to sync.")
	assert.Contains(t, out, "kdex add --remote")
}

func TestSyncCommand_NoRemotesJSON(t *testing.T) {
	isolateConfig(t)

	out, err := runKdex(t, "--json", "sync")
	require.NoError(t, err)

	var result struct {
		Success bool `json:"success"`
		Synced  int  `json:"synced"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Zero(t, result.Synced)
}

func TestAddCommand_LocalDirectory(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	out, err := runKdex(t, "add", notes, "--name", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "Adding local repository:")
	assert.Contains(t, out, "Added local repository: notes (2 files")
}

func TestAddCommand_RejectsPathAndRemote(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "add", "/tmp", "--remote", "owner/repo")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput))
	assert.Equal(t, 2, kerrors.ExitCode(err))
}

func TestAddCommand_JSONOutput(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	out, err := runKdex(t, "--json", "add", notes, "--name", "notes")
	require.NoError(t, err)

	var result struct {
		Success    bool   `json:"success"`
		Type       string `json:"type"`
		Name       string `json:"name"`
		FilesAdded int    `json:"files_added"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "local", result.Type)
	assert.Equal(t, "notes", result.Name)
	assert.Equal(t, 2, result.FilesAdded)
}

func TestWatchCommand_NoRepositories(t *testing.T) {
	isolateConfig(t)

	out, err := runKdex(t, "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "No repositories to watch.")
}
