package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdex-dev/kdex/internal/config"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

func TestConfigShowListsAllKeys(t *testing.T) {
	isolateConfig(t)

	out, err := runKdex(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file:")
	for _, key := range config.Keys() {
		assert.Contains(t, out, key)
	}
	assert.Contains(t, out, "Tip: kdex config set")
}

func TestConfigSetGetRoundTrip(t *testing.T) {
	isolateConfig(t)

	out, err := runKdex(t, "config", "set", "batch_size", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "Set batch_size = 64")

	out, err = runKdex(t, "config", "get", "batch_size")
	require.NoError(t, err)
	assert.Equal(t, "64\n", out)
}

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "config", "set", "no_such_key", "1")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput))
	assert.Equal(t, 2, kerrors.ExitCode(err))
}

func TestConfigSetRejectsInvalidValue(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "config", "set", "batch_size", "lots")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput))
}

func TestConfigResetRestoresDefaults(t *testing.T) {
	dir := isolateConfig(t)

	_, err := runKdex(t, "config", "set", "batch_size", "7")
	require.NoError(t, err)

	out, err := runKdex(t, "config", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration reset to defaults.")
	assert.Contains(t, out, "Previous configuration saved to")

	// The pre-reset file is kept as a timestamped backup.
	backups, err := filepath.Glob(filepath.Join(dir, config.ConfigFileName+config.BackupSuffix+".*"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	out, err = runKdex(t, "config", "get", "batch_size")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(config.Default().BatchSize)+"\n", out)
}

func TestConfigExportWritesPortableYAML(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "config", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "version: 1")
	assert.Contains(t, out, "type: local")
	assert.Contains(t, out, notes)
	assert.Contains(t, out, "default_search_mode: lexical")
}

func TestConfigExportRemotesOnlySkipsLocal(t *testing.T) {
	isolateConfig(t)
	notes := seedNotes(t)

	_, err := runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	out, err := runKdex(t, "config", "export", "--remotes-only")
	require.NoError(t, err)
	assert.NotContains(t, out, "type: local")
}

func TestConfigImportAppliesSettingsAndRepos(t *testing.T) {
	notes := seedNotes(t)

	// Export from the first machine.
	isolateConfig(t)
	_, err := runKdex(t, "config", "set", "batch_size", "64")
	require.NoError(t, err)
	_, err = runKdex(t, "index", notes, "--name", "notes")
	require.NoError(t, err)

	exportPath := filepath.Join(t.TempDir(), "kdex.yaml")
	_, err = runKdex(t, "config", "export", "-o", exportPath)
	require.NoError(t, err)
	require.FileExists(t, exportPath)

	// Import on a "second machine": a fresh config dir.
	t.Setenv("KDEX_CONFIG_DIR", t.TempDir())

	out, err := runKdex(t, "config", "import", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Settings imported")
	assert.Contains(t, out, "1 repositories added")

	out, err = runKdex(t, "config", "get", "batch_size")
	require.NoError(t, err)
	assert.Equal(t, "64\n", out)

	out, err = runKdex(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2 files")
}

func TestConfigImportMergeKeepsLocalSettings(t *testing.T) {
	// Build an export carrying batch_size 64.
	isolateConfig(t)
	_, err := runKdex(t, "config", "set", "batch_size", "64")
	require.NoError(t, err)
	exportPath := filepath.Join(t.TempDir(), "kdex.yaml")
	_, err = runKdex(t, "config", "export", "-o", exportPath)
	require.NoError(t, err)

	// The second machine already customized batch_size; merge keeps it.
	t.Setenv("KDEX_CONFIG_DIR", t.TempDir())
	_, err = runKdex(t, "config", "set", "batch_size", "200")
	require.NoError(t, err)

	_, err = runKdex(t, "config", "import", exportPath, "--merge")
	require.NoError(t, err)

	out, err := runKdex(t, "config", "get", "batch_size")
	require.NoError(t, err)
	assert.Equal(t, "200\n", out)
}

func TestConfigImportMissingFileFails(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "config", "import", "/no/such/file.yaml")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodePathNotFound))
}

func TestConfigImportRejectsBadDocument(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 99\n"), 0o644))

	_, err := runKdex(t, "config", "import", path)
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeConfigInvalid))
}
