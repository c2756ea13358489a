package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

func TestRewriteDefaultCommand(t *testing.T) {
	root := NewRootCmd()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "bare query becomes search",
			args: []string{"raft", "consensus"},
			want: []string{"search", "raft", "consensus"},
		},
		{
			name: "query after global flag becomes search",
			args: []string{"--json", "raft"},
			want: []string{"--json", "search", "raft"},
		},
		{
			name: "known command untouched",
			args: []string{"list"},
			want: []string{"list"},
		},
		{
			name: "alias untouched",
			args: []string{"ls"},
			want: []string{"ls"},
		},
		{
			name: "help untouched",
			args: []string{"help"},
			want: []string{"help"},
		},
		{
			name: "explicit search untouched",
			args: []string{"search", "raft"},
			want: []string{"search", "raft"},
		},
		{
			name: "flags only untouched",
			args: []string{"--version"},
			want: []string{"--version"},
		},
		{
			name: "empty untouched",
			args: []string{},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rewriteDefaultCommand(root, tt.args))
		})
	}
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	out, err := runKdex(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "kdex")
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "Available Commands")
}

func TestRootCmd_VersionTemplate(t *testing.T) {
	out, err := runKdex(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "kdex version")
}

func TestRootCmd_UnknownFlagIsUsageError(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "list", "--bogus")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput))
	assert.Equal(t, 2, kerrors.ExitCode(err))
}

func TestRootCmd_MissingPositionalArgIsUsageError(t *testing.T) {
	isolateConfig(t)

	_, err := runKdex(t, "remove")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.CodeInvalidInput))
	assert.Equal(t, 2, kerrors.ExitCode(err))
}
