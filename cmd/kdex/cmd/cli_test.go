package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runKdex executes the CLI in-process with captured stdio, applying the
// same default-command rewrite as main.
func runKdex(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runKdexIn(t, "", args...)
}

func runKdexIn(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if stdin != "" {
		root.SetIn(strings.NewReader(stdin))
	}
	root.SetArgs(rewriteDefaultCommand(root, append([]string{"--no-color"}, args...)))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// isolateConfig points KDEX_CONFIG_DIR at a fresh temp dir so each test
// gets its own config, database, and logs.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KDEX_CONFIG_DIR", dir)
	return dir
}

func writeNote(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// seedNotes creates a small notes directory: two markdown files where
// raft.md links to paxos.md and carries frontmatter tags.
func seedNotes(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeNote(t, dir, "raft.md", `---
title: Raft Notes
tags: [distributed, consensus]
---

# Raft

The raft consensus protocol elects a leader. Compare with [[paxos]].
`)
	writeNote(t, dir, "paxos.md", `# Paxos

Paxos reaches agreement among unreliable processors.
`)
	return dir
}
