// Package vault recognizes note-collection layouts so repositories can be
// labeled with the tool that owns them.
package vault

import (
	"os"
	"path/filepath"
)

// Kind is the detected note-collection flavor of a directory.
type Kind string

const (
	Obsidian Kind = "obsidian"
	Logseq   Kind = "logseq"
	Dendron  Kind = "dendron"
	Generic  Kind = "generic"
)

// Detect inspects a repository root and returns its vault kind:
// an .obsidian directory marks Obsidian, a logseq directory marks Logseq,
// dendron.yml or dendron.code-workspace marks Dendron, anything else is
// Generic.
func Detect(root string) Kind {
	if isDir(filepath.Join(root, ".obsidian")) {
		return Obsidian
	}
	if isDir(filepath.Join(root, "logseq")) {
		return Logseq
	}
	if isFile(filepath.Join(root, "dendron.yml")) || isFile(filepath.Join(root, "dendron.code-workspace")) {
		return Dendron
	}
	return Generic
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
