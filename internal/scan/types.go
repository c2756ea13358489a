// Package scan discovers indexable files under a repository root and
// reads them into normalized text: ignore-pattern and binary filtering,
// type classification, bounded reads with encoding fallback, and content
// hashing.
package scan

import (
	"time"
)

// Candidate is a file that survived discovery filtering and is ready for
// the read/analyze/embed pipeline.
type Candidate struct {
	RelPath  string    // Relative to the repository root, slash-separated
	AbsPath  string    // Absolute path
	Size     int64     // Size in bytes at discovery time
	ModTime  time.Time // Last modification time
	FileType string    // Language or type tag: "go", "rust", ..., "markdown", "config", "text"
}

// Result is one discovery event: a candidate or a walk error.
type Result struct {
	File  *Candidate
	Error error
}

// Options configures a walk.
type Options struct {
	// Root is the repository root to walk.
	Root string

	// IgnorePatterns are globs from the config, applied to directories
	// and files relative to the root.
	IgnorePatterns []string

	// RespectGitignore enables .gitignore parsing (on for indexing).
	RespectGitignore bool

	// Paths restricts the walk to these relative paths when non-empty.
	// Used by the watcher to scope incremental runs to a change set.
	Paths []string
}

// languageMap maps file extensions to type tags. Code extensions map to
// their language; documents and config map to class tags.
var languageMap = map[string]string{
	".go":    "go",
	".rs":    "rust",
	".py":    "python",
	".pyw":   "python",
	".pyi":   "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rb":    "ruby",
	".rake":  "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
	".ex":    "elixir",
	".exs":   "elixir",
	".erl":   "erlang",
	".hs":    "haskell",
	".lua":   "lua",
	".sql":   "sql",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".fish":  "shell",
	".html":  "html",
	".htm":   "html",
	".css":   "css",
	".scss":  "css",
	".vue":   "vue",
	".proto": "protobuf",

	".md":       "markdown",
	".markdown": "markdown",

	".json": "config",
	".yaml": "config",
	".yml":  "config",
	".toml": "config",
	".ini":  "config",
	".xml":  "config",

	".txt": "text",
	".rst": "text",
}

// Classify assigns a type tag by extension: code languages by lookup,
// markdown, config, or plain text for everything else that got this far.
func Classify(path string) string {
	if tag, ok := languageMap[extension(path)]; ok {
		return tag
	}
	return "text"
}

// IsMarkdown reports whether a type tag gets markdown analysis.
func IsMarkdown(fileType string) bool {
	return fileType == "markdown"
}

// extension returns the lowercase file extension including the dot.
func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			return lower(path[i:])
		case '/', '\\':
			return ""
		}
	}
	return ""
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
