package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ByExtension(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"src/lib.rs", "rust"},
		{"app.py", "python"},
		{"notes/daily.md", "markdown"},
		{"README.markdown", "markdown"},
		{"config.yaml", "config"},
		{"Cargo.toml", "config"},
		{"package.json", "config"},
		{"LICENSE", "text"},
		{"notes.txt", "text"},
		{"script.SH", "shell"}, // extension match is case-insensitive
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.path), "path %q", tt.path)
	}
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, IsMarkdown(Classify("a.md")))
	assert.False(t, IsMarkdown(Classify("a.go")))
}

func TestIsBinaryExtension(t *testing.T) {
	assert.True(t, IsBinaryExtension("logo.png"))
	assert.True(t, IsBinaryExtension("dist/app.EXE"))
	assert.True(t, IsBinaryExtension("fonts/inter.woff2"))
	assert.False(t, IsBinaryExtension("main.go"))
	assert.False(t, IsBinaryExtension("README.md"))
	assert.False(t, IsBinaryExtension("Makefile"))
}

func TestFilter_Ignored(t *testing.T) {
	f := NewFilter([]string{".git", "node_modules", "target", ".obsidian/workspace*"})

	tests := []struct {
		path    string
		ignored bool
	}{
		// Component patterns match at any depth.
		{".git/config", true},
		{"sub/.git/HEAD", true},
		{"node_modules/lodash/index.js", true},
		{"target/debug/build.rs", true},
		// Slash patterns match against path suffixes.
		{".obsidian/workspace.json", true},
		{"vault/.obsidian/workspace-mobile.json", true},
		// Near misses stay indexable.
		{".obsidian/app.json", false},
		{"src/main.rs", false},
		{"targets.md", false},
		{"gitlog.txt", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ignored, f.Ignored(tt.path), "path %q", tt.path)
	}
}

func TestFilter_GlobComponent(t *testing.T) {
	f := NewFilter([]string{"*.tmp", "build-*"})

	assert.True(t, f.Ignored("cache/session.tmp"))
	assert.True(t, f.Ignored("build-amd64/out.txt"))
	assert.False(t, f.Ignored("tmp.md"))
}

func TestFilter_EmptyPatterns(t *testing.T) {
	f := NewFilter(nil)
	assert.False(t, f.Ignored("anything/at/all.md"))
	assert.False(t, f.Ignored(""))
}
