package scan

import (
	"path/filepath"
	"strings"
)

// binaryExtensions are rejected during discovery without reading the
// file. Anything listed here never becomes a candidate.
var binaryExtensions = map[string]bool{
	// Executables and object code
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".bin": true, ".obj": true, ".o": true, ".a": true, ".lib": true,
	// Images
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".ico": true, ".webp": true, ".svg": true, ".tiff": true,
	// Audio and video
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".wav": true, ".flac": true, ".ogg": true, ".webm": true,
	// Archives
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".iso": true,
	// Documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	// Fonts
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	// Compiled artifacts
	".pyc": true, ".pyo": true, ".class": true, ".jar": true, ".war": true,
	// Databases and lockfiles
	".db": true, ".sqlite": true, ".sqlite3": true, ".lock": true, ".sum": true,
}

// IsBinaryExtension reports whether the path carries an extension that
// is always treated as binary.
func IsBinaryExtension(path string) bool {
	return binaryExtensions[extension(path)]
}

// Filter applies configured ignore patterns to relative paths.
type Filter struct {
	patterns []string
}

// NewFilter builds a filter from config ignore patterns.
func NewFilter(patterns []string) *Filter {
	return &Filter{patterns: patterns}
}

// Ignored reports whether the relative path matches any ignore pattern.
// Patterns without a slash match any single path component, with glob
// support; patterns with a slash match against every suffix of the path
// so "a/.obsidian/workspace.json" is caught by ".obsidian/workspace*".
func (f *Filter) Ignored(relPath string) bool {
	if relPath == "" || relPath == "." {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	parts := strings.Split(relPath, "/")

	for _, pattern := range f.patterns {
		if pattern == "" {
			continue
		}
		if strings.ContainsRune(pattern, '/') {
			if matchPathPattern(pattern, parts) {
				return true
			}
			continue
		}
		for _, part := range parts {
			if matchComponent(pattern, part) {
				return true
			}
		}
	}
	return false
}

// matchPathPattern matches a slash-bearing pattern against every suffix
// of the path components.
func matchPathPattern(pattern string, parts []string) bool {
	for i := range parts {
		candidate := strings.Join(parts[i:], "/")
		if ok, err := filepath.Match(pattern, candidate); err == nil && ok {
			return true
		}
	}
	return false
}

// matchComponent matches a single pattern against one path component.
func matchComponent(pattern, part string) bool {
	if pattern == part {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}
	ok, err := filepath.Match(pattern, part)
	return err == nil && ok
}
