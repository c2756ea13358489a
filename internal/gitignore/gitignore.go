// Package gitignore matches paths against .gitignore rules
// (https://git-scm.com/docs/gitignore): wildcards, ** globs, anchored and
// directory-only patterns, negation, and nested files scoped to their
// directory. The last matching rule decides.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled rules from one or more gitignore files and
// answers Ignored queries. Safe for concurrent use; walks add nested
// files while subtree goroutines match.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// rule is one compiled gitignore line.
type rule struct {
	re       *regexp.Regexp
	negate   bool   // "!pattern" re-includes a previously ignored path
	dirOnly  bool   // trailing "/" matches directories (and their contents)
	anchored bool   // leading "/" or an interior "/" roots the pattern
	base     string // rules from a nested file apply only under this dir
}

// NewMatcher returns an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Add compiles one pattern scoped to the repository root.
func (m *Matcher) Add(pattern string) {
	m.AddAt(pattern, "")
}

// AddAt compiles one pattern scoped to base, for nested .gitignore files.
// Blank lines and comments are ignored.
func (m *Matcher) AddAt(pattern, base string) {
	r, ok := parseRule(pattern, base)
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFile reads a gitignore file, scoping every rule to base ("" for the
// root file, the containing directory's relative path otherwise).
func (m *Matcher) AddFile(filePath, base string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddAt(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read gitignore: %w", err)
	}
	return nil
}

// Ignored reports whether the slash-separated path, relative to the
// repository root, is excluded. Later rules override earlier ones, so a
// negation after a match re-includes the path.
func (m *Matcher) Ignored(relPath string, isDir bool) bool {
	relPath = strings.TrimPrefix(relPath, "./")

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.matches(relPath, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// parseRule compiles one gitignore line. ok is false for blanks and
// comments.
func parseRule(line, base string) (rule, bool) {
	// "\ " at end of line keeps the trailing space through trimming.
	keepTrailingSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)

	if line == "" {
		return rule{}, false
	}
	if strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	r := rule{base: base}

	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}

	if keepTrailingSpace && strings.HasSuffix(line, `\`) {
		line = strings.TrimSuffix(line, `\`) + " "
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if i := strings.Index(line, "/"); i >= 0 && !strings.HasPrefix(line, "**/") {
		// "doc/frotz" means "/doc/frotz", not "**/doc/frotz".
		r.anchored = true
	}

	r.re = regexp.MustCompile("^" + globToRegexp(line) + "$")
	return r, true
}

// matches applies one rule to a slash-separated relative path.
func (r rule) matches(relPath string, isDir bool) bool {
	if r.base != "" {
		if relPath == r.base {
			relPath = path.Base(relPath)
		} else if rest, ok := strings.CutPrefix(relPath, r.base+"/"); ok {
			relPath = rest
		} else {
			return false
		}
	}

	parts := strings.Split(relPath, "/")

	if r.anchored {
		if r.re.MatchString(relPath) {
			return !r.dirOnly || isDir || len(parts) > 1
		}
		if r.dirOnly {
			// "build/" also excludes everything inside build.
			for i := 1; i < len(parts); i++ {
				if r.re.MatchString(strings.Join(parts[:i], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		// An unanchored "name/" excludes that directory at any depth,
		// plus its contents.
		for i, part := range parts {
			if r.re.MatchString(part) {
				return i < len(parts)-1 || isDir
			}
		}
		return false
	}

	// Unanchored file patterns match the basename, any component, or the
	// whole path (for ** globs).
	if r.re.MatchString(parts[len(parts)-1]) || r.re.MatchString(relPath) {
		return true
	}
	for _, part := range parts[:len(parts)-1] {
		if r.re.MatchString(part) {
			return true
		}
	}
	return false
}

// globToRegexp translates gitignore glob syntax to a regexp body.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); {
		c := glob[i]
		switch c {
		case '*':
			switch {
			case strings.HasPrefix(glob[i:], "**/"):
				b.WriteString("(?:.*/)?")
				i += 3
			case strings.HasPrefix(glob[i:], "**"):
				b.WriteString(".*")
				i += 2
			default:
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			// Character classes pass through unless unterminated.
			if j := strings.IndexByte(glob[i:], ']'); j > 0 {
				b.WriteString(glob[i : i+j+1])
				i += j + 1
			} else {
				b.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(glob) {
				b.WriteString(regexp.QuoteMeta(string(glob[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
